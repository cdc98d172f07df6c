// Package httpapi exposes the fleet engine's admin surface: manual publish
// triggers, diff retrieval, queue introspection, and the health/readiness/
// metrics endpoints the runtime and its orchestrator poll.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/openjanitor/janitor/infrastructure/httputil"
	"github.com/openjanitor/janitor/internal/janitor/domain"
	"github.com/openjanitor/janitor/internal/janitor/jerrors"
	"github.com/openjanitor/janitor/internal/janitor/publisher"
	"github.com/openjanitor/janitor/internal/janitor/queue"
	"github.com/openjanitor/janitor/internal/janitor/storage"
	"github.com/openjanitor/janitor/pkg/logger"
)

// handler bundles the collaborators the admin endpoints read and write.
type handler struct {
	store     storage.Store
	publisher *publisher.Publisher
	queue     *queue.Queue
	log       *logger.Logger
}

// publishCampaignRequest is the body of POST /publish.
type publishCampaignRequest struct {
	Suite string `json:"suite"`
}

func (h *handler) publishCampaign(w http.ResponseWriter, r *http.Request) {
	var req publishCampaignRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.Suite == "" {
		httputil.BadRequest(w, "suite is required")
		return
	}

	published, err := h.publisher.PublishCampaign(r.Context(), req.Suite, 500)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
		"suite":     req.Suite,
		"published": published,
	})
}

func (h *handler) lastPublish(w http.ResponseWriter, r *http.Request) {
	suite := httputil.QueryString(r, "suite", "")
	if suite == "" {
		httputil.BadRequest(w, "suite query parameter is required")
		return
	}

	if _, err := h.store.GetCampaign(r.Context(), suite); err != nil {
		writeErr(w, r, err)
		return
	}

	at, ok, err := h.store.LastPublishForCampaign(r.Context(), suite)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if !ok {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		suite: at.Format(time.RFC3339),
	})
}

func (h *handler) diff(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["run_id"]
	if runID == "" {
		httputil.BadRequest(w, "run_id is required")
		return
	}
	role := domain.BranchRole(httputil.QueryString(r, "branch", string(domain.BranchRoleMain)))

	cs, ok, err := h.store.GetChangeSet(r.Context(), runID, role)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if !ok {
		httputil.NotFound(w, "no diff recorded for run")
		return
	}

	w.Header().Set("Content-Type", "text/x-diff; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(cs.Diff)
}

// publishManualRequest is the body of POST /{suite}/{codebase}/publish.
type publishManualRequest struct {
	Mode string `json:"mode"`
}

func (h *handler) publishManual(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	suite, codebase := vars["suite"], vars["codebase"]

	var req publishManualRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	mode, err := parseManualMode(req.Mode)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	outcomes, err := h.publisher.PublishManual(r.Context(), codebase, suite, mode)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, outcomes)
}

func parseManualMode(raw string) (domain.PublishMode, error) {
	switch domain.PublishMode(raw) {
	case domain.PublishModePropose, domain.PublishModePush, domain.PublishModeAttemptPush:
		return domain.PublishMode(raw), nil
	case "push-derived":
		return domain.PublishModePush, nil
	default:
		return "", errors.New("mode must be one of propose, push, attempt-push, push-derived")
	}
}

func (h *handler) queueStatus(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.queue.Buckets(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	total, err := h.queue.Len(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"total":   total,
		"buckets": buckets,
	})
}

// writeErr translates a jerrors.ServiceError into its HTTP envelope,
// falling back to 500 for anything else.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var serr *jerrors.ServiceError
	if errors.As(err, &serr) {
		httputil.WriteErrorResponse(w, r, serr.HTTPStatus, string(serr.Code), serr.Message, serr.Details)
		return
	}
	httputil.WriteErrorResponse(w, r, http.StatusInternalServerError, "", err.Error(), nil)
}
