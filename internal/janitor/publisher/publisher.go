// Package publisher drives a successful run through the publish state
// machine: open a merge proposal, push directly, update an existing
// proposal, or skip, according to policy, rate limits, and hoster
// sensitivity. It is the single writer of publish records.
package publisher

import (
	"context"
	"fmt"

	"github.com/openjanitor/janitor/internal/janitor/domain"
	"github.com/openjanitor/janitor/internal/janitor/hoster"
	"github.com/openjanitor/janitor/internal/janitor/jerrors"
	"github.com/openjanitor/janitor/internal/janitor/policy"
	"github.com/openjanitor/janitor/internal/janitor/ratelimit"
	"github.com/openjanitor/janitor/internal/janitor/scheduler"
	"github.com/openjanitor/janitor/internal/janitor/storage"
	"github.com/openjanitor/janitor/pkg/logger"
	"github.com/sirupsen/logrus"
)

// Metrics is the subset of infrastructure/metrics.Metrics the publisher
// reports to, kept narrow so tests can supply a no-op double.
type Metrics interface {
	RecordPublishOutcome(mode, outcome string)
	RecordRateLimitBlocked(reason string)
}

type noopMetrics struct{}

func (noopMetrics) RecordPublishOutcome(string, string) {}
func (noopMetrics) RecordRateLimitBlocked(string)       {}

// Config wires a Publisher's collaborators.
type Config struct {
	Store       storage.Store
	Policy      *policy.Config
	Maintainers ratelimit.MaintainerLimiter
	Hosts       *ratelimit.HostBackoff
	Hoster      hoster.Hoster
	Publish     hoster.Publisher
	Scheduler   *scheduler.Scheduler
	Metrics     Metrics
	Log         *logger.Logger
}

// Publisher drives runs through the publish state machine described in
// spec §4.5.
type Publisher struct {
	store       storage.Store
	policy      *policy.Config
	maintainers ratelimit.MaintainerLimiter
	hosts       *ratelimit.HostBackoff
	hoster      hoster.Hoster
	publish     hoster.Publisher
	scheduler   *scheduler.Scheduler
	metrics     Metrics
	log         *logger.Logger
}

// New creates a Publisher from cfg, defaulting Metrics/Log when omitted.
func New(cfg Config) *Publisher {
	m := cfg.Metrics
	if m == nil {
		m = noopMetrics{}
	}
	log := cfg.Log
	if log == nil {
		log = logger.NewFromEnv("janitor-publisher")
	}
	return &Publisher{
		store:       cfg.Store,
		policy:      cfg.Policy,
		maintainers: cfg.Maintainers,
		hosts:       cfg.Hosts,
		hoster:      cfg.Hoster,
		publish:     cfg.Publish,
		scheduler:   cfg.Scheduler,
		metrics:     m,
		log:         log,
	}
}

// Outcome summarizes the result of PublishRun for one branch role.
type Outcome struct {
	Role   domain.BranchRole
	Record domain.PublishRecord
}

// PublishRun runs the publish state machine for every result branch of a
// successful run against its resolved policy. A run that is not a success
// is rejected with an error. Runs whose policy resolves to skip/build-only,
// or that trip the idempotence gate, produce a "skipped" record and no
// hoster calls.
func (p *Publisher) PublishRun(ctx context.Context, run domain.Run) ([]Outcome, error) {
	if !run.Success() {
		return nil, fmt.Errorf("publish run %s: result_code %s is not success", run.ID, run.ResultCode)
	}

	cb, err := p.store.GetCodebase(ctx, run.Codebase)
	if err != nil {
		return nil, jerrors.NoSuchCodebase(run.Codebase)
	}
	resolution := p.policy.Resolve(cb)

	outcomes := make([]Outcome, 0, len(run.ResultBranches))
	for _, branch := range run.ResultBranches {
		mode := resolution.ModeFor(branch.Role)
		rec, err := p.publishBranch(ctx, cb, run, branch, mode)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, Outcome{Role: branch.Role, Record: rec})
	}
	return outcomes, nil
}

// PublishManual implements the admin API's POST /{suite}/{codebase}/publish:
// it forces mode for the codebase's most recent successful run against
// campaign, bypassing policy resolution but still subject to rate-limit and
// sensitive-host downgrades.
func (p *Publisher) PublishManual(ctx context.Context, codebase, campaign string, mode domain.PublishMode) ([]Outcome, error) {
	run, ok, err := p.store.LastRun(ctx, codebase, campaign)
	if err != nil {
		return nil, err
	}
	if !ok || !run.Success() {
		return nil, fmt.Errorf("no successful run to publish for %s/%s", codebase, campaign)
	}

	cb, err := p.store.GetCodebase(ctx, codebase)
	if err != nil {
		return nil, jerrors.NoSuchCodebase(codebase)
	}

	outcomes := make([]Outcome, 0, len(run.ResultBranches))
	for _, branch := range run.ResultBranches {
		rec, err := p.publishBranch(ctx, cb, run, branch, mode)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, Outcome{Role: branch.Role, Record: rec})
	}
	return outcomes, nil
}

// PublishCampaign re-considers every successful run recorded for campaign,
// for the admin API's POST /publish {suite}. Already-published runs are a
// no-op thanks to PublishRun's idempotence gate.
func (p *Publisher) PublishCampaign(ctx context.Context, campaign string, limit int) (int, error) {
	runs, err := p.store.ListRuns(ctx, "", campaign, limit)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, run := range runs {
		if !run.Success() {
			continue
		}
		if _, err := p.PublishRun(ctx, run); err != nil {
			p.log.WithFields(map[string]interface{}{"run": run.ID, "codebase": run.Codebase}).
				WithError(err).Warn("PublishCampaign: run failed, continuing")
			continue
		}
		published++
	}
	return published, nil
}

func (p *Publisher) publishBranch(ctx context.Context, cb domain.Codebase, run domain.Run, branch domain.ResultBranch, mode domain.PublishMode) (domain.PublishRecord, error) {
	if mode == domain.PublishModeSkip || mode == domain.PublishModeBuildOnly {
		return p.record(ctx, run, mode, domain.PublishStateSkipped, jerrors.ResultNothingToDo, "", branch.HeadRevision)
	}

	already, err := p.alreadyPublished(ctx, cb.Name, run.Campaign, mode, branch.HeadRevision)
	if err != nil {
		return domain.PublishRecord{}, err
	}
	if already {
		return p.record(ctx, run, mode, domain.PublishStateSkipped, jerrors.ResultNothingToDo, "", branch.HeadRevision)
	}

	mode = p.downgradeForRateLimit(cb.Maintainer, mode)
	mode = p.downgradeForSensitiveHost(cb.VCSURL, mode)

	if mode == domain.PublishModeSkip || mode == domain.PublishModeBuildOnly {
		return p.record(ctx, run, mode, domain.PublishStateSkipped, jerrors.ResultNothingToDo, "", branch.HeadRevision)
	}

	if !p.hosts.Allowed(cb.VCSURL) {
		p.metrics.RecordRateLimitBlocked("host_backoff")
		return p.record(ctx, run, mode, domain.PublishStateSkipped, jerrors.ResultTooManyRequests, "", branch.HeadRevision)
	}

	req := hoster.PublishRequest{
		Mode:                string(mode),
		Suite:               run.Campaign,
		Codebase:            cb.Name,
		Command:             run.Command,
		SubworkerResult:     string(run.ResultCode),
		MainBranchURL:       cb.VCSURL,
		LocalBranchURL:      branch.Name,
		LogID:               run.ID,
		AllowCreateProposal: mode == domain.PublishModePropose || mode == domain.PublishModeAttemptPush,
	}

	resp, publishErr := p.publish.PublishOne(ctx, req)
	if publishErr != nil {
		var perr *hoster.PublishError
		code := jerrors.ResultPublisherInvalidResp
		if asPublishError(publishErr, &perr) {
			code = perr.Code
			if code == jerrors.ResultTooManyRequests {
				p.hosts.MarkLimited(cb.VCSURL)
			}
		}
		p.log.WithFields(logrus.Fields{"codebase": cb.Name, "run": run.ID, "mode": mode}).
			WithError(publishErr).Warn("publish_one failed")
		return p.record(ctx, run, mode, stateForFailure(code), code, "", branch.HeadRevision)
	}

	state := stateForSuccess(mode)
	rec, err := p.record(ctx, run, mode, state, jerrors.ResultSuccess, resp.ProposalURL, branch.HeadRevision)
	if err != nil {
		return rec, err
	}

	if resp.IsNew && resp.ProposalURL != "" {
		p.maintainers.Inc(cb.Maintainer)
	}
	return rec, nil
}

// downgradeForRateLimit implements transition 1: propose/attempt-push modes
// over the maintainer's open-proposal cap are downgraded rather than
// blocked outright.
func (p *Publisher) downgradeForRateLimit(maintainer string, mode domain.PublishMode) domain.PublishMode {
	if mode != domain.PublishModePropose && mode != domain.PublishModeAttemptPush {
		return mode
	}
	if p.maintainers.Allowed(maintainer) {
		return mode
	}
	p.metrics.RecordRateLimitBlocked(string(mode))
	if mode == domain.PublishModePropose {
		return domain.PublishModeBuildOnly
	}
	return domain.PublishModePush
}

// downgradeForSensitiveHost implements transition 2: a direct push to a
// shared collaborative namespace is downgraded to a proposal instead.
func (p *Publisher) downgradeForSensitiveHost(vcsURL string, mode domain.PublishMode) domain.PublishMode {
	if mode == domain.PublishModeAttemptPush && p.policy.IsSensitiveHost(vcsURL) {
		return domain.PublishModePropose
	}
	return mode
}

// alreadyPublished is the idempotence gate: a head revision already recorded
// as published for this (codebase, campaign, mode) is not republished.
func (p *Publisher) alreadyPublished(ctx context.Context, codebase, campaign string, mode domain.PublishMode, headRevision string) (bool, error) {
	last, ok, err := p.store.LastPublishRecord(ctx, codebase, campaign)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return last.Mode == mode && last.Revision == headRevision && last.ResultCode == jerrors.ResultSuccess, nil
}

func (p *Publisher) record(ctx context.Context, run domain.Run, mode domain.PublishMode, state domain.PublishState, code jerrors.ResultCode, proposalURL, revision string) (domain.PublishRecord, error) {
	rec, err := p.store.AppendPublishRecord(ctx, domain.PublishRecord{
		Codebase:    run.Codebase,
		Campaign:    run.Campaign,
		RunID:       run.ID,
		Mode:        mode,
		State:       state,
		ResultCode:  code,
		ProposalURL: proposalURL,
		Revision:    revision,
	})
	p.metrics.RecordPublishOutcome(string(mode), string(state))
	return rec, err
}

func stateForSuccess(mode domain.PublishMode) domain.PublishState {
	switch mode {
	case domain.PublishModePush, domain.PublishModeAttemptPush:
		return domain.PublishStatePushed
	case domain.PublishModePropose:
		return domain.PublishStateProposed
	default:
		return domain.PublishStateBuilding
	}
}

func stateForFailure(code jerrors.ResultCode) domain.PublishState {
	if code == jerrors.ResultConflict {
		return domain.PublishStateConflict
	}
	return domain.PublishStateFailed
}

func asPublishError(err error, target **hoster.PublishError) bool {
	perr, ok := err.(*hoster.PublishError)
	if !ok {
		return false
	}
	*target = perr
	return true
}
