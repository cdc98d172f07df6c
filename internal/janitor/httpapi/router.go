package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	janitormetrics "github.com/openjanitor/janitor/infrastructure/metrics"
	"github.com/openjanitor/janitor/infrastructure/middleware"
	"github.com/openjanitor/janitor/internal/janitor/publisher"
	"github.com/openjanitor/janitor/internal/janitor/queue"
	"github.com/openjanitor/janitor/internal/janitor/storage"
	"github.com/openjanitor/janitor/pkg/logger"
)

// RouterConfig wires a router's collaborators.
type RouterConfig struct {
	Store     storage.Store
	Publisher *publisher.Publisher
	Queue     *queue.Queue
	Metrics   *janitormetrics.Metrics
	Log       *logger.Logger
	Ready     *bool
	Version   string
}

// NewRouter builds the admin API's gorilla/mux router: public health/ready/
// metrics probes plus the publish/diff/queue endpoints, wrapped with
// recovery, logging, and metrics middleware registered in that order;
// gorilla/mux runs the first registered middleware outermost, so recovery
// wraps logging and metrics and catches a panic from any of them or from a
// handler.
func NewRouter(cfg RouterConfig) http.Handler {
	h := &handler{
		store:     cfg.Store,
		publisher: cfg.Publisher,
		queue:     cfg.Queue,
		log:       cfg.Log,
	}

	checker := middleware.NewHealthChecker(cfg.Version)
	checker.RegisterCheck("store", func() error {
		_, err := cfg.Store.ListCampaigns(context.Background())
		return err
	})

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.Handle("/health", checker.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ready", middleware.ReadinessHandler(cfg.Ready)).Methods(http.MethodGet)
	r.HandleFunc("/live", middleware.LivenessHandler()).Methods(http.MethodGet)

	r.HandleFunc("/publish", h.publishCampaign).Methods(http.MethodPost)
	r.HandleFunc("/last-publish", h.lastPublish).Methods(http.MethodGet)
	r.HandleFunc("/diff/{run_id}", h.diff).Methods(http.MethodGet)
	r.HandleFunc("/queue", h.queueStatus).Methods(http.MethodGet)
	r.HandleFunc("/{suite}/{codebase}/publish", h.publishManual).Methods(http.MethodPost)

	recovery := middleware.NewRecoveryMiddleware(cfg.Log)
	r.Use(recovery.Handler)
	r.Use(middleware.LoggingMiddleware(cfg.Log))
	if cfg.Metrics != nil {
		r.Use(middleware.MetricsMiddleware("janitor-httpapi", cfg.Metrics))
	}

	return r
}
