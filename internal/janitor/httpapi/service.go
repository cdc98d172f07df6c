package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/openjanitor/janitor/pkg/logger"
)

// Service wraps the admin API's router in an http.Server with a start/stop
// lifecycle matching the rest of the runtime's long-running components.
type Service struct {
	addr    string
	server  *http.Server
	handler http.Handler
	log     *logger.Logger
}

// NewService builds a Service from a pre-built router (see NewRouter).
func NewService(addr string, router http.Handler, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewFromEnv("janitor-httpapi")
	}
	return &Service{addr: addr, handler: router, log: log}
}

// Start begins serving in the background. It returns once the listener is
// configured; ListenAndServe errors surface via the log, not the return
// value, since the server runs for the life of the process.
func (s *Service) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("http server stopped unexpectedly")
		}
	}()
	return nil
}

// Stop gracefully shuts the server down, waiting for in-flight requests to
// finish or ctx to expire.
func (s *Service) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
