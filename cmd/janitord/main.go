// Command janitord is the fleet engine's daemon: it sweeps scheduled and
// event-driven publish decisions against a store and serves the admin API.
// Its startup sequence — flag parsing, DSN resolution, migrations, signal
// handling, graceful shutdown — is grounded on the teacher's
// cmd/appserver/main.go.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openjanitor/janitor/infrastructure/metrics"
	janitorconfig "github.com/openjanitor/janitor/internal/config"
	"github.com/openjanitor/janitor/internal/janitor/estimator"
	"github.com/openjanitor/janitor/internal/janitor/hoster"
	"github.com/openjanitor/janitor/internal/janitor/hoster/hosterfake"
	"github.com/openjanitor/janitor/internal/janitor/httpapi"
	"github.com/openjanitor/janitor/internal/janitor/ingress"
	"github.com/openjanitor/janitor/internal/janitor/policy"
	"github.com/openjanitor/janitor/internal/janitor/publisher"
	"github.com/openjanitor/janitor/internal/janitor/queue"
	"github.com/openjanitor/janitor/internal/janitor/ratelimit"
	"github.com/openjanitor/janitor/internal/janitor/scheduler"
	"github.com/openjanitor/janitor/internal/janitor/storage"
	"github.com/openjanitor/janitor/internal/janitor/storage/memory"
	"github.com/openjanitor/janitor/internal/janitor/storage/postgres"
	"github.com/openjanitor/janitor/internal/platform/database"
	"github.com/openjanitor/janitor/internal/platform/migrations"
	"github.com/openjanitor/janitor/internal/platform/pgnotify"
	"github.com/openjanitor/janitor/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := janitorconfig.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{Service: "janitord", Level: cfg.LogLevel, Format: cfg.LogFormat})

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var policyCfg *policy.Config
	if cfg.PolicyPath != "" {
		policyCfg, err = policy.Load(cfg.PolicyPath)
		if err != nil {
			return fmt.Errorf("load policy: %w", err)
		}
	} else {
		policyCfg = policy.Default()
		log.Warn("no --config policy file given, every codebase resolves to mode=skip")
	}

	store, closeStore, err := openStore(rootCtx, cfg.DatabaseDSN, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	janitorMetrics := metrics.New("janitord")

	ready := false
	pub := publisher.New(publisher.Config{
		Store:       store,
		Policy:      policyCfg,
		Maintainers: ratelimit.NewMaintainerCap(cfg.MaxMPSPerMaintainer),
		Hosts:       ratelimit.NewHostBackoff(10 * time.Minute),
		Hoster:      hosterHoster(),
		Publish:     hoster.NewSubprocessPublisher("publish_one"),
		Scheduler:   newScheduler(store),
		Metrics:     janitorMetrics,
		Log:         log,
	})

	if cfg.DryRun {
		log.Warn("--dry-run is set: the flag has no effect and publish_one is still invoked for every publish decision")
	}

	if cfg.Once {
		loop := ingress.NewScheduledLoop(pub, ingress.DefaultScheduledConfig(), log)
		loop.Tick(rootCtx)
		return nil
	}

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Store:     store,
		Publisher: pub,
		Queue:     queue.New(store, queue.DefaultConfig()),
		Metrics:   janitorMetrics,
		Log:       log,
		Ready:     &ready,
		Version:   "janitord",
	})
	httpService := httpapi.NewService(cfg.Addr(), router, log)
	if err := httpService.Start(rootCtx); err != nil {
		return fmt.Errorf("start admin API: %w", err)
	}

	scheduledCfg := ingress.DefaultScheduledConfig()
	scheduledCfg.Interval = cfg.Interval
	scheduledLoop := ingress.NewScheduledLoop(pub, scheduledCfg, log)

	var eventLoop *ingress.EventLoop
	if !cfg.NoAutoPublish {
		scheduledLoop.Start(rootCtx)

		if cfg.DatabaseDSN != "" {
			bus, err := pgnotify.New(cfg.DatabaseDSN)
			if err != nil {
				log.WithError(err).Warn("pgnotify unavailable, event-driven publish disabled")
			} else {
				defer bus.Close()
				eventLoop = ingress.NewEventLoop(bus, pub, log)
				if err := eventLoop.Start(); err != nil {
					log.WithError(err).Warn("event loop subscribe failed")
				}
			}
		}
	} else {
		log.Warn("--no-auto-publish is set: scheduled and event-driven publish loops are disabled")
	}

	ready = true
	log.WithFields(map[string]interface{}{"addr": cfg.Addr()}).Info("janitord started")

	<-rootCtx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := scheduledLoop.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("scheduled loop stop")
	}
	if err := httpService.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("admin API stop")
	}
	return nil
}

// openStore wires a postgres-backed store when a DSN is configured,
// applying pending migrations first, or an in-memory store for local runs
// and --once smoke tests.
func openStore(ctx context.Context, dsn string, log *logger.Logger) (storage.Store, func(), error) {
	if dsn == "" {
		log.Warn("no --dsn/DATABASE_URL given, using in-memory storage (not durable across restarts)")
		return memory.New(), func() {}, nil
	}

	db, err := database.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := migrations.Apply(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}
	return postgres.New(db), func() { db.Close() }, nil
}

// hosterHoster returns the in-memory forge double: no concrete forge client
// ships with the daemon, per spec §1's non-goals.
func hosterHoster() hoster.Hoster {
	return hosterfake.New()
}

func newScheduler(store storage.Store) *scheduler.Scheduler {
	est := estimator.New(store, nil, estimator.DefaultConfig())
	return scheduler.New(store, est, scheduler.DefaultConfig())
}
