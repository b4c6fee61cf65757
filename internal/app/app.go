// Package app wires configuration, storage, workers and servers into one
// runnable unit.
package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/galpao/wms/internal/health"
	"github.com/galpao/wms/internal/httpapi"
	"github.com/galpao/wms/internal/service/idempotency"
	"github.com/galpao/wms/internal/service/outbox"
	"github.com/galpao/wms/internal/version"
)

// Run starts the service and blocks until ctx is cancelled or a server
// fails.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	var workers sync.WaitGroup

	// Outbox publication runs only when a broker is configured; without
	// one the records stay queued.
	if deps.producer != nil {
		worker := outbox.NewWorker(deps.outboxRepo, deps.producer,
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithDLQ(deps.producer),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
		)
		workers.Add(1)
		go func() {
			defer workers.Done()
			worker.Run(ctx)
		}()
	}

	cleanup := idempotency.NewCleanupWorker(deps.idempotency,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.CleanupInterval),
	)
	workers.Add(1)
	go func() {
		defer workers.Done()
		cleanup.Run(ctx)
	}()

	if deps.scheduler != nil {
		if err := deps.scheduler.Start(ctx); err != nil {
			return err
		}
	}

	healthHandler := health.NewHandler(version.String())
	if deps.store != nil {
		healthHandler.RegisterChecker("postgres", health.NewSimpleChecker("postgres", func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return deps.store.Ping(checkCtx)
		}))
	}

	apiSrv := &http.Server{
		Addr:    cfg.APIAddr,
		Handler: httpapi.NewHandler(deps.service, logger.WithField("component", "http-api")).Router(),
	}
	opsSrv := newOpsServer(cfg.OpsAddr, healthHandler)

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("API listening on %s", cfg.APIAddr)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Infof("metrics on %s/metrics, health on %s/healthz", cfg.OpsAddr, cfg.OpsAddr)
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(opsSrv, logger)
		workers.Wait()
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(opsSrv, logger)
		workers.Wait()
		return err
	}
}

func newOpsServer(addr string, healthHandler *health.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", health.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	return &http.Server{Addr: addr, Handler: mux}
}

func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http server shutdown with error")
	}
}
