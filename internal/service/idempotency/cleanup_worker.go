// Package idempotency hosts the background cleanup of expired idempotency
// records. Records keep replayed events stable for their TTL window; after
// that they are garbage and must not accumulate.
package idempotency

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/galpao/wms/internal/domain"
)

const (
	defaultCleanupInterval = 10 * time.Minute
	defaultCleanupBatch    = 500
)

var (
	cleanupDeletedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wms_idempotency_cleanup_deleted_total",
		Help: "Total number of expired idempotency records removed by the cleanup worker.",
	})
	cleanupCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wms_idempotency_cleanup_cycles_total",
		Help: "Total number of cleanup cycles grouped by result.",
	}, []string{"result"})
)

// CleanupOptions configures the cleanup worker.
type CleanupOptions struct {
	Logger    *log.Entry
	Interval  time.Duration
	BatchSize int
}

// CleanupOption adjusts CleanupOptions.
type CleanupOption func(*CleanupOptions)

// WithLogger sets the worker logger.
func WithLogger(logger *log.Entry) CleanupOption {
	return func(opts *CleanupOptions) { opts.Logger = logger }
}

// WithInterval sets the delay between cleanup cycles.
func WithInterval(interval time.Duration) CleanupOption {
	return func(opts *CleanupOptions) { opts.Interval = interval }
}

// WithBatchSize caps how many records one delete pass removes.
func WithBatchSize(batchSize int) CleanupOption {
	return func(opts *CleanupOptions) { opts.BatchSize = batchSize }
}

// CleanupWorker periodically removes idempotency records past their TTL.
type CleanupWorker struct {
	repo      domain.IdempotencyRepository
	logger    *log.Entry
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// NewCleanupWorker builds a cleanup worker over the idempotency store.
func NewCleanupWorker(repo domain.IdempotencyRepository, options ...CleanupOption) *CleanupWorker {
	opts := CleanupOptions{
		Interval:  defaultCleanupInterval,
		BatchSize: defaultCleanupBatch,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "idempotency-cleanup")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultCleanupInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultCleanupBatch
	}

	return &CleanupWorker{
		repo:      repo,
		logger:    logger,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		now:       time.Now,
	}
}

// Run sweeps expired records until ctx is cancelled.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("idempotency cleanup is disabled: repo is nil")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.CleanupOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.CleanupOnce(ctx)
		}
	}
}

// CleanupOnce removes all currently expired records in batches and returns
// how many were deleted.
func (w *CleanupWorker) CleanupOnce(ctx context.Context) int {
	cutoff := w.now()
	total := 0

	for {
		if ctx.Err() != nil {
			return total
		}

		deleted, err := w.repo.DeleteExpired(cutoff, w.batchSize)
		if err != nil {
			w.logger.WithError(err).Warn("failed to delete expired idempotency records")
			cleanupCycles.WithLabelValues("error").Inc()
			return total
		}
		total += deleted
		cleanupDeletedRecords.Add(float64(deleted))

		if deleted < w.batchSize {
			break
		}
	}

	cleanupCycles.WithLabelValues("ok").Inc()
	if total > 0 {
		w.logger.WithField("deleted", total).Info("removed expired idempotency records")
	}
	return total
}
