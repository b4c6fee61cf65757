package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/galpao/wms/internal/domain"
	"github.com/galpao/wms/internal/erp/sapb1"
	"github.com/galpao/wms/internal/messaging/kafka"
	"github.com/galpao/wms/internal/metrics"
	"github.com/galpao/wms/internal/service/erpsync"
	"github.com/galpao/wms/internal/service/orders"
	"github.com/galpao/wms/internal/storage/memory"
	"github.com/galpao/wms/internal/storage/postgres"
)

// dependencies holds everything Run wires together.
type dependencies struct {
	service     *orders.Service
	outboxRepo  domain.OutboxRepository
	idempotency domain.IdempotencyRepository
	producer    *kafka.Producer
	store       *postgres.Store
	scheduler   *erpsync.Scheduler
	syncMetrics *metrics.SyncMetrics
}

// buildDependencies constructs the storage layer, the optional Kafka
// producer and the optional ERP sync from config. A DSN selects PostgreSQL;
// without one everything lives in memory.
func buildDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*dependencies, error) {
	deps := &dependencies{}

	var serviceDeps orders.Deps
	if cfg.PostgresDSN != "" {
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		deps.store = store
		serviceDeps = orders.Deps{
			Orders:      postgres.NewOrderRepository(store),
			Tasks:       postgres.NewTaskRepository(store),
			Transitions: postgres.NewTransitionRepository(store),
			Scans:       postgres.NewScanRepository(store),
			Idempotency: postgres.NewIdempotencyRepository(store),
			Outbox:      postgres.NewOutboxRepository(store),
		}
		logger.Info("using postgres storage")
	} else {
		serviceDeps = orders.Deps{
			Orders:      memory.NewOrderRepository(),
			Tasks:       memory.NewTaskRepository(),
			Transitions: memory.NewTransitionRepository(),
			Scans:       memory.NewScanRepository(),
			Idempotency: memory.NewIdempotencyRepository(),
			Outbox:      memory.NewOutboxRepository(),
		}
		logger.Info("using in-memory storage")
	}
	deps.outboxRepo = serviceDeps.Outbox
	deps.idempotency = serviceDeps.Idempotency

	deps.service = orders.NewService(serviceDeps,
		orders.WithLogger(logger.WithField("component", "orders-service")),
		orders.WithMetrics(metrics.NewLifecycleMetrics()),
	)

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		} else {
			deps.producer = producer
			logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
		}
	}

	if cfg.ERPBaseURL != "" {
		raw, err := sapb1.NewClient(sapb1.Config{
			BaseURL:   cfg.ERPBaseURL,
			CompanyDB: cfg.ERPCompanyDB,
			Username:  cfg.ERPUsername,
			Password:  cfg.ERPPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("build ERP client: %w", err)
		}

		deps.syncMetrics = metrics.NewSyncMetrics()
		resilient := erpsync.NewClient(raw, erpsync.DefaultClientConfig(),
			logger.WithField("component", "erp-client"), deps.syncMetrics)

		schedCfg := erpsync.DefaultSchedulerConfig()
		if cfg.ERPPull != "" {
			schedCfg.PullSchedule = cfg.ERPPull
		}
		if cfg.ERPPush != "" {
			schedCfg.PushSchedule = cfg.ERPPush
		}
		deps.scheduler = erpsync.NewScheduler(resilient, deps.service, serviceDeps.Orders,
			schedCfg, logger.WithField("component", "erp-scheduler"))
		logger.WithField("base_url", cfg.ERPBaseURL).Info("ERP sync enabled")
	}

	return deps, nil
}

// close releases external resources in reverse init order.
func (d *dependencies) close(logger *log.Entry) {
	if d.scheduler != nil {
		d.scheduler.Stop()
	}
	if d.producer != nil {
		if err := d.producer.Close(); err != nil {
			logger.WithError(err).Warn("failed to close kafka producer")
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}
