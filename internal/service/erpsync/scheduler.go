package erpsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/galpao/wms/internal/domain"
)

const (
	defaultPullSchedule = "@every 1m"
	defaultPushSchedule = "@every 30s"

	openOrdersPath = "Orders?$filter=DocumentStatus eq 'bost_Open'&$select=DocEntry,CardCode,Address,DocumentLines"
)

// OrderImporter accepts orders pulled from the ERP into the warehouse.
type OrderImporter interface {
	ImportOrder(ctx context.Context, externalRef, customerID, shipAddress string, items []domain.OrderItem) (domain.Order, error)
}

// SchedulerConfig holds the cron expressions of the sync jobs.
type SchedulerConfig struct {
	PullSchedule string
	PushSchedule string
}

// DefaultSchedulerConfig returns the production schedules.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		PullSchedule: defaultPullSchedule,
		PushSchedule: defaultPushSchedule,
	}
}

// Scheduler runs the periodic ERP jobs: pulling open sales orders into the
// warehouse and pushing dispatch confirmations back. It owns the Service
// Layer session: jobs log in lazily and re-login once when the ERP reports
// the session expired.
type Scheduler struct {
	client   domain.ERPClient
	importer OrderImporter
	orders   domain.OrderRepository
	logger   *log.Entry
	cron     *cron.Cron
	cfg      SchedulerConfig

	sessionMu   sync.Mutex
	sessionOpen bool
}

// NewScheduler builds the sync scheduler. Jobs are registered by Start.
func NewScheduler(client domain.ERPClient, importer OrderImporter, orders domain.OrderRepository, cfg SchedulerConfig, logger *log.Entry) *Scheduler {
	if logger == nil {
		logger = log.WithField("component", "erp-scheduler")
	}
	if cfg.PullSchedule == "" {
		cfg.PullSchedule = defaultPullSchedule
	}
	if cfg.PushSchedule == "" {
		cfg.PushSchedule = defaultPushSchedule
	}

	return &Scheduler{
		client:   client,
		importer: importer,
		orders:   orders,
		logger:   logger,
		cron:     cron.New(),
		cfg:      cfg,
	}
}

// Start registers the jobs and launches the cron runner. Jobs run until
// Stop is called; each job derives its own timeout from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.PullSchedule, func() {
		jobCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if err := s.PullOpenOrders(jobCtx); err != nil {
			s.logger.WithError(err).Warn("pull of open ERP orders failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to register pull job: %w", err)
	}

	if _, err := s.cron.AddFunc(s.cfg.PushSchedule, func() {
		jobCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if err := s.PushDispatched(jobCtx); err != nil {
			s.logger.WithError(err).Warn("push of dispatched orders failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to register push job: %w", err)
	}

	// Open the session up front so the first jobs start authenticated. A
	// failure here only warns; jobs log in lazily on their next run.
	loginCtx, cancel := context.WithTimeout(ctx, time.Minute)
	if err := s.ensureSession(loginCtx); err != nil {
		s.logger.WithError(err).Warn("ERP session not yet available")
	}
	cancel()

	s.cron.Start()
	s.logger.WithFields(log.Fields{
		"pull_schedule": s.cfg.PullSchedule,
		"push_schedule": s.cfg.PushSchedule,
	}).Info("ERP sync scheduler started")
	return nil
}

// Stop halts the cron runner, waits for running jobs to finish and closes
// the ERP session.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()

	s.sessionMu.Lock()
	open := s.sessionOpen
	s.sessionOpen = false
	s.sessionMu.Unlock()

	if open {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.client.Logout(ctx); err != nil {
			s.logger.WithError(err).Warn("ERP logout failed")
		}
	}
}

func (s *Scheduler) ensureSession(ctx context.Context) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	if s.sessionOpen {
		return nil
	}
	if err := s.client.Login(ctx); err != nil {
		return fmt.Errorf("failed to open ERP session: %w", err)
	}
	s.sessionOpen = true
	return nil
}

func (s *Scheduler) dropSession() {
	s.sessionMu.Lock()
	s.sessionOpen = false
	s.sessionMu.Unlock()
}

// withSession runs call inside the ERP session. When the Service Layer
// reports the session gone, the scheduler logs in again and retries the
// call once.
func (s *Scheduler) withSession(ctx context.Context, call func() error) error {
	if err := s.ensureSession(ctx); err != nil {
		return err
	}

	err := call()
	if !errors.Is(err, domain.ErrERPUnauthorized) {
		return err
	}

	s.logger.Info("ERP session expired, logging in again")
	s.dropSession()
	if err := s.ensureSession(ctx); err != nil {
		return err
	}
	return call()
}

type erpOrderList struct {
	Value []erpOrder `json:"value"`
}

type erpOrder struct {
	DocEntry int64          `json:"DocEntry"`
	CardCode string         `json:"CardCode"`
	Address  string         `json:"Address"`
	Lines    []erpOrderLine `json:"DocumentLines"`
}

type erpOrderLine struct {
	ItemCode string  `json:"ItemCode"`
	Quantity float64 `json:"Quantity"`
}

// PullOpenOrders fetches open sales orders from the ERP and imports the
// ones not yet known to the warehouse.
func (s *Scheduler) PullOpenOrders(ctx context.Context) error {
	var body []byte
	err := s.withSession(ctx, func() error {
		var err error
		body, err = s.client.Get(ctx, openOrdersPath)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to fetch open orders: %w", err)
	}

	var list erpOrderList
	if err := json.Unmarshal(body, &list); err != nil {
		return fmt.Errorf("failed to decode open orders response: %w", err)
	}

	imported := 0
	for _, remote := range list.Value {
		externalRef := strconv.FormatInt(remote.DocEntry, 10)

		_, err := s.orders.GetByExternalRef(externalRef)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrOrderNotFound) {
			return fmt.Errorf("failed to look up order by ERP ref %s: %w", externalRef, err)
		}

		items := make([]domain.OrderItem, 0, len(remote.Lines))
		for _, line := range remote.Lines {
			items = append(items, domain.OrderItem{
				SKU:      domain.NormalizeSKU(line.ItemCode),
				Quantity: int64(line.Quantity),
			})
		}

		if _, err := s.importer.ImportOrder(ctx, externalRef, remote.CardCode, remote.Address, items); err != nil {
			s.logger.WithError(err).WithField("external_ref", externalRef).Warn("failed to import ERP order")
			continue
		}
		imported++
	}

	if imported > 0 {
		s.logger.WithField("imported", imported).Info("imported open ERP orders")
	}
	return nil
}

// PushDispatched reports dispatched orders back to the ERP. Orders without
// an ERP reference were created locally and are skipped; each successful
// push stamps the order's sync marker, so a dispatch is reported once even
// across restarts.
func (s *Scheduler) PushDispatched(ctx context.Context) error {
	dispatched, err := s.orders.List(domain.OrderStatusDespachado, 0)
	if err != nil {
		return fmt.Errorf("failed to list dispatched orders: %w", err)
	}

	for _, order := range dispatched {
		if order.ExternalRef == "" {
			continue
		}
		if !order.ErpSyncedAt.IsZero() {
			continue
		}

		payload, err := json.Marshal(map[string]string{
			"U_WMS_Status":      string(order.Status),
			"U_WMS_DispatchUTC": order.UpdatedAt.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return fmt.Errorf("failed to encode dispatch payload: %w", err)
		}

		path := fmt.Sprintf("Orders(%s)", order.ExternalRef)
		err = s.withSession(ctx, func() error {
			_, err := s.client.Patch(ctx, path, payload)
			return err
		})
		if err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id":     order.ID,
				"external_ref": order.ExternalRef,
			}).Warn("failed to push dispatch to ERP")
			continue
		}
		if err := s.orders.MarkErpSynced(order.ID, time.Now().UTC()); err != nil {
			s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to stamp ERP sync marker")
		}
	}
	return nil
}
