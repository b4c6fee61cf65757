// Package orders is the application service tying the pieces together:
// order creation, lifecycle events through the engine's guards, the scan
// pipeline feeding the double-check validator and the task chain, and the
// outbox records that announce accepted changes.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/galpao/wms/internal/domain"
	"github.com/galpao/wms/internal/messaging/kafka"
	"github.com/galpao/wms/internal/metrics"
	"github.com/galpao/wms/internal/service/doublecheck"
	"github.com/galpao/wms/internal/service/lifecycle"
	"github.com/galpao/wms/internal/service/taskflow"
)

// Deps bundles the persistence ports of the service. Outbox may be nil when
// event publication is disabled.
type Deps struct {
	Orders      domain.OrderRepository
	Tasks       domain.TaskRepository
	Transitions domain.TransitionRepository
	Scans       domain.ScanRepository
	Idempotency domain.IdempotencyRepository
	Outbox      domain.OutboxRepository
}

// Option tunes the service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics wires the lifecycle metrics. A nil receiver is tolerated by
// every metrics method, so leaving this out simply disables recording.
func WithMetrics(m *metrics.LifecycleMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithEngine overrides the default lifecycle engine.
func WithEngine(engine *lifecycle.Engine) Option {
	return func(s *Service) { s.engine = engine }
}

// Service coordinates order operations. Writes to one order are serialized
// by a per-order mutex; the engine's version guard still protects against
// anything that slips around the lock, such as a second replica.
type Service struct {
	deps    Deps
	engine  *lifecycle.Engine
	logger  *log.Entry
	metrics *metrics.LifecycleMetrics
	now     func() time.Time
	newID   func() string

	locks sync.Map // order id -> *sync.Mutex
}

// NewService builds the application service.
func NewService(deps Deps, options ...Option) *Service {
	s := &Service{
		deps:   deps,
		engine: lifecycle.NewEngine(),
		logger: log.WithField("component", "orders-service"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *Service) lockOrder(id string) func() {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// CreateOrderInput carries the fields of a new order.
type CreateOrderInput struct {
	ExternalRef string
	CustomerID  string
	ShipAddress string
	Items       []domain.OrderItem
}

// CreateOrder validates and stores a new order in A_SEPARAR and records an
// order.created outbox event.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (domain.Order, error) {
	now := s.now().UTC()
	order := domain.Order{
		ID:          s.newID(),
		ExternalRef: input.ExternalRef,
		CustomerID:  input.CustomerID,
		ShipAddress: input.ShipAddress,
		Items:       domain.CloneItems(input.Items),
		Status:      domain.OrderStatusASeparar,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for i := range order.Items {
		order.Items[i].SKU = domain.NormalizeSKU(order.Items[i].SKU)
	}

	if violations := order.ValidateInvariants(); len(violations) > 0 {
		return domain.Order{}, errors.Join(violations...)
	}

	if err := s.deps.Orders.Create(order); err != nil {
		return domain.Order{}, fmt.Errorf("failed to create order: %w", err)
	}

	s.enqueueOutbox(order.ID, kafka.OrderEventPayload{
		EventType:  kafka.EventTypeOrderCreated,
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		ToStatus:   order.Status,
		Timestamp:  now,
	})

	s.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"customer_id": order.CustomerID,
		"items":       len(order.Items),
	}).Info("order created")
	return order, nil
}

// ImportOrder brings an ERP order into the warehouse. Importing the same
// external reference twice returns the existing order unchanged.
func (s *Service) ImportOrder(ctx context.Context, externalRef, customerID, shipAddress string, items []domain.OrderItem) (domain.Order, error) {
	if externalRef == "" {
		return domain.Order{}, fmt.Errorf("external reference is required for import")
	}

	existing, err := s.deps.Orders.GetByExternalRef(externalRef)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrOrderNotFound) {
		return domain.Order{}, fmt.Errorf("failed to look up external ref %s: %w", externalRef, err)
	}

	return s.CreateOrder(ctx, CreateOrderInput{
		ExternalRef: externalRef,
		CustomerID:  customerID,
		ShipAddress: shipAddress,
		Items:       items,
	})
}

// ApplyEvent runs one lifecycle event through the engine's guards and
// persists the outcome: the new order version, the audit transition, the
// outbox record, and the task chain when picking starts. A replay served
// from the idempotency cache persists nothing.
func (s *Service) ApplyEvent(ctx context.Context, orderID string, event domain.OrderEvent, expectedVersion *int64) (domain.OrderEventResult, error) {
	unlock := s.lockOrder(orderID)
	defer unlock()

	order, err := s.deps.Orders.Get(orderID)
	if err != nil {
		return domain.OrderEventResult{}, err
	}

	start := s.now()
	result, err := s.engine.ApplyEventWithGuards(order, event, expectedVersion, s.deps.Idempotency)
	if err != nil {
		s.recordRejection(err)
		return domain.OrderEventResult{}, err
	}

	if result.Order.Version <= order.Version {
		// Cached replay; the stored order already reflects it.
		s.metrics.RecordIdempotentReplay()
		return result, nil
	}

	if err := s.deps.Orders.Save(result.Order); err != nil {
		if domain.IsVersionConflict(err) {
			s.metrics.RecordVersionConflict()
		}
		return domain.OrderEventResult{}, fmt.Errorf("failed to save order %s: %w", orderID, err)
	}
	if err := s.deps.Transitions.Append(result.Transition); err != nil {
		return domain.OrderEventResult{}, fmt.Errorf("failed to append transition: %w", err)
	}

	if result.Order.Status == domain.OrderStatusEmSeparacao {
		tasks := taskflow.CreateDefaultTasks(result.Order.ID, result.Order.Items, s.now().UTC())
		if err := s.deps.Tasks.CreateBatch(tasks); err != nil {
			return domain.OrderEventResult{}, fmt.Errorf("failed to create fulfillment tasks: %w", err)
		}
	}

	s.enqueueOutbox(result.Order.ID, kafka.NewTransitionPayload(result.Transition))
	s.metrics.RecordTransition(string(event.Type), s.now().Sub(start))

	s.logger.WithFields(log.Fields{
		"order_id": orderID,
		"event":    event.Type,
		"from":     result.Transition.FromStatus,
		"to":       result.Transition.ToStatus,
		"actor_id": event.ActorID,
		"version":  result.Order.Version,
	}).Info("order transition applied")
	return result, nil
}

// ScanInput carries one handheld reading.
type ScanInput struct {
	OrderID        string
	TaskID         string
	Type           domain.ScanType
	Value          string
	Quantity       *float64
	ActorID        string
	IdempotencyKey string
}

// RecordScan appends a scan to the order's history, replays the full
// sequence through the double-check validator and mirrors the validated
// progress onto the picking task. The validation result reports errors
// without failing the call; a scan is a fact even when it is wrong.
func (s *Service) RecordScan(ctx context.Context, input ScanInput) (doublecheck.Result, error) {
	unlock := s.lockOrder(input.OrderID)
	defer unlock()

	order, err := s.deps.Orders.Get(input.OrderID)
	if err != nil {
		return doublecheck.Result{}, err
	}

	scan := domain.ScanEvent{
		ID:             s.newID(),
		OrderID:        input.OrderID,
		TaskID:         input.TaskID,
		Type:           input.Type,
		Value:          input.Value,
		Quantity:       input.Quantity,
		ActorID:        input.ActorID,
		IdempotencyKey: input.IdempotencyKey,
		OccurredAt:     s.now().UTC(),
	}
	if err := s.deps.Scans.Append(scan); err != nil {
		return doublecheck.Result{}, fmt.Errorf("failed to append scan: %w", err)
	}
	s.metrics.RecordScan(string(scan.Type))

	result, err := s.replayScans(order)
	if err != nil {
		return doublecheck.Result{}, err
	}

	if err := s.syncPickingProgress(order.ID, result); err != nil {
		return doublecheck.Result{}, err
	}
	return result, nil
}

// CheckStatus replays the order's stored scan history without adding to it.
func (s *Service) CheckStatus(ctx context.Context, orderID string) (doublecheck.Result, error) {
	order, err := s.deps.Orders.Get(orderID)
	if err != nil {
		return doublecheck.Result{}, err
	}
	return s.replayScans(order)
}

func (s *Service) replayScans(order domain.Order) (doublecheck.Result, error) {
	scans, err := s.deps.Scans.ListByOrder(order.ID)
	if err != nil {
		return doublecheck.Result{}, fmt.Errorf("failed to list scans: %w", err)
	}
	return doublecheck.Validate(doublecheck.Expectation{
		ShipAddress: order.ShipAddress,
		Items:       order.Items,
	}, scans), nil
}

// syncPickingProgress pushes validated quantities onto the in-progress
// picking task. Progress is derived from the validator's remaining map so
// the task never counts a scan the validator refused.
func (s *Service) syncPickingProgress(orderID string, result doublecheck.Result) error {
	tasks, err := s.deps.Tasks.ListByOrder(orderID)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}

	for _, task := range tasks {
		if task.Type != domain.TaskTypePicking || task.Status != domain.TaskStatusInProgress {
			continue
		}

		updated := task
		for i := range updated.Lines {
			remaining, tracked := result.Remaining[domain.NormalizeSKU(updated.Lines[i].SKU)]
			if !tracked {
				continue
			}
			scanned := updated.Lines[i].Quantity - remaining
			if scanned < 0 {
				scanned = 0
			}
			delta := scanned - updated.Lines[i].ScannedQuantity
			if delta == 0 {
				continue
			}
			next, err := taskflow.RecordScan(updated, updated.Lines[i].SKU, delta)
			if err != nil {
				return err
			}
			updated = next
		}

		if err := s.deps.Tasks.Save(updated); err != nil {
			return fmt.Errorf("failed to save task %s: %w", updated.ID, err)
		}
		return nil
	}
	return nil
}

// StartTask moves a pending task to IN_PROGRESS, checking its dependency.
func (s *Service) StartTask(ctx context.Context, taskID string) (domain.Task, error) {
	task, err := s.deps.Tasks.Get(taskID)
	if err != nil {
		return domain.Task{}, err
	}

	unlock := s.lockOrder(task.OrderID)
	defer unlock()

	// Re-read under the lock; the first read only located the order.
	task, err = s.deps.Tasks.Get(taskID)
	if err != nil {
		return domain.Task{}, err
	}

	var dependency *domain.Task
	if task.DependsOn != "" {
		dep, err := s.deps.Tasks.Get(task.DependsOn)
		if err != nil {
			return domain.Task{}, fmt.Errorf("failed to load dependency of task %s: %w", taskID, err)
		}
		dependency = &dep
	}

	started, err := taskflow.StartTask(task, dependency, s.now().UTC())
	if err != nil {
		return domain.Task{}, err
	}
	if err := s.deps.Tasks.Save(started); err != nil {
		return domain.Task{}, fmt.Errorf("failed to save task %s: %w", taskID, err)
	}
	return started, nil
}

// CompleteTask closes an in-progress task.
func (s *Service) CompleteTask(ctx context.Context, taskID string) (domain.Task, error) {
	task, err := s.deps.Tasks.Get(taskID)
	if err != nil {
		return domain.Task{}, err
	}

	unlock := s.lockOrder(task.OrderID)
	defer unlock()

	task, err = s.deps.Tasks.Get(taskID)
	if err != nil {
		return domain.Task{}, err
	}

	completed, err := taskflow.CompleteTask(task, s.now().UTC())
	if err != nil {
		return domain.Task{}, err
	}
	if err := s.deps.Tasks.Save(completed); err != nil {
		return domain.Task{}, fmt.Errorf("failed to save task %s: %w", taskID, err)
	}
	return completed, nil
}

// GetOrder returns one order.
func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return s.deps.Orders.Get(orderID)
}

// ListOrders returns orders filtered by status; an empty status means all.
func (s *Service) ListOrders(ctx context.Context, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	return s.deps.Orders.List(status, limit)
}

// ListTransitions returns the order's audit trail.
func (s *Service) ListTransitions(ctx context.Context, orderID string) ([]domain.OrderTransition, error) {
	if _, err := s.deps.Orders.Get(orderID); err != nil {
		return nil, err
	}
	return s.deps.Transitions.List(orderID)
}

// ListTasks returns the order's fulfillment tasks in stage order.
func (s *Service) ListTasks(ctx context.Context, orderID string) ([]domain.Task, error) {
	if _, err := s.deps.Orders.Get(orderID); err != nil {
		return nil, err
	}
	return s.deps.Tasks.ListByOrder(orderID)
}

func (s *Service) enqueueOutbox(orderID string, payload kafka.OrderEventPayload) {
	if s.deps.Outbox == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Error("failed to encode outbox payload")
		return
	}
	msg := domain.OutboxMessage{
		ID:            s.newID(),
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     string(payload.EventType),
		Payload:       data,
	}
	if _, err := s.deps.Outbox.Enqueue(msg); err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Error("failed to enqueue outbox message")
	}
}

func (s *Service) recordRejection(err error) {
	switch {
	case domain.IsVersionConflict(err):
		s.metrics.RecordVersionConflict()
	case errors.Is(err, domain.ErrInvalidState):
		s.metrics.RecordRejection("invalid_state")
	case errors.Is(err, domain.ErrUnknownEvent):
		s.metrics.RecordRejection("unknown_event")
	case errors.Is(err, domain.ErrIllegalTransition):
		s.metrics.RecordRejection("illegal_transition")
	case errors.Is(err, domain.ErrForbidden):
		s.metrics.RecordRejection("forbidden")
	case errors.Is(err, domain.ErrIdempotencyConflict):
		s.metrics.RecordRejection("idempotency_conflict")
	default:
		s.metrics.RecordRejection("other")
	}
}
