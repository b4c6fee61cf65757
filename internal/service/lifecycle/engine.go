// Package lifecycle implements the order state machine: explicit transition
// table, role permissions, optimistic-concurrency guard and request
// idempotency. The engine holds no shared mutable state; every apply is a
// pure transformation from (order, event) to (new order, audit record), so
// concurrent operators are arbitrated solely by the version guard.
package lifecycle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/galpao/wms/internal/domain"
)

// transitionRule is one row of the state machine table.
type transitionRule struct {
	From domain.OrderStatus
	To   domain.OrderStatus
}

// transitionTable maps each event type to its single (from, to) row.
// No implicit fallthrough: an event either matches its row or fails.
var transitionTable = map[domain.OrderEventType]transitionRule{
	domain.EventIniciarSeparacao:   {From: domain.OrderStatusASeparar, To: domain.OrderStatusEmSeparacao},
	domain.EventFinalizarSeparacao: {From: domain.OrderStatusEmSeparacao, To: domain.OrderStatusConferido},
	domain.EventSolicitarCotacao:   {From: domain.OrderStatusConferido, To: domain.OrderStatusAguardandoCotacao},
	domain.EventConfirmarCotacao:   {From: domain.OrderStatusAguardandoCotacao, To: domain.OrderStatusAguardandoColeta},
	domain.EventDespachar:          {From: domain.OrderStatusAguardandoColeta, To: domain.OrderStatusDespachado},
}

// Policy maps event types to the roles allowed to issue them.
type Policy map[domain.OrderEventType][]domain.ActorRole

// DefaultPolicy returns the warehouse's standing permission set. Finishing
// separation is the conferral step, so both pickers and checkers may issue
// it; quotation is supervisor-only.
func DefaultPolicy() Policy {
	return Policy{
		domain.EventIniciarSeparacao:   {domain.RolePicker, domain.RoleSupervisor},
		domain.EventFinalizarSeparacao: {domain.RolePicker, domain.RoleChecker, domain.RoleSupervisor},
		domain.EventSolicitarCotacao:   {domain.RoleSupervisor},
		domain.EventConfirmarCotacao:   {domain.RoleSupervisor},
		domain.EventDespachar:          {domain.RoleShipper, domain.RoleSupervisor},
	}
}

// Allows reports whether role may issue eventType.
func (p Policy) Allows(eventType domain.OrderEventType, role domain.ActorRole) bool {
	for _, allowed := range p[eventType] {
		if allowed == role {
			return true
		}
	}
	return false
}

// Engine applies order events. Safe for concurrent use.
type Engine struct {
	policy         Policy
	idempotencyTTL time.Duration
	now            func() time.Time
	newID          func() string
}

// Option tunes the engine.
type Option func(*Engine)

// WithPolicy overrides the default permission policy.
func WithPolicy(policy Policy) Option {
	return func(e *Engine) { e.policy = policy }
}

// WithIdempotencyTTL sets how long cached apply results are retained.
func WithIdempotencyTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.idempotencyTTL = ttl }
}

// NewEngine builds an engine with the default policy and a 24h idempotency TTL.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		policy:         DefaultPolicy(),
		idempotencyTTL: 24 * time.Hour,
		now:            time.Now,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ApplyEvent validates the event against the transition table and the
// permission policy. On success it returns a new Order (target status,
// Version+1) and the audit transition; the input order is never mutated.
// Persistence of both values is the caller's responsibility.
func (e *Engine) ApplyEvent(order domain.Order, event domain.OrderEvent) (domain.OrderEventResult, error) {
	if order.Status.Terminal() {
		return domain.OrderEventResult{}, fmt.Errorf("order %s is %s: %w", order.ID, order.Status, domain.ErrInvalidState)
	}

	rule, known := transitionTable[event.Type]
	if !known {
		return domain.OrderEventResult{}, fmt.Errorf("event %q: %w", event.Type, domain.ErrUnknownEvent)
	}
	if rule.From != order.Status {
		return domain.OrderEventResult{}, fmt.Errorf("event %s from status %s: %w", event.Type, order.Status, domain.ErrIllegalTransition)
	}
	if !e.policy.Allows(event.Type, event.ActorRole) {
		return domain.OrderEventResult{}, fmt.Errorf("role %s on event %s: %w", event.ActorRole, event.Type, domain.ErrForbidden)
	}

	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = e.now().UTC()
	}

	next := order
	next.Items = domain.CloneItems(order.Items)
	next.Status = rule.To
	next.Version = order.Version + 1
	next.UpdatedAt = occurred

	transition := domain.OrderTransition{
		ID:             e.newID(),
		OrderID:        order.ID,
		FromStatus:     order.Status,
		ToStatus:       rule.To,
		EventType:      event.Type,
		ActorID:        event.ActorID,
		ActorRole:      event.ActorRole,
		IdempotencyKey: event.IdempotencyKey,
		Reason:         event.Reason,
		Metadata:       event.Metadata,
		OccurredAt:     occurred,
	}

	return domain.OrderEventResult{Order: next, Transition: transition}, nil
}

// ApplyEventWithGuards wraps ApplyEvent with the optimistic-version guard
// and the idempotency cache.
//
// The idempotency lookup runs first so that an exact replay of the call
// that produced the current version short-circuits to its cached result;
// the version guard then rejects any request carrying a stale snapshot.
// Results are cached only after a successful version-guarded apply.
func (e *Engine) ApplyEventWithGuards(
	order domain.Order,
	event domain.OrderEvent,
	expectedVersion *int64,
	store domain.IdempotencyRepository,
) (domain.OrderEventResult, error) {
	useStore := store != nil && event.IdempotencyKey != ""

	var fingerprint string
	if useStore {
		fingerprint = Fingerprint(event)
		record, err := store.Get(order.ID, event.Type, event.IdempotencyKey)
		switch {
		case err == nil:
			if record.Fingerprint != fingerprint {
				return domain.OrderEventResult{}, fmt.Errorf("key %q on order %s: %w", event.IdempotencyKey, order.ID, domain.ErrIdempotencyConflict)
			}
			return record.Result, nil
		case errors.Is(err, domain.ErrIdempotencyRecordNotFound):
			// First sighting of this key; fall through to apply.
		default:
			return domain.OrderEventResult{}, fmt.Errorf("idempotency lookup: %w", err)
		}
	}

	if expectedVersion != nil && *expectedVersion != order.Version {
		return domain.OrderEventResult{}, &domain.VersionConflictError{Expected: *expectedVersion, Actual: order.Version}
	}

	result, err := e.ApplyEvent(order, event)
	if err != nil {
		return domain.OrderEventResult{}, err
	}

	if useStore {
		now := e.now().UTC()
		record := domain.IdempotencyRecord{
			OrderID:     order.ID,
			EventType:   event.Type,
			Key:         event.IdempotencyKey,
			Fingerprint: fingerprint,
			Result:      result,
			TTLAt:       now.Add(e.idempotencyTTL),
			CreatedAt:   now,
		}
		if err := store.Put(record); err != nil {
			return domain.OrderEventResult{}, fmt.Errorf("idempotency store: %w", err)
		}
	}

	return result, nil
}

// fingerprintPayload fixes the set of fields that identify a request.
// The idempotency key itself is excluded: the key selects the record, the
// fingerprint proves the retried payload is unchanged.
type fingerprintPayload struct {
	EventType domain.OrderEventType `json:"event_type"`
	ActorID   string                `json:"actor_id"`
	ActorRole domain.ActorRole      `json:"actor_role"`
	Reason    string                `json:"reason"`
	Metadata  domain.Metadata       `json:"metadata,omitempty"`
}

// Fingerprint produces a stable hash of the event payload. encoding/json
// emits map keys in sorted order, so metadata key ordering does not change
// the hash.
func Fingerprint(event domain.OrderEvent) string {
	payload, err := json.Marshal(fingerprintPayload{
		EventType: event.Type,
		ActorID:   event.ActorID,
		ActorRole: event.ActorRole,
		Reason:    event.Reason,
		Metadata:  event.Metadata,
	})
	if err != nil {
		// Metadata values are plain JSON scalars/maps in practice; a
		// marshal failure still needs a deterministic fallback that keeps
		// metadata in the hash so differing payloads never collide.
		payload = []byte(fmt.Sprintf("%s|%s|%s|%s|%v", event.Type, event.ActorID, event.ActorRole, event.Reason, event.Metadata))
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
