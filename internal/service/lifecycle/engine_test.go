package lifecycle_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galpao/wms/internal/domain"
	"github.com/galpao/wms/internal/service/lifecycle"
	"github.com/galpao/wms/internal/storage/memory"
)

func makeOrder(status domain.OrderStatus, version int64) domain.Order {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:          "order-1",
		ExternalRef: "SAP-77",
		CustomerID:  "customer-1",
		ShipAddress: "AV. CENTRAL, 500",
		Items:       []domain.OrderItem{{SKU: "SKU-1", Quantity: 2}},
		Status:      status,
		Version:     version,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func event(typ domain.OrderEventType, role domain.ActorRole) domain.OrderEvent {
	return domain.OrderEvent{Type: typ, ActorID: "actor-1", ActorRole: role}
}

func TestApplyEvent_FullLifecycle(t *testing.T) {
	engine := lifecycle.NewEngine()

	steps := []struct {
		from  domain.OrderStatus
		typ   domain.OrderEventType
		role  domain.ActorRole
		to    domain.OrderStatus
	}{
		{domain.OrderStatusASeparar, domain.EventIniciarSeparacao, domain.RolePicker, domain.OrderStatusEmSeparacao},
		{domain.OrderStatusEmSeparacao, domain.EventFinalizarSeparacao, domain.RoleChecker, domain.OrderStatusConferido},
		{domain.OrderStatusConferido, domain.EventSolicitarCotacao, domain.RoleSupervisor, domain.OrderStatusAguardandoCotacao},
		{domain.OrderStatusAguardandoCotacao, domain.EventConfirmarCotacao, domain.RoleSupervisor, domain.OrderStatusAguardandoColeta},
		{domain.OrderStatusAguardandoColeta, domain.EventDespachar, domain.RoleShipper, domain.OrderStatusDespachado},
	}

	order := makeOrder(domain.OrderStatusASeparar, 0)
	for i, step := range steps {
		require.Equal(t, step.from, order.Status)

		result, err := engine.ApplyEvent(order, event(step.typ, step.role))
		require.NoError(t, err, "step %d", i)

		assert.Equal(t, step.to, result.Order.Status)
		assert.Equal(t, order.Version+1, result.Order.Version, "version must increment by exactly 1")
		assert.Equal(t, step.from, result.Transition.FromStatus)
		assert.Equal(t, step.to, result.Transition.ToStatus)
		assert.Equal(t, step.typ, result.Transition.EventType)

		order = result.Order
	}
}

func TestApplyEvent_TerminalOrderRejectsEverything(t *testing.T) {
	engine := lifecycle.NewEngine()
	order := makeOrder(domain.OrderStatusDespachado, 5)

	for _, typ := range []domain.OrderEventType{
		domain.EventIniciarSeparacao, domain.EventFinalizarSeparacao,
		domain.EventSolicitarCotacao, domain.EventConfirmarCotacao, domain.EventDespachar,
	} {
		_, err := engine.ApplyEvent(order, event(typ, domain.RoleSupervisor))
		assert.ErrorIs(t, err, domain.ErrInvalidState, "event %s", typ)
	}
}

func TestApplyEvent_UnknownEvent(t *testing.T) {
	engine := lifecycle.NewEngine()
	order := makeOrder(domain.OrderStatusASeparar, 0)

	_, err := engine.ApplyEvent(order, event("CANCELAR", domain.RoleSupervisor))
	assert.ErrorIs(t, err, domain.ErrUnknownEvent)
}

func TestApplyEvent_IllegalTransition(t *testing.T) {
	engine := lifecycle.NewEngine()

	// Every valid event type fired from every wrong status must fail with
	// IllegalTransition and leave the input untouched.
	valid := map[domain.OrderEventType]domain.OrderStatus{
		domain.EventIniciarSeparacao:   domain.OrderStatusASeparar,
		domain.EventFinalizarSeparacao: domain.OrderStatusEmSeparacao,
		domain.EventSolicitarCotacao:   domain.OrderStatusConferido,
		domain.EventConfirmarCotacao:   domain.OrderStatusAguardandoCotacao,
		domain.EventDespachar:          domain.OrderStatusAguardandoColeta,
	}
	statuses := []domain.OrderStatus{
		domain.OrderStatusASeparar, domain.OrderStatusEmSeparacao, domain.OrderStatusConferido,
		domain.OrderStatusAguardandoCotacao, domain.OrderStatusAguardandoColeta,
	}

	for typ, from := range valid {
		for _, status := range statuses {
			if status == from {
				continue
			}
			order := makeOrder(status, 3)
			_, err := engine.ApplyEvent(order, event(typ, domain.RoleSupervisor))
			assert.ErrorIs(t, err, domain.ErrIllegalTransition, "event %s from %s", typ, status)
			assert.Equal(t, status, order.Status, "input order must not be mutated")
			assert.EqualValues(t, 3, order.Version)
		}
	}
}

func TestApplyEvent_Permissions(t *testing.T) {
	engine := lifecycle.NewEngine()

	cases := []struct {
		status  domain.OrderStatus
		typ     domain.OrderEventType
		role    domain.ActorRole
		allowed bool
	}{
		{domain.OrderStatusASeparar, domain.EventIniciarSeparacao, domain.RolePicker, true},
		{domain.OrderStatusASeparar, domain.EventIniciarSeparacao, domain.RoleShipper, false},
		{domain.OrderStatusEmSeparacao, domain.EventFinalizarSeparacao, domain.RoleChecker, true},
		{domain.OrderStatusEmSeparacao, domain.EventFinalizarSeparacao, domain.RolePicker, true},
		{domain.OrderStatusConferido, domain.EventSolicitarCotacao, domain.RoleChecker, false},
		{domain.OrderStatusConferido, domain.EventSolicitarCotacao, domain.RoleSupervisor, true},
		{domain.OrderStatusAguardandoColeta, domain.EventDespachar, domain.RoleShipper, true},
		{domain.OrderStatusAguardandoColeta, domain.EventDespachar, domain.RolePicker, false},
	}

	for _, tc := range cases {
		order := makeOrder(tc.status, 0)
		_, err := engine.ApplyEvent(order, event(tc.typ, tc.role))
		if tc.allowed {
			assert.NoError(t, err, "%s as %s", tc.typ, tc.role)
		} else {
			assert.ErrorIs(t, err, domain.ErrForbidden, "%s as %s", tc.typ, tc.role)
		}
	}
}

func TestApplyEvent_UsesEventTimestamp(t *testing.T) {
	engine := lifecycle.NewEngine()
	order := makeOrder(domain.OrderStatusASeparar, 0)

	occurred := time.Date(2025, 5, 20, 8, 30, 0, 0, time.UTC)
	ev := event(domain.EventIniciarSeparacao, domain.RolePicker)
	ev.OccurredAt = occurred

	result, err := engine.ApplyEvent(order, ev)
	require.NoError(t, err)
	assert.Equal(t, occurred, result.Order.UpdatedAt)
	assert.Equal(t, occurred, result.Transition.OccurredAt)
}

func TestApplyEventWithGuards_VersionConflict(t *testing.T) {
	engine := lifecycle.NewEngine()
	order := makeOrder(domain.OrderStatusEmSeparacao, 1)

	stale := int64(0)
	_, err := engine.ApplyEventWithGuards(order, event(domain.EventFinalizarSeparacao, domain.RoleChecker), &stale, nil)
	require.Error(t, err)
	assert.True(t, domain.IsVersionConflict(err))

	current := int64(1)
	_, err = engine.ApplyEventWithGuards(order, event(domain.EventFinalizarSeparacao, domain.RoleChecker), &current, nil)
	assert.NoError(t, err)
}

func TestApplyEventWithGuards_IdempotentReplay(t *testing.T) {
	engine := lifecycle.NewEngine()
	store := memory.NewIdempotencyRepository()
	order := makeOrder(domain.OrderStatusASeparar, 0)

	ev := event(domain.EventIniciarSeparacao, domain.RolePicker)
	ev.IdempotencyKey = "req-1"
	ev.Metadata = domain.Metadata{"device": "coletor-7", "dock": 3}

	expected := int64(0)
	first, err := engine.ApplyEventWithGuards(order, ev, &expected, store)
	require.NoError(t, err)

	// The replay carries the same stale expected version the original call
	// used; the cached result must win before the version guard runs.
	replay, err := engine.ApplyEventWithGuards(first.Order, ev, &expected, store)
	require.NoError(t, err)

	assert.Equal(t, first, replay, "replay must return the cached result verbatim")
}

func TestApplyEventWithGuards_IdempotencyConflict(t *testing.T) {
	engine := lifecycle.NewEngine()
	store := memory.NewIdempotencyRepository()
	order := makeOrder(domain.OrderStatusASeparar, 0)

	ev := event(domain.EventIniciarSeparacao, domain.RolePicker)
	ev.IdempotencyKey = "req-1"
	_, err := engine.ApplyEventWithGuards(order, ev, nil, store)
	require.NoError(t, err)

	altered := ev
	altered.Reason = "outro motivo"
	_, err = engine.ApplyEventWithGuards(order, altered, nil, store)
	assert.ErrorIs(t, err, domain.ErrIdempotencyConflict)
}

func TestApplyEventWithGuards_FailedApplyNotCached(t *testing.T) {
	engine := lifecycle.NewEngine()
	store := memory.NewIdempotencyRepository()
	order := makeOrder(domain.OrderStatusConferido, 2)

	// Forbidden role: the apply fails, so nothing may be cached for the key.
	ev := event(domain.EventSolicitarCotacao, domain.RolePicker)
	ev.IdempotencyKey = "req-9"
	_, err := engine.ApplyEventWithGuards(order, ev, nil, store)
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = store.Get(order.ID, ev.Type, ev.IdempotencyKey)
	assert.ErrorIs(t, err, domain.ErrIdempotencyRecordNotFound)
}

func TestFingerprint_StableAcrossMetadataOrdering(t *testing.T) {
	a := domain.OrderEvent{
		Type: domain.EventDespachar, ActorID: "a1", ActorRole: domain.RoleShipper,
		Metadata: domain.Metadata{"carrier": "jamef", "truck": "ABC-1234"},
	}
	b := domain.OrderEvent{
		Type: domain.EventDespachar, ActorID: "a1", ActorRole: domain.RoleShipper,
		Metadata: domain.Metadata{"truck": "ABC-1234", "carrier": "jamef"},
	}
	assert.Equal(t, lifecycle.Fingerprint(a), lifecycle.Fingerprint(b))

	c := b
	c.ActorID = "a2"
	assert.NotEqual(t, lifecycle.Fingerprint(a), lifecycle.Fingerprint(c))
}

func TestFingerprint_UnmarshalableMetadataStillDistinguishes(t *testing.T) {
	// NaN and Inf are valid Metadata values but not valid JSON, forcing the
	// non-JSON fingerprint path.
	a := domain.OrderEvent{
		Type: domain.EventDespachar, ActorID: "a1", ActorRole: domain.RoleShipper,
		Metadata: domain.Metadata{"weight": math.NaN()},
	}
	b := domain.OrderEvent{
		Type: domain.EventDespachar, ActorID: "a1", ActorRole: domain.RoleShipper,
		Metadata: domain.Metadata{"weight": math.Inf(1)},
	}

	assert.NotEqual(t, lifecycle.Fingerprint(a), lifecycle.Fingerprint(b))
	assert.Equal(t, lifecycle.Fingerprint(a), lifecycle.Fingerprint(a))
}
