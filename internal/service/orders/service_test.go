package orders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galpao/wms/internal/domain"
	"github.com/galpao/wms/internal/storage/memory"
)

func newTestService(t *testing.T) (*Service, Deps) {
	t.Helper()
	deps := Deps{
		Orders:      memory.NewOrderRepository(),
		Tasks:       memory.NewTaskRepository(),
		Transitions: memory.NewTransitionRepository(),
		Scans:       memory.NewScanRepository(),
		Idempotency: memory.NewIdempotencyRepository(),
		Outbox:      memory.NewOutboxRepository(),
	}
	return NewService(deps), deps
}

func createTestOrder(t *testing.T, svc *Service) domain.Order {
	t.Helper()
	order, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		CustomerID:  "C001",
		ShipAddress: "Rua das Flores, 10",
		Items: []domain.OrderItem{
			{SKU: "sku-a", Quantity: 2},
			{SKU: "SKU-B", Quantity: 1},
		},
	})
	require.NoError(t, err)
	return order
}

func floatPtr(v float64) *float64 { return &v }

func TestCreateOrderStoresNormalizedOrder(t *testing.T) {
	svc, deps := newTestService(t)

	order := createTestOrder(t, svc)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, domain.OrderStatusASeparar, order.Status)
	assert.Equal(t, int64(1), order.Version)
	assert.Equal(t, "SKU-A", order.Items[0].SKU)

	stored, err := deps.Orders.Get(order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, stored.ID)

	pending, err := deps.Outbox.PullPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "order.created", pending[0].EventType)
	assert.Equal(t, order.ID, pending[0].AggregateID)
}

func TestCreateOrderRejectsInvalidInput(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		ShipAddress: "Rua A",
		Items:       []domain.OrderItem{{SKU: "", Quantity: 0}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCustomerRequired)
	assert.ErrorIs(t, err, domain.ErrItemSKURequired)
	assert.ErrorIs(t, err, domain.ErrItemQtyInvalid)
}

func TestImportOrderIsIdempotentPerExternalRef(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	items := []domain.OrderItem{{SKU: "SKU-A", Quantity: 1}}

	first, err := svc.ImportOrder(ctx, "101", "C001", "Rua A", items)
	require.NoError(t, err)

	second, err := svc.ImportOrder(ctx, "101", "C001", "Rua A", items)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestApplyEventPersistsTransitionAndCreatesTasks(t *testing.T) {
	svc, deps := newTestService(t)
	ctx := context.Background()
	order := createTestOrder(t, svc)

	result, err := svc.ApplyEvent(ctx, order.ID, domain.OrderEvent{
		Type:      domain.EventIniciarSeparacao,
		ActorID:   "picker-1",
		ActorRole: domain.RolePicker,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusEmSeparacao, result.Order.Status)
	assert.Equal(t, int64(2), result.Order.Version)

	transitions, err := deps.Transitions.List(order.ID)
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Equal(t, domain.EventIniciarSeparacao, transitions[0].EventType)

	tasks, err := deps.Tasks.ListByOrder(order.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, domain.TaskTypePicking, tasks[0].Type)
	assert.Equal(t, domain.TaskTypePacking, tasks[1].Type)
	assert.Equal(t, domain.TaskTypeShipping, tasks[2].Type)

	pending, err := deps.Outbox.PullPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "order.status_changed", pending[1].EventType)
}

func TestApplyEventVersionConflict(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	order := createTestOrder(t, svc)

	stale := int64(7)
	_, err := svc.ApplyEvent(ctx, order.ID, domain.OrderEvent{
		Type:      domain.EventIniciarSeparacao,
		ActorID:   "picker-1",
		ActorRole: domain.RolePicker,
	}, &stale)
	require.Error(t, err)
	assert.True(t, domain.IsVersionConflict(err))
}

func TestApplyEventIdempotentReplayDoesNotPersistTwice(t *testing.T) {
	svc, deps := newTestService(t)
	ctx := context.Background()
	order := createTestOrder(t, svc)

	event := domain.OrderEvent{
		Type:           domain.EventIniciarSeparacao,
		ActorID:        "picker-1",
		ActorRole:      domain.RolePicker,
		IdempotencyKey: "req-1",
	}

	first, err := svc.ApplyEvent(ctx, order.ID, event, nil)
	require.NoError(t, err)

	replay, err := svc.ApplyEvent(ctx, order.ID, event, nil)
	require.NoError(t, err)
	assert.Equal(t, first.Order.Version, replay.Order.Version)
	assert.Equal(t, first.Transition.ID, replay.Transition.ID)

	transitions, err := deps.Transitions.List(order.ID)
	require.NoError(t, err)
	assert.Len(t, transitions, 1)

	stored, err := deps.Orders.Get(order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
}

func TestApplyEventRejectsUnauthorizedRole(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	order := createTestOrder(t, svc)

	_, err := svc.ApplyEvent(ctx, order.ID, domain.OrderEvent{
		Type:      domain.EventIniciarSeparacao,
		ActorID:   "shipper-1",
		ActorRole: domain.RoleShipper,
	}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestApplyEventUnknownOrder(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ApplyEvent(context.Background(), "missing", domain.OrderEvent{
		Type:      domain.EventIniciarSeparacao,
		ActorRole: domain.RolePicker,
	}, nil)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func startPicking(t *testing.T, svc *Service, orderID string) domain.Task {
	t.Helper()
	ctx := context.Background()

	_, err := svc.ApplyEvent(ctx, orderID, domain.OrderEvent{
		Type:      domain.EventIniciarSeparacao,
		ActorID:   "picker-1",
		ActorRole: domain.RolePicker,
	}, nil)
	require.NoError(t, err)

	tasks, err := svc.ListTasks(ctx, orderID)
	require.NoError(t, err)

	picking, err := svc.StartTask(ctx, tasks[0].ID)
	require.NoError(t, err)
	return picking
}

func TestRecordScanValidatesAndFeedsPickingTask(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	order := createTestOrder(t, svc)
	picking := startPicking(t, svc, order.ID)

	result, err := svc.RecordScan(ctx, ScanInput{
		OrderID: order.ID,
		TaskID:  picking.ID,
		Type:    domain.ScanTypeAddress,
		Value:   "Rua das Flores, 10",
		ActorID: "checker-1",
	})
	require.NoError(t, err)
	assert.True(t, result.Ok)
	assert.False(t, result.IsComplete)

	_, err = svc.RecordScan(ctx, ScanInput{
		OrderID: order.ID,
		TaskID:  picking.ID,
		Type:    domain.ScanTypeProduct,
		Value:   "SKU-A",
		ActorID: "checker-1",
	})
	require.NoError(t, err)

	result, err = svc.RecordScan(ctx, ScanInput{
		OrderID:  order.ID,
		TaskID:   picking.ID,
		Type:     domain.ScanTypeQuantity,
		Quantity: floatPtr(2),
		ActorID:  "checker-1",
	})
	require.NoError(t, err)
	assert.True(t, result.Ok)
	assert.Equal(t, 0.0, result.Remaining["SKU-A"])
	assert.Equal(t, 1.0, result.Remaining["SKU-B"])

	tasks, err := svc.ListTasks(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, tasks[0].Lines[0].ScannedQuantity)
	assert.Equal(t, 0.0, tasks[0].Lines[1].ScannedQuantity)
}

func TestRecordScanReportsAddressMismatchWithoutFailing(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	order := createTestOrder(t, svc)
	picking := startPicking(t, svc, order.ID)

	result, err := svc.RecordScan(ctx, ScanInput{
		OrderID: order.ID,
		TaskID:  picking.ID,
		Type:    domain.ScanTypeAddress,
		Value:   "Av. Errada, 99",
		ActorID: "checker-1",
	})
	require.NoError(t, err)
	assert.False(t, result.Ok)
	assert.NotEmpty(t, result.Errors)
}

func TestStartTaskEnforcesDependencyChain(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	order := createTestOrder(t, svc)

	_, err := svc.ApplyEvent(ctx, order.ID, domain.OrderEvent{
		Type:      domain.EventIniciarSeparacao,
		ActorID:   "picker-1",
		ActorRole: domain.RolePicker,
	}, nil)
	require.NoError(t, err)

	tasks, err := svc.ListTasks(ctx, order.ID)
	require.NoError(t, err)

	_, err = svc.StartTask(ctx, tasks[1].ID)
	assert.ErrorIs(t, err, domain.ErrDependencyNotReady)
}

func TestCompleteTaskRequiresFullyScannedLines(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	order := createTestOrder(t, svc)
	picking := startPicking(t, svc, order.ID)

	_, err := svc.CompleteTask(ctx, picking.ID)
	assert.ErrorIs(t, err, domain.ErrIncompleteLines)

	_, err = svc.RecordScan(ctx, ScanInput{
		OrderID: order.ID,
		Type:    domain.ScanTypeAddress,
		Value:   "Rua das Flores, 10",
	})
	require.NoError(t, err)
	for _, step := range []struct {
		sku string
		qty float64
	}{{"SKU-A", 2}, {"SKU-B", 1}} {
		_, err = svc.RecordScan(ctx, ScanInput{OrderID: order.ID, Type: domain.ScanTypeProduct, Value: step.sku})
		require.NoError(t, err)
		_, err = svc.RecordScan(ctx, ScanInput{OrderID: order.ID, Type: domain.ScanTypeQuantity, Quantity: floatPtr(step.qty)})
		require.NoError(t, err)
	}

	completed, err := svc.CompleteTask(ctx, picking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, completed.Status)
}

func TestFullLifecycleToDispatch(t *testing.T) {
	svc, deps := newTestService(t)
	ctx := context.Background()
	order := createTestOrder(t, svc)

	steps := []struct {
		event domain.OrderEventType
		role  domain.ActorRole
		want  domain.OrderStatus
	}{
		{domain.EventIniciarSeparacao, domain.RolePicker, domain.OrderStatusEmSeparacao},
		{domain.EventFinalizarSeparacao, domain.RoleChecker, domain.OrderStatusConferido},
		{domain.EventSolicitarCotacao, domain.RoleSupervisor, domain.OrderStatusAguardandoCotacao},
		{domain.EventConfirmarCotacao, domain.RoleSupervisor, domain.OrderStatusAguardandoColeta},
		{domain.EventDespachar, domain.RoleShipper, domain.OrderStatusDespachado},
	}
	for _, step := range steps {
		result, err := svc.ApplyEvent(ctx, order.ID, domain.OrderEvent{
			Type:      step.event,
			ActorID:   "actor",
			ActorRole: step.role,
		}, nil)
		require.NoError(t, err, "event %s", step.event)
		assert.Equal(t, step.want, result.Order.Status)
	}

	final, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDespachado, final.Status)
	assert.Equal(t, int64(6), final.Version)

	transitions, err := deps.Transitions.List(order.ID)
	require.NoError(t, err)
	assert.Len(t, transitions, 5)

	pending, err := deps.Outbox.PullPending(10)
	require.NoError(t, err)
	assert.Equal(t, "order.dispatched", pending[len(pending)-1].EventType)
}
