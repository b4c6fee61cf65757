package integration

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/galpao/wms/internal/domain"
	"github.com/galpao/wms/internal/service/doublecheck"
	"github.com/galpao/wms/internal/service/orders"
	"github.com/galpao/wms/internal/storage/memory"
)

// OrderFulfillmentTestSuite drives an order through the full warehouse
// lifecycle: creation, picking with double-check scans, packing, quotation
// and dispatch.
type OrderFulfillmentTestSuite struct {
	suite.Suite
	service *orders.Service
	repo    domain.OrderRepository
	outbox  domain.OutboxRepository
}

func (suite *OrderFulfillmentTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // keep test output quiet
	logger := baseLogger.WithField("component", "integration-test")

	suite.repo = memory.NewOrderRepository()
	suite.outbox = memory.NewOutboxRepository()

	suite.service = orders.NewService(orders.Deps{
		Orders:      suite.repo,
		Tasks:       memory.NewTaskRepository(),
		Transitions: memory.NewTransitionRepository(),
		Scans:       memory.NewScanRepository(),
		Idempotency: memory.NewIdempotencyRepository(),
		Outbox:      suite.outbox,
	}, orders.WithLogger(logger))
}

func (suite *OrderFulfillmentTestSuite) TestFullFulfillment() {
	ctx := context.Background()

	// 1. Create the order.
	order, err := suite.service.CreateOrder(ctx, orders.CreateOrderInput{
		CustomerID:  "customer-123",
		ShipAddress: "Av. Industrial, 500",
		Items: []domain.OrderItem{
			{SKU: "caixa-papelao-m", Quantity: 2},
			{SKU: "fita-adesiva", Quantity: 1},
		},
	})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusASeparar, order.Status)
	require.Equal(suite.T(), int64(1), order.Version)

	// 2. Start picking; the stage tasks appear.
	result, err := suite.service.ApplyEvent(ctx, order.ID, domain.OrderEvent{
		Type:      domain.EventIniciarSeparacao,
		ActorID:   "picker-1",
		ActorRole: domain.RolePicker,
	}, nil)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusEmSeparacao, result.Order.Status)

	tasks, err := suite.service.ListTasks(ctx, order.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), tasks, 3)
	require.Equal(suite.T(), domain.TaskTypePicking, tasks[0].Type)

	_, err = suite.service.StartTask(ctx, tasks[0].ID)
	require.NoError(suite.T(), err)

	// 3. Double-check scans: address first, then each product with its quantity.
	suite.scan(ctx, order.ID, domain.ScanTypeAddress, "Av. Industrial, 500", nil)
	suite.scanQty(ctx, order.ID, "CAIXA-PAPELAO-M", 2)
	check := suite.scanQty(ctx, order.ID, "FITA-ADESIVA", 1)
	require.True(suite.T(), check.IsComplete)

	// 4. Picking progress was fed from the validator.
	tasks, err = suite.service.ListTasks(ctx, order.ID)
	require.NoError(suite.T(), err)
	for _, line := range tasks[0].Lines {
		require.Equal(suite.T(), line.Quantity, line.ScannedQuantity, "line %s", line.SKU)
	}

	_, err = suite.service.CompleteTask(ctx, tasks[0].ID)
	require.NoError(suite.T(), err)

	// 5. Conference, quotation and dispatch.
	suite.apply(ctx, order.ID, domain.EventFinalizarSeparacao, domain.RoleChecker)
	suite.apply(ctx, order.ID, domain.EventSolicitarCotacao, domain.RoleSupervisor)
	suite.apply(ctx, order.ID, domain.EventConfirmarCotacao, domain.RoleSupervisor)
	final := suite.apply(ctx, order.ID, domain.EventDespachar, domain.RoleShipper)
	require.Equal(suite.T(), domain.OrderStatusDespachado, final.Order.Status)
	require.Equal(suite.T(), int64(6), final.Order.Version)

	// 6. Audit trail and outbox.
	transitions, err := suite.service.ListTransitions(ctx, order.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), transitions, 5)

	pending, err := suite.outbox.PullPending(10)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), pending, 6) // order.created plus one per transition
}

func (suite *OrderFulfillmentTestSuite) TestIdempotentReplayDoesNotAdvance() {
	ctx := context.Background()
	order := suite.createOrder(ctx)

	event := domain.OrderEvent{
		Type:           domain.EventIniciarSeparacao,
		ActorID:        "picker-1",
		ActorRole:      domain.RolePicker,
		IdempotencyKey: "req-42",
	}

	first, err := suite.service.ApplyEvent(ctx, order.ID, event, nil)
	require.NoError(suite.T(), err)

	replay, err := suite.service.ApplyEvent(ctx, order.ID, event, nil)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), first.Transition.ID, replay.Transition.ID)

	stored, err := suite.repo.Get(order.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), int64(2), stored.Version)

	transitions, err := suite.service.ListTransitions(ctx, order.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), transitions, 1)
}

func (suite *OrderFulfillmentTestSuite) TestStaleVersionRejected() {
	ctx := context.Background()
	order := suite.createOrder(ctx)

	stale := int64(7)
	_, err := suite.service.ApplyEvent(ctx, order.ID, domain.OrderEvent{
		Type:      domain.EventIniciarSeparacao,
		ActorRole: domain.RolePicker,
	}, &stale)

	var conflict *domain.VersionConflictError
	require.ErrorAs(suite.T(), err, &conflict)

	stored, err := suite.repo.Get(order.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusASeparar, stored.Status)
}

func (suite *OrderFulfillmentTestSuite) TestWrongAddressBlocksProducts() {
	ctx := context.Background()
	order := suite.createOrder(ctx)

	suite.apply(ctx, order.ID, domain.EventIniciarSeparacao, domain.RolePicker)

	check, err := suite.service.RecordScan(ctx, orders.ScanInput{
		OrderID: order.ID,
		Type:    domain.ScanTypeProduct,
		Value:   "caixa-papelao-m",
	})
	require.NoError(suite.T(), err)
	require.False(suite.T(), check.Ok)
	require.NotEmpty(suite.T(), check.Errors)
}

// Helpers.

func (suite *OrderFulfillmentTestSuite) createOrder(ctx context.Context) domain.Order {
	order, err := suite.service.CreateOrder(ctx, orders.CreateOrderInput{
		CustomerID:  "customer-789",
		ShipAddress: "Rua do Porto, 12",
		Items: []domain.OrderItem{
			{SKU: "CAIXA-PAPELAO-M", Quantity: 2},
		},
	})
	require.NoError(suite.T(), err)
	return order
}

func (suite *OrderFulfillmentTestSuite) apply(ctx context.Context, orderID string, event domain.OrderEventType, role domain.ActorRole) domain.OrderEventResult {
	result, err := suite.service.ApplyEvent(ctx, orderID, domain.OrderEvent{
		Type:      event,
		ActorRole: role,
	}, nil)
	require.NoError(suite.T(), err)
	return result
}

func (suite *OrderFulfillmentTestSuite) scan(ctx context.Context, orderID string, scanType domain.ScanType, value string, qty *float64) {
	check, err := suite.service.RecordScan(ctx, orders.ScanInput{
		OrderID:  orderID,
		Type:     scanType,
		Value:    value,
		Quantity: qty,
	})
	require.NoError(suite.T(), err)
	require.True(suite.T(), check.Ok, "scan %s %q rejected: %v", scanType, value, check.Errors)
}

func (suite *OrderFulfillmentTestSuite) scanQty(ctx context.Context, orderID, sku string, qty float64) doublecheck.Result {
	suite.scan(ctx, orderID, domain.ScanTypeProduct, sku, nil)

	check, err := suite.service.RecordScan(ctx, orders.ScanInput{
		OrderID:  orderID,
		Type:     domain.ScanTypeQuantity,
		Value:    sku,
		Quantity: &qty,
	})
	require.NoError(suite.T(), err)
	require.True(suite.T(), check.Ok)
	return check
}

func TestOrderFulfillment(t *testing.T) {
	suite.Run(t, new(OrderFulfillmentTestSuite))
}
