package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/galpao/wms/internal/domain"
)

func sampleOrder(id string) domain.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.Order{
		ID:          id,
		ExternalRef: "erp-" + id,
		CustomerID:  "C001",
		ShipAddress: "Rua das Flores, 10",
		Items: []domain.OrderItem{
			{SKU: "SKU-A", Quantity: 2},
			{SKU: "SKU-B", Quantity: 1},
		},
		Status:    domain.OrderStatusASeparar,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderRepository_CreateGetRoundTrip(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	order := sampleOrder("order-1")
	if err := repo.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	got, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.CustomerID != order.CustomerID || got.Status != order.Status || got.Version != 1 {
		t.Fatalf("unexpected order: %+v", got)
	}
	if len(got.Items) != 2 || got.Items[0].SKU != "SKU-A" || got.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items: %+v", got.Items)
	}

	byRef, err := repo.GetByExternalRef(order.ExternalRef)
	if err != nil {
		t.Fatalf("get by external ref: %v", err)
	}
	if byRef.ID != order.ID {
		t.Fatalf("expected order %s, got %s", order.ID, byRef.ID)
	}
}

func TestOrderRepository_CreateDuplicateFails(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	order := sampleOrder("order-1")
	if err := repo.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := repo.Create(order); !errors.Is(err, domain.ErrOrderAlreadyExists) {
		t.Fatalf("expected ErrOrderAlreadyExists, got %v", err)
	}
}

func TestOrderRepository_SaveEnforcesVersion(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	order := sampleOrder("order-1")
	if err := repo.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	next := order
	next.Status = domain.OrderStatusEmSeparacao
	next.Version = 2
	if err := repo.Save(next); err != nil {
		t.Fatalf("save order: %v", err)
	}

	got, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != domain.OrderStatusEmSeparacao || got.Version != 2 {
		t.Fatalf("unexpected order after save: %+v", got)
	}

	// Saving the same version again carries a stale snapshot.
	stale := next
	if err := repo.Save(stale); !domain.IsVersionConflict(err) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	var conflict *domain.VersionConflictError
	err = repo.Save(stale)
	if !errors.As(err, &conflict) {
		t.Fatalf("expected VersionConflictError, got %v", err)
	}
	if conflict.Expected != 1 || conflict.Actual != 2 {
		t.Fatalf("unexpected conflict detail: %+v", conflict)
	}
}

func TestOrderRepository_SaveMissingOrder(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	order := sampleOrder("order-missing")
	order.Version = 2
	if err := repo.Save(order); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_MarkErpSynced(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	order := sampleOrder("order-1")
	if err := repo.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	got, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if !got.ErpSyncedAt.IsZero() {
		t.Fatalf("new order carries a sync marker: %v", got.ErpSyncedAt)
	}

	syncedAt := time.Now().UTC().Truncate(time.Microsecond)
	if err := repo.MarkErpSynced(order.ID, syncedAt); err != nil {
		t.Fatalf("mark erp synced: %v", err)
	}
	got, err = repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if !got.ErpSyncedAt.Equal(syncedAt) {
		t.Fatalf("expected sync marker %v, got %v", syncedAt, got.ErpSyncedAt)
	}
	if got.Version != 1 {
		t.Fatalf("sync marker must not touch the version, got %d", got.Version)
	}

	// Save never clears the marker.
	next := got
	next.Status = domain.OrderStatusEmSeparacao
	next.Version = 2
	next.ErpSyncedAt = time.Time{}
	if err := repo.Save(next); err != nil {
		t.Fatalf("save order: %v", err)
	}
	got, err = repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if !got.ErpSyncedAt.Equal(syncedAt) {
		t.Fatal("save cleared the erp sync marker")
	}

	if err := repo.MarkErpSynced("missing", syncedAt); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_ListByStatus(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	first := sampleOrder("order-1")
	second := sampleOrder("order-2")
	second.ExternalRef = "erp-order-2"
	second.Status = domain.OrderStatusDespachado
	for _, order := range []domain.Order{first, second} {
		if err := repo.Create(order); err != nil {
			t.Fatalf("create order %s: %v", order.ID, err)
		}
	}

	dispatched, err := repo.List(domain.OrderStatusDespachado, 0)
	if err != nil {
		t.Fatalf("list dispatched: %v", err)
	}
	if len(dispatched) != 1 || dispatched[0].ID != "order-2" {
		t.Fatalf("unexpected dispatched list: %+v", dispatched)
	}

	all, err := repo.List("", 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(all))
	}
}
