// Package memory provides prototype-grade in-memory repositories. Every
// repository is safe for concurrent use and returns defensive copies; the
// optimistic-lock contract matches the PostgreSQL implementations so the
// two are interchangeable behind the domain ports.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/galpao/wms/internal/domain"
)

type orderRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Order
}

// NewOrderRepository returns an in-memory order repository for local
// development and tests.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{items: make(map[string]domain.Order)}
}

func (r *orderRepositoryInMemory) Create(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.ErrOrderAlreadyExists
	}
	r.items[order.ID] = cloneOrder(order)
	return nil
}

func (r *orderRepositoryInMemory) Get(id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (r *orderRepositoryInMemory) GetByExternalRef(ref string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, order := range r.items {
		if order.ExternalRef == ref {
			return cloneOrder(order), nil
		}
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

func (r *orderRepositoryInMemory) List(status domain.OrderStatus, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if status != "" && order.Status != status {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Save overwrites the order only when the stored version is exactly one
// behind, which is how the engine hands back orders (Version already
// incremented). The check and the write happen under one lock.
func (r *orderRepositoryInMemory) Save(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version-1 {
		return &domain.VersionConflictError{Expected: order.Version - 1, Actual: current.Version}
	}
	next := cloneOrder(order)
	// The sync marker is owned by MarkErpSynced; Save never clears it.
	next.ErpSyncedAt = current.ErpSyncedAt
	r.items[order.ID] = next
	return nil
}

func (r *orderRepositoryInMemory) MarkErpSynced(id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	order.ErpSyncedAt = at
	r.items[id] = order
	return nil
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = domain.CloneItems(src.Items)
	return dst
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
