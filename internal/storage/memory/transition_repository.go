package memory

import (
	"sort"
	"sync"

	"github.com/galpao/wms/internal/domain"
)

type transitionRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string][]domain.OrderTransition
}

// NewTransitionRepository returns an in-memory TransitionRepository.
func NewTransitionRepository() domain.TransitionRepository {
	return &transitionRepositoryInMemory{items: make(map[string][]domain.OrderTransition)}
}

func (r *transitionRepositoryInMemory) Append(transition domain.OrderTransition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[transition.OrderID] = append(r.items[transition.OrderID], transition)
	return nil
}

func (r *transitionRepositoryInMemory) List(orderID string) ([]domain.OrderTransition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.items[orderID]
	result := make([]domain.OrderTransition, len(src))
	copy(result, src)

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].OccurredAt.Before(result[j].OccurredAt)
	})
	return result, nil
}

var _ domain.TransitionRepository = (*transitionRepositoryInMemory)(nil)
