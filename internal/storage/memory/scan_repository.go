package memory

import (
	"sort"
	"sync"

	"github.com/galpao/wms/internal/domain"
)

type scanRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string][]domain.ScanEvent
}

// NewScanRepository returns an in-memory ScanRepository.
func NewScanRepository() domain.ScanRepository {
	return &scanRepositoryInMemory{items: make(map[string][]domain.ScanEvent)}
}

func (r *scanRepositoryInMemory) Append(scan domain.ScanEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[scan.OrderID] = append(r.items[scan.OrderID], cloneScan(scan))
	return nil
}

// ListByOrder returns scans in occurrence order; append order breaks ties
// so replaying the sequence is deterministic.
func (r *scanRepositoryInMemory) ListByOrder(orderID string) ([]domain.ScanEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.items[orderID]
	result := make([]domain.ScanEvent, 0, len(src))
	for _, scan := range src {
		result = append(result, cloneScan(scan))
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].OccurredAt.Before(result[j].OccurredAt)
	})
	return result, nil
}

func cloneScan(src domain.ScanEvent) domain.ScanEvent {
	dst := src
	if src.Quantity != nil {
		qty := *src.Quantity
		dst.Quantity = &qty
	}
	return dst
}

var _ domain.ScanRepository = (*scanRepositoryInMemory)(nil)
