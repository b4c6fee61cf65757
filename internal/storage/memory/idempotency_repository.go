package memory

import (
	"strings"
	"sync"
	"time"

	"github.com/galpao/wms/internal/domain"
)

type idempotencyRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.IdempotencyRecord
}

// NewIdempotencyRepository returns an in-memory IdempotencyRepository.
func NewIdempotencyRepository() domain.IdempotencyRepository {
	return &idempotencyRepositoryInMemory{items: make(map[string]domain.IdempotencyRecord)}
}

func compoundKey(orderID string, eventType domain.OrderEventType, key string) string {
	return orderID + "|" + string(eventType) + "|" + key
}

func (r *idempotencyRepositoryInMemory) Get(orderID string, eventType domain.OrderEventType, key string) (domain.IdempotencyRecord, error) {
	if strings.TrimSpace(key) == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.items[compoundKey(orderID, eventType, key)]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRecordNotFound
	}
	return cloneIdempotencyRecord(record), nil
}

// Put stores a record once; a repeated Put for the same compound key keeps
// the original, preserving the replay-finds-first-result property.
func (r *idempotencyRepositoryInMemory) Put(record domain.IdempotencyRecord) error {
	if strings.TrimSpace(record.Key) == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ck := compoundKey(record.OrderID, record.EventType, record.Key)
	if _, exists := r.items[ck]; exists {
		return nil
	}
	r.items[ck] = cloneIdempotencyRecord(record)
	return nil
}

func (r *idempotencyRepositoryInMemory) DeleteExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for ck, record := range r.items {
		if record.TTLAt.After(before) {
			continue
		}
		delete(r.items, ck)
		removed++
		if limit > 0 && removed >= limit {
			break
		}
	}
	return removed, nil
}

func cloneIdempotencyRecord(src domain.IdempotencyRecord) domain.IdempotencyRecord {
	dst := src
	dst.Result.Order = cloneOrder(src.Result.Order)
	return dst
}

var _ domain.IdempotencyRepository = (*idempotencyRepositoryInMemory)(nil)
