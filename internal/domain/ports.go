package domain

import (
	"context"
	"time"
)

// TaskRepository stores fulfillment tasks.
type TaskRepository interface {
	// CreateBatch stores the picking/packing/shipping tasks of one order atomically.
	CreateBatch(tasks []Task) error
	// Get returns the task or ErrTaskNotFound.
	Get(id string) (Task, error)
	// ListByOrder returns the order's tasks in stage order.
	ListByOrder(orderID string) ([]Task, error)
	// Save overwrites a task.
	Save(task Task) error
}

// TransitionRepository stores the append-only order audit trail.
type TransitionRepository interface {
	Append(transition OrderTransition) error
	List(orderID string) ([]OrderTransition, error)
}

// ScanRepository stores the ordered scan history of an order.
type ScanRepository interface {
	Append(scan ScanEvent) error
	// ListByOrder returns scans in occurrence order.
	ListByOrder(orderID string) ([]ScanEvent, error)
}

// IdempotencyRepository stores apply results keyed by {order, event type, key}.
type IdempotencyRepository interface {
	// Get returns the record for the compound key or ErrIdempotencyRecordNotFound.
	Get(orderID string, eventType OrderEventType, key string) (IdempotencyRecord, error)
	// Put stores a record. Records are write-once; a second Put for the same
	// compound key is a no-op.
	Put(record IdempotencyRecord) error
	// DeleteExpired removes records whose TTL passed, up to limit (0 = no limit).
	DeleteExpired(before time.Time, limit int) (int, error)
}

// ERPClient is the outbound contract to the ERP (SAP Business One Service
// Layer). The sync layer wraps these calls with resilience; it never
// interprets the wire format beyond raw payload bytes.
type ERPClient interface {
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Get(ctx context.Context, path string) ([]byte, error)
	Post(ctx context.Context, path string, body []byte) ([]byte, error)
	Patch(ctx context.Context, path string, body []byte) ([]byte, error)
}

// OutboxMessage holds one event awaiting publication.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxPublisher pushes an event out; implementations must be idempotent.
type OutboxPublisher interface {
	Publish(msg OutboxMessage) error
}

// OutboxRepository queues events for reliable publication.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// OutboxStats describes the current outbox backlog.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
