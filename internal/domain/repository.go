package domain

import "time"

// OrderRepository is the persistence contract for orders.
type OrderRepository interface {
	// Create stores a new order. Fails with ErrOrderAlreadyExists if the id is taken.
	Create(order Order) error
	// Get returns the order or ErrOrderNotFound.
	Get(id string) (Order, error)
	// GetByExternalRef returns the order mapped to an ERP reference, or ErrOrderNotFound.
	GetByExternalRef(ref string) (Order, error)
	// List returns orders filtered by status; an empty status means all.
	List(status OrderStatus, limit int) ([]Order, error)
	// Save overwrites an order whose stored version is exactly order.Version-1.
	// The version check is evaluated atomically with the write; on mismatch
	// it fails with a VersionConflictError. The ERP sync marker is not part
	// of the optimistic-lock payload and survives Save unchanged.
	Save(order Order) error
	// MarkErpSynced records that the order's dispatch was reported to the
	// ERP, without touching the version.
	MarkErpSynced(id string, at time.Time) error
}
