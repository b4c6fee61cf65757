package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidState — the operation is illegal for the current status.
	ErrInvalidState = errors.New("operation invalid for current state")
	// ErrUnknownEvent — the event type appears in no transition row.
	ErrUnknownEvent = errors.New("unknown order event")
	// ErrIllegalTransition — recognized event, wrong current status.
	ErrIllegalTransition = errors.New("illegal transition for current status")
	// ErrForbidden — the actor role lacks permission for the event type.
	ErrForbidden = errors.New("actor role not permitted for event")
	// ErrVersionConflict — optimistic-lock mismatch on apply or save.
	ErrVersionConflict = errors.New("order version conflict")
	// ErrIdempotencyConflict — a known idempotency key arrived with a different payload.
	ErrIdempotencyConflict = errors.New("idempotency key reused with different payload")
	// ErrDependencyNotReady — a task was started before its dependency completed.
	ErrDependencyNotReady = errors.New("task dependency not completed")
	// ErrIncompleteLines — task completion attempted with unscanned lines.
	ErrIncompleteLines = errors.New("task has unscanned lines")
	// ErrCircuitOpen — call rejected by the circuit breaker.
	ErrCircuitOpen = errors.New("circuit breaker open")
	// ErrERPUnauthorized — the ERP rejected the call for want of a session.
	ErrERPUnauthorized = errors.New("erp session missing or expired")

	// ErrItemsLocked — order items must not change once picking started.
	ErrItemsLocked = errors.New("order items are locked")
	// ErrCustomerRequired — order is missing the customer identifier.
	ErrCustomerRequired = errors.New("customer_id is required")
	// ErrItemsRequired — order must contain at least one item.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// ErrItemSKURequired — an order item is missing its SKU.
	ErrItemSKURequired = errors.New("item sku is required")
	// ErrItemQtyInvalid — an order item quantity is not positive.
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")

	// ErrOrderNotFound — the order is not in the repository.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderAlreadyExists — Create was called with an id already taken.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrTaskNotFound — the task is not in the repository.
	ErrTaskNotFound = errors.New("task not found")
	// ErrIdempotencyKeyRequired — an empty idempotency key was supplied to the store.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRecordNotFound — no record exists for the compound key.
	ErrIdempotencyRecordNotFound = errors.New("idempotency record not found")
	// ErrOutboxPublish — publishing an outbox message failed.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// VersionConflictError carries both versions of an optimistic-lock mismatch
// so callers can tell the operator which snapshot went stale.
type VersionConflictError struct {
	Expected int64
	Actual   int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("order version conflict: expected %d, actual %d", e.Expected, e.Actual)
}

func (e *VersionConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}

// CircuitOpenError tells the caller how long to wait before the breaker
// will admit a trial call.
type CircuitOpenError struct {
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open, retry after %s", e.RetryAfter)
}

func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// IsVersionConflict reports whether err is an optimistic-lock mismatch.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsCircuitOpen reports whether err is a circuit-breaker rejection.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}
