package domain

import "time"

// IdempotencyRecord maps a request fingerprint to the result it produced.
// Records are scoped by {OrderID, EventType, Key}, created on the first
// successful apply of a key and never mutated afterwards.
type IdempotencyRecord struct {
	OrderID     string
	EventType   OrderEventType
	Key         string
	Fingerprint string
	Result      OrderEventResult
	TTLAt       time.Time
	CreatedAt   time.Time
}
