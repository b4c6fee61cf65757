package domain

import "time"

// ScanType classifies one reading from a handheld device.
type ScanType string

const (
	ScanTypeAddress  ScanType = "ADDRESS_SCAN"
	ScanTypeProduct  ScanType = "PRODUCT_SCAN"
	ScanTypeQuantity ScanType = "QUANTITY_SCAN"
)

// ScanEvent records one physical scan. Immutable once produced; consumed
// by replaying the order's scan sequence through the double-check validator.
type ScanEvent struct {
	ID             string
	OrderID        string
	TaskID         string
	Type           ScanType
	Value          string
	Quantity       *float64
	ActorID        string
	IdempotencyKey string
	OccurredAt     time.Time
}
