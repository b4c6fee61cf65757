package domain

import "time"

// TaskType identifies a fulfillment stage.
type TaskType string

const (
	TaskTypePicking  TaskType = "PICKING"
	TaskTypePacking  TaskType = "PACKING"
	TaskTypeShipping TaskType = "SHIPPING"
)

// TaskStatus describes where a task is in its own small lifecycle.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusCancelled  TaskStatus = "CANCELLED"
)

// TaskLine tracks scan progress for one SKU inside a task.
type TaskLine struct {
	SKU             string
	Quantity        float64
	ScannedQuantity float64
}

// Task is one fulfillment stage of an order. PICKING and PACKING carry the
// order's lines; SHIPPING carries none. DependsOn chains the stages:
// PACKING depends on PICKING, SHIPPING on PACKING.
type Task struct {
	ID          string
	OrderID     string
	Type        TaskType
	Status      TaskStatus
	DependsOn   string
	Lines       []TaskLine
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// CloneLines returns an independent copy of the line list.
func CloneLines(lines []TaskLine) []TaskLine {
	if lines == nil {
		return nil
	}
	out := make([]TaskLine, len(lines))
	copy(out, lines)
	return out
}
