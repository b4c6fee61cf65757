// Package taskflow models the picking → packing → shipping dependency
// chain of one order. Like the lifecycle engine it is pure: operations take
// a Task value and return a new one, so the version-free Task records rely
// on the caller serializing writes per order.
package taskflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/galpao/wms/internal/domain"
)

// CreateDefaultTasks builds the three-stage chain for an order entering
// picking: PICKING and PACKING carry the order's lines, SHIPPING carries
// none and completes on its own once in progress.
func CreateDefaultTasks(orderID string, items []domain.OrderItem, now time.Time) []domain.Task {
	lines := make([]domain.TaskLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, domain.TaskLine{
			SKU:      domain.NormalizeSKU(item.SKU),
			Quantity: float64(item.Quantity),
		})
	}

	picking := domain.Task{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Type:      domain.TaskTypePicking,
		Status:    domain.TaskStatusPending,
		Lines:     domain.CloneLines(lines),
		CreatedAt: now,
	}
	packing := domain.Task{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Type:      domain.TaskTypePacking,
		Status:    domain.TaskStatusPending,
		DependsOn: picking.ID,
		Lines:     domain.CloneLines(lines),
		CreatedAt: now,
	}
	shipping := domain.Task{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Type:      domain.TaskTypeShipping,
		Status:    domain.TaskStatusPending,
		DependsOn: packing.ID,
		CreatedAt: now,
	}

	return []domain.Task{picking, packing, shipping}
}

// StartTask moves a pending task to IN_PROGRESS. When the task declares a
// dependency the caller passes that task; it must be COMPLETED.
func StartTask(task domain.Task, dependency *domain.Task, now time.Time) (domain.Task, error) {
	if task.Status != domain.TaskStatusPending {
		return domain.Task{}, fmt.Errorf("task %s is %s: %w", task.ID, task.Status, domain.ErrInvalidState)
	}
	if dependency != nil && dependency.Status != domain.TaskStatusCompleted {
		return domain.Task{}, fmt.Errorf("task %s depends on %s (%s): %w", task.ID, dependency.ID, dependency.Status, domain.ErrDependencyNotReady)
	}

	next := task
	next.Lines = domain.CloneLines(task.Lines)
	next.Status = domain.TaskStatusInProgress
	next.StartedAt = now
	return next, nil
}

// RecordScan adds quantity onto every line matching the normalized SKU.
// A SKU with no matching line is a silent no-op: validation authority over
// unexpected scans lives in the double-check validator, not here.
func RecordScan(task domain.Task, sku string, quantity float64) (domain.Task, error) {
	if task.Status != domain.TaskStatusInProgress {
		return domain.Task{}, fmt.Errorf("task %s is %s: %w", task.ID, task.Status, domain.ErrInvalidState)
	}

	normalized := domain.NormalizeSKU(sku)
	next := task
	next.Lines = domain.CloneLines(task.Lines)
	for i := range next.Lines {
		if domain.NormalizeSKU(next.Lines[i].SKU) == normalized {
			next.Lines[i].ScannedQuantity += quantity
		}
	}
	return next, nil
}

// CompleteTask closes an in-progress task. Non-shipping tasks require every
// line fully scanned; SHIPPING carries no lines and always completes.
func CompleteTask(task domain.Task, now time.Time) (domain.Task, error) {
	if task.Status != domain.TaskStatusInProgress {
		return domain.Task{}, fmt.Errorf("task %s is %s: %w", task.ID, task.Status, domain.ErrInvalidState)
	}
	if task.Type != domain.TaskTypeShipping {
		for _, line := range task.Lines {
			if line.ScannedQuantity != line.Quantity {
				return domain.Task{}, fmt.Errorf("task %s line %s scanned %v of %v: %w",
					task.ID, line.SKU, line.ScannedQuantity, line.Quantity, domain.ErrIncompleteLines)
			}
		}
	}

	next := task
	next.Lines = domain.CloneLines(task.Lines)
	next.Status = domain.TaskStatusCompleted
	next.CompletedAt = now
	return next, nil
}
