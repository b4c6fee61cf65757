package taskflow_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galpao/wms/internal/domain"
	"github.com/galpao/wms/internal/service/taskflow"
)

var now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func items() []domain.OrderItem {
	return []domain.OrderItem{
		{SKU: "SKU-1", Quantity: 2},
		{SKU: "sku-2", Quantity: 1},
	}
}

func TestCreateDefaultTasks_ChainShape(t *testing.T) {
	tasks := taskflow.CreateDefaultTasks("order-1", items(), now)
	require.Len(t, tasks, 3)

	picking, packing, shipping := tasks[0], tasks[1], tasks[2]

	assert.Equal(t, domain.TaskTypePicking, picking.Type)
	assert.Empty(t, picking.DependsOn)
	assert.Len(t, picking.Lines, 2)
	assert.Equal(t, "SKU-2", picking.Lines[1].SKU, "line SKUs are normalized")

	assert.Equal(t, domain.TaskTypePacking, packing.Type)
	assert.Equal(t, picking.ID, packing.DependsOn)
	assert.Len(t, packing.Lines, 2)

	assert.Equal(t, domain.TaskTypeShipping, shipping.Type)
	assert.Equal(t, packing.ID, shipping.DependsOn)
	assert.Empty(t, shipping.Lines)

	for _, task := range tasks {
		assert.Equal(t, domain.TaskStatusPending, task.Status)
		assert.Equal(t, "order-1", task.OrderID)
	}
}

func TestStartTask_DependencyMustBeCompleted(t *testing.T) {
	tasks := taskflow.CreateDefaultTasks("order-1", items(), now)
	picking, packing := tasks[0], tasks[1]

	_, err := taskflow.StartTask(packing, &picking, now)
	assert.ErrorIs(t, err, domain.ErrDependencyNotReady)

	inProgress := picking
	inProgress.Status = domain.TaskStatusInProgress
	_, err = taskflow.StartTask(packing, &inProgress, now)
	assert.ErrorIs(t, err, domain.ErrDependencyNotReady)

	completed := picking
	completed.Status = domain.TaskStatusCompleted
	started, err := taskflow.StartTask(packing, &completed, now)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusInProgress, started.Status)
	assert.Equal(t, now, started.StartedAt)
}

func TestStartTask_OnlyFromPending(t *testing.T) {
	task := taskflow.CreateDefaultTasks("order-1", items(), now)[0]

	started, err := taskflow.StartTask(task, nil, now)
	require.NoError(t, err)

	_, err = taskflow.StartTask(started, nil, now)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	cancelled := task
	cancelled.Status = domain.TaskStatusCancelled
	_, err = taskflow.StartTask(cancelled, nil, now)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestRecordScan_AccumulatesByNormalizedSKU(t *testing.T) {
	task := taskflow.CreateDefaultTasks("order-1", items(), now)[0]
	task, err := taskflow.StartTask(task, nil, now)
	require.NoError(t, err)

	task, err = taskflow.RecordScan(task, " sku-1 ", 1)
	require.NoError(t, err)
	task, err = taskflow.RecordScan(task, "SKU-1", 1)
	require.NoError(t, err)

	assert.EqualValues(t, 2, task.Lines[0].ScannedQuantity)
	assert.Zero(t, task.Lines[1].ScannedQuantity)
}

func TestRecordScan_UnknownSKUIsNoOp(t *testing.T) {
	task := taskflow.CreateDefaultTasks("order-1", items(), now)[0]
	task, _ = taskflow.StartTask(task, nil, now)

	scanned, err := taskflow.RecordScan(task, "SKU-GHOST", 5)
	require.NoError(t, err)
	assert.Equal(t, task.Lines, scanned.Lines)
}

func TestRecordScan_RequiresInProgress(t *testing.T) {
	task := taskflow.CreateDefaultTasks("order-1", items(), now)[0]
	_, err := taskflow.RecordScan(task, "SKU-1", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestCompleteTask_RequiresFullyScannedLines(t *testing.T) {
	task := taskflow.CreateDefaultTasks("order-1", items(), now)[0]
	task, _ = taskflow.StartTask(task, nil, now)

	_, err := taskflow.CompleteTask(task, now)
	assert.ErrorIs(t, err, domain.ErrIncompleteLines)

	task, _ = taskflow.RecordScan(task, "SKU-1", 2)
	task, _ = taskflow.RecordScan(task, "SKU-2", 1)

	done, err := taskflow.CompleteTask(task, now)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, done.Status)
	assert.Equal(t, now, done.CompletedAt)
}

func TestCompleteTask_OverscannedLineBlocksCompletion(t *testing.T) {
	task := taskflow.CreateDefaultTasks("order-1", items(), now)[0]
	task, _ = taskflow.StartTask(task, nil, now)
	task, _ = taskflow.RecordScan(task, "SKU-1", 3)
	task, _ = taskflow.RecordScan(task, "SKU-2", 1)

	_, err := taskflow.CompleteTask(task, now)
	assert.ErrorIs(t, err, domain.ErrIncompleteLines)
}

func TestCompleteTask_ShippingIgnoresLines(t *testing.T) {
	shipping := taskflow.CreateDefaultTasks("order-1", items(), now)[2]
	shipping, err := taskflow.StartTask(shipping, nil, now)
	require.NoError(t, err)

	done, err := taskflow.CompleteTask(shipping, now)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, done.Status)
}

func TestCompleteTask_RequiresInProgress(t *testing.T) {
	task := taskflow.CreateDefaultTasks("order-1", items(), now)[0]
	_, err := taskflow.CompleteTask(task, now)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}
