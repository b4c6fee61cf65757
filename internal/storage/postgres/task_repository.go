package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/galpao/wms/internal/domain"
)

type taskRepository struct {
	db *sql.DB
}

// NewTaskRepository builds the PostgreSQL implementation of TaskRepository.
func NewTaskRepository(store *Store) domain.TaskRepository {
	return &taskRepository{db: store.DB()}
}

func (r *taskRepository) CreateBatch(tasks []domain.Task) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, task := range tasks {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (
				id, order_id, type, status, depends_on, created_at, started_at, completed_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
			task.ID, task.OrderID, string(task.Type), string(task.Status),
			task.DependsOn, task.CreatedAt, nullableTime(task.StartedAt), nullableTime(task.CompletedAt),
		); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		if err = insertLinesTx(ctx, tx, task.ID, task.Lines); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create tasks: %w", err)
	}

	return nil
}

func (r *taskRepository) Get(id string) (domain.Task, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		task                   domain.Task
		taskType, status       string
		startedAt, completedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, type, status, depends_on, created_at, started_at, completed_at
		FROM tasks
		WHERE id = $1
	`, id).Scan(
		&task.ID, &task.OrderID, &taskType, &status,
		&task.DependsOn, &task.CreatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Task{}, domain.ErrTaskNotFound
		}
		return domain.Task{}, fmt.Errorf("select task: %w", err)
	}
	task.Type = domain.TaskType(taskType)
	task.Status = domain.TaskStatus(status)
	task.StartedAt = startedAt.Time
	task.CompletedAt = completedAt.Time

	lines, err := r.loadLines(ctx, task.ID)
	if err != nil {
		return domain.Task{}, err
	}
	task.Lines = lines

	return task, nil
}

func (r *taskRepository) ListByOrder(orderID string) ([]domain.Task, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	// Stage order matches creation order: picking, packing, shipping.
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, type, status, depends_on, created_at, started_at, completed_at
		FROM tasks
		WHERE order_id = $1
		ORDER BY CASE type
			WHEN 'PICKING' THEN 1
			WHEN 'PACKING' THEN 2
			WHEN 'SHIPPING' THEN 3
			ELSE 4
		END
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]domain.Task, 0, 3)
	for rows.Next() {
		var (
			task                   domain.Task
			taskType, status       string
			startedAt, completedAt sql.NullTime
		)
		if err := rows.Scan(
			&task.ID, &task.OrderID, &taskType, &status,
			&task.DependsOn, &task.CreatedAt, &startedAt, &completedAt,
		); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		task.Type = domain.TaskType(taskType)
		task.Status = domain.TaskStatus(status)
		task.StartedAt = startedAt.Time
		task.CompletedAt = completedAt.Time

		lines, err := r.loadLines(ctx, task.ID)
		if err != nil {
			return nil, err
		}
		task.Lines = lines
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task rows: %w", err)
	}

	return tasks, nil
}

func (r *taskRepository) Save(task domain.Task) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET status = $1,
		    started_at = $2,
		    completed_at = $3
		WHERE id = $4
	`,
		string(task.Status), nullableTime(task.StartedAt), nullableTime(task.CompletedAt), task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrTaskNotFound
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM task_lines WHERE task_id = $1`, task.ID); err != nil {
		return fmt.Errorf("delete task lines: %w", err)
	}
	if err = insertLinesTx(ctx, tx, task.ID, task.Lines); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save task: %w", err)
	}

	return nil
}

func insertLinesTx(ctx context.Context, tx *sql.Tx, taskID string, lines []domain.TaskLine) error {
	for i, line := range lines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO task_lines (task_id, position, sku, qty, scanned_qty)
			VALUES ($1,$2,$3,$4,$5)
		`, taskID, i, line.SKU, line.Quantity, line.ScannedQuantity); err != nil {
			return fmt.Errorf("insert task line: %w", err)
		}
	}
	return nil
}

func (r *taskRepository) loadLines(ctx context.Context, taskID string) ([]domain.TaskLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sku, qty, scanned_qty
		FROM task_lines
		WHERE task_id = $1
		ORDER BY position ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task lines: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.TaskLine, 0)
	for rows.Next() {
		var line domain.TaskLine
		if err := rows.Scan(&line.SKU, &line.Quantity, &line.ScannedQuantity); err != nil {
			return nil, fmt.Errorf("scan task line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task lines: %w", err)
	}

	if len(lines) == 0 {
		return nil, nil
	}
	return lines, nil
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

var _ domain.TaskRepository = (*taskRepository)(nil)
