package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/galpao/wms/internal/domain"
)

type scanRepository struct {
	db *sql.DB
}

// NewScanRepository builds the PostgreSQL implementation of ScanRepository.
func NewScanRepository(store *Store) domain.ScanRepository {
	return &scanRepository{db: store.DB()}
}

func (r *scanRepository) Append(scan domain.ScanEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var quantity sql.NullFloat64
	if scan.Quantity != nil {
		quantity = sql.NullFloat64{Float64: *scan.Quantity, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO order_scans (
			id, order_id, task_id, type, value, quantity,
			actor_id, idempotency_key, occurred_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		scan.ID, scan.OrderID, scan.TaskID, string(scan.Type), scan.Value,
		quantity, scan.ActorID, scan.IdempotencyKey, scan.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

func (r *scanRepository) ListByOrder(orderID string) ([]domain.ScanEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, task_id, type, value, quantity,
		       actor_id, idempotency_key, occurred_at
		FROM order_scans
		WHERE order_id = $1
		ORDER BY occurred_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	scans := make([]domain.ScanEvent, 0)
	for rows.Next() {
		var (
			scan     domain.ScanEvent
			scanType string
			quantity sql.NullFloat64
		)
		if err := rows.Scan(
			&scan.ID, &scan.OrderID, &scan.TaskID, &scanType, &scan.Value,
			&quantity, &scan.ActorID, &scan.IdempotencyKey, &scan.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("scan scan row: %w", err)
		}
		scan.Type = domain.ScanType(scanType)
		if quantity.Valid {
			value := quantity.Float64
			scan.Quantity = &value
		}
		scans = append(scans, scan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scan rows: %w", err)
	}

	return scans, nil
}

var _ domain.ScanRepository = (*scanRepository)(nil)
