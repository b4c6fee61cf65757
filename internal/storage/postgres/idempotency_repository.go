package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/galpao/wms/internal/domain"
)

type idempotencyRepository struct {
	db *sql.DB
}

// NewIdempotencyRepository builds the PostgreSQL implementation of IdempotencyRepository.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &idempotencyRepository{db: store.DB()}
}

func (r *idempotencyRepository) Get(orderID string, eventType domain.OrderEventType, key string) (domain.IdempotencyRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		record    domain.IdempotencyRecord
		eventName string
		result    []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT order_id, event_type, idempotency_key, fingerprint, result, ttl_at, created_at
		FROM idempotency_records
		WHERE order_id = $1 AND event_type = $2 AND idempotency_key = $3
	`, orderID, string(eventType), key).Scan(
		&record.OrderID, &eventName, &record.Key, &record.Fingerprint,
		&result, &record.TTLAt, &record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyRecordNotFound
		}
		return domain.IdempotencyRecord{}, fmt.Errorf("select idempotency record: %w", err)
	}
	record.EventType = domain.OrderEventType(eventName)
	if err := json.Unmarshal(result, &record.Result); err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("decode idempotency result: %w", err)
	}

	return record, nil
}

func (r *idempotencyRepository) Put(record domain.IdempotencyRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	result, err := json.Marshal(record.Result)
	if err != nil {
		return fmt.Errorf("encode idempotency result: %w", err)
	}

	// Write-once: a concurrent insert for the same key wins and this one
	// becomes a no-op.
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO idempotency_records (
			order_id, event_type, idempotency_key, fingerprint, result, ttl_at, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (order_id, event_type, idempotency_key) DO NOTHING
	`,
		record.OrderID, string(record.EventType), record.Key, record.Fingerprint,
		result, record.TTLAt, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert idempotency record: %w", err)
	}
	return nil
}

func (r *idempotencyRepository) DeleteExpired(before time.Time, limit int) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		DELETE FROM idempotency_records
		WHERE (order_id, event_type, idempotency_key) IN (
			SELECT order_id, event_type, idempotency_key
			FROM idempotency_records
			WHERE ttl_at <= $1
			ORDER BY ttl_at ASC
	`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	query += ")"

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency records: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
