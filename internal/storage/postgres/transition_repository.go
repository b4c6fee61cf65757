package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/galpao/wms/internal/domain"
)

type transitionRepository struct {
	db *sql.DB
}

// NewTransitionRepository builds the PostgreSQL implementation of TransitionRepository.
func NewTransitionRepository(store *Store) domain.TransitionRepository {
	return &transitionRepository{db: store.DB()}
}

func (r *transitionRepository) Append(transition domain.OrderTransition) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var metadata []byte
	if transition.Metadata != nil {
		encoded, err := json.Marshal(transition.Metadata)
		if err != nil {
			return fmt.Errorf("encode transition metadata: %w", err)
		}
		metadata = encoded
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO order_transitions (
			id, order_id, from_status, to_status, event_type,
			actor_id, actor_role, idempotency_key, reason, metadata, occurred_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		transition.ID, transition.OrderID, string(transition.FromStatus), string(transition.ToStatus),
		string(transition.EventType), transition.ActorID, string(transition.ActorRole),
		transition.IdempotencyKey, transition.Reason, metadata, transition.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

func (r *transitionRepository) List(orderID string) ([]domain.OrderTransition, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, from_status, to_status, event_type,
		       actor_id, actor_role, idempotency_key, reason, metadata, occurred_at
		FROM order_transitions
		WHERE order_id = $1
		ORDER BY occurred_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	transitions := make([]domain.OrderTransition, 0)
	for rows.Next() {
		var (
			t                                      domain.OrderTransition
			fromStatus, toStatus, eventType, actorRole string
			metadata                               []byte
		)
		if err := rows.Scan(
			&t.ID, &t.OrderID, &fromStatus, &toStatus, &eventType,
			&t.ActorID, &actorRole, &t.IdempotencyKey, &t.Reason, &metadata, &t.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("scan transition row: %w", err)
		}
		t.FromStatus = domain.OrderStatus(fromStatus)
		t.ToStatus = domain.OrderStatus(toStatus)
		t.EventType = domain.OrderEventType(eventType)
		t.ActorRole = domain.ActorRole(actorRole)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
				return nil, fmt.Errorf("decode transition metadata: %w", err)
			}
		}
		transitions = append(transitions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transition rows: %w", err)
	}

	return transitions, nil
}

var _ domain.TransitionRepository = (*transitionRepository)(nil)
