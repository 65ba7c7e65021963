package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/patientflow/internal/model"
	"github.com/jwalitptl/patientflow/internal/repository"
)

type outboxRepository struct {
	BaseRepository
}

func NewOutboxRepository(base BaseRepository) repository.OutboxRepository {
	return &outboxRepository{base}
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if len(event.Payload) == 0 {
		return fmt.Errorf("event payload cannot be empty")
	}

	now := time.Now()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Status == "" {
		event.Status = model.OutboxStatusPending
	}
	event.CreatedAt, event.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox_events (id, event_type, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.EventType, []byte(event.Payload), event.Status, event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

// ProcessPending locks due rows with SKIP LOCKED so concurrent relays never pick
// the same event, and records every outcome before committing.
func (r *outboxRepository) ProcessPending(ctx context.Context, limit int, retryDelay time.Duration, fn func(*model.OutboxEvent) error) (int, int, error) {
	var processed, failed int

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var events []*model.OutboxEvent
		err := tx.SelectContext(ctx, &events, `
			SELECT * FROM outbox_events
			WHERE status <> $1
			AND (retry_at IS NULL OR retry_at <= NOW())
			ORDER BY created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED`, model.OutboxStatusProcessed, limit)
		if err != nil {
			return fmt.Errorf("failed to select pending events: %w", err)
		}

		for _, evt := range events {
			if err := ctx.Err(); err != nil {
				return err
			}
			if fnErr := fn(evt); fnErr != nil {
				_, err = tx.ExecContext(ctx, `
					UPDATE outbox_events SET
						status = $2, error_message = $3, retry_count = retry_count + 1,
						retry_at = $4, updated_at = NOW()
					WHERE id = $1`, evt.ID, model.OutboxStatusFailed, fnErr.Error(), time.Now().Add(retryDelay))
				failed++
			} else {
				_, err = tx.ExecContext(ctx, `
					UPDATE outbox_events SET
						status = $2, error_message = NULL, processed_at = NOW(), updated_at = NOW()
					WHERE id = $1`, evt.ID, model.OutboxStatusProcessed)
				processed++
			}
			if err != nil {
				return fmt.Errorf("failed to update outbox event %s: %w", evt.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return processed, failed, nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM outbox_events
		WHERE status = $1 AND processed_at < $2`, model.OutboxStatusProcessed, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}
	return result.RowsAffected()
}
