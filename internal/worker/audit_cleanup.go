package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/patientflow/internal/repository"
)

// AuditCleanupWorker prunes audit logs past retention and relayed outbox events.
type AuditCleanupWorker struct {
	audit           repository.AuditRepository
	outbox          repository.OutboxRepository
	retentionDays   int
	outboxRetention time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
}

func NewAuditCleanupWorker(
	audit repository.AuditRepository,
	outbox repository.OutboxRepository,
	retentionDays int,
	outboxRetention time.Duration,
	cleanupInterval time.Duration,
) *AuditCleanupWorker {
	return &AuditCleanupWorker{
		audit:           audit,
		outbox:          outbox,
		retentionDays:   retentionDays,
		outboxRetention: outboxRetention,
		cleanupInterval: cleanupInterval,
		now:             time.Now,
	}
}

func (w *AuditCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Cleanup(ctx); err != nil {
				log.Error().Err(err).Msg("audit cleanup failed")
			}
		}
	}
}

func (w *AuditCleanupWorker) Cleanup(ctx context.Context) error {
	now := w.now()

	if w.retentionDays > 0 {
		cutoff := now.AddDate(0, 0, -w.retentionDays)
		rows, err := w.audit.Cleanup(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to cleanup audit logs: %w", err)
		}
		log.Info().Int64("rows", rows).Time("cutoff", cutoff).Msg("cleaned up audit logs")
	}

	if w.outbox != nil && w.outboxRetention > 0 {
		cutoff := now.Add(-w.outboxRetention)
		rows, err := w.outbox.DeleteProcessedBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to delete processed outbox events: %w", err)
		}
		log.Info().Int64("rows", rows).Time("cutoff", cutoff).Msg("pruned processed outbox events")
	}
	return nil
}
