package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/patientflow/internal/model"
	"github.com/jwalitptl/patientflow/internal/repository/memory"
)

func TestCleanupRemovesExpiredRows(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Audit().Create(ctx, &model.AuditLog{Action: model.AuditActionRead, CreatedAt: now.AddDate(0, 0, -40)}))
	require.NoError(t, store.Audit().Create(ctx, &model.AuditLog{Action: model.AuditActionRead, CreatedAt: now.AddDate(0, 0, -1)}))

	w := NewAuditCleanupWorker(store.Audit(), store.Outbox(), 30, 24*time.Hour, time.Hour)
	w.now = func() time.Time { return now }
	require.NoError(t, w.Cleanup(ctx))

	_, total, err := store.Audit().List(ctx, model.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}
