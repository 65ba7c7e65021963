package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Writer is the subset of Service used by callers that audit as a side effect.
type Writer interface {
	Log(ctx context.Context, userID, hospitalID uuid.UUID, action, entityType string, entityID uuid.UUID, opts *LogOptions) error
}

// AuditLogger writes audit entries on a best-effort basis: a failed write is logged
// and never fails the operation being audited.
type AuditLogger struct {
	writer Writer
}

func NewAuditLogger(writer Writer) *AuditLogger {
	return &AuditLogger{writer: writer}
}

func (l *AuditLogger) Log(ctx context.Context, userID, hospitalID uuid.UUID, action, entityType string, entityID uuid.UUID, opts *LogOptions) {
	if l == nil || l.writer == nil {
		return
	}
	if err := l.writer.Log(ctx, userID, hospitalID, action, entityType, entityID, opts); err != nil {
		log.Warn().Err(err).
			Str("action", action).
			Str("entity_type", entityType).
			Str("entity_id", entityID.String()).
			Msg("failed to write audit log")
	}
}
