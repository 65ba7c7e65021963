package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/patientflow/internal/model"
	"github.com/jwalitptl/patientflow/internal/repository"
	"github.com/jwalitptl/patientflow/pkg/errors"
)

type Service struct {
	repo repository.AuditRepository
	now  func() time.Time
}

func NewService(repo repository.AuditRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

type LogOptions struct {
	Changes  interface{}
	Metadata interface{}
}

type requestInfoKey struct{}

type requestInfo struct {
	ip        string
	userAgent string
}

// WithRequestInfo attaches the caller's address and user agent so entries written
// further down the call chain carry them.
func WithRequestInfo(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, requestInfo{ip: ip, userAgent: userAgent})
}

// RequestInfo returns what WithRequestInfo attached, or empty strings.
func RequestInfo(ctx context.Context) (ip, userAgent string) {
	info, _ := ctx.Value(requestInfoKey{}).(requestInfo)
	return info.ip, info.userAgent
}

// Log creates an audit log entry
func (s *Service) Log(ctx context.Context, userID, hospitalID uuid.UUID, action, entityType string, entityID uuid.UUID, opts *LogOptions) error {
	var changes, metadata json.RawMessage
	var err error

	if opts != nil {
		if opts.Changes != nil {
			if changes, err = json.Marshal(opts.Changes); err != nil {
				return fmt.Errorf("failed to marshal audit changes: %w", err)
			}
		}
		if opts.Metadata != nil {
			if metadata, err = json.Marshal(opts.Metadata); err != nil {
				return fmt.Errorf("failed to marshal audit metadata: %w", err)
			}
		}
	}

	entry := &model.AuditLog{
		ID:         uuid.New(),
		UserID:     userID,
		HospitalID: hospitalID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Changes:    changes,
		Metadata:   metadata,
		CreatedAt:  s.now(),
	}
	if info, ok := ctx.Value(requestInfoKey{}).(requestInfo); ok {
		entry.IPAddress = info.ip
		entry.UserAgent = info.userAgent
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// List returns one page of a hospital's audit trail, newest first.
func (s *Service) List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditLog, int, error) {
	if filter.HospitalID == uuid.Nil {
		return nil, 0, errors.NewValidation("hospital is required")
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return nil, 0, errors.NewValidation("end_date must not be before start_date")
	}
	filter.Pagination = filter.Pagination.Normalize()

	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return logs, total, nil
}

func (s *Service) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	return s.repo.Cleanup(ctx, before)
}
