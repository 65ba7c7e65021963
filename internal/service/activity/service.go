package activity

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/jwalitptl/patientflow/internal/model"
	"github.com/jwalitptl/patientflow/internal/repository"
	apperrors "github.com/jwalitptl/patientflow/pkg/errors"
)

const (
	DefaultFeedLimit = 20
	MaxFeedLimit     = 100
)

type Service struct {
	appointments repository.AppointmentRepository
}

func NewService(appointments repository.AppointmentRepository) *Service {
	return &Service{appointments: appointments}
}

// History returns one appointment's entries, oldest first.
func (s *Service) History(ctx context.Context, hospitalID, appointmentID uuid.UUID) ([]Entry, error) {
	apt, err := s.appointments.Get(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("appointment", err)
		}
		return nil, apperrors.NewInternal(err)
	}
	if apt.HospitalID != hospitalID {
		return nil, apperrors.NewNotFound("appointment", nil)
	}
	return Project([]*model.Appointment{apt}, Ascending), nil
}

// Feed returns the most recent entries for a user. Doctors see their own
// appointments, including ones cancelled while with them. Everyone else sees the
// hospital's.
func (s *Service) Feed(ctx context.Context, principal *model.Principal, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultFeedLimit
	}
	if limit > MaxFeedLimit {
		limit = MaxFeedLimit
	}

	filter := model.AppointmentFilter{
		HospitalID:  principal.HospitalID,
		NewestFirst: true,
		Limit:       limit,
	}
	if principal.Role == model.RoleDoctor {
		filter.InvolvingDoctorID = principal.UserID
	}
	appointments, err := s.appointments.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	entries := Project(appointments, Descending)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
