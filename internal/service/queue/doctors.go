package queue

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jwalitptl/patientflow/internal/model"
	"github.com/jwalitptl/patientflow/internal/repository"
	"github.com/jwalitptl/patientflow/internal/service/audit"
	apperrors "github.com/jwalitptl/patientflow/pkg/errors"
)

type availabilityEvent struct {
	DoctorID    uuid.UUID `json:"doctor_id"`
	HospitalID  uuid.UUID `json:"hospital_id"`
	IsAvailable bool      `json:"is_available"`
	Reason      string    `json:"reason"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// SetDoctorAvailability toggles whether a doctor accepts new assignments. An
// in-progress consultation is left alone.
func (e *Engine) SetDoctorAvailability(ctx context.Context, doctorID uuid.UUID, isAvailable bool) (doctor *model.User, err error) {
	ctx, span := e.startSpan(ctx, "SetDoctorAvailability",
		attribute.String("doctor.id", doctorID.String()),
		attribute.Bool("available", isAvailable))
	defer func() { endSpan(span, err) }()

	if _, err := e.getDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	return e.setAvailability(ctx, doctorID, isAvailable, false, "toggle")
}

// OnLogin marks a doctor available and drops any pointer left over from a session
// that never logged out.
func (e *Engine) OnLogin(ctx context.Context, userID uuid.UUID) (err error) {
	ctx, span := e.startSpan(ctx, "OnLogin", attribute.String("user.id", userID.String()))
	defer func() { endSpan(span, err) }()

	user, err := e.users.Get(ctx, userID)
	if err != nil {
		return e.userError(err)
	}
	if !user.IsDoctor() {
		return nil
	}
	if user.CurrentAppointmentID != nil {
		log.Info().
			Str("doctor_id", userID.String()).
			Str("appointment_id", user.CurrentAppointmentID.String()).
			Msg("clearing stale current appointment on login")
	}
	_, err = e.setAvailability(ctx, userID, true, true, "login")
	return err
}

// OnLogout marks a doctor unavailable and clears their current appointment. The
// appointment itself stays IN_CONSULTATION.
func (e *Engine) OnLogout(ctx context.Context, userID uuid.UUID) (err error) {
	ctx, span := e.startSpan(ctx, "OnLogout", attribute.String("user.id", userID.String()))
	defer func() { endSpan(span, err) }()

	user, err := e.users.Get(ctx, userID)
	if err != nil {
		return e.userError(err)
	}
	if !user.IsDoctor() {
		return nil
	}
	if user.CurrentAppointmentID != nil {
		log.Warn().
			Str("doctor_id", userID.String()).
			Str("appointment_id", user.CurrentAppointmentID.String()).
			Msg("doctor logged out during a consultation")
	}
	_, err = e.setAvailability(ctx, userID, false, true, "logout")
	return err
}

func (e *Engine) setAvailability(ctx context.Context, doctorID uuid.UUID, isAvailable, clearCurrent bool, reason string) (*model.User, error) {
	doctor, err := e.users.SetAvailability(ctx, doctorID, isAvailable, clearCurrent)
	if err != nil {
		return nil, e.userError(err)
	}

	e.auditor.Log(ctx, doctorID, doctor.HospitalID, model.AuditActionUpdate, model.AuditEntityUser, doctorID, &audit.LogOptions{
		Changes:  map[string]interface{}{"is_available": isAvailable},
		Metadata: map[string]interface{}{"reason": reason},
	})
	if e.events != nil {
		err := e.events.Emit(ctx, model.EventDoctorAvailability, availabilityEvent{
			DoctorID:    doctorID,
			HospitalID:  doctor.HospitalID,
			IsAvailable: isAvailable,
			Reason:      reason,
			OccurredAt:  e.now(),
		})
		if err != nil {
			log.Warn().Err(err).Str("doctor_id", doctorID.String()).Msg("failed to queue availability event")
		}
	}
	return doctor, nil
}

func (e *Engine) userError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("user", err)
	}
	return apperrors.NewInternal(err)
}

// ListQueue returns a doctor's active appointments, most urgent first and FIFO
// within a priority.
func (e *Engine) ListQueue(ctx context.Context, doctorID uuid.UUID) (queue *model.DoctorQueue, err error) {
	ctx, span := e.startSpan(ctx, "ListQueue", attribute.String("doctor.id", doctorID.String()))
	defer func() { endSpan(span, err) }()

	appointments, err := e.appointments.List(ctx, model.AppointmentFilter{
		DoctorID: doctorID,
		Statuses: model.ActiveStatuses,
	})
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	SortQueue(appointments)

	queue = &model.DoctorQueue{DoctorID: doctorID, Appointments: appointments}
	for _, apt := range appointments {
		queue.Stats.Total++
		switch apt.Priority {
		case model.PriorityEmergency:
			queue.Stats.Emergency++
		case model.PriorityUrgent:
			queue.Stats.Urgent++
		default:
			queue.Stats.Normal++
		}
		if apt.Status == model.AppointmentStatusInConsultation {
			queue.Stats.InProgress++
		} else {
			queue.Stats.Pending++
		}
	}

	now := e.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	queue.Stats.CompletedToday, err = e.appointments.CountCompletedSince(ctx, doctorID, midnight)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return queue, nil
}

// SortQueue orders appointments by priority descending, then creation time ascending.
func SortQueue(appointments []*model.Appointment) {
	sort.SliceStable(appointments, func(i, j int) bool {
		a, b := appointments[i], appointments[j]
		if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
			return ra > rb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}

// ListAvailableDoctors returns the hospital's doctors with their current load,
// available doctors first and then the least loaded.
func (e *Engine) ListAvailableDoctors(ctx context.Context, hospitalID uuid.UUID, availableOnly bool) (roster *model.DoctorRoster, err error) {
	ctx, span := e.startSpan(ctx, "ListAvailableDoctors", attribute.String("hospital.id", hospitalID.String()))
	defer func() { endSpan(span, err) }()

	doctors, err := e.users.ListDoctors(ctx, hospitalID, availableOnly)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	loads, err := e.appointments.DoctorLoads(ctx, hospitalID)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	roster = &model.DoctorRoster{Doctors: make([]model.DoctorSummary, 0, len(doctors))}
	for _, d := range doctors {
		specialty := d.Specialty
		if specialty == "" {
			specialty = model.DefaultSpecialty
		}
		load := loads[d.ID]
		summary := model.DoctorSummary{
			ID:                   d.ID,
			Name:                 d.DisplayName(),
			Email:                d.Email,
			Specialty:            specialty,
			IsAvailable:          d.IsAvailable,
			IsBusy:               d.CurrentAppointmentID != nil,
			CurrentAppointmentID: d.CurrentAppointmentID,
			CurrentPatients:      load.CurrentPatients,
			QueueCount:           load.QueueCount,
		}
		roster.Doctors = append(roster.Doctors, summary)
		if summary.IsAvailable {
			roster.AvailableCount++
		}
		if summary.IsBusy {
			roster.BusyCount++
		}
	}
	roster.Count = len(roster.Doctors)

	sort.Slice(roster.Doctors, func(i, j int) bool {
		a, b := roster.Doctors[i], roster.Doctors[j]
		if a.IsAvailable != b.IsAvailable {
			return a.IsAvailable
		}
		if a.CurrentPatients != b.CurrentPatients {
			return a.CurrentPatients < b.CurrentPatients
		}
		return a.ID.String() < b.ID.String()
	})
	return roster, nil
}

func (e *Engine) GetAvailability(ctx context.Context, doctorID uuid.UUID) (availability *model.Availability, err error) {
	ctx, span := e.startSpan(ctx, "GetAvailability", attribute.String("doctor.id", doctorID.String()))
	defer func() { endSpan(span, err) }()

	doctor, err := e.getDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	loads, err := e.appointments.DoctorLoads(ctx, doctor.HospitalID)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	availability = &model.Availability{
		DoctorID:             doctor.ID,
		IsAvailable:          doctor.IsAvailable,
		CurrentPatients:      loads[doctor.ID].CurrentPatients,
		CurrentAppointmentID: doctor.CurrentAppointmentID,
		Message:              "You are not accepting new patients",
	}
	if doctor.IsAvailable {
		availability.Message = "You are accepting new patients"
	}
	return availability, nil
}
