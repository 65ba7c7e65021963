package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/patientflow/internal/model"
	"github.com/jwalitptl/patientflow/internal/repository"
	"github.com/jwalitptl/patientflow/internal/service/audit"
	"github.com/jwalitptl/patientflow/internal/service/queue"
	apperrors "github.com/jwalitptl/patientflow/pkg/errors"
)

const numberAttempts = 3

// DefaultListLimit caps list queries that do not ask for a size.
const DefaultListLimit = 100

// Router moves a new appointment through triage. It is satisfied by *queue.Engine.
type Router interface {
	RecordVitals(ctx context.Context, appointmentID, actorID uuid.UUID, vitals *model.Vitals) (*model.Appointment, error)
	AssignDoctor(ctx context.Context, appointmentID uuid.UUID, doctorID *uuid.UUID, actorID uuid.UUID) (*model.Appointment, error)
}

type Service struct {
	appointments repository.AppointmentRepository
	patients     repository.PatientRepository
	router       Router
	auditor      *audit.AuditLogger
	events       queue.Emitter
}

func NewService(
	appointments repository.AppointmentRepository,
	patients repository.PatientRepository,
	router Router,
	auditor *audit.AuditLogger,
	events queue.Emitter,
) *Service {
	return &Service{
		appointments: appointments,
		patients:     patients,
		router:       router,
		auditor:      auditor,
		events:       events,
	}
}

// NewAppointmentNumber returns "APT-" followed by 8 upper-case hex characters.
func NewAppointmentNumber() string {
	return "APT-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Create opens an appointment for a patient of the actor's hospital. Vitals given up
// front are recorded straight away, and autoAssign then routes it to a doctor. When
// no doctor is free the appointment is returned waiting in VITALS_RECORDED.
func (s *Service) Create(ctx context.Context, actor *model.Principal, req model.CreateAppointmentRequest) (*model.Appointment, error) {
	priority := req.Priority
	if priority == "" {
		priority = model.PriorityNormal
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidation("priority must be one of NORMAL, URGENT, EMERGENCY")
	}
	if req.AutoAssign && req.Vitals == nil {
		return nil, apperrors.NewValidation("vitals are required to auto assign a doctor")
	}

	patient, err := s.patients.Get(ctx, req.PatientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("patient", err)
		}
		return nil, apperrors.NewInternal(err)
	}
	if patient.HospitalID != actor.HospitalID {
		return nil, apperrors.NewNotFound("patient", nil)
	}

	createdBy := actor.UserID
	apt := &model.Appointment{
		HospitalID:     actor.HospitalID,
		PatientID:      patient.ID,
		PatientName:    patient.FullName(),
		CreatedByID:    &createdBy,
		Status:         model.AppointmentStatusCreated,
		Priority:       priority,
		ChiefComplaint: strings.TrimSpace(req.ChiefComplaint),
	}
	for attempt := 1; ; attempt++ {
		apt.ID = uuid.New()
		apt.AppointmentNumber = NewAppointmentNumber()
		err = s.appointments.Create(ctx, apt)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicate) || attempt == numberAttempts {
			return nil, apperrors.NewInternal(fmt.Errorf("failed to create appointment: %w", err))
		}
	}

	s.auditor.Log(ctx, actor.UserID, actor.HospitalID, model.AuditActionCreate, model.AuditEntityAppointment, apt.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{
			"appointment_number": apt.AppointmentNumber,
			"patient_id":         patient.ID,
			"priority":           priority,
		},
	})
	if s.events != nil {
		event := model.AppointmentEvent{
			AppointmentID: apt.ID,
			HospitalID:    apt.HospitalID,
			PatientID:     apt.PatientID,
			To:            apt.Status,
			Priority:      apt.Priority,
			ActorID:       actor.UserID,
			OccurredAt:    apt.CreatedAt,
		}
		if err := s.events.Emit(ctx, model.EventAppointmentCreated, event); err != nil {
			log.Warn().Err(err).Str("appointment_id", apt.ID.String()).Msg("failed to queue appointment event")
		}
	}

	if req.Vitals == nil {
		return apt, nil
	}
	triaged, err := s.router.RecordVitals(ctx, apt.ID, actor.UserID, req.Vitals)
	if err != nil {
		return nil, err
	}
	if !req.AutoAssign {
		return triaged, nil
	}

	assigned, err := s.router.AssignDoctor(ctx, apt.ID, nil, actor.UserID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNoAvailableDoctor) {
			log.Info().
				Str("appointment_id", apt.ID.String()).
				Msg("no doctor available, appointment left waiting for assignment")
			return triaged, nil
		}
		return nil, err
	}
	return assigned, nil
}

// Get returns an appointment of hospitalID. Appointments of other hospitals are
// reported as missing.
func (s *Service) Get(ctx context.Context, hospitalID, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.appointments.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("appointment", err)
		}
		return nil, apperrors.NewInternal(err)
	}
	if apt.HospitalID != hospitalID {
		return nil, apperrors.NewNotFound("appointment", nil)
	}
	return apt, nil
}

// List returns the appointments of hospitalID matching filter, newest first unless
// the filter says otherwise.
func (s *Service) List(ctx context.Context, hospitalID uuid.UUID, filter model.AppointmentFilter) ([]*model.Appointment, error) {
	filter.HospitalID = hospitalID
	if filter.Limit <= 0 || filter.Limit > DefaultListLimit {
		filter.Limit = DefaultListLimit
	}
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return nil, apperrors.NewValidation(fmt.Sprintf("unknown status %q", st))
		}
	}
	appointments, err := s.appointments.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	if appointments == nil {
		appointments = []*model.Appointment{}
	}
	return appointments, nil
}
