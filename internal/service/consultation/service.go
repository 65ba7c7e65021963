package consultation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/patientflow/internal/model"
	"github.com/jwalitptl/patientflow/internal/repository"
	"github.com/jwalitptl/patientflow/internal/service/audit"
	"github.com/jwalitptl/patientflow/internal/service/queue"
	"github.com/jwalitptl/patientflow/pkg/ai"
	apperrors "github.com/jwalitptl/patientflow/pkg/errors"
)

// Completer finishes consultations and pharmacy handovers. It is satisfied by *queue.Engine.
type Completer interface {
	CompleteConsultation(ctx context.Context, appointmentID, doctorID uuid.UUID, outcome queue.Outcome) (*model.Appointment, error)
	Dispense(ctx context.Context, appointmentID, actorID uuid.UUID) (*model.Appointment, error)
}

type Service struct {
	appointments  repository.AppointmentRepository
	prescriptions repository.PrescriptionRepository
	engine        Completer
	ai            ai.Client
	auditor       *audit.AuditLogger
	events        queue.Emitter
	now           func() time.Time
}

// NewService builds the notes service. aiClient may be nil, in which case voice
// processing reports the feature as unavailable.
func NewService(
	appointments repository.AppointmentRepository,
	prescriptions repository.PrescriptionRepository,
	engine Completer,
	aiClient ai.Client,
	auditor *audit.AuditLogger,
	events queue.Emitter,
) *Service {
	return &Service{
		appointments:  appointments,
		prescriptions: prescriptions,
		engine:        engine,
		ai:            aiClient,
		auditor:       auditor,
		events:        events,
		now:           time.Now,
	}
}

// AIEnabled reports whether voice processing is configured.
func (s *Service) AIEnabled() bool { return s.ai != nil }

// inConsultation loads an appointment the doctor is currently seeing.
func (s *Service) inConsultation(ctx context.Context, appointmentID, doctorID uuid.UUID, operation string) (*model.Appointment, error) {
	apt, err := s.appointments.Get(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("appointment", err)
		}
		return nil, apperrors.NewInternal(err)
	}
	if apt.AssignedDoctorID == nil || *apt.AssignedDoctorID != doctorID {
		return nil, apperrors.NewNotAssigned()
	}
	if apt.Status != model.AppointmentStatusInConsultation {
		return nil, apperrors.NewInvalidState(operation, apt.Status)
	}
	return apt, nil
}

func (s *Service) saveNote(ctx context.Context, apt *model.Appointment, note model.ConsultationNote, doctorID uuid.UUID, source string) (*model.Appointment, error) {
	next := apt.Clone()
	next.Note = &note
	if err := s.appointments.UpdateNote(ctx, next); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperrors.NewConflict(err)
		}
		return nil, apperrors.NewInternal(err)
	}

	s.auditor.Log(ctx, doctorID, apt.HospitalID, model.AuditActionUpdate, model.AuditEntityNote, apt.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{"source": source},
	})
	return next, nil
}

// SaveDraftNotes replaces the draft verbatim.
func (s *Service) SaveDraftNotes(ctx context.Context, appointmentID, doctorID uuid.UUID, req model.SaveNotesRequest) (*model.Appointment, error) {
	apt, err := s.inConsultation(ctx, appointmentID, doctorID, "save notes for")
	if err != nil {
		return nil, err
	}
	note := model.ConsultationNote{
		Diagnosis:     req.Diagnosis,
		TreatmentPlan: req.TreatmentPlan,
		DoctorNotes:   req.DoctorNotes,
	}
	return s.saveNote(ctx, apt, note, doctorID, "manual")
}

// MergeExtractedNotes merges an extraction into the current draft and saves it only
// when opts.Persist is set.
func (s *Service) MergeExtractedNotes(ctx context.Context, appointmentID, doctorID uuid.UUID, extraction Extraction, opts MergeOptions) (*MergeResult, error) {
	apt, err := s.inConsultation(ctx, appointmentID, doctorID, "merge notes for")
	if err != nil {
		return nil, err
	}

	var draft model.ConsultationNote
	if apt.Note != nil {
		draft = *apt.Note
	}
	result := Merge(draft, extraction, opts.Overwrite)

	if opts.Persist && len(result.Changed) > 0 {
		if _, err := s.saveNote(ctx, apt, result.Note, doctorID, "voice"); err != nil {
			return nil, err
		}
		result.Persisted = true
	}
	return &result, nil
}

// CreatePrescription issues the appointment's only prescription.
func (s *Service) CreatePrescription(ctx context.Context, appointmentID, doctorID uuid.UUID, items []model.PrescriptionItem) (*model.Prescription, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}
	apt, err := s.inConsultation(ctx, appointmentID, doctorID, "prescribe for")
	if err != nil {
		return nil, err
	}

	exists, err := s.prescriptions.Exists(ctx, appointmentID)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	if exists {
		return nil, apperrors.NewAlreadyPrescribed()
	}

	prescription := &model.Prescription{
		ID:            uuid.New(),
		AppointmentID: apt.ID,
		HospitalID:    apt.HospitalID,
		PatientID:     apt.PatientID,
		DoctorID:      doctorID,
		Items:         model.PrescriptionItems(items),
		CreatedAt:     s.now(),
	}
	if err := s.prescriptions.Create(ctx, prescription); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewAlreadyPrescribed()
		}
		return nil, apperrors.NewInternal(err)
	}

	s.auditor.Log(ctx, doctorID, apt.HospitalID, model.AuditActionCreate, model.AuditEntityPrescription, prescription.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{"appointment_id": apt.ID, "items": len(items)},
	})
	if s.events != nil {
		if err := s.events.Emit(ctx, model.EventPrescriptionIssued, prescription); err != nil {
			log.Warn().Err(err).Str("appointment_id", apt.ID.String()).Msg("failed to queue prescription event")
		}
	}
	return prescription, nil
}

func validateItems(items []model.PrescriptionItem) error {
	if len(items) == 0 {
		return apperrors.NewValidation("at least one prescription item is required")
	}
	for i, item := range items {
		fields := []struct{ name, value string }{
			{"medication_name", item.MedicationName},
			{"dosage", item.Dosage},
			{"frequency", item.Frequency},
			{"duration", item.Duration},
		}
		for _, f := range fields {
			if strings.TrimSpace(f.value) == "" {
				return apperrors.NewValidation(fmt.Sprintf("item %d: %s is required", i+1, f.name))
			}
		}
		if item.Quantity <= 0 {
			return apperrors.NewValidation(fmt.Sprintf("item %d: quantity must be positive", i+1))
		}
	}
	return nil
}

// CompleteConsultation requires a diagnosis, then hands over to the queue engine.
func (s *Service) CompleteConsultation(ctx context.Context, appointmentID, doctorID uuid.UUID, referral bool) (*model.Appointment, error) {
	apt, err := s.inConsultation(ctx, appointmentID, doctorID, "complete consultation for")
	if err != nil {
		return nil, err
	}
	if apt.Note == nil || strings.TrimSpace(apt.Note.Diagnosis) == "" {
		return nil, apperrors.NewValidation("a diagnosis is required to complete the consultation")
	}

	hasPrescription, err := s.prescriptions.Exists(ctx, appointmentID)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return s.engine.CompleteConsultation(ctx, appointmentID, doctorID, queue.Outcome{
		HasPendingPrescription: hasPrescription,
		Referral:               referral,
	})
}

// GetPrescription returns the prescription of an appointment in hospitalID.
func (s *Service) GetPrescription(ctx context.Context, hospitalID, appointmentID uuid.UUID) (*model.Prescription, error) {
	prescription, err := s.prescriptions.GetByAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("prescription", err)
		}
		return nil, apperrors.NewInternal(err)
	}
	if prescription.HospitalID != hospitalID {
		return nil, apperrors.NewNotFound("prescription", nil)
	}
	return prescription, nil
}

func (s *Service) ListPendingPrescriptions(ctx context.Context, hospitalID uuid.UUID) ([]*model.Prescription, error) {
	prescriptions, err := s.prescriptions.ListPending(ctx, hospitalID)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return prescriptions, nil
}

// Dispense hands the prescription over and completes the appointment. The
// prescription is stamped after the appointment moves. A failed stamp is only
// logged; the pending list follows the appointment status, so the prescription
// still drops off it.
func (s *Service) Dispense(ctx context.Context, actor *model.Principal, appointmentID uuid.UUID) (*model.Appointment, error) {
	prescription, err := s.GetPrescription(ctx, actor.HospitalID, appointmentID)
	if err != nil {
		return nil, err
	}

	apt, err := s.engine.Dispense(ctx, appointmentID, actor.UserID)
	if err != nil {
		return nil, err
	}

	at := s.now()
	if err := s.prescriptions.MarkDispensed(ctx, appointmentID, actor.UserID, at); err != nil {
		log.Warn().Err(err).Str("appointment_id", appointmentID.String()).Msg("failed to mark prescription dispensed")
		return apt, nil
	}
	s.auditor.Log(ctx, actor.UserID, actor.HospitalID, model.AuditActionUpdate, model.AuditEntityPrescription, prescription.ID, &audit.LogOptions{
		Changes: map[string]interface{}{"dispensed_at": at},
	})
	return apt, nil
}
