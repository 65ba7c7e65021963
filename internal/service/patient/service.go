package patient

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
	apperrors "github.com/jwalitptl/patientflow/pkg/errors"
)

// numberAttempts bounds retries when a generated patient number collides.
const numberAttempts = 3

type Service struct {
	repo    repository.PatientRepository
	auditor *audit.AuditLogger
	events  queue.Emitter
	now     func() time.Time
}

func NewService(repo repository.PatientRepository, auditor *audit.AuditLogger, events queue.Emitter) *Service {
	return &Service{repo: repo, auditor: auditor, events: events, now: time.Now}
}

// NewPatientNumber returns "PAT-" followed by 8 upper-case hex characters.
func NewPatientNumber() string {
	return "PAT-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *Service) Register(ctx context.Context, actor *model.Principal, req model.CreatePatientRequest) (*model.Patient, error) {
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return nil, apperrors.NewValidation("first_name and last_name are required")
	}
	dob, err := time.Parse(model.DateLayout, strings.TrimSpace(req.DateOfBirth))
	if err != nil {
		return nil, apperrors.NewValidation("date_of_birth must be a date in YYYY-MM-DD format")
	}
	if dob.After(s.now()) {
		return nil, apperrors.NewValidation("date_of_birth cannot be in the future")
	}
	if !validGender(req.Gender) {
		return nil, apperrors.NewValidation("gender must be one of male, female, other")
	}

	registeredBy := actor.UserID
	patient := &model.Patient{
		HospitalID:       actor.HospitalID,
		FirstName:        strings.TrimSpace(req.FirstName),
		LastName:         strings.TrimSpace(req.LastName),
		DateOfBirth:      dob,
		Gender:           req.Gender,
		Email:            strings.TrimSpace(req.Email),
		Phone:            strings.TrimSpace(req.Phone),
		Address:          strings.TrimSpace(req.Address),
		BloodGroup:       req.BloodGroup,
		Allergies:        req.Allergies,
		MedicalHistory:   req.MedicalHistory,
		EmergencyContact: strings.TrimSpace(req.EmergencyContact),
		EmergencyPhone:   strings.TrimSpace(req.EmergencyPhone),
		Status:           model.PatientStatusActive,
		RegisteredByID:   &registeredBy,
	}

	for attempt := 1; ; attempt++ {
		patient.ID = uuid.New()
		patient.PatientNumber = NewPatientNumber()
		err = s.repo.Create(ctx, patient)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicate) || attempt == numberAttempts {
			return nil, apperrors.NewInternal(fmt.Errorf("failed to register patient: %w", err))
		}
	}

	s.auditor.Log(ctx, actor.UserID, actor.HospitalID, model.AuditActionCreate, model.AuditEntityPatient, patient.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{"patient_number": patient.PatientNumber},
	})
	if s.events != nil {
		payload := map[string]interface{}{
			"patient_id":     patient.ID,
			"hospital_id":    patient.HospitalID,
			"patient_number": patient.PatientNumber,
		}
		if err := s.events.Emit(ctx, model.EventPatientRegistered, payload); err != nil {
			log.Warn().Err(err).Str("patient_id", patient.ID.String()).Msg("failed to queue patient event")
		}
	}
	return patient, nil
}

func validGender(g model.Gender) bool {
	switch g {
	case model.GenderMale, model.GenderFemale, model.GenderOther:
		return true
	}
	return false
}

// Get returns a patient of hospitalID. Patients of other hospitals are reported as missing.
func (s *Service) Get(ctx context.Context, hospitalID, id uuid.UUID) (*model.Patient, error) {
	patient, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("patient", err)
		}
		return nil, apperrors.NewInternal(err)
	}
	if patient.HospitalID != hospitalID {
		return nil, apperrors.NewNotFound("patient", nil)
	}
	return patient, nil
}

func (s *Service) List(ctx context.Context, hospitalID uuid.UUID, search string, page model.Pagination) ([]*model.Patient, int, error) {
	patients, total, err := s.repo.List(ctx, model.PatientFilter{
		HospitalID: hospitalID,
		Search:     search,
		Pagination: page.Normalize(),
	})
	if err != nil {
		return nil, 0, apperrors.NewInternal(err)
	}
	if patients == nil {
		patients = []*model.Patient{}
	}
	return patients, total, nil
}

func (s *Service) Update(ctx context.Context, actor *model.Principal, id uuid.UUID, req model.UpdatePatientRequest) (*model.Patient, error) {
	patient, err := s.Get(ctx, actor.HospitalID, id)
	if err != nil {
		return nil, err
	}

	changes := map[string]interface{}{}
	set := func(field string, dst *string, src *string) {
		if src == nil {
			return
		}
		v := strings.TrimSpace(*src)
		if v != *dst {
			changes[field] = v
			*dst = v
		}
	}
	if req.FirstName != nil && strings.TrimSpace(*req.FirstName) == "" {
		return nil, apperrors.NewValidation("first_name cannot be empty")
	}
	if req.LastName != nil && strings.TrimSpace(*req.LastName) == "" {
		return nil, apperrors.NewValidation("last_name cannot be empty")
	}
	set("first_name", &patient.FirstName, req.FirstName)
	set("last_name", &patient.LastName, req.LastName)
	set("email", &patient.Email, req.Email)
	set("phone", &patient.Phone, req.Phone)
	set("address", &patient.Address, req.Address)
	set("blood_group", &patient.BloodGroup, req.BloodGroup)
	set("allergies", &patient.Allergies, req.Allergies)
	set("medical_history", &patient.MedicalHistory, req.MedicalHistory)
	set("emergency_contact", &patient.EmergencyContact, req.EmergencyContact)
	set("emergency_phone", &patient.EmergencyPhone, req.EmergencyPhone)
	if req.Status != nil && *req.Status != patient.Status {
		if *req.Status != model.PatientStatusActive && *req.Status != model.PatientStatusInactive {
			return nil, apperrors.NewValidation("status must be active or inactive")
		}
		changes["status"] = *req.Status
		patient.Status = *req.Status
	}

	if len(changes) == 0 {
		return patient, nil
	}
	if err := s.repo.Update(ctx, patient); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("patient", err)
		}
		return nil, apperrors.NewInternal(err)
	}

	s.auditor.Log(ctx, actor.UserID, actor.HospitalID, model.AuditActionUpdate, model.AuditEntityPatient, patient.ID, &audit.LogOptions{
		Changes: changes,
	})
	return patient, nil
}
