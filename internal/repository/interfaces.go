package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/patientflow/internal/model"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict means a conditional update matched no row because the record changed
	// after it was read.
	ErrConflict  = errors.New("record was modified concurrently")
	ErrDuplicate = errors.New("record already exists")
)

// All repository interfaces in one file
type (
	HospitalRepository interface {
		// CreateWithAdmin inserts the hospital and its first admin in one transaction.
		CreateWithAdmin(ctx context.Context, hospital *model.Hospital, admin *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.Hospital, error)
		ExistsByEmailOrRegistration(ctx context.Context, email string, registrationNo *string) (bool, error)
	}

	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		// ListDoctors returns the active doctors of a hospital.
		ListDoctors(ctx context.Context, hospitalID uuid.UUID, availableOnly bool) ([]*model.User, error)
		UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
		// SetAvailability updates is_available and, when clearCurrent is set, also clears
		// current_appointment_id.
		SetAvailability(ctx context.Context, id uuid.UUID, isAvailable, clearCurrent bool) (*model.User, error)
		// ClaimAppointment sets current_appointment_id only if it is currently empty.
		ClaimAppointment(ctx context.Context, doctorID, appointmentID uuid.UUID) error
		// ReleaseAppointment clears current_appointment_id only if it still equals appointmentID.
		ReleaseAppointment(ctx context.Context, doctorID, appointmentID uuid.UUID) error
	}

	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		Update(ctx context.Context, patient *model.Patient) error
		List(ctx context.Context, filter model.PatientFilter) ([]*model.Patient, int, error)
	}

	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		// Update writes the lifecycle fields if the stored version still equals
		// appointment.Version, and bumps appointment.Version on success.
		Update(ctx context.Context, appointment *model.Appointment) error
		// UpdateNote writes only the consultation note, with the same version check as Update.
		UpdateNote(ctx context.Context, appointment *model.Appointment) error
		List(ctx context.Context, filter model.AppointmentFilter) ([]*model.Appointment, error)
		DoctorLoads(ctx context.Context, hospitalID uuid.UUID) (map[uuid.UUID]model.DoctorLoad, error)
		CountCompletedSince(ctx context.Context, doctorID uuid.UUID, since time.Time) (int, error)
	}

	PrescriptionRepository interface {
		// Create fails with ErrDuplicate when the appointment already has a prescription.
		Create(ctx context.Context, prescription *model.Prescription) error
		GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.Prescription, error)
		Exists(ctx context.Context, appointmentID uuid.UUID) (bool, error)
		MarkDispensed(ctx context.Context, appointmentID, dispensedBy uuid.UUID, at time.Time) error
		ListPending(ctx context.Context, hospitalID uuid.UUID) ([]*model.Prescription, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditLog, int, error)
		Cleanup(ctx context.Context, before time.Time) (int64, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// ProcessPending locks up to limit due events, hands each to fn and records the
		// outcome in the same transaction. A non-nil error from fn schedules a retry.
		ProcessPending(ctx context.Context, limit int, retryDelay time.Duration, fn func(*model.OutboxEvent) error) (processed, failed int, err error)
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)

// Store hands out the repositories of one backend.
type Store interface {
	Hospitals() HospitalRepository
	Users() UserRepository
	Patients() PatientRepository
	Appointments() AppointmentRepository
	Prescriptions() PrescriptionRepository
	Audit() AuditRepository
	Outbox() OutboxRepository
}
