// Package memory implements the repository interfaces in process. It backs the
// "memory" database driver and the package tests, with the same conditional-update
// semantics as the postgres implementation.
package memory

import (
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/patientflow/internal/model"
	"github.com/jwalitptl/patientflow/internal/repository"
)

type Store struct {
	mu            sync.RWMutex
	hospitals     map[uuid.UUID]*model.Hospital
	users         map[uuid.UUID]*model.User
	patients      map[uuid.UUID]*model.Patient
	appointments  map[uuid.UUID]*model.Appointment
	prescriptions map[uuid.UUID]*model.Prescription // keyed by appointment id
	auditLogs     []*model.AuditLog
	outbox        map[uuid.UUID]*model.OutboxEvent
	inflight      map[uuid.UUID]bool
}

func NewStore() *Store {
	return &Store{
		hospitals:     make(map[uuid.UUID]*model.Hospital),
		users:         make(map[uuid.UUID]*model.User),
		patients:      make(map[uuid.UUID]*model.Patient),
		appointments:  make(map[uuid.UUID]*model.Appointment),
		prescriptions: make(map[uuid.UUID]*model.Prescription),
		outbox:        make(map[uuid.UUID]*model.OutboxEvent),
		inflight:      make(map[uuid.UUID]bool),
	}
}

func (s *Store) Hospitals() repository.HospitalRepository { return &hospitalRepository{s} }

func (s *Store) Users() repository.UserRepository { return &userRepository{s} }

func (s *Store) Patients() repository.PatientRepository { return &patientRepository{s} }

func (s *Store) Appointments() repository.AppointmentRepository { return &appointmentRepository{s} }

func (s *Store) Prescriptions() repository.PrescriptionRepository {
	return &prescriptionRepository{s}
}

func (s *Store) Audit() repository.AuditRepository { return &auditRepository{s} }

func (s *Store) Outbox() repository.OutboxRepository { return &outboxRepository{s} }
