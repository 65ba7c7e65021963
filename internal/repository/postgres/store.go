package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/patientflow/internal/repository"
)

// Store groups the postgres repositories over one connection pool.
type Store struct {
	base BaseRepository
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{base: NewBaseRepository(db)}
}

func (s *Store) Hospitals() repository.HospitalRepository { return NewHospitalRepository(s.base) }

func (s *Store) Users() repository.UserRepository { return NewUserRepository(s.base) }

func (s *Store) Patients() repository.PatientRepository { return NewPatientRepository(s.base) }

func (s *Store) Appointments() repository.AppointmentRepository {
	return NewAppointmentRepository(s.base)
}

func (s *Store) Prescriptions() repository.PrescriptionRepository {
	return NewPrescriptionRepository(s.base)
}

func (s *Store) Audit() repository.AuditRepository { return NewAuditRepository(s.base) }

func (s *Store) Outbox() repository.OutboxRepository { return NewOutboxRepository(s.base) }
