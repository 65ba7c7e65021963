package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/patientflow/internal/model"
	"github.com/jwalitptl/patientflow/internal/repository"
)

type hospitalRepository struct {
	BaseRepository
}

func NewHospitalRepository(base BaseRepository) repository.HospitalRepository {
	return &hospitalRepository{base}
}

func (r *hospitalRepository) CreateWithAdmin(ctx context.Context, hospital *model.Hospital, admin *model.User) error {
	now := time.Now()
	if hospital.ID == uuid.Nil {
		hospital.ID = uuid.New()
	}
	hospital.CreatedAt, hospital.UpdatedAt = now, now
	if admin.ID == uuid.Nil {
		admin.ID = uuid.New()
	}
	admin.HospitalID = hospital.ID
	admin.CreatedAt, admin.UpdatedAt = now, now
	if admin.Version == 0 {
		admin.Version = 1
	}

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO hospitals (
				id, name, email, phone, address, registration_no, is_active, created_at, updated_at
			) VALUES (
				:id, :name, :email, :phone, :address, :registration_no, :is_active, :created_at, :updated_at
			)`, hospital)
		if err != nil {
			return err
		}
		return insertUser(ctx, tx, admin)
	})
	return wrap(err, "create hospital")
}

func (r *hospitalRepository) Get(ctx context.Context, id uuid.UUID) (*model.Hospital, error) {
	var hospital model.Hospital
	if err := r.db.GetContext(ctx, &hospital, `SELECT * FROM hospitals WHERE id = $1`, id); err != nil {
		return nil, wrap(err, "get hospital")
	}
	return &hospital, nil
}

func (r *hospitalRepository) ExistsByEmailOrRegistration(ctx context.Context, email string, registrationNo *string) (bool, error) {
	var found bool
	err := r.db.GetContext(ctx, &found, `
		SELECT EXISTS (
			SELECT 1 FROM hospitals
			WHERE LOWER(email) = LOWER($1) OR ($2::text IS NOT NULL AND registration_no = $2::text)
		)`, email, registrationNo)
	if err != nil {
		return false, fmt.Errorf("failed to check hospital uniqueness: %w", err)
	}
	return found, nil
}

type userRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

func insertUser(ctx context.Context, ext sqlx.ExtContext, user *model.User) error {
	_, err := sqlx.NamedExecContext(ctx, ext, `
		INSERT INTO users (
			id, hospital_id, email, password_hash, first_name, last_name, phone, role,
			specialty, is_active, is_available, current_appointment_id, version, created_at, updated_at
		) VALUES (
			:id, :hospital_id, :email, :password_hash, :first_name, :last_name, :phone, :role,
			:specialty, :is_active, :is_available, :current_appointment_id, :version, :created_at, :updated_at
		)`, user)
	return err
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	now := time.Now()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt, user.UpdatedAt = now, now
	if user.Version == 0 {
		user.Version = 1
	}
	return wrap(insertUser(ctx, r.db, user), "create user")
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	if err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = $1`, id); err != nil {
		return nil, wrap(err, "get user")
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE LOWER(email) = LOWER($1)`, email); err != nil {
		return nil, wrap(err, "get user by email")
	}
	return &user, nil
}

func (r *userRepository) ListDoctors(ctx context.Context, hospitalID uuid.UUID, availableOnly bool) ([]*model.User, error) {
	query := `
		SELECT * FROM users
		WHERE hospital_id = $1 AND role = $2 AND is_active
		AND ($3 = FALSE OR is_available)
		ORDER BY id
	`
	var doctors []*model.User
	if err := r.db.SelectContext(ctx, &doctors, query, hospitalID, model.RoleDoctor, availableOnly); err != nil {
		return nil, fmt.Errorf("failed to list doctors: %w", err)
	}
	return doctors, nil
}

func (r *userRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = $2, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return requireRow(result)
}

func (r *userRepository) SetAvailability(ctx context.Context, id uuid.UUID, isAvailable, clearCurrent bool) (*model.User, error) {
	query := `
		UPDATE users SET
			is_available = $2,
			current_appointment_id = CASE WHEN $3 THEN NULL ELSE current_appointment_id END,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1
		RETURNING *
	`
	var user model.User
	if err := r.db.GetContext(ctx, &user, query, id, isAvailable, clearCurrent); err != nil {
		return nil, wrap(err, "set availability")
	}
	return &user, nil
}

func (r *userRepository) ClaimAppointment(ctx context.Context, doctorID, appointmentID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET current_appointment_id = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND current_appointment_id IS NULL`, doctorID, appointmentID)
	if err != nil {
		return fmt.Errorf("failed to claim appointment: %w", err)
	}
	return r.settle(ctx, result, doctorID)
}

func (r *userRepository) ReleaseAppointment(ctx context.Context, doctorID, appointmentID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET current_appointment_id = NULL, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND current_appointment_id = $2`, doctorID, appointmentID)
	if err != nil {
		return fmt.Errorf("failed to release appointment: %w", err)
	}
	return r.settle(ctx, result, doctorID)
}

func (r *userRepository) settle(ctx context.Context, result interface{ RowsAffected() (int64, error) }, id uuid.UUID) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return r.missOrConflict(ctx, "users", id)
	}
	return nil
}

func requireRow(result interface{ RowsAffected() (int64, error) }) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}
