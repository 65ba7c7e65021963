package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/patientflow/internal/model"
	"github.com/jwalitptl/patientflow/internal/repository"
)

type patientRepository struct {
	BaseRepository
}

func NewPatientRepository(base BaseRepository) repository.PatientRepository {
	return &patientRepository{base}
}

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	now := time.Now()
	if patient.ID == uuid.Nil {
		patient.ID = uuid.New()
	}
	patient.CreatedAt, patient.UpdatedAt = now, now

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO patients (
			id, hospital_id, patient_number, first_name, last_name, date_of_birth, gender,
			email, phone, address, blood_group, allergies, medical_history,
			emergency_contact, emergency_phone, status, registered_by_id, created_at, updated_at
		) VALUES (
			:id, :hospital_id, :patient_number, :first_name, :last_name, :date_of_birth, :gender,
			:email, :phone, :address, :blood_group, :allergies, :medical_history,
			:emergency_contact, :emergency_phone, :status, :registered_by_id, :created_at, :updated_at
		)`, patient)
	return wrap(err, "create patient")
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	var patient model.Patient
	if err := r.db.GetContext(ctx, &patient, `SELECT * FROM patients WHERE id = $1`, id); err != nil {
		return nil, wrap(err, "get patient")
	}
	return &patient, nil
}

func (r *patientRepository) Update(ctx context.Context, patient *model.Patient) error {
	patient.UpdatedAt = time.Now()
	result, err := r.db.NamedExecContext(ctx, `
		UPDATE patients SET
			first_name = :first_name,
			last_name = :last_name,
			email = :email,
			phone = :phone,
			address = :address,
			blood_group = :blood_group,
			allergies = :allergies,
			medical_history = :medical_history,
			emergency_contact = :emergency_contact,
			emergency_phone = :emergency_phone,
			status = :status,
			updated_at = :updated_at
		WHERE id = :id`, patient)
	if err != nil {
		return fmt.Errorf("failed to update patient: %w", err)
	}
	return requireRow(result)
}

func (r *patientRepository) List(ctx context.Context, filter model.PatientFilter) ([]*model.Patient, int, error) {
	where := ` WHERE hospital_id = $1`
	args := []interface{}{filter.HospitalID}

	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		n := len(args)
		where += fmt.Sprintf(` AND (first_name ILIKE $%d OR last_name ILIKE $%d OR patient_number ILIKE $%d
			OR phone ILIKE $%d OR email ILIKE $%d)`, n, n, n, n, n)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM patients`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count patients: %w", err)
	}

	page := filter.Pagination.Normalize()
	query := `SELECT * FROM patients` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, page.PageSize, page.Offset())

	var patients []*model.Patient
	if err := r.db.SelectContext(ctx, &patients, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, total, nil
}
