package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/patientflow/internal/model"
	"github.com/jwalitptl/patientflow/internal/repository"
)

type appointmentRepository struct {
	BaseRepository
}

func NewAppointmentRepository(base BaseRepository) repository.AppointmentRepository {
	return &appointmentRepository{base}
}

const selectAppointments = `
	SELECT a.*, COALESCE(p.first_name || ' ' || p.last_name, '') AS patient_name
	FROM appointments a
	LEFT JOIN patients p ON p.id = a.patient_id
`

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	now := time.Now()
	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}
	if appointment.CreatedAt.IsZero() {
		appointment.CreatedAt = now
	}
	appointment.UpdatedAt = now
	appointment.Version = 1

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO appointments (
			id, appointment_number, hospital_id, patient_id, created_by_id, assigned_doctor_id,
			status, priority, chief_complaint, vitals, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		appointment.ID,
		appointment.AppointmentNumber,
		appointment.HospitalID,
		appointment.PatientID,
		appointment.CreatedByID,
		appointment.AssignedDoctorID,
		appointment.Status,
		appointment.Priority,
		appointment.ChiefComplaint,
		appointment.Vitals,
		appointment.Version,
		appointment.CreatedAt,
		appointment.UpdatedAt,
	)
	return wrap(err, "create appointment")
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var appointment model.Appointment
	if err := r.db.GetContext(ctx, &appointment, selectAppointments+` WHERE a.id = $1`, id); err != nil {
		return nil, wrap(err, "get appointment")
	}
	return &appointment, nil
}

func (r *appointmentRepository) Update(ctx context.Context, appointment *model.Appointment) error {
	query := `
		UPDATE appointments SET
			assigned_doctor_id = $3,
			status = $4,
			vitals = $5,
			cancel_reason = $6,
			vitals_recorded_at = $7,
			assigned_at = $8,
			consultation_started_at = $9,
			consultation_completed_at = $10,
			completed_at = $11,
			cancelled_at = $12,
			cancelled_doctor_id = $13,
			dispensed_at = $14,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`
	row := r.db.QueryRowxContext(ctx, query,
		appointment.ID,
		appointment.Version,
		appointment.AssignedDoctorID,
		appointment.Status,
		appointment.Vitals,
		appointment.CancelReason,
		appointment.VitalsRecordedAt,
		appointment.AssignedAt,
		appointment.ConsultationStartedAt,
		appointment.ConsultationCompletedAt,
		appointment.CompletedAt,
		appointment.CancelledAt,
		appointment.CancelledDoctorID,
		appointment.DispensedAt,
	)
	return r.scanVersion(ctx, row, appointment)
}

func (r *appointmentRepository) UpdateNote(ctx context.Context, appointment *model.Appointment) error {
	row := r.db.QueryRowxContext(ctx, `
		UPDATE appointments SET consultation_note = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at`,
		appointment.ID, appointment.Version, appointment.Note)
	return r.scanVersion(ctx, row, appointment)
}

func (r *appointmentRepository) scanVersion(ctx context.Context, row interface{ Scan(...interface{}) error }, appointment *model.Appointment) error {
	var (
		version   int
		updatedAt time.Time
	)
	if err := row.Scan(&version, &updatedAt); err != nil {
		if wrapped := wrap(err, "update appointment"); !errors.Is(wrapped, repository.ErrNotFound) {
			return wrapped
		}
		return r.missOrConflict(ctx, "appointments", appointment.ID)
	}
	appointment.Version = version
	appointment.UpdatedAt = updatedAt
	return nil
}

func (r *appointmentRepository) List(ctx context.Context, filter model.AppointmentFilter) ([]*model.Appointment, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.HospitalID != uuid.Nil {
		add("a.hospital_id = $%d", filter.HospitalID)
	}
	if filter.PatientID != uuid.Nil {
		add("a.patient_id = $%d", filter.PatientID)
	}
	if filter.DoctorID != uuid.Nil {
		add("a.assigned_doctor_id = $%d", filter.DoctorID)
	}
	if filter.InvolvingDoctorID != uuid.Nil {
		add("(a.assigned_doctor_id = $%[1]d OR a.cancelled_doctor_id = $%[1]d)", filter.InvolvingDoctorID)
	}
	if len(filter.Statuses) > 0 {
		add("a.status = ANY($%d)", pq.Array(statusStrings(filter.Statuses)))
	}
	if filter.CompletedSince != nil {
		add("a.consultation_completed_at >= $%d", *filter.CompletedSince)
	}

	query := selectAppointments
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if filter.NewestFirst {
		query += " ORDER BY a.created_at DESC"
	} else {
		query += " ORDER BY a.created_at ASC"
	}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) DoctorLoads(ctx context.Context, hospitalID uuid.UUID) (map[uuid.UUID]model.DoctorLoad, error) {
	query := `
		SELECT
			assigned_doctor_id AS doctor_id,
			COUNT(*) AS current_patients,
			COUNT(*) FILTER (WHERE status <> $3) AS queue_count
		FROM appointments
		WHERE hospital_id = $1 AND assigned_doctor_id IS NOT NULL AND status = ANY($2)
		GROUP BY assigned_doctor_id
	`
	var rows []model.DoctorLoad
	err := r.db.SelectContext(ctx, &rows, query,
		hospitalID, pq.Array(statusStrings(model.ActiveStatuses)), model.AppointmentStatusInConsultation)
	if err != nil {
		return nil, fmt.Errorf("failed to load doctor queues: %w", err)
	}

	loads := make(map[uuid.UUID]model.DoctorLoad, len(rows))
	for _, l := range rows {
		loads[l.DoctorID] = l
	}
	return loads, nil
}

func (r *appointmentRepository) CountCompletedSince(ctx context.Context, doctorID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM appointments
		WHERE assigned_doctor_id = $1 AND consultation_completed_at >= $2`, doctorID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count completed appointments: %w", err)
	}
	return count, nil
}

func statusStrings(statuses []model.AppointmentStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

type prescriptionRepository struct {
	BaseRepository
}

func NewPrescriptionRepository(base BaseRepository) repository.PrescriptionRepository {
	return &prescriptionRepository{base}
}

func (r *prescriptionRepository) Create(ctx context.Context, prescription *model.Prescription) error {
	if prescription.ID == uuid.Nil {
		prescription.ID = uuid.New()
	}
	if prescription.CreatedAt.IsZero() {
		prescription.CreatedAt = time.Now()
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO prescriptions (id, appointment_id, hospital_id, patient_id, doctor_id, items, created_at)
		VALUES (:id, :appointment_id, :hospital_id, :patient_id, :doctor_id, :items, :created_at)`, prescription)
	return wrap(err, "create prescription")
}

func (r *prescriptionRepository) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.Prescription, error) {
	var prescription model.Prescription
	err := r.db.GetContext(ctx, &prescription, `SELECT * FROM prescriptions WHERE appointment_id = $1`, appointmentID)
	if err != nil {
		return nil, wrap(err, "get prescription")
	}
	return &prescription, nil
}

func (r *prescriptionRepository) Exists(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	var found bool
	err := r.db.GetContext(ctx, &found, `SELECT EXISTS (SELECT 1 FROM prescriptions WHERE appointment_id = $1)`, appointmentID)
	if err != nil {
		return false, fmt.Errorf("failed to check prescription: %w", err)
	}
	return found, nil
}

func (r *prescriptionRepository) MarkDispensed(ctx context.Context, appointmentID, dispensedBy uuid.UUID, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE prescriptions SET dispensed_at = $2, dispensed_by_id = $3
		WHERE appointment_id = $1 AND dispensed_at IS NULL`, appointmentID, at, dispensedBy)
	if err != nil {
		return fmt.Errorf("failed to mark prescription dispensed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}
	found, err := r.Exists(ctx, appointmentID)
	if err != nil {
		return err
	}
	if !found {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

func (r *prescriptionRepository) ListPending(ctx context.Context, hospitalID uuid.UUID) ([]*model.Prescription, error) {
	var prescriptions []*model.Prescription
	err := r.db.SelectContext(ctx, &prescriptions, `
		SELECT p.* FROM prescriptions p
		JOIN appointments a ON a.id = p.appointment_id
		WHERE p.hospital_id = $1 AND p.dispensed_at IS NULL AND a.status = $2
		ORDER BY p.created_at ASC`, hospitalID, model.AppointmentStatusPendingPharmacy)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending prescriptions: %w", err)
	}
	return prescriptions, nil
}
