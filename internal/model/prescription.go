package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
)

type PrescriptionItem struct {
	MedicationName string `json:"medication_name" binding:"required"`
	Dosage         string `json:"dosage" binding:"required"`
	Frequency      string `json:"frequency" binding:"required"`
	Duration       string `json:"duration" binding:"required"`
	Quantity       int    `json:"quantity" binding:"required,gt=0"`
	Instructions   string `json:"instructions,omitempty"`
}

// PrescriptionItems is stored as a single jsonb column.
type PrescriptionItems []PrescriptionItem

func (p *PrescriptionItems) Scan(src interface{}) error { return scanJSON(src, p) }

func (p PrescriptionItems) Value() (driver.Value, error) { return valueJSON(p) }

// Prescription is created once per appointment and is immutable apart from dispensing.
type Prescription struct {
	ID            uuid.UUID         `db:"id" json:"id"`
	AppointmentID uuid.UUID         `db:"appointment_id" json:"appointment_id"`
	HospitalID    uuid.UUID         `db:"hospital_id" json:"hospital_id"`
	PatientID     uuid.UUID         `db:"patient_id" json:"patient_id"`
	DoctorID      uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	Items         PrescriptionItems `db:"items" json:"items"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
	DispensedAt   *time.Time        `db:"dispensed_at" json:"dispensed_at,omitempty"`
	DispensedByID *uuid.UUID        `db:"dispensed_by_id" json:"dispensed_by_id,omitempty"`
}

type CreatePrescriptionRequest struct {
	Items []PrescriptionItem `json:"items" binding:"required,min=1,dive"`
}
