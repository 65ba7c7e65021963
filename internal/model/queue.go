package model

import (
	"github.com/google/uuid"
)

type QueueStats struct {
	Total          int `json:"total"`
	Emergency      int `json:"emergency"`
	Urgent         int `json:"urgent"`
	Normal         int `json:"normal"`
	Pending        int `json:"pending"`
	InProgress     int `json:"in_progress"`
	CompletedToday int `json:"completed_today"`
}

type DoctorQueue struct {
	DoctorID     uuid.UUID      `json:"doctor_id"`
	Appointments []*Appointment `json:"appointments"`
	Stats        QueueStats     `json:"stats"`
}

// DoctorLoad counts a doctor's appointments in the active statuses.
type DoctorLoad struct {
	DoctorID        uuid.UUID `db:"doctor_id" json:"doctor_id"`
	CurrentPatients int       `db:"current_patients" json:"current_patients"`
	QueueCount      int       `db:"queue_count" json:"queue_count"`
}

type DoctorSummary struct {
	ID                   uuid.UUID  `json:"id"`
	Name                 string     `json:"name"`
	Email                string     `json:"email"`
	Specialty            string     `json:"specialty"`
	IsAvailable          bool       `json:"is_available"`
	IsBusy               bool       `json:"is_busy"`
	CurrentAppointmentID *uuid.UUID `json:"current_appointment_id,omitempty"`
	CurrentPatients      int        `json:"current_patients"`
	QueueCount           int        `json:"queue_count"`
}

type DoctorRoster struct {
	Doctors        []DoctorSummary `json:"doctors"`
	Count          int             `json:"count"`
	AvailableCount int             `json:"available_count"`
	BusyCount      int             `json:"busy_count"`
}

type Availability struct {
	DoctorID             uuid.UUID  `json:"doctor_id"`
	IsAvailable          bool       `json:"is_available"`
	CurrentPatients      int        `json:"current_patients"`
	CurrentAppointmentID *uuid.UUID `json:"current_appointment_id,omitempty"`
	Message              string     `json:"message,omitempty"`
}
