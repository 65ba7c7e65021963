package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusProcessed OutboxStatus = "PROCESSED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
}

// Lifecycle event types published on the broker.
const (
	EventAppointmentCreated = "appointment.created"
	EventPatientRegistered  = "patient.registered"
	EventPrescriptionIssued = "prescription.issued"
	EventDoctorAvailability = "doctor.availability"
)

// AppointmentEventType names the event emitted when an appointment enters status.
func AppointmentEventType(status AppointmentStatus) string {
	return "appointment." + strings.ToLower(string(status))
}

// AppointmentEvent is the payload published for appointment lifecycle transitions.
type AppointmentEvent struct {
	AppointmentID    uuid.UUID         `json:"appointment_id"`
	HospitalID       uuid.UUID         `json:"hospital_id"`
	PatientID        uuid.UUID         `json:"patient_id"`
	AssignedDoctorID *uuid.UUID        `json:"assigned_doctor_id,omitempty"`
	From             AppointmentStatus `json:"from,omitempty"`
	To               AppointmentStatus `json:"to"`
	Priority         Priority          `json:"priority"`
	ActorID          uuid.UUID         `json:"actor_id"`
	OccurredAt       time.Time         `json:"occurred_at"`
}
