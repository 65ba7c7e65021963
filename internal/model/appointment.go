package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusCreated         AppointmentStatus = "CREATED"
	AppointmentStatusVitalsRecorded  AppointmentStatus = "VITALS_RECORDED"
	AppointmentStatusAssigned        AppointmentStatus = "ASSIGNED"
	AppointmentStatusInQueue         AppointmentStatus = "IN_QUEUE"
	AppointmentStatusInConsultation  AppointmentStatus = "IN_CONSULTATION"
	AppointmentStatusPendingPharmacy AppointmentStatus = "PENDING_PHARMACY"
	AppointmentStatusPendingReferral AppointmentStatus = "PENDING_REFERRAL"
	AppointmentStatusCompleted       AppointmentStatus = "COMPLETED"
	AppointmentStatusCancelled       AppointmentStatus = "CANCELLED"
)

func (s AppointmentStatus) String() string { return string(s) }

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusCreated, AppointmentStatusVitalsRecorded, AppointmentStatusAssigned,
		AppointmentStatusInQueue, AppointmentStatusInConsultation, AppointmentStatusPendingPharmacy,
		AppointmentStatusPendingReferral, AppointmentStatusCompleted, AppointmentStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s AppointmentStatus) IsTerminal() bool {
	return s == AppointmentStatusCompleted || s == AppointmentStatusCancelled
}

// HoldsDoctor reports whether an appointment in this status carries an assigned doctor.
func (s AppointmentStatus) HoldsDoctor() bool {
	switch s {
	case AppointmentStatusAssigned, AppointmentStatusInQueue, AppointmentStatusInConsultation,
		AppointmentStatusPendingPharmacy, AppointmentStatusPendingReferral, AppointmentStatusCompleted:
		return true
	}
	return false
}

// ActiveStatuses count towards a doctor's load.
var ActiveStatuses = []AppointmentStatus{
	AppointmentStatusAssigned,
	AppointmentStatusInQueue,
	AppointmentStatusInConsultation,
}

func (s AppointmentStatus) IsActive() bool {
	return s == AppointmentStatusAssigned || s == AppointmentStatusInQueue || s == AppointmentStatusInConsultation
}

type Priority string

const (
	PriorityNormal    Priority = "NORMAL"
	PriorityUrgent    Priority = "URGENT"
	PriorityEmergency Priority = "EMERGENCY"
)

// Rank orders priorities: NORMAL < URGENT < EMERGENCY. Unknown values rank below NORMAL.
func (p Priority) Rank() int {
	switch p {
	case PriorityEmergency:
		return 3
	case PriorityUrgent:
		return 2
	case PriorityNormal:
		return 1
	}
	return 0
}

func (p Priority) Valid() bool { return p.Rank() > 0 }

type Appointment struct {
	Base
	AppointmentNumber       string            `db:"appointment_number" json:"appointment_number"`
	HospitalID              uuid.UUID         `db:"hospital_id" json:"hospital_id"`
	PatientID               uuid.UUID         `db:"patient_id" json:"patient_id"`
	PatientName             string            `db:"patient_name" json:"patient_name,omitempty"`
	CreatedByID             *uuid.UUID        `db:"created_by_id" json:"created_by_id,omitempty"`
	AssignedDoctorID        *uuid.UUID        `db:"assigned_doctor_id" json:"assigned_doctor_id,omitempty"`
	CancelledDoctorID       *uuid.UUID        `db:"cancelled_doctor_id" json:"cancelled_doctor_id,omitempty"`
	Status                  AppointmentStatus `db:"status" json:"status"`
	Priority                Priority          `db:"priority" json:"priority"`
	ChiefComplaint          string            `db:"chief_complaint" json:"chief_complaint,omitempty"`
	Vitals                  *Vitals           `db:"vitals" json:"vitals,omitempty"`
	Note                    *ConsultationNote `db:"consultation_note" json:"consultation_note,omitempty"`
	CancelReason            *string           `db:"cancel_reason" json:"cancel_reason,omitempty"`
	VitalsRecordedAt        *time.Time        `db:"vitals_recorded_at" json:"vitals_recorded_at,omitempty"`
	AssignedAt              *time.Time        `db:"assigned_at" json:"assigned_at,omitempty"`
	ConsultationStartedAt   *time.Time        `db:"consultation_started_at" json:"consultation_started_at,omitempty"`
	ConsultationCompletedAt *time.Time        `db:"consultation_completed_at" json:"consultation_completed_at,omitempty"`
	CompletedAt             *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
	DispensedAt             *time.Time        `db:"dispensed_at" json:"dispensed_at,omitempty"`
	CancelledAt             *time.Time        `db:"cancelled_at" json:"cancelled_at,omitempty"`
	Version                 int               `db:"version" json:"version"`
}

// Clone returns a deep copy so callers can mutate a snapshot without touching shared state.
func (a *Appointment) Clone() *Appointment {
	if a == nil {
		return nil
	}
	c := *a
	c.CreatedByID = cloneUUID(a.CreatedByID)
	c.AssignedDoctorID = cloneUUID(a.AssignedDoctorID)
	c.CancelledDoctorID = cloneUUID(a.CancelledDoctorID)
	c.CancelReason = cloneString(a.CancelReason)
	c.VitalsRecordedAt = cloneTime(a.VitalsRecordedAt)
	c.AssignedAt = cloneTime(a.AssignedAt)
	c.ConsultationStartedAt = cloneTime(a.ConsultationStartedAt)
	c.ConsultationCompletedAt = cloneTime(a.ConsultationCompletedAt)
	c.CompletedAt = cloneTime(a.CompletedAt)
	c.DispensedAt = cloneTime(a.DispensedAt)
	c.CancelledAt = cloneTime(a.CancelledAt)
	if a.Vitals != nil {
		v := *a.Vitals
		c.Vitals = &v
	}
	if a.Note != nil {
		n := *a.Note
		c.Note = &n
	}
	return &c
}

// LatestStamp returns the most recent lifecycle timestamp, used to keep stamps monotonic.
func (a *Appointment) LatestStamp() time.Time {
	latest := a.CreatedAt
	for _, t := range []*time.Time{
		a.VitalsRecordedAt, a.AssignedAt, a.ConsultationStartedAt,
		a.ConsultationCompletedAt, a.CompletedAt, a.CancelledAt,
	} {
		if t != nil && t.After(latest) {
			latest = *t
		}
	}
	return latest
}

// ConsultationNote is the doctor's draft documentation for one appointment.
type ConsultationNote struct {
	Diagnosis     string `json:"diagnosis"`
	TreatmentPlan string `json:"treatment_plan"`
	DoctorNotes   string `json:"doctor_notes"`
}

func (n *ConsultationNote) Scan(src interface{}) error { return scanJSON(src, n) }

func (n ConsultationNote) Value() (driver.Value, error) { return valueJSON(n) }

type CreateAppointmentRequest struct {
	PatientID      uuid.UUID `json:"patient_id" binding:"required"`
	Priority       Priority  `json:"priority" binding:"omitempty,priority"`
	ChiefComplaint string    `json:"chief_complaint" binding:"max=2000"`
	Vitals         *Vitals   `json:"vitals"`
	AutoAssign     bool      `json:"auto_assign"`
}

type AssignDoctorRequest struct {
	DoctorID *uuid.UUID `json:"doctor_id"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type ConsultationAction string

const (
	ConsultationActionStart    ConsultationAction = "start"
	ConsultationActionComplete ConsultationAction = "complete"
)

type ConsultationActionRequest struct {
	AppointmentID uuid.UUID          `json:"appointment_id" binding:"required"`
	Action        ConsultationAction `json:"action" binding:"required,oneof=start complete"`
	Referral      bool               `json:"referral"`
}

type SaveNotesRequest struct {
	Diagnosis     string `json:"diagnosis" binding:"max=5000"`
	TreatmentPlan string `json:"treatment_plan" binding:"max=10000"`
	DoctorNotes   string `json:"doctor_notes" binding:"max=20000"`
}

// AppointmentFilter narrows list queries. Zero values mean "any".
type AppointmentFilter struct {
	HospitalID uuid.UUID
	PatientID  uuid.UUID
	DoctorID   uuid.UUID
	// InvolvingDoctorID also matches appointments cancelled while with the doctor.
	InvolvingDoctorID uuid.UUID
	Statuses          []AppointmentStatus
	CompletedSince    *time.Time
	Limit             int
	NewestFirst       bool
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
