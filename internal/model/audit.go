package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	UserID     uuid.UUID       `json:"user_id" db:"user_id"`
	HospitalID uuid.UUID       `json:"hospital_id" db:"hospital_id"`
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id" db:"entity_id"`
	Changes    json.RawMessage `json:"changes,omitempty" db:"changes"`
	Metadata   json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	IPAddress  string          `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent  string          `json:"user_agent,omitempty" db:"user_agent"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

const (
	// Action types
	AuditActionCreate     = "create"
	AuditActionRead       = "read"
	AuditActionUpdate     = "update"
	AuditActionLogin      = "login"
	AuditActionLogout     = "logout"
	AuditActionTransition = "transition"
	AuditActionRegister   = "register"

	// Entity types
	AuditEntityHospital     = "hospital"
	AuditEntityUser         = "user"
	AuditEntityPatient      = "patient"
	AuditEntityAppointment  = "appointment"
	AuditEntityPrescription = "prescription"
	AuditEntityNote         = "consultation_note"
)

type AuditFilter struct {
	HospitalID uuid.UUID
	UserID     uuid.UUID
	EntityType string
	EntityID   uuid.UUID
	Action     string
	StartDate  *time.Time
	EndDate    *time.Time
	Pagination
}
