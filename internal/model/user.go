package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RoleNurse        Role = "NURSE"
	RoleDoctor       Role = "DOCTOR"
	RoleReceptionist Role = "RECEPTIONIST"
	RolePharmacist   Role = "PHARMACIST"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleNurse, RoleDoctor, RoleReceptionist, RolePharmacist:
		return true
	}
	return false
}

const DefaultSpecialty = "General Physician"

// User is a hospital staff member. Doctors additionally carry availability state, which
// only the queue engine mutates.
type User struct {
	Base
	HospitalID           uuid.UUID  `json:"hospital_id" db:"hospital_id"`
	Email                string     `json:"email" db:"email"`
	PasswordHash         string     `json:"-" db:"password_hash"`
	FirstName            string     `json:"first_name" db:"first_name"`
	LastName             string     `json:"last_name" db:"last_name"`
	Phone                string     `json:"phone,omitempty" db:"phone"`
	Role                 Role       `json:"role" db:"role"`
	Specialty            string     `json:"specialty,omitempty" db:"specialty"`
	IsActive             bool       `json:"is_active" db:"is_active"`
	IsAvailable          bool       `json:"is_available" db:"is_available"`
	CurrentAppointmentID *uuid.UUID `json:"current_appointment_id,omitempty" db:"current_appointment_id"`
	LastLoginAt          *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	Version              int        `json:"-" db:"version"`
}

func (u *User) IsDoctor() bool { return u.Role == RoleDoctor }

func (u *User) FullName() string {
	return fmt.Sprintf("%s %s", u.FirstName, u.LastName)
}

// DisplayName is the name shown on rosters, prefixed with "Dr." for doctors.
func (u *User) DisplayName() string {
	if u.IsDoctor() {
		return "Dr. " + u.FullName()
	}
	return u.FullName()
}

func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.CurrentAppointmentID = cloneUUID(u.CurrentAppointmentID)
	c.LastLoginAt = cloneTime(u.LastLoginAt)
	return &c
}

type CreateStaffRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Phone     string `json:"phone"`
	Role      Role   `json:"role" binding:"required,role"`
	Specialty string `json:"specialty"`
}

type AvailabilityRequest struct {
	IsAvailable *bool `json:"is_available" binding:"required"`
}
