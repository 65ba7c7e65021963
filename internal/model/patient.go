package model

import (
	"time"

	"github.com/google/uuid"
)

type PatientStatus string

const (
	PatientStatusActive   PatientStatus = "active"
	PatientStatusInactive PatientStatus = "inactive"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

type Patient struct {
	Base
	HospitalID       uuid.UUID     `db:"hospital_id" json:"hospital_id"`
	PatientNumber    string        `db:"patient_number" json:"patient_number"`
	FirstName        string        `db:"first_name" json:"first_name"`
	LastName         string        `db:"last_name" json:"last_name"`
	DateOfBirth      time.Time     `db:"date_of_birth" json:"date_of_birth"`
	Gender           Gender        `db:"gender" json:"gender"`
	Email            string        `db:"email" json:"email,omitempty"`
	Phone            string        `db:"phone" json:"phone,omitempty"`
	Address          string        `db:"address" json:"address,omitempty"`
	BloodGroup       string        `db:"blood_group" json:"blood_group,omitempty"`
	Allergies        string        `db:"allergies" json:"allergies,omitempty"`
	MedicalHistory   string        `db:"medical_history" json:"medical_history,omitempty"`
	EmergencyContact string        `db:"emergency_contact" json:"emergency_contact,omitempty"`
	EmergencyPhone   string        `db:"emergency_phone" json:"emergency_phone,omitempty"`
	Status           PatientStatus `db:"status" json:"status"`
	RegisteredByID   *uuid.UUID    `db:"registered_by_id" json:"registered_by_id,omitempty"`
}

func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// DateLayout is the wire format for calendar dates such as date of birth.
const DateLayout = "2006-01-02"

type CreatePatientRequest struct {
	FirstName        string `json:"first_name" binding:"required"`
	LastName         string `json:"last_name" binding:"required"`
	DateOfBirth      string `json:"date_of_birth" binding:"required,datetime=2006-01-02"`
	Gender           Gender `json:"gender" binding:"required,gender"`
	Email            string `json:"email" binding:"omitempty,email"`
	Phone            string `json:"phone"`
	Address          string `json:"address"`
	BloodGroup       string `json:"blood_group" binding:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	Allergies        string `json:"allergies"`
	MedicalHistory   string `json:"medical_history"`
	EmergencyContact string `json:"emergency_contact"`
	EmergencyPhone   string `json:"emergency_phone"`
}

type UpdatePatientRequest struct {
	FirstName        *string        `json:"first_name"`
	LastName         *string        `json:"last_name"`
	Email            *string        `json:"email" binding:"omitempty,email"`
	Phone            *string        `json:"phone"`
	Address          *string        `json:"address"`
	BloodGroup       *string        `json:"blood_group" binding:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	Allergies        *string        `json:"allergies"`
	MedicalHistory   *string        `json:"medical_history"`
	EmergencyContact *string        `json:"emergency_contact"`
	EmergencyPhone   *string        `json:"emergency_phone"`
	Status           *PatientStatus `json:"status" binding:"omitempty,oneof=active inactive"`
}

type PatientFilter struct {
	HospitalID uuid.UUID
	Search     string
	Pagination
}
