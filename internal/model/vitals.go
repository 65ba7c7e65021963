package model

import (
	"database/sql/driver"
)

// Vitals are recorded by a nurse before the appointment enters the doctor queue.
type Vitals struct {
	BloodPressureSystolic  *int     `json:"blood_pressure_systolic,omitempty" binding:"omitempty,min=40,max=300"`
	BloodPressureDiastolic *int     `json:"blood_pressure_diastolic,omitempty" binding:"omitempty,min=20,max=200"`
	Temperature            *float64 `json:"temperature,omitempty" binding:"omitempty,min=25,max=45"`
	PulseRate              *int     `json:"pulse_rate,omitempty" binding:"omitempty,min=20,max=250"`
	RespiratoryRate        *int     `json:"respiratory_rate,omitempty" binding:"omitempty,min=4,max=80"`
	OxygenSaturation       *int     `json:"oxygen_saturation,omitempty" binding:"omitempty,min=50,max=100"`
	Weight                 *float64 `json:"weight,omitempty" binding:"omitempty,gt=0,max=500"`
	Height                 *float64 `json:"height,omitempty" binding:"omitempty,gt=0,max=300"`
	PainLevel              *int     `json:"pain_level,omitempty" binding:"omitempty,min=0,max=10"`
	SymptomsDescription    string   `json:"symptoms_description,omitempty" binding:"max=5000"`
	NurseNotes             string   `json:"nurse_notes,omitempty" binding:"max=5000"`
}

func (v *Vitals) Scan(src interface{}) error { return scanJSON(src, v) }

func (v Vitals) Value() (driver.Value, error) { return valueJSON(v) }

type RecordVitalsRequest struct {
	Vitals
}
