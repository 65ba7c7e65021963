// Package activity derives activity feeds from appointment timestamps. Nothing here
// is stored; every read recomputes the feed.
package activity

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/patientflow/internal/model"
)

type Order int

const (
	// Ascending is used for an appointment's history.
	Ascending Order = iota
	// Descending is used for notification feeds.
	Descending
)

const (
	TypeCreated    = "created"
	TypeVitals     = "vitals"
	TypeAssignment = "assignment"
	TypeUpdate     = "update"
	TypeApproval   = "approval"
	TypeCompleted  = "completed"
	TypeCancelled  = "cancelled"

	ActorSystem = "SYSTEM"
)

type Entry struct {
	ID                string                  `json:"id"`
	AppointmentID     uuid.UUID               `json:"appointment_id"`
	AppointmentNumber string                  `json:"appointment_number"`
	Type              string                  `json:"type"`
	ActorRole         string                  `json:"actor_role"`
	Description       string                  `json:"description"`
	Timestamp         time.Time               `json:"timestamp"`
	Status            model.AppointmentStatus `json:"status"`
}

// Project emits one entry per lifecycle stamp on each appointment.
func Project(appointments []*model.Appointment, order Order) []Entry {
	var entries []Entry
	for _, apt := range appointments {
		entries = append(entries, project(apt)...)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			if order == Descending {
				return a.Timestamp.After(b.Timestamp)
			}
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.AppointmentID != b.AppointmentID {
			return a.AppointmentID.String() < b.AppointmentID.String()
		}
		// Same instant on one appointment keeps lifecycle order.
		if order == Descending {
			return stage(a.Type) > stage(b.Type)
		}
		return stage(a.Type) < stage(b.Type)
	})
	if entries == nil {
		entries = []Entry{}
	}
	return entries
}

var stages = map[string]int{
	TypeCreated:    0,
	TypeVitals:     1,
	TypeAssignment: 2,
	TypeUpdate:     3,
	TypeApproval:   4,
	TypeCompleted:  5,
	TypeCancelled:  6,
}

func stage(t string) int { return stages[t] }

func project(apt *model.Appointment) []Entry {
	patient := apt.PatientName
	if patient == "" {
		patient = "patient"
	}

	var out []Entry
	add := func(at *time.Time, typ string, role string, description string) {
		if at == nil || at.IsZero() {
			return
		}
		out = append(out, Entry{
			ID:                apt.ID.String() + ":" + typ,
			AppointmentID:     apt.ID,
			AppointmentNumber: apt.AppointmentNumber,
			Type:              typ,
			ActorRole:         role,
			Description:       description,
			Timestamp:         *at,
			Status:            apt.Status,
		})
	}

	created := apt.CreatedAt
	add(&created, TypeCreated, string(model.RoleNurse), "Appointment created for "+patient)
	add(apt.VitalsRecordedAt, TypeVitals, string(model.RoleNurse), "Vitals recorded for "+patient)
	add(apt.AssignedAt, TypeAssignment, string(model.RoleNurse), "New patient assigned: "+patient)
	add(apt.ConsultationStartedAt, TypeUpdate, string(model.RoleDoctor), "Consultation in progress")
	add(apt.ConsultationCompletedAt, TypeApproval, string(model.RoleDoctor), "Record completed")
	add(apt.CompletedAt, TypeCompleted, completedBy(apt), "Appointment completed for "+patient)

	cancelled := "Appointment cancelled for " + patient
	if apt.CancelReason != nil && *apt.CancelReason != "" {
		cancelled += ": " + *apt.CancelReason
	}
	add(apt.CancelledAt, TypeCancelled, ActorSystem, cancelled)
	return out
}

// completedBy credits the pharmacist only for appointments closed by dispensing.
// Referral closures and direct completions belong to the doctor.
func completedBy(apt *model.Appointment) string {
	if apt.DispensedAt != nil {
		return string(model.RolePharmacist)
	}
	return string(model.RoleDoctor)
}
