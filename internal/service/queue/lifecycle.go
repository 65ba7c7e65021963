package queue

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jwalitptl/patientflow/internal/model"
	"github.com/jwalitptl/patientflow/internal/repository"
	apperrors "github.com/jwalitptl/patientflow/pkg/errors"
)

func (e *Engine) RecordVitals(ctx context.Context, appointmentID, actorID uuid.UUID, vitals *model.Vitals) (apt *model.Appointment, err error) {
	ctx, span := e.startSpan(ctx, "RecordVitals", attribute.String("appointment.id", appointmentID.String()))
	defer func() { endSpan(span, err) }()

	if vitals == nil {
		return nil, apperrors.NewValidation("vitals are required")
	}
	current, err := e.getAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if current.Status != model.AppointmentStatusCreated {
		return nil, apperrors.NewInvalidState("record vitals for", current.Status)
	}

	return e.transition(ctx, "record_vitals", current, model.AppointmentStatusVitalsRecorded, actorID,
		func(next *model.Appointment, at time.Time) {
			v := *vitals
			next.Vitals = &v
			next.VitalsRecordedAt = &at
		})
}

// AssignDoctor routes a VITALS_RECORDED appointment. A nil doctorID selects the
// available doctor with the lowest load.
func (e *Engine) AssignDoctor(ctx context.Context, appointmentID uuid.UUID, doctorID *uuid.UUID, actorID uuid.UUID) (apt *model.Appointment, err error) {
	ctx, span := e.startSpan(ctx, "AssignDoctor", attribute.String("appointment.id", appointmentID.String()))
	defer func() { endSpan(span, err) }()

	mode := "auto"
	if doctorID != nil {
		mode = "manual"
	}
	defer func() {
		result := "error"
		switch {
		case err == nil:
			result = string(apt.Status)
		case apperrors.Is(err, apperrors.ErrNoAvailableDoctor):
			result = "no_doctor"
		}
		e.metrics.Assignments.WithLabelValues(mode, result).Inc()
	}()

	current, err := e.getAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if current.Status != model.AppointmentStatusVitalsRecorded {
		return nil, apperrors.NewInvalidState("assign", current.Status)
	}

	var doctor *model.User
	if doctorID != nil {
		doctor, err = e.explicitDoctor(ctx, current.HospitalID, *doctorID)
	} else {
		doctor, err = e.selectDoctor(ctx, current.HospitalID)
	}
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("doctor.id", doctor.ID.String()))

	to := model.AppointmentStatusAssigned
	if doctor.CurrentAppointmentID != nil {
		to = model.AppointmentStatusInQueue
	}
	return e.transition(ctx, "assign", current, to, actorID, func(next *model.Appointment, at time.Time) {
		id := doctor.ID
		next.AssignedDoctorID = &id
		next.AssignedAt = &at
	})
}

func (e *Engine) explicitDoctor(ctx context.Context, hospitalID, doctorID uuid.UUID) (*model.User, error) {
	doctor, err := e.users.Get(ctx, doctorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotADoctor()
		}
		return nil, apperrors.NewInternal(err)
	}
	if !doctor.IsDoctor() {
		return nil, apperrors.NewNotADoctor()
	}
	if doctor.HospitalID != hospitalID || !doctor.IsActive || !doctor.IsAvailable {
		return nil, apperrors.NewNoAvailableDoctor("doctor is not available for assignment")
	}
	return doctor, nil
}

// selectDoctor picks the least loaded available doctor. Ties go to the lowest id.
func (e *Engine) selectDoctor(ctx context.Context, hospitalID uuid.UUID) (*model.User, error) {
	doctors, err := e.users.ListDoctors(ctx, hospitalID, true)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	loads, err := e.appointments.DoctorLoads(ctx, hospitalID)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	candidates := doctors[:0]
	for _, d := range doctors {
		if d.IsActive && d.IsAvailable {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return nil, apperrors.NewNoAvailableDoctor("")
	}

	sort.Slice(candidates, func(i, j int) bool {
		li, lj := loads[candidates[i].ID].CurrentPatients, loads[candidates[j].ID].CurrentPatients
		if li != lj {
			return li < lj
		}
		return candidates[i].ID.String() < candidates[j].ID.String()
	})
	return candidates[0], nil
}

// StartConsultation claims the doctor before moving the appointment, so a doctor
// holds at most one consultation at a time.
func (e *Engine) StartConsultation(ctx context.Context, appointmentID, doctorID uuid.UUID) (apt *model.Appointment, err error) {
	ctx, span := e.startSpan(ctx, "StartConsultation",
		attribute.String("appointment.id", appointmentID.String()),
		attribute.String("doctor.id", doctorID.String()))
	defer func() { endSpan(span, err) }()

	current, err := e.getAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if current.AssignedDoctorID != nil && !ownedBy(current, doctorID) {
		return nil, apperrors.NewNotAssigned()
	}
	if current.Status == model.AppointmentStatusInConsultation {
		return nil, apperrors.NewAlreadyInConsultation()
	}
	if current.Status != model.AppointmentStatusAssigned && current.Status != model.AppointmentStatusInQueue {
		return nil, apperrors.NewInvalidState("start consultation for", current.Status)
	}
	if !ownedBy(current, doctorID) {
		return nil, apperrors.NewNotAssigned()
	}

	doctor, err := e.getDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if doctor.CurrentAppointmentID != nil {
		if *doctor.CurrentAppointmentID == appointmentID {
			e.metrics.QueueConflicts.WithLabelValues("start").Inc()
			return nil, apperrors.NewConflict(repository.ErrConflict)
		}
		return nil, apperrors.NewAlreadyInConsultation()
	}

	if err := e.users.ClaimAppointment(ctx, doctorID, appointmentID); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, apperrors.NewInternal(err)
		}
		// Lost the claim. Report which consultation won.
		holder, getErr := e.users.Get(ctx, doctorID)
		if getErr == nil && holder.CurrentAppointmentID != nil && *holder.CurrentAppointmentID != appointmentID {
			return nil, apperrors.NewAlreadyInConsultation()
		}
		e.metrics.QueueConflicts.WithLabelValues("start").Inc()
		return nil, apperrors.NewConflict(err)
	}

	apt, err = e.transition(ctx, "start", current, model.AppointmentStatusInConsultation, doctorID,
		func(next *model.Appointment, at time.Time) {
			next.ConsultationStartedAt = &at
		})
	if err != nil {
		e.release(ctx, doctorID, appointmentID)
		return nil, err
	}
	return apt, nil
}

// CompleteConsultation ends the consultation and frees the doctor.
func (e *Engine) CompleteConsultation(ctx context.Context, appointmentID, doctorID uuid.UUID, outcome Outcome) (apt *model.Appointment, err error) {
	ctx, span := e.startSpan(ctx, "CompleteConsultation",
		attribute.String("appointment.id", appointmentID.String()),
		attribute.String("doctor.id", doctorID.String()),
		attribute.Bool("prescription", outcome.HasPendingPrescription),
		attribute.Bool("referral", outcome.Referral))
	defer func() { endSpan(span, err) }()

	current, err := e.getAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if current.Status != model.AppointmentStatusInConsultation {
		return nil, apperrors.NewInvalidState("complete consultation for", current.Status)
	}
	if !ownedBy(current, doctorID) {
		return nil, apperrors.NewNotAssigned()
	}

	to := model.AppointmentStatusCompleted
	switch {
	case outcome.HasPendingPrescription:
		to = model.AppointmentStatusPendingPharmacy
	case outcome.Referral:
		to = model.AppointmentStatusPendingReferral
	}

	apt, err = e.transition(ctx, "complete", current, to, doctorID, func(next *model.Appointment, at time.Time) {
		next.ConsultationCompletedAt = &at
		if to == model.AppointmentStatusCompleted {
			next.CompletedAt = &at
		}
	})
	if err != nil {
		return nil, err
	}

	e.release(ctx, doctorID, appointmentID)
	return apt, nil
}

// Dispense completes an appointment waiting on the pharmacy.
func (e *Engine) Dispense(ctx context.Context, appointmentID, actorID uuid.UUID) (apt *model.Appointment, err error) {
	ctx, span := e.startSpan(ctx, "Dispense", attribute.String("appointment.id", appointmentID.String()))
	defer func() { endSpan(span, err) }()

	return e.finish(ctx, "dispense", appointmentID, actorID, model.AppointmentStatusPendingPharmacy,
		func(next *model.Appointment, at time.Time) {
			next.DispensedAt = &at
		})
}

// CloseReferral completes an appointment waiting on a referral.
func (e *Engine) CloseReferral(ctx context.Context, appointmentID, actorID uuid.UUID) (apt *model.Appointment, err error) {
	ctx, span := e.startSpan(ctx, "CloseReferral", attribute.String("appointment.id", appointmentID.String()))
	defer func() { endSpan(span, err) }()

	return e.finish(ctx, "close referral for", appointmentID, actorID, model.AppointmentStatusPendingReferral, nil)
}

func (e *Engine) finish(ctx context.Context, operation string, appointmentID, actorID uuid.UUID, from model.AppointmentStatus, stamp func(*model.Appointment, time.Time)) (*model.Appointment, error) {
	current, err := e.getAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if current.Status != from {
		return nil, apperrors.NewInvalidState(operation, current.Status)
	}
	return e.transition(ctx, operation, current, model.AppointmentStatusCompleted, actorID,
		func(next *model.Appointment, at time.Time) {
			next.CompletedAt = &at
			if stamp != nil {
				stamp(next, at)
			}
		})
}

// Cancel ends a non-terminal appointment and frees its doctor if they were seeing it.
func (e *Engine) Cancel(ctx context.Context, appointmentID, actorID uuid.UUID, reason string) (apt *model.Appointment, err error) {
	ctx, span := e.startSpan(ctx, "Cancel", attribute.String("appointment.id", appointmentID.String()))
	defer func() { endSpan(span, err) }()

	current, err := e.getAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if current.Status.IsTerminal() {
		return nil, apperrors.NewInvalidState("cancel", current.Status)
	}

	apt, err = e.transition(ctx, "cancel", current, model.AppointmentStatusCancelled, actorID,
		func(next *model.Appointment, at time.Time) {
			next.CancelledDoctorID = next.AssignedDoctorID
			next.AssignedDoctorID = nil
			next.CancelledAt = &at
			if reason != "" {
				r := reason
				next.CancelReason = &r
			}
		})
	if err != nil {
		return nil, err
	}

	if current.AssignedDoctorID != nil {
		e.release(ctx, *current.AssignedDoctorID, appointmentID)
	}
	log.Info().
		Str("appointment_id", appointmentID.String()).
		Str("from", string(current.Status)).
		Msg("appointment cancelled")
	return apt, nil
}
