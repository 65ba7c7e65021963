// Package queue owns the appointment state machine and doctor availability. It is
// the only writer of appointment status, assigned doctor and the doctor's current
// appointment pointer.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jwalitptl/patientflow/internal/model"
	"github.com/jwalitptl/patientflow/internal/repository"
	"github.com/jwalitptl/patientflow/internal/service/audit"
	apperrors "github.com/jwalitptl/patientflow/pkg/errors"
	"github.com/jwalitptl/patientflow/pkg/metrics"
	"github.com/jwalitptl/patientflow/pkg/tracing"
)

// Emitter queues a domain event for asynchronous delivery.
type Emitter interface {
	Emit(ctx context.Context, eventType string, payload interface{}) error
}

// Outcome describes how a consultation ended.
type Outcome struct {
	HasPendingPrescription bool
	Referral               bool
}

type Engine struct {
	appointments repository.AppointmentRepository
	users        repository.UserRepository
	auditor      *audit.AuditLogger
	events       Emitter
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	now          func() time.Time
}

func NewEngine(
	appointments repository.AppointmentRepository,
	users repository.UserRepository,
	auditor *audit.AuditLogger,
	events Emitter,
	m *metrics.Metrics,
) *Engine {
	return &Engine{
		appointments: appointments,
		users:        users,
		auditor:      auditor,
		events:       events,
		metrics:      m,
		tracer:       tracing.Tracer("patientflow/queue"),
		now:          time.Now,
	}
}

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "queue."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	tracing.RecordError(span, err)
	span.End()
}

func (e *Engine) getAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, err := e.appointments.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("appointment", err)
		}
		return nil, apperrors.NewInternal(err)
	}
	return apt, nil
}

func (e *Engine) getDoctor(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := e.users.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("doctor", err)
		}
		return nil, apperrors.NewInternal(err)
	}
	if !user.IsDoctor() {
		return nil, apperrors.NewNotADoctor()
	}
	return user, nil
}

// stamp returns the current time, never earlier than any lifecycle stamp already on apt.
func (e *Engine) stamp(apt *model.Appointment) time.Time {
	now := e.now()
	if latest := apt.LatestStamp(); now.Before(latest) {
		return latest
	}
	return now
}

func (e *Engine) writeError(operation string, err error) error {
	switch {
	case errors.Is(err, repository.ErrConflict):
		e.metrics.QueueConflicts.WithLabelValues(operation).Inc()
		return apperrors.NewConflict(err)
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("appointment", err)
	}
	return apperrors.NewInternal(err)
}

// transition moves apt to status to with a version check. mutate sets the fields that
// accompany the move. The returned appointment is the stored snapshot.
func (e *Engine) transition(
	ctx context.Context,
	operation string,
	apt *model.Appointment,
	to model.AppointmentStatus,
	actorID uuid.UUID,
	mutate func(next *model.Appointment, at time.Time),
) (*model.Appointment, error) {
	if !CanTransition(apt.Status, to) {
		return nil, apperrors.NewInvalidState(operation, apt.Status)
	}

	at := e.stamp(apt)
	next := apt.Clone()
	next.Status = to
	if mutate != nil {
		mutate(next, at)
	}

	if err := e.appointments.Update(ctx, next); err != nil {
		return nil, e.writeError(operation, err)
	}

	e.record(ctx, apt, next, actorID, at)
	return next, nil
}

// record publishes the side effects of a committed transition. None of them can fail it.
func (e *Engine) record(ctx context.Context, prev, next *model.Appointment, actorID uuid.UUID, at time.Time) {
	e.metrics.QueueTransitions.WithLabelValues(string(prev.Status), string(next.Status)).Inc()

	changes := map[string]interface{}{
		"from": prev.Status,
		"to":   next.Status,
	}
	if !sameDoctor(prev.AssignedDoctorID, next.AssignedDoctorID) {
		changes["previous_doctor_id"] = prev.AssignedDoctorID
		changes["assigned_doctor_id"] = next.AssignedDoctorID
	}
	e.auditor.Log(ctx, actorID, next.HospitalID, model.AuditActionTransition, model.AuditEntityAppointment, next.ID, &audit.LogOptions{
		Changes: changes,
		Metadata: map[string]interface{}{
			"appointment_number": next.AppointmentNumber,
			"version":            next.Version,
		},
	})

	if e.events == nil {
		return
	}
	event := model.AppointmentEvent{
		AppointmentID:    next.ID,
		HospitalID:       next.HospitalID,
		PatientID:        next.PatientID,
		AssignedDoctorID: next.AssignedDoctorID,
		From:             prev.Status,
		To:               next.Status,
		Priority:         next.Priority,
		ActorID:          actorID,
		OccurredAt:       at,
	}
	if err := e.events.Emit(ctx, model.AppointmentEventType(next.Status), event); err != nil {
		log.Warn().Err(err).
			Str("appointment_id", next.ID.String()).
			Str("status", string(next.Status)).
			Msg("failed to queue appointment event")
	}
}

// release clears the doctor's pointer if it still references appointmentID.
func (e *Engine) release(ctx context.Context, doctorID, appointmentID uuid.UUID) {
	err := e.users.ReleaseAppointment(ctx, doctorID, appointmentID)
	if err == nil || errors.Is(err, repository.ErrConflict) {
		return
	}
	log.Warn().Err(err).
		Str("doctor_id", doctorID.String()).
		Str("appointment_id", appointmentID.String()).
		Msg("failed to release doctor")
}

func sameDoctor(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func ownedBy(apt *model.Appointment, doctorID uuid.UUID) bool {
	return apt.AssignedDoctorID != nil && *apt.AssignedDoctorID == doctorID
}
