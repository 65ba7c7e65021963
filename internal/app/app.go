// Package app wires repositories, services and HTTP handlers into one application.
package app

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/patientflow/internal/email"
	"github.com/jwalitptl/patientflow/internal/handler"
	activityHandler "github.com/jwalitptl/patientflow/internal/handler/activity"
	appointmentHandler "github.com/jwalitptl/patientflow/internal/handler/appointment"
	auditHandler "github.com/jwalitptl/patientflow/internal/handler/audit"
	authHandler "github.com/jwalitptl/patientflow/internal/handler/auth"
	doctorHandler "github.com/jwalitptl/patientflow/internal/handler/doctor"
	"github.com/jwalitptl/patientflow/internal/handler/health"
	patientHandler "github.com/jwalitptl/patientflow/internal/handler/patient"
	pharmacyHandler "github.com/jwalitptl/patientflow/internal/handler/pharmacy"
	promHandler "github.com/jwalitptl/patientflow/internal/handler/prometheus"
	voiceHandler "github.com/jwalitptl/patientflow/internal/handler/voice"
	"github.com/jwalitptl/patientflow/internal/repository"
	"github.com/jwalitptl/patientflow/internal/router"
	"github.com/jwalitptl/patientflow/internal/service/activity"
	"github.com/jwalitptl/patientflow/internal/service/appointment"
	"github.com/jwalitptl/patientflow/internal/service/audit"
	authService "github.com/jwalitptl/patientflow/internal/service/auth"
	"github.com/jwalitptl/patientflow/internal/service/consultation"
	"github.com/jwalitptl/patientflow/internal/service/event"
	"github.com/jwalitptl/patientflow/internal/service/patient"
	"github.com/jwalitptl/patientflow/internal/service/queue"
	"github.com/jwalitptl/patientflow/pkg/ai"
	"github.com/jwalitptl/patientflow/pkg/auth"
	"github.com/jwalitptl/patientflow/pkg/metrics"
	"github.com/jwalitptl/patientflow/pkg/security"
)

// Store is implemented by both the postgres and the in-memory repositories.
type Store interface {
	Hospitals() repository.HospitalRepository
	Users() repository.UserRepository
	Patients() repository.PatientRepository
	Appointments() repository.AppointmentRepository
	Prescriptions() repository.PrescriptionRepository
	Audit() repository.AuditRepository
	Outbox() repository.OutboxRepository
}

type Deps struct {
	Store   Store
	Metrics *metrics.Metrics
	Hasher  security.PasswordHasher
	Tokens  auth.JWTService
	Mailer  email.Service
	// AI is nil when voice extraction is not configured.
	AI ai.Client
}

type Services struct {
	Audit        *audit.Service
	Auditor      *audit.AuditLogger
	Events       *event.Service
	Queue        *queue.Engine
	Auth         *authService.Service
	Patients     *patient.Service
	Appointments *appointment.Service
	Consultation *consultation.Service
	Activity     *activity.Service
}

func NewServices(d Deps) *Services {
	s := d.Store
	mailer := d.Mailer
	if mailer == nil {
		mailer = email.NewNoopService()
	}

	auditSvc := audit.NewService(s.Audit())
	auditor := audit.NewAuditLogger(auditSvc)
	events := event.NewService(s.Outbox())
	engine := queue.NewEngine(s.Appointments(), s.Users(), auditor, events, d.Metrics)

	return &Services{
		Audit:        auditSvc,
		Auditor:      auditor,
		Events:       events,
		Queue:        engine,
		Auth:         authService.NewService(s.Hospitals(), s.Users(), d.Hasher, d.Tokens, engine, mailer, auditor),
		Patients:     patient.NewService(s.Patients(), auditor, events),
		Appointments: appointment.NewService(s.Appointments(), s.Patients(), engine, auditor, events),
		Consultation: consultation.NewService(s.Appointments(), s.Prescriptions(), engine, d.AI, auditor, events),
		Activity:     activity.NewService(s.Appointments()),
	}
}

// Handlers builds the route handlers for NewRouter. checks back /health/ready.
func (s *Services) Handlers(checks map[string]health.Checker, gatherer prometheus.Gatherer) router.Handlers {
	h := router.Handlers{
		Health: health.NewHandler(checks),
		Auth:   authHandler.NewHandler(s.Auth),
		Protected: []handler.Handler{
			patientHandler.NewHandler(s.Patients),
			appointmentHandler.NewHandler(s.Appointments, s.Queue, s.Consultation),
			activityHandler.NewHandler(s.Activity),
			doctorHandler.NewHandler(s.Queue),
			pharmacyHandler.NewHandler(s.Consultation),
			voiceHandler.NewHandler(s.Consultation),
			auditHandler.NewHandler(s.Audit),
		},
	}
	if gatherer != nil {
		h.Metrics = promHandler.New(gatherer)
	}
	return h
}
