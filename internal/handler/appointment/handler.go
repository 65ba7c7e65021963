package appointment

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/patientflow/internal/handler"
	"github.com/jwalitptl/patientflow/internal/middleware"
	"github.com/jwalitptl/patientflow/internal/model"
	apperrors "github.com/jwalitptl/patientflow/pkg/errors"
	"github.com/jwalitptl/patientflow/pkg/httputil"
)

// Intake creates and looks up appointments within a hospital.
type Intake interface {
	Create(ctx context.Context, actor *model.Principal, req model.CreateAppointmentRequest) (*model.Appointment, error)
	Get(ctx context.Context, hospitalID, id uuid.UUID) (*model.Appointment, error)
	List(ctx context.Context, hospitalID uuid.UUID, filter model.AppointmentFilter) ([]*model.Appointment, error)
}

// Queue drives the lifecycle. It is satisfied by *queue.Engine.
type Queue interface {
	RecordVitals(ctx context.Context, appointmentID, actorID uuid.UUID, vitals *model.Vitals) (*model.Appointment, error)
	AssignDoctor(ctx context.Context, appointmentID uuid.UUID, doctorID *uuid.UUID, actorID uuid.UUID) (*model.Appointment, error)
	StartConsultation(ctx context.Context, appointmentID, doctorID uuid.UUID) (*model.Appointment, error)
	CloseReferral(ctx context.Context, appointmentID, actorID uuid.UUID) (*model.Appointment, error)
	Cancel(ctx context.Context, appointmentID, actorID uuid.UUID, reason string) (*model.Appointment, error)
	ListQueue(ctx context.Context, doctorID uuid.UUID) (*model.DoctorQueue, error)
}

// Consultation is the doctor's and pharmacist's side of an appointment.
type Consultation interface {
	SaveDraftNotes(ctx context.Context, appointmentID, doctorID uuid.UUID, req model.SaveNotesRequest) (*model.Appointment, error)
	CreatePrescription(ctx context.Context, appointmentID, doctorID uuid.UUID, items []model.PrescriptionItem) (*model.Prescription, error)
	CompleteConsultation(ctx context.Context, appointmentID, doctorID uuid.UUID, referral bool) (*model.Appointment, error)
	GetPrescription(ctx context.Context, hospitalID, appointmentID uuid.UUID) (*model.Prescription, error)
	Dispense(ctx context.Context, actor *model.Principal, appointmentID uuid.UUID) (*model.Appointment, error)
}

type Handler struct {
	intake       Intake
	queue        Queue
	consultation Consultation
}

func NewHandler(intake Intake, queue Queue, consultation Consultation) *Handler {
	return &Handler{intake: intake, queue: queue, consultation: consultation}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	desk := middleware.RequireRole(model.RoleNurse, model.RoleAdmin, model.RoleReceptionist)
	doctor := middleware.RequireRole(model.RoleDoctor)

	appointments := r.Group("/appointments")
	{
		appointments.POST("", desk, h.CreateAppointment)
		appointments.GET("", h.ListAppointments)
		appointments.GET("/queue", doctor, h.GetQueue)
		appointments.POST("/consultation", doctor, h.Consultation)
		appointments.GET("/:id", h.GetAppointment)

		appointments.POST("/:id/vitals", middleware.RequireRole(model.RoleNurse), h.RecordVitals)
		appointments.POST("/:id/assign", middleware.RequireRole(model.RoleNurse, model.RoleAdmin), h.AssignDoctor)
		appointments.POST("/:id/cancel", middleware.RequireRole(model.RoleNurse, model.RoleAdmin, model.RoleDoctor), h.CancelAppointment)

		appointments.PUT("/:id/notes", doctor, h.SaveNotes)
		appointments.POST("/:id/prescription", doctor, h.CreatePrescription)
		appointments.GET("/:id/prescription", h.GetPrescription)
		appointments.POST("/:id/dispense", middleware.RequireRole(model.RolePharmacist), h.Dispense)
		appointments.POST("/:id/referral/close", middleware.RequireRole(model.RoleDoctor, model.RoleAdmin), h.CloseReferral)
	}
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	principal, ok := handler.Principal(c)
	if !ok {
		return
	}
	var req model.CreateAppointmentRequest
	if !middleware.BindJSON(c, &req) {
		return
	}

	apt, err := h.intake.Create(c.Request.Context(), principal, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, apt)
}

// ListAppointments accepts ?status=A,B, ?patient_id=, ?doctor_id= and ?limit=.
func (h *Handler) ListAppointments(c *gin.Context) {
	principal, ok := handler.Principal(c)
	if !ok {
		return
	}

	filter := model.AppointmentFilter{NewestFirst: true}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, model.AppointmentStatus(strings.ToUpper(strings.TrimSpace(s))))
		}
	}
	for name, dst := range map[string]*uuid.UUID{"patient_id": &filter.PatientID, "doctor_id": &filter.DoctorID} {
		if raw := c.Query(name); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				httputil.RespondWithError(c, apperrors.NewBadRequest("invalid "+name, err))
				return
			}
			*dst = id
		}
	}
	filter.Limit, _ = strconv.Atoi(c.Query("limit"))

	appointments, err := h.intake.List(c.Request.Context(), principal.HospitalID, filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, appointments)
}

func (h *Handler) GetAppointment(c *gin.Context) {
	principal, id, ok := h.scoped(c)
	if !ok {
		return
	}
	apt, err := h.intake.Get(c.Request.Context(), principal.HospitalID, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

// scoped resolves the caller and the :id of an appointment in the caller's hospital.
func (h *Handler) scoped(c *gin.Context) (*model.Principal, uuid.UUID, bool) {
	principal, ok := handler.Principal(c)
	if !ok {
		return nil, uuid.Nil, false
	}
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return nil, uuid.Nil, false
	}
	return principal, id, true
}

// owned is scoped plus a check that the appointment exists in the caller's hospital.
func (h *Handler) owned(c *gin.Context) (*model.Principal, uuid.UUID, bool) {
	principal, id, ok := h.scoped(c)
	if !ok {
		return nil, uuid.Nil, false
	}
	if _, err := h.intake.Get(c.Request.Context(), principal.HospitalID, id); err != nil {
		httputil.RespondWithError(c, err)
		return nil, uuid.Nil, false
	}
	return principal, id, true
}

func (h *Handler) RecordVitals(c *gin.Context) {
	principal, id, ok := h.owned(c)
	if !ok {
		return
	}
	var req model.RecordVitalsRequest
	if !middleware.BindJSON(c, &req) {
		return
	}

	apt, err := h.queue.RecordVitals(c.Request.Context(), id, principal.UserID, &req.Vitals)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) AssignDoctor(c *gin.Context) {
	principal, id, ok := h.owned(c)
	if !ok {
		return
	}
	var req model.AssignDoctorRequest
	if c.Request.ContentLength != 0 && !middleware.BindJSON(c, &req) {
		return
	}

	apt, err := h.queue.AssignDoctor(c.Request.Context(), id, req.DoctorID, principal.UserID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) CancelAppointment(c *gin.Context) {
	principal, id, ok := h.owned(c)
	if !ok {
		return
	}
	var req model.CancelAppointmentRequest
	if c.Request.ContentLength != 0 && !middleware.BindJSON(c, &req) {
		return
	}

	apt, err := h.queue.Cancel(c.Request.Context(), id, principal.UserID, strings.TrimSpace(req.Reason))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) GetQueue(c *gin.Context) {
	principal, ok := handler.Principal(c)
	if !ok {
		return
	}
	queue, err := h.queue.ListQueue(c.Request.Context(), principal.UserID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, queue)
}

// Consultation starts or completes the caller's consultation.
func (h *Handler) Consultation(c *gin.Context) {
	principal, ok := handler.Principal(c)
	if !ok {
		return
	}
	var req model.ConsultationActionRequest
	if !middleware.BindJSON(c, &req) {
		return
	}

	var (
		apt *model.Appointment
		err error
	)
	switch req.Action {
	case model.ConsultationActionStart:
		apt, err = h.queue.StartConsultation(c.Request.Context(), req.AppointmentID, principal.UserID)
	case model.ConsultationActionComplete:
		apt, err = h.consultation.CompleteConsultation(c.Request.Context(), req.AppointmentID, principal.UserID, req.Referral)
	default:
		err = apperrors.NewValidation("action must be start or complete")
	}
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) SaveNotes(c *gin.Context) {
	principal, id, ok := h.scoped(c)
	if !ok {
		return
	}
	var req model.SaveNotesRequest
	if !middleware.BindJSON(c, &req) {
		return
	}

	apt, err := h.consultation.SaveDraftNotes(c.Request.Context(), id, principal.UserID, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) CreatePrescription(c *gin.Context) {
	principal, id, ok := h.scoped(c)
	if !ok {
		return
	}
	var req model.CreatePrescriptionRequest
	if !middleware.BindJSON(c, &req) {
		return
	}

	prescription, err := h.consultation.CreatePrescription(c.Request.Context(), id, principal.UserID, req.Items)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, prescription)
}

func (h *Handler) GetPrescription(c *gin.Context) {
	principal, id, ok := h.scoped(c)
	if !ok {
		return
	}
	prescription, err := h.consultation.GetPrescription(c.Request.Context(), principal.HospitalID, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, prescription)
}

func (h *Handler) Dispense(c *gin.Context) {
	principal, id, ok := h.scoped(c)
	if !ok {
		return
	}
	apt, err := h.consultation.Dispense(c.Request.Context(), principal, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) CloseReferral(c *gin.Context) {
	principal, id, ok := h.owned(c)
	if !ok {
		return
	}
	apt, err := h.queue.CloseReferral(c.Request.Context(), id, principal.UserID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}
