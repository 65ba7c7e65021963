package patient

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/patientflow/internal/handler"
	"github.com/jwalitptl/patientflow/internal/middleware"
	"github.com/jwalitptl/patientflow/internal/model"
	"github.com/jwalitptl/patientflow/pkg/httputil"
)

type Service interface {
	Register(ctx context.Context, actor *model.Principal, req model.CreatePatientRequest) (*model.Patient, error)
	Get(ctx context.Context, hospitalID, id uuid.UUID) (*model.Patient, error)
	List(ctx context.Context, hospitalID uuid.UUID, search string, page model.Pagination) ([]*model.Patient, int, error)
	Update(ctx context.Context, actor *model.Principal, id uuid.UUID, req model.UpdatePatientRequest) (*model.Patient, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	write := middleware.RequireRole(model.RoleNurse, model.RoleAdmin, model.RoleReceptionist)
	read := middleware.RequireRole(model.RoleNurse, model.RoleAdmin, model.RoleReceptionist, model.RoleDoctor)

	patients := r.Group("/patients")
	{
		patients.POST("", write, h.CreatePatient)
		patients.GET("", read, h.ListPatients)
		patients.GET("/:id", read, h.GetPatient)
		patients.PUT("/:id", write, h.UpdatePatient)
	}
}

func (h *Handler) CreatePatient(c *gin.Context) {
	principal, ok := handler.Principal(c)
	if !ok {
		return
	}
	var req model.CreatePatientRequest
	if !middleware.BindJSON(c, &req) {
		return
	}

	patient, err := h.service.Register(c.Request.Context(), principal, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, patient)
}

func (h *Handler) ListPatients(c *gin.Context) {
	principal, ok := handler.Principal(c)
	if !ok {
		return
	}
	page := handler.Page(c)

	patients, total, err := h.service.List(c.Request.Context(), principal.HospitalID, c.Query("search"), page)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithPagination(c, patients, page.Page, page.PageSize, total)
}

func (h *Handler) GetPatient(c *gin.Context) {
	principal, ok := handler.Principal(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	patient, err := h.service.Get(c.Request.Context(), principal.HospitalID, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, patient)
}

func (h *Handler) UpdatePatient(c *gin.Context) {
	principal, ok := handler.Principal(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.UpdatePatientRequest
	if !middleware.BindJSON(c, &req) {
		return
	}

	patient, err := h.service.Update(c.Request.Context(), principal, id, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, patient)
}
