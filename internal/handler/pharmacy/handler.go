package pharmacy

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
	ListPendingPrescriptions(ctx context.Context, hospitalID uuid.UUID) ([]*model.Prescription, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/pharmacy/prescriptions", middleware.RequireRole(model.RolePharmacist), h.ListPending)
}

func (h *Handler) ListPending(c *gin.Context) {
	principal, ok := handler.Principal(c)
	if !ok {
		return
	}
	prescriptions, err := h.service.ListPendingPrescriptions(c.Request.Context(), principal.HospitalID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if prescriptions == nil {
		prescriptions = []*model.Prescription{}
	}
	httputil.RespondWithSuccess(c, prescriptions)
}
