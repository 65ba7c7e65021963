package doctor

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/patientflow/internal/handler"
	"github.com/jwalitptl/patientflow/internal/middleware"
	"github.com/jwalitptl/patientflow/internal/model"
	"github.com/jwalitptl/patientflow/pkg/httputil"
)

// Roster is satisfied by *queue.Engine.
type Roster interface {
	ListAvailableDoctors(ctx context.Context, hospitalID uuid.UUID, availableOnly bool) (*model.DoctorRoster, error)
	GetAvailability(ctx context.Context, doctorID uuid.UUID) (*model.Availability, error)
	SetDoctorAvailability(ctx context.Context, doctorID uuid.UUID, isAvailable bool) (*model.User, error)
}

type Handler struct {
	roster Roster
}

func NewHandler(roster Roster) *Handler {
	return &Handler{roster: roster}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	doctors := r.Group("/doctors")
	{
		doctors.GET("/available", h.ListDoctors)
		doctors.GET("/me/availability", middleware.RequireRole(model.RoleDoctor), h.GetAvailability)
		doctors.PUT("/me/availability", middleware.RequireRole(model.RoleDoctor), h.SetAvailability)
	}
}

// ListDoctors lists every doctor of the hospital, or only available ones with
// ?available=true.
func (h *Handler) ListDoctors(c *gin.Context) {
	principal, ok := handler.Principal(c)
	if !ok {
		return
	}
	roster, err := h.roster.ListAvailableDoctors(c.Request.Context(), principal.HospitalID, handler.QueryBool(c, "available", false))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, roster)
}

func (h *Handler) GetAvailability(c *gin.Context) {
	principal, ok := handler.Principal(c)
	if !ok {
		return
	}
	availability, err := h.roster.GetAvailability(c.Request.Context(), principal.UserID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, availability)
}

func (h *Handler) SetAvailability(c *gin.Context) {
	principal, ok := handler.Principal(c)
	if !ok {
		return
	}
	var req model.AvailabilityRequest
	if !middleware.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	if _, err := h.roster.SetDoctorAvailability(ctx, principal.UserID, *req.IsAvailable); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	availability, err := h.roster.GetAvailability(ctx, principal.UserID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, availability)
}
