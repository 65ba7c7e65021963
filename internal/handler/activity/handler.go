package activity

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/patientflow/internal/handler"
	"github.com/jwalitptl/patientflow/internal/model"
	"github.com/jwalitptl/patientflow/internal/service/activity"
	"github.com/jwalitptl/patientflow/pkg/httputil"
)

type Service interface {
	History(ctx context.Context, hospitalID, appointmentID uuid.UUID) ([]activity.Entry, error)
	Feed(ctx context.Context, principal *model.Principal, limit int) ([]activity.Entry, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/appointments/:id/history", h.History)
	r.GET("/notifications", h.Feed)
}

func (h *Handler) History(c *gin.Context) {
	principal, ok := handler.Principal(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	entries, err := h.service.History(c.Request.Context(), principal.HospitalID, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, entries)
}

// Feed returns the caller's recent activity, capped by ?limit=.
func (h *Handler) Feed(c *gin.Context) {
	principal, ok := handler.Principal(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.service.Feed(c.Request.Context(), principal, limit)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, entries)
}
