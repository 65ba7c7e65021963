package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/patientflow/internal/handler"
	"github.com/jwalitptl/patientflow/internal/middleware"
	"github.com/jwalitptl/patientflow/internal/model"
	apperrors "github.com/jwalitptl/patientflow/pkg/errors"
	"github.com/jwalitptl/patientflow/pkg/httputil"
)

// exportLimit caps a CSV export.
const exportLimit = 5000

type Service interface {
	List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditLog, int, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	logs := r.Group("/audit-logs", middleware.RequireRole(model.RoleAdmin))
	{
		logs.GET("", h.ListLogs)
		logs.GET("/export", h.ExportLogs)
	}
}

// filter reads ?user_id, ?entity_type, ?entity_id, ?action, ?start_date and
// ?end_date (RFC 3339). The hospital always comes from the caller.
func filter(c *gin.Context, principal *model.Principal) (model.AuditFilter, error) {
	f := model.AuditFilter{
		HospitalID: principal.HospitalID,
		EntityType: c.Query("entity_type"),
		Action:     c.Query("action"),
		Pagination: handler.Page(c),
	}
	for name, dst := range map[string]*uuid.UUID{"user_id": &f.UserID, "entity_id": &f.EntityID} {
		if raw := c.Query(name); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				return f, apperrors.NewBadRequest("invalid "+name, err)
			}
			*dst = id
		}
	}
	for name, dst := range map[string]**time.Time{"start_date": &f.StartDate, "end_date": &f.EndDate} {
		if raw := c.Query(name); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return f, apperrors.NewBadRequest("invalid "+name+", expected RFC 3339", err)
			}
			*dst = &t
		}
	}
	return f, nil
}

func (h *Handler) ListLogs(c *gin.Context) {
	principal, ok := handler.Principal(c)
	if !ok {
		return
	}
	f, err := filter(c, principal)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	logs, total, err := h.service.List(c.Request.Context(), f)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if logs == nil {
		logs = []*model.AuditLog{}
	}
	httputil.RespondWithPagination(c, logs, f.Page, f.PageSize, total)
}

func (h *Handler) ExportLogs(c *gin.Context) {
	principal, ok := handler.Principal(c)
	if !ok {
		return
	}
	f, err := filter(c, principal)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	var all []*model.AuditLog
	f.Page, f.PageSize = 1, model.MaxPageSize
	for len(all) < exportLimit {
		logs, total, err := h.service.List(c.Request.Context(), f)
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}
		all = append(all, logs...)
		if len(logs) == 0 || len(all) >= total {
			break
		}
		f.Page++
	}

	filename := fmt.Sprintf("audit_logs_%s.csv", time.Now().UTC().Format("20060102_150405"))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	writer := csv.NewWriter(c.Writer)
	_ = writer.Write([]string{"ID", "User ID", "Action", "Entity Type", "Entity ID", "IP Address", "Changes", "Created At"})
	for _, log := range all {
		_ = writer.Write([]string{
			log.ID.String(),
			log.UserID.String(),
			log.Action,
			log.EntityType,
			log.EntityID.String(),
			log.IPAddress,
			strings.TrimSpace(string(log.Changes)),
			log.CreatedAt.Format(time.RFC3339),
		})
	}
	writer.Flush()
}
