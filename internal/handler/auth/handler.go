package auth

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/patientflow/internal/handler"
	"github.com/jwalitptl/patientflow/internal/middleware"
	"github.com/jwalitptl/patientflow/internal/model"
	"github.com/jwalitptl/patientflow/pkg/httputil"
)

// Service is the identity surface used by the handler.
type Service interface {
	RegisterHospital(ctx context.Context, req model.RegisterHospitalRequest) (*model.RegisterHospitalResponse, error)
	Login(ctx context.Context, req model.LoginRequest) (*model.LoginResponse, error)
	Logout(ctx context.Context, principal *model.Principal) error
	CreateStaff(ctx context.Context, actor *model.Principal, req model.CreateStaffRequest) (*model.User, error)
	Me(ctx context.Context, principal *model.Principal) (*model.User, error)
}

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterPublicRoutes mounts the endpoints that need no token.
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
	}
}

// RegisterRoutes mounts the authenticated endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/logout", h.Logout)
		auth.GET("/me", h.Me)
	}
	r.POST("/staff", middleware.RequireRole(model.RoleAdmin), h.CreateStaff)
}

func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterHospitalRequest
	if !middleware.BindJSON(c, &req) {
		return
	}

	resp, err := h.svc.RegisterHospital(c.Request.Context(), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, resp)
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if !middleware.BindJSON(c, &req) {
		return
	}

	resp, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, resp)
}

func (h *Handler) Logout(c *gin.Context) {
	principal, ok := handler.Principal(c)
	if !ok {
		return
	}
	if err := h.svc.Logout(c.Request.Context(), principal); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, "logged out successfully")
}

func (h *Handler) Me(c *gin.Context) {
	principal, ok := handler.Principal(c)
	if !ok {
		return
	}
	user, err := h.svc.Me(c.Request.Context(), principal)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, user)
}

func (h *Handler) CreateStaff(c *gin.Context) {
	principal, ok := handler.Principal(c)
	if !ok {
		return
	}
	var req model.CreateStaffRequest
	if !middleware.BindJSON(c, &req) {
		return
	}

	user, err := h.svc.CreateStaff(c.Request.Context(), principal, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, user)
}
