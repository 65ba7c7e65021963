package voice

import (
	"context"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/patientflow/internal/handler"
	"github.com/jwalitptl/patientflow/internal/middleware"
	"github.com/jwalitptl/patientflow/internal/model"
	"github.com/jwalitptl/patientflow/internal/service/consultation"
	apperrors "github.com/jwalitptl/patientflow/pkg/errors"
	"github.com/jwalitptl/patientflow/pkg/httputil"
)

type Service interface {
	AIEnabled() bool
	ProcessVoice(ctx context.Context, appointmentID, doctorID uuid.UUID, audio io.Reader, filename string, opts consultation.MergeOptions) (*consultation.VoiceResult, error)
}

// Extensions accepted by the transcription provider.
var allowedExtensions = map[string]bool{
	".mp3": true, ".mp4": true, ".mpeg": true, ".mpga": true,
	".m4a": true, ".wav": true, ".webm": true, ".ogg": true,
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	voice := r.Group("/voice", middleware.RequireRole(model.RoleDoctor))
	{
		voice.GET("/status", h.Status)
		voice.POST("/consultation", h.ProcessConsultation)
	}
}

func (h *Handler) Status(c *gin.Context) {
	httputil.RespondWithSuccess(c, gin.H{"enabled": h.service.AIEnabled()})
}

// ProcessConsultation takes a multipart form with the recording in "audio", the
// "appointmentId", and optional "overwrite" and "apply" flags.
func (h *Handler) ProcessConsultation(c *gin.Context) {
	principal, ok := handler.Principal(c)
	if !ok {
		return
	}
	if !h.service.AIEnabled() {
		httputil.RespondWithError(c, apperrors.NewUnavailable("voice AI is not configured", nil))
		return
	}

	appointmentID, err := uuid.Parse(c.PostForm("appointmentId"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("appointmentId must be a valid id"))
		return
	}
	file, err := c.FormFile("audio")
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("audio file is required"))
		return
	}
	if !allowedExtensions[strings.ToLower(filepath.Ext(file.Filename))] {
		httputil.RespondWithError(c, apperrors.NewValidation("unsupported audio format"))
		return
	}

	audio, err := file.Open()
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("failed to read audio", err))
		return
	}
	defer audio.Close()

	opts := consultation.MergeOptions{
		Overwrite: formBool(c, "overwrite"),
		Persist:   formBool(c, "apply"),
	}
	result, err := h.service.ProcessVoice(c.Request.Context(), appointmentID, principal.UserID, audio, file.Filename, opts)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, result)
}

func formBool(c *gin.Context, name string) bool {
	v, _ := strconv.ParseBool(c.PostForm(name))
	return v
}
