package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

type status string

func (s status) String() string { return string(s) }

func TestErrorCodeStatusMapping(t *testing.T) {
	tests := []struct {
		err    *AppError
		name   string
		status int
	}{
		{NewValidation("bad"), "VALIDATION_ERROR", http.StatusBadRequest},
		{NewInvalidState("start", status("CREATED")), "INVALID_STATE", http.StatusConflict},
		{NewNotAssigned(), "NOT_ASSIGNED", http.StatusForbidden},
		{NewNotADoctor(), "NOT_A_DOCTOR", http.StatusForbidden},
		{NewNoAvailableDoctor(""), "NO_AVAILABLE_DOCTOR", http.StatusConflict},
		{NewAlreadyPrescribed(), "ALREADY_PRESCRIBED", http.StatusConflict},
		{NewAlreadyInConsultation(), "ALREADY_IN_CONSULTATION", http.StatusConflict},
		{NewConflict(nil), "CONFLICT", http.StatusConflict},
		{NewUnavailable("ai down", nil), "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable},
		{NotFound("appointment", nil), "NOT_FOUND", http.StatusNotFound},
		{Unauthorized(nil), "UNAUTHORIZED", http.StatusUnauthorized},
		{Internal(nil), "INTERNAL_ERROR", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.err.Code.String())
			assert.Equal(t, tt.status, tt.err.StatusCode())
		})
	}
}

func TestInvalidStateMessage(t *testing.T) {
	err := NewInvalidState("record vitals for", status("ASSIGNED"))
	assert.Equal(t, "cannot record vitals for appointment in status ASSIGNED", err.Error())
}

func TestIsAndCodeOfFollowWrapping(t *testing.T) {
	cause := stderrors.New("version mismatch")
	wrapped := fmt.Errorf("start consultation: %w", NewConflict(cause))

	assert.True(t, Is(wrapped, ErrConflict))
	assert.False(t, Is(wrapped, ErrNotFound))
	assert.Equal(t, ErrConflict, CodeOf(wrapped))
	assert.Equal(t, ErrInternal, CodeOf(stderrors.New("plain")))
	assert.ErrorIs(t, wrapped, cause)
}

func TestUnknownCodeString(t *testing.T) {
	assert.Equal(t, "ERROR_42", ErrorCode(42).String())
}
