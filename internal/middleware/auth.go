package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/patientflow/internal/model"
	apperrors "github.com/jwalitptl/patientflow/pkg/errors"
	"github.com/jwalitptl/patientflow/pkg/httputil"
)

const ContextPrincipal = "principal"

// TokenVerifier resolves a bearer token to the caller. It is satisfied by the auth service.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*model.Principal, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
}

func NewAuthMiddleware(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Authenticate verifies the bearer token and stores the principal in the context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httputil.RespondWithError(c, unauthorized("missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			httputil.RespondWithError(c, unauthorized("invalid authorization format"))
			return
		}

		principal, err := m.verifier.VerifyToken(c.Request.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}

		c.Set(ContextPrincipal, principal)
		c.Next()
	}
}

// RequireRole rejects callers whose role is not listed. Use after Authenticate.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := GetPrincipal(c)
		if !ok {
			httputil.RespondWithError(c, unauthorized("authentication required"))
			return
		}
		if !principal.HasRole(roles...) {
			httputil.RespondWithError(c, apperrors.Forbidden("you do not have permission to access this resource"))
			return
		}
		c.Next()
	}
}

func GetPrincipal(c *gin.Context) (*model.Principal, bool) {
	v, exists := c.Get(ContextPrincipal)
	if !exists {
		return nil, false
	}
	principal, ok := v.(*model.Principal)
	return principal, ok && principal != nil
}

func unauthorized(message string) *apperrors.AppError {
	err := apperrors.Unauthorized(nil)
	err.Message = message
	return err
}
