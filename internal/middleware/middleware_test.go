package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/patientflow/internal/model"
	"github.com/jwalitptl/patientflow/internal/service/audit"
	apperrors "github.com/jwalitptl/patientflow/pkg/errors"
	"github.com/jwalitptl/patientflow/pkg/httputil"
	"github.com/jwalitptl/patientflow/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
	RegisterValidators()
}

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) VerifyToken(ctx context.Context, token string) (*model.Principal, error) {
	args := m.Called(ctx, token)
	if p := args.Get(0); p != nil {
		return p.(*model.Principal), args.Error(1)
	}
	return nil, args.Error(1)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthenticate(t *testing.T) {
	principal := &model.Principal{UserID: uuid.New(), HospitalID: uuid.New(), Role: model.RoleDoctor}
	verifier := new(mockVerifier)
	verifier.On("VerifyToken", mock.Anything, "good").Return(principal, nil)
	verifier.On("VerifyToken", mock.Anything, "bad").Return(nil, apperrors.Unauthorized(errors.New("expired")))

	r := gin.New()
	auth := NewAuthMiddleware(verifier)
	r.GET("/me", auth.Authenticate(), func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		require.True(t, ok)
		c.String(http.StatusOK, p.UserID.String())
	})
	r.GET("/pharmacy", auth.Authenticate(), RequireRole(model.RolePharmacist), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	cases := []struct {
		name   string
		header string
		path   string
		status int
	}{
		{"missing header", "", "/me", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", "/me", http.StatusUnauthorized},
		{"rejected token", "Bearer bad", "/me", http.StatusUnauthorized},
		{"valid token", "Bearer good", "/me", http.StatusOK},
		{"lower case scheme", "bearer good", "/me", http.StatusOK},
		{"wrong role", "Bearer good", "/pharmacy", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := serve(r, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK && tc.path == "/me" {
				assert.Equal(t, principal.UserID.String(), w.Body.String())
			}
		})
	}
}

func TestRequireRoleWithoutPrincipal(t *testing.T) {
	r := gin.New()
	r.GET("/x", RequireRole(model.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decode(t, w).Code)
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextRequestID)) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get(HeaderXRequestID)
	_, err := uuid.Parse(generated)
	assert.NoError(t, err)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, "abc-123")
	w = serve(r, req)
	assert.Equal(t, "abc-123", w.Header().Get(HeaderXRequestID))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, strings.Repeat("x", 100))
	w = serve(r, req)
	assert.NotEqual(t, strings.Repeat("x", 100), w.Header().Get(HeaderXRequestID))
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/", func(c *gin.Context) { panic("boom") })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decode(t, w)
	assert.Equal(t, httputil.StatusError, resp.Status)
	assert.Equal(t, "INTERNAL_ERROR", resp.Code)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestErrorHandler(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/pushed", func(c *gin.Context) { _ = c.Error(apperrors.NewInvalidState("start", model.AppointmentStatusCreated)) })
	r.GET("/written", func(c *gin.Context) {
		_ = c.Error(errors.New("logged only"))
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/pushed", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_STATE", decode(t, w).Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/written", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiterIsPerClient(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: rate.Limit(0.001), Burst: 2})
	r := gin.New()
	r.Use(rl.RateLimit())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	request := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		return serve(r, req).Code
	}

	assert.Equal(t, http.StatusOK, request("10.0.0.1"))
	assert.Equal(t, http.StatusOK, request("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, request("10.0.0.1"))
	assert.Equal(t, http.StatusOK, request("10.0.0.2"))
}

func TestSizeLimit(t *testing.T) {
	r := gin.New()
	r.Use(SizeLimit(SizeLimitConfig{MaxBodySize: 8, MaxUploadSize: 64, UploadPaths: []string{"/voice"}}))
	r.POST("/notes", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/voice", func(c *gin.Context) { c.Status(http.StatusOK) })

	body := strings.Repeat("a", 32)
	w := serve(r, httptest.NewRequest(http.MethodPost, "/notes", strings.NewReader(body)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodPost, "/voice", strings.NewReader(body)))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders(DefaultSecurityConfig()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=31536000")
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS(CORSConfig{AllowOrigins: []string{"https://clinic.example"}}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://clinic.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := serve(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://clinic.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAuditContext(t *testing.T) {
	r := gin.New()
	r.Use(AuditContext())
	r.GET("/", func(c *gin.Context) {
		ip, ua := audit.RequestInfo(c.Request.Context())
		c.String(http.StatusOK, ip+"|"+ua)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:555"
	req.Header.Set("User-Agent", "ward-tablet")
	w := serve(r, req)
	assert.Equal(t, "192.0.2.7|ward-tablet", w.Body.String())
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	m := metrics.NewTest()
	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/appointments/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, httptest.NewRequest(http.MethodGet, "/appointments/"+uuid.NewString(), nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/appointments/"+uuid.NewString(), nil))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodGet, "/appointments/:id", "200")))
}

func TestBindJSON(t *testing.T) {
	r := gin.New()
	r.POST("/appointments", func(c *gin.Context) {
		var req model.CreateAppointmentRequest
		if !BindJSON(c, &req) {
			return
		}
		c.Status(http.StatusOK)
	})

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/appointments", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return serve(r, req)
	}

	w := post(`{"patient_id":"` + uuid.NewString() + `","priority":"LOW"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "VALIDATION_ERROR", resp.Code)
	assert.Contains(t, resp.Message, "priority must be one of NORMAL, URGENT, EMERGENCY")

	w = post(`{"patient_id":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(`{"patient_id":"` + uuid.NewString() + `","priority":"URGENT"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}
