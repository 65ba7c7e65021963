package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jwalitptl/patientflow/internal/handler"
	"github.com/jwalitptl/patientflow/internal/handler/auth"
	"github.com/jwalitptl/patientflow/internal/handler/health"
	"github.com/jwalitptl/patientflow/internal/handler/prometheus"
	"github.com/jwalitptl/patientflow/internal/middleware"
	"github.com/jwalitptl/patientflow/pkg/metrics"
)

// UploadPath is the one route that accepts large multipart bodies.
const UploadPath = "/voice/consultation"

type Config struct {
	// ServiceName names the otelgin spans. Empty disables request tracing.
	ServiceName string
	CORS        middleware.CORSConfig
	// RateLimit is nil when rate limiting is off.
	RateLimit      *middleware.RateLimiterConfig
	MaxBodyBytes   int64
	MaxUploadBytes int64
	RequestTimeout time.Duration
}

// Handlers groups the route handlers. Protected handlers are mounted behind
// authentication, in order.
type Handlers struct {
	Health    *health.Handler
	Metrics   *prometheus.Handler
	Auth      *auth.Handler
	Protected []handler.Handler
}

type Router struct {
	engine *gin.Engine
	auth   *middleware.AuthMiddleware
	h      Handlers
}

func NewRouter(config Config, verifier middleware.TokenVerifier, m *metrics.Metrics, h Handlers) *Router {
	middleware.RegisterValidators()

	engine := gin.New()

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
	)
	if config.ServiceName != "" {
		engine.Use(otelgin.Middleware(config.ServiceName))
	}
	if m != nil {
		engine.Use(middleware.Metrics(m))
	}
	engine.Use(
		middleware.ErrorHandler(),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.CORS(config.CORS),
	)
	if config.RateLimit != nil {
		engine.Use(middleware.NewRateLimiter(*config.RateLimit).RateLimit())
	}
	engine.Use(
		middleware.SizeLimit(middleware.SizeLimitConfig{
			MaxBodySize:   config.MaxBodyBytes,
			MaxUploadSize: config.MaxUploadBytes,
			UploadPaths:   []string{UploadPath},
		}),
		middleware.AuditContext(),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}),
	)

	r := &Router{
		engine: engine,
		auth:   middleware.NewAuthMiddleware(verifier),
		h:      h,
	}
	r.setup()
	return r
}

func (r *Router) setup() {
	if r.h.Metrics != nil {
		r.h.Metrics.RegisterRoutes(&r.engine.RouterGroup)
	}

	api := r.engine.Group("/api/v1")
	if r.h.Health != nil {
		r.h.Health.RegisterRoutes(api)
	}
	if r.h.Auth != nil {
		r.h.Auth.RegisterPublicRoutes(api)
	}

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	if r.h.Auth != nil {
		r.h.Auth.RegisterRoutes(protected)
	}
	for _, h := range r.h.Protected {
		h.RegisterRoutes(protected)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
