package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type CORSConfig struct {
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       time.Duration
}

func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			"X-Requested-With",
			HeaderXRequestID,
		},
		MaxAge: 12 * time.Hour,
	}
}

// CORS builds the gin-contrib handler. Empty fields fall back to the defaults.
// Credentials are only allowed with an explicit origin list.
func CORS(config CORSConfig) gin.HandlerFunc {
	defaults := DefaultCORSConfig()
	if len(config.AllowOrigins) == 0 {
		config.AllowOrigins = defaults.AllowOrigins
	}
	if len(config.AllowMethods) == 0 {
		config.AllowMethods = defaults.AllowMethods
	}
	if len(config.AllowHeaders) == 0 {
		config.AllowHeaders = defaults.AllowHeaders
	}
	if config.MaxAge == 0 {
		config.MaxAge = defaults.MaxAge
	}

	cfg := cors.Config{
		AllowMethods:  config.AllowMethods,
		AllowHeaders:  config.AllowHeaders,
		ExposeHeaders: []string{"Content-Length", "Content-Type", HeaderXRequestID},
		MaxAge:        config.MaxAge,
	}
	for _, origin := range config.AllowOrigins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
		}
	}
	if !cfg.AllowAllOrigins {
		cfg.AllowOrigins = config.AllowOrigins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}
