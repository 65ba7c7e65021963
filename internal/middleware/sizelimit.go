package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/patientflow/pkg/httputil"
)

type SizeLimitConfig struct {
	MaxBodySize   int64
	MaxUploadSize int64
	// UploadPaths get MaxUploadSize instead of MaxBodySize.
	UploadPaths []string
}

func DefaultSizeLimitConfig() SizeLimitConfig {
	return SizeLimitConfig{
		MaxBodySize:   1 << 20,  // 1MB
		MaxUploadSize: 25 << 20, // 25MB, the transcription upload cap
	}
}

// SizeLimit rejects oversized declared bodies up front and caps the bytes actually
// read for the rest.
func SizeLimit(config SizeLimitConfig) gin.HandlerFunc {
	defaults := DefaultSizeLimitConfig()
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = defaults.MaxBodySize
	}
	if config.MaxUploadSize <= 0 {
		config.MaxUploadSize = defaults.MaxUploadSize
	}

	return func(c *gin.Context) {
		limit := config.MaxBodySize
		for _, p := range config.UploadPaths {
			if strings.HasSuffix(c.Request.URL.Path, p) {
				limit = config.MaxUploadSize
				break
			}
		}

		if c.Request.ContentLength > limit {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, httputil.Response{
				Status:  httputil.StatusError,
				Code:    "PAYLOAD_TOO_LARGE",
				Message: fmt.Sprintf("request body exceeds %d bytes", limit),
			})
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
