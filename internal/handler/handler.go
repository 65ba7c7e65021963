package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/patientflow/internal/middleware"
	"github.com/jwalitptl/patientflow/internal/model"
	apperrors "github.com/jwalitptl/patientflow/pkg/errors"
	"github.com/jwalitptl/patientflow/pkg/httputil"
)

// Handler is implemented by every route group.
type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// Principal returns the authenticated caller, answering 401 itself when there is none.
func Principal(c *gin.Context) (*model.Principal, bool) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return nil, false
	}
	return p, true
}

// ParamID parses a uuid path parameter, answering 400 itself when it is malformed.
func ParamID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid "+name, err))
		return uuid.Nil, false
	}
	return id, true
}

// Page reads ?page= and ?page_size=. Garbage falls back to the defaults.
func Page(c *gin.Context) model.Pagination {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("page_size"))
	return model.Pagination{Page: page, PageSize: size}.Normalize()
}

// QueryBool reads a boolean query parameter, using def when absent or malformed.
func QueryBool(c *gin.Context, name string, def bool) bool {
	v, err := strconv.ParseBool(c.Query(name))
	if err != nil {
		return def
	}
	return v
}
