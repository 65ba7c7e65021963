package middleware

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/patientflow/internal/model"
	apperrors "github.com/jwalitptl/patientflow/pkg/errors"
	"github.com/jwalitptl/patientflow/pkg/httputil"
	pfvalidator "github.com/jwalitptl/patientflow/pkg/validator"
)

// Enums are the domain tags used in binding rules.
var Enums = map[string][]string{
	"priority": {string(model.PriorityNormal), string(model.PriorityUrgent), string(model.PriorityEmergency)},
	"role": {
		string(model.RoleAdmin), string(model.RoleNurse), string(model.RoleDoctor),
		string(model.RoleReceptionist), string(model.RolePharmacist),
	},
	"gender": {string(model.GenderMale), string(model.GenderFemale), string(model.GenderOther)},
}

var registerOnce sync.Once

// RegisterValidators installs the domain tags on gin's validator. It is safe to call
// more than once.
func RegisterValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			if err := pfvalidator.Register(v, Enums); err != nil {
				panic(err)
			}
		}
	})
}

// BindError turns a failed ShouldBind into a ValidationError naming the fields.
func BindError(err error) *apperrors.AppError {
	if fields := pfvalidator.Fields(err, Enums); len(fields) > 0 {
		return apperrors.NewValidation(pfvalidator.Summary(fields))
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		return apperrors.NewBadRequest("malformed JSON body", err)
	case errors.As(err, &typeErr):
		return apperrors.NewValidation(typeErr.Field + " has the wrong type")
	}
	return apperrors.NewBadRequest("invalid request body", err)
}

// BindJSON binds the body into obj and answers the request itself on failure.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		httputil.RespondWithError(c, BindError(err))
		return false
	}
	return true
}
