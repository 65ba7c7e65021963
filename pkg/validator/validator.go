package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError is one failed rule, named by its JSON field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Register installs the domain tags on v and makes errors report JSON field names.
// enums maps a tag to its allowed values, for example "priority" to NORMAL, URGENT
// and EMERGENCY.
func Register(v *validator.Validate, enums map[string][]string) error {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	for tag, allowed := range enums {
		set := make(map[string]struct{}, len(allowed))
		for _, a := range allowed {
			set[a] = struct{}{}
		}
		fn := func(fl validator.FieldLevel) bool {
			if fl.Field().Kind() != reflect.String {
				return false
			}
			_, ok := set[fl.Field().String()]
			return ok
		}
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %q: %w", tag, err)
		}
	}
	return nil
}

// Fields flattens a validation failure. It returns nil for any other error.
func Fields(err error, enums map[string][]string) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]FieldError, 0, len(verrs))
	for _, e := range verrs {
		out = append(out, FieldError{Field: e.Field(), Message: message(e, enums)})
	}
	return out
}

func message(e validator.FieldError, enums map[string][]string) string {
	if allowed, ok := enums[e.Tag()]; ok {
		return "must be one of " + strings.Join(allowed, ", ")
	}
	switch e.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min", "gte":
		if e.Kind() == reflect.String || e.Kind() == reflect.Slice {
			return fmt.Sprintf("must be at least %s characters long", e.Param())
		}
		return "must be at least " + e.Param()
	case "max", "lte":
		if e.Kind() == reflect.String || e.Kind() == reflect.Slice {
			return fmt.Sprintf("must not exceed %s characters", e.Param())
		}
		return "must be at most " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "oneof":
		return "must be one of " + strings.ReplaceAll(e.Param(), " ", ", ")
	}
	return "is invalid"
}

// Summary joins field errors into one line.
func Summary(fields []FieldError) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return strings.Join(parts, "; ")
}
