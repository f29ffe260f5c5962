// Package validation checks request structs and reports the first problem as
// an INVALID_ARGUMENT error naming the JSON field.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/omutucat/reading-counter-dc/internal/errs"
)

// Validator wraps go-playground/validator with JSON field names.
type Validator struct {
	validate *validator.Validate
}

// New creates a Validator.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// Struct validates s, returning nil or an errs.InvalidArgument.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errs.InvalidArgument("invalid request: %v", err)
	}

	names := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		names = append(names, fe.Field())
	}
	if fieldErrs[0].Tag() == "required" {
		return errs.InvalidArgument("missing required fields: %s", strings.Join(names, ", "))
	}
	return errs.InvalidArgument("invalid value for %s", strings.Join(names, ", "))
}
