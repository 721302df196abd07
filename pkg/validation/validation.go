// Package validation wraps go-playground/validator with the request rules
// used by the HTTP handlers.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(jsonFieldName)
	validate.RegisterValidation("risk_level", validateRiskLevel)
}

// ValidateStruct validates tagged fields and returns the raw validator error.
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// Messages flattens a validation error into one message per failed field.
func Messages(err error) []string {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, fieldMessage(fe))
		}
		return out
	}
	return []string{err.Error()}
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "" {
		name = strings.SplitN(fld.Tag.Get("query"), ",", 2)[0]
	}
	if name == "-" {
		return ""
	}
	return name
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "datetime":
		return fmt.Sprintf("%s must match format %s", field, fe.Param())
	case "risk_level":
		return fmt.Sprintf("%s must be low, moderate, or high", field)
	default:
		return field + " is invalid"
	}
}

func validateRiskLevel(fl validator.FieldLevel) bool {
	v := fl.Field().String()
	return v == "low" || v == "moderate" || v == "high"
}
