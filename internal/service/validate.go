package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/clicloop/internal/types"
	"github.com/go-playground/validator/v10"
)

// Rules that are not validator tags
const (
	ruleUnknown = "unknown"
	ruleType    = "type"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON name
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

// ValidateStruct runs the struct's validate tags and returns every violation, prefixed
// with prefix when nested under another field
func ValidateStruct(s interface{}, prefix string) []types.FieldViolation {
	return toViolations(validate.Struct(s), prefix, "")
}

// validateVar checks a single top-level value against tag
func validateVar(field string, value interface{}, tag string) []types.FieldViolation {
	return toViolations(validate.Var(value, tag), "", field)
}

func toViolations(err error, prefix, field string) []types.FieldViolation {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		// InvalidValidationError: programmer error, surface it as a single violation
		return []types.FieldViolation{{Field: prefix + field, Rule: "invalid", Message: err.Error()}}
	}

	out := make([]types.FieldViolation, 0, len(verrs))
	for _, fe := range verrs {
		name := field
		if name == "" {
			name = fe.Field()
		}
		out = append(out, types.FieldViolation{
			Field:   prefix + name,
			Rule:    fe.Tag(),
			Limit:   fe.Param(),
			Message: ruleMessage(fe.Tag(), fe.Param(), fe.Kind()),
		})
	}
	return out
}

func ruleMessage(rule, param string, kind reflect.Kind) string {
	switch rule {
	case "required":
		return "is required"
	case "max":
		if kind == reflect.String {
			return fmt.Sprintf("must be at most %s characters", param)
		}
		return fmt.Sprintf("must be at most %s", param)
	case "min":
		return fmt.Sprintf("must be at least %s characters", param)
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", param)
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(param, " ", ", "))
	case "url":
		return "must be a valid URL"
	case "email":
		return "must be a valid email"
	default:
		return fmt.Sprintf("failed rule %s", rule)
	}
}

func unknownField(field string) types.FieldViolation {
	return types.FieldViolation{Field: field, Rule: ruleUnknown, Message: "is not allowed"}
}

func wrongType(field, want string) types.FieldViolation {
	return types.FieldViolation{Field: field, Rule: ruleType, Limit: want, Message: "must be a " + want}
}
