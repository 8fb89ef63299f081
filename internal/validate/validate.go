// Package validate checks per-action request payloads before they reach the
// engines. Failures surface as *Error with a stable "field: constraint"
// message suitable for a 400 response body.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var slugKeyRe = regexp.MustCompile(`^[a-z][a-z0-9_]{1,63}$`)

// Error describes the first failing field of a payload.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Validator wraps go-playground/validator with the domain rules the payload
// structs use. Safe for concurrent use.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for a nil func or empty tag.
	_ = v.RegisterValidation("safeurl", safeURL)
	_ = v.RegisterValidation("slugkey", slugKey)
	return &Validator{v: v}
}

// Struct validates s and reports the first violation.
func (vd *Validator) Struct(s any) error {
	err := vd.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &Error{Field: fe.Field(), Message: describe(fe)}
	}
	return &Error{Field: "payload", Message: "must be a JSON object"}
}

// Failf builds a validation error for checks that fall outside struct tags.
func Failf(field, format string, args ...any) error {
	return &Error{Field: field, Message: fmt.Sprintf(format, args...)}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid", "uuid4":
		return "must be a valid UUID"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of [" + strings.Join(strings.Fields(fe.Param()), ", ") + "]"
	case "min":
		if fe.Kind() == reflect.String {
			return "length must be at least " + fe.Param()
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "max length " + fe.Param()
		}
		return "must be at most " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "datetime":
		return "invalid date format"
	case "safeurl":
		return "unsafe URL protocol"
	case "slugkey":
		return "must match ^[a-z][a-z0-9_]{1,63}$"
	default:
		return "is invalid"
	}
}

// safeURL rejects URLs that would execute script when rendered as a link.
func safeURL(fl validator.FieldLevel) bool {
	lower := strings.ToLower(strings.TrimSpace(fl.Field().String()))
	for _, proto := range []string{"javascript:", "data:", "vbscript:"} {
		if strings.HasPrefix(lower, proto) {
			return false
		}
	}
	return true
}

func slugKey(fl validator.FieldLevel) bool {
	return slugKeyRe.MatchString(fl.Field().String())
}
