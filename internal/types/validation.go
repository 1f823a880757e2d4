package types

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// PayloadValidator checks decoded events and alerts against the struct tags
// declared in domain.go. Field names in errors use the JSON wire names so
// log lines match what publishers send.
type PayloadValidator struct {
	v *validator.Validate
}

// NewPayloadValidator builds a validator with JSON tag name reporting.
func NewPayloadValidator() *PayloadValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &PayloadValidator{v: v}
}

// Event validates e. A missing identifier, severity, resource or app name
// yields ErrCodeValidationMissingField; an unknown severity yields
// ErrCodeValidationInvalidSeverity. The offending fields are listed under
// Details["fields"].
func (p *PayloadValidator) Event(e *Event) error {
	if e == nil {
		return NewAppError(ErrCodeValidationMissingField, "event is nil", nil)
	}
	return p.check(e)
}

// Alert validates a. Besides presence of id, severity and resource, the
// severity must be critical (error or fatal).
func (p *PayloadValidator) Alert(a *Alert) error {
	if a == nil {
		return NewAppError(ErrCodeValidationMissingField, "alert is nil", nil)
	}
	return p.check(a)
}

func (p *PayloadValidator) check(s any) error {
	err := p.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewAppError(ErrCodeInternalUnexpected, "validation failed", err)
	}

	code := ErrCodeValidationMissingField
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
		if fe.Field() == "severity" && fe.Tag() == "oneof" {
			code = ErrCodeValidationInvalidSeverity
		}
	}

	msg := "invalid fields: " + strings.Join(fields, ", ")
	return NewAppError(code, msg, err).WithDetails(map[string]any{"fields": fields})
}
