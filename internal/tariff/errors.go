package tariff

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownServiceCode = errors.New("unknown_service_code")
	ErrRateNotFound       = errors.New("rate_not_found")
	ErrInvalidSchedule    = errors.New("invalid_schedule")
	ErrScheduleMismatch   = errors.New("schedule_mismatch")
	ErrMissingFields      = errors.New("missing_fields")
	ErrInvalidAttribute   = errors.New("invalid_attribute")
)

// MissingFieldsError lists required attributes absent from a request, in the
// order they are declared for the service code.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("missing fields: %s", strings.Join(e.Fields, ", "))
}

func (e *MissingFieldsError) Unwrap() error { return ErrMissingFields }

// AttributeError reports an attribute that is present but unusable.
type AttributeError struct {
	Field  string
	Reason string
}

func (e *AttributeError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *AttributeError) Unwrap() error { return ErrInvalidAttribute }
