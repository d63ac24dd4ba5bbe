package appointment

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrClinicNotFound      = errors.New("clinic not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrPatientNotFound     = errors.New("patient account not found")

	ErrPractitionerNotInClinic = errors.New("selected doctor does not belong to the chosen clinic")
	ErrPractitionerUnavailable = errors.New("doctor is not available at the chosen time")
	ErrClinicFullyBooked       = errors.New("no doctors available in this clinic at the chosen time")
	ErrInvalidStatusTransition = errors.New("a cancelled appointment cannot be scheduled again")
	ErrSlotBeingBooked         = errors.New("slot is currently being booked, please retry")
)

// FieldError is a single field-level rule violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

// ByField groups messages by field name.
func (v ValidationErrors) ByField() map[string][]string {
	out := make(map[string][]string, len(v))
	for _, e := range v {
		out[e.Field] = append(out[e.Field], e.Message)
	}
	return out
}

// IsAvailabilityError reports whether err rejects a booking because the slot is taken.
func IsAvailabilityError(err error) bool {
	return errors.Is(err, ErrPractitionerUnavailable) || errors.Is(err, ErrClinicFullyBooked)
}
