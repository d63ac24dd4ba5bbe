package appointment

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const MaxReasonLength = 500

// CreateRequest is the patient-supplied booking payload. Empty strings are
// treated as absent.
type CreateRequest struct {
	ClinicID       string `json:"clinic_id" validate:"omitempty,uuid"`
	PractitionerID string `json:"doctor_id" validate:"omitempty,uuid"`
	Date           string `json:"appointment_date" validate:"required,calendar_date"`
	Time           string `json:"appointment_time" validate:"required,time_of_day"`
	Type           string `json:"type" validate:"omitempty,oneof=in_person telemedicine"`
	Reason         string `json:"reason" validate:"omitempty,max=500"`
}

// UpdateRequest carries the subset of fields to change; nil means unchanged.
type UpdateRequest struct {
	ClinicID       *string `json:"clinic_id" validate:"omitempty,uuid"`
	PractitionerID *string `json:"doctor_id" validate:"omitempty,uuid"`
	Date           *string `json:"appointment_date" validate:"omitempty,calendar_date"`
	Time           *string `json:"appointment_time" validate:"omitempty,time_of_day"`
	Type           *string `json:"type" validate:"omitempty,oneof=in_person telemedicine"`
	Status         *string `json:"status" validate:"omitempty,oneof=scheduled cancelled"`
	Reason         *string `json:"reason" validate:"omitempty,max=500"`
}

// Rules evaluates the static field rules of booking requests.
type Rules struct {
	validate *validator.Validate
}

func NewRules() *Rules {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	mustRegister(v, "calendar_date", func(fl validator.FieldLevel) bool {
		_, err := ParseDate(fl.Field().String())
		return err == nil
	})
	mustRegister(v, "time_of_day", func(fl validator.FieldLevel) bool {
		_, err := ParseTimeOfDay(fl.Field().String())
		return err == nil
	})

	return &Rules{validate: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %q validation: %v", tag, err))
	}
}

// Check returns nil when req satisfies every rule.
func (r *Rules) Check(req any) ValidationErrors {
	err := r.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ValidationErrors{{Field: "request", Message: err.Error()}}
	}

	out := make(ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Message: translate(fe)})
	}
	return out
}

func translate(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", fe.Field())
	case "uuid":
		return fmt.Sprintf("The %s must be a valid UUID.", fe.Field())
	case "oneof":
		return fmt.Sprintf("The selected %s is invalid. Allowed: %s.", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "max":
		return fmt.Sprintf("The %s may not be greater than %s characters.", fe.Field(), fe.Param())
	case "calendar_date":
		return fmt.Sprintf("The %s is not a valid date.", fe.Field())
	case "time_of_day":
		return fmt.Sprintf("The %s is not a valid time.", fe.Field())
	default:
		return fe.Error()
	}
}
