package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Policy resolves the two behaviors left open by the booking rules. The zero
// value keeps the established behavior: updates never re-check availability
// and cancelled appointments keep occupying their slot.
type Policy struct {
	RecheckAvailabilityOnUpdate bool
	CancelledFreesSlot          bool
}

// Validator decides whether a booking request may be persisted. It holds no
// state between calls; every decision is computed from the Reader it is
// given, so running it against a transaction-bound Reader makes the check and
// the following write atomic.
type Validator struct {
	rules  *Rules
	policy Policy
}

func NewValidator(policy Policy) *Validator {
	return &Validator{
		rules:  NewRules(),
		policy: policy,
	}
}

func (v *Validator) Policy() Policy {
	return v.policy
}

// ValidateCreate runs the field, consistency and availability checks in
// order and returns the appointment to insert.
func (v *Validator) ValidateCreate(ctx context.Context, rd Reader, patientID uuid.UUID, req CreateRequest) (*Appointment, error) {
	if errs := v.rules.Check(req); len(errs) > 0 {
		return nil, errs
	}

	date, _ := ParseDate(req.Date)
	tod, _ := ParseTimeOfDay(req.Time)
	clinicID := parseOptionalUUID(req.ClinicID)
	practitionerID := parseOptionalUUID(req.PractitionerID)

	practitioner, err := v.checkReferences(ctx, rd, clinicID, practitionerID)
	if err != nil {
		return nil, err
	}

	if clinicID != nil && practitioner != nil {
		if err := checkAffiliation(practitioner, *clinicID); err != nil {
			return nil, err
		}
	}

	if clinicID != nil {
		slot := Slot{ClinicID: clinicID, PractitionerID: practitionerID, Date: date, Time: tod}
		if err := v.checkAvailability(ctx, rd, slot, nil); err != nil {
			return nil, err
		}
	}

	appt := &Appointment{
		PatientID:      patientID,
		PractitionerID: practitionerID,
		ClinicID:       clinicID,
		Date:           date,
		Time:           tod,
		Type:           TypeInPerson,
		Status:         StatusScheduled,
	}
	if req.Type != "" {
		appt.Type = AppointmentType(req.Type)
	}
	if req.Reason != "" {
		reason := req.Reason
		appt.Reason = &reason
	}
	return appt, nil
}

// ValidateUpdate checks ownership first, then the field rules and the
// practitioner affiliation, and returns the merged appointment.
func (v *Validator) ValidateUpdate(ctx context.Context, rd Reader, patientID, id uuid.UUID, req UpdateRequest) (*Appointment, error) {
	existing, err := rd.GetAppointmentForPatient(ctx, id, patientID)
	if err != nil {
		return nil, err
	}

	if errs := v.rules.Check(req); len(errs) > 0 {
		return nil, errs
	}

	clinicID := parseOptionalUUID(deref(req.ClinicID))
	practitionerID := parseOptionalUUID(deref(req.PractitionerID))

	practitioner, err := v.checkReferences(ctx, rd, clinicID, practitionerID)
	if err != nil {
		return nil, err
	}

	if clinicID != nil && practitioner != nil {
		if err := checkAffiliation(practitioner, *clinicID); err != nil {
			return nil, err
		}
	}

	if s := deref(req.Status); s == string(StatusScheduled) && existing.Status == StatusCancelled {
		return nil, ErrInvalidStatusTransition
	}

	merged := req.apply(*existing)

	if v.policy.RecheckAvailabilityOnUpdate &&
		merged.Status == StatusScheduled &&
		merged.ClinicID != nil &&
		slotOf(merged).ident() != slotOf(*existing).ident() {
		if err := v.checkAvailability(ctx, rd, slotOf(merged), &merged.ID); err != nil {
			return nil, err
		}
	}

	return &merged, nil
}

// ValidateDelete only checks ownership.
func (v *Validator) ValidateDelete(ctx context.Context, rd Reader, patientID, id uuid.UUID) (*Appointment, error) {
	return rd.GetAppointmentForPatient(ctx, id, patientID)
}

// checkReferences verifies referenced records exist, reporting misses as
// field errors. It returns the referenced user when one was given.
func (v *Validator) checkReferences(ctx context.Context, rd Reader, clinicID, userID *uuid.UUID) (*User, error) {
	var errs ValidationErrors

	if clinicID != nil {
		if _, err := rd.GetClinicByID(ctx, *clinicID); err != nil {
			if !errors.Is(err, ErrClinicNotFound) {
				return nil, fmt.Errorf("load clinic: %w", err)
			}
			errs = append(errs, FieldError{Field: "clinic_id", Message: "The selected clinic_id is invalid."})
		}
	}

	var user *User
	if userID != nil {
		u, err := rd.GetUserByID(ctx, *userID)
		if err != nil {
			if !errors.Is(err, ErrUserNotFound) {
				return nil, fmt.Errorf("load doctor: %w", err)
			}
			errs = append(errs, FieldError{Field: "doctor_id", Message: "The selected doctor_id is invalid."})
		}
		user = u
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return user, nil
}

func checkAffiliation(practitioner *User, clinicID uuid.UUID) error {
	if practitioner.ClinicID == nil || *practitioner.ClinicID != clinicID {
		return ErrPractitionerNotInClinic
	}
	return nil
}

// checkAvailability requires slot.ClinicID to be set.
func (v *Validator) checkAvailability(ctx context.Context, rd Reader, slot Slot, excludeID *uuid.UUID) error {
	if _, err := rd.GetClinicByID(ctx, *slot.ClinicID); err != nil {
		if errors.Is(err, ErrClinicNotFound) {
			return ErrClinicNotFound
		}
		return fmt.Errorf("load clinic: %w", err)
	}

	q := SlotQuery{
		Date:             slot.Date,
		Time:             slot.Time,
		ExcludeID:        excludeID,
		IncludeCancelled: !v.policy.CancelledFreesSlot,
	}

	if slot.PractitionerID != nil {
		taken, err := rd.PractitionerSlotTaken(ctx, *slot.PractitionerID, q)
		if err != nil {
			return fmt.Errorf("check doctor slot: %w", err)
		}
		if taken {
			return ErrPractitionerUnavailable
		}
		return nil
	}

	totalDoctors, err := rd.CountPractitionersByClinic(ctx, *slot.ClinicID)
	if err != nil {
		return fmt.Errorf("count clinic doctors: %w", err)
	}
	occupied, err := rd.CountClinicAppointments(ctx, *slot.ClinicID, q)
	if err != nil {
		return fmt.Errorf("count clinic appointments: %w", err)
	}
	if occupied >= totalDoctors {
		return ErrClinicFullyBooked
	}
	return nil
}

func (r UpdateRequest) apply(a Appointment) Appointment {
	if id := parseOptionalUUID(deref(r.ClinicID)); id != nil {
		a.ClinicID = id
	}
	if id := parseOptionalUUID(deref(r.PractitionerID)); id != nil {
		a.PractitionerID = id
	}
	if d, err := ParseDate(deref(r.Date)); err == nil {
		a.Date = d
	}
	if t, err := ParseTimeOfDay(deref(r.Time)); err == nil {
		a.Time = t
	}
	if s := deref(r.Type); s != "" {
		a.Type = AppointmentType(s)
	}
	if s := deref(r.Status); s != "" {
		a.Status = AppointmentStatus(s)
	}
	if r.Reason != nil {
		if *r.Reason == "" {
			a.Reason = nil
		} else {
			reason := *r.Reason
			a.Reason = &reason
		}
	}
	return a
}

// slotKey is a comparable form of an appointment's slot.
type slotKey struct {
	clinic, practitioner uuid.UUID
	date                 Date
	time                 TimeOfDay
}

func slotOf(a Appointment) Slot {
	return Slot{ClinicID: a.ClinicID, PractitionerID: a.PractitionerID, Date: a.Date, Time: a.Time}
}

func (s Slot) ident() slotKey {
	k := slotKey{date: s.Date, time: s.Time}
	if s.ClinicID != nil {
		k.clinic = *s.ClinicID
	}
	if s.PractitionerID != nil {
		k.practitioner = *s.PractitionerID
	}
	return k
}

func parseOptionalUUID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
