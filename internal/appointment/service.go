package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/logger"
	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentUpdated   = "APPOINTMENT_UPDATED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentDeleted   = "APPOINTMENT_DELETED"

	patientForeignKey = "appointments_patient_id_fkey"

	// serialization failures are retried this many times in total
	maxTxAttempts = 3
)

type Service struct {
	repo      Repository
	locker    redisclient.Locker
	validator *Validator
	log       *logger.Logger
}

func NewService(repo Repository, locker redisclient.Locker, validator *Validator, log *logger.Logger) *Service {
	return &Service{
		repo:      repo,
		locker:    locker,
		validator: validator,
		log:       log,
	}
}

// CreateAppointment books a slot for the patient. The availability check and
// the insert run under a per-slot lock and inside one serializable
// transaction, so two concurrent requests cannot both take the last doctor.
// Concurrent requests for the same slot wait for each other instead of
// failing.
func (s *Service) CreateAppointment(ctx context.Context, patientID uuid.UUID, req CreateRequest) (*Appointment, error) {
	var created *Appointment

	err := s.withSlotLock(ctx, req.slot().Key(), func(ctx context.Context) error {
		return s.runInTx(ctx, func(tx Repository) error {
			appt, err := s.validator.ValidateCreate(ctx, tx, patientID, req)
			if err != nil {
				return err
			}

			created, err = tx.CreateAppointment(ctx, appt)
			if err != nil {
				return fmt.Errorf("create appointment: %w", err)
			}

			return s.logEvent(ctx, tx, created.ID, EventAppointmentCreated, map[string]any{
				"patient_id": patientID.String(),
				"clinic_id":  uuidOrNil(created.ClinicID),
				"doctor_id":  uuidOrNil(created.PractitionerID),
				"date":       created.Date.String(),
				"time":       created.Time.String(),
			})
		})
	})
	if err != nil {
		err = classify(err)
		s.logRejection("create", patientID, uuid.Nil, err)
		return nil, err
	}

	s.log.Info("appointment created",
		"id", created.ID,
		"patient_id", patientID,
		"clinic_id", uuidOrNil(created.ClinicID),
		"doctor_id", uuidOrNil(created.PractitionerID),
		"date", created.Date.String(),
		"time", created.Time.String(),
	)
	return created, nil
}

// UpdateAppointment changes the patient's own appointment. The slot lock is
// only taken when updates re-check availability.
func (s *Service) UpdateAppointment(ctx context.Context, patientID, id uuid.UUID, req UpdateRequest) (*Appointment, error) {
	key := ""
	if s.validator.Policy().RecheckAvailabilityOnUpdate {
		existing, err := s.repo.GetAppointmentForPatient(ctx, id, patientID)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load appointment: %w", err)
		}
		key = slotOf(req.apply(*existing)).Key()
	}

	var updated *Appointment

	err := s.withSlotLock(ctx, key, func(ctx context.Context) error {
		return s.runInTx(ctx, func(tx Repository) error {
			before, err := tx.GetAppointmentForPatient(ctx, id, patientID)
			if err != nil {
				return err
			}

			merged, err := s.validator.ValidateUpdate(ctx, tx, patientID, id, req)
			if err != nil {
				return err
			}

			updated, err = tx.UpdateAppointment(ctx, merged)
			if err != nil {
				return fmt.Errorf("update appointment: %w", err)
			}

			event := EventAppointmentUpdated
			if before.Status != StatusCancelled && updated.Status == StatusCancelled {
				event = EventAppointmentCancelled
			}
			return s.logEvent(ctx, tx, updated.ID, event, map[string]any{
				"status": string(updated.Status),
				"date":   updated.Date.String(),
				"time":   updated.Time.String(),
			})
		})
	})
	if err != nil {
		err = classify(err)
		s.logRejection("update", patientID, id, err)
		return nil, err
	}

	s.log.Info("appointment updated", "id", id, "patient_id", patientID, "status", updated.Status)
	return updated, nil
}

// DeleteAppointment permanently removes the patient's own appointment.
func (s *Service) DeleteAppointment(ctx context.Context, patientID, id uuid.UUID) error {
	err := s.runInTx(ctx, func(tx Repository) error {
		if _, err := s.validator.ValidateDelete(ctx, tx, patientID, id); err != nil {
			return err
		}
		if err := tx.DeleteAppointment(ctx, id, patientID); err != nil {
			return err
		}
		return s.logEvent(ctx, tx, id, EventAppointmentDeleted, map[string]any{
			"patient_id": patientID.String(),
		})
	})
	if err != nil {
		err = classify(err)
		s.logRejection("delete", patientID, id, err)
		return err
	}

	s.log.Info("appointment deleted", "id", id, "patient_id", patientID)
	return nil
}

// GetAppointment returns one of the patient's appointments with its doctor.
func (s *Service) GetAppointment(ctx context.Context, patientID, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id, patientID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return detail, nil
}

// ListAppointments returns the patient's appointments, latest first.
func (s *Service) ListAppointments(ctx context.Context, patientID uuid.UUID) ([]AppointmentDetail, error) {
	list, err := s.repo.ListAppointmentsByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return list, nil
}

func (s *Service) withSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if key == "" {
		return fn(ctx)
	}
	return s.locker.WithSlotLock(ctx, key, fn)
}

// runInTx retries fn when Postgres aborts the transaction for a concurrent
// conflict. Any other error ends the attempt.
func (s *Service) runInTx(ctx context.Context, fn func(tx Repository) error) error {
	attempt := func() (struct{}, error) {
		err := s.repo.RunInTx(ctx, fn)
		if err != nil && !db.IsSerializationFailure(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(&backoff.ExponentialBackOff{
			InitialInterval:     5 * time.Millisecond,
			RandomizationFactor: 0.5,
			Multiplier:          2,
			MaxInterval:         50 * time.Millisecond,
		}),
		backoff.WithMaxTries(maxTxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.log.Debug("retrying booking transaction", "error", err, "backoff", next)
		}),
	)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}

func (s *Service) logEvent(ctx context.Context, repo Repository, appointmentID uuid.UUID, eventType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal event payload", "event", eventType, "error", err)
		data = nil
	}

	apptID := appointmentID

	return repo.InsertEvent(ctx, EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	})
}

func (s *Service) logRejection(op string, patientID, id uuid.UUID, err error) {
	var verrs ValidationErrors
	switch {
	case errors.As(err, &verrs),
		errors.Is(err, ErrAppointmentNotFound),
		errors.Is(err, ErrClinicNotFound),
		errors.Is(err, ErrPractitionerNotInClinic),
		errors.Is(err, ErrInvalidStatusTransition),
		errors.Is(err, ErrSlotBeingBooked),
		errors.Is(err, ErrPatientNotFound),
		IsAvailabilityError(err):
		s.log.Warn("appointment request rejected", "op", op, "patient_id", patientID, "id", id, "reason", err.Error())
	default:
		s.log.Error("appointment request failed", "op", op, "patient_id", patientID, "id", id, "error", err)
	}
}

// classify maps exhausted lock waits, exhausted transaction retries and a
// vanished patient onto domain errors.
func classify(err error) error {
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired), db.IsSerializationFailure(err):
		return ErrSlotBeingBooked
	case db.IsForeignKeyViolation(err, patientForeignKey):
		return ErrPatientNotFound
	default:
		return err
	}
}

// slot parses what it can of the request; unparsable parts leave the key
// empty and the validator rejects the request anyway.
func (r CreateRequest) slot() Slot {
	date, err := ParseDate(r.Date)
	if err != nil {
		return Slot{}
	}
	tod, err := ParseTimeOfDay(r.Time)
	if err != nil {
		return Slot{}
	}
	return Slot{
		ClinicID:       parseOptionalUUID(r.ClinicID),
		PractitionerID: parseOptionalUUID(r.PractitionerID),
		Date:           date,
		Time:           tod,
	}
}

func uuidOrNil(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}
