package appointment

import (
	"context"

	"github.com/google/uuid"
)

// Reader holds the point and count queries the Validator consults.
type Reader interface {
	GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)

	// Capacity accounting. Only users with the doctor role are counted.
	CountPractitionersByClinic(ctx context.Context, clinicID uuid.UUID) (int, error)

	// Slot conflict checks
	PractitionerSlotTaken(ctx context.Context, practitionerID uuid.UUID, q SlotQuery) (bool, error)
	CountClinicAppointments(ctx context.Context, clinicID uuid.UUID, q SlotQuery) (int, error)

	// Owner-scoped lookup; a foreign or missing id both yield ErrAppointmentNotFound.
	GetAppointmentForPatient(ctx context.Context, id, patientID uuid.UUID) (*Appointment, error)
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	Reader

	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	UpdateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id, patientID uuid.UUID) error

	GetAppointmentDetail(ctx context.Context, id, patientID uuid.UUID) (*AppointmentDetail, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]AppointmentDetail, error)

	InsertEvent(ctx context.Context, ev EventLog) error

	// RunInTx runs fn against a repository bound to one serializable
	// transaction. Returning an error rolls everything back.
	RunInTx(ctx context.Context, fn func(repo Repository) error) error
}
