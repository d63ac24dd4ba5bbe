package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db   querier
	pool *pgxpool.Pool // nil once bound to a transaction
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: pool, pool: pool}
}

const appointmentColumns = `a.id, a.patient_id, a.doctor_id, a.clinic_id, a.appointment_date, a.appointment_time,
	a.type, a.status, a.reason, a.created_at, a.updated_at`

// Helpers

func scanClinic(row pgx.Row) (*Clinic, error) {
	var c Clinic
	err := row.Scan(&c.ID, &c.Name, &c.DepartmentType, &c.Location)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicNotFound
		}
		return nil, err
	}
	return &c, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.ClinicID, &u.IsPractitioner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// scanAppointment reads appointmentColumns plus any extra destinations.
func scanAppointment(row pgx.Row, extra ...any) (*Appointment, error) {
	var a Appointment
	var date pgtype.Date
	var tod pgtype.Time

	dest := append([]any{
		&a.ID,
		&a.PatientID,
		&a.PractitionerID,
		&a.ClinicID,
		&date,
		&tod,
		&a.Type,
		&a.Status,
		&a.Reason,
		&a.CreatedAt,
		&a.UpdatedAt,
	}, extra...)

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = DateOf(date.Time)
	a.Time = TimeOfDayFromMicroseconds(tod.Microseconds)
	return &a, nil
}

func scanAppointmentDetail(row pgx.Row) (*AppointmentDetail, error) {
	var (
		docID                      *uuid.UUID
		docFirst, docLast, docMail *string
	)
	a, err := scanAppointment(row, &docID, &docFirst, &docLast, &docMail)
	if err != nil {
		return nil, err
	}

	detail := &AppointmentDetail{Appointment: *a}
	if docID != nil {
		detail.Practitioner = &PractitionerSummary{
			ID:        *docID,
			FirstName: strOrEmpty(docFirst),
			LastName:  strOrEmpty(docLast),
			Email:     strOrEmpty(docMail),
		}
	}
	return detail, nil
}

func pgDate(d Date) pgtype.Date {
	return pgtype.Date{Time: d.Time(), Valid: true}
}

func pgTime(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: t.Microseconds(), Valid: true}
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Interface methods

func (r *PgRepository) GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, department_type, location
		FROM clinics
		WHERE id = $1
	`, id)
	return scanClinic(row)
}

func (r *PgRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT u.id, u.first_name, u.last_name, u.email, u.clinic_id,
		       EXISTS (SELECT 1 FROM practitioners p WHERE p.id = u.id)
		FROM users u
		WHERE u.id = $1
	`, id)
	return scanUser(row)
}

func (r *PgRepository) CountPractitionersByClinic(ctx context.Context, clinicID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT count(*)
		FROM practitioners
		WHERE clinic_id = $1
	`, clinicID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count practitioners: %w", err)
	}
	return n, nil
}

func (r *PgRepository) PractitionerSlotTaken(ctx context.Context, practitionerID uuid.UUID, q SlotQuery) (bool, error) {
	var taken bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM appointments
			WHERE doctor_id = $1
			  AND appointment_date = $2
			  AND appointment_time = $3
			  AND ($4::uuid IS NULL OR id <> $4)
			  AND ($5 OR status <> 'cancelled')
		)
	`, practitionerID, pgDate(q.Date), pgTime(q.Time), q.ExcludeID, q.IncludeCancelled).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check practitioner slot: %w", err)
	}
	return taken, nil
}

func (r *PgRepository) CountClinicAppointments(ctx context.Context, clinicID uuid.UUID, q SlotQuery) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE clinic_id = $1
		  AND appointment_date = $2
		  AND appointment_time = $3
		  AND ($4::uuid IS NULL OR id <> $4)
		  AND ($5 OR status <> 'cancelled')
	`, clinicID, pgDate(q.Date), pgTime(q.Time), q.ExcludeID, q.IncludeCancelled).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count clinic appointments: %w", err)
	}
	return n, nil
}

func (r *PgRepository) GetAppointmentForPatient(ctx context.Context, id, patientID uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.id = $1 AND a.patient_id = $2
	`, id, patientID)
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments AS a (id, patient_id, doctor_id, clinic_id, appointment_date, appointment_time,
		                               type, status, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+appointmentColumns,
		id, a.PatientID, a.PractitionerID, a.ClinicID, pgDate(a.Date), pgTime(a.Time),
		a.Type, a.Status, a.Reason)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments AS a
		SET doctor_id = $3,
		    clinic_id = $4,
		    appointment_date = $5,
		    appointment_time = $6,
		    type = $7,
		    status = $8,
		    reason = $9,
		    updated_at = now()
		WHERE a.id = $1
		  AND a.patient_id = $2
		RETURNING `+appointmentColumns,
		a.ID, a.PatientID, a.PractitionerID, a.ClinicID, pgDate(a.Date), pgTime(a.Time),
		a.Type, a.Status, a.Reason)

	return scanAppointment(row)
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id, patientID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM appointments
		WHERE id = $1 AND patient_id = $2
	`, id, patientID)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id, patientID uuid.UUID) (*AppointmentDetail, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`, d.id, d.first_name, d.last_name, d.email
		FROM appointments a
		LEFT JOIN users d ON d.id = a.doctor_id
		WHERE a.id = $1 AND a.patient_id = $2
	`, id, patientID)
	return scanAppointmentDetail(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]AppointmentDetail, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`, d.id, d.first_name, d.last_name, d.email
		FROM appointments a
		LEFT JOIN users d ON d.id = a.doctor_id
		WHERE a.patient_id = $1
		ORDER BY a.appointment_date DESC, a.appointment_time DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []AppointmentDetail{}
	for rows.Next() {
		d, err := scanAppointmentDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func (r *PgRepository) RunInTx(ctx context.Context, fn func(repo Repository) error) error {
	if r.pool == nil {
		return fn(r)
	}
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		return fn(&PgRepository{db: tx})
	})
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
