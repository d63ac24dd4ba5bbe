package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type AppointmentType string

const (
	TypeInPerson     AppointmentType = "in_person"
	TypeTelemedicine AppointmentType = "telemedicine"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCancelled AppointmentStatus = "cancelled"
)

const RolePractitioner = "doctor"

type Clinic struct {
	ID             uuid.UUID
	Name           string
	DepartmentType string
	Location       *string
}

// User is any account the booking core can reference. Only users with the
// doctor role and a clinic affiliation can be scheduled.
type User struct {
	ID             uuid.UUID
	FirstName      string
	LastName       string
	Email          string
	ClinicID       *uuid.UUID
	IsPractitioner bool
}

func (u User) Name() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

type Appointment struct {
	ID             uuid.UUID
	PatientID      uuid.UUID
	PractitionerID *uuid.UUID
	ClinicID       *uuid.UUID
	Date           Date
	Time           TimeOfDay
	Type           AppointmentType
	Status         AppointmentStatus
	Reason         *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PractitionerSummary is the public projection of a doctor shown to patients.
type PractitionerSummary struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	Email     string
}

type AppointmentDetail struct {
	Appointment
	Practitioner *PractitionerSummary
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Date is a calendar day without a time component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp, keeping only the
// calendar day as written.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return DateOf(t), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateOf(t), nil
	}
	return Date{}, fmt.Errorf("invalid date %q", s)
}

func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// TimeOfDay is a wall-clock time with second precision and no zone.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid time %q", s)
}

func TimeOfDayFromMicroseconds(us int64) TimeOfDay {
	secs := us / 1_000_000
	return TimeOfDay{
		Hour:   int(secs / 3600),
		Minute: int(secs % 3600 / 60),
		Second: int(secs % 60),
	}
}

func (t TimeOfDay) Microseconds() int64 {
	return (int64(t.Hour)*3600 + int64(t.Minute)*60 + int64(t.Second)) * 1_000_000
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// Slot is the tuple booking conflicts are keyed on.
type Slot struct {
	ClinicID       *uuid.UUID
	PractitionerID *uuid.UUID
	Date           Date
	Time           TimeOfDay
}

// Key identifies the slot for locking. Clinic-scoped keys cover both the
// doctor-specific and the clinic-wide path, since a doctor booked through a
// clinic must belong to it. Empty when nothing can conflict.
func (s Slot) Key() string {
	switch {
	case s.ClinicID != nil:
		return fmt.Sprintf("clinic:%s:%s:%s", s.ClinicID, s.Date, s.Time)
	case s.PractitionerID != nil:
		return fmt.Sprintf("doctor:%s:%s:%s", s.PractitionerID, s.Date, s.Time)
	default:
		return ""
	}
}

// SlotQuery parameterizes the availability counts.
type SlotQuery struct {
	Date             Date
	Time             TimeOfDay
	ExcludeID        *uuid.UUID
	IncludeCancelled bool
}
