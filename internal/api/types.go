package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
)

type DoctorResponse struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
}

type AppointmentResponse struct {
	ID        uuid.UUID       `json:"id"`
	PatientID uuid.UUID       `json:"patient_id"`
	ClinicID  *uuid.UUID      `json:"clinic_id"`
	DoctorID  *uuid.UUID      `json:"doctor_id"`
	Date      string          `json:"appointment_date"`
	Time      string          `json:"appointment_time"`
	Type      string          `json:"type"`
	Status    string          `json:"status"`
	Reason    *string         `json:"reason"`
	Doctor    *DoctorResponse `json:"doctor,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type ListAppointmentsResponse struct {
	Data []AppointmentResponse `json:"data"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string              `json:"error"`
	Details string              `json:"details,omitempty"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		PatientID: a.PatientID,
		ClinicID:  a.ClinicID,
		DoctorID:  a.PractitionerID,
		Date:      a.Date.String(),
		Time:      a.Time.String(),
		Type:      string(a.Type),
		Status:    string(a.Status),
		Reason:    a.Reason,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toDetailResponse(d appointment.AppointmentDetail) AppointmentResponse {
	resp := toAppointmentResponse(d.Appointment)
	if d.Practitioner != nil {
		resp.Doctor = &DoctorResponse{
			ID:        d.Practitioner.ID,
			FirstName: d.Practitioner.FirstName,
			LastName:  d.Practitioner.LastName,
			Email:     d.Practitioner.Email,
		}
	}
	return resp
}
