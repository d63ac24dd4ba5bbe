package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/logger"
)

// AppointmentService is the booking surface the handlers need.
type AppointmentService interface {
	CreateAppointment(ctx context.Context, patientID uuid.UUID, req appointment.CreateRequest) (*appointment.Appointment, error)
	UpdateAppointment(ctx context.Context, patientID, id uuid.UUID, req appointment.UpdateRequest) (*appointment.Appointment, error)
	DeleteAppointment(ctx context.Context, patientID, id uuid.UUID) error
	GetAppointment(ctx context.Context, patientID, id uuid.UUID) (*appointment.AppointmentDetail, error)
	ListAppointments(ctx context.Context, patientID uuid.UUID) ([]appointment.AppointmentDetail, error)
}

type RouterConfig struct {
	Service   AppointmentService
	Checks    []Dependency
	JWTSecret string
	Log       *logger.Logger
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	h := &appointmentHandlers{svc: cfg.Service, log: log}
	r.Route("/appointments", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Patch("/{id}", h.update)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})

	return r
}
