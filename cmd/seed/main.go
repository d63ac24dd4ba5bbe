package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/logger"
)

const rolePatient = "patient"

var clinicNames = []string{
	"OPD",
	"Pediatrics",
	"Obstetrics & Gynecology",
	"Dental Clinic",
	"Cardiology",
	"Orthopedics",
	"Dermatology",
	"Ophthalmology",
}

var log = logger.New(logger.Config{Service: "seed", Format: logger.FormatText})

func main() {
	log.Info("seed starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load error", "error", err)
	}

	doctorsPerClinic := getInt("SEED_DOCTORS_PER_CLINIC", 3)
	patients := getInt("SEED_PATIENTS", 500)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4})
	if err != nil {
		log.Fatal("connect postgres", "error", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal("apply schema", "error", err)
	}

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	clinics, err := seedClinics(context.Background(), pool)
	if err != nil {
		log.Fatal("seed clinics", "error", err)
	}
	if err := seedDoctors(context.Background(), pool, faker, clinics, doctorsPerClinic); err != nil {
		log.Fatal("seed doctors", "error", err)
	}
	if err := seedPatients(context.Background(), pool, faker, patients); err != nil {
		log.Fatal("seed patients", "error", err)
	}

	log.Info("seed complete")
}

// departmentType turns a clinic name into its slug, e.g. "Dental Clinic" -> "dental_clinic".
func departmentType(name string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			underscore = false
		case !underscore && b.Len() > 0:
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

type clinicSeed struct {
	Name           string
	DepartmentType string
	// Location stays NULL; a real address is entered by clinic staff.
	Location *string
}

func clinicSeeds() []clinicSeed {
	seeds := make([]clinicSeed, 0, len(clinicNames))
	for _, name := range clinicNames {
		seeds = append(seeds, clinicSeed{Name: name, DepartmentType: departmentType(name)})
	}
	return seeds
}

func seedClinics(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	seeds := clinicSeeds()
	log.Info("seeding clinics", "count", len(seeds))

	ids := make([]uuid.UUID, 0, len(seeds))
	for _, c := range seeds {
		var id uuid.UUID
		err := pool.QueryRow(ctx, `
			INSERT INTO clinics (id, name, department_type, location, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
			ON CONFLICT (name) DO UPDATE SET department_type = EXCLUDED.department_type
			RETURNING id
		`, uuid.New(), c.Name, c.DepartmentType, c.Location).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("insert clinic %q: %w", c.Name, err)
		}
		ids = append(ids, id)
	}

	log.Info("clinics seeded")
	return ids, nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, clinics []uuid.UUID, perClinic int) error {
	log.Info("seeding doctors", "per_clinic", perClinic)

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, clinicID := range clinics {
			for i := 0; i < perClinic; i++ {
				id := uuid.New()
				if err := insertUser(ctx, tx, faker, id, &clinicID, appointment.RolePractitioner); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) error {
	log.Info("seeding patients", "count", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			for i := offset; i < end; i++ {
				if err := insertUser(ctx, tx, faker, uuid.New(), nil, rolePatient); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		log.Info("patients seeded", "done", end, "total", count)
	}

	return nil
}

func insertUser(ctx context.Context, tx pgx.Tx, faker *gofakeit.Faker, id uuid.UUID, clinicID *uuid.UUID, role string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO users (id, first_name, last_name, email, clinic_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
	`, id, faker.FirstName(), faker.LastName(), id.String()[:8]+"."+faker.Email(), clinicID)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
	`, id, role)
	if err != nil {
		return fmt.Errorf("insert user role: %w", err)
	}
	return nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
