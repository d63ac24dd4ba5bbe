package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-appointment-booking/internal/auth"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/logger"
)

// SimConfig drives a burst workload: every round picks one clinic slot and
// fires Contenders concurrent bookings at it.
type SimConfig struct {
	APIBaseURL   string
	Rounds       int
	Contenders   int
	DoctorRatio  float64
	PatientLimit int
	TokenTTL     time.Duration
	JWTSecret    string
	PostgresDSN  string
}

type clinicInfo struct {
	ID      uuid.UUID
	Doctors []uuid.UUID
}

type DataPool struct {
	Patients []uuid.UUID
	Clinics  []clinicInfo
	tokens   map[uuid.UUID]string
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Rejected  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status == http.StatusCreated:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case status == http.StatusUnprocessableEntity:
		atomic.AddInt64(&om.Rejected, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics OperationMetrics
}

var log = logger.New(logger.Config{Service: "simulate", Format: logger.FormatText})

func main() {
	log.Info("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatal("invalid config", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		log.Fatal("connect postgres", "error", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatal("load data pool", "error", err)
	}
	log.Info("data loaded", "patients", len(dataPool.Patients), "clinics", len(dataPool.Clinics))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	sim.Run(context.Background())
	sim.PrintReport()

	overbooked, err := findOverbookedSlots(context.Background(), pgPool)
	if err != nil {
		log.Fatal("verify bookings", "error", err)
	}
	if len(overbooked) > 0 {
		for _, s := range overbooked {
			log.Error("overbooked slot", "slot", s)
		}
		log.Fatal("double booking detected", "slots", len(overbooked))
	}
	log.Info("no slot exceeds its doctor capacity")
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load base config", "error", err)
	}

	return SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Rounds:       getInt("SIM_ROUNDS", 20),
		Contenders:   getInt("SIM_CONTENDERS", 10),
		DoctorRatio:  getFloat("SIM_DOCTOR_RATIO", 0.5),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 200),
		TokenTTL:     time.Hour,
		JWTSecret:    baseCfg.JWTSecret,
		PostgresDSN:  baseCfg.PostgresDSN,
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Rounds <= 0 || cfg.Contenders <= 0 {
		return fmt.Errorf("SIM_ROUNDS and SIM_CONTENDERS must be > 0")
	}
	if cfg.DoctorRatio < 0 || cfg.DoctorRatio > 1 {
		return fmt.Errorf("SIM_DOCTOR_RATIO must be within [0, 1]")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{tokens: map[uuid.UUID]string{}}

	rows, err := pool.Query(ctx, `
		SELECT u.id
		FROM users u
		JOIN user_roles r ON r.user_id = u.id AND r.role = 'patient'
		LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = pool.Query(ctx, `
		SELECT c.id, p.id
		FROM clinics c
		JOIN practitioners p ON p.clinic_id = c.id
		ORDER BY c.id
	`)
	if err != nil {
		return nil, fmt.Errorf("load clinics: %w", err)
	}
	defer rows.Close()

	byClinic := map[uuid.UUID]int{}
	for rows.Next() {
		var clinicID, doctorID uuid.UUID
		if err := rows.Scan(&clinicID, &doctorID); err != nil {
			return nil, err
		}
		idx, ok := byClinic[clinicID]
		if !ok {
			idx = len(dataPool.Clinics)
			byClinic[clinicID] = idx
			dataPool.Clinics = append(dataPool.Clinics, clinicInfo{ID: clinicID})
		}
		dataPool.Clinics[idx].Doctors = append(dataPool.Clinics[idx].Doctors, doctorID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run the seeder first")
	}
	if len(dataPool.Clinics) == 0 {
		return nil, fmt.Errorf("no clinics with doctors loaded")
	}

	for _, id := range dataPool.Patients {
		token, err := auth.SignPatientToken(cfg.JWTSecret, id, cfg.TokenTTL)
		if err != nil {
			return nil, fmt.Errorf("sign token: %w", err)
		}
		dataPool.tokens[id] = token
	}

	return dataPool, nil
}

func (s *Simulator) Run(ctx context.Context) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	base := time.Now().AddDate(0, 0, 30)

	log.Info("starting simulation", "rounds", s.config.Rounds, "contenders", s.config.Contenders)

	for round := 0; round < s.config.Rounds; round++ {
		clinic := s.pool.Clinics[rng.Intn(len(s.pool.Clinics))]
		day := base.AddDate(0, 0, rng.Intn(60))
		slot := fmt.Sprintf("%02d:%02d", 8+rng.Intn(9), 15*rng.Intn(4))

		var wg sync.WaitGroup
		for i := 0; i < s.config.Contenders; i++ {
			body := map[string]string{
				"clinic_id":        clinic.ID.String(),
				"appointment_date": day.Format("2006-01-02"),
				"appointment_time": slot,
				"type":             "in_person",
			}
			if rng.Float64() < s.config.DoctorRatio {
				body["doctor_id"] = clinic.Doctors[rng.Intn(len(clinic.Doctors))].String()
			}
			patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

			wg.Add(1)
			go func() {
				defer wg.Done()
				s.doBooking(ctx, patient, body)
			}()
		}
		wg.Wait()
	}

	log.Info("simulation complete")
}

func (s *Simulator) doBooking(ctx context.Context, patientID uuid.UUID, body map[string]string) {
	payload, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/appointments", bytes.NewReader(payload))
	if err != nil {
		s.metrics.Record(0, 0)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.pool.tokens[patientID])

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	status := 0
	if err == nil {
		status = resp.StatusCode
		resp.Body.Close()
	}
	s.metrics.Record(latency, status)
}

// findOverbookedSlots lists clinic slots holding more scheduled appointments
// than the clinic has doctors, and doctors booked twice for one slot.
func findOverbookedSlots(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	rows, err := pool.Query(ctx, `
		SELECT 'clinic ' || a.clinic_id || ' ' || a.appointment_date || ' ' || a.appointment_time
		FROM appointments a
		WHERE a.clinic_id IS NOT NULL
		GROUP BY a.clinic_id, a.appointment_date, a.appointment_time
		HAVING count(*) > (SELECT count(*) FROM practitioners p WHERE p.clinic_id = a.clinic_id)
		UNION ALL
		SELECT 'doctor ' || a.doctor_id || ' ' || a.appointment_date || ' ' || a.appointment_time
		FROM appointments a
		WHERE a.doctor_id IS NOT NULL
		GROUP BY a.doctor_id, a.appointment_date, a.appointment_time
		HAVING count(*) > 1
	`)
	if err != nil {
		return nil, fmt.Errorf("query overbooked slots: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (s *Simulator) PrintReport() {
	om := &s.metrics

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Rounds: %d\n", s.config.Rounds)
	fmt.Printf("Contenders per slot: %d\n", s.config.Contenders)
	fmt.Println()

	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }
	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	rejected := atomic.LoadInt64(&om.Rejected)
	errCount := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Println("Booking:")
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Booked: %d (%.1f%%)\n", success, pct(success))
	fmt.Printf("  Unavailable / busy: %d (%.1f%%)\n", conflict, pct(conflict))
	if rejected > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", rejected, pct(rejected))
	}
	if errCount > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errCount, pct(errCount))
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
