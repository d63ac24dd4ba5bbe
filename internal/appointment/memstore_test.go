package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory Repository. RunInTx serializes transactions and
// rolls back appointment and event changes when fn fails.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	clinics map[uuid.UUID]Clinic
	users   map[uuid.UUID]User
	appts   map[uuid.UUID]Appointment
	events  []EventLog
	calls   []string

	// insertErrs fail the next inserts in order; insertErr fails every
	// insert after them.
	insertErrs []error
	insertErr  error
	inserts    int
}

func newMemStore() *memStore {
	return &memStore{
		clinics: map[uuid.UUID]Clinic{},
		users:   map[uuid.UUID]User{},
		appts:   map[uuid.UUID]Appointment{},
	}
}

func (m *memStore) addClinic(name string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.clinics[id] = Clinic{ID: id, Name: name, DepartmentType: name}
	return id
}

func (m *memStore) addDoctor(clinicID uuid.UUID) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	cid := clinicID
	m.users[id] = User{ID: id, FirstName: "Doc", LastName: id.String()[:4], Email: id.String() + "@clinic.test", ClinicID: &cid, IsPractitioner: true}
	return id
}

// addStaff adds a user affiliated with the clinic but without the doctor role.
func (m *memStore) addStaff(clinicID uuid.UUID) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	cid := clinicID
	m.users[id] = User{ID: id, FirstName: "Desk", Email: id.String() + "@clinic.test", ClinicID: &cid}
	return id
}

func (m *memStore) addPatient() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.users[id] = User{ID: id, FirstName: "Pat", Email: id.String() + "@mail.test"}
	return id
}

func (m *memStore) seedAppointment(a Appointment) Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Type == "" {
		a.Type = TypeInPerson
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	m.appts[a.ID] = a
	return a
}

func (m *memStore) get(id uuid.UUID) (Appointment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	return a, ok
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.appts)
}

func (m *memStore) recorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *memStore) record(call string) {
	m.calls = append(m.calls, call)
}

func (m *memStore) GetClinicByID(_ context.Context, id uuid.UUID) (*Clinic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetClinicByID")
	c, ok := m.clinics[id]
	if !ok {
		return nil, ErrClinicNotFound
	}
	return &c, nil
}

func (m *memStore) GetUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetUserByID")
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (m *memStore) CountPractitionersByClinic(_ context.Context, clinicID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CountPractitionersByClinic")
	n := 0
	for _, u := range m.users {
		if u.IsPractitioner && u.ClinicID != nil && *u.ClinicID == clinicID {
			n++
		}
	}
	return n, nil
}

func matchesSlot(a Appointment, q SlotQuery) bool {
	if a.Date != q.Date || a.Time != q.Time {
		return false
	}
	if q.ExcludeID != nil && a.ID == *q.ExcludeID {
		return false
	}
	return q.IncludeCancelled || a.Status != StatusCancelled
}

func (m *memStore) PractitionerSlotTaken(_ context.Context, practitionerID uuid.UUID, q SlotQuery) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("PractitionerSlotTaken")
	for _, a := range m.appts {
		if a.PractitionerID != nil && *a.PractitionerID == practitionerID && matchesSlot(a, q) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CountClinicAppointments(_ context.Context, clinicID uuid.UUID, q SlotQuery) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CountClinicAppointments")
	n := 0
	for _, a := range m.appts {
		if a.ClinicID != nil && *a.ClinicID == clinicID && matchesSlot(a, q) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) GetAppointmentForPatient(_ context.Context, id, patientID uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetAppointmentForPatient")
	a, ok := m.appts[id]
	if !ok || a.PatientID != patientID {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *memStore) CreateAppointment(_ context.Context, a *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if len(m.insertErrs) > 0 {
		err := m.insertErrs[0]
		m.insertErrs = m.insertErrs[1:]
		return nil, err
	}
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	created := *a
	created.ID = uuid.New()
	created.CreatedAt = time.Now()
	created.UpdatedAt = created.CreatedAt
	m.appts[created.ID] = created
	return &created, nil
}

func (m *memStore) UpdateAppointment(_ context.Context, a *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.appts[a.ID]
	if !ok || cur.PatientID != a.PatientID {
		return nil, ErrAppointmentNotFound
	}
	updated := *a
	updated.UpdatedAt = time.Now()
	m.appts[a.ID] = updated
	return &updated, nil
}

func (m *memStore) DeleteAppointment(_ context.Context, id, patientID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.PatientID != patientID {
		return ErrAppointmentNotFound
	}
	delete(m.appts, id)
	return nil
}

func (m *memStore) detail(a Appointment) AppointmentDetail {
	d := AppointmentDetail{Appointment: a}
	if a.PractitionerID != nil {
		if u, ok := m.users[*a.PractitionerID]; ok {
			d.Practitioner = &PractitionerSummary{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email}
		}
	}
	return d
}

func (m *memStore) GetAppointmentDetail(_ context.Context, id, patientID uuid.UUID) (*AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.PatientID != patientID {
		return nil, ErrAppointmentNotFound
	}
	d := m.detail(a)
	return &d, nil
}

func (m *memStore) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID) ([]AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []AppointmentDetail{}
	for _, a := range m.appts {
		if a.PatientID == patientID {
			out = append(out, m.detail(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Date != b.Date {
			return a.Date.Time().After(b.Date.Time())
		}
		return a.Time.Microseconds() > b.Time.Microseconds()
	})
	return out, nil
}

func (m *memStore) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memStore) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.EventType)
	}
	return out
}

func (m *memStore) RunInTx(ctx context.Context, fn func(repo Repository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := make(map[uuid.UUID]Appointment, len(m.appts))
	for k, v := range m.appts {
		snapshot[k] = v
	}
	events := len(m.events)
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.appts = snapshot
		m.events = m.events[:events]
		m.mu.Unlock()
		return err
	}
	return nil
}

// keyedLocker serializes callers per key and records the keys it saw.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	keys  []string
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{locks: map[string]*sync.Mutex{}}
}

func (l *keyedLocker) WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &sync.Mutex{}
		l.locks[key] = lk
	}
	l.keys = append(l.keys, key)
	l.mu.Unlock()

	lk.Lock()
	defer lk.Unlock()
	return fn(ctx)
}

func (l *keyedLocker) seen() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.keys...)
}

type busyLocker struct{ err error }

func (l busyLocker) WithSlotLock(context.Context, string, func(context.Context) error) error {
	return l.err
}
