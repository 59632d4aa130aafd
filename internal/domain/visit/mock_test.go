package visit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// mockAppointmentRepo keeps appointments in memory and honours versions the
// way the stores do.
type mockAppointmentRepo struct {
	mu      sync.Mutex
	store   map[uuid.UUID]*Appointment
	saveErr error
	saves   int
}

func newMockAppointmentRepo() *mockAppointmentRepo {
	return &mockAppointmentRepo{store: make(map[uuid.UUID]*Appointment)}
}

func copyAppointment(a *Appointment) *Appointment {
	cp := *a
	cp.Visits = a.cloneVisits()
	return &cp
}

func (m *mockAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	a.Version = 1
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt
	m.store[a.ID] = copyAppointment(a)
	return nil
}

func (m *mockAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAppointment(a), nil
}

func (m *mockAppointmentRepo) List(_ context.Context, filter ListFilter, limit, offset int) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Appointment
	for _, a := range m.store {
		if filter.DoctorID != "" && a.DoctorID != filter.DoctorID {
			continue
		}
		if filter.PatientID != "" && a.PatientID != filter.PatientID {
			continue
		}
		all = append(all, copyAppointment(a))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockAppointmentRepo) SaveVisits(_ context.Context, id uuid.UUID, expectedVersion int, visits []Visit) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	a, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Version != expectedVersion {
		return nil, ErrVersionConflict
	}
	a.Visits = (&Appointment{Visits: visits}).cloneVisits()
	a.Version++
	a.UpdatedAt = time.Now().UTC()
	return copyAppointment(a), nil
}

func (m *mockAppointmentRepo) DoctorVisits(_ context.Context, doctorID string) ([]Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Visit
	for _, a := range m.store {
		if a.DoctorID == doctorID {
			out = append(out, a.cloneVisits()...)
		}
	}
	return out, nil
}

func (m *mockAppointmentRepo) MaxInvoiceNumbers(_ context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64)
	for _, a := range m.store {
		for _, v := range a.Visits {
			if v.InvoiceNumber > out[a.DoctorID] {
				out[a.DoctorID] = v.InvoiceNumber
			}
		}
	}
	return out, nil
}

// bumpVersion simulates a concurrent writer.
func (m *mockAppointmentRepo) bumpVersion(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[id].Version++
}

// directTx runs fn without a transaction.
type directTx struct{ calls int }

func (d *directTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	d.calls++
	return fn(ctx)
}
