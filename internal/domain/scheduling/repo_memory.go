package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type slotKey struct {
	doctor uuid.UUID
	date   Date
	clock  string
}

// MemoryAppointmentRepo is the demo-mode store. A slot index of active
// appointments is maintained under the same lock as the rows, which makes
// Create an insert-if-absent.
type MemoryAppointmentRepo struct {
	mu     sync.RWMutex
	rows   map[uuid.UUID]*Appointment
	active map[slotKey]uuid.UUID
	now    func() time.Time
}

func NewMemoryAppointmentRepo() *MemoryAppointmentRepo {
	return &MemoryAppointmentRepo{
		rows:   make(map[uuid.UUID]*Appointment),
		active: make(map[slotKey]uuid.UUID),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func keyOf(a *Appointment) slotKey {
	return slotKey{doctor: a.DoctorID, date: a.Date, clock: a.Time}
}

func (r *MemoryAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if IsActive(a.Status) {
		if _, held := r.active[keyOf(a)]; held {
			return ErrSlotTaken
		}
	}

	a.ID = uuid.New()
	now := r.now()
	a.CreatedAt, a.UpdatedAt = now, now

	cp := *a
	r.rows[a.ID] = &cp
	if IsActive(a.Status) {
		r.active[keyOf(a)] = a.ID
	}
	return nil
}

func (r *MemoryAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryAppointmentRepo) Update(_ context.Context, a *Appointment, expectStatus string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.rows[a.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != expectStatus {
		return ErrConcurrentUpdate
	}

	newKey := keyOf(a)
	if IsActive(a.Status) {
		if holder, held := r.active[newKey]; held && holder != a.ID {
			return ErrSlotTaken
		}
	}

	if IsActive(cur.Status) {
		delete(r.active, keyOf(cur))
	}
	if IsActive(a.Status) {
		r.active[newKey] = a.ID
	}

	a.CreatedAt = cur.CreatedAt
	a.CreatedBy = cur.CreatedBy
	a.UpdatedAt = r.now()
	cp := *a
	r.rows[a.ID] = &cp
	return nil
}

func (r *MemoryAppointmentRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	r.mu.RLock()
	var all []*Appointment
	for _, a := range r.rows {
		if f.PatientID != uuid.Nil && a.PatientID != f.PatientID {
			continue
		}
		if f.DoctorID != uuid.Nil && a.DoctorID != f.DoctorID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if !f.Date.IsZero() && a.Date != f.Date {
			continue
		}
		cp := *a
		all = append(all, &cp)
	}
	r.mu.RUnlock()

	sortAppointments(all)

	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// sortAppointments orders by date, then time, then id: the same order the
// Postgres store returns.
func sortAppointments(items []*Appointment) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.ID.String() < b.ID.String()
	})
}

func (r *MemoryAppointmentRepo) SlotHeld(_ context.Context, doctorID uuid.UUID, date Date, clock string, exclude uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	holder, held := r.active[slotKey{doctor: doctorID, date: date, clock: clock}]
	return held && holder != exclude, nil
}

func (r *MemoryAppointmentRepo) BookedTimes(_ context.Context, doctorID uuid.UUID, date Date) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for k := range r.active {
		if k.doctor == doctorID && k.date == date {
			out = append(out, k.clock)
		}
	}
	sort.Strings(out)
	return out, nil
}
