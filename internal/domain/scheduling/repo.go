package scheduling

import (
	"context"

	"github.com/google/uuid"
)

// AppointmentRepository stores appointments. Implementations enforce the
// slot invariant themselves: Create and Update fail with ErrSlotTaken when
// the result would leave two active appointments on the same
// (doctor, date, time), regardless of what the caller checked beforehand.
type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// Update writes a only if the stored status still equals expectStatus,
	// otherwise it returns ErrConcurrentUpdate.
	Update(ctx context.Context, a *Appointment, expectStatus string) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error)
	// SlotHeld reports whether an active appointment other than exclude holds
	// the slot. Pass uuid.Nil to exclude nothing.
	SlotHeld(ctx context.Context, doctorID uuid.UUID, date Date, clock string, exclude uuid.UUID) (bool, error)
	// BookedTimes lists the times held by active appointments of the doctor
	// on date.
	BookedTimes(ctx context.Context, doctorID uuid.UUID, date Date) ([]string, error)
}
