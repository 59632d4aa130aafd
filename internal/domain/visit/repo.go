package visit

import (
	"context"

	"github.com/google/uuid"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	// GetByID returns ErrNotFound when the appointment does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Appointment, int, error)
	// SaveVisits replaces the visit list when the stored version still equals
	// expectedVersion, bumping the version. A stale version yields
	// ErrVersionConflict.
	SaveVisits(ctx context.Context, id uuid.UUID, expectedVersion int, visits []Visit) (*Appointment, error)
	// DoctorVisits returns every visit recorded under doctorID.
	DoctorVisits(ctx context.Context, doctorID string) ([]Visit, error)
	// MaxInvoiceNumbers returns the highest stored invoice number per doctor.
	MaxInvoiceNumbers(ctx context.Context) (map[string]int64, error)
}

// Transactor runs fn as one unit of work against the store.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
