// Package invoice hands out per-doctor invoice numbers.
package invoice

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCounterUnavailable wraps every failure of the underlying counter store.
	ErrCounterUnavailable = errors.New("invoice counter unavailable")
	ErrInvalidDoctor      = errors.New("doctor id is required")
)

// Counter is a per-doctor sequence store. Next must be a single atomic
// increment-and-fetch in the store, never a read followed by a write.
type Counter interface {
	// Next increments the doctor's counter and returns the new value,
	// creating the counter at 1 on first use.
	Next(ctx context.Context, doctorID string) (int64, error)
	// Current returns the last value handed out, 0 if none.
	Current(ctx context.Context, doctorID string) (int64, error)
	// EnsureAtLeast raises the counter to n when it is lower and returns
	// the resulting value. It never lowers the counter.
	EnsureAtLeast(ctx context.Context, doctorID string, n int64) (int64, error)
}

// Service is the entry point used by the visit workflow.
type Service struct {
	counter Counter
}

func NewService(counter Counter) *Service {
	return &Service{counter: counter}
}

// NextInvoiceNumber returns the next invoice number for doctorID. Numbers are
// strictly increasing per doctor and never reused.
func (s *Service) NextInvoiceNumber(ctx context.Context, doctorID string) (int64, error) {
	if err := validateDoctor(doctorID); err != nil {
		return 0, err
	}
	n, err := s.counter.Next(ctx, doctorID)
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// Current returns the last invoice number handed out for doctorID.
func (s *Service) Current(ctx context.Context, doctorID string) (int64, error) {
	if err := validateDoctor(doctorID); err != nil {
		return 0, err
	}
	n, err := s.counter.Current(ctx, doctorID)
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// EnsureAtLeast moves the counter for doctorID up to n if it is behind.
func (s *Service) EnsureAtLeast(ctx context.Context, doctorID string, n int64) (int64, error) {
	if err := validateDoctor(doctorID); err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("invoice number must not be negative: %d", n)
	}
	v, err := s.counter.EnsureAtLeast(ctx, doctorID, n)
	if err != nil {
		return 0, unavailable(err)
	}
	return v, nil
}

func validateDoctor(doctorID string) error {
	if strings.TrimSpace(doctorID) == "" {
		return ErrInvalidDoctor
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrCounterUnavailable, err)
}
