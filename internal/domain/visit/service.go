package visit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic/internal/domain/billing"
	"github.com/clinicdesk/clinic/internal/domain/invoice"
	"github.com/clinicdesk/clinic/internal/platform/auth"
)

// Options tune the visit workflow.
type Options struct {
	Calculator billing.Calculator
	// CounterSharesTx is true when the invoice counter commits in the same
	// transaction as the appointment write. Otherwise a failed write leaves
	// a gap in the doctor's invoice numbers.
	CounterSharesTx bool
}

type Service struct {
	appts    AppointmentRepository
	tx       Transactor
	invoices *invoice.Service
	opts     Options
	now      func() time.Time
}

func NewService(appts AppointmentRepository, tx Transactor, invoices *invoice.Service, opts Options) *Service {
	return &Service{
		appts:    appts,
		tx:       tx,
		invoices: invoices,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// -- Appointments --

func (s *Service) CreateAppointment(ctx context.Context, a *Appointment) error {
	a.DoctorID = strings.TrimSpace(a.DoctorID)
	a.PatientID = strings.TrimSpace(a.PatientID)
	if a.DoctorID == "" {
		return fmt.Errorf("%w: doctor_id is required", ErrInvalidInput)
	}
	if a.PatientID == "" {
		return fmt.Errorf("%w: patient_id is required", ErrInvalidInput)
	}
	if !auth.CanAccessDoctor(ctx, a.DoctorID) {
		return ErrForbidden
	}
	a.Visits = []Visit{}
	return s.appts.Create(ctx, a)
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !auth.CanAccessDoctor(ctx, a.DoctorID) {
		return nil, ErrForbidden
	}
	return a, nil
}

// ListAppointments lists appointments newest first. Callers bound to a
// doctor only see that doctor's appointments.
func (s *Service) ListAppointments(ctx context.Context, filter ListFilter, limit, offset int) ([]*Appointment, int, error) {
	if bound := auth.DoctorIDFromContext(ctx); bound != "" && !auth.HasRole(ctx, auth.RoleAdmin) {
		if filter.DoctorID != "" && filter.DoctorID != bound {
			return nil, 0, ErrForbidden
		}
		filter.DoctorID = bound
	}
	return s.appts.List(ctx, filter, limit, offset)
}

// -- Visits --

// PreviewBill computes a bill without touching any state.
func (s *Service) PreviewBill(in VisitInput) (*billing.BillResult, error) {
	return s.opts.Calculator.Compute(in.Services, in.Discount, in.Collected)
}

// CreateVisit bills a new visit under the appointment. Input is validated
// before the invoice counter is touched, so rejected input never consumes a
// number.
func (s *Service) CreateVisit(ctx context.Context, appointmentID uuid.UUID, in VisitInput) (*Visit, error) {
	bill, err := s.opts.Calculator.Compute(in.Services, in.Discount, in.Collected)
	if err != nil {
		return nil, err
	}
	return s.appendVisit(ctx, appointmentID, func(now time.Time) Visit {
		v := Visit{
			ID:        uuid.New(),
			VisitDate: dateOr(in.VisitDate, now),
			Services:  in.Services.Clone(),
			Notes:     in.Notes,
			CreatedAt: now,
			UpdatedAt: now,
		}
		v.PaymentType, _ = billing.ParsePaymentType(in.PaymentType)
		v.applyBill(bill)
		return v
	})
}

// CreateAmountVisit records a visit from a single amount: one consultation
// line, no discount, fully collected.
func (s *Service) CreateAmountVisit(ctx context.Context, appointmentID uuid.UUID, in AmountVisitInput) (*Visit, error) {
	services, bill, err := s.opts.Calculator.ComputeAmountOnly(in.Amount)
	if err != nil {
		return nil, err
	}
	return s.appendVisit(ctx, appointmentID, func(now time.Time) Visit {
		v := Visit{
			ID:        uuid.New(),
			VisitDate: dateOr(in.VisitDate, now),
			Services:  services,
			Notes:     in.Notes,
			CreatedAt: now,
			UpdatedAt: now,
		}
		v.PaymentType, _ = billing.ParsePaymentType(in.PaymentType)
		v.applyBill(bill)
		return v
	})
}

func (s *Service) appendVisit(ctx context.Context, appointmentID uuid.UUID, build func(now time.Time) Visit) (*Visit, error) {
	appt, err := s.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	var (
		created Visit
		number  int64
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		n, err := s.invoices.NextInvoiceNumber(ctx, appt.DoctorID)
		if err != nil {
			return err
		}
		number = n

		v := build(s.now())
		v.InvoiceNumber = n

		visits := append(appt.cloneVisits(), v)
		if _, err := s.appts.SaveVisits(ctx, appt.ID, appt.Version, visits); err != nil {
			return err
		}
		created = v
		return nil
	})
	if err != nil {
		if number > 0 && !s.opts.CounterSharesTx {
			zerolog.Ctx(ctx).Warn().
				Str("doctor_id", appt.DoctorID).
				Int64("invoice_number", number).
				Str("appointment_id", appt.ID.String()).
				Err(err).
				Msg("invoice number burned by failed visit write")
		}
		return nil, err
	}
	return &created, nil
}

// EditVisit replaces the visit with one rebuilt from in. The invoice number
// and creation time carry over; a missing visit date keeps the stored one.
func (s *Service) EditVisit(ctx context.Context, appointmentID, visitID uuid.UUID, in VisitInput) (*Visit, error) {
	bill, err := s.opts.Calculator.Compute(in.Services, in.Discount, in.Collected)
	if err != nil {
		return nil, err
	}
	return s.replaceVisit(ctx, appointmentID, visitID, func(old Visit, now time.Time) (Visit, error) {
		v := Visit{
			ID:            old.ID,
			InvoiceNumber: old.InvoiceNumber,
			VisitDate:     dateOr(in.VisitDate, old.VisitDate),
			Services:      in.Services.Clone(),
			PaymentType:   old.PaymentType,
			Notes:         in.Notes,
			CreatedAt:     old.CreatedAt,
			UpdatedAt:     now,
		}
		if pt, ok := billing.ParsePaymentType(in.PaymentType); ok {
			v.PaymentType = pt
		}
		v.applyBill(bill)
		return v, nil
	})
}

// UpdateVisitPayment changes the collected amount, payment type or notes and
// recomputes the bill from the stored services and original discount input.
func (s *Service) UpdateVisitPayment(ctx context.Context, appointmentID, visitID uuid.UUID, in PaymentInput) (*Visit, error) {
	return s.replaceVisit(ctx, appointmentID, visitID, func(old Visit, now time.Time) (Visit, error) {
		collected := billing.AmountFromInt(old.CollectedAmount)
		if in.Collected != nil {
			collected = *in.Collected
		}
		bill, err := s.opts.Calculator.Compute(old.Services, old.Discount, collected)
		if err != nil {
			return Visit{}, err
		}

		v := old.clone()
		v.UpdatedAt = now
		if in.PaymentType != nil {
			if pt, ok := billing.ParsePaymentType(*in.PaymentType); ok {
				v.PaymentType = pt
			}
		}
		if in.Notes != nil {
			v.Notes = *in.Notes
		}
		v.applyBill(bill)
		return v, nil
	})
}

func (s *Service) replaceVisit(ctx context.Context, appointmentID, visitID uuid.UUID, rebuild func(old Visit, now time.Time) (Visit, error)) (*Visit, error) {
	appt, err := s.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	i := appt.visitIndex(visitID)
	if i < 0 {
		return nil, ErrNotFound
	}

	v, err := rebuild(appt.Visits[i].clone(), s.now())
	if err != nil {
		return nil, err
	}

	visits := appt.cloneVisits()
	visits[i] = v
	if _, err := s.appts.SaveVisits(ctx, appt.ID, appt.Version, visits); err != nil {
		return nil, err
	}
	return &v, nil
}

// DeleteVisit removes the visit. Its invoice number is not reused.
func (s *Service) DeleteVisit(ctx context.Context, appointmentID, visitID uuid.UUID) error {
	appt, err := s.GetAppointment(ctx, appointmentID)
	if err != nil {
		return err
	}
	i := appt.visitIndex(visitID)
	if i < 0 {
		return ErrNotFound
	}

	visits := appt.cloneVisits()
	visits = append(visits[:i], visits[i+1:]...)
	_, err = s.appts.SaveVisits(ctx, appt.ID, appt.Version, visits)
	return err
}

func (s *Service) GetVisit(ctx context.Context, appointmentID, visitID uuid.UUID) (*Visit, error) {
	appt, err := s.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	i := appt.visitIndex(visitID)
	if i < 0 {
		return nil, ErrNotFound
	}
	v := appt.Visits[i].clone()
	return &v, nil
}

func (s *Service) ListVisits(ctx context.Context, appointmentID uuid.UUID) ([]Visit, error) {
	appt, err := s.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	return appt.cloneVisits(), nil
}

// DoctorVisits returns every visit recorded for doctorID.
func (s *Service) DoctorVisits(ctx context.Context, doctorID string) ([]Visit, error) {
	if !auth.CanAccessDoctor(ctx, doctorID) {
		return nil, ErrForbidden
	}
	return s.appts.DoctorVisits(ctx, doctorID)
}

// ReconcileCounters raises every doctor's invoice counter to at least the
// highest invoice number already stored, so a counter lost or restored from
// an older backup cannot hand out a used number. It returns how many
// counters were raised.
func (s *Service) ReconcileCounters(ctx context.Context) (int, error) {
	maxima, err := s.appts.MaxInvoiceNumbers(ctx)
	if err != nil {
		return 0, fmt.Errorf("read invoice maxima: %w", err)
	}

	log := zerolog.Ctx(ctx)
	raised := 0
	var errs []error
	for doctorID, highest := range maxima {
		before, err := s.invoices.Current(ctx, doctorID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if before >= highest {
			continue
		}
		after, err := s.invoices.EnsureAtLeast(ctx, doctorID, highest)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		raised++
		log.Info().
			Str("doctor_id", doctorID).
			Int64("from", before).
			Int64("to", after).
			Msg("invoice counter raised")
	}
	return raised, errors.Join(errs...)
}

func dateOr(t *time.Time, fallback time.Time) time.Time {
	if t == nil || t.IsZero() {
		return fallback
	}
	return t.UTC()
}
