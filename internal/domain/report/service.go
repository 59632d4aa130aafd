package report

import (
	"context"
	"time"

	"github.com/clinicdesk/clinic/internal/domain/visit"
)

// VisitSource yields every visit billed by a doctor.
type VisitSource interface {
	DoctorVisits(ctx context.Context, doctorID string) ([]visit.Visit, error)
}

type Service struct {
	visits VisitSource
}

func NewService(visits VisitSource) *Service {
	return &Service{visits: visits}
}

// DoctorSummary summarizes doctorID's visits dated in [from, to).
func (s *Service) DoctorSummary(ctx context.Context, doctorID string, from, to time.Time) (*Summary, error) {
	visits, err := s.visits.DoctorVisits(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	sum := Summarize(visits, from, to)
	sum.DoctorID = doctorID
	return sum, nil
}
