package health

import (
	"context"
	"fmt"
	"time"

	"github.com/leozw/portfolio-guardian/internal/core"
)

// InputStore reads scorer inputs and writes the cached score back.
type InputStore interface {
	GetHealthInputs(ctx context.Context, domainID string, since time.Time) (*core.HealthInputs, error)
	UpdateDomainHealth(ctx context.Context, domainID string, score int, at time.Time) error
}

// Report is the result of scoring one domain.
type Report struct {
	DomainID        string        `json:"domain_id"`
	Domain          string        `json:"domain"`
	Score           int           `json:"score"`
	Status          core.Severity `json:"status"`
	Breakdown       Breakdown     `json:"breakdown"`
	Recommendations []string      `json:"recommendations"`
	ComputedAt      time.Time     `json:"computed_at"`
}

type Scorer struct {
	store  InputStore
	window time.Duration
	now    func() time.Time
}

func NewScorer(store InputStore) *Scorer {
	return &Scorer{
		store:  store,
		window: 30 * 24 * time.Hour,
		now:    time.Now,
	}
}

// Score computes and persists the composite health of one domain.
func (s *Scorer) Score(ctx context.Context, domainID string) (*Report, error) {
	now := s.now().UTC()

	in, err := s.store.GetHealthInputs(ctx, domainID, now.Add(-s.window))
	if err != nil {
		return nil, fmt.Errorf("failed to load health inputs for %s: %w", domainID, err)
	}

	b := ComputeBreakdown(*in)
	score := Composite(b)

	if err := s.store.UpdateDomainHealth(ctx, domainID, score, now); err != nil {
		return nil, fmt.Errorf("failed to store health score for %s: %w", domainID, err)
	}

	return &Report{
		DomainID:        domainID,
		Domain:          in.Domain.Name,
		Score:           score,
		Status:          StatusFor(score),
		Breakdown:       b,
		Recommendations: Recommendations(*in),
		ComputedAt:      now,
	}, nil
}
