package gate

import (
	"github.com/mirae-cloud/newsrag/internal/domain"
	"github.com/mirae-cloud/newsrag/internal/metrics"
)

// Config holds the gate thresholds. All three are tunable; the gate has no
// other policy knobs.
type Config struct {
	// Threshold is the minimum top-1 fused score for internal sufficiency.
	Threshold float64
	// Floor is the lower score bound for the secondary count check.
	Floor float64
	// MinResults is how many results must exceed Floor.
	MinResults int
}

// DefaultConfig returns the gate defaults. RRF scores live roughly in
// (0, 2/(k+1)]; with k=60 a top document present near the head of both
// lists scores around 0.03.
func DefaultConfig() Config {
	return Config{
		Threshold:  0.02,
		Floor:      0.01,
		MinResults: 2,
	}
}

// Service decides per sub-query whether internal evidence suffices.
type Service struct {
	cfg Config
}

// New creates a relevance gate.
func New(cfg Config) *Service {
	if cfg.Threshold <= 0 {
		cfg = DefaultConfig()
	}
	return &Service{cfg: cfg}
}

// Evaluate scores the fused results for one sub-query. The verdict is a
// pure threshold function of the inputs: sufficient iff the top fused score
// meets the threshold AND at least MinResults results exceed the floor.
// Degraded mode and temporal sub-queries escalate unconditionally.
func (s *Service) Evaluate(sub domain.SubQuery, fused []domain.FusedResult, degraded bool) domain.Verdict {
	v := domain.Verdict{SubQuery: sub}

	switch {
	case degraded:
		v.Reason = domain.ReasonDegraded
	case sub.Temporal:
		v.Reason = domain.ReasonTemporal
	case len(fused) == 0:
		v.Reason = domain.ReasonNoResults
	default:
		v.Confidence = fused[0].Score

		aboveFloor := 0
		for _, r := range fused {
			if r.Score >= s.cfg.Floor {
				aboveFloor++
			}
		}

		switch {
		case v.Confidence < s.cfg.Threshold:
			v.Reason = domain.ReasonLowScore
		case aboveFloor < s.cfg.MinResults:
			v.Reason = domain.ReasonTooFew
		default:
			v.Sufficient = true
			v.Reason = domain.ReasonSufficient
		}
	}

	if !v.Sufficient {
		metrics.EscalationsTotal.WithLabelValues(string(v.Reason)).Inc()
	}
	return v
}
