package pawprint

import (
	"fmt"
	"math"

	"github.com/hupe1980/pawprint/distance"
)

// DefaultMinSimilarity is the similarity-mode acceptance threshold.
const DefaultMinSimilarity = 0.8

// Policy decides whether the best candidate is reported as a match.
type Policy struct {
	// MinSimilarity is the lowest accepted score for MetricDot.
	MinSimilarity float32

	// MaxDistance is the highest accepted squared L2 distance for
	// MetricL2. Zero means uncalibrated.
	MaxDistance float32

	// AcceptNearest accepts the nearest neighbour in distance mode when
	// MaxDistance is not set.
	AcceptNearest bool

	// Candidates is how many results a match query retrieves (k).
	// The best one is subject to the policy; all are returned in
	// Match.Candidates. Zero means 1.
	Candidates int
}

// DefaultPolicy returns a policy with MinSimilarity 0.8 and one candidate.
func DefaultPolicy() Policy {
	return Policy{
		MinSimilarity: DefaultMinSimilarity,
		Candidates:    1,
	}
}

func (p Policy) k() int {
	if p.Candidates <= 0 {
		return 1
	}
	return p.Candidates
}

// Validate checks p for use with metric m.
func (p Policy) Validate(m distance.Metric) error {
	if p.Candidates < 0 {
		return fmt.Errorf("%w: candidates %d", ErrInvalidPolicy, p.Candidates)
	}
	if isNaN(p.MinSimilarity) || isNaN(p.MaxDistance) {
		return fmt.Errorf("%w: NaN threshold", ErrInvalidPolicy)
	}
	switch m {
	case distance.MetricDot:
		return nil
	case distance.MetricL2:
		if p.MaxDistance < 0 {
			return fmt.Errorf("%w: max distance %v", ErrInvalidPolicy, p.MaxDistance)
		}
		if p.MaxDistance == 0 && !p.AcceptNearest {
			return ErrUncalibratedPolicy
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported metric %s", ErrInvalidPolicy, m)
	}
}

// Accept applies the policy to a best score under metric m.
func (p Policy) Accept(m distance.Metric, score float32) bool {
	if isNaN(score) {
		return false
	}
	if m.HigherIsBetter() {
		return score >= p.MinSimilarity
	}
	if p.MaxDistance > 0 {
		return score <= p.MaxDistance
	}
	return p.AcceptNearest
}

// uncalibrated reports whether p falls back to the nearest neighbour.
func (p Policy) uncalibrated(m distance.Metric) bool {
	return m == distance.MetricL2 && p.MaxDistance == 0 && p.AcceptNearest
}

func isNaN(f float32) bool {
	return math.IsNaN(float64(f))
}
