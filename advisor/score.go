package advisor

import "math"

const (
	contextWeight     = 0.3
	usageWeight       = 0.4
	consistencyWeight = 0.3
)

// Signals are the three inputs of a ConfidenceScore, each expected in [0, 1].
type Signals struct {
	// Context is the advisor's own confidence in the suggestion
	Context float64
	// Usage is the fraction of observed usage shapes the suggested type satisfies
	Usage float64
	// Consistency is 1 when the suggestion completes the statically known type,
	// 0.5 when it agrees but leaves holes, 0 when it contradicts it or does not parse
	Consistency float64
}

// ConfidenceScore weighs the signals into a value that is always within [0, 1].
// Signals outside the range, NaN included, are clamped first.
func ConfidenceScore(s Signals) float64 {
	score := contextWeight*clamp(s.Context) + usageWeight*clamp(s.Usage) + consistencyWeight*clamp(s.Consistency)
	return clamp(score)
}

// Accept reports whether score meets threshold.
func Accept(score, threshold float64) bool {
	return score >= threshold
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
