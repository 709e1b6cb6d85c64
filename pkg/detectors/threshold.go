package detectors

import (
	"math"
	"slices"
)

// Percentile returns the p-th percentile (0-100) of data using linear
// interpolation between closest ranks.
func Percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}

	sorted := slices.Clone(data)
	slices.Sort(sorted)

	pos := float64(len(sorted)-1) * p / 100
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo < 0 {
		lo = 0
	}
	if hi >= len(sorted) {
		hi = len(sorted) - 1
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// MinMax rescales values into [0, 1]. All values map to 0 when they are equal.
func MinMax(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if hi <= lo {
		return out
	}

	for i, v := range values {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}

// LabelAbove scores values and labels those strictly above the
// (1-contamination) percentile. Fewer than two values never produce a label.
func LabelAbove(values, raw []float64, contamination float64) []Score {
	scores := make([]Score, len(values))
	if len(values) < 2 {
		return scores
	}

	threshold := Percentile(raw, 100*(1-contamination))
	for i, v := range values {
		scores[i] = Score{Value: v, IsAnomaly: raw[i] > threshold}
	}
	return scores
}

// Finite reports whether every value is a finite number.
func Finite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
