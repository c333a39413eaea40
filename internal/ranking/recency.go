package ranking

import (
	"math"
	"time"
)

// RecencyScore computes an exponential decay over the document age.
// Unknown dates get the configured neutral score and report ageKnown
// false.
func RecencyScore(judgmentDate time.Time, now time.Time, unknownScore, halfLifeYears float64) (score, ageYears float64, ageKnown bool) {
	if judgmentDate.IsZero() {
		return unknownScore, 0, false
	}

	age := now.Sub(judgmentDate).Hours() / 24 / 365.25
	if age < 0 {
		age = 0
	}
	if halfLifeYears < 0.1 {
		halfLifeYears = 0.1
	}
	return math.Exp(-age / halfLifeYears), age, true
}

// MinMaxScale normalizes values to [0,1]. Degenerate sets where all
// values coincide map to 0.5 so no candidate gets an artificial edge.
func MinMaxScale(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	low, high := values[0], values[0]
	for _, v := range values[1:] {
		if v < low {
			low = v
		}
		if v > high {
			high = v
		}
	}

	scaled := make([]float64, len(values))
	if high-low < 1e-9 {
		for i := range scaled {
			scaled[i] = 0.5
		}
		return scaled
	}
	for i, v := range values {
		scaled[i] = (v - low) / (high - low)
	}
	return scaled
}

// Clip01 clamps a score into [0,1].
func Clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
