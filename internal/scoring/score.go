// Package scoring holds the pure functions exercise handlers use to turn
// transcripts into numbers: digit and word matching, spoken-number parsing,
// normalization onto 0..100 and composite scores.
package scoring

import "math"

// Normalize maps raw from [min, max] onto 0..100, clamped. A degenerate
// range yields 0 so a misconfigured activity cannot inflate scores.
func Normalize(raw, min, max float64) float64 {
	if max <= min || math.IsNaN(raw) {
		return 0
	}
	return clamp((raw - min) / (max - min) * 100)
}

// NormalizeLatency maps a response time onto 100 (at or faster than fastMs)
// down to 0 (at or slower than slowMs).
func NormalizeLatency(ms, fastMs, slowMs float64) float64 {
	if slowMs <= fastMs {
		return 0
	}
	if ms <= fastMs {
		return 100
	}
	if ms >= slowMs {
		return 0
	}
	return clamp((slowMs - ms) / (slowMs - fastMs) * 100)
}

// Component is one weighted input to Composite.
type Component struct {
	Score  float64
	Weight float64
}

// Composite is the weighted mean of the components' scores, clamped to 0..100.
func Composite(parts ...Component) float64 {
	var sum, weights float64
	for _, p := range parts {
		if p.Weight <= 0 {
			continue
		}
		sum += p.Score * p.Weight
		weights += p.Weight
	}
	if weights == 0 {
		return 0
	}
	return clamp(sum / weights)
}

// Engagement scores free-form dialogue: four points per word of average
// answer length plus five per extra turn, capped at 100.
func Engagement(responses []string) float64 {
	if len(responses) == 0 {
		return 0
	}
	words := 0
	for _, r := range responses {
		words += len(Tokenize(r))
	}
	avg := float64(words) / float64(len(responses))
	return clamp(avg*4 + 5*float64(len(responses)-1))
}

// Mean is the arithmetic mean, 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// Round1 rounds to one decimal place.
func Round1(x float64) float64 { return math.Round(x*10) / 10 }

func clamp(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > 100:
		return 100
	}
	return x
}
