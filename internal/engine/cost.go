package engine

import (
	"math"

	"github.com/wavedeck/studio/internal/model"
)

// EstimateByDuration prices a per-second model.
func EstimateByDuration(seconds int, rate float64) float64 {
	return roundCents(float64(seconds) * rate)
}

// EstimateByCount prices a per-artifact model.
func EstimateByCount(count int, rate float64) float64 {
	return roundCents(float64(count) * rate)
}

// Estimate prices a request from the model's pricing. The value is advisory
// and superseded by any cost the remote service reports.
func Estimate(pricing model.Pricing, params model.Params) float64 {
	count := params.ArtifactCount
	if count <= 0 {
		count = 1
	}

	var total float64
	if pricing.PerSecond > 0 {
		duration := params.Duration
		if duration <= 0 {
			duration = model.DefaultDuration
		}
		total += float64(duration*count) * pricing.PerSecond
	}
	if pricing.PerArtifact > 0 {
		total += float64(count) * pricing.PerArtifact
	}
	return roundCents(total)
}

func roundCents(x float64) float64 {
	return math.Round(x*100) / 100
}
