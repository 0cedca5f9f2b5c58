// Package timing decides whether a set of response times varies enough to
// suggest a timing side-channel.
package timing

import (
	"fmt"
	"math"
)

// Threshold is the fraction of the mean the standard deviation must exceed.
const Threshold = 0.3

// Stats summarizes a sample of elapsed times in milliseconds.
type Stats struct {
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"stdDev"`
	Samples   int     `json:"samples"`
	Suspected bool    `json:"suspected"`
}

// Analyze computes the mean and population standard deviation of samples.
// An empty sample is never suspected.
func Analyze(samples []float64) Stats {
	n := len(samples)
	if n == 0 {
		return Stats{}
	}

	var sum float64
	for _, s := range samples {
		sum += s
	}
	mean := sum / float64(n)

	var sq float64
	for _, s := range samples {
		d := s - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(n))

	return Stats{
		Mean:      mean,
		StdDev:    std,
		Samples:   n,
		Suspected: std > Threshold*mean,
	}
}

// Details renders the stats for a report details map. Callers add the raw
// samples under their own key.
func (s Stats) Details() map[string]any {
	return map[string]any{
		"averageResponseTime": fmt.Sprintf("%.2fms", s.Mean),
		"standardDeviation":   fmt.Sprintf("%.2fms", s.StdDev),
	}
}
