package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/montanaflynn/stats"
)

// ErrNoSamples is returned when a statistic is requested over an empty sample.
var ErrNoSamples = errors.New("no samples")

// Quantile returns the q-th quantile of sorted using linear interpolation
// between the two nearest order statistics. sorted must be ascending.
func Quantile(sorted []float64, q float64) (float64, error) {
	if len(sorted) == 0 {
		return math.NaN(), ErrNoSamples
	}
	if q < 0 || q > 1 || math.IsNaN(q) {
		return math.NaN(), fmt.Errorf("quantile %v out of range [0,1]", q)
	}
	h := float64(len(sorted)-1) * q
	lo := math.Floor(h)
	i := int(lo)
	if i+1 >= len(sorted) {
		return sorted[len(sorted)-1], nil
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i]), nil
}

// PercentileOfScore returns the percentage of samples less than or equal
// to score.
func PercentileOfScore(samples []float64, score float64) (float64, error) {
	if len(samples) == 0 {
		return math.NaN(), ErrNoSamples
	}
	n := 0
	for _, s := range samples {
		if s <= score {
			n++
		}
	}
	return 100 * float64(n) / float64(len(samples)), nil
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Summary holds count, mean, sample standard deviation (0 for a single
// sample) and the requested quantiles.
type Summary struct {
	Count     int       `json:"count"`
	Mean      float64   `json:"mean"`
	Std       float64   `json:"std"`
	Quantiles []float64 `json:"quantiles"`
}

// Summarize computes a Summary over samples for the requested quantiles.
func Summarize(samples []float64, quantiles []float64) (Summary, error) {
	if len(samples) == 0 {
		return Summary{}, ErrNoSamples
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	mean, err := stats.Mean(sorted)
	if err != nil {
		return Summary{}, fmt.Errorf("mean: %w", err)
	}
	var std float64
	if len(sorted) > 1 {
		if std, err = stats.StandardDeviationSample(sorted); err != nil {
			return Summary{}, fmt.Errorf("std: %w", err)
		}
	}
	out := Summary{Count: len(sorted), Mean: mean, Std: std, Quantiles: make([]float64, len(quantiles))}
	for i, q := range quantiles {
		v, err := Quantile(sorted, q)
		if err != nil {
			return Summary{}, err
		}
		out.Quantiles[i] = v
	}
	return out, nil
}

// QuantileLabel names a quantile column: "min", "max" or "25%".
func QuantileLabel(q float64) string {
	switch q {
	case 0:
		return "min"
	case 1:
		return "max"
	default:
		return strconv.FormatFloat(math.Round(q*10000)/100, 'f', -1, 64) + "%"
	}
}

// DefaultQuantiles are min, quartiles and max.
func DefaultQuantiles() []float64 {
	return []float64{0, 0.25, 0.5, 0.75, 1}
}

// ExtendedQuantiles add the 5th, 93rd and 99th percentiles.
func ExtendedQuantiles() []float64 {
	return []float64{0, 0.05, 0.25, 0.5, 0.75, 0.93, 0.99, 1}
}
