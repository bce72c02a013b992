package loadtest

import (
	"sort"
)

// Percentile returns the value at rank floor(n*p/100) of the sorted data,
// clamped to the last element. Empty input yields 0.
func Percentile(data []float64, p float64) float64 {
	n := len(data)
	if n == 0 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, data)
	sort.Float64s(sorted)
	return percentileSorted(sorted, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p < 0 {
		p = 0
	}
	idx := int(float64(n) * p / 100)
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

// LatencyStats summarizes a latency sample in seconds.
type LatencyStats struct {
	Count int     `json:"count"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Max   float64 `json:"max"`
}

// ComputeLatencyStats sorts once and derives every statistic from the copy.
func ComputeLatencyStats(data []float64) LatencyStats {
	if len(data) == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	var total float64
	for _, v := range sorted {
		total += v
	}

	return LatencyStats{
		Count: len(sorted),
		Avg:   total / float64(len(sorted)),
		P50:   percentileSorted(sorted, 50),
		P95:   percentileSorted(sorted, 95),
		P99:   percentileSorted(sorted, 99),
		Max:   sorted[len(sorted)-1],
	}
}
