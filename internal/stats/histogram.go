package stats

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// maxTrackable is the largest latency a histogram records; larger values are clamped.
const maxTrackable = 10 * time.Minute

// SafeHistogram is a thread-safe wrapper around hdrhistogram recording microseconds.
type SafeHistogram struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
}

func NewSafeHistogram() *SafeHistogram {
	// 1us to 10min, 3 significant figures
	return &SafeHistogram{hist: hdrhistogram.New(1, int64(maxTrackable/time.Microsecond), 3)}
}

// Record adds one latency observation.
func (h *SafeHistogram) Record(d time.Duration) error {
	us := d.Microseconds()
	if us < 1 {
		us = 1
	}
	if max := int64(maxTrackable / time.Microsecond); us > max {
		us = max
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.RecordValue(us)
}

// Quantile returns the latency at quantile q in [0, 100].
func (h *SafeHistogram) Quantile(q float64) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return time.Duration(h.hist.ValueAtQuantile(q)) * time.Microsecond
}

func (h *SafeHistogram) Mean() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return time.Duration(h.hist.Mean() * float64(time.Microsecond))
}

func (h *SafeHistogram) Max() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return time.Duration(h.hist.Max()) * time.Microsecond
}

func (h *SafeHistogram) TotalCount() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.TotalCount()
}
