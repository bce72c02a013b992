package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeHistogram_Quantiles(t *testing.T) {
	h := NewSafeHistogram()
	for i := 1; i <= 100; i++ {
		require.NoError(t, h.Record(time.Duration(i)*time.Millisecond))
	}

	assert.Equal(t, int64(100), h.TotalCount())
	assert.InDelta(t, 50*time.Millisecond, h.Quantile(50), float64(time.Millisecond))
	assert.InDelta(t, 95*time.Millisecond, h.Quantile(95), float64(time.Millisecond))
	assert.InDelta(t, 100*time.Millisecond, h.Max(), float64(time.Millisecond))
}

func TestSafeHistogram_ClampsOutOfRange(t *testing.T) {
	h := NewSafeHistogram()
	require.NoError(t, h.Record(0))
	require.NoError(t, h.Record(time.Hour))
	assert.Equal(t, int64(2), h.TotalCount())
}

func TestRecorder_ConcurrentSeries(t *testing.T) {
	r := NewRecorder()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Series("query").Success(time.Millisecond)
			}
			r.Series("query").Failure()
			r.Series("stream").Retry()
		}()
	}
	wg.Wait()

	snaps := r.Snapshot()
	require.Len(t, snaps, 2)
	assert.Equal(t, "query", snaps[0].Name)
	assert.Equal(t, uint64(808), snaps[0].Attempts)
	assert.Equal(t, uint64(800), snaps[0].Successes)
	assert.Equal(t, uint64(8), snaps[0].Failures)
	assert.Equal(t, uint64(8), snaps[1].Retries)
	assert.Zero(t, snaps[1].P95, "no successful latencies recorded")

	attempts, failures, retries := r.Totals()
	assert.Equal(t, uint64(816), attempts)
	assert.Equal(t, uint64(8), failures)
	assert.Equal(t, uint64(8), retries)
}
