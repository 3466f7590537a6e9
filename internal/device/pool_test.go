package device

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func getMetricValue(m prometheus.Metric) float64 {
	var metric dto.Metric
	if err := m.Write(&metric); err != nil {
		return 0
	}
	if metric.Counter != nil {
		return *metric.Counter.Value
	}
	if metric.Gauge != nil {
		return *metric.Gauge.Value
	}
	return 0
}

func TestPooledAllocator(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	pool := NewPooledAllocator(NewHostAllocator(mem, 0), 1)

	// metrics are global, so we track deltas
	startHits := getMetricValue(poolHits.WithLabelValues("cpu"))
	startMisses := getMetricValue(poolMisses.WithLabelValues("cpu"))

	b1, err := pool.Allocate(64)
	require.NoError(t, err)
	require.Equal(t, startMisses+1, getMetricValue(poolMisses.WithLabelValues("cpu")))

	b1[0] = 42
	pool.Release(b1)
	require.Equal(t, 1, pool.Pooled())
	require.Equal(t, 64, mem.CurrentAlloc(), "pooled buffer stays allocated")

	b2, err := pool.Allocate(64)
	require.NoError(t, err)
	require.Equal(t, startHits+1, getMetricValue(poolHits.WithLabelValues("cpu")))
	require.Equal(t, byte(0), b2[0], "recycled buffer must be zeroed")
	require.Equal(t, 0, pool.Pooled())

	// different size misses
	b3, err := pool.Allocate(32)
	require.NoError(t, err)
	require.Equal(t, startMisses+2, getMetricValue(poolMisses.WithLabelValues("cpu")))

	pool.Release(b2)
	pool.Release(b3)
	require.Equal(t, 2, pool.Pooled())

	// over the per-size cap goes straight back to the wrapped allocator
	b4, err := pool.Allocate(16)
	require.NoError(t, err)
	b5, err := pool.Allocate(16)
	require.NoError(t, err)
	pool.Release(b4)
	pool.Release(b5)
	require.Equal(t, 3, pool.Pooled())

	pool.Drain()
	require.Equal(t, 0, pool.Pooled())
}
