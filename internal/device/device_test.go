package device

import (
	"errors"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// panickyAllocator simulates an allocator that cannot satisfy any request.
type panickyAllocator struct {
	memory.Allocator
}

func (panickyAllocator) Allocate(size int) []byte {
	panic("out of memory")
}

func TestParseType(t *testing.T) {
	for in, want := range map[string]Type{"cpu": CPU, "CPU": CPU, " cuda ": CUDA, "gpu": CUDA} {
		got, err := ParseType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseType("tpu")
	require.ErrorIs(t, err, ErrInvalidDevice)

	assert.Equal(t, "cpu", CPU.String())
	assert.Equal(t, "cuda", CUDA.String())
	assert.Equal(t, "device(7)", Type(7).String())
}

func TestHostAllocator(t *testing.T) {
	t.Run("allocate and release", func(t *testing.T) {
		mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
		defer mem.AssertSize(t, 0)

		a := NewHostAllocator(mem, 0)
		assert.Equal(t, CPU, a.Device())

		buf, err := a.Allocate(128)
		require.NoError(t, err)
		assert.Len(t, buf, 128)
		assert.Equal(t, int64(128), a.InUse())
		assert.Equal(t, 128, mem.CurrentAlloc())

		a.Release(buf)
		assert.Equal(t, int64(0), a.InUse())
	})

	t.Run("limit", func(t *testing.T) {
		a := NewHostAllocator(nil, 100)

		first, err := a.Allocate(60)
		require.NoError(t, err)

		_, err = a.Allocate(60)
		require.ErrorIs(t, err, ErrAllocationFailure)
		assert.Equal(t, int64(60), a.InUse())

		a.Release(first)
		second, err := a.Allocate(60)
		require.NoError(t, err)
		a.Release(second)
	})

	t.Run("negative size", func(t *testing.T) {
		_, err := NewHostAllocator(nil, 0).Allocate(-4)
		require.ErrorIs(t, err, ErrAllocationFailure)
	})

	t.Run("allocator panic becomes error", func(t *testing.T) {
		a := NewHostAllocator(panickyAllocator{memory.NewGoAllocator()}, 0)
		_, err := a.Allocate(32)
		require.ErrorIs(t, err, ErrAllocationFailure)
		assert.Equal(t, int64(0), a.InUse())
	})
}

func TestCudaAllocator(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	a := NewCudaAllocator(mem, 256)
	assert.Equal(t, CUDA, a.Device())

	buf, err := a.Allocate(200)
	require.NoError(t, err)

	used, total := a.VRAMUsage()
	assert.Equal(t, int64(200), used)
	assert.Equal(t, int64(256), total)

	_, err = a.Allocate(100)
	require.ErrorIs(t, err, ErrAllocationFailure)

	a.Release(buf)
	used, _ = a.VRAMUsage()
	assert.Equal(t, int64(0), used)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewHostAllocator(nil, 0))
	assert.Equal(t, []Type{CPU}, r.Devices())

	_, err := r.Lookup(CUDA)
	require.ErrorIs(t, err, ErrInvalidDevice)

	r.Register(NewCudaAllocator(nil, 1024))
	assert.Equal(t, []Type{CPU, CUDA}, r.Devices())

	a, err := r.Lookup(CUDA)
	require.NoError(t, err)
	assert.Equal(t, CUDA, a.Device())

	t.Run("metrics", func(t *testing.T) {
		allocs := getMetricValue(allocationsTotal.WithLabelValues("cuda"))
		releases := getMetricValue(releasesTotal.WithLabelValues("cuda"))
		failures := getMetricValue(allocationFailures.WithLabelValues("cuda"))
		live := getMetricValue(liveBytes.WithLabelValues("cuda"))

		buf, err := a.Allocate(512)
		require.NoError(t, err)
		assert.Equal(t, allocs+1, getMetricValue(allocationsTotal.WithLabelValues("cuda")))
		assert.Equal(t, live+512, getMetricValue(liveBytes.WithLabelValues("cuda")))

		_, err = a.Allocate(1024)
		require.Error(t, err)
		assert.Equal(t, failures+1, getMetricValue(allocationFailures.WithLabelValues("cuda")))

		a.Release(buf)
		assert.Equal(t, releases+1, getMetricValue(releasesTotal.WithLabelValues("cuda")))
		assert.Equal(t, live, getMetricValue(liveBytes.WithLabelValues("cuda")))
	})

	t.Run("register does not double wrap", func(t *testing.T) {
		r2 := NewRegistry(a)
		got, err := r2.Lookup(CUDA)
		require.NoError(t, err)
		_, inner := got.(metered).Allocator.(metered)
		assert.False(t, inner)
	})
}

func TestDefaultRegistry(t *testing.T) {
	def := DefaultRegistry()
	assert.Equal(t, []Type{CPU, CUDA}, def.Devices())

	custom := NewRegistry(NewHostAllocator(nil, 0))
	prev := SetDefaultRegistry(custom)
	defer SetDefaultRegistry(prev)

	assert.Same(t, def, prev)
	_, err := DefaultRegistry().Lookup(CUDA)
	assert.True(t, errors.Is(err, ErrInvalidDevice))
}
