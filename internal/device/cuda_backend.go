package device

import (
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog/log"
)

// DefaultVRAMBytes is the simulated device memory of the default CUDA allocator.
const DefaultVRAMBytes = 4 << 30

var _ Allocator = (*CudaAllocator)(nil)

// CudaAllocator stands in for a device-memory allocator. Buffers live in host
// memory but are accounted against a fixed VRAM budget and released through
// their own path, so a real backend can replace it behind Allocator.
type CudaAllocator struct {
	mem   memory.Allocator
	total int64
	used  atomic.Int64
}

// NewCudaAllocator creates a simulated CUDA allocator with total bytes of
// device memory. A nil mem uses memory.DefaultAllocator.
func NewCudaAllocator(mem memory.Allocator, total int64) *CudaAllocator {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return &CudaAllocator{mem: mem, total: total}
}

func (a *CudaAllocator) Device() Type {
	return CUDA
}

func (a *CudaAllocator) Allocate(nbytes int) ([]byte, error) {
	return allocateBounded(a.mem, CUDA, nbytes, a.total, &a.used)
}

func (a *CudaAllocator) Release(buf []byte) {
	used := a.used.Add(-int64(len(buf)))
	log.Debug().
		Int("bytes", len(buf)).
		Int64("vram_used", used).
		Msg("Releasing simulated device memory")
	a.mem.Free(buf)
}

// VRAMUsage reports allocated and total simulated device memory in bytes.
func (a *CudaAllocator) VRAMUsage() (int64, int64) {
	return a.used.Load(), a.total
}
