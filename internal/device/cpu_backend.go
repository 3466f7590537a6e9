package device

import (
	"fmt"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ensure interface compliance
var _ Allocator = (*HostAllocator)(nil)

// HostAllocator places buffers in host memory through an arrow allocator.
type HostAllocator struct {
	mem   memory.Allocator
	limit int64
	used  atomic.Int64
}

// NewHostAllocator creates a CPU allocator on top of mem. A nil mem uses
// memory.DefaultAllocator. A limit of 0 means unbounded.
func NewHostAllocator(mem memory.Allocator, limit int64) *HostAllocator {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return &HostAllocator{mem: mem, limit: limit}
}

func (a *HostAllocator) Device() Type {
	return CPU
}

func (a *HostAllocator) Allocate(nbytes int) ([]byte, error) {
	return allocateBounded(a.mem, CPU, nbytes, a.limit, &a.used)
}

func (a *HostAllocator) Release(buf []byte) {
	a.used.Add(-int64(len(buf)))
	a.mem.Free(buf)
}

// InUse returns the number of bytes currently handed out.
func (a *HostAllocator) InUse() int64 {
	return a.used.Load()
}

// allocateBounded reserves nbytes against limit before asking mem for the
// buffer. The reservation is rolled back on any failure, including a panic
// inside mem.
func allocateBounded(mem memory.Allocator, dev Type, nbytes int, limit int64, used *atomic.Int64) (buf []byte, err error) {
	if nbytes < 0 {
		return nil, fmt.Errorf("%w: negative size %d on %s", ErrAllocationFailure, nbytes, dev)
	}

	n := used.Add(int64(nbytes))
	if limit > 0 && n > limit {
		used.Add(-int64(nbytes))
		return nil, fmt.Errorf("%w: %d bytes on %s exceeds limit (%d of %d in use)",
			ErrAllocationFailure, nbytes, dev, n-int64(nbytes), limit)
	}

	defer func() {
		if r := recover(); r != nil {
			used.Add(-int64(nbytes))
			buf = nil
			err = fmt.Errorf("%w: %d bytes on %s: %v", ErrAllocationFailure, nbytes, dev, r)
		}
	}()

	buf = mem.Allocate(nbytes)
	if len(buf) != nbytes {
		used.Add(-int64(nbytes))
		return nil, fmt.Errorf("%w: allocator returned %d bytes, want %d", ErrAllocationFailure, len(buf), nbytes)
	}
	return buf, nil
}
