package tensor

import (
	"fmt"
	"math"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/constraints"

	"github.com/23skdu/flashtensor/internal/device"
)

// Element is the set of types a Storage can hold. Buffers are raw device
// memory viewed as []T, so element types must not contain pointers.
type Element interface {
	constraints.Integer | constraints.Float | constraints.Complex
}

// buffer is the reference-counted allocation shared by every Storage handle
// created from it.
type buffer[T Element] struct {
	raw   []byte
	data  []T
	alloc device.Allocator
	refs  atomic.Int32
}

func (b *buffer[T]) retain() {
	b.refs.Add(1)
}

func (b *buffer[T]) release() {
	if b.refs.Add(-1) != 0 {
		return
	}
	raw := b.raw
	b.raw, b.data = nil, nil
	b.alloc.Release(raw)
	log.Debug().
		Str("device", b.alloc.Device().String()).
		Int("bytes", len(raw)).
		Msg("Storage released")
}

// Storage is a handle to a fixed-size buffer of Size() elements on one device.
// Handles are cheap: Share creates another handle on the same buffer, and the
// buffer goes back to its allocator once every handle has been released.
// A handle that becomes unreachable without Release keeps its buffer pinned
// for good and is counted as leaked.
type Storage[T Element] struct {
	buf    atomic.Pointer[buffer[T]]
	device device.Type
	size   int
}

// NewStorage allocates size elements on dev using the default device registry.
func NewStorage[T Element](size int, dev device.Type) (*Storage[T], error) {
	alloc, err := device.DefaultRegistry().Lookup(dev)
	if err != nil {
		return nil, err
	}
	return NewStorageWith[T](size, alloc)
}

// NewStorageWith allocates size elements through alloc.
func NewStorageWith[T Element](size int, alloc device.Allocator) (*Storage[T], error) {
	if alloc == nil {
		return nil, fmt.Errorf("%w: nil allocator", ErrInvalidDevice)
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrAllocationFailure, size)
	}
	elem := int(unsafe.Sizeof(*new(T)))
	if size > math.MaxInt/elem {
		return nil, fmt.Errorf("%w: %d elements of %d bytes overflows", ErrAllocationFailure, size, elem)
	}

	raw, err := alloc.Allocate(size * elem)
	if err != nil {
		return nil, fmt.Errorf("storage of %d elements: %w", size, err)
	}

	b := &buffer[T]{
		raw:   raw,
		data:  bytesAs[T](raw, size),
		alloc: alloc,
	}
	b.refs.Store(1)
	return newHandle(b, alloc.Device(), size), nil
}

func newHandle[T Element](b *buffer[T], dev device.Type, size int) *Storage[T] {
	s := &Storage[T]{device: dev, size: size}
	s.buf.Store(b)
	runtime.SetFinalizer(s, reportLeak[T])
	return s
}

// reportLeak runs for handles collected without Release. Slices returned by
// Data or Ptr may still alias the buffer, so its reference is never dropped
// and the allocator never gets it back. Go-allocated memory is reclaimed by
// the collector once nothing points at it.
func reportLeak[T Element](s *Storage[T]) {
	if s.buf.Load() == nil {
		return
	}
	leakedHandles.WithLabelValues(s.device.String()).Inc()
	log.Warn().
		Str("device", s.device.String()).
		Int("elements", s.size).
		Msg("Storage handle collected without Release")
}

// bytesAs views raw as n elements of T.
func bytesAs[T Element](raw []byte, n int) []T {
	if n == 0 {
		return []T{}
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(raw))), n)
}

// Device returns the device the buffer lives on.
func (s *Storage[T]) Device() device.Type {
	return s.device
}

// Size returns the number of elements in the buffer.
func (s *Storage[T]) Size() int {
	return s.size
}

// Data returns the buffer. The slice aliases device memory and must not be
// used after this handle is released, since the buffer may then be recycled.
// A released handle returns nil.
func (s *Storage[T]) Data() []T {
	b := s.buf.Load()
	if b == nil {
		return nil
	}
	return b.data
}

// Released reports whether this handle has been released.
func (s *Storage[T]) Released() bool {
	return s.buf.Load() == nil
}

// Refs returns the number of live handles on the buffer, or 0 once this
// handle has been released.
func (s *Storage[T]) Refs() int {
	b := s.buf.Load()
	if b == nil {
		return 0
	}
	return int(b.refs.Load())
}

// Share returns a new handle on the same buffer. No data is copied.
// Share returns nil if s has been released.
func (s *Storage[T]) Share() *Storage[T] {
	b := s.buf.Load()
	if b == nil {
		return nil
	}
	b.retain()
	return newHandle(b, s.device, s.size)
}

// Release drops this handle. Releasing a handle twice is a no-op.
func (s *Storage[T]) Release() {
	b := s.buf.Swap(nil)
	if b == nil {
		return
	}
	runtime.SetFinalizer(s, nil)
	b.release()
}

func (s *Storage[T]) allocator() device.Allocator {
	b := s.buf.Load()
	if b == nil {
		return nil
	}
	return b.alloc
}
