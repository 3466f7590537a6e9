package device

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// Registry maps device tags to the allocator that serves them. Every
// allocator is wrapped so allocations and releases show up in the device
// metrics regardless of the strategy behind it.
type Registry struct {
	mu     sync.RWMutex
	allocs map[Type]Allocator
}

// NewRegistry creates a registry serving the given allocators.
func NewRegistry(allocs ...Allocator) *Registry {
	r := &Registry{allocs: make(map[Type]Allocator, len(allocs))}
	for _, a := range allocs {
		r.Register(a)
	}
	return r
}

// Register installs a as the allocator for a.Device(), replacing any
// previous one.
func (r *Registry) Register(a Allocator) {
	if _, ok := a.(metered); !ok {
		a = metered{a}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allocs[a.Device()] = a
}

// Lookup returns the allocator for t, or ErrInvalidDevice.
func (r *Registry) Lookup(t Type) (Allocator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.allocs[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDevice, t)
	}
	return a, nil
}

// Devices lists the registered device tags in ascending order.
func (r *Registry) Devices() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Type, 0, len(r.allocs))
	for t := range r.allocs {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

var defaultRegistry atomic.Pointer[Registry]

func init() {
	defaultRegistry.Store(NewRegistry(
		NewHostAllocator(nil, 0),
		NewCudaAllocator(nil, DefaultVRAMBytes),
	))
}

// DefaultRegistry returns the process-wide registry used when no allocator
// is given explicitly.
func DefaultRegistry() *Registry {
	return defaultRegistry.Load()
}

// SetDefaultRegistry replaces the process-wide registry and returns the
// previous one.
func SetDefaultRegistry(r *Registry) *Registry {
	return defaultRegistry.Swap(r)
}

type metered struct {
	Allocator
}

func (m metered) Allocate(nbytes int) ([]byte, error) {
	dev := m.Device().String()
	buf, err := m.Allocator.Allocate(nbytes)
	if err != nil {
		allocationFailures.WithLabelValues(dev).Inc()
		return nil, err
	}
	allocationsTotal.WithLabelValues(dev).Inc()
	liveBytes.WithLabelValues(dev).Add(float64(len(buf)))
	return buf, nil
}

func (m metered) Release(buf []byte) {
	dev := m.Device().String()
	releasesTotal.WithLabelValues(dev).Inc()
	liveBytes.WithLabelValues(dev).Sub(float64(len(buf)))
	m.Allocator.Release(buf)
}
