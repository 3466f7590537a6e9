package device

import (
	"sync"
)

var _ Allocator = (*PooledAllocator)(nil)

// PooledAllocator keeps released buffers and hands them out again for
// requests of the same byte size. Recycled buffers are zeroed.
type PooledAllocator struct {
	inner   Allocator
	maxKeep int

	mu      sync.Mutex
	buckets map[int][][]byte
	count   int
}

// NewPooledAllocator wraps inner. At most maxKeep buffers are held per size;
// maxKeep <= 0 means no cap.
func NewPooledAllocator(inner Allocator, maxKeep int) *PooledAllocator {
	return &PooledAllocator{
		inner:   inner,
		maxKeep: maxKeep,
		buckets: make(map[int][][]byte),
	}
}

func (p *PooledAllocator) Device() Type {
	return p.inner.Device()
}

func (p *PooledAllocator) Allocate(nbytes int) ([]byte, error) {
	dev := p.Device().String()

	p.mu.Lock()
	if bucket := p.buckets[nbytes]; len(bucket) > 0 {
		buf := bucket[len(bucket)-1]
		p.buckets[nbytes] = bucket[:len(bucket)-1]
		p.count--
		p.mu.Unlock()

		poolHits.WithLabelValues(dev).Inc()
		poolBuffers.WithLabelValues(dev).Dec()
		clear(buf)
		return buf, nil
	}
	p.mu.Unlock()

	poolMisses.WithLabelValues(dev).Inc()
	return p.inner.Allocate(nbytes)
}

func (p *PooledAllocator) Release(buf []byte) {
	if len(buf) == 0 {
		p.inner.Release(buf)
		return
	}

	p.mu.Lock()
	bucket := p.buckets[len(buf)]
	if p.maxKeep > 0 && len(bucket) >= p.maxKeep {
		p.mu.Unlock()
		p.inner.Release(buf)
		return
	}
	p.buckets[len(buf)] = append(bucket, buf)
	p.count++
	p.mu.Unlock()

	poolBuffers.WithLabelValues(p.Device().String()).Inc()
}

// Pooled returns the number of buffers currently held.
func (p *PooledAllocator) Pooled() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Drain hands every pooled buffer back to the wrapped allocator.
func (p *PooledAllocator) Drain() {
	p.mu.Lock()
	buckets := p.buckets
	drained := p.count
	p.buckets = make(map[int][][]byte)
	p.count = 0
	p.mu.Unlock()

	for _, bucket := range buckets {
		for _, buf := range bucket {
			p.inner.Release(buf)
		}
	}
	poolBuffers.WithLabelValues(p.Device().String()).Sub(float64(drained))
}
