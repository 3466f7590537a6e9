package tensor

import (
	"slices"

	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"
)

// Clone copies the tensor into fresh storage on the same allocator. The copy
// is contiguous with offset 0, whatever the layout of the source, and every
// element keeps its multi-index.
func (t *Tensor[T]) Clone() (*Tensor[T], error) {
	src, err := t.data()
	if err != nil {
		return nil, err
	}

	n := t.NumElements()
	storage, err := NewStorageWith[T](n, t.storage.allocator())
	if err != nil {
		return nil, err
	}

	shape := slices.Clone(t.shape)
	out := &Tensor[T]{
		shape:      shape,
		strides:    ContiguousStrides(shape),
		storage:    storage,
		contiguous: true,
	}
	t.gather(storage.Data(), src)
	return out, nil
}

// Elements returns the tensor's elements in row-major order of its shape.
func (t *Tensor[T]) Elements() ([]T, error) {
	src, err := t.data()
	if err != nil {
		return nil, err
	}
	out := make([]T, t.NumElements())
	t.gather(out, src)
	return out, nil
}

// Fill sets every element of the view to v.
func (t *Tensor[T]) Fill(v T) error {
	data, err := t.data()
	if err != nil {
		return err
	}
	if t.contiguous {
		n := t.NumElements()
		span := data[t.offset : t.offset+n]
		for i := range span {
			span[i] = v
		}
		return nil
	}
	t.forEachOffset(func(pos int) {
		data[pos] = v
	})
	return nil
}

// gather copies the view's elements from src into dst in row-major order.
// len(dst) must equal t.NumElements().
func (t *Tensor[T]) gather(dst, src []T) {
	if len(dst) == 0 {
		return
	}
	if t.contiguous {
		copy(dst, src[t.offset:t.offset+len(dst)])
		return
	}

	rank := len(t.shape)
	inner := t.shape[rank-1]
	step := t.strides[rank-1]
	outer := make([]int, rank-1)
	for o := 0; o < len(dst); o += inner {
		base := t.offset
		for d, i := range outer {
			base += i * t.strides[d]
		}
		copyStrided(dst[o:o+inner], src, base, step)
		advance(outer, t.shape)
	}
}

// forEachOffset calls fn with the storage position of every element, in
// row-major order.
func (t *Tensor[T]) forEachOffset(fn func(pos int)) {
	n := t.NumElements()
	idx := make([]int, len(t.shape))
	for k := 0; k < n; k++ {
		pos := t.offset
		for d, i := range idx {
			pos += i * t.strides[d]
		}
		fn(pos)
		advance(idx, t.shape)
	}
}

// advance increments a row-major multi-index over the leading len(idx)
// dimensions of shape.
func advance(idx, shape []int) {
	for d := len(idx) - 1; d >= 0; d-- {
		idx[d]++
		if idx[d] < shape[d] {
			return
		}
		idx[d] = 0
	}
}

// copyStrided fills dst with src[base], src[base+step], ...
func copyStrided[T Element](dst, src []T, base, step int) {
	n := len(dst)
	if step == 1 {
		copy(dst, src[base:base+n])
		return
	}
	if step > 0 {
		last := base + (n-1)*step + 1
		switch d := any(dst).(type) {
		case []float32:
			s := any(src).([]float32)
			blas32.Copy(
				blas32.Vector{N: n, Inc: step, Data: s[base:last]},
				blas32.Vector{N: n, Inc: 1, Data: d},
			)
			return
		case []float64:
			s := any(src).([]float64)
			blas64.Copy(
				blas64.Vector{N: n, Inc: step, Data: s[base:last]},
				blas64.Vector{N: n, Inc: 1, Data: d},
			)
			return
		}
	}
	for i := range dst {
		dst[i] = src[base+i*step]
	}
}
