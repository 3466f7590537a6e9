package tensor

import (
	"fmt"
	"slices"
)

// Permute returns a view whose dimension i is dimension axes[i] of t.
// The view shares t's storage.
func (t *Tensor[T]) Permute(axes ...int) (*Tensor[T], error) {
	if t.storage == nil {
		return nil, ErrNoStorage
	}
	if len(axes) != len(t.shape) {
		return nil, fmt.Errorf("%w: %d axes for rank %d", ErrInvalidView, len(axes), len(t.shape))
	}

	seen := make([]bool, len(axes))
	shape := make([]int, len(axes))
	strides := make([]int, len(axes))
	for i, a := range axes {
		if a < 0 || a >= len(t.shape) {
			return nil, fmt.Errorf("%w: axis %d out of range for rank %d", ErrInvalidView, a, len(t.shape))
		}
		if seen[a] {
			return nil, fmt.Errorf("%w: duplicate axis %d", ErrInvalidView, a)
		}
		seen[a] = true
		shape[i] = t.shape[a]
		strides[i] = t.strides[a]
	}

	shared := t.storage.Share()
	if shared == nil {
		return nil, ErrNoStorage
	}
	return newView(shape, strides, shared, t.offset), nil
}

// Transpose swaps the last two dimensions.
func (t *Tensor[T]) Transpose() (*Tensor[T], error) {
	rank := len(t.shape)
	if rank < 2 {
		return nil, fmt.Errorf("%w: transpose needs rank >= 2, got %d", ErrDimensionMismatch, rank)
	}
	axes := make([]int, rank)
	for i := range axes {
		axes[i] = i
	}
	axes[rank-2], axes[rank-1] = axes[rank-1], axes[rank-2]
	return t.Permute(axes...)
}

// Narrow returns a view of the elements [start, start+length) along dim.
// The view shares t's storage.
func (t *Tensor[T]) Narrow(dim, start, length int) (*Tensor[T], error) {
	if t.storage == nil {
		return nil, ErrNoStorage
	}
	if dim < 0 || dim >= len(t.shape) {
		return nil, fmt.Errorf("%w: dimension %d for rank %d", ErrDimensionMismatch, dim, len(t.shape))
	}
	if start < 0 || length < 0 || start+length > t.shape[dim] {
		return nil, fmt.Errorf("%w: range [%d, %d) of dimension %d with size %d",
			ErrIndexOutOfBounds, start, start+length, dim, t.shape[dim])
	}

	shape := slices.Clone(t.shape)
	shape[dim] = length

	shared := t.storage.Share()
	if shared == nil {
		return nil, ErrNoStorage
	}
	return newView(shape, slices.Clone(t.strides), shared, t.offset+start*t.strides[dim]), nil
}
