package tensor

import (
	"fmt"
	"math"
)

// NumElements returns the product of the shape's dimensions. The empty shape
// describes a scalar and holds one element.
func NumElements(shape []int) (int, error) {
	n := 1
	for i, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: dimension %d is %d", ErrInvalidShape, i, d)
		}
		if d != 0 && n > math.MaxInt/d {
			return 0, fmt.Errorf("%w: element count of %v overflows", ErrAllocationFailure, shape)
		}
		n *= d
	}
	return n, nil
}

// ContiguousStrides computes row-major (C-order) strides for shape:
// strides[i] is the product of shape[i+1:].
func ContiguousStrides(shape []int) []int {
	strides := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return strides
}

// IsContiguous reports whether strides lay shape out densely in row-major
// order. Size-1 dimensions are ignored, whatever their stride.
func IsContiguous(shape, strides []int) bool {
	if len(shape) != len(strides) {
		return false
	}
	z := 1
	for i := len(shape) - 1; i >= 0; i-- {
		if shape[i] == 1 {
			continue
		}
		if strides[i] != z {
			return false
		}
		z *= shape[i]
	}
	return true
}

// validateView checks that every element reachable through shape and strides
// from offset lies inside a buffer of size elements.
func validateView(shape, strides []int, offset, size int) error {
	if len(shape) != len(strides) {
		return fmt.Errorf("%w: shape has rank %d, strides %d", ErrInvalidView, len(shape), len(strides))
	}

	lo, hi := offset, offset
	empty := false
	for i, d := range shape {
		if d < 0 {
			return fmt.Errorf("%w: dimension %d is %d", ErrInvalidView, i, d)
		}
		if d == 0 {
			empty = true
			continue
		}
		span := (d - 1) * strides[i]
		if strides[i] != 0 && span/strides[i] != d-1 {
			return fmt.Errorf("%w: extent of dimension %d overflows", ErrInvalidView, i)
		}
		if span < 0 {
			if lo < math.MinInt-span {
				return fmt.Errorf("%w: extent below offset %d overflows", ErrInvalidView, offset)
			}
			lo += span
		} else {
			if hi > math.MaxInt-span {
				return fmt.Errorf("%w: extent above offset %d overflows", ErrInvalidView, offset)
			}
			hi += span
		}
	}

	if empty {
		if offset < 0 || offset > size {
			return fmt.Errorf("%w: offset %d outside storage of %d elements", ErrInvalidView, offset, size)
		}
		return nil
	}
	if lo < 0 || hi >= size {
		return fmt.Errorf("%w: reaches elements [%d, %d] of storage with %d elements", ErrInvalidView, lo, hi, size)
	}
	return nil
}
