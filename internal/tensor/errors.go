package tensor

import (
	"errors"

	"github.com/23skdu/flashtensor/internal/device"
)

var (
	// ErrInvalidDevice is returned when storage is requested on a device with
	// no registered allocator.
	ErrInvalidDevice = device.ErrInvalidDevice

	// ErrAllocationFailure is returned when the device cannot provide the buffer.
	ErrAllocationFailure = device.ErrAllocationFailure

	// ErrDimensionMismatch is returned when the number of indices or the
	// addressed dimension does not match the tensor's rank.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrIndexOutOfBounds is returned when an index falls outside its dimension.
	ErrIndexOutOfBounds = errors.New("index out of bounds")

	// ErrInvalidView is returned when a shape/strides/offset combination would
	// reach outside the backing storage or is malformed.
	ErrInvalidView = errors.New("invalid view")

	// ErrInvalidShape is returned for shapes with negative dimensions.
	ErrInvalidShape = errors.New("invalid shape")

	// ErrNoStorage is returned when a tensor has been moved from or released.
	ErrNoStorage = errors.New("tensor has no storage")
)
