package device

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidDevice is returned when a device tag has no registered allocator.
	ErrInvalidDevice = errors.New("invalid device type")

	// ErrAllocationFailure is returned when a buffer request cannot be satisfied.
	ErrAllocationFailure = errors.New("allocation failure")
)

// Type tags where a buffer lives.
type Type int

const (
	CPU Type = iota
	CUDA
)

func (t Type) String() string {
	switch t {
	case CPU:
		return "cpu"
	case CUDA:
		return "cuda"
	default:
		return fmt.Sprintf("device(%d)", int(t))
	}
}

// ParseType maps a device name ("cpu", "cuda", or its alias "gpu") to its Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cpu":
		return CPU, nil
	case "cuda", "gpu":
		return CUDA, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidDevice, s)
	}
}

// Allocator is the backend contract consumed by tensor storage.
// One Allocator serves exactly one device.
type Allocator interface {
	// Device returns the device this allocator places buffers on.
	Device() Type

	// Allocate returns a buffer of exactly nbytes bytes.
	// Failures wrap ErrAllocationFailure.
	Allocate(nbytes int) ([]byte, error)

	// Release gives a buffer obtained from Allocate back to the device.
	// It is called once per buffer and never fails.
	Release(buf []byte)
}
