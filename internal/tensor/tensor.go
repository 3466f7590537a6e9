package tensor

import (
	"fmt"
	"slices"

	"github.com/23skdu/flashtensor/internal/device"
)

// Tensor is a strided view over a Storage. Several tensors may share one
// storage; writes through one are visible through all of them.
//
// Element (idx[0], ..., idx[n-1]) lives at
// offset + idx[0]*strides[0] + ... + idx[n-1]*strides[n-1] in the storage.
type Tensor[T Element] struct {
	shape      []int
	strides    []int
	offset     int
	storage    *Storage[T]
	contiguous bool
}

type options struct {
	device   device.Type
	alloc    device.Allocator
	registry *device.Registry
}

// Option configures New.
type Option func(*options)

// OnDevice places the tensor's storage on dev. The default is device.CPU.
func OnDevice(dev device.Type) Option {
	return func(o *options) {
		o.device = dev
	}
}

// WithAllocator allocates the storage through alloc, ignoring OnDevice.
func WithAllocator(alloc device.Allocator) Option {
	return func(o *options) {
		o.alloc = alloc
	}
}

// WithRegistry resolves the device allocator from r instead of the default
// registry.
func WithRegistry(r *device.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// New allocates a zeroed, contiguous tensor of the given shape. The empty
// shape creates a scalar.
func New[T Element](shape []int, opts ...Option) (*Tensor[T], error) {
	o := options{device: device.CPU}
	for _, opt := range opts {
		opt(&o)
	}

	n, err := NumElements(shape)
	if err != nil {
		return nil, err
	}

	alloc := o.alloc
	if alloc == nil {
		reg := o.registry
		if reg == nil {
			reg = device.DefaultRegistry()
		}
		if alloc, err = reg.Lookup(o.device); err != nil {
			return nil, err
		}
	}

	storage, err := NewStorageWith[T](n, alloc)
	if err != nil {
		return nil, err
	}

	shape = slices.Clone(shape)
	return &Tensor[T]{
		shape:      shape,
		strides:    ContiguousStrides(shape),
		storage:    storage,
		contiguous: true,
	}, nil
}

// NewView creates a tensor over an existing storage. The view holds its own
// handle on storage, so the caller keeps ownership of the one passed in.
// Every element reachable through shape, strides and offset must lie inside
// the storage; otherwise ErrInvalidView is returned.
func NewView[T Element](shape, strides []int, storage *Storage[T], offset int) (*Tensor[T], error) {
	if storage == nil || storage.Released() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidView, ErrNoStorage)
	}
	if err := validateView(shape, strides, offset, storage.Size()); err != nil {
		return nil, err
	}
	shared := storage.Share()
	if shared == nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidView, ErrNoStorage)
	}
	return newView(slices.Clone(shape), slices.Clone(strides), shared, offset), nil
}

// newView takes ownership of its arguments, including the storage handle.
func newView[T Element](shape, strides []int, storage *Storage[T], offset int) *Tensor[T] {
	return &Tensor[T]{
		shape:      shape,
		strides:    strides,
		offset:     offset,
		storage:    storage,
		contiguous: IsContiguous(shape, strides),
	}
}

// Shape returns a copy of the tensor's dimensions.
func (t *Tensor[T]) Shape() []int {
	return slices.Clone(t.shape)
}

// Strides returns a copy of the tensor's strides, in elements.
func (t *Tensor[T]) Strides() []int {
	return slices.Clone(t.strides)
}

// StorageOffset returns the position of element (0, ..., 0) in the storage.
func (t *Tensor[T]) StorageOffset() int {
	return t.offset
}

func (t *Tensor[T]) Rank() int {
	return len(t.shape)
}

// NumElements returns the number of logical elements in the view.
func (t *Tensor[T]) NumElements() int {
	n := 1
	for _, d := range t.shape {
		n *= d
	}
	return n
}

// IsContiguous reports whether the view is dense in row-major order.
func (t *Tensor[T]) IsContiguous() bool {
	return t.contiguous
}

// Device returns the device of the underlying storage.
func (t *Tensor[T]) Device() device.Type {
	if t.storage == nil {
		return device.CPU
	}
	return t.storage.Device()
}

// Storage returns the tensor's own storage handle, or nil after Move or
// Release. Use Share on it to keep the buffer beyond the tensor's lifetime.
func (t *Tensor[T]) Storage() *Storage[T] {
	return t.storage
}

func (t *Tensor[T]) String() string {
	var zero T
	return fmt.Sprintf("Tensor[%T](shape=%v, strides=%v, offset=%d, device=%s, contiguous=%t)",
		zero, t.shape, t.strides, t.offset, t.Device(), t.contiguous)
}

// Copy returns a tensor with the same shape, strides and offset that shares
// this tensor's storage.
func (t *Tensor[T]) Copy() *Tensor[T] {
	out := &Tensor[T]{
		shape:      slices.Clone(t.shape),
		strides:    slices.Clone(t.strides),
		offset:     t.offset,
		contiguous: t.contiguous,
	}
	if t.storage != nil {
		out.storage = t.storage.Share()
	}
	return out
}

// Assign makes t a shallow copy of src, dropping t's previous storage handle.
// Assigning a tensor to itself does nothing.
func (t *Tensor[T]) Assign(src *Tensor[T]) {
	if t == src {
		return
	}
	var shared *Storage[T]
	if src.storage != nil {
		shared = src.storage.Share()
	}
	if t.storage != nil {
		t.storage.Release()
	}
	t.shape = slices.Clone(src.shape)
	t.strides = slices.Clone(src.strides)
	t.offset = src.offset
	t.contiguous = src.contiguous
	t.storage = shared
}

// Move transfers the tensor into a new value. t is left without storage and
// must only be released or assigned to afterwards.
func (t *Tensor[T]) Move() *Tensor[T] {
	out := *t
	*t = Tensor[T]{}
	return &out
}

// MoveFrom transfers src into t, dropping t's previous storage handle.
// Moving a tensor into itself does nothing.
func (t *Tensor[T]) MoveFrom(src *Tensor[T]) {
	if t == src {
		return
	}
	if t.storage != nil {
		t.storage.Release()
	}
	*t = *src
	*src = Tensor[T]{}
}

// Release drops the tensor's storage handle. The buffer is freed when no
// other tensor or handle shares it.
func (t *Tensor[T]) Release() {
	if t.storage != nil {
		t.storage.Release()
		t.storage = nil
	}
}

func (t *Tensor[T]) data() ([]T, error) {
	if t.storage == nil {
		return nil, ErrNoStorage
	}
	data := t.storage.Data()
	if data == nil {
		return nil, ErrNoStorage
	}
	return data, nil
}

// FlatIndex resolves a multi-index to a position in the storage. The number
// of indices must equal the rank and every index must lie within its
// dimension.
func (t *Tensor[T]) FlatIndex(idx ...int) (int, error) {
	if len(idx) != len(t.shape) {
		return 0, fmt.Errorf("%w: got %d indices for rank %d", ErrDimensionMismatch, len(idx), len(t.shape))
	}
	pos := t.offset
	for d, i := range idx {
		if i < 0 || i >= t.shape[d] {
			return 0, fmt.Errorf("%w: index %d of dimension %d not in [0, %d)", ErrIndexOutOfBounds, i, d, t.shape[d])
		}
		pos += i * t.strides[d]
	}
	return pos, nil
}

// Ptr returns a pointer to the element at idx. The pointer aliases the
// storage buffer and is valid until the tensor is released.
func (t *Tensor[T]) Ptr(idx ...int) (*T, error) {
	data, err := t.data()
	if err != nil {
		return nil, err
	}
	pos, err := t.FlatIndex(idx...)
	if err != nil {
		return nil, err
	}
	return &data[pos], nil
}

// At returns the element at idx.
func (t *Tensor[T]) At(idx ...int) (T, error) {
	p, err := t.Ptr(idx...)
	if err != nil {
		var zero T
		return zero, err
	}
	return *p, nil
}

// Set stores v at idx.
func (t *Tensor[T]) Set(v T, idx ...int) error {
	p, err := t.Ptr(idx...)
	if err != nil {
		return err
	}
	*p = v
	return nil
}
