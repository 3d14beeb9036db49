// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"fmt"
	"runtime"

	"github.com/born-ml/cortex/internal/tensor"
)

// Tensor is a handle on a view into backend memory.
//
// Reassigning a Tensor variable rebinds the handle. Set writes into the memory
// the handle addresses, which other views of the same buffer observe.
type Tensor struct {
	view    *tensor.View
	cleanup runtime.Cleanup
}

// wrap takes ownership of v.
func wrap(v *tensor.View) *Tensor {
	t := &Tensor{view: v}
	t.cleanup = runtime.AddCleanup(t, func(v *tensor.View) { v.Release() }, v)
	return t
}

func wrapResult(v *tensor.View, err error) (*Tensor, error) {
	if err != nil {
		return nil, err
	}
	return wrap(v), nil
}

// viewOf returns the view of t, or nil for a nil handle so that the backend
// reports the missing operand.
func viewOf(t *Tensor) *tensor.View {
	if t == nil {
		return nil
	}
	return t.view
}

func keepAlive(ts ...*Tensor) {
	for _, t := range ts {
		runtime.KeepAlive(t)
	}
}

// owner returns the backend of the first non-nil operand.
func owner(op string, ts ...*Tensor) (Backend, error) {
	for _, t := range ts {
		if t != nil {
			if t.view.Released() {
				return nil, tensor.Errorf(op, tensor.ErrPrecondition, "use of released tensor")
			}
			return t.view.Backend(), nil
		}
	}
	return nil, tensor.Errorf(op, tensor.ErrPrecondition, "no operand given")
}

// New allocates a zero-filled tensor on b (nil selects DefaultBackend).
func New(shape Shape, dtype DataType, b Backend) (*Tensor, error) {
	return wrapResult(backendOrDefault(b).CreateView(shape, dtype, nil))
}

// FromSlice creates a tensor holding a copy of data.
func FromSlice[T DType](data []T, shape Shape, b Backend) (*Tensor, error) {
	if len(data) != shape.NumElements() {
		return nil, tensor.Errorf("fromSlice", tensor.ErrShapeMismatch,
			"%d values for shape %v (%d elements)", len(data), shape, shape.NumElements())
	}
	return wrapResult(backendOrDefault(b).CreateView(shape, tensor.DataTypeOf[T](), tensor.Bytes(data)))
}

// Full creates a tensor with every element set to value.
func Full[T DType](shape Shape, value T, b Backend) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, tensor.Errorf("full", tensor.ErrPrecondition, "%v", err)
	}
	data := make([]T, shape.NumElements())
	for i := range data {
		data[i] = value
	}
	return FromSlice(data, shape, b)
}

// ToSlice copies the logical values of t to the host. T must match t's data type.
func ToSlice[T DType](t *Tensor) ([]T, error) {
	const op = "toSlice"
	if t == nil {
		return nil, tensor.Errorf(op, tensor.ErrPrecondition, "nil tensor")
	}
	defer keepAlive(t)
	if want := tensor.DataTypeOf[T](); t.DType() != want {
		return nil, tensor.Errorf(op, tensor.ErrPrecondition, "tensor holds %s, requested %s", t.DType(), want)
	}
	raw, err := t.Bytes()
	if err != nil {
		return nil, err
	}
	out := make([]T, t.NumElements())
	copy(tensor.Bytes(out), raw)
	return out, nil
}

// Shape returns the logical shape.
func (t *Tensor) Shape() Shape { return t.view.Shape() }

// DType returns the element type.
func (t *Tensor) DType() DataType { return t.view.DType() }

// NumElements returns the number of logical elements.
func (t *Tensor) NumElements() int { return t.view.NumElements() }

// Backend returns the owning backend.
func (t *Tensor) Backend() Backend { return t.view.Backend() }

// View returns the underlying view. It stays owned by t.
func (t *Tensor) View() *View { return t.view }

// IsContiguous reports whether t addresses its elements in canonical row-major order.
func (t *Tensor) IsContiguous() bool { return t.view.IsContiguous() }

// String describes the tensor without reading its values.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(%s%v on %s)", t.DType(), t.Shape(), t.Backend().Name())
}

// Release frees the handle's reference to its memory now. The tensor must not
// be used afterwards. Safe to call more than once.
func (t *Tensor) Release() {
	t.cleanup.Stop()
	t.view.Release()
}

// Bytes returns a host copy of the logical values as raw little-endian elements.
func (t *Tensor) Bytes() ([]byte, error) {
	defer keepAlive(t)
	return t.Backend().ReadBytes(t.view)
}

// Index returns a view selecting ranges along the leading axes. Missing
// trailing selectors select everything. The result aliases t's memory.
func (t *Tensor) Index(ranges ...Range) (*Tensor, error) {
	defer keepAlive(t)
	return wrapResult(t.view.Subview(ranges...))
}

// BroadcastTo returns a read-only view of t expanded to shape.
func (t *Tensor) BroadcastTo(shape Shape) (*Tensor, error) {
	defer keepAlive(t)
	return wrapResult(t.view.BroadcastTo(shape))
}

// SwapAxes returns a view with axes i and j exchanged.
func (t *Tensor) SwapAxes(i, j int) (*Tensor, error) {
	defer keepAlive(t)
	return wrapResult(t.view.SwapAxes(i, j))
}

// Reshape returns a view of a contiguous tensor with a new shape of equal volume.
func (t *Tensor) Reshape(shape Shape) (*Tensor, error) {
	defer keepAlive(t)
	return wrapResult(t.view.Reshape(shape))
}

// Set writes src, broadcast to t's shape and converted to t's type, into the
// memory t addresses.
func (t *Tensor) Set(src *Tensor) error {
	defer keepAlive(t, src)
	return t.Backend().Assign(t.view, viewOf(src))
}

// Realize returns a contiguous tensor with the same values. Plain tensors are
// returned as a new handle on the same memory.
func (t *Tensor) Realize() (*Tensor, error) {
	defer keepAlive(t)
	return wrapResult(t.Backend().Realize(t.view))
}

// Copy returns a contiguous copy in new memory.
func (t *Tensor) Copy() (*Tensor, error) {
	defer keepAlive(t)
	return wrapResult(t.Backend().Copy(t.view))
}

// Cast converts the elements to dtype.
func (t *Tensor) Cast(dtype DataType) (*Tensor, error) {
	defer keepAlive(t)
	return wrapResult(t.Backend().Cast(t.view, dtype))
}

// To transfers t to backend b (nil selects DefaultBackend).
func (t *Tensor) To(b Backend) (*Tensor, error) {
	defer keepAlive(t)
	return wrapResult(backendOrDefault(b).From(t.view))
}

// Sync waits for all work issued on t's backend.
func (t *Tensor) Sync() error {
	return t.Backend().Sync()
}
