package tensor

import (
	"fmt"
	"sync/atomic"
)

// View describes an addressable window into a Buffer: shape, per-axis stride (in
// elements) and base offset. Views never allocate; several views may alias one buffer.
//
// A view is contiguous when its stride equals the canonical row-major stride of its
// shape, and plain when it is also at offset 0.
type View struct {
	buffer   *Buffer
	shape    Shape
	stride   []int
	offset   int
	released atomic.Bool
}

// NewView creates a view over buf and retains it.
func NewView(buf *Buffer, shape Shape, stride []int, offset int) *View {
	Assert(len(shape) == len(stride), "view rank mismatch: shape %v stride %v", shape, stride)
	buf.Retain()
	return &View{
		buffer: buf,
		shape:  shape.Clone(),
		stride: append([]int(nil), stride...),
		offset: offset,
	}
}

// NewPlainView creates a canonical-stride view at offset 0.
func NewPlainView(buf *Buffer, shape Shape) *View {
	return NewView(buf, shape, shape.ComputeStrides(), 0)
}

// Shape returns the view's shape.
func (v *View) Shape() Shape {
	return v.shape
}

// Strides returns the view's per-axis strides in elements.
func (v *View) Strides() []int {
	return v.stride
}

// Offset returns the element offset of the first position.
func (v *View) Offset() int {
	return v.offset
}

// Buffer returns the referenced buffer.
func (v *View) Buffer() *Buffer {
	return v.buffer
}

// Backend returns the backend owning the buffer.
func (v *View) Backend() Backend {
	return v.buffer.backend
}

// DType returns the element type.
func (v *View) DType() DataType {
	return v.buffer.dtype
}

// NumElements returns the number of addressable positions.
func (v *View) NumElements() int {
	return v.shape.NumElements()
}

// IsContiguous reports whether the stride equals the canonical stride for the shape.
func (v *View) IsContiguous() bool {
	canonical := v.shape.ComputeStrides()
	for i := range canonical {
		if canonical[i] != v.stride[i] {
			return false
		}
	}
	return true
}

// IsPlain reports whether the view is contiguous and starts at offset 0.
func (v *View) IsPlain() bool {
	return v.offset == 0 && v.IsContiguous()
}

// Released reports whether Release has been called.
func (v *View) Released() bool {
	return v.released.Load()
}

// Clone returns another view with identical parameters sharing the buffer.
func (v *View) Clone() *View {
	return NewView(v.buffer, v.shape, v.stride, v.offset)
}

// Release drops this view's reference to its buffer. Safe to call more than once.
func (v *View) Release() {
	if v.released.CompareAndSwap(false, true) {
		v.buffer.Release()
	}
}

// Same reports whether v and other address exactly the same positions.
func (v *View) Same(other *View) bool {
	if v.buffer != other.buffer || v.offset != other.offset || !v.shape.Equal(other.shape) {
		return false
	}
	for i := range v.stride {
		if v.stride[i] != other.stride[i] {
			return false
		}
	}
	return true
}

// OffsetOf returns the buffer element offset of the i-th logical (row-major) position.
func (v *View) OffsetOf(i int) int {
	off := v.offset
	for axis := len(v.shape) - 1; axis >= 0; axis-- {
		dim := v.shape[axis]
		off += (i % dim) * v.stride[axis]
		i /= dim
	}
	return off
}

// Offsets returns the buffer element offset of every logical position in row-major order.
func (v *View) Offsets() []int {
	n := v.NumElements()
	out := make([]int, n)
	if v.IsContiguous() {
		for i := range out {
			out[i] = v.offset + i
		}
		return out
	}

	coord := make([]int, len(v.shape))
	off := v.offset
	for i := 0; i < n; i++ {
		out[i] = off
		// Increment the coordinate like an odometer.
		for axis := len(v.shape) - 1; axis >= 0; axis-- {
			coord[axis]++
			off += v.stride[axis]
			if coord[axis] < v.shape[axis] {
				break
			}
			off -= coord[axis] * v.stride[axis]
			coord[axis] = 0
		}
	}
	return out
}

// String returns a human-readable representation of the view.
func (v *View) String() string {
	return fmt.Sprintf("View[%s]%v stride=%v offset=%d", v.DType(), v.shape, v.stride, v.offset)
}

// Subview selects a window with one Range per leading axis; missing trailing axes select all.
//
// The result keeps the parent's strides, so it is generally not contiguous. Leading axes
// of size 1 are dropped; a view of exactly one element has shape {1}.
func (v *View) Subview(ranges ...Range) (*View, error) {
	if len(ranges) > len(v.shape) {
		return nil, Errorf("view", ErrPrecondition, "%d ranges for a %d-dimensional view %v",
			len(ranges), len(v.shape), v.shape)
	}

	shape := make(Shape, 0, len(v.shape))
	stride := make([]int, 0, len(v.shape))
	offset := v.offset
	for axis := range v.shape {
		r := All()
		if axis < len(ranges) {
			r = ranges[axis]
		}
		start, size, err := r.resolve(v.shape[axis])
		if err != nil {
			return nil, Errorf("view", ErrPrecondition, "axis %d: %v", axis, err)
		}
		offset += start * v.stride[axis]
		if size == 1 && len(shape) == 0 {
			continue // drop leading size-1 axes
		}
		shape = append(shape, size)
		stride = append(stride, v.stride[axis])
	}

	if len(shape) == 0 {
		shape = Shape{1}
		stride = []int{1}
	}
	return NewView(v.buffer, shape, stride, offset), nil
}

// BroadcastTo returns a view of v read as shape target, with zero strides on
// padded and size-1 axes. No memory is allocated.
func (v *View) BroadcastTo(target Shape) (*View, error) {
	stride, err := broadcastStrides(v.shape, v.stride, target)
	if err != nil {
		return nil, WrapError("broadcast", ErrShapeMismatch, err)
	}
	return NewView(v.buffer, target, stride, v.offset), nil
}

// SwapAxes returns a view with axes i and j exchanged.
func (v *View) SwapAxes(i, j int) (*View, error) {
	n := len(v.shape)
	if i < 0 {
		i += n
	}
	if j < 0 {
		j += n
	}
	if i < 0 || i >= n || j < 0 || j >= n {
		return nil, Errorf("swapAxes", ErrPrecondition, "axes (%d, %d) out of range for %d dimensions", i, j, n)
	}
	shape := v.shape.Clone()
	stride := append([]int(nil), v.stride...)
	shape[i], shape[j] = shape[j], shape[i]
	stride[i], stride[j] = stride[j], stride[i]
	return NewView(v.buffer, shape, stride, v.offset), nil
}

// Reshape returns a view with a new shape of equal volume. v must be contiguous.
func (v *View) Reshape(shape Shape) (*View, error) {
	if err := shape.Validate(); err != nil {
		return nil, Errorf("reshape", ErrPrecondition, "%v", err)
	}
	if shape.NumElements() != v.NumElements() {
		return nil, Errorf("reshape", ErrShapeMismatch, "incompatible shapes: %v -> %v (different number of elements)",
			v.shape, shape)
	}
	if !v.IsContiguous() {
		return nil, Errorf("reshape", ErrPrecondition, "view must be contiguous, realize it first")
	}
	return NewView(v.buffer, shape, shape.ComputeStrides(), v.offset), nil
}
