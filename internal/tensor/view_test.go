package tensor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hostOnly satisfies Backend for view bookkeeping tests; operations are never called.
type hostOnly struct {
	Backend
}

func (hostOnly) Name() string { return "host" }
func (hostOnly) ID() string   { return "test" }

func newInt32View(t *testing.T, shape Shape, values []int32) *View {
	t.Helper()
	mem := NewHostMemory(len(values) * Int32.Size())
	copy(Slice[int32](mem.Bytes()), values)
	buf := NewBuffer(hostOnly{}, Int32, len(values), mem)
	return NewPlainView(buf, shape)
}

func gather(v *View) []int32 {
	data := Slice[int32](v.Buffer().Storage().(*HostMemory).Bytes())
	out := make([]int32, 0, v.NumElements())
	for _, off := range v.Offsets() {
		out = append(out, data[off])
	}
	return out
}

func iota32(n int) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(i)
	}
	return out
}

func TestSubview(t *testing.T) {
	v := newInt32View(t, Shape{4, 4}, iota32(16))
	defer v.Release()

	sub, err := v.Subview(Span(0, 2), Span(0, 2))
	require.NoError(t, err)
	defer sub.Release()

	assert.True(t, sub.Shape().Equal(Shape{2, 2}))
	assert.Equal(t, []int{4, 1}, sub.Strides(), "subview keeps the parent stride")
	assert.False(t, sub.IsContiguous())
	assert.Equal(t, []int32{0, 1, 4, 5}, gather(sub))
}

func TestSubviewDropsLeadingAxes(t *testing.T) {
	v := newInt32View(t, Shape{4, 4}, iota32(16))
	defer v.Release()

	row, err := v.Subview(At(2))
	require.NoError(t, err)
	defer row.Release()
	assert.True(t, row.Shape().Equal(Shape{4}))
	assert.Equal(t, []int32{8, 9, 10, 11}, gather(row))

	one, err := v.Subview(At(-1), At(-1))
	require.NoError(t, err)
	defer one.Release()
	assert.True(t, one.Shape().Equal(Shape{1}))
	assert.Equal(t, []int32{15}, gather(one))
}

func TestSubviewOutOfRange(t *testing.T) {
	v := newInt32View(t, Shape{4, 4}, iota32(16))
	defer v.Release()

	_, err := v.Subview(Span(2, 6))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPrecondition))

	_, err = v.Subview(All(), All(), All())
	require.Error(t, err)
}

func TestBroadcastTo(t *testing.T) {
	v := newInt32View(t, Shape{3}, []int32{1, 2, 3})
	defer v.Release()

	b, err := v.BroadcastTo(Shape{2, 3})
	require.NoError(t, err)
	defer b.Release()

	assert.Equal(t, []int{0, 1}, b.Strides())
	assert.Equal(t, []int32{1, 2, 3, 1, 2, 3}, gather(b))
	assert.Same(t, v.Buffer(), b.Buffer())

	_, err = v.BroadcastTo(Shape{2, 4})
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestSwapAxesAndReshape(t *testing.T) {
	v := newInt32View(t, Shape{2, 3}, iota32(6))
	defer v.Release()

	tr, err := v.SwapAxes(0, 1)
	require.NoError(t, err)
	defer tr.Release()
	assert.True(t, tr.Shape().Equal(Shape{3, 2}))
	assert.Equal(t, []int32{0, 3, 1, 4, 2, 5}, gather(tr))

	_, err = tr.Reshape(Shape{6})
	assert.True(t, errors.Is(err, ErrPrecondition), "non-contiguous reshape must fail")

	flat, err := v.Reshape(Shape{6})
	require.NoError(t, err)
	defer flat.Release()
	assert.True(t, flat.IsPlain())

	_, err = v.Reshape(Shape{4})
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestViewOffsetOf(t *testing.T) {
	v := newInt32View(t, Shape{4, 4}, iota32(16))
	defer v.Release()
	sub, err := v.Subview(Span(1, 3), Span(2, 4))
	require.NoError(t, err)
	defer sub.Release()

	offsets := sub.Offsets()
	for i := range offsets {
		assert.Equal(t, offsets[i], sub.OffsetOf(i))
	}
}

func TestBufferRefCount(t *testing.T) {
	v := newInt32View(t, Shape{4}, iota32(4))
	buf := v.Buffer()
	assert.Equal(t, 1, buf.RefCount())

	c := v.Clone()
	assert.Equal(t, 2, buf.RefCount())
	assert.True(t, c.Same(v))

	v.Release()
	v.Release() // idempotent
	assert.Equal(t, 1, buf.RefCount())
	assert.False(t, buf.Freed())

	c.Release()
	assert.Equal(t, 0, buf.RefCount())
	assert.True(t, buf.Freed())
}

func TestCheckReportsOperand(t *testing.T) {
	v := newInt32View(t, Shape{2, 2}, iota32(4))
	defer v.Release()

	err := Check("cellActivity", DTypeIn(Arg("input", v), Bool))
	require.Error(t, err)

	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "cellActivity", opErr.Op)
	assert.Equal(t, "input", opErr.Operand)
	assert.True(t, errors.Is(err, ErrPrecondition))
	assert.NotEmpty(t, opErr.Caller)

	b, err := v.BroadcastTo(Shape{3, 2, 2})
	require.NoError(t, err)
	defer b.Release()
	assert.Error(t, Check("assign", Writable(Arg("dst", b))))
	assert.NoError(t, Check("assign", Writable(Arg("dst", v))))
}

func TestAssertPanics(t *testing.T) {
	assert.Panics(t, func() { Assert(false, "boom %d", 1) })
	assert.NotPanics(t, func() { Assert(true, "fine") })
}
