package cpu

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/cortex/internal/tensor"
)

// newTestBackend creates a backend that splits even tiny loops across workers.
func newTestBackend(t testing.TB) *CPUBackend {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Workers = 4
	cfg.MinChunkSize = 2
	cfg.Seed = 42
	cpu, err := New(cfg)
	require.NoError(t, err)
	return cpu
}

func fromSlice[T tensor.DType](t testing.TB, cpu *CPUBackend, shape tensor.Shape, data []T) *tensor.View {
	t.Helper()
	v, err := cpu.CreateView(shape, tensor.DataTypeOf[T](), tensor.Bytes(data))
	require.NoError(t, err)
	return v
}

func toSlice[T tensor.DType](t testing.TB, cpu *CPUBackend, v *tensor.View) []T {
	t.Helper()
	b, err := cpu.ReadBytes(v)
	require.NoError(t, err)
	return append([]T{}, tensor.Slice[T](b)...)
}

func iota32(n int) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(i)
	}
	return out
}

func TestCreateView(t *testing.T) {
	cpu := newTestBackend(t)

	v := fromSlice(t, cpu, tensor.Shape{2, 2}, []float32{1, 2, 3, 4})
	defer v.Release()
	assert.True(t, v.IsPlain())
	assert.Equal(t, []float32{1, 2, 3, 4}, toSlice[float32](t, cpu, v))

	zeros, err := cpu.CreateView(tensor.Shape{3}, tensor.Int32, nil)
	require.NoError(t, err)
	defer zeros.Release()
	assert.Equal(t, []int32{0, 0, 0}, toSlice[int32](t, cpu, zeros))

	_, err = cpu.CreateView(tensor.Shape{3}, tensor.Int32, make([]byte, 4))
	assert.True(t, errors.Is(err, tensor.ErrPrecondition))
}

func TestMemoryLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MemoryLimit = 64
	cpu, err := New(cfg)
	require.NoError(t, err)

	v, err := cpu.CreateView(tensor.Shape{16}, tensor.Float32, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(64), cpu.Allocated())

	_, err = cpu.CreateView(tensor.Shape{1}, tensor.Float32, nil)
	assert.True(t, errors.Is(err, tensor.ErrAllocation))

	v.Release()
	assert.Equal(t, int64(0), cpu.Allocated())
}

func TestRealize(t *testing.T) {
	cpu := newTestBackend(t)
	x := fromSlice(t, cpu, tensor.Shape{4, 4}, iota32(16))
	defer x.Release()

	sub, err := x.Subview(tensor.Span(0, 2), tensor.Span(0, 2))
	require.NoError(t, err)
	defer sub.Release()

	r1, err := cpu.Realize(sub)
	require.NoError(t, err)
	defer r1.Release()
	assert.True(t, r1.IsPlain())
	assert.Equal(t, []int32{0, 1, 4, 5}, toSlice[int32](t, cpu, r1))

	r2, err := cpu.Realize(r1)
	require.NoError(t, err)
	defer r2.Release()
	assert.Equal(t, toSlice[int32](t, cpu, r1), toSlice[int32](t, cpu, r2))
	assert.Same(t, r1.Buffer(), r2.Buffer(), "realizing a plain view aliases it")
}

func TestAssign(t *testing.T) {
	cpu := newTestBackend(t)
	x := fromSlice(t, cpu, tensor.Shape{4, 4}, iota32(16))
	defer x.Release()
	buf := x.Buffer()

	// Broadcast a float row into an int32 window.
	row := fromSlice(t, cpu, tensor.Shape{2}, []float32{-1.7, 9.2})
	defer row.Release()
	window, err := x.Subview(tensor.Span(1, 3), tensor.Span(2, 4))
	require.NoError(t, err)
	defer window.Release()

	require.NoError(t, cpu.Assign(window, row))
	assert.Same(t, buf, x.Buffer())
	assert.Equal(t, []int32{
		0, 1, 2, 3,
		4, 5, -1, 9,
		8, 9, -1, 9,
		12, 13, 14, 15,
	}, toSlice[int32](t, cpu, x))
}

func TestAssignSelfIsNoop(t *testing.T) {
	cpu := newTestBackend(t)
	x := fromSlice(t, cpu, tensor.Shape{3}, []float32{1, 2, 3})
	defer x.Release()

	require.NoError(t, cpu.Assign(x, x))
	assert.Equal(t, []float32{1, 2, 3}, toSlice[float32](t, cpu, x))
}

func TestAssignOverlapping(t *testing.T) {
	cpu := newTestBackend(t)
	x := fromSlice(t, cpu, tensor.Shape{5}, []int32{1, 2, 3, 4, 5})
	defer x.Release()

	dst, err := x.Subview(tensor.Span(1, 5))
	require.NoError(t, err)
	defer dst.Release()
	src, err := x.Subview(tensor.Span(0, 4))
	require.NoError(t, err)
	defer src.Release()

	require.NoError(t, cpu.Assign(dst, src))
	assert.Equal(t, []int32{1, 1, 2, 3, 4}, toSlice[int32](t, cpu, x))
}

func TestAssignRejectsBroadcastDestination(t *testing.T) {
	cpu := newTestBackend(t)
	x := fromSlice(t, cpu, tensor.Shape{3}, []int32{1, 2, 3})
	defer x.Release()
	b, err := x.BroadcastTo(tensor.Shape{2, 3})
	require.NoError(t, err)
	defer b.Release()

	err = cpu.Assign(b, b.Clone())
	assert.True(t, errors.Is(err, tensor.ErrPrecondition))

	y := fromSlice(t, cpu, tensor.Shape{4}, []int32{1, 2, 3, 4})
	defer y.Release()
	err = cpu.Assign(x, y)
	assert.True(t, errors.Is(err, tensor.ErrShapeMismatch))
}

func TestCrossBackendOperands(t *testing.T) {
	a, b := newTestBackend(t), newTestBackend(t)
	x := fromSlice(t, a, tensor.Shape{2}, []float32{1, 2})
	defer x.Release()
	y := fromSlice(t, b, tensor.Shape{2}, []float32{1, 2})
	defer y.Release()

	_, err := a.Binary(tensor.Add, x, y)
	require.Error(t, err)
	assert.True(t, errors.Is(err, tensor.ErrPrecondition))
	assert.Contains(t, err.Error(), "operand lives on backend")

	moved, err := a.From(y)
	require.NoError(t, err)
	defer moved.Release()
	assert.Equal(t, []float32{1, 2}, toSlice[float32](t, a, moved))
}

func TestCast(t *testing.T) {
	cpu := newTestBackend(t)
	x := fromSlice(t, cpu, tensor.Shape{4}, []float32{0, 2.9, -2.9, 0.5})
	defer x.Release()

	same, err := cpu.Cast(x, tensor.Float32)
	require.NoError(t, err)
	defer same.Release()
	assert.Equal(t, toSlice[float32](t, cpu, x), toSlice[float32](t, cpu, same))

	ints, err := cpu.Cast(x, tensor.Int32)
	require.NoError(t, err)
	defer ints.Release()
	assert.Equal(t, []int32{0, 2, -2, 0}, toSlice[int32](t, cpu, ints))

	bools, err := cpu.Cast(x, tensor.Bool)
	require.NoError(t, err)
	defer bools.Release()
	assert.Equal(t, []bool{false, true, true, true}, toSlice[bool](t, cpu, bools))

	halves, err := cpu.Cast(x, tensor.Float16)
	require.NoError(t, err)
	defer halves.Release()
	back, err := cpu.Cast(halves, tensor.Float32)
	require.NoError(t, err)
	defer back.Release()
	assert.InDeltaSlice(t, []float32{0, 2.9, -2.9, 0.5}, toSlice[float32](t, cpu, back), 2e-3)
}

func TestCopyIsIndependent(t *testing.T) {
	cpu := newTestBackend(t)
	x := fromSlice(t, cpu, tensor.Shape{2}, []int32{1, 2})
	defer x.Release()

	c, err := cpu.Copy(x)
	require.NoError(t, err)
	defer c.Release()
	assert.NotSame(t, x.Buffer(), c.Buffer())

	ones := fromSlice(t, cpu, tensor.Shape{1}, []int32{7})
	defer ones.Release()
	require.NoError(t, cpu.Assign(x, ones))
	assert.Equal(t, []int32{1, 2}, toSlice[int32](t, cpu, c))
}

func TestUnary(t *testing.T) {
	cpu := newTestBackend(t)
	x := fromSlice(t, cpu, tensor.Shape{3}, []float32{1, 2, 4})
	defer x.Release()

	tests := []struct {
		op   tensor.UnaryOp
		want []float32
	}{
		{tensor.Exp, []float32{float32(math.E), float32(math.Exp(2)), float32(math.Exp(4))}},
		{tensor.Negate, []float32{-1, -2, -4}},
		{tensor.Inverse, []float32{1, 0.5, 0.25}},
		{tensor.Log, []float32{0, float32(math.Ln2), float32(2 * math.Ln2)}},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			y, err := cpu.Unary(tt.op, x)
			require.NoError(t, err)
			defer y.Release()
			assert.Equal(t, tensor.Float32, y.DType())
			assert.InDeltaSlice(t, tt.want, toSlice[float32](t, cpu, y), 1e-5)
		})
	}

	b := fromSlice(t, cpu, tensor.Shape{3}, []bool{true, false, true})
	defer b.Release()
	not, err := cpu.Unary(tensor.LogicalNot, b)
	require.NoError(t, err)
	defer not.Release()
	assert.Equal(t, []bool{false, true, false}, toSlice[bool](t, cpu, not))

	neg, err := cpu.Unary(tensor.Negate, b)
	require.NoError(t, err)
	defer neg.Release()
	assert.Equal(t, tensor.Int32, neg.DType())
	assert.Equal(t, []int32{-1, 0, -1}, toSlice[int32](t, cpu, neg))
}

func TestBinary(t *testing.T) {
	cpu := newTestBackend(t)
	a := fromSlice(t, cpu, tensor.Shape{2, 3}, []int32{1, 2, 3, 4, 5, 6})
	defer a.Release()
	b := fromSlice(t, cpu, tensor.Shape{3}, []int32{2, 0, 3})
	defer b.Release()

	tests := []struct {
		op   tensor.BinaryOp
		want []int32
	}{
		{tensor.Add, []int32{3, 2, 6, 6, 5, 9}},
		{tensor.Subtract, []int32{-1, 2, 0, 2, 5, 3}},
		{tensor.Mul, []int32{2, 0, 9, 8, 0, 18}},
		{tensor.Div, []int32{0, 2, 1, 2, 5, 2}}, // x / 0 yields x
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			y, err := cpu.Binary(tt.op, a, b)
			require.NoError(t, err)
			defer y.Release()
			assert.True(t, y.Shape().Equal(tensor.Shape{2, 3}))
			assert.Equal(t, tensor.Int32, y.DType())
			assert.Equal(t, tt.want, toSlice[int32](t, cpu, y))
		})
	}

	gt, err := cpu.Binary(tensor.Greater, a, b)
	require.NoError(t, err)
	defer gt.Release()
	assert.Equal(t, []bool{false, true, false, true, true, true}, toSlice[bool](t, cpu, gt))

	f := fromSlice(t, cpu, tensor.Shape{1}, []float32{0.5})
	defer f.Release()
	mixed, err := cpu.Binary(tensor.Mul, a, f)
	require.NoError(t, err)
	defer mixed.Release()
	assert.Equal(t, tensor.Float32, mixed.DType())
	assert.Equal(t, []float32{0.5, 1, 1.5, 2, 2.5, 3}, toSlice[float32](t, cpu, mixed))

	bad := fromSlice(t, cpu, tensor.Shape{7}, []int32{1, 2, 3, 4, 5, 6, 7})
	defer bad.Release()
	_, err = cpu.Binary(tensor.Add, a, bad)
	assert.True(t, errors.Is(err, tensor.ErrShapeMismatch))
}

func TestLogicalOps(t *testing.T) {
	cpu := newTestBackend(t)
	a := fromSlice(t, cpu, tensor.Shape{4}, []bool{true, true, false, false})
	defer a.Release()
	b := fromSlice(t, cpu, tensor.Shape{4}, []bool{true, false, true, false})
	defer b.Release()

	and, err := cpu.Binary(tensor.LogicalAnd, a, b)
	require.NoError(t, err)
	defer and.Release()
	assert.Equal(t, []bool{true, false, false, false}, toSlice[bool](t, cpu, and))

	or, err := cpu.Binary(tensor.LogicalOr, a, b)
	require.NoError(t, err)
	defer or.Release()
	assert.Equal(t, []bool{true, true, true, false}, toSlice[bool](t, cpu, or))
}

func TestSum(t *testing.T) {
	cpu := newTestBackend(t)

	f := fromSlice(t, cpu, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	defer f.Release()
	s, err := cpu.Sum(f, 3, tensor.Infer)
	require.NoError(t, err)
	defer s.Release()
	assert.True(t, s.Shape().Equal(tensor.Shape{2}))
	assert.Equal(t, []float32{6, 15}, toSlice[float32](t, cpu, s))

	b := fromSlice(t, cpu, tensor.Shape{4}, []bool{true, true, false, true})
	defer b.Release()
	count, err := cpu.Sum(b, 4, tensor.Infer)
	require.NoError(t, err)
	defer count.Release()
	assert.Equal(t, tensor.Int32, count.DType())
	assert.Equal(t, []int32{3}, toSlice[int32](t, cpu, count))

	// Strided input sums in logical order.
	tr, err := f.SwapAxes(0, 1)
	require.NoError(t, err)
	defer tr.Release()
	cols, err := cpu.Sum(tr, 2, tensor.Int32)
	require.NoError(t, err)
	defer cols.Release()
	assert.Equal(t, []int32{5, 7, 9}, toSlice[int32](t, cpu, cols))

	_, err = cpu.Sum(f, 4, tensor.Infer)
	assert.True(t, errors.Is(err, tensor.ErrPrecondition))
}
