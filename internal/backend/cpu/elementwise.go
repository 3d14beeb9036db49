package cpu

import (
	"github.com/born-ml/cortex/internal/tensor"
)

// Unary applies op position-wise and returns a new contiguous result.
func (cpu *CPUBackend) Unary(op tensor.UnaryOp, x *tensor.View) (*tensor.View, error) {
	name := op.String()
	if err := tensor.Check(name,
		tensor.NotNil(tensor.Arg("x", x)),
		tensor.OnBackend(cpu, tensor.Arg("x", x)),
	); err != nil {
		return nil, err
	}

	outType := tensor.UnaryResultType(op, x.DType(), cpu.SupportsHalf())
	out, err := cpu.alloc(name, x.Shape(), outType)
	if err != nil {
		return nil, err
	}

	in, res := bytesOf(x), bytesOf(out)
	inType := x.DType()
	offsets := x.Offsets()
	if tensor.ComputeDomain(inType, outType) == tensor.Int32 {
		cpu.forEach(len(offsets), func(i int) {
			v := tensor.LoadAs[int32](in, inType, offsets[i])
			tensor.StoreAs(res, outType, i, tensor.EvalUnary(op, v))
		})
		return out, nil
	}
	cpu.forEach(len(offsets), func(i int) {
		v := tensor.LoadAs[float32](in, inType, offsets[i])
		tensor.StoreAs(res, outType, i, tensor.EvalUnary(op, v))
	})
	return out, nil
}

// Binary applies op position-wise over broadcast operands and returns a new contiguous result.
func (cpu *CPUBackend) Binary(op tensor.BinaryOp, a, b *tensor.View) (*tensor.View, error) {
	name := op.String()
	if err := tensor.Check(name,
		tensor.NotNil(tensor.Arg("a", a), tensor.Arg("b", b)),
		tensor.OnBackend(cpu, tensor.Arg("a", a), tensor.Arg("b", b)),
	); err != nil {
		return nil, err
	}

	shape, _, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		return nil, tensor.WrapError(name, tensor.ErrShapeMismatch, err)
	}
	ab, err := a.BroadcastTo(shape)
	if err != nil {
		return nil, err
	}
	defer ab.Release()
	bb, err := b.BroadcastTo(shape)
	if err != nil {
		return nil, err
	}
	defer bb.Release()

	outType := tensor.BinaryResultType(op, a.DType(), b.DType(), cpu.SupportsHalf())
	out, err := cpu.alloc(name, shape, outType)
	if err != nil {
		return nil, err
	}

	x, y, res := bytesOf(ab), bytesOf(bb), bytesOf(out)
	xt, yt := a.DType(), b.DType()
	xo, yo := ab.Offsets(), bb.Offsets()
	if tensor.ComputeDomain(xt, yt) == tensor.Int32 {
		cpu.forEach(len(xo), func(i int) {
			v := tensor.EvalBinary(op, tensor.LoadAs[int32](x, xt, xo[i]), tensor.LoadAs[int32](y, yt, yo[i]))
			tensor.StoreAs(res, outType, i, v)
		})
		return out, nil
	}
	cpu.forEach(len(xo), func(i int) {
		v := tensor.EvalBinary(op, tensor.LoadAs[float32](x, xt, xo[i]), tensor.LoadAs[float32](y, yt, yo[i]))
		tensor.StoreAs(res, outType, i, v)
	})
	return out, nil
}
