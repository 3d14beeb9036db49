package gpu

import (
	"github.com/born-ml/cortex/internal/tensor"
)

// Unary applies op position-wise and returns a new contiguous result.
func (g *GPUBackend) Unary(op tensor.UnaryOp, x *tensor.View) (*tensor.View, error) {
	name := op.String()
	if err := tensor.Check(name,
		tensor.NotNil(tensor.Arg("x", x)),
		tensor.OnBackend(g, tensor.Arg("x", x)),
	); err != nil {
		return nil, err
	}

	outType := tensor.UnaryResultType(op, x.DType(), g.SupportsHalf())
	out, err := g.alloc(name, x.Shape(), outType, false)
	if err != nil {
		return nil, err
	}
	desc := KernelDesc{
		Kernel:  "unary",
		Variant: VariantGlobal,
		Op:      name,
		Domain:  tensor.ComputeDomain(x.DType(), outType),
		Count:   x.NumElements(),
	}
	if err := g.launch(name, desc, params{}, 0, output("out", out), bind("x", x)); err != nil {
		out.Release()
		return nil, err
	}
	return out, nil
}

// Binary applies op position-wise over broadcast operands and returns a new contiguous result.
func (g *GPUBackend) Binary(op tensor.BinaryOp, a, b *tensor.View) (*tensor.View, error) {
	name := op.String()
	if err := tensor.Check(name,
		tensor.NotNil(tensor.Arg("a", a), tensor.Arg("b", b)),
		tensor.OnBackend(g, tensor.Arg("a", a), tensor.Arg("b", b)),
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

	outType := tensor.BinaryResultType(op, a.DType(), b.DType(), g.SupportsHalf())
	out, err := g.alloc(name, shape, outType, false)
	if err != nil {
		return nil, err
	}
	desc := KernelDesc{
		Kernel:  "binary",
		Variant: VariantGlobal,
		Op:      name,
		Domain:  tensor.ComputeDomain(a.DType(), b.DType()),
		Count:   shape.NumElements(),
	}
	if err := g.launch(name, desc, params{}, 0, output("out", out), bind("a", ab), bind("b", bb)); err != nil {
		out.Release()
		return nil, err
	}
	return out, nil
}

// Sum partitions x (read in row-major order) into consecutive chunks of chunkSize
// elements and sums each independently. Devices with workgroup memory reduce each
// chunk with a tree inside one workgroup.
func (g *GPUBackend) Sum(x *tensor.View, chunkSize int, dtype tensor.DataType) (*tensor.View, error) {
	const op = "sum"
	if err := tensor.Check(op,
		tensor.NotNil(tensor.Arg("x", x)),
		tensor.OnBackend(g, tensor.Arg("x", x)),
		tensor.That(chunkSize > 0, "chunkSize", "chunk size must be positive, got %d", chunkSize),
		tensor.That(dtype == tensor.Infer || dtype.Valid(), "dtype", "invalid data type %s", dtype),
	); err != nil {
		return nil, err
	}
	n := x.NumElements()
	if err := tensor.Check(op,
		tensor.That(n%chunkSize == 0, "chunkSize", "chunk size %d does not divide %d elements", chunkSize, n),
	); err != nil {
		return nil, err
	}
	if dtype == tensor.Infer {
		dtype = tensor.PromoteTypes(x.DType(), x.DType(), g.SupportsHalf())
	}

	chunks := n / chunkSize
	out, err := g.alloc(op, tensor.Shape{chunks}, dtype, false)
	if err != nil {
		return nil, err
	}
	desc := KernelDesc{
		Kernel:  "sum",
		Variant: g.variant(g.workgroupSize * 4),
		Domain:  tensor.ComputeDomain(x.DType(), dtype),
		Count:   chunks,
		Chunk:   chunkSize,
	}
	groups := 0
	if desc.Variant == VariantLocal {
		desc.LocalSize = g.workgroupSize
		groups = chunks
	}
	if chunks > 0 {
		if err := g.launch(op, desc, params{}, groups, output("out", out), bind("x", x)); err != nil {
			out.Release()
			return nil, err
		}
	}
	return out, nil
}
