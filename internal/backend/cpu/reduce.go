package cpu

import (
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/cortex/internal/tensor"
)

// Sum partitions x (read in row-major order) into consecutive chunks of chunkSize
// elements and sums each independently. The result has shape {volume / chunkSize}.
// dtype tensor.Infer picks the type by the promotion rules.
func (cpu *CPUBackend) Sum(x *tensor.View, chunkSize int, dtype tensor.DataType) (*tensor.View, error) {
	const op = "sum"
	if err := tensor.Check(op,
		tensor.NotNil(tensor.Arg("x", x)),
		tensor.OnBackend(cpu, tensor.Arg("x", x)),
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
		dtype = tensor.PromoteTypes(x.DType(), x.DType(), cpu.SupportsHalf())
	}

	chunks := n / chunkSize
	out, err := cpu.alloc(op, tensor.Shape{chunks}, dtype)
	if err != nil {
		return nil, err
	}
	res := bytesOf(out)

	src, inType := bytesOf(x), x.DType()
	if x.IsContiguous() && inType == tensor.Float32 && dtype == tensor.Float32 {
		data := tensor.Slice[float32](src)[x.Offset() : x.Offset()+n]
		ones := make([]float32, chunkSize)
		for i := range ones {
			ones[i] = 1
		}
		sums := tensor.Slice[float32](res)
		cpu.forEach(chunks, func(c int) {
			chunk := blas32.Vector{N: chunkSize, Inc: 1, Data: data[c*chunkSize : (c+1)*chunkSize]}
			sums[c] = blas32.Dot(chunk, blas32.Vector{N: chunkSize, Inc: 1, Data: ones})
		})
		return out, nil
	}

	offsets := x.Offsets()
	if dtype.IsFloat() || inType.IsFloat() {
		cpu.forEach(chunks, func(c int) {
			var acc float32
			for _, off := range offsets[c*chunkSize : (c+1)*chunkSize] {
				acc += tensor.LoadAs[float32](src, inType, off)
			}
			tensor.StoreAs(res, dtype, c, acc)
		})
		return out, nil
	}
	cpu.forEach(chunks, func(c int) {
		var acc int32
		for _, off := range offsets[c*chunkSize : (c+1)*chunkSize] {
			acc += tensor.LoadAs[int32](src, inType, off)
		}
		tensor.StoreAs(res, dtype, c, acc)
	})
	return out, nil
}
