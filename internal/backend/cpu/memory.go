package cpu

import (
	"github.com/dustin/go-humanize"

	"github.com/born-ml/cortex/internal/parallel"
	"github.com/born-ml/cortex/internal/tensor"
)

// hostMemory is tensor.HostMemory with allocation accounting.
type hostMemory struct {
	*tensor.HostMemory
	owner *CPUBackend
	size  int64
}

func (m *hostMemory) Release() {
	m.owner.allocated.Add(-m.size)
	m.HostMemory.Release()
}

// alloc creates a zeroed plain view of shape and dtype.
func (cpu *CPUBackend) alloc(op string, shape tensor.Shape, dtype tensor.DataType) (*tensor.View, error) {
	n := shape.NumElements()
	size := int64(n * dtype.Size())
	if limit := cpu.cfg.MemoryLimit; limit > 0 && uint64(cpu.allocated.Load()+size) > limit {
		//nolint:gosec // G115: size is non-negative.
		return nil, tensor.Errorf(op, tensor.ErrAllocation, "%s requested, %s of %s in use",
			humanize.Bytes(uint64(size)), humanize.Bytes(uint64(cpu.allocated.Load())), humanize.Bytes(limit))
	}
	cpu.allocated.Add(size)
	mem := &hostMemory{HostMemory: tensor.NewHostMemory(int(size)), owner: cpu, size: size}
	buf := tensor.NewBuffer(cpu, dtype, n, mem)
	return tensor.NewPlainView(buf, shape), nil
}

func bytesOf(v *tensor.View) []byte {
	return v.Buffer().Storage().(tensor.HostStorage).Bytes()
}

// CreateView allocates a buffer and optionally copies data (raw little-endian elements) in.
func (cpu *CPUBackend) CreateView(shape tensor.Shape, dtype tensor.DataType, data []byte) (*tensor.View, error) {
	const op = "createTensor"
	if err := tensor.Check(op,
		tensor.That(shape.Validate() == nil, "shape", "invalid shape %v", shape),
		tensor.That(dtype.Valid(), "dtype", "invalid data type %s", dtype),
	); err != nil {
		return nil, err
	}
	if err := tensor.Check(op,
		tensor.That(data == nil || len(data) == shape.NumElements()*dtype.Size(), "data",
			"expected %d bytes for %v %s, got %d", shape.NumElements()*dtype.Size(), shape, dtype, len(data)),
	); err != nil {
		return nil, err
	}

	v, err := cpu.alloc(op, shape, dtype)
	if err != nil {
		return nil, err
	}
	if data != nil {
		copy(bytesOf(v), data)
	}
	cpu.log.WithField("size", humanize.Bytes(uint64(len(bytesOf(v))))).Debug("allocated buffer")
	return v, nil
}

// gather copies the logical values of x into dst (plain, same element count), converting to dst's type.
func (cpu *CPUBackend) gather(dst, x *tensor.View) {
	src, out := bytesOf(x), bytesOf(dst)
	from, to := x.DType(), dst.DType()
	if x.IsContiguous() {
		n := x.NumElements()
		off := x.Offset() * from.Size()
		tensor.ConvertBytes(src[off:off+n*from.Size()], from, out, to, n)
		return
	}

	offsets := x.Offsets()
	if from == to {
		size := from.Size()
		cpu.forEach(len(offsets), func(i int) {
			copy(out[i*size:(i+1)*size], src[offsets[i]*size:(offsets[i]+1)*size])
		})
		return
	}
	cpu.forEach(len(offsets), func(i int) {
		tensor.ConvertElement(src, from, offsets[i], out, to, i)
	})
}

// Realize returns a contiguous view with the same logical values.
// A plain view is returned as an aliasing clone.
func (cpu *CPUBackend) Realize(x *tensor.View) (*tensor.View, error) {
	if err := tensor.Check("realize",
		tensor.NotNil(tensor.Arg("x", x)),
		tensor.OnBackend(cpu, tensor.Arg("x", x)),
	); err != nil {
		return nil, err
	}
	if x.IsPlain() {
		return x.Clone(), nil
	}
	return cpu.materialize("realize", x, x.DType())
}

func (cpu *CPUBackend) materialize(op string, x *tensor.View, dtype tensor.DataType) (*tensor.View, error) {
	out, err := cpu.alloc(op, x.Shape(), dtype)
	if err != nil {
		return nil, err
	}
	cpu.gather(out, x)
	return out, nil
}

// Copy returns a new buffer holding x's logical values.
func (cpu *CPUBackend) Copy(x *tensor.View) (*tensor.View, error) {
	if err := tensor.Check("copy",
		tensor.NotNil(tensor.Arg("x", x)),
		tensor.OnBackend(cpu, tensor.Arg("x", x)),
	); err != nil {
		return nil, err
	}
	return cpu.materialize("copy", x, x.DType())
}

// Cast converts x to dtype. Float to integer truncates toward zero; anything to Bool tests != 0.
func (cpu *CPUBackend) Cast(x *tensor.View, dtype tensor.DataType) (*tensor.View, error) {
	if err := tensor.Check("cast",
		tensor.NotNil(tensor.Arg("x", x)),
		tensor.OnBackend(cpu, tensor.Arg("x", x)),
		tensor.That(dtype.Valid(), "dtype", "invalid data type %s", dtype),
	); err != nil {
		return nil, err
	}
	return cpu.materialize("cast", x, dtype)
}

// Assign scatters src into dst's memory, broadcasting and converting as needed.
func (cpu *CPUBackend) Assign(dst, src *tensor.View) error {
	const op = "assign"
	if err := tensor.Check(op,
		tensor.NotNil(tensor.Arg("dst", dst), tensor.Arg("src", src)),
		tensor.OnBackend(cpu, tensor.Arg("dst", dst), tensor.Arg("src", src)),
		tensor.Writable(tensor.Arg("dst", dst)),
	); err != nil {
		return err
	}
	if dst.Same(src) {
		return nil
	}

	from, err := src.BroadcastTo(dst.Shape())
	if err != nil {
		return tensor.WrapError(op, tensor.ErrShapeMismatch, err)
	}
	defer from.Release()

	if from.Buffer() == dst.Buffer() {
		// Overlapping memory: read everything before writing.
		realized, err := cpu.materialize(op, from, from.DType())
		if err != nil {
			return err
		}
		defer realized.Release()
		from = realized
	}

	in, out := bytesOf(from), bytesOf(dst)
	srcOff, dstOff := from.Offsets(), dst.Offsets()
	fromType, toType := from.DType(), dst.DType()
	if fromType == toType {
		size := toType.Size()
		cpu.forEach(len(dstOff), func(i int) {
			copy(out[dstOff[i]*size:(dstOff[i]+1)*size], in[srcOff[i]*size:(srcOff[i]+1)*size])
		})
		return nil
	}
	cpu.forEach(len(dstOff), func(i int) {
		tensor.ConvertElement(in, fromType, srcOff[i], out, toType, dstOff[i])
	})
	return nil
}

// ReadBytes returns the logical values of x as contiguous little-endian bytes.
func (cpu *CPUBackend) ReadBytes(x *tensor.View) ([]byte, error) {
	if err := tensor.Check("read",
		tensor.NotNil(tensor.Arg("x", x)),
		tensor.OnBackend(cpu, tensor.Arg("x", x)),
	); err != nil {
		return nil, err
	}
	out := make([]byte, x.NumElements()*x.DType().Size())
	if x.IsContiguous() {
		off := x.Offset() * x.DType().Size()
		copy(out, bytesOf(x)[off:])
		return out, nil
	}
	size := x.DType().Size()
	src := bytesOf(x)
	for i, o := range x.Offsets() {
		copy(out[i*size:(i+1)*size], src[o*size:(o+1)*size])
	}
	return out, nil
}

// From transfers x from any backend onto this one, staging through host memory.
func (cpu *CPUBackend) From(x *tensor.View) (*tensor.View, error) {
	const op = "from"
	if err := tensor.Check(op, tensor.NotNil(tensor.Arg("x", x))); err != nil {
		return nil, err
	}
	if x.Backend() == tensor.Backend(cpu) {
		return cpu.Copy(x)
	}
	data, err := x.Backend().ReadBytes(x)
	if err != nil {
		return nil, tensor.WrapError(op, tensor.ErrDeviceExecution, err)
	}
	return cpu.CreateView(x.Shape(), x.DType(), data)
}

func (cpu *CPUBackend) forEach(n int, f func(i int)) {
	parallel.For(n, f, cpu.par)
}
