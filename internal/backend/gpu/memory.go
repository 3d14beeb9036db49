package gpu

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/born-ml/cortex/internal/tensor"
)

// deviceMemory is tensor storage held in a pooled device buffer.
// Elements are stored as device lanes (see laneSize).
type deviceMemory struct {
	buf  DeviceBuffer
	pool *bufferPool
}

func (m *deviceMemory) Release() {
	m.pool.release(m.buf)
}

func deviceBufferOf(v *tensor.View) DeviceBuffer {
	return v.Buffer().Storage().(*deviceMemory).buf
}

// alloc creates a plain view of shape and dtype on a device buffer. Recycled buffers
// hold stale data, so zero requests a clear before any later command reads them.
func (g *GPUBackend) alloc(op string, shape tensor.Shape, dtype tensor.DataType, zero bool) (*tensor.View, error) {
	n := shape.NumElements()
	size := n * laneSize(dtype)
	buf, reused, err := g.pool.acquire(size)
	if err != nil {
		//nolint:gosec // G115: size is non-negative.
		return nil, tensor.WrapError(op, tensor.ErrAllocation,
			fmt.Errorf("%s on %s: %w", humanize.Bytes(uint64(size)), g.caps.Name, err))
	}
	mem := &deviceMemory{buf: buf, pool: g.pool}
	v := tensor.NewPlainView(tensor.NewBuffer(g, dtype, n, mem), shape)
	if reused && zero && size > 0 {
		g.queue.enqueue("clear", func() error {
			return g.device.Write(buf, 0, make([]byte, size))
		}, v.Buffer())
	}
	return v, nil
}

// CreateView allocates a device buffer and optionally uploads data (raw little-endian elements).
func (g *GPUBackend) CreateView(shape tensor.Shape, dtype tensor.DataType, data []byte) (*tensor.View, error) {
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
		tensor.Supported(dtype != tensor.Float16 || g.SupportsHalf(), "device %s lacks %s", g.caps.Name, ExtensionF16),
	); err != nil {
		return nil, err
	}

	v, err := g.alloc(op, shape, dtype, data == nil)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		upload := toLanes(data, dtype)
		if dtype != tensor.Bool {
			upload = append([]byte(nil), data...)
		}
		buf := deviceBufferOf(v)
		g.queue.enqueue("upload", func() error {
			return g.device.Write(buf, 0, upload)
		}, v.Buffer())
	}
	return v, nil
}

// assign queues the strided conversion kernel writing src into dst. Shapes must match.
func (g *GPUBackend) assign(op string, dst, src *tensor.View) error {
	desc := KernelDesc{
		Kernel:  "assign",
		Variant: VariantGlobal,
		Domain:  tensor.ComputeDomain(src.DType(), dst.DType()),
		Count:   dst.NumElements(),
	}
	return g.launch(op, desc, params{}, 0, output("dst", dst), bind("src", src))
}

func (g *GPUBackend) materialize(op string, x *tensor.View, dtype tensor.DataType) (*tensor.View, error) {
	out, err := g.alloc(op, x.Shape(), dtype, false)
	if err != nil {
		return nil, err
	}
	if err := g.assign(op, out, x); err != nil {
		out.Release()
		return nil, err
	}
	return out, nil
}

// Realize returns a contiguous view with the same logical values.
// A plain view is returned as an aliasing clone.
func (g *GPUBackend) Realize(x *tensor.View) (*tensor.View, error) {
	if err := tensor.Check("realize",
		tensor.NotNil(tensor.Arg("x", x)),
		tensor.OnBackend(g, tensor.Arg("x", x)),
	); err != nil {
		return nil, err
	}
	if x.IsPlain() {
		return x.Clone(), nil
	}
	return g.materialize("realize", x, x.DType())
}

// Copy returns a new buffer holding x's logical values.
func (g *GPUBackend) Copy(x *tensor.View) (*tensor.View, error) {
	if err := tensor.Check("copy",
		tensor.NotNil(tensor.Arg("x", x)),
		tensor.OnBackend(g, tensor.Arg("x", x)),
	); err != nil {
		return nil, err
	}
	return g.materialize("copy", x, x.DType())
}

// Cast converts x to dtype with the same rules as the CPU backend.
func (g *GPUBackend) Cast(x *tensor.View, dtype tensor.DataType) (*tensor.View, error) {
	if err := tensor.Check("cast",
		tensor.NotNil(tensor.Arg("x", x)),
		tensor.OnBackend(g, tensor.Arg("x", x)),
		tensor.That(dtype.Valid(), "dtype", "invalid data type %s", dtype),
	); err != nil {
		return nil, err
	}
	return g.materialize("cast", x, dtype)
}

// Assign scatters src into dst's memory, broadcasting and converting as needed.
func (g *GPUBackend) Assign(dst, src *tensor.View) error {
	const op = "assign"
	if err := tensor.Check(op,
		tensor.NotNil(tensor.Arg("dst", dst), tensor.Arg("src", src)),
		tensor.OnBackend(g, tensor.Arg("dst", dst), tensor.Arg("src", src)),
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
		// Invocations run in any order, so overlapping reads go through a copy.
		realized, err := g.materialize(op, from, from.DType())
		if err != nil {
			return err
		}
		defer realized.Release()
		from = realized
	}
	return g.assign(op, dst, from)
}

// ReadBytes waits for pending work and returns the logical values of x as
// contiguous little-endian bytes.
func (g *GPUBackend) ReadBytes(x *tensor.View) ([]byte, error) {
	const op = "read"
	if err := tensor.Check(op,
		tensor.NotNil(tensor.Arg("x", x)),
		tensor.OnBackend(g, tensor.Arg("x", x)),
	); err != nil {
		return nil, err
	}

	src := x
	if !x.IsContiguous() {
		realized, err := g.Realize(x)
		if err != nil {
			return nil, err
		}
		defer realized.Release()
		src = realized
	}

	dt := src.DType()
	lane := laneSize(dt)
	offset, size := src.Offset()*lane, src.NumElements()*lane
	buf := deviceBufferOf(src)
	var data []byte
	if size > 0 {
		g.queue.enqueue(op, func() error {
			var err error
			data, err = g.device.Read(buf, offset, size)
			return err
		}, src.Buffer())
	}
	if err := g.Sync(); err != nil {
		return nil, err
	}
	if size == 0 {
		return []byte{}, nil
	}
	return fromLanes(data, dt), nil
}

// From transfers x from any backend onto this one, staging through host memory.
func (g *GPUBackend) From(x *tensor.View) (*tensor.View, error) {
	const op = "from"
	if err := tensor.Check(op, tensor.NotNil(tensor.Arg("x", x))); err != nil {
		return nil, err
	}
	if x.Backend() == tensor.Backend(g) {
		return g.Copy(x)
	}
	data, err := x.Backend().ReadBytes(x)
	if err != nil {
		return nil, tensor.WrapError(op, tensor.ErrDeviceExecution, err)
	}
	return g.CreateView(x.Shape(), x.DType(), data)
}
