package gpu

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/born-ml/cortex/internal/tensor"
)

// GPUBackend lowers operations to generated kernels executed on a Device.
//
// Launches are recorded on an in-order queue and return immediately; Sync and
// ReadBytes wait for them. Validation and kernel compilation happen at call time,
// so precondition and capability errors are reported by the call itself.
type GPUBackend struct {
	id            string
	cfg           Config
	device        Device
	caps          Capabilities
	workgroupSize int
	log           *logrus.Entry

	pool    *bufferPool
	queue   *commandQueue
	kernels *kernelCache

	rngMu sync.Mutex
	rng   *rand.Rand

	releaseOnce sync.Once
}

// Compile-time check.
var _ tensor.Backend = (*GPUBackend)(nil)

// New opens the device named by cfg.Device and creates a backend on it.
func New(cfg Config) (*GPUBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := loggerOf(cfg)

	var device Device
	switch cfg.Device {
	case DeviceHost:
		device = NewHostDevice(cfg.Host)
	case DeviceWebGPU:
		d, err := NewWebGPUDevice()
		if err != nil {
			return nil, tensor.WrapError("open", tensor.ErrUnsupported, err)
		}
		device = d
	default:
		d, err := NewWebGPUDevice()
		if err != nil {
			logger.WithError(err).Warn("webgpu unavailable, using host device")
			device = NewHostDevice(cfg.Host)
		} else {
			device = d
		}
	}
	return NewWithDevice(cfg, device)
}

// NewWithDevice creates a backend on an already opened device. The backend owns
// the device and releases it in Release.
func NewWithDevice(cfg Config, device Device) (*GPUBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	caps := device.Capabilities()
	size := cfg.WorkgroupSize
	if size == 0 {
		size = min(256, caps.MaxWorkgroupSize)
	}
	if size <= 0 || size > caps.MaxWorkgroupSize {
		return nil, tensor.Errorf("open", tensor.ErrUnsupported,
			"workgroup size %d exceeds device maximum %d", size, caps.MaxWorkgroupSize)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	g := &GPUBackend{
		id:            uuid.NewString(),
		cfg:           cfg,
		device:        device,
		caps:          caps,
		workgroupSize: size,
		rng:           rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	g.log = loggerOf(cfg).WithFields(logrus.Fields{"backend": g.Name(), "id": g.id})
	g.pool = newBufferPool(device)
	g.queue = newCommandQueue(g.log)
	g.kernels = newKernelCache(device, newTemplateSet(KernelSearchPath(cfg.KernelPath), g.log), g.log)

	g.log.WithFields(logrus.Fields{
		"device":         caps.Name,
		"local_memory":   humanize.IBytes(uint64(caps.LocalMemorySize)), //nolint:gosec // G115: non-negative.
		"memory":         humanize.Bytes(caps.GlobalMemorySize),
		"workgroup_size": size,
		"extensions":     caps.Extensions,
	}).Info("gpu backend ready")
	return g, nil
}

func loggerOf(cfg Config) *logrus.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return logrus.StandardLogger()
}

// Name returns the backend name.
func (g *GPUBackend) Name() string {
	return "GPU"
}

// ID returns the unique instance identifier.
func (g *GPUBackend) ID() string {
	return g.id
}

// SupportsHalf reports whether the device can run Float16 kernels.
func (g *GPUBackend) SupportsHalf() bool {
	return g.caps.HasExtension(ExtensionF16)
}

// Capabilities returns what the device advertises.
func (g *GPUBackend) Capabilities() Capabilities {
	return g.caps
}

// PoolStats returns device buffer pool statistics.
func (g *GPUBackend) PoolStats() PoolStats {
	return g.pool.snapshot()
}

// CacheStats returns kernel cache statistics.
func (g *GPUBackend) CacheStats() CacheStats {
	return g.kernels.stats()
}

// Sync waits for all queued work and returns the first device error since the previous Sync.
func (g *GPUBackend) Sync() error {
	_, span := tracer.Start(context.Background(), "gpu.sync")
	defer span.End()

	err := g.queue.sync()
	if ferr := g.device.Finish(); ferr != nil && err == nil {
		err = tensor.Rekind("sync", tensor.ErrDeviceExecution, ferr)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// Release drains the queue and frees every device resource.
func (g *GPUBackend) Release() {
	g.releaseOnce.Do(func() {
		if err := g.queue.sync(); err != nil {
			g.log.WithError(err).Warn("pending device error at release")
		}
		g.queue.close()
		g.kernels.release()
		g.pool.clear()
		g.device.Release()
		g.log.Debug("gpu backend released")
	})
}

func (g *GPUBackend) withRand(rng *rand.Rand, f func(r *rand.Rand)) {
	if rng != nil {
		f(rng)
		return
	}
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	f(g.rng)
}

// variant picks the local variant when the device has dedicated workgroup memory
// large enough for localBytes.
func (g *GPUBackend) variant(localBytes int) Variant {
	if g.caps.LocalMemoryType == MemoryLocal && localBytes > 0 && localBytes <= g.caps.LocalMemorySize {
		return VariantLocal
	}
	return VariantGlobal
}

// binding pairs a view with the kernel operand it is bound to.
type binding struct {
	view  *tensor.View
	write bool
	name  string
}

func bind(name string, v *tensor.View) binding   { return binding{view: v, name: name} }
func output(name string, v *tensor.View) binding { return binding{view: v, name: name, write: true} }

// launch compiles (or fetches) the kernel for desc with the given bindings and queues
// one dispatch of groups workgroups (0 means desc.Workgroups()).
func (g *GPUBackend) launch(op string, desc KernelDesc, p params, groups int, bindings ...binding) error {
	if desc.WorkgroupSize == 0 {
		desc.WorkgroupSize = g.workgroupSize
	}
	desc.Operands = make([]Operand, len(bindings))
	bufs := make([]DeviceBuffer, len(bindings))
	retained := make([]*tensor.Buffer, len(bindings))
	for i, b := range bindings {
		desc.Operands[i] = Operand{Name: b.name, Type: b.view.DType(), Layout: layoutOf(b.view), Write: b.write}
		bufs[i] = deviceBufferOf(b.view)
		retained[i] = b.view.Buffer()
	}

	prog, err := g.kernels.get(op, desc)
	if err != nil {
		return err
	}
	if groups == 0 {
		groups = desc.Workgroups()
	}
	if groups == 0 {
		return nil
	}
	x, y, err := grid(groups, g.caps.MaxWorkgroupsPerDimension)
	if err != nil {
		return tensor.Errorf(op, tensor.ErrUnsupported, "kernel %s: %v", desc.Name(), err)
	}
	p.Count = uint32(desc.Count) //nolint:gosec // G115: element counts fit u32 on device.
	dispatch := Dispatch{Program: prog, Buffers: bufs, Params: p.bytes(), GridX: x, GridY: y}

	g.queue.enqueue(op, func() error {
		_, span := tracer.Start(context.Background(), "gpu.dispatch")
		defer span.End()
		span.SetAttributes(attribute.String("kernel", desc.Name()), attribute.Int("workgroups", groups))
		if err := g.device.Dispatch(dispatch); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		return nil
	}, retained...)
	return nil
}
