package gpu

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/pbnjay/memory"

	"github.com/born-ml/cortex/internal/parallel"
	"github.com/born-ml/cortex/internal/tensor"
)

// HostConfig describes the software device. Its capability fields are configurable so
// callers can force a kernel variant or a missing extension.
type HostConfig struct {
	Workers                   int    `yaml:"workers" validate:"gte=1"`
	LocalMemorySize           int    `yaml:"local_memory_size" validate:"gte=0"`
	LocalMemoryType           string `yaml:"local_memory_type" validate:"oneof=none local global"`
	MaxWorkgroupSize          int    `yaml:"max_workgroup_size" validate:"oneof=1 2 4 8 16 32 64 128 256 512 1024"`
	// MaxWorkgroupsPerDimension of 0 means DefaultMaxWorkgroupsPerDimension.
	MaxWorkgroupsPerDimension int    `yaml:"max_workgroups_per_dimension" validate:"gte=0"`
	Half                      bool   `yaml:"half"`
	MemorySize                uint64 `yaml:"memory_size"`
}

// DefaultHostConfig returns a device with 32 KiB of local memory and f16 support.
func DefaultHostConfig() HostConfig {
	return HostConfig{
		Workers:                   runtime.NumCPU(),
		LocalMemorySize:           32 * 1024,
		LocalMemoryType:           MemoryLocal.String(),
		MaxWorkgroupSize:          256,
		MaxWorkgroupsPerDimension: DefaultMaxWorkgroupsPerDimension,
		Half:                      true,
		MemorySize:                memory.TotalMemory(),
	}
}

// HostDevice runs kernels on host goroutines, one workgroup per task. Each compiled
// program is bound to the Go implementation of its kernel and variant.
type HostDevice struct {
	caps      Capabilities
	par       parallel.Config
	allocated atomic.Int64
}

// Compile-time check.
var _ Device = (*HostDevice)(nil)

// NewHostDevice creates a software device.
func NewHostDevice(cfg HostConfig) *HostDevice {
	caps := Capabilities{
		Name:             "host",
		LocalMemorySize:  cfg.LocalMemorySize,
		LocalMemoryType:  ParseMemoryType(cfg.LocalMemoryType),
		MaxWorkgroupSize: cfg.MaxWorkgroupSize,
		GlobalMemorySize: cfg.MemorySize,

		MaxWorkgroupsPerDimension: cfg.MaxWorkgroupsPerDimension,
	}
	if cfg.Half {
		caps.Extensions = append(caps.Extensions, ExtensionF16)
	}
	return &HostDevice{
		caps: caps,
		par: parallel.Config{
			Enabled:      cfg.Workers > 1,
			NumWorkers:   cfg.Workers,
			MinChunkSize: 1,
		},
	}
}

// Capabilities implements Device.
func (d *HostDevice) Capabilities() Capabilities {
	return d.caps
}

type hostBuffer struct {
	data []byte
	dev  *HostDevice
}

func (b *hostBuffer) Size() int { return len(b.data) }

func (b *hostBuffer) Release() {
	b.dev.allocated.Add(-int64(len(b.data)))
	b.data = nil
}

// ErrOutOfMemory is returned when an allocation exceeds the device memory size.
var ErrOutOfMemory = errors.New("device out of memory")

// Alloc implements Device.
func (d *HostDevice) Alloc(size int) (DeviceBuffer, error) {
	total := d.allocated.Add(int64(size))
	if limit := d.caps.GlobalMemorySize; limit > 0 && uint64(total) > limit {
		d.allocated.Add(-int64(size))
		return nil, fmt.Errorf("%w: %d bytes requested", ErrOutOfMemory, size)
	}
	return &hostBuffer{data: make([]byte, size), dev: d}, nil
}

func hostBytes(buf DeviceBuffer) []byte {
	return buf.(*hostBuffer).data
}

// Write implements Device.
func (d *HostDevice) Write(buf DeviceBuffer, offset int, data []byte) error {
	dst := hostBytes(buf)
	if offset < 0 || offset+len(data) > len(dst) {
		return fmt.Errorf("write of %d bytes at %d overflows buffer of %d", len(data), offset, len(dst))
	}
	copy(dst[offset:], data)
	return nil
}

// Read implements Device.
func (d *HostDevice) Read(buf DeviceBuffer, offset, size int) ([]byte, error) {
	src := hostBytes(buf)
	if offset < 0 || offset+size > len(src) {
		return nil, fmt.Errorf("read of %d bytes at %d overflows buffer of %d", size, offset, len(src))
	}
	return append([]byte(nil), src[offset:offset+size]...), nil
}

// Copy implements Device.
func (d *HostDevice) Copy(dst DeviceBuffer, dstOffset int, src DeviceBuffer, srcOffset, size int) error {
	data, err := d.Read(src, srcOffset, size)
	if err != nil {
		return err
	}
	return d.Write(dst, dstOffset, data)
}

type hostProgram struct {
	desc   KernelDesc
	code   string
	kernel hostKernel
}

func (p *hostProgram) Desc() KernelDesc { return p.desc }
func (p *hostProgram) Release()         {}

// Compile binds the generated source to the host implementation of its kernel.
func (d *HostDevice) Compile(src KernelSource) (Program, error) {
	desc := src.Desc
	if err := checkSource(d.caps, src); err != nil {
		return nil, err
	}
	k, ok := hostKernels[desc.Kernel][desc.Variant]
	if !ok {
		return nil, tensor.Errorf("compile", tensor.ErrUnsupported, "no host implementation of %s", desc.Name())
	}
	return &hostProgram{desc: desc, code: src.Code, kernel: k}, nil
}

// Dispatch runs every workgroup of the launch before returning. Workgroup (x, y) runs
// as linear group x + y*GridX, the index the WGSL kernels compute.
func (d *HostDevice) Dispatch(launch Dispatch) error {
	p, ok := launch.Program.(*hostProgram)
	if !ok {
		return fmt.Errorf("program %T was not compiled by the host device", launch.Program)
	}
	bufs := make([][]byte, len(launch.Buffers))
	for i, b := range launch.Buffers {
		bufs[i] = hostBytes(b)
	}
	call := &hostCall{
		desc: &p.desc,
		bufs: bufs,
		p:    decodeParams(launch.Params),
	}
	parallel.For(launch.GridX*launch.GridY, func(group int) {
		p.kernel(call, group)
	}, d.par)
	return nil
}

// Finish implements Device; Dispatch is synchronous.
func (d *HostDevice) Finish() error {
	return nil
}

// Release implements Device.
func (d *HostDevice) Release() {}
