// Package gpu implements the device backend: operations are lowered to WGSL compute
// kernels generated per call shape, compiled once per distinct kernel description and
// executed in order on a single command queue.
package gpu

import (
	"slices"

	"github.com/born-ml/cortex/internal/tensor"
)

// MemoryType describes the on-chip memory a device offers to workgroups.
type MemoryType int

// Memory types.
const (
	MemoryNone MemoryType = iota
	MemoryLocal
	MemoryGlobal
)

// String returns the memory type name.
func (m MemoryType) String() string {
	switch m {
	case MemoryLocal:
		return "local"
	case MemoryGlobal:
		return "global"
	default:
		return "none"
	}
}

// ParseMemoryType is the inverse of String.
func ParseMemoryType(s string) MemoryType {
	switch s {
	case "local":
		return MemoryLocal
	case "global":
		return MemoryGlobal
	default:
		return MemoryNone
	}
}

// ExtensionF16 names half precision support in shaders.
const ExtensionF16 = "f16"

// Capabilities describes what a device can run.
type Capabilities struct {
	Name             string
	LocalMemorySize  int // bytes of workgroup memory
	LocalMemoryType  MemoryType
	MaxWorkgroupSize int

	// MaxWorkgroupsPerDimension bounds each axis of a dispatch grid; 0 means
	// DefaultMaxWorkgroupsPerDimension.
	MaxWorkgroupsPerDimension int

	GlobalMemorySize uint64
	Extensions       []string
}

// HasExtension reports whether the device advertises ext.
func (c Capabilities) HasExtension(ext string) bool {
	return slices.Contains(c.Extensions, ext)
}

// DeviceBuffer is device memory.
type DeviceBuffer interface {
	Size() int
	Release()
}

// Program is a compiled kernel.
type Program interface {
	Desc() KernelDesc
	Release()
}

// KernelSource is generated kernel code with the description it was generated from.
type KernelSource struct {
	Desc KernelDesc
	Code string
}

// Dispatch is one kernel launch.
type Dispatch struct {
	Program    Program
	Buffers    []DeviceBuffer // storage bindings 0..n-1, in kernel order
	Params     []byte         // uniform block bound after the storage buffers
	// GridX by GridY workgroups are launched; the kernel linearises them and
	// skips invocations past the launch count.
	GridX, GridY int
}

// Device executes compiled kernels on its own memory.
//
// Implementations:
//   - HostDevice: software execution on host goroutines
//   - WebGPUDevice: go-webgpu (windows)
type Device interface {
	Capabilities() Capabilities
	Alloc(size int) (DeviceBuffer, error)
	Write(buf DeviceBuffer, offset int, data []byte) error
	Read(buf DeviceBuffer, offset, size int) ([]byte, error)
	Copy(dst DeviceBuffer, dstOffset int, src DeviceBuffer, srcOffset, size int) error
	Compile(src KernelSource) (Program, error)
	Dispatch(d Dispatch) error
	// Finish blocks until every submitted launch has completed.
	Finish() error
	Release()
}

// checkSource rejects kernels the device cannot run: half precision without the
// extension, more workgroup memory than offered, or source naga does not accept.
func checkSource(caps Capabilities, src KernelSource) error {
	desc := src.Desc
	if desc.UsesF16() && !caps.HasExtension(ExtensionF16) {
		return tensor.Errorf("compile", tensor.ErrUnsupported, "device %s lacks %s", caps.Name, ExtensionF16)
	}
	if desc.Variant == VariantLocal && (caps.LocalMemoryType != MemoryLocal || desc.LocalSize*4 > caps.LocalMemorySize) {
		return tensor.Errorf("compile", tensor.ErrUnsupported, "kernel %s needs %d bytes of local memory, device has %d (%s)",
			desc.Name(), desc.LocalSize*4, caps.LocalMemorySize, caps.LocalMemoryType)
	}
	if desc.WorkgroupSize > caps.MaxWorkgroupSize {
		return tensor.Errorf("compile", tensor.ErrUnsupported, "kernel %s uses workgroup size %d, device maximum is %d",
			desc.Name(), desc.WorkgroupSize, caps.MaxWorkgroupSize)
	}
	return validateWGSL(desc, src.Code)
}
