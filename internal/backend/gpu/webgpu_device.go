//go:build windows

package gpu

import (
	"fmt"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
)

// WebGPUDevice runs kernels through go-webgpu.
type WebGPUDevice struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	caps     Capabilities
	fence    *wgpu.Buffer
}

// Compile-time check.
var _ Device = (*WebGPUDevice)(nil)

// NewWebGPUDevice opens the high-performance adapter.
func NewWebGPUDevice() (dev Device, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			dev = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("webgpu: failed to create instance: %w", err)
	}
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", err)
	}
	info, err := adapter.GetInfo()
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to query adapter: %w", err)
	}
	caps := webgpuCapabilities(info, adapter)

	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", err)
	}
	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	d := &WebGPUDevice{
		instance: instance,
		adapter:  adapter,
		device:   device,
		queue:    queue,
		caps:     caps,
	}
	d.fence = d.createBuffer(4, wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc|wgpu.BufferUsageCopyDst)
	return d, nil
}

// webgpuCapabilities reports the WebGPU default limits the device is requested with,
// lowered where the adapter reports less. Half precision is not requested.
func webgpuCapabilities(info *wgpu.AdapterInfoGo, adapter *wgpu.Adapter) Capabilities {
	caps := Capabilities{
		Name:             "webgpu:" + info.Device,
		LocalMemorySize:  16 * 1024,
		LocalMemoryType:  MemoryLocal,
		MaxWorkgroupSize: 256,

		MaxWorkgroupsPerDimension: DefaultMaxWorkgroupsPerDimension,
	}
	supported, err := adapter.GetLimits()
	if err != nil {
		return caps
	}
	limits := supported.Limits
	if n := int(limits.MaxComputeWorkgroupStorageSize); n > 0 {
		caps.LocalMemorySize = min(caps.LocalMemorySize, n)
	}
	if n := int(min(limits.MaxComputeInvocationsPerWorkgroup, limits.MaxComputeWorkgroupSizeX)); n > 0 {
		// Kernel workgroup sizes are powers of two.
		for caps.MaxWorkgroupSize > n {
			caps.MaxWorkgroupSize /= 2
		}
	}
	if n := int(limits.MaxComputeWorkgroupsPerDimension); n > 0 {
		caps.MaxWorkgroupsPerDimension = min(caps.MaxWorkgroupsPerDimension, n)
	}
	return caps
}

// Capabilities implements Device.
func (d *WebGPUDevice) Capabilities() Capabilities {
	return d.caps
}

type webgpuBuffer struct {
	buf  *wgpu.Buffer
	size int
}

func (b *webgpuBuffer) Size() int { return b.size }
func (b *webgpuBuffer) Release() { b.buf.Release() }

func align4(n int) uint64 {
	return uint64((n + 3) &^ 3) //nolint:gosec // G115: n is non-negative.
}

func (d *WebGPUDevice) createBuffer(size int, usage wgpu.BufferUsage) *wgpu.Buffer {
	return d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: usage,
		Size:  align4(max(size, 4)),
	})
}

// createMapped creates a buffer initialized with data through MappedAtCreation.
func (d *WebGPUDevice) createMapped(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := align4(max(len(data), 4))
	buffer := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(mappedPtr), size), data)
	buffer.Unmap()
	return buffer
}

// Alloc implements Device. WebGPU zero-initializes new buffers.
func (d *WebGPUDevice) Alloc(size int) (DeviceBuffer, error) {
	buf := d.createBuffer(size, wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc|wgpu.BufferUsageCopyDst)
	if buf == nil {
		return nil, fmt.Errorf("%w: %d bytes requested", ErrOutOfMemory, size)
	}
	return &webgpuBuffer{buf: buf, size: size}, nil
}

// Write uploads data through the queue. Writes must be 4-byte aligned,
// so a ragged tail is merged with the bytes already on the device.
func (d *WebGPUDevice) Write(buf DeviceBuffer, offset int, data []byte) error {
	dst := buf.(*webgpuBuffer)
	if offset < 0 || offset+len(data) > dst.size {
		return fmt.Errorf("write of %d bytes at %d overflows buffer of %d", len(data), offset, dst.size)
	}
	if len(data) == 0 {
		return nil
	}
	start := offset &^ 3
	end := int(align4(offset + len(data)))
	payload := data
	if start != offset || end != offset+len(data) {
		current, err := d.Read(buf, start, min(end, dst.size)-start)
		if err != nil {
			return err
		}
		payload = make([]byte, end-start)
		copy(payload, current)
		copy(payload[offset-start:], data)
	}

	d.queue.WriteBuffer(dst.buf, uint64(start), payload) //nolint:gosec // G115: offsets are non-negative.
	return nil
}

// submit finishes encoder into one command buffer and queues it.
func (d *WebGPUDevice) submit(encoder *wgpu.CommandEncoder) {
	commands := encoder.Finish(nil)
	encoder.Release()
	d.queue.Submit(commands)
	commands.Release()
}

// Read copies size bytes at offset into a mappable staging buffer and maps it.
func (d *WebGPUDevice) Read(buf DeviceBuffer, offset, size int) ([]byte, error) {
	src := buf.(*webgpuBuffer)
	if offset < 0 || offset+size > src.size {
		return nil, fmt.Errorf("read of %d bytes at %d overflows buffer of %d", size, offset, src.size)
	}
	start := offset &^ 3
	span := align4(offset + size - start)
	if limit := align4(max(src.size, 4)) - uint64(start); span > limit { //nolint:gosec // G115: non-negative.
		span = limit
	}

	staging := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  span,
	})
	defer staging.Release()

	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src.buf, uint64(start), staging, 0, span) //nolint:gosec // G115: non-negative.
	d.submit(encoder)

	if err := staging.MapAsync(d.device, wgpu.MapModeRead, 0, span); err != nil {
		return nil, fmt.Errorf("failed to map staging buffer: %w", err)
	}
	mappedPtr := staging.GetMappedRange(0, span)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mapped := unsafe.Slice((*byte)(mappedPtr), span)
	out := make([]byte, size)
	copy(out, mapped[offset-start:])
	staging.Unmap()
	return out, nil
}

// Copy implements Device.
func (d *WebGPUDevice) Copy(dst DeviceBuffer, dstOffset int, src DeviceBuffer, srcOffset, size int) error {
	if dstOffset%4 != 0 || srcOffset%4 != 0 || size%4 != 0 {
		data, err := d.Read(src, srcOffset, size)
		if err != nil {
			return err
		}
		return d.Write(dst, dstOffset, data)
	}
	encoder := d.device.CreateCommandEncoder(nil)
	//nolint:gosec // G115: offsets are non-negative.
	encoder.CopyBufferToBuffer(src.(*webgpuBuffer).buf, uint64(srcOffset), dst.(*webgpuBuffer).buf, uint64(dstOffset), uint64(size))
	d.submit(encoder)
	return nil
}

type webgpuProgram struct {
	desc     KernelDesc
	shader   *wgpu.ShaderModule
	pipeline *wgpu.ComputePipeline
}

func (p *webgpuProgram) Desc() KernelDesc { return p.desc }

func (p *webgpuProgram) Release() {
	p.pipeline.Release()
	p.shader.Release()
}

// Compile builds a compute pipeline with an automatic bind group layout.
func (d *WebGPUDevice) Compile(src KernelSource) (Program, error) {
	if err := checkSource(d.caps, src); err != nil {
		return nil, err
	}
	shader := d.device.CreateShaderModuleWGSL(src.Code)
	if shader == nil {
		return nil, fmt.Errorf("kernel %s: shader compilation failed", src.Desc.Name())
	}
	pipeline := d.device.CreateComputePipelineSimple(nil, shader, "main")
	if pipeline == nil {
		shader.Release()
		return nil, fmt.Errorf("kernel %s: pipeline creation failed", src.Desc.Name())
	}
	return &webgpuProgram{desc: src.Desc, shader: shader, pipeline: pipeline}, nil
}

// Dispatch records one compute pass and submits it.
func (d *WebGPUDevice) Dispatch(launch Dispatch) error {
	p, ok := launch.Program.(*webgpuProgram)
	if !ok {
		return fmt.Errorf("program %T was not compiled by a webgpu device", launch.Program)
	}
	if limit := d.caps.MaxWorkgroupsPerDimension; launch.GridX > limit || launch.GridY > limit {
		return fmt.Errorf("kernel %s: %dx%d grid exceeds the dispatch limit %d",
			p.desc.Name(), launch.GridX, launch.GridY, limit)
	}

	uniform := d.createMapped(launch.Params, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
	defer uniform.Release()

	entries := make([]wgpu.BindGroupEntry, 0, len(launch.Buffers)+1)
	for i, b := range launch.Buffers {
		buf := b.(*webgpuBuffer)
		//nolint:gosec // G115: binding index and size are small and non-negative.
		entries = append(entries, wgpu.BufferBindingEntry(uint32(i), buf.buf, 0, align4(max(buf.size, 4))))
	}
	entries = append(entries, wgpu.BufferBindingEntry(uint32(len(launch.Buffers)), uniform, 0, 16)) //nolint:gosec // G115

	layout := p.pipeline.GetBindGroupLayout(0)
	defer layout.Release()
	bindGroup := d.device.CreateBindGroupSimple(layout, entries)
	defer bindGroup.Release()

	encoder := d.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(uint32(launch.GridX), uint32(launch.GridY), 1) //nolint:gosec // G115: checked above.
	pass.End()
	pass.Release()
	d.submit(encoder)
	return nil
}

// Finish waits for the device queue by mapping a readback of the fence buffer,
// which completes only after every earlier submission.
func (d *WebGPUDevice) Finish() error {
	_, err := d.Read(&webgpuBuffer{buf: d.fence, size: 4}, 0, 4)
	return err
}

// Release implements Device.
func (d *WebGPUDevice) Release() {
	d.fence.Release()
	d.device.Release()
	d.adapter.Release()
	d.instance.Release()
}
