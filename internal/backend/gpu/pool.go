package gpu

import (
	"sync"
)

// sizeClass buckets device buffers for reuse.
type sizeClass int

const (
	smallBuffers  sizeClass = iota // < 4KB
	mediumBuffers                  // 4KB-1MB
	largeBuffers                   // > 1MB
	numSizeClasses
)

const (
	smallThreshold  = 4 * 1024    // 4KB
	mediumThreshold = 1024 * 1024 // 1MB
	maxPooled       = 100         // Max buffers per class
)

// PoolStats reports buffer pool usage.
type PoolStats struct {
	Allocated uint64
	Released  uint64
	Hits      uint64
	Misses    uint64
	Pooled    int
}

// bufferPool recycles device buffers released by tensors.
// Released buffers only return here once no queued command references them.
type bufferPool struct {
	device Device

	mu      sync.Mutex
	classes [numSizeClasses][]DeviceBuffer
	stats   PoolStats
}

func newBufferPool(device Device) *bufferPool {
	return &bufferPool{device: device}
}

func classify(size int) sizeClass {
	switch {
	case size < smallThreshold:
		return smallBuffers
	case size < mediumThreshold:
		return mediumBuffers
	default:
		return largeBuffers
	}
}

// acquire returns a buffer of at least size bytes. Reused buffers keep stale contents.
func (p *bufferPool) acquire(size int) (DeviceBuffer, bool, error) {
	size = max(size, 4)
	p.mu.Lock()
	class := classify(size)
	for i, buf := range p.classes[class] {
		if buf.Size() >= size && buf.Size() <= 2*size {
			p.classes[class] = append(p.classes[class][:i], p.classes[class][i+1:]...)
			p.stats.Hits++
			p.mu.Unlock()
			return buf, true, nil
		}
	}
	p.stats.Misses++
	p.mu.Unlock()

	buf, err := p.device.Alloc(size)
	if err != nil {
		// Give pooled memory back to the device and retry once.
		p.clear()
		buf, err = p.device.Alloc(size)
		if err != nil {
			return nil, false, err
		}
	}
	p.mu.Lock()
	p.stats.Allocated++
	p.mu.Unlock()
	return buf, false, nil
}

// release returns buf to the pool, or frees it if its class is full.
func (p *bufferPool) release(buf DeviceBuffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Released++
	class := classify(buf.Size())
	if len(p.classes[class]) >= maxPooled {
		buf.Release()
		return
	}
	p.classes[class] = append(p.classes[class], buf)
}

// clear frees every pooled buffer.
func (p *bufferPool) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for class := range p.classes {
		for _, buf := range p.classes[class] {
			buf.Release()
		}
		p.classes[class] = nil
	}
}

func (p *bufferPool) snapshot() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	for _, bufs := range p.classes {
		s.Pooled += len(bufs)
	}
	return s
}
