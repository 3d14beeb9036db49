package tensor

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// Storage is backend-owned memory behind a Buffer.
// Host backends use *HostMemory, device backends their own handle type.
type Storage interface {
	// Release frees the memory. Called exactly once, when the last reference is gone.
	Release()
}

// Buffer is a reference-counted allocation of Len() elements of one DataType.
// It is owned by the backend that created it and never shared across backend instances.
//
// Views retain the buffer on creation and release it on Release, so the storage
// lives exactly as long as the longest-lived view (or in-flight device command).
type Buffer struct {
	storage  Storage
	backend  Backend
	dtype    DataType
	length   int
	refCount atomic.Int32
	mu       sync.Mutex // For safe deallocation
	freed    bool
}

// NewBuffer wraps storage allocated by b. The returned buffer has no references;
// the first view created on it takes ownership.
func NewBuffer(b Backend, dtype DataType, length int, storage Storage) *Buffer {
	return &Buffer{
		storage: storage,
		backend: b,
		dtype:   dtype,
		length:  length,
	}
}

// Storage returns the backend memory handle.
func (buf *Buffer) Storage() Storage {
	return buf.storage
}

// Backend returns the owning backend.
func (buf *Buffer) Backend() Backend {
	return buf.backend
}

// DType returns the element type.
func (buf *Buffer) DType() DataType {
	return buf.dtype
}

// Len returns the number of elements.
func (buf *Buffer) Len() int {
	return buf.length
}

// ByteSize returns Len() * DType().Size().
func (buf *Buffer) ByteSize() int {
	return buf.length * buf.dtype.Size()
}

// RefCount returns the number of live references.
func (buf *Buffer) RefCount() int {
	return int(buf.refCount.Load())
}

// Freed reports whether the storage has been released.
func (buf *Buffer) Freed() bool {
	buf.mu.Lock()
	defer buf.mu.Unlock()
	return buf.freed
}

// Retain increments the reference count.
func (buf *Buffer) Retain() {
	buf.refCount.Add(1)
}

// Release decrements the reference count and frees the storage when it reaches 0.
func (buf *Buffer) Release() {
	n := buf.refCount.Add(-1)
	Assert(n >= 0, "buffer released more times than retained")
	if n == 0 {
		buf.mu.Lock()
		defer buf.mu.Unlock()
		if !buf.freed {
			buf.freed = true
			buf.storage.Release()
		}
	}
}

// HostStorage is Storage addressable from Go without a device transfer.
type HostStorage interface {
	Storage
	Bytes() []byte
}

// HostMemory is Storage backed by Go memory.
type HostMemory struct {
	data []byte
}

// NewHostMemory allocates size zeroed bytes.
func NewHostMemory(size int) *HostMemory {
	return &HostMemory{data: make([]byte, size)}
}

// Bytes returns the raw memory.
func (m *HostMemory) Bytes() []byte {
	return m.data
}

// Release drops the memory.
func (m *HostMemory) Release() {
	m.data = nil
}

// Slice reinterprets b as a []T without copying.
func Slice[T any](b []byte) []T {
	if len(b) == 0 {
		return nil
	}
	var zero T
	n := len(b) / int(unsafe.Sizeof(zero))
	//nolint:gosec // unsafe.Slice for zero-copy performance, length derived from len(b)
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n)
}

// Bytes reinterprets s as raw bytes without copying.
func Bytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	//nolint:gosec // unsafe.Slice for zero-copy performance, length derived from len(s)
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(zero)))
}
