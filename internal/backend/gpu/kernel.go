package gpu

import (
	"fmt"

	"github.com/born-ml/cortex/internal/tensor"
)

// Variant selects between alternative kernel bodies with identical results.
type Variant string

// Kernel variants.
const (
	// VariantGlobal reads every operand from device memory.
	VariantGlobal Variant = "global"
	// VariantLocal stages shared operands in workgroup memory.
	VariantLocal Variant = "local"
)

// Layout is how one operand is addressed: shape, per-axis stride and offset in elements.
type Layout struct {
	Shape  []int
	Stride []int
	Offset int
}

func layoutOf(v *tensor.View) Layout {
	return Layout{
		Shape:  append([]int(nil), v.Shape()...),
		Stride: append([]int(nil), v.Strides()...),
		Offset: v.Offset(),
	}
}

// Operand is one storage binding of a kernel.
type Operand struct {
	Name   string
	Type   tensor.DataType
	Layout Layout
	Write  bool
}

// KernelDesc holds every generative parameter of a kernel. Two launches with equal
// descriptions share one compiled program.
type KernelDesc struct {
	Kernel        string
	Variant       Variant
	Op            string
	Domain        tensor.DataType // arithmetic type of element-wise kernels
	Operands      []Operand
	Count         int // invocations that do work
	Rows          int
	Width         int
	InputLen      int
	Chunk         int
	LocalSize     int // elements staged in workgroup memory
	WorkgroupSize int
	Template      uint64 // xxhash of the template text, so an edited kernel file gets a new key
}

// Name identifies the kernel in logs and metrics.
func (d KernelDesc) Name() string {
	if d.Op != "" {
		return fmt.Sprintf("%s_%s/%s", d.Kernel, d.Op, d.Variant)
	}
	return d.Kernel + "/" + string(d.Variant)
}

// Workgroups returns the number of workgroups covering d.Count invocations.
func (d KernelDesc) Workgroups() int {
	if d.Count == 0 {
		return 0
	}
	return (d.Count + d.WorkgroupSize - 1) / d.WorkgroupSize
}

// DefaultMaxWorkgroupsPerDimension is the WebGPU default dispatch limit per grid axis.
const DefaultMaxWorkgroupsPerDimension = 65535

// grid folds groups workgroups into an x by y dispatch with both axes at most maxDim.
// Kernels recover the linear workgroup as wid.x + wid.y * x; the x*y - groups
// trailing workgroups find no work.
func grid(groups, maxDim int) (x, y int, err error) {
	if maxDim <= 0 {
		maxDim = DefaultMaxWorkgroupsPerDimension
	}
	if groups <= maxDim {
		return groups, 1, nil
	}
	y = (groups + maxDim - 1) / maxDim
	if y > maxDim {
		return 0, 0, fmt.Errorf("%d workgroups exceed a %dx%d grid", groups, maxDim, maxDim)
	}
	x = (groups + y - 1) / y
	return x, y, nil
}

// params is the uniform block every kernel receives. It is 16 bytes, matching WGSL alignment.
type params struct {
	Count uint32
	Int   int32
	F0    float32
	F1    float32
}

func (p params) bytes() []byte {
	out := make([]byte, 16)
	words := tensor.Slice[uint32](out)
	words[0] = p.Count
	words[1] = uint32(p.Int) //nolint:gosec // G115: bit pattern transfer.
	fw := tensor.Slice[float32](out)
	fw[2] = p.F0
	fw[3] = p.F1
	return out
}

func decodeParams(b []byte) params {
	words := tensor.Slice[uint32](b)
	fw := tensor.Slice[float32](b)
	return params{
		Count: words[0],
		Int:   int32(words[1]), //nolint:gosec // G115: bit pattern transfer.
		F0:    fw[2],
		F1:    fw[3],
	}
}

// indexTerm is one axis contribution to an element offset: ((i / div) % mod) * stride.
// div == 1 skips the division and mod == 0 the modulo.
type indexTerm struct {
	div, mod, stride int
}

// terms lists the axis contributions of l. Axes with stride 0 (broadcast) or size 1
// contribute nothing, and the outermost axis needs no modulo because i < size.
// Both the generated WGSL and the host kernels address operands through these terms.
func (l Layout) terms() []indexTerm {
	var out []indexTerm
	div := 1
	for axis := len(l.Shape) - 1; axis >= 0; axis-- {
		dim, stride := l.Shape[axis], l.Stride[axis]
		if stride != 0 && dim > 1 {
			t := indexTerm{div: div, stride: stride}
			if axis > 0 {
				t.mod = dim
			}
			out = append(out, t)
		}
		div *= dim
	}
	return out
}

// indexer returns the offset function of l, specialised for contiguous layouts.
func (l Layout) indexer() func(i int) int {
	off := l.Offset
	if l.contiguous() {
		return func(i int) int { return off + i }
	}
	terms := l.terms()
	return func(i int) int {
		o := off
		for _, t := range terms {
			c := i / t.div
			if t.mod != 0 {
				c %= t.mod
			}
			o += c * t.stride
		}
		return o
	}
}

// at returns the element offset of linear index i.
func (l Layout) at(i int) int {
	return l.indexer()(i)
}

func (l Layout) contiguous() bool {
	expected := 1
	for axis := len(l.Shape) - 1; axis >= 0; axis-- {
		if l.Shape[axis] > 1 && l.Stride[axis] != expected {
			return false
		}
		expected *= l.Shape[axis]
	}
	return true
}

// UsesF16 reports whether the kernel touches half precision lanes.
func (d KernelDesc) UsesF16() bool {
	for _, op := range d.Operands {
		if op.Type == tensor.Float16 {
			return true
		}
	}
	return false
}
