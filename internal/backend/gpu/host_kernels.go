package gpu

import (
	"github.com/born-ml/cortex/internal/tensor"
)

// hostKernel executes one workgroup of a launch. The invocations of a workgroup run
// in sequence and workgroups run in parallel, so table kernels parallelise by row.
type hostKernel func(c *hostCall, group int)

type hostCall struct {
	desc *KernelDesc
	bufs [][]byte
	p    params
}

// hostKernels binds kernel names and variants to their host implementations.
// Each one mirrors the WGSL template of the same name.
var hostKernels = map[string]map[Variant]hostKernel{
	"assign":            {VariantGlobal: hostAssign},
	"unary":             {VariantGlobal: hostUnary},
	"binary":            {VariantGlobal: hostBinary},
	"sum":               {VariantGlobal: hostSumGlobal, VariantLocal: hostSumLocal},
	"cell_activity":     {VariantGlobal: hostCellActivity, VariantLocal: hostCellActivity},
	"learn_correlation": {VariantGlobal: hostLearnCorrelation},
	"global_inhibition": {VariantGlobal: hostGlobalInhibition, VariantLocal: hostGlobalInhibitionTiled},
	"sort_synapse":      {VariantGlobal: hostSortSynapse},
	"burst":             {VariantGlobal: hostBurst},
	"reverse_burst":     {VariantGlobal: hostReverseBurst},
	"compact_on_bits":   {VariantGlobal: hostCompactOnBits},
	"grow_synapses":     {VariantGlobal: hostGrowSynapses},
	"decay_synapses":    {VariantGlobal: hostDecaySynapses},
}

var (
	unaryOps  = map[string]tensor.UnaryOp{}
	binaryOps = map[string]tensor.BinaryOp{}
)

func init() {
	for op := tensor.Exp; op <= tensor.LogicalNot; op++ {
		unaryOps[op.String()] = op
	}
	for op := tensor.Add; op <= tensor.LogicalOr; op++ {
		binaryOps[op.String()] = op
	}
}

// operand returns the binding named name and its memory.
func (c *hostCall) operand(name string) (Operand, []byte) {
	for i, op := range c.desc.Operands {
		if op.Name == name {
			return op, c.bufs[i]
		}
	}
	panic("cortex: internal error: kernel " + c.desc.Kernel + " has no operand " + name)
}

// lanes returns the elements of a contiguous binding starting at its offset.
func lanes[T any](c *hostCall, name string) []T {
	op, buf := c.operand(name)
	return tensor.Slice[T](buf)[op.Layout.Offset:]
}

// each calls f for every live global invocation id of the workgroup.
func (c *hostCall) each(group int, f func(i int)) {
	size := c.desc.WorkgroupSize
	for lid := 0; lid < size; lid++ {
		i := group*size + lid
		if i >= int(c.p.Count) {
			return
		}
		f(i)
	}
}

func hostAssign(c *hostCall, group int) {
	dst, out := c.operand("dst")
	src, in := c.operand("src")
	dstAt, srcAt := dst.Layout.indexer(), src.Layout.indexer()
	if c.desc.Domain == tensor.Int32 {
		c.each(group, func(i int) {
			storeLane(out, dst.Type, dstAt(i), loadLane[int32](in, src.Type, srcAt(i)))
		})
		return
	}
	c.each(group, func(i int) {
		storeLane(out, dst.Type, dstAt(i), loadLane[float32](in, src.Type, srcAt(i)))
	})
}

func hostUnary(c *hostCall, group int) {
	out, res := c.operand("out")
	x, in := c.operand("x")
	outAt, xAt := out.Layout.indexer(), x.Layout.indexer()
	op := unaryOps[c.desc.Op]
	if c.desc.Domain == tensor.Int32 {
		c.each(group, func(i int) {
			storeLane(res, out.Type, outAt(i), tensor.EvalUnary(op, loadLane[int32](in, x.Type, xAt(i))))
		})
		return
	}
	c.each(group, func(i int) {
		storeLane(res, out.Type, outAt(i), tensor.EvalUnary(op, loadLane[float32](in, x.Type, xAt(i))))
	})
}

func hostBinary(c *hostCall, group int) {
	out, res := c.operand("out")
	a, am := c.operand("a")
	b, bm := c.operand("b")
	outAt, aAt, bAt := out.Layout.indexer(), a.Layout.indexer(), b.Layout.indexer()
	op := binaryOps[c.desc.Op]
	if c.desc.Domain == tensor.Int32 {
		c.each(group, func(i int) {
			v := tensor.EvalBinary(op, loadLane[int32](am, a.Type, aAt(i)), loadLane[int32](bm, b.Type, bAt(i)))
			storeLane(res, out.Type, outAt(i), v)
		})
		return
	}
	c.each(group, func(i int) {
		v := tensor.EvalBinary(op, loadLane[float32](am, a.Type, aAt(i)), loadLane[float32](bm, b.Type, bAt(i)))
		storeLane(res, out.Type, outAt(i), v)
	})
}

func hostSumGlobal(c *hostCall, group int) {
	if c.desc.Domain == tensor.Int32 {
		sumGlobal[int32](c, group)
		return
	}
	sumGlobal[float32](c, group)
}

func sumGlobal[T tensor.Number](c *hostCall, group int) {
	out, res := c.operand("out")
	x, in := c.operand("x")
	outAt, xAt := out.Layout.indexer(), x.Layout.indexer()
	chunk := c.desc.Chunk
	c.each(group, func(ch int) {
		var acc T
		for j := 0; j < chunk; j++ {
			acc += loadLane[T](in, x.Type, xAt(ch*chunk+j))
		}
		storeLane(res, out.Type, outAt(ch), acc)
	})
}

func hostSumLocal(c *hostCall, group int) {
	if c.desc.Domain == tensor.Int32 {
		sumLocal[int32](c, group)
		return
	}
	sumLocal[float32](c, group)
}

// sumLocal reduces chunk group with a workgroup-wide tree, as the local WGSL variant does.
func sumLocal[T tensor.Number](c *hostCall, group int) {
	if group >= int(c.p.Count) {
		return
	}
	out, res := c.operand("out")
	x, in := c.operand("x")
	xAt := x.Layout.indexer()
	size, chunk := c.desc.WorkgroupSize, c.desc.Chunk

	partial := make([]T, size)
	for lid := range partial {
		var acc T
		for j := lid; j < chunk; j += size {
			acc += loadLane[T](in, x.Type, xAt(group*chunk+j))
		}
		partial[lid] = acc
	}
	for s := size / 2; s > 0; s /= 2 {
		for lid := 0; lid < s; lid++ {
			partial[lid] += partial[lid+s]
		}
	}
	storeLane(res, out.Type, out.Layout.at(group), partial[0])
}

func hostCellActivity(c *hostCall, group int) {
	input := lanes[uint32](c, "input")[:c.desc.InputLen]
	if c.desc.Variant == VariantLocal {
		input = append([]uint32(nil), input...)
	}
	conn := lanes[int32](c, "connections")
	perm := lanes[float32](c, "permanences")
	out := lanes[int32](c, "out")
	width := c.desc.Width

	c.each(group, func(row int) {
		var n int32
		for j := row * width; j < (row+1)*width; j++ {
			idx := conn[j]
			if idx == tensor.Sentinel {
				break
			}
			if idx >= 0 && int(idx) < len(input) && input[idx] != 0 && perm[j] > c.p.F0 {
				n++
			}
		}
		if n < c.p.Int {
			n = 0
		}
		out[row] = n
	})
}

func hostLearnCorrelation(c *hostCall, group int) {
	input := lanes[uint32](c, "input")[:c.desc.InputLen]
	learn := lanes[uint32](c, "learn")
	conn := lanes[int32](c, "connections")
	perm := lanes[float32](c, "permanences")
	width := c.desc.Width

	c.each(group, func(row int) {
		if learn[row] == 0 {
			return
		}
		for j := row * width; j < (row+1)*width; j++ {
			idx := conn[j]
			if idx == tensor.Sentinel {
				break
			}
			p := perm[j]
			if idx >= 0 && int(idx) < len(input) && input[idx] != 0 {
				p += c.p.F0
			} else {
				p -= c.p.F1
			}
			perm[j] = min(max(p, 0), 1)
		}
	})
}

func hostGlobalInhibition(c *hostCall, group int) {
	act, _ := c.operand("activity")
	if act.Type == tensor.Int32 {
		inhibit(c, group, lanes[int32](c, "activity"), 0)
		return
	}
	inhibit(c, group, lanes[float32](c, "activity"), 0)
}

func hostGlobalInhibitionTiled(c *hostCall, group int) {
	act, _ := c.operand("activity")
	if act.Type == tensor.Int32 {
		inhibit(c, group, lanes[int32](c, "activity"), c.desc.LocalSize)
		return
	}
	inhibit(c, group, lanes[float32](c, "activity"), c.desc.LocalSize)
}

// inhibit ranks every cell of the workgroup against all cells, tile elements at a time
// when tile > 0.
func inhibit[T tensor.Number](c *hostCall, group int, act []T, tile int) {
	out := lanes[uint32](c, "out")
	n := int(c.p.Count)
	if tile <= 0 {
		tile = max(n, 1)
	}
	c.each(group, func(i int) {
		a := act[i]
		rank := 0
		for start := 0; start < n; start += tile {
			staged := act[start:min(start+tile, n)]
			for k, b := range staged {
				if tensor.Outranks(b, start+k, a, i) {
					rank++
				}
			}
		}
		if a > 0 && rank < int(c.p.Int) {
			out[i] = 1
		} else {
			out[i] = 0
		}
	})
}

func hostSortSynapse(c *hostCall, group int) {
	conn := lanes[int32](c, "connections")
	perm := lanes[float32](c, "permanences")
	width := c.desc.Width
	c.each(group, func(row int) {
		insertionSort(conn[row*width:(row+1)*width], perm[row*width:(row+1)*width])
	})
}

// insertionSort is the stable key-value sort of the sort_synapse kernel.
func insertionSort(conn []int32, perm []float32) {
	for a := 1; a < len(conn); a++ {
		key, value := conn[a], perm[a]
		b := a
		for b > 0 && tensor.SortKey(conn[b-1]) > tensor.SortKey(key) {
			conn[b], perm[b] = conn[b-1], perm[b-1]
			b--
		}
		conn[b], perm[b] = key, value
	}
}

func hostBurst(c *hostCall, group int) {
	input := lanes[uint32](c, "input")
	prior := lanes[uint32](c, "prior")
	out := lanes[uint32](c, "out")
	width := c.desc.Width
	c.each(group, func(col int) {
		cells := out[col*width : (col+1)*width]
		was := prior[col*width : (col+1)*width]
		if input[col] == 0 {
			clear(cells)
			return
		}
		predicted := false
		for _, v := range was {
			if v != 0 {
				predicted = true
				break
			}
		}
		for j := range cells {
			switch {
			case !predicted:
				cells[j] = 1
			case was[j] != 0:
				cells[j] = 1
			default:
				cells[j] = 0
			}
		}
	})
}

func hostReverseBurst(c *hostCall, group int) {
	cells := lanes[uint32](c, "cells")
	draws := lanes[int32](c, "draws")
	out := lanes[uint32](c, "out")
	width := c.desc.Width
	c.each(group, func(col int) {
		src := cells[col*width : (col+1)*width]
		dst := out[col*width : (col+1)*width]
		bursting := width > 0
		for _, v := range src {
			if v == 0 {
				bursting = false
				break
			}
		}
		if !bursting {
			copy(dst, src)
			return
		}
		for j := range dst {
			dst[j] = 0
		}
		dst[draws[col]] = 1
	})
}

// hostCompactOnBits is a single invocation, like its WGSL kernel: the scan is short
// next to the per-row merge in grow_synapses, which runs one invocation per row.
func hostCompactOnBits(c *hostCall, group int) {
	if group != 0 {
		return
	}
	input := lanes[uint32](c, "input")[:c.desc.InputLen]
	on := lanes[int32](c, "on_bits")
	n := 0
	for k, v := range input {
		if v != 0 {
			on[n] = int32(k) //nolint:gosec // G115: input length fits int32.
			n++
		}
	}
	lanes[int32](c, "on_count")[0] = int32(n) //nolint:gosec // G115: bounded by input length.
}

func hostGrowSynapses(c *hostCall, group int) {
	conn := lanes[int32](c, "connections")
	perm := lanes[float32](c, "permanences")
	targets := lanes[uint32](c, "targets")
	count := lanes[int32](c, "on_count")[0]
	on := lanes[int32](c, "on_bits")[:count]
	width := c.desc.Width

	c.each(group, func(row int) {
		if targets[row] == 0 {
			return
		}
		rc, rp := conn[row*width:(row+1)*width], perm[row*width:(row+1)*width]
		valid := width
		for j, idx := range rc {
			if idx == tensor.Sentinel {
				valid = j
				break
			}
		}
		if valid == width {
			return
		}
		free, e, grown := valid, 0, false
		for _, bit := range on {
			for e < valid && rc[e] < bit {
				e++
			}
			if e < valid && rc[e] == bit {
				continue
			}
			for free < width && rc[free] != tensor.Sentinel {
				free++
			}
			if free == width {
				break
			}
			rc[free], rp[free] = bit, c.p.F0
			free++
			grown = true
		}
		if grown {
			insertionSort(rc, rp)
		}
	})
}

func hostDecaySynapses(c *hostCall, group int) {
	conn := lanes[int32](c, "connections")
	perm := lanes[float32](c, "permanences")
	width := c.desc.Width
	c.each(group, func(row int) {
		rc, rp := conn[row*width:(row+1)*width], perm[row*width:(row+1)*width]
		w := 0
		for j := range rc {
			if rc[j] == tensor.Sentinel || rp[j] < c.p.F0 {
				continue
			}
			rc[w], rp[w] = rc[j], rp[j]
			w++
		}
		for ; w < width; w++ {
			rc[w], rp[w] = tensor.Sentinel, 0
		}
	})
}
