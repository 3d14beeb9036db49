package cpu

import (
	"cmp"
	"math/rand/v2"
	"slices"

	"github.com/born-ml/cortex/internal/parallel"
	"github.com/born-ml/cortex/internal/tensor"
)

// table is the host layout of a connections/permanences pair.
type table struct {
	conn  []int32
	perm  []float32
	rows  int
	width int
}

func synapses(connections, permanences *tensor.View) table {
	shape := connections.Shape()
	return table{
		conn:  tensor.Slice[int32](bytesOf(connections))[connections.Offset():][:shape.NumElements()],
		perm:  tensor.Slice[float32](bytesOf(permanences))[permanences.Offset():][:shape.NumElements()],
		rows:  shape.Leading().NumElements(),
		width: shape.Last(),
	}
}

// bits returns the Bool elements of a contiguous view.
func bits(v *tensor.View) []byte {
	return bytesOf(v)[v.Offset():][:v.NumElements()]
}

func (cpu *CPUBackend) forRows(t table, f func(row, lo, hi int)) {
	parallel.ForRows(t.rows, t.width, f, cpu.par)
}

// CellActivity counts, per cell, the connected synapses whose source bit is set.
// Counts below activeThreshold become 0. The result is Int32 with the leading shape of connections.
func (cpu *CPUBackend) CellActivity(input, connections, permanences *tensor.View,
	connectedPermanence float32, activeThreshold int,
) (*tensor.View, error) {
	const op = "cellActivity"
	in, conn, perm := tensor.Arg("input", input), tensor.Arg("connections", connections), tensor.Arg("permanences", permanences)
	if err := tensor.Check(op,
		tensor.BitInput(in),
		tensor.SynapseTable(conn, perm),
		tensor.OnBackend(cpu, in, conn, perm),
	); err != nil {
		return nil, err
	}

	out, err := cpu.alloc(op, connections.Shape().Leading(), tensor.Int32)
	if err != nil {
		return nil, err
	}
	t := synapses(connections, permanences)
	inBits := bits(input)
	counts := tensor.Slice[int32](bytesOf(out))
	cpu.forRows(t, func(row, lo, hi int) {
		var n int32
		for j := lo; j < hi; j++ {
			idx := t.conn[j]
			if idx == tensor.Sentinel {
				break
			}
			if isSet(inBits, idx) && t.perm[j] > connectedPermanence {
				n++
			}
		}
		if int(n) < activeThreshold {
			n = 0
		}
		counts[row] = n
	})
	return out, nil
}

// isSet reports whether source bit idx is on. Indices outside the input read as off.
func isSet(input []byte, idx int32) bool {
	return idx >= 0 && int(idx) < len(input) && input[idx] != 0
}

// LearnCorrelation reinforces the synapses of cells selected by learn: permanence moves up
// by incStep when the source bit is set, down by decStep otherwise, clamped to [0, 1].
func (cpu *CPUBackend) LearnCorrelation(input, learn, connections, permanences *tensor.View, incStep, decStep float32) error {
	const op = "learnCorrelation"
	in, mask := tensor.Arg("input", input), tensor.Arg("learn", learn)
	conn, perm := tensor.Arg("connections", connections), tensor.Arg("permanences", permanences)
	if err := tensor.Check(op,
		tensor.BitInput(in),
		tensor.SynapseTable(conn, perm),
		tensor.CellMask(mask, connections),
		tensor.OnBackend(cpu, in, mask, conn, perm),
	); err != nil {
		return err
	}

	t := synapses(connections, permanences)
	inBits, learnBits := bits(input), bits(learn)
	cpu.forRows(t, func(row, lo, hi int) {
		if learnBits[row] == 0 {
			return
		}
		for j := lo; j < hi; j++ {
			idx := t.conn[j]
			if idx == tensor.Sentinel {
				break
			}
			p := t.perm[j]
			if isSet(inBits, idx) {
				p += incStep
			} else {
				p -= decStep
			}
			t.perm[j] = min(max(p, 0), 1)
		}
	})
	return nil
}

// GlobalInhibition marks the k = round(N*fraction) most active cells. Ties go to the lower
// index and cells with activity <= 0 are never selected.
func (cpu *CPUBackend) GlobalInhibition(activity *tensor.View, fraction float32) (*tensor.View, error) {
	const op = "globalInhibition"
	act := tensor.Arg("activity", activity)
	if err := tensor.Check(op,
		tensor.NotNil(act),
		tensor.OnBackend(cpu, act),
		tensor.DTypeIn(act, tensor.Int32, tensor.Float32),
		tensor.That(fraction >= 0 && fraction <= 1, "fraction", "fraction must be in [0, 1], got %g", fraction),
	); err != nil {
		return nil, err
	}

	src, err := cpu.Realize(activity)
	if err != nil {
		return nil, err
	}
	defer src.Release()

	n := activity.NumElements()
	out, err := cpu.alloc(op, activity.Shape(), tensor.Bool)
	if err != nil {
		return nil, err
	}
	k := tensor.InhibitionCount(n, fraction)
	if k == 0 {
		return out, nil
	}

	values := bytesOf(src)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	var positive func(i int) bool
	if src.DType() == tensor.Int32 {
		positive = rankCells(order, tensor.Slice[int32](values))
	} else {
		positive = rankCells(order, tensor.Slice[float32](values))
	}

	selected := bytesOf(out)
	for _, i := range order[:k] {
		if positive(i) {
			selected[i] = 1
		}
	}
	return out, nil
}

// rankCells sorts order so that cells that outrank others come first and returns
// the selection predicate.
func rankCells[T tensor.Number](order []int, a []T) func(i int) bool {
	slices.SortFunc(order, func(i, j int) int {
		switch {
		case i == j:
			return 0
		case tensor.Outranks(a[i], i, a[j], j):
			return -1
		default:
			return 1
		}
	})
	return func(i int) bool { return a[i] > 0 }
}

// SortSynapse sorts each row by source index, moving permanences in lockstep.
// Sentinels sort last.
func (cpu *CPUBackend) SortSynapse(connections, permanences *tensor.View) error {
	const op = "sortSynapse"
	conn, perm := tensor.Arg("connections", connections), tensor.Arg("permanences", permanences)
	if err := tensor.Check(op,
		tensor.SynapseTable(conn, perm),
		tensor.OnBackend(cpu, conn, perm),
	); err != nil {
		return err
	}
	t := synapses(connections, permanences)
	cpu.forRows(t, func(_, lo, hi int) {
		sortRow(t.conn[lo:hi], t.perm[lo:hi])
	})
	return nil
}

type synapse struct {
	idx  int32
	perm float32
}

func sortRow(conn []int32, perm []float32) {
	row := make([]synapse, len(conn))
	for i := range row {
		row[i] = synapse{conn[i], perm[i]}
	}
	slices.SortStableFunc(row, func(a, b synapse) int {
		return cmp.Compare(tensor.SortKey(a.idx), tensor.SortKey(b.idx))
	})
	for i, s := range row {
		conn[i], perm[i] = s.idx, s.perm
	}
}

// Burst computes the active cells of a <columns> x cellsPerColumn state: columns whose input
// bit is off are cleared, predicted columns keep their prior cells, and unpredicted active
// columns turn every cell on.
func (cpu *CPUBackend) Burst(input, prior *tensor.View) (*tensor.View, error) {
	const op = "burst"
	in, state := tensor.Arg("input", input), tensor.Arg("prior", prior)
	if err := tensor.Check(op,
		tensor.BitInput(in),
		tensor.BitInput(state),
		tensor.MinRank(state, 2),
		tensor.OnBackend(cpu, in, state),
	); err != nil {
		return nil, err
	}
	if err := tensor.Check(op, tensor.NumElementsIs(in, prior.Shape().Leading().NumElements())); err != nil {
		return nil, err
	}

	out, err := cpu.alloc(op, prior.Shape(), tensor.Bool)
	if err != nil {
		return nil, err
	}
	columns, cells := input.NumElements(), prior.Shape().Last()
	inBits, priorBits, res := bits(input), bits(prior), bytesOf(out)
	parallel.ForRows(columns, cells, func(col, lo, hi int) {
		if inBits[col] == 0 {
			return
		}
		predicted := false
		for j := lo; j < hi; j++ {
			if priorBits[j] != 0 {
				predicted = true
				break
			}
		}
		for j := lo; j < hi; j++ {
			if predicted {
				res[j] = b2u(priorBits[j] != 0)
			} else {
				res[j] = 1
			}
		}
	}, cpu.par)
	return out, nil
}

func b2u(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// ReverseBurst replaces each fully active column with a single cell drawn uniformly at random.
// One draw is made per column, in column order, whether or not the column is bursting,
// so equal seeds give equal results on every backend. A nil rng uses the backend's source.
func (cpu *CPUBackend) ReverseBurst(active *tensor.View, rng *rand.Rand) (*tensor.View, error) {
	const op = "reverseBurst"
	act := tensor.Arg("active", active)
	if err := tensor.Check(op,
		tensor.BitInput(act),
		tensor.MinRank(act, 2),
		tensor.OnBackend(cpu, act),
	); err != nil {
		return nil, err
	}

	cells := active.Shape().Last()
	columns := active.Shape().Leading().NumElements()
	var draws []int32
	cpu.withRand(rng, func(r *rand.Rand) {
		draws = tensor.DrawColumns(r, columns, cells)
	})

	out, err := cpu.alloc(op, active.Shape(), tensor.Bool)
	if err != nil {
		return nil, err
	}
	src, res := bits(active), bytesOf(out)
	parallel.ForRows(columns, cells, func(col, lo, hi int) {
		bursting := cells > 0
		for j := lo; j < hi; j++ {
			if src[j] == 0 {
				bursting = false
				break
			}
		}
		if !bursting {
			copy(res[lo:hi], src[lo:hi])
			return
		}
		res[lo+int(draws[col])] = 1
	}, cpu.par)
	return out, nil
}

// GrowSynapses connects each target cell with free slots to on-bits of input it is not yet
// connected to, lowest bit first, with initialPermanence. Rows are re-sorted afterwards;
// full rows are left untouched.
func (cpu *CPUBackend) GrowSynapses(input, target, connections, permanences *tensor.View, initialPermanence float32) error {
	const op = "growSynapses"
	in, mask := tensor.Arg("input", input), tensor.Arg("target", target)
	conn, perm := tensor.Arg("connections", connections), tensor.Arg("permanences", permanences)
	if err := tensor.Check(op,
		tensor.BitInput(in),
		tensor.SynapseTable(conn, perm),
		tensor.CellMask(mask, connections),
		tensor.OnBackend(cpu, in, mask, conn, perm),
	); err != nil {
		return err
	}

	inBits := bits(input)
	onBits := make([]int32, 0, len(inBits))
	for i, b := range inBits {
		if b != 0 {
			onBits = append(onBits, int32(i)) //nolint:gosec // G115: input volume fits int32.
		}
	}

	t := synapses(connections, permanences)
	targetBits := bits(target)
	cpu.forRows(t, func(row, lo, hi int) {
		if targetBits[row] == 0 {
			return
		}
		growRow(t.conn[lo:hi], t.perm[lo:hi], onBits, initialPermanence)
	})
	return nil
}

func growRow(conn []int32, perm []float32, onBits []int32, initial float32) {
	valid := slices.Index(conn, tensor.Sentinel)
	if valid < 0 {
		return // full
	}
	existing := conn[:valid]
	free, e, grown := valid, 0, false
	for _, bit := range onBits {
		for e < len(existing) && existing[e] < bit {
			e++
		}
		if e < len(existing) && existing[e] == bit {
			continue
		}
		for free < len(conn) && conn[free] != tensor.Sentinel {
			free++
		}
		if free == len(conn) {
			break
		}
		conn[free], perm[free] = bit, initial
		free++
		grown = true
	}
	if grown {
		sortRow(conn, perm)
	}
}

// DecaySynapses removes synapses whose permanence is below threshold and compacts the
// survivors to the front of their row in their original order. Vacated slots become (-1, 0).
func (cpu *CPUBackend) DecaySynapses(connections, permanences *tensor.View, threshold float32) error {
	const op = "decaySynapses"
	conn, perm := tensor.Arg("connections", connections), tensor.Arg("permanences", permanences)
	if err := tensor.Check(op,
		tensor.SynapseTable(conn, perm),
		tensor.OnBackend(cpu, conn, perm),
	); err != nil {
		return err
	}
	t := synapses(connections, permanences)
	cpu.forRows(t, func(_, lo, hi int) {
		w := lo
		for j := lo; j < hi; j++ {
			if t.conn[j] == tensor.Sentinel || t.perm[j] < threshold {
				continue
			}
			t.conn[w], t.perm[w] = t.conn[j], t.perm[j]
			w++
		}
		for ; w < hi; w++ {
			t.conn[w], t.perm[w] = tensor.Sentinel, 0
		}
	})
	return nil
}
