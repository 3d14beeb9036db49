package gpu

import (
	"math"
	"math/rand/v2"

	"github.com/born-ml/cortex/internal/tensor"
)

// tableDesc fills the row geometry of a connections/permanences kernel.
func tableDesc(kernel string, connections *tensor.View) KernelDesc {
	shape := connections.Shape()
	rows := shape.Leading().NumElements()
	return KernelDesc{
		Kernel:  kernel,
		Variant: VariantGlobal,
		Count:   rows,
		Rows:    rows,
		Width:   shape.Last(),
	}
}

func clampInt32(n int) int32 {
	return int32(min(max(n, math.MinInt32), math.MaxInt32)) //nolint:gosec // G115: clamped.
}

// CellActivity counts, per cell, the connected synapses whose source bit is set.
// When the input fits in workgroup memory it is staged there once per workgroup.
func (g *GPUBackend) CellActivity(input, connections, permanences *tensor.View,
	connectedPermanence float32, activeThreshold int,
) (*tensor.View, error) {
	const op = "cellActivity"
	in, conn, perm := tensor.Arg("input", input), tensor.Arg("connections", connections), tensor.Arg("permanences", permanences)
	if err := tensor.Check(op,
		tensor.BitInput(in),
		tensor.SynapseTable(conn, perm),
		tensor.OnBackend(g, in, conn, perm),
	); err != nil {
		return nil, err
	}

	out, err := g.alloc(op, connections.Shape().Leading(), tensor.Int32, false)
	if err != nil {
		return nil, err
	}
	desc := tableDesc("cell_activity", connections)
	desc.InputLen = input.NumElements()
	desc.Variant = g.variant(desc.InputLen * 4)
	if desc.Variant == VariantLocal {
		desc.LocalSize = desc.InputLen
	}
	p := params{Int: clampInt32(activeThreshold), F0: connectedPermanence}
	if err := g.launch(op, desc, p, 0,
		output("out", out), bind("input", input), bind("connections", connections), bind("permanences", permanences),
	); err != nil {
		out.Release()
		return nil, err
	}
	return out, nil
}

// LearnCorrelation reinforces the synapses of cells selected by learn.
func (g *GPUBackend) LearnCorrelation(input, learn, connections, permanences *tensor.View, incStep, decStep float32) error {
	const op = "learnCorrelation"
	in, mask := tensor.Arg("input", input), tensor.Arg("learn", learn)
	conn, perm := tensor.Arg("connections", connections), tensor.Arg("permanences", permanences)
	if err := tensor.Check(op,
		tensor.BitInput(in),
		tensor.SynapseTable(conn, perm),
		tensor.CellMask(mask, connections),
		tensor.OnBackend(g, in, mask, conn, perm),
	); err != nil {
		return err
	}

	desc := tableDesc("learn_correlation", connections)
	desc.InputLen = input.NumElements()
	return g.launch(op, desc, params{F0: incStep, F1: decStep}, 0,
		bind("input", input), bind("learn", learn), bind("connections", connections), output("permanences", permanences),
	)
}

// GlobalInhibition marks the k = round(N*fraction) most active cells. Each invocation
// ranks one cell against all others; the local variant streams activity through
// workgroup memory in tiles.
func (g *GPUBackend) GlobalInhibition(activity *tensor.View, fraction float32) (*tensor.View, error) {
	const op = "globalInhibition"
	act := tensor.Arg("activity", activity)
	if err := tensor.Check(op,
		tensor.NotNil(act),
		tensor.OnBackend(g, act),
		tensor.DTypeIn(act, tensor.Int32, tensor.Float32),
		tensor.That(fraction >= 0 && fraction <= 1, "fraction", "fraction must be in [0, 1], got %g", fraction),
	); err != nil {
		return nil, err
	}

	src, err := g.Realize(activity)
	if err != nil {
		return nil, err
	}
	defer src.Release()

	n := activity.NumElements()
	out, err := g.alloc(op, activity.Shape(), tensor.Bool, false)
	if err != nil {
		return nil, err
	}
	tile := min(n, g.caps.LocalMemorySize/4, 4*g.workgroupSize)
	desc := KernelDesc{
		Kernel:  "global_inhibition",
		Variant: g.variant(tile * 4),
		Count:   n,
	}
	if desc.Variant == VariantLocal {
		desc.LocalSize = tile
	}
	p := params{Int: clampInt32(tensor.InhibitionCount(n, fraction))}
	if err := g.launch(op, desc, p, 0, output("out", out), bind("activity", src)); err != nil {
		out.Release()
		return nil, err
	}
	return out, nil
}

// SortSynapse sorts each row by source index, moving permanences in lockstep.
func (g *GPUBackend) SortSynapse(connections, permanences *tensor.View) error {
	const op = "sortSynapse"
	conn, perm := tensor.Arg("connections", connections), tensor.Arg("permanences", permanences)
	if err := tensor.Check(op,
		tensor.SynapseTable(conn, perm),
		tensor.OnBackend(g, conn, perm),
	); err != nil {
		return err
	}
	return g.launch(op, tableDesc("sort_synapse", connections), params{}, 0,
		output("connections", connections), output("permanences", permanences),
	)
}

// Burst computes the active cells of a <columns> x cellsPerColumn state, one invocation per column.
func (g *GPUBackend) Burst(input, prior *tensor.View) (*tensor.View, error) {
	const op = "burst"
	in, state := tensor.Arg("input", input), tensor.Arg("prior", prior)
	if err := tensor.Check(op,
		tensor.BitInput(in),
		tensor.BitInput(state),
		tensor.MinRank(state, 2),
		tensor.OnBackend(g, in, state),
	); err != nil {
		return nil, err
	}
	if err := tensor.Check(op, tensor.NumElementsIs(in, prior.Shape().Leading().NumElements())); err != nil {
		return nil, err
	}

	out, err := g.alloc(op, prior.Shape(), tensor.Bool, false)
	if err != nil {
		return nil, err
	}
	desc := tableDesc("burst", prior)
	if err := g.launch(op, desc, params{}, 0, output("out", out), bind("input", input), bind("prior", prior)); err != nil {
		out.Release()
		return nil, err
	}
	return out, nil
}

// ReverseBurst replaces each fully active column with one random cell. The draws are
// made on the host exactly as the CPU backend makes them and uploaded with the launch.
func (g *GPUBackend) ReverseBurst(active *tensor.View, rng *rand.Rand) (*tensor.View, error) {
	const op = "reverseBurst"
	act := tensor.Arg("active", active)
	if err := tensor.Check(op,
		tensor.BitInput(act),
		tensor.MinRank(act, 2),
		tensor.OnBackend(g, act),
	); err != nil {
		return nil, err
	}

	desc := tableDesc("reverse_burst", active)
	var draws []int32
	g.withRand(rng, func(r *rand.Rand) {
		draws = tensor.DrawColumns(r, desc.Rows, desc.Width)
	})
	picks, err := g.CreateView(tensor.Shape{len(draws)}, tensor.Int32, tensor.Bytes(draws))
	if err != nil {
		return nil, err
	}
	defer picks.Release()

	out, err := g.alloc(op, active.Shape(), tensor.Bool, false)
	if err != nil {
		return nil, err
	}
	if err := g.launch(op, desc, params{}, 0, output("out", out), bind("cells", active), bind("draws", picks)); err != nil {
		out.Release()
		return nil, err
	}
	return out, nil
}

// GrowSynapses runs in two launches: a single invocation lists the input's on-bits,
// then one invocation per target cell merges them into its row.
func (g *GPUBackend) GrowSynapses(input, target, connections, permanences *tensor.View, initialPermanence float32) error {
	const op = "growSynapses"
	in, mask := tensor.Arg("input", input), tensor.Arg("target", target)
	conn, perm := tensor.Arg("connections", connections), tensor.Arg("permanences", permanences)
	if err := tensor.Check(op,
		tensor.BitInput(in),
		tensor.SynapseTable(conn, perm),
		tensor.CellMask(mask, connections),
		tensor.OnBackend(g, in, mask, conn, perm),
	); err != nil {
		return err
	}

	inputLen := input.NumElements()
	onBits, err := g.alloc(op, tensor.Shape{max(inputLen, 1)}, tensor.Int32, false)
	if err != nil {
		return err
	}
	defer onBits.Release()
	onCount, err := g.alloc(op, tensor.Shape{1}, tensor.Int32, false)
	if err != nil {
		return err
	}
	defer onCount.Release()

	compact := KernelDesc{
		Kernel:        "compact_on_bits",
		Variant:       VariantGlobal,
		Count:         1,
		InputLen:      inputLen,
		WorkgroupSize: 1,
	}
	if err := g.launch(op, compact, params{}, 0,
		output("on_bits", onBits), output("on_count", onCount), bind("input", input),
	); err != nil {
		return err
	}

	grow := tableDesc("grow_synapses", connections)
	return g.launch(op, grow, params{F0: initialPermanence}, 0,
		output("connections", connections), output("permanences", permanences),
		bind("targets", target), bind("on_bits", onBits), bind("on_count", onCount),
	)
}

// DecaySynapses removes synapses whose permanence is below threshold and compacts the survivors.
func (g *GPUBackend) DecaySynapses(connections, permanences *tensor.View, threshold float32) error {
	const op = "decaySynapses"
	conn, perm := tensor.Arg("connections", connections), tensor.Arg("permanences", permanences)
	if err := tensor.Check(op,
		tensor.SynapseTable(conn, perm),
		tensor.OnBackend(g, conn, perm),
	); err != nil {
		return err
	}
	return g.launch(op, tableDesc("decay_synapses", connections), params{F0: threshold}, 0,
		output("connections", connections), output("permanences", permanences),
	)
}
