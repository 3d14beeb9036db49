package main

import (
	"math/rand/v2"
	"slices"

	"github.com/born-ml/cortex/tensor"
)

const cellsPerColumn = 4

type workloadOptions struct {
	seed     uint64
	cells    int
	synapses int
}

// workload holds seeded host inputs for every primitive.
type workload struct {
	opts      workloadOptions
	inputBits int
	input     []bool
	learn     []bool
	target    []bool
	conns     []int32
	perms     []float32
	shuffled  []int32 // conns with every row's valid prefix reversed
	shuffledP []float32
	columns   []bool
	prior     []bool
}

func newWorkload(o workloadOptions) *workload {
	rng := rand.New(rand.NewPCG(o.seed, o.seed^0x5eed))
	w := &workload{opts: o, inputBits: max(o.cells, 2*o.synapses, 1)}

	w.input = randomBits(rng, w.inputBits, 0.2)
	w.learn = randomBits(rng, o.cells, 0.3)
	w.target = randomBits(rng, o.cells, 0.3)

	w.conns = make([]int32, o.cells*o.synapses)
	w.perms = make([]float32, o.cells*o.synapses)
	for r := 0; r < o.cells; r++ {
		row := w.conns[r*o.synapses : (r+1)*o.synapses]
		prow := w.perms[r*o.synapses : (r+1)*o.synapses]
		n := rng.IntN(o.synapses + 1)
		sources := sample(rng, w.inputBits, n)
		slices.Sort(sources)
		for i := range row {
			if i < n {
				row[i] = int32(sources[i]) //nolint:gosec // G115: inputBits fits int32.
				prow[i] = rng.Float32()
			} else {
				row[i] = -1
			}
		}
	}

	w.shuffled = slices.Clone(w.conns)
	w.shuffledP = slices.Clone(w.perms)
	for r := 0; r < o.cells; r++ {
		lo := r * o.synapses
		n := 0
		for n < o.synapses && w.shuffled[lo+n] >= 0 {
			n++
		}
		slices.Reverse(w.shuffled[lo : lo+n])
		slices.Reverse(w.shuffledP[lo : lo+n])
	}

	columns := max(o.cells/cellsPerColumn, 1)
	w.columns = randomBits(rng, columns, 0.5)
	w.prior = randomBits(rng, columns*cellsPerColumn, 0.1)
	return w
}

// sample draws k distinct values from [0, n) (Floyd's algorithm).
func sample(rng *rand.Rand, n, k int) []int {
	seen := make(map[int]struct{}, k)
	out := make([]int, 0, k)
	for j := n - k; j < n; j++ {
		v := rng.IntN(j + 1)
		if _, dup := seen[v]; dup {
			v = j
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func randomBits(rng *rand.Rand, n int, density float64) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = rng.Float64() < density
	}
	return out
}

func (w *workload) tableShape() tensor.Shape {
	return tensor.Shape{w.opts.cells, w.opts.synapses}
}

// upload places the named host inputs on b.
type uploaded struct {
	input, learn, target *tensor.Tensor
	conns, perms         *tensor.Tensor
	shuffled, shuffledP  *tensor.Tensor
	columns, prior       *tensor.Tensor
}

func (w *workload) upload(b tensor.Backend) (*uploaded, error) {
	var (
		u   uploaded
		err error
	)
	bits := func(dst **tensor.Tensor, data []bool, shape tensor.Shape) {
		if err == nil {
			*dst, err = tensor.FromSlice(data, shape, b)
		}
	}
	ints := func(dst **tensor.Tensor, data []int32) {
		if err == nil {
			*dst, err = tensor.FromSlice(data, w.tableShape(), b)
		}
	}
	floats := func(dst **tensor.Tensor, data []float32) {
		if err == nil {
			*dst, err = tensor.FromSlice(data, w.tableShape(), b)
		}
	}
	bits(&u.input, w.input, tensor.Shape{w.inputBits})
	bits(&u.learn, w.learn, tensor.Shape{w.opts.cells})
	bits(&u.target, w.target, tensor.Shape{w.opts.cells})
	ints(&u.conns, w.conns)
	floats(&u.perms, w.perms)
	ints(&u.shuffled, w.shuffled)
	floats(&u.shuffledP, w.shuffledP)
	bits(&u.columns, w.columns, tensor.Shape{len(w.columns)})
	bits(&u.prior, w.prior, tensor.Shape{len(w.columns), cellsPerColumn})
	if err != nil {
		return nil, err
	}
	return &u, nil
}
