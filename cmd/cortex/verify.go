package main

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/evilsocket/islazy/tui"
	"github.com/spf13/cobra"

	"github.com/born-ml/cortex/internal/backend/gpu"
	"github.com/born-ml/cortex/tensor"
)

// permanenceTolerance bounds the difference accepted between float results.
const permanenceTolerance = 1e-5

var verifyOpts = workloadOptions{seed: 1, cells: 1024, synapses: 32}

type namedBackend struct {
	name string
	tensor.Backend
}

// outcome is the host copy of one primitive's result.
type outcome struct {
	ints   []int32
	bools  []bool
	floats []float32
}

type check struct {
	name string
	run  func(u *uploaded, seed uint64) (outcome, error)
}

func readInts(t *tensor.Tensor, err error) (outcome, error) {
	if err != nil {
		return outcome{}, err
	}
	ints, err := tensor.ToSlice[int32](t)
	return outcome{ints: ints}, err
}

func readBools(t *tensor.Tensor, err error) (outcome, error) {
	if err != nil {
		return outcome{}, err
	}
	bools, err := tensor.ToSlice[bool](t)
	return outcome{bools: bools}, err
}

func readTable(conns, perms *tensor.Tensor, err error) (outcome, error) {
	if err != nil {
		return outcome{}, err
	}
	ints, err := tensor.ToSlice[int32](conns)
	if err != nil {
		return outcome{}, err
	}
	floats, err := tensor.ToSlice[float32](perms)
	return outcome{ints: ints, floats: floats}, err
}

func activity(u *uploaded) (*tensor.Tensor, error) {
	return tensor.CellActivity(u.input, u.conns, u.perms, 0.5, 2)
}

var checks = []check{
	{"cellActivity", func(u *uploaded, _ uint64) (outcome, error) {
		return readInts(activity(u))
	}},
	{"globalInhibition", func(u *uploaded, _ uint64) (outcome, error) {
		a, err := activity(u)
		if err != nil {
			return outcome{}, err
		}
		return readBools(tensor.GlobalInhibition(a, 0.1))
	}},
	{"globalInhibition/float", func(u *uploaded, _ uint64) (outcome, error) {
		a, err := activity(u)
		if err != nil {
			return outcome{}, err
		}
		f, err := a.Cast(tensor.Float32)
		if err != nil {
			return outcome{}, err
		}
		return readBools(tensor.GlobalInhibition(f, 0.02))
	}},
	{"learnCorrelation", func(u *uploaded, _ uint64) (outcome, error) {
		err := tensor.LearnCorrelation(u.input, u.learn, u.conns, u.perms, 0.05, 0.02)
		return readTable(u.conns, u.perms, err)
	}},
	{"growSynapses", func(u *uploaded, _ uint64) (outcome, error) {
		err := tensor.GrowSynapses(u.input, u.target, u.conns, u.perms, 0.21)
		return readTable(u.conns, u.perms, err)
	}},
	{"sortSynapse", func(u *uploaded, _ uint64) (outcome, error) {
		err := tensor.SortSynapse(u.shuffled, u.shuffledP)
		return readTable(u.shuffled, u.shuffledP, err)
	}},
	{"decaySynapses", func(u *uploaded, _ uint64) (outcome, error) {
		err := tensor.DecaySynapses(u.conns, u.perms, 0.4)
		return readTable(u.conns, u.perms, err)
	}},
	{"burst", func(u *uploaded, _ uint64) (outcome, error) {
		return readBools(tensor.Burst(u.columns, u.prior))
	}},
	{"reverseBurst", func(u *uploaded, seed uint64) (outcome, error) {
		active, err := tensor.Burst(u.columns, u.prior)
		if err != nil {
			return outcome{}, err
		}
		return readBools(tensor.ReverseBurst(active, rand.New(rand.NewPCG(seed, seed+1))))
	}},
}

// diff counts mismatching positions of b against the reference a and describes the first.
func diff(a, b outcome) (int, string) {
	count, first := 0, ""
	note := func(format string, args ...any) {
		if count == 0 {
			first = fmt.Sprintf(format, args...)
		}
		count++
	}
	if len(a.ints) != len(b.ints) || len(a.bools) != len(b.bools) || len(a.floats) != len(b.floats) {
		return 1, "result sizes differ"
	}
	for i := range a.ints {
		if a.ints[i] != b.ints[i] {
			note("int[%d]: %d != %d", i, a.ints[i], b.ints[i])
		}
	}
	for i := range a.bools {
		if a.bools[i] != b.bools[i] {
			note("bool[%d]: %t != %t", i, a.bools[i], b.bools[i])
		}
	}
	for i := range a.floats {
		if math.Abs(float64(a.floats[i]-b.floats[i])) > permanenceTolerance {
			note("float[%d]: %g != %g", i, a.floats[i], b.floats[i])
		}
	}
	return count, first
}

type verifyResult struct {
	check      string
	backend    string
	mismatches int
	detail     string
}

var errMismatch = errors.New("backends disagree")

// verify runs every check on ref and on each target from identical fresh inputs.
func verify(o workloadOptions, ref namedBackend, targets ...namedBackend) ([]verifyResult, error) {
	if o.cells <= 0 || o.synapses <= 0 {
		return nil, fmt.Errorf("cells and synapses must be positive")
	}
	w := newWorkload(o)
	run := func(b tensor.Backend, p check) (outcome, error) {
		u, err := w.upload(b)
		if err != nil {
			return outcome{}, err
		}
		return p.run(u, o.seed)
	}

	var results []verifyResult
	failed := 0
	for _, p := range checks {
		want, err := run(ref, p)
		if err != nil {
			return nil, fmt.Errorf("%s on %s: %w", p.name, ref.name, err)
		}
		for _, target := range targets {
			r := verifyResult{check: p.name, backend: target.name}
			got, err := run(target, p)
			if err != nil {
				r.mismatches, r.detail = 1, err.Error()
			} else {
				r.mismatches, r.detail = diff(want, got)
			}
			if r.mismatches > 0 {
				failed++
			}
			results = append(results, r)
		}
	}
	if failed > 0 {
		return results, fmt.Errorf("%w: %d of %d checks failed", errMismatch, failed, len(results))
	}
	return results, nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	ref, dev, err := openBackends()
	if err != nil {
		return err
	}
	defer ref.Release()
	defer dev.Release()

	// The host device without local memory exercises the global-memory kernel variants.
	hostCfg := cfg.GPU
	hostCfg.Device = gpu.DeviceHost
	hostCfg.Host.LocalMemoryType = gpu.MemoryNone.String()
	hostCfg.Logger = logger
	global, err := gpu.New(hostCfg)
	if err != nil {
		return err
	}
	defer global.Release()

	results, verr := verify(verifyOpts, ref, dev, namedBackend{name: "gpu/global", Backend: global})
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "ok"
		if r.mismatches > 0 {
			status = fmt.Sprintf("MISMATCH (%d)", r.mismatches)
		}
		rows = append(rows, []string{r.check, r.backend, status, r.detail})
	}
	tui.Table(cmd.OutOrStdout(), []string{"primitive", "backend", "result", "first difference"}, rows)
	return verr
}
