package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/evilsocket/islazy/tui"
	"github.com/spf13/cobra"

	"github.com/born-ml/cortex/tensor"
)

var (
	benchOpts       = workloadOptions{seed: 1, cells: 16384, synapses: 64}
	benchIterations = 20
)

// benchmark prepares its operands once and returns the step to time.
type benchmark struct {
	name  string
	setup func(u *uploaded) func() error
}

var benchmarks = []benchmark{
	{"cellActivity", func(u *uploaded) func() error {
		return func() error {
			_, err := activity(u)
			return err
		}
	}},
	{"globalInhibition", func(u *uploaded) func() error {
		a, err := activity(u)
		return func() error {
			if err != nil {
				return err
			}
			_, ierr := tensor.GlobalInhibition(a, 0.02)
			return ierr
		}
	}},
	{"learnCorrelation", func(u *uploaded) func() error {
		return func() error {
			return tensor.LearnCorrelation(u.input, u.learn, u.conns, u.perms, 0.05, 0.02)
		}
	}},
	{"sortSynapse", func(u *uploaded) func() error {
		return func() error {
			return tensor.SortSynapse(u.shuffled, u.shuffledP)
		}
	}},
	{"growSynapses", func(u *uploaded) func() error {
		return func() error {
			return tensor.GrowSynapses(u.input, u.target, u.conns, u.perms, 0.21)
		}
	}},
	{"decaySynapses", func(u *uploaded) func() error {
		return func() error {
			return tensor.DecaySynapses(u.conns, u.perms, 0.01)
		}
	}},
	{"burst", func(u *uploaded) func() error {
		return func() error {
			_, err := tensor.Burst(u.columns, u.prior)
			return err
		}
	}},
	{"add", func(u *uploaded) func() error {
		return func() error {
			_, err := u.perms.Add(u.perms)
			return err
		}
	}},
	{"sum", func(u *uploaded) func() error {
		return func() error {
			_, err := u.perms.Sum(u.perms.Shape().Last(), tensor.Infer)
			return err
		}
	}},
}

type benchResult struct {
	backend string
	name    string
	total   time.Duration
}

// bench times iterations of every benchmark on b. Sync brackets each measurement
// so queued device work is included.
func bench(w *workload, b namedBackend, iterations int) ([]benchResult, error) {
	results := make([]benchResult, 0, len(benchmarks))
	for _, bm := range benchmarks {
		u, err := w.upload(b)
		if err != nil {
			return nil, err
		}
		step := bm.setup(u)
		if err := b.Sync(); err != nil {
			return nil, err
		}
		start := time.Now()
		for i := 0; i < iterations; i++ {
			if err := step(); err != nil {
				return nil, fmt.Errorf("%s on %s: %w", bm.name, b.name, err)
			}
		}
		if err := b.Sync(); err != nil {
			return nil, err
		}
		results = append(results, benchResult{backend: b.name, name: bm.name, total: time.Since(start)})
	}
	return results, nil
}

func runBench(cmd *cobra.Command, args []string) error {
	if benchIterations <= 0 || benchOpts.cells <= 0 || benchOpts.synapses <= 0 {
		return fmt.Errorf("iterations, cells and synapses must be positive")
	}
	ref, dev, err := openBackends()
	if err != nil {
		return err
	}
	defer ref.Release()
	defer dev.Release()

	w := newWorkload(benchOpts)
	rows := [][]string{}
	for _, b := range []namedBackend{ref, dev} {
		results, err := bench(w, b, benchIterations)
		if err != nil {
			return err
		}
		for _, r := range results {
			rows = append(rows, []string{
				r.backend,
				r.name,
				humanize.Comma(int64(benchIterations)),
				r.total.Round(time.Microsecond).String(),
				(r.total / time.Duration(benchIterations)).Round(time.Microsecond).String(),
			})
		}
	}
	tui.Table(cmd.OutOrStdout(), []string{"backend", "primitive", "iterations", "total", "per call"}, rows)
	return nil
}
