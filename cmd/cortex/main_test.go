package main

import (
	"bytes"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/cortex/internal/backend/cpu"
	"github.com/born-ml/cortex/internal/backend/gpu"
)

func testBackends(t *testing.T) (namedBackend, []namedBackend) {
	t.Helper()
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	ccfg := cpu.DefaultConfig()
	ccfg.Workers = 3
	ccfg.Logger = quiet
	c, err := cpu.New(ccfg)
	require.NoError(t, err)
	t.Cleanup(c.Release)

	var targets []namedBackend
	for _, memory := range []string{"local", "none"} {
		gcfg := gpu.DefaultConfig()
		gcfg.Device = gpu.DeviceHost
		gcfg.WorkgroupSize = 16
		gcfg.Host.LocalMemoryType = memory
		gcfg.Logger = quiet
		g, err := gpu.New(gcfg)
		require.NoError(t, err)
		t.Cleanup(g.Release)
		targets = append(targets, namedBackend{name: "gpu/" + memory, Backend: g})
	}
	return namedBackend{name: "cpu", Backend: c}, targets
}

func TestVerifyAgrees(t *testing.T) {
	ref, targets := testBackends(t)
	for _, seed := range []uint64{1, 7, 42} {
		results, err := verify(workloadOptions{seed: seed, cells: 96, synapses: 12}, ref, targets...)
		require.NoError(t, err, "seed %d: %v", seed, results)
		assert.Len(t, results, len(checks)*len(targets))
	}
}

func TestVerifyRejectsEmptyWorkload(t *testing.T) {
	ref, targets := testBackends(t)
	_, err := verify(workloadOptions{seed: 1}, ref, targets...)
	assert.Error(t, err)
}

func TestDiff(t *testing.T) {
	a := outcome{ints: []int32{1, 2}, floats: []float32{0.5, 0.25}}
	n, _ := diff(a, outcome{ints: []int32{1, 2}, floats: []float32{0.5, 0.250001}})
	assert.Zero(t, n)

	n, first := diff(a, outcome{ints: []int32{1, 3}, floats: []float32{0.4, 0.25}})
	assert.Equal(t, 2, n)
	assert.Equal(t, "int[1]: 2 != 3", first)

	n, _ = diff(a, outcome{ints: []int32{1}})
	assert.Equal(t, 1, n)
}

func TestWorkloadTablesAreSorted(t *testing.T) {
	w := newWorkload(workloadOptions{seed: 3, cells: 20, synapses: 6})
	for r := 0; r < 20; r++ {
		row := w.conns[r*6 : r*6+6]
		seenSentinel := false
		for i, v := range row {
			if v < 0 {
				seenSentinel = true
				continue
			}
			assert.False(t, seenSentinel, "row %d: valid entry after sentinel", r)
			if i > 0 {
				assert.Less(t, row[i-1], v, "row %d not ascending", r)
			}
		}
	}
	assert.Len(t, w.prior, len(w.columns)*cellsPerColumn)
}

func TestBench(t *testing.T) {
	ref, targets := testBackends(t)
	w := newWorkload(workloadOptions{seed: 2, cells: 32, synapses: 8})
	for _, b := range append([]namedBackend{ref}, targets...) {
		results, err := bench(w, b, 2)
		require.NoError(t, err)
		assert.Len(t, results, len(benchmarks))
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "cortex "+version+"\n", out.String())
}
