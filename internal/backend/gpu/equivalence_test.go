package gpu

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/cortex/internal/backend/cpu"
	"github.com/born-ml/cortex/internal/tensor"
)

// Every primitive must produce the same result on the device as on the CPU, for both
// kernel variants. "none" forces the global variant, "local" allows workgroup memory.
var memoryTypes = []string{"none", "local"}

func newCPU(t testing.TB) *cpu.CPUBackend {
	t.Helper()
	cfg := cpu.DefaultConfig()
	cfg.Workers = 3
	cfg.MinChunkSize = 2
	cfg.Seed = 1
	cfg.Logger = quietLogger()
	b, err := cpu.New(cfg)
	require.NoError(t, err)
	return b
}

func randomBits(r *rand.Rand, n int, density float64) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = r.Float64() < density
	}
	return out
}

// randomTable builds sorted rows of distinct source indices, some of them past
// inputLen, padded with sentinels.
func randomTable(r *rand.Rand, rows, width, inputLen int) ([]int32, []float32) {
	conn := make([]int32, rows*width)
	perm := make([]float32, rows*width)
	for row := 0; row < rows; row++ {
		valid := r.IntN(width + 1)
		picks := r.Perm(inputLen + 4)[:valid]
		sorted := make([]int32, 0, valid)
		for _, p := range picks {
			sorted = append(sorted, int32(p))
		}
		slices.Sort(sorted)
		for j := 0; j < width; j++ {
			k := row*width + j
			if j < valid {
				conn[k], perm[k] = sorted[j], r.Float32()
			} else {
				conn[k] = tensor.Sentinel
			}
		}
	}
	return conn, perm
}

// twin holds the same tensor on both backends.
type twin struct {
	cpu, gpu *tensor.View
}

func makeTwin[T tensor.DType](t testing.TB, c, g tensor.Backend, shape tensor.Shape, data []T) twin {
	t.Helper()
	return twin{cpu: upload(t, c, shape, data), gpu: upload(t, g, shape, data)}
}

func assertTwin[T tensor.DType](t *testing.T, tw twin, msgAndArgs ...any) {
	t.Helper()
	assert.Equal(t, download[T](t, tw.cpu), download[T](t, tw.gpu), msgAndArgs...)
}

func TestSynapsePrimitivesMatchCPU(t *testing.T) {
	for _, mt := range memoryTypes {
		t.Run(mt, func(t *testing.T) {
			c, g := newCPU(t), newTestBackend(t, mt)
			r := rand.New(rand.NewPCG(3, 5))
			const inputLen, width = 60, 12
			shape := tensor.Shape{5, 7, width}
			rows := shape.Leading().NumElements()

			conn, perm := randomTable(r, rows, width, inputLen)
			connT := makeTwin(t, c, g, shape, conn)
			permT := makeTwin(t, c, g, shape, perm)
			input := makeTwin(t, c, g, tensor.Shape{inputLen}, randomBits(r, inputLen, 0.3))
			learn := makeTwin(t, c, g, shape.Leading(), randomBits(r, rows, 0.5))

			for _, threshold := range []int{0, 2} {
				ac, err := c.CellActivity(input.cpu, connT.cpu, permT.cpu, 0.4, threshold)
				require.NoError(t, err)
				ag, err := g.CellActivity(input.gpu, connT.gpu, permT.gpu, 0.4, threshold)
				require.NoError(t, err)
				assertTwin[int32](t, twin{ac, ag}, "cellActivity threshold %d", threshold)
				ac.Release()
				ag.Release()
			}

			require.NoError(t, c.LearnCorrelation(input.cpu, learn.cpu, connT.cpu, permT.cpu, 0.1, 0.05))
			require.NoError(t, g.LearnCorrelation(input.gpu, learn.gpu, connT.gpu, permT.gpu, 0.1, 0.05))
			assertTwin[float32](t, permT, "learnCorrelation")

			require.NoError(t, c.GrowSynapses(input.cpu, learn.cpu, connT.cpu, permT.cpu, 0.21))
			require.NoError(t, g.GrowSynapses(input.gpu, learn.gpu, connT.gpu, permT.gpu, 0.21))
			assertTwin[int32](t, connT, "growSynapses connections")
			assertTwin[float32](t, permT, "growSynapses permanences")

			require.NoError(t, c.DecaySynapses(connT.cpu, permT.cpu, 0.3))
			require.NoError(t, g.DecaySynapses(connT.gpu, permT.gpu, 0.3))
			assertTwin[int32](t, connT, "decaySynapses connections")
			assertTwin[float32](t, permT, "decaySynapses permanences")
		})
	}
}

func TestSortSynapseMatchesCPU(t *testing.T) {
	c, g := newCPU(t), newTestBackend(t, "local")
	r := rand.New(rand.NewPCG(11, 13))
	const rows, width = 9, 10
	conn := make([]int32, rows*width)
	perm := make([]float32, rows*width)
	for i := range conn {
		conn[i] = int32(r.IntN(8)) - 1 // duplicates and sentinels anywhere
		perm[i] = float32(i)
	}
	connT := makeTwin(t, c, g, tensor.Shape{rows, width}, conn)
	permT := makeTwin(t, c, g, tensor.Shape{rows, width}, perm)

	require.NoError(t, c.SortSynapse(connT.cpu, permT.cpu))
	require.NoError(t, g.SortSynapse(connT.gpu, permT.gpu))
	assertTwin[int32](t, connT)
	assertTwin[float32](t, permT, "equal keys keep their order")
}

func TestGlobalInhibitionMatchesCPU(t *testing.T) {
	for _, mt := range memoryTypes {
		t.Run(mt, func(t *testing.T) {
			c, g := newCPU(t), newTestBackend(t, mt)
			r := rand.New(rand.NewPCG(7, 9))
			const n = 100

			ints := make([]int32, n)
			floats := make([]float32, n)
			for i := range ints {
				ints[i] = int32(r.IntN(6)) - 1 // many ties, some non-positive
				floats[i] = float32(r.IntN(4)) * 0.5
				if i%17 == 3 {
					floats[i] = float32(math.NaN()) // ranks as zero on both backends
				}
			}
			for _, fraction := range []float32{0, 0.05, 0.25, 1} {
				for _, act := range []twin{
					makeTwin(t, c, g, tensor.Shape{10, 10}, ints),
					makeTwin(t, c, g, tensor.Shape{n}, floats),
				} {
					sc, err := c.GlobalInhibition(act.cpu, fraction)
					require.NoError(t, err)
					sg, err := g.GlobalInhibition(act.gpu, fraction)
					require.NoError(t, err)
					assertTwin[bool](t, twin{sc, sg}, "fraction %g", fraction)
					sc.Release()
					sg.Release()
				}
			}
		})
	}
}

// A workgroup of one invocation runs every table kernel with one row per workgroup,
// and a four-workgroup axis folds every launch into a grid.
func TestNarrowLaunchesMatchCPU(t *testing.T) {
	for _, tc := range []struct {
		name              string
		workgroupSize     int
		workgroupsPerAxis int
	}{
		{"one invocation per workgroup", 1, 0},
		{"folded grid", 8, 4},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig("local")
			cfg.WorkgroupSize = tc.workgroupSize
			cfg.Host.MaxWorkgroupsPerDimension = tc.workgroupsPerAxis
			g, err := New(cfg)
			require.NoError(t, err)
			t.Cleanup(g.Release)
			c := newCPU(t)

			r := rand.New(rand.NewPCG(41, 43))
			const rows, width, inputLen = 70, 6, 50
			conn, perm := randomTable(r, rows, width, inputLen)
			connT := makeTwin(t, c, g, tensor.Shape{rows, width}, conn)
			permT := makeTwin(t, c, g, tensor.Shape{rows, width}, perm)
			input := makeTwin(t, c, g, tensor.Shape{inputLen}, randomBits(r, inputLen, 0.4))
			targets := makeTwin(t, c, g, tensor.Shape{rows}, randomBits(r, rows, 0.6))

			require.NoError(t, c.GrowSynapses(input.cpu, targets.cpu, connT.cpu, permT.cpu, 0.21))
			require.NoError(t, g.GrowSynapses(input.gpu, targets.gpu, connT.gpu, permT.gpu, 0.21))
			assertTwin[int32](t, connT, "growSynapses connections")
			assertTwin[float32](t, permT, "growSynapses permanences")

			ac, err := c.CellActivity(input.cpu, connT.cpu, permT.cpu, 0.2, 1)
			require.NoError(t, err)
			defer ac.Release()
			ag, err := g.CellActivity(input.gpu, connT.gpu, permT.gpu, 0.2, 1)
			require.NoError(t, err)
			defer ag.Release()
			assertTwin[int32](t, twin{ac, ag}, "cellActivity")

			sc, err := c.GlobalInhibition(ac, 0.1)
			require.NoError(t, err)
			defer sc.Release()
			sg, err := g.GlobalInhibition(ag, 0.1)
			require.NoError(t, err)
			defer sg.Release()
			assertTwin[bool](t, twin{sc, sg}, "globalInhibition")

			x := makeTwin(t, c, g, tensor.Shape{rows, width}, perm)
			yc, err := c.Sum(x.cpu, 60, tensor.Infer)
			require.NoError(t, err)
			defer yc.Release()
			yg, err := g.Sum(x.gpu, 60, tensor.Infer)
			require.NoError(t, err)
			defer yg.Release()
			want, got := download[float32](t, yc), download[float32](t, yg)
			require.Len(t, got, len(want))
			for i := range want {
				assert.InDelta(t, want[i], got[i], 1e-5, "sum row %d", i)
			}
		})
	}
}

func TestBurstMatchesCPU(t *testing.T) {
	c, g := newCPU(t), newTestBackend(t, "local")
	r := rand.New(rand.NewPCG(17, 19))
	const columns, cells = 40, 4

	input := makeTwin(t, c, g, tensor.Shape{columns}, randomBits(r, columns, 0.5))
	prior := makeTwin(t, c, g, tensor.Shape{columns, cells}, randomBits(r, columns*cells, 0.2))

	bc, err := c.Burst(input.cpu, prior.cpu)
	require.NoError(t, err)
	defer bc.Release()
	bg, err := g.Burst(input.gpu, prior.gpu)
	require.NoError(t, err)
	defer bg.Release()
	assertTwin[bool](t, twin{bc, bg})

	rc, err := c.ReverseBurst(bc, rand.New(rand.NewPCG(23, 29)))
	require.NoError(t, err)
	defer rc.Release()
	rg, err := g.ReverseBurst(bg, rand.New(rand.NewPCG(23, 29)))
	require.NoError(t, err)
	defer rg.Release()
	assertTwin[bool](t, twin{rc, rg}, "equal seeds pick equal cells")
}

func TestElementwiseMatchesCPU(t *testing.T) {
	for _, mt := range memoryTypes {
		t.Run(mt, func(t *testing.T) {
			c, g := newCPU(t), newTestBackend(t, mt)
			r := rand.New(rand.NewPCG(31, 37))
			ints := make([]int32, 24)
			floats := make([]float32, 24)
			for i := range ints {
				ints[i] = int32(r.IntN(9)) - 4
				floats[i] = r.Float32()*4 - 2
			}
			a := makeTwin(t, c, g, tensor.Shape{2, 3, 4}, ints)
			b := makeTwin(t, c, g, tensor.Shape{2, 3, 4}, floats)
			row := makeTwin(t, c, g, tensor.Shape{4}, []int32{0, 1, -2, 3})
			nonZero := makeTwin(t, c, g, tensor.Shape{3, 1}, []float32{0.5, -1, 2})

			swap := func(v *tensor.View) *tensor.View {
				s, err := v.SwapAxes(0, 2)
				require.NoError(t, err)
				t.Cleanup(s.Release)
				return s
			}
			at := twin{swap(a.cpu), swap(a.gpu)}

			for op := tensor.Add; op <= tensor.LogicalOr; op++ {
				for _, pair := range [][2]twin{{a, row}, {a, b}, {b, nonZero}} {
					xc, err := c.Binary(op, pair[0].cpu, pair[1].cpu)
					require.NoError(t, err)
					xg, err := g.Binary(op, pair[0].gpu, pair[1].gpu)
					require.NoError(t, err)
					require.Equal(t, xc.DType(), xg.DType())
					switch xc.DType() {
					case tensor.Bool:
						assertTwin[bool](t, twin{xc, xg}, op.String())
					case tensor.Int32:
						assertTwin[int32](t, twin{xc, xg}, op.String())
					default:
						assert.InDeltaSlice(t, download[float32](t, xc), download[float32](t, xg), 1e-5, op.String())
					}
					xc.Release()
					xg.Release()
				}
			}

			for _, op := range []tensor.UnaryOp{tensor.Negate, tensor.LogicalNot, tensor.Exp} {
				uc, err := c.Unary(op, at.cpu)
				require.NoError(t, err)
				ug, err := g.Unary(op, at.gpu)
				require.NoError(t, err)
				switch uc.DType() {
				case tensor.Bool:
					assertTwin[bool](t, twin{uc, ug}, op.String())
				case tensor.Int32:
					assertTwin[int32](t, twin{uc, ug}, op.String())
				default:
					assert.InDeltaSlice(t, download[float32](t, uc), download[float32](t, ug), 1e-4, op.String())
				}
				uc.Release()
				ug.Release()
			}

			for _, chunk := range []int{1, 4, 24} {
				sc, err := c.Sum(at.cpu, chunk, tensor.Infer)
				require.NoError(t, err)
				sg, err := g.Sum(at.gpu, chunk, tensor.Infer)
				require.NoError(t, err)
				assertTwin[int32](t, twin{sc, sg}, "sum chunk %d", chunk)
				sc.Release()
				sg.Release()

				fc, err := c.Sum(b.cpu, chunk, tensor.Float32)
				require.NoError(t, err)
				fg, err := g.Sum(b.gpu, chunk, tensor.Float32)
				require.NoError(t, err)
				assert.InDeltaSlice(t, download[float32](t, fc), download[float32](t, fg), 1e-4, "sum chunk %d", chunk)
				fc.Release()
				fg.Release()
			}
		})
	}
}

func TestCrossBackendTransfer(t *testing.T) {
	c, g := newCPU(t), newTestBackend(t, "local")
	x := upload(t, c, tensor.Shape{3}, []bool{true, false, true})

	onGPU, err := g.From(x)
	require.NoError(t, err)
	defer onGPU.Release()
	back, err := c.From(onGPU)
	require.NoError(t, err)
	defer back.Release()
	assert.Equal(t, []bool{true, false, true}, download[bool](t, back))

	_, err = g.Unary(tensor.Negate, x)
	assert.ErrorIs(t, err, tensor.ErrPrecondition)
}
