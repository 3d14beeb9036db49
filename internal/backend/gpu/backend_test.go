package gpu

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/cortex/internal/tensor"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig(memoryType string) Config {
	cfg := DefaultConfig()
	cfg.Device = DeviceHost
	cfg.Seed = 42
	cfg.WorkgroupSize = 8
	cfg.Host.Workers = 4
	cfg.Host.LocalMemoryType = memoryType
	cfg.Logger = quietLogger()
	return cfg
}

// newTestBackend creates a host-device backend with small workgroups so that even
// tiny tensors span several of them.
func newTestBackend(t testing.TB, memoryType string) *GPUBackend {
	t.Helper()
	g, err := New(testConfig(memoryType))
	require.NoError(t, err)
	t.Cleanup(g.Release)
	return g
}

func upload[T tensor.DType](t testing.TB, b tensor.Backend, shape tensor.Shape, data []T) *tensor.View {
	t.Helper()
	v, err := b.CreateView(shape, tensor.DataTypeOf[T](), tensor.Bytes(data))
	require.NoError(t, err)
	t.Cleanup(v.Release)
	return v
}

func download[T tensor.DType](t testing.TB, v *tensor.View) []T {
	t.Helper()
	b, err := v.Backend().ReadBytes(v)
	require.NoError(t, err)
	return append([]T{}, tensor.Slice[T](b)...)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig("local")
	cfg.Device = "metal"
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = testConfig("local")
	cfg.WorkgroupSize = 512
	cfg.Host.MaxWorkgroupSize = 256
	_, err = New(cfg)
	assert.True(t, errors.Is(err, tensor.ErrUnsupported))
}

func TestCreateAndRead(t *testing.T) {
	g := newTestBackend(t, "local")

	f := upload(t, g, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, download[float32](t, f))

	b := upload(t, g, tensor.Shape{4}, []bool{true, false, false, true})
	assert.Equal(t, []bool{true, false, false, true}, download[bool](t, b))

	empty := upload(t, g, tensor.Shape{0}, []int32{})
	assert.Empty(t, download[int32](t, empty))

	_, err := g.CreateView(tensor.Shape{3}, tensor.Int32, make([]byte, 4))
	assert.True(t, errors.Is(err, tensor.ErrPrecondition))
}

func TestRecycledBuffersAreCleared(t *testing.T) {
	g := newTestBackend(t, "local")

	v, err := g.CreateView(tensor.Shape{16}, tensor.Float32, tensor.Bytes(make([]float32, 16)))
	require.NoError(t, err)
	ones, err := g.Unary(tensor.Exp, v)
	require.NoError(t, err)
	v.Release()
	require.NoError(t, g.Sync())
	ones.Release()

	zeros, err := g.CreateView(tensor.Shape{16}, tensor.Float32, nil)
	require.NoError(t, err)
	defer zeros.Release()
	assert.Equal(t, make([]float32, 16), download[float32](t, zeros))
	assert.GreaterOrEqual(t, g.PoolStats().Hits, uint64(1))
}

func TestStridedViews(t *testing.T) {
	g := newTestBackend(t, "local")
	x := upload(t, g, tensor.Shape{3, 4}, []int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11})

	sub, err := x.Subview(tensor.Span(1, 3), tensor.Span(1, 3))
	require.NoError(t, err)
	defer sub.Release()
	assert.Equal(t, []int32{5, 6, 9, 10}, download[int32](t, sub))

	tr, err := x.SwapAxes(0, 1)
	require.NoError(t, err)
	defer tr.Release()
	assert.Equal(t, []int32{0, 4, 8, 1, 5, 9, 2, 6, 10, 3, 7, 11}, download[int32](t, tr))

	neg, err := g.Unary(tensor.Negate, tr)
	require.NoError(t, err)
	defer neg.Release()
	assert.Equal(t, []int32{0, -4, -8, -1, -5, -9, -2, -6, -10, -3, -7, -11}, download[int32](t, neg))
}

func TestAssignBroadcastAndOverlap(t *testing.T) {
	g := newTestBackend(t, "local")

	dst := upload(t, g, tensor.Shape{2, 3}, make([]float32, 6))
	row := upload(t, g, tensor.Shape{3}, []int32{1, 2, 3})
	require.NoError(t, g.Assign(dst, row))
	assert.Equal(t, []float32{1, 2, 3, 1, 2, 3}, download[float32](t, dst))

	x := upload(t, g, tensor.Shape{4}, []int32{1, 2, 3, 4})
	head, err := x.Subview(tensor.Span(0, 3))
	require.NoError(t, err)
	defer head.Release()
	tail, err := x.Subview(tensor.Span(1, 4))
	require.NoError(t, err)
	defer tail.Release()
	require.NoError(t, g.Assign(tail, head))
	assert.Equal(t, []int32{1, 1, 2, 3}, download[int32](t, x))

	b, err := row.BroadcastTo(tensor.Shape{2, 3})
	require.NoError(t, err)
	defer b.Release()
	assert.True(t, errors.Is(g.Assign(b, dst), tensor.ErrPrecondition))
}

func TestHalfPrecision(t *testing.T) {
	g := newTestBackend(t, "local")
	x := upload(t, g, tensor.Shape{3}, []float32{0.5, -2, 1024})
	h, err := g.Cast(x, tensor.Float16)
	require.NoError(t, err)
	defer h.Release()
	back, err := g.Cast(h, tensor.Float32)
	require.NoError(t, err)
	defer back.Release()
	assert.Equal(t, []float32{0.5, -2, 1024}, download[float32](t, back))
}

func TestHalfPrecisionUnsupported(t *testing.T) {
	cfg := testConfig("local")
	cfg.Host.Half = false
	g, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(g.Release)
	assert.False(t, g.SupportsHalf())

	_, err = g.CreateView(tensor.Shape{2}, tensor.Float16, nil)
	assert.True(t, errors.Is(err, tensor.ErrUnsupported))

	x := upload(t, g, tensor.Shape{2}, []float32{1, 2})
	_, err = g.Cast(x, tensor.Float16)
	assert.True(t, errors.Is(err, tensor.ErrUnsupported))

	// Inferred result types stay in float32 on such devices.
	s, err := g.Sum(x, 2, tensor.Infer)
	require.NoError(t, err)
	defer s.Release()
	assert.Equal(t, tensor.Float32, s.DType())
}

func TestKernelCache(t *testing.T) {
	g := newTestBackend(t, "local")
	a := upload(t, g, tensor.Shape{4}, []float32{1, 2, 3, 4})
	b := upload(t, g, tensor.Shape{5}, []float32{1, 2, 3, 4, 5})

	for _, x := range []*tensor.View{a, a, b} {
		y, err := g.Unary(tensor.Negate, x)
		require.NoError(t, err)
		y.Release()
	}
	stats := g.CacheStats()
	assert.Equal(t, 2, stats.Programs)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
}

// failingDevice is a host device whose launches can be made to fail.
type failingDevice struct {
	*HostDevice
	fail atomic.Bool
}

func (d *failingDevice) Dispatch(launch Dispatch) error {
	if d.fail.Load() {
		return errors.New("device lost")
	}
	return d.HostDevice.Dispatch(launch)
}

func TestQueueReportsDeviceErrorsAtSync(t *testing.T) {
	cfg := testConfig("local")
	dev := &failingDevice{HostDevice: NewHostDevice(cfg.Host)}
	g, err := NewWithDevice(cfg, dev)
	require.NoError(t, err)
	t.Cleanup(g.Release)

	x := upload(t, g, tensor.Shape{4}, []float32{1, 2, 3, 4})
	dev.fail.Store(true)
	y, err := g.Unary(tensor.Negate, x)
	require.NoError(t, err, "launch errors surface at sync")
	defer y.Release()

	err = g.Sync()
	assert.True(t, errors.Is(err, tensor.ErrDeviceExecution))
	assert.NoError(t, g.Sync(), "the error is reported once")

	dev.fail.Store(false)
	z, err := g.Unary(tensor.Negate, x)
	require.NoError(t, err)
	defer z.Release()
	assert.Equal(t, []float32{-1, -2, -3, -4}, download[float32](t, z))
}

func TestKernelTemplateOverride(t *testing.T) {
	dir := t.TempDir()
	embedded, err := embeddedKernels.ReadFile("kernels/unary.wgsl.tmpl")
	require.NoError(t, err)
	custom := append([]byte("{{/* site override */}}"), embedded...)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unary.wgsl.tmpl"), custom, 0o600))
	t.Setenv(KernelPathEnv, dir)

	assert.Equal(t, []string{dir}, KernelSearchPath(""))

	set := newTemplateSet(KernelSearchPath(""), quietLogger().WithField("test", t.Name()))
	tmpl, err := set.get("unary")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "unary.wgsl.tmpl"), tmpl.origin)

	builtin, err := newTemplateSet(nil, quietLogger().WithField("test", t.Name())).get("unary")
	require.NoError(t, err)
	assert.Equal(t, "embedded", builtin.origin)
	assert.NotEqual(t, builtin.fingerprint, tmpl.fingerprint)

	// The overriding template still drives the backend.
	g := newTestBackend(t, "local")
	x := upload(t, g, tensor.Shape{2}, []float32{1, -1})
	y, err := g.Unary(tensor.Negate, x)
	require.NoError(t, err)
	defer y.Release()
	assert.Equal(t, []float32{-1, 1}, download[float32](t, y))
}

func TestBrokenTemplateIsReported(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "binary.wgsl.tmpl"), []byte("{{define \"main\"}}{{.Missing}}{{end}}"), 0o600))
	t.Setenv(KernelPathEnv, dir)

	g := newTestBackend(t, "local")
	a := upload(t, g, tensor.Shape{2}, []float32{1, 2})
	_, err := g.Binary(tensor.Add, a, a)
	assert.True(t, errors.Is(err, tensor.ErrDeviceExecution))
}

func TestLayoutMatchesView(t *testing.T) {
	g := newTestBackend(t, "local")
	x := upload(t, g, tensor.Shape{2, 3, 4}, make([]float32, 24))
	tr, err := x.SwapAxes(0, 2)
	require.NoError(t, err)
	defer tr.Release()
	sub, err := tr.Subview(tensor.Span(1, 3))
	require.NoError(t, err)
	defer sub.Release()

	for _, v := range []*tensor.View{x, tr, sub} {
		l := layoutOf(v)
		for i, off := range v.Offsets() {
			assert.Equal(t, off, l.at(i))
		}
	}
}
