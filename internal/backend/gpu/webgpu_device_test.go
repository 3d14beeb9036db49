//go:build windows

package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/cortex/internal/tensor"
)

func openWebGPU(t *testing.T) Device {
	t.Helper()
	dev, err := NewWebGPUDevice()
	if err != nil {
		t.Skipf("webgpu unavailable: %v", err)
	}
	return dev
}

func TestWebGPUCapabilities(t *testing.T) {
	dev := openWebGPU(t)
	defer dev.Release()

	caps := dev.Capabilities()
	assert.Contains(t, caps.Name, "webgpu:")
	assert.Equal(t, MemoryLocal, caps.LocalMemoryType)
	assert.LessOrEqual(t, caps.LocalMemorySize, 16*1024)
	assert.LessOrEqual(t, caps.MaxWorkgroupSize, 256)
	assert.Positive(t, caps.MaxWorkgroupsPerDimension)
	assert.False(t, caps.HasExtension(ExtensionF16))
}

func TestWebGPUUnalignedWrite(t *testing.T) {
	dev := openWebGPU(t)
	defer dev.Release()

	buf, err := dev.Alloc(10)
	require.NoError(t, err)
	defer buf.Release()
	require.NoError(t, dev.Write(buf, 0, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}))
	require.NoError(t, dev.Write(buf, 3, []byte{30, 40}))
	got, err := dev.Read(buf, 1, 6)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 3, 30, 40, 6, 7}, got)
}

func TestWebGPUMatchesHost(t *testing.T) {
	dev := openWebGPU(t)
	cfg := testConfig("local")
	g, err := NewWithDevice(cfg, dev)
	require.NoError(t, err)
	t.Cleanup(g.Release)
	host := newTestBackend(t, "local")

	const n = 1000
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(i%13) - 6
	}
	sums := func(b tensor.Backend) []float32 {
		x := upload(t, b, tensor.Shape{n / 10, 10}, data)
		tr, err := x.SwapAxes(0, 1)
		require.NoError(t, err)
		defer tr.Release()
		y, err := b.Binary(tensor.Mul, tr, tr)
		require.NoError(t, err)
		defer y.Release()
		s, err := b.Sum(y, n/10, tensor.Infer)
		require.NoError(t, err)
		defer s.Release()
		return download[float32](t, s)
	}
	assert.Equal(t, sums(host), sums(g))
}
