package gpu

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/cortex/internal/tensor"
)

func benchmarkSynapses(b *testing.B, memoryType string) {
	g := newTestBackend(b, memoryType)
	const cells, width, bitsN = 4096, 64, 2048
	r := rand.New(rand.NewPCG(1, 1))
	connData, permData := randomTable(r, cells, width, bitsN)
	input := upload(b, g, tensor.Shape{bitsN}, randomBits(r, bitsN, 0.02))
	conn := upload(b, g, tensor.Shape{cells, width}, connData)
	perm := upload(b, g, tensor.Shape{cells, width}, permData)
	require.NoError(b, g.Sync())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		out, err := g.CellActivity(input, conn, perm, 0.5, 2)
		if err != nil {
			b.Fatal(err)
		}
		winners, err := g.GlobalInhibition(out, 0.02)
		if err != nil {
			b.Fatal(err)
		}
		out.Release()
		winners.Release()
	}
	require.NoError(b, g.Sync())
}

func BenchmarkSynapsesLocal(b *testing.B)  { benchmarkSynapses(b, "local") }
func BenchmarkSynapsesGlobal(b *testing.B) { benchmarkSynapses(b, "none") }
