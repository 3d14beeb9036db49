package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPromoteTypes(t *testing.T) {
	tests := []struct {
		a, b DataType
		half bool
		want DataType
	}{
		{Bool, Bool, false, Int32},
		{Bool, Int32, false, Int32},
		{Int32, Float32, false, Float32},
		{Float16, Float32, true, Float32},
		{Float16, Float16, false, Float16},
		{Float16, Int32, true, Float16},
		{Float16, Int32, false, Float32},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PromoteTypes(tt.a, tt.b, tt.half), "%s x %s half=%v", tt.a, tt.b, tt.half)
	}
}

func TestResultTypes(t *testing.T) {
	assert.Equal(t, Bool, BinaryResultType(Greater, Float32, Int32, false))
	assert.Equal(t, Bool, UnaryResultType(LogicalNot, Float32, false))
	assert.Equal(t, Int32, UnaryResultType(Negate, Bool, false))
	assert.Equal(t, Float32, UnaryResultType(Exp, Int32, false))
	assert.Equal(t, Float16, UnaryResultType(Log, Float16, true))
}

func TestFloat16Conversion(t *testing.T) {
	for _, f := range []float32{0, 1, -2, 0.5, 65504, 0.333251953125} {
		assert.Equal(t, f, Float16ToFloat32(Float32ToFloat16(f)), "value %v", f)
	}
	assert.True(t, math.IsInf(float64(Float16ToFloat32(Float32ToFloat16(1e6))), 1))
}

func TestLoadStoreAs(t *testing.T) {
	mem := make([]byte, 4*Int32.Size())
	StoreAs[float32](mem, Int32, 0, 2.9)
	StoreAs[float32](mem, Int32, 1, -2.9)
	StoreAs[float32](mem, Int32, 2, float32(math.NaN()))
	StoreAs[float32](mem, Int32, 3, 1e20)
	assert.Equal(t, []int32{2, -2, 0, math.MaxInt32}, Slice[int32](mem))

	b := make([]byte, 2)
	StoreAs[int32](b, Bool, 0, 5)
	StoreAs[int32](b, Bool, 1, 0)
	assert.Equal(t, []byte{1, 0}, b)
	assert.Equal(t, float32(1), LoadAs[float32](b, Bool, 0))
}

func TestConvertBytes(t *testing.T) {
	src := Bytes([]float32{1.5, 0, -3.25})
	dst := make([]byte, 3)
	ConvertBytes(src, Float32, dst, Bool, 3)
	assert.Equal(t, []byte{1, 0, 1}, dst)
}
