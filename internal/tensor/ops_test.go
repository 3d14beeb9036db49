package tensor

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalUnary(t *testing.T) {
	assert.Equal(t, int32(-3), EvalUnary(Negate, int32(3)))
	assert.Equal(t, int32(1), EvalUnary(LogicalNot, int32(0)))
	assert.Equal(t, int32(0), EvalUnary(LogicalNot, int32(-2)))
	assert.Equal(t, float32(1), EvalUnary(LogicalNot, float32(0)))
	assert.Equal(t, float32(0.25), EvalUnary(Inverse, float32(4)))
	assert.InDelta(t, math.E, float64(EvalUnary(Exp, float32(1))), 1e-6)
	assert.InDelta(t, 0, float64(EvalUnary(Log, float32(1))), 1e-7)
}

func TestEvalBinary(t *testing.T) {
	tests := []struct {
		op   BinaryOp
		x, y int32
		want int32
	}{
		{Add, 2, 3, 5},
		{Subtract, 2, 3, -1},
		{Mul, -2, 3, -6},
		{Div, 7, 2, 3},
		{Div, 7, 0, 7},
		{Equal, 4, 4, 1},
		{Equal, 4, 5, 0},
		{Greater, 5, 4, 1},
		{Greater, 4, 4, 0},
		{Lesser, 3, 4, 1},
		{LogicalAnd, 1, 0, 0},
		{LogicalAnd, 2, -1, 1},
		{LogicalOr, 0, 0, 0},
		{LogicalOr, 0, 3, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EvalBinary(tt.op, tt.x, tt.y), "%s(%d, %d)", tt.op, tt.x, tt.y)
	}

	assert.Equal(t, float32(1), EvalBinary(Lesser, float32(-0.5), float32(0)))
	assert.Equal(t, float32(0), EvalBinary(Equal, float32(0.5), float32(0.25)))
	assert.True(t, math.IsInf(float64(EvalBinary(Div, float32(1), float32(0))), 1), "float division by zero is IEEE")
}

func TestOutranks(t *testing.T) {
	nan := float32(math.NaN())
	assert.True(t, Outranks(float32(2), 5, float32(1), 0))
	assert.True(t, Outranks(int32(3), 1, int32(3), 4), "ties go to the lower index")
	assert.False(t, Outranks(int32(3), 4, int32(3), 1))
	assert.False(t, Outranks(nan, 0, float32(0.5), 1))
	assert.True(t, Outranks(float32(0.5), 1, nan, 0))
	assert.True(t, Outranks(nan, 0, float32(0), 1), "NaN ranks as zero")
	assert.True(t, Outranks(float32(0), 0, nan, 1))
}

func TestRekind(t *testing.T) {
	assert.NoError(t, Rekind("sync", ErrDeviceExecution, nil))

	plain := Rekind("sync", ErrDeviceExecution, errors.New("device lost"))
	assert.ErrorIs(t, plain, ErrDeviceExecution)
	assert.ErrorContains(t, plain, "device lost")

	same := Errorf("dispatch", ErrDeviceExecution, "status %d", 3)
	assert.Same(t, same, Rekind("sync", ErrDeviceExecution, same))

	other := Errorf("cellActivity", ErrPrecondition, "input must be contiguous")
	err := Rekind("sync", ErrDeviceExecution, other)
	assert.ErrorIs(t, err, ErrDeviceExecution)
	assert.NotErrorIs(t, err, ErrPrecondition)
	assert.ErrorContains(t, err, "input must be contiguous")

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "sync", opErr.Op)
}
