// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/cortex/internal/tensor"
)

// DType is a constraint for Go element types: bool, int32, float32 and Half.
type DType = tensor.DType

// DataType represents the runtime element type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Bool    DataType = tensor.Bool
	Int32   DataType = tensor.Int32
	Float32 DataType = tensor.Float32
	Float16 DataType = tensor.Float16

	// Infer asks Sum to pick its result type by the promotion rules.
	Infer DataType = tensor.Infer
)

// Half is a 16-bit float stored as its IEEE 754 bit pattern.
type Half = tensor.Half

// HalfFromFloat32 rounds f to half precision.
func HalfFromFloat32(f float32) Half {
	return tensor.HalfFromFloat32(f)
}

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
type Shape = tensor.Shape

// BroadcastShapes returns the shape two operands broadcast to.
func BroadcastShapes(a, b Shape) (Shape, error) {
	s, _, err := tensor.BroadcastShapes(a, b)
	return s, err
}

// Range selects positions along one axis in Index.
type Range = tensor.Range

// All selects a whole axis.
func All() Range { return tensor.All() }

// Span selects [start, stop). Negative values count from the back.
func Span(start, stop int) Range { return tensor.Span(start, stop) }

// At selects a single position. Negative values count from the back.
func At(i int) Range { return tensor.At(i) }

// Backend executes tensor operations. See backend/cpu and backend/gpu.
type Backend = tensor.Backend

// View is the low-level descriptor (buffer, shape, stride, offset) behind a Tensor.
type View = tensor.View

// Error kinds. Every error returned by an operation wraps exactly one of them.
var (
	ErrPrecondition    = tensor.ErrPrecondition
	ErrShapeMismatch   = tensor.ErrShapeMismatch
	ErrUnsupported     = tensor.ErrUnsupported
	ErrDeviceExecution = tensor.ErrDeviceExecution
	ErrAllocation      = tensor.ErrAllocation
)

// OpError carries the operation, operand, kind and call site of a failure.
type OpError = tensor.OpError
