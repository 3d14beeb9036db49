package tensor

import "fmt"

// Shape represents the dimensions of a tensor.
type Shape []int

// NumElements returns the volume of the shape (product of all dimensions).
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions >= 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim < 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be >= 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// Concat returns a new shape with dims appended.
// Shapes are merged by spreading: a.Concat(b...).
func (s Shape) Concat(dims ...int) Shape {
	out := make(Shape, 0, len(s)+len(dims))
	out = append(out, s...)
	return append(out, dims...)
}

// Leading returns every dimension except the last one.
func (s Shape) Leading() Shape {
	if len(s) == 0 {
		return Shape{}
	}
	return s[:len(s)-1].Clone()
}

// Last returns the last dimension, or 1 for a scalar shape.
func (s Shape) Last() int {
	if len(s) == 0 {
		return 1
	}
	return s[len(s)-1]
}

// String formats the shape as {d0, d1, ...}.
func (s Shape) String() string {
	out := "{"
	for i, d := range s {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprint(d)
	}
	return out + "}"
}

// ComputeStrides calculates row-major strides for the shape.
// Strides define memory layout: stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// FoldIndex converts a linear row-major index into a coordinate of shape.
func FoldIndex(index int, shape Shape) []int {
	coord := make([]int, len(shape))
	for i := len(shape) - 1; i >= 0; i-- {
		if shape[i] == 0 {
			continue
		}
		coord[i] = index % shape[i]
		index /= shape[i]
	}
	return coord
}

// UnfoldIndex converts a coordinate into an element offset using stride.
func UnfoldIndex(coord, stride []int) int {
	off := 0
	for i := range coord {
		off += coord[i] * stride[i]
	}
	return off
}

// BroadcastShapes implements NumPy-style broadcasting rules.
//
// Rules:
// 1. Compare shapes element-wise from right to left
// 2. Dimensions are compatible if:
//   - They are equal, OR
//   - One of them is 1
//
// 3. Missing dimensions are treated as 1
//
// Returns the broadcasted shape, a flag indicating if broadcasting is needed, and an error
// wrapping ErrShapeMismatch if incompatible.
//
// Examples:
//
//	(2, 1, 4) + (2, 5, 4) → (2, 5, 4), true, nil
//	(3, 5) + (3, 5) → (3, 5), false, nil
//	(2, 4) + (7) → nil, false, Error
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	maxLen := max(len(a), len(b))
	result := make(Shape, maxLen)
	needsBroadcast := len(a) != len(b)

	for i := 0; i < maxLen; i++ {
		aIdx := len(a) - 1 - i
		bIdx := len(b) - 1 - i

		aDim := 1
		if aIdx >= 0 {
			aDim = a[aIdx]
		}

		bDim := 1
		if bIdx >= 0 {
			bDim = b[bIdx]
		}

		switch {
		case aDim == bDim:
			result[maxLen-1-i] = aDim
		case aDim == 1:
			result[maxLen-1-i] = bDim
			needsBroadcast = true
		case bDim == 1:
			result[maxLen-1-i] = aDim
			needsBroadcast = true
		default:
			return nil, false, fmt.Errorf("%w: shapes not compatible for broadcasting: %v vs %v (dimension %d: %d vs %d)",
				ErrShapeMismatch, a, b, maxLen-1-i, aDim, bDim)
		}
	}

	return result, needsBroadcast, nil
}

// broadcastStrides computes strides for reading a (shape, stride) operand as target.
// Padded and size-1 axes get stride 0 so repeated positions alias one element.
func broadcastStrides(shape Shape, stride []int, target Shape) ([]int, error) {
	if len(shape) > len(target) {
		return nil, fmt.Errorf("%w: cannot broadcast %v to lower rank %v", ErrShapeMismatch, shape, target)
	}
	pad := len(target) - len(shape)
	out := make([]int, len(target))
	for i := range target {
		j := i - pad
		switch {
		case j < 0:
			out[i] = 0
		case shape[j] == target[i]:
			out[i] = stride[j]
		case shape[j] == 1:
			out[i] = 0
		default:
			return nil, fmt.Errorf("%w: cannot broadcast %v to %v (dimension %d: %d vs %d)",
				ErrShapeMismatch, shape, target, i, shape[j], target[i])
		}
	}
	return out, nil
}
