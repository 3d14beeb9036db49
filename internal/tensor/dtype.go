// Package tensor provides the memory and view model shared by every cortex backend:
// element types, shapes and strides, reference-counted buffers, strided views and the
// Backend contract that executes operations on them.
package tensor

import "math"

// DType is a constraint for Go element types that map onto a DataType.
type DType interface {
	bool | int32 | float32 | Half
}

// DataType represents runtime type information for buffers and views.
type DataType int

// Supported data types.
const (
	Bool DataType = iota
	Int32
	Float32
	Float16
)

// Infer asks an operation to pick its result type by the promotion rules.
const Infer DataType = -1

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Bool:
		return 1
	case Float16:
		return 2
	case Int32, Float32:
		return 4
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Bool:
		return "bool"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	case Infer:
		return "infer"
	default:
		return "unknown"
	}
}

// IsFloat reports whether dt is a floating point type.
func (dt DataType) IsFloat() bool {
	return dt == Float32 || dt == Float16
}

// Valid reports whether dt names a concrete element type.
func (dt DataType) Valid() bool {
	return dt >= Bool && dt <= Float16
}

// ParseDataType is the inverse of String.
func ParseDataType(s string) (DataType, bool) {
	switch s {
	case "bool":
		return Bool, true
	case "int32":
		return Int32, true
	case "float32":
		return Float32, true
	case "float16":
		return Float16, true
	default:
		return 0, false
	}
}

// PromoteTypes returns the result type of a binary arithmetic operation.
//
// Rules:
//   - any Float32 operand gives Float32
//   - two Float16 operands give Float16
//   - one Float16 operand gives Float16 when half is supported, Float32 otherwise
//   - Bool and Int32 operands give Int32
func PromoteTypes(a, b DataType, half bool) DataType {
	switch {
	case a == Float32 || b == Float32:
		return Float32
	case a == Float16 && b == Float16:
		return Float16
	case a == Float16 || b == Float16:
		if half {
			return Float16
		}
		return Float32
	default:
		return Int32
	}
}

// UnaryResultType returns the result type of op applied to a value of type dt.
func UnaryResultType(op UnaryOp, dt DataType, half bool) DataType {
	switch op {
	case LogicalNot:
		return Bool
	case Negate:
		if dt.IsFloat() {
			return dt
		}
		return Int32
	default:
		if dt == Float16 && half {
			return Float16
		}
		return Float32
	}
}

// BinaryResultType returns the result type of op applied to operands of type a and b.
func BinaryResultType(op BinaryOp, a, b DataType, half bool) DataType {
	if op.IsPredicate() {
		return Bool
	}
	return PromoteTypes(a, b, half)
}

// Half is an IEEE 754 binary16 value stored as its raw bits.
type Half uint16

// Float32 widens h to float32.
func (h Half) Float32() float32 {
	return Float16ToFloat32(uint16(h))
}

// HalfFromFloat32 rounds f to the nearest binary16 value.
func HalfFromFloat32(f float32) Half {
	return Half(Float32ToFloat16(f))
}

// Float16ToFloat32 converts half precision bits (IEEE 754) to float32.
func Float16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h) & 0x3ff

	switch {
	case exp == 0 && mant == 0:
		return math.Float32frombits(sign << 31)
	case exp == 0:
		// Subnormal: renormalize.
		for mant&0x400 == 0 {
			mant <<= 1
			exp--
		}
		exp++
		mant &= 0x3ff
	case exp == 0x1f:
		return math.Float32frombits(sign<<31 | 0x7f800000 | mant<<13)
	}

	exp += 127 - 15
	return math.Float32frombits(sign<<31 | exp<<23 | mant<<13)
}

// Float32ToFloat16 converts f to half precision bits, rounding to nearest even.
func Float32ToFloat16(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	exp := int32(bits>>23) & 0xff
	mant := bits & 0x7fffff

	if exp == 0xff {
		if mant != 0 {
			return sign | 0x7e00
		}
		return sign | 0x7c00
	}

	exp = exp - 127 + 15
	switch {
	case exp >= 0x1f:
		return sign | 0x7c00
	case exp <= 0:
		if exp < -10 {
			return sign
		}
		mant |= 0x800000
		shift := uint32(14 - exp)
		half := mant >> shift
		rem := mant & (1<<shift - 1)
		mid := uint32(1) << (shift - 1)
		if rem > mid || (rem == mid && half&1 == 1) {
			half++
		}
		//nolint:gosec // G115: half fits in 11 bits.
		return sign | uint16(half)
	}

	//nolint:gosec // G115: exp is in [1, 30].
	h := sign | uint16(exp)<<10 | uint16(mant>>13)
	rem := mant & 0x1fff
	if rem > 0x1000 || (rem == 0x1000 && h&1 == 1) {
		h++
	}
	return h
}

// dataTypeOf infers DataType from a generic type T.
func dataTypeOf[T DType]() DataType {
	var dummy T
	switch any(dummy).(type) {
	case bool:
		return Bool
	case int32:
		return Int32
	case float32:
		return Float32
	case Half:
		return Float16
	default:
		panic("unsupported type")
	}
}

// DataTypeOf returns the DataType for the Go element type T.
func DataTypeOf[T DType]() DataType {
	return dataTypeOf[T]()
}
