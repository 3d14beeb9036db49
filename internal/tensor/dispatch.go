package tensor

import (
	"fmt"
	"math"
)

// Number is the compute domain of element-wise kernels.
type Number interface {
	~int32 | ~float32
}

// LoadAs reads element i of mem (laid out as dt) converted to T.
// It is the single place where host code branches on element type.
func LoadAs[T Number](mem []byte, dt DataType, i int) T {
	switch dt {
	case Bool:
		if mem[i] != 0 {
			return 1
		}
		return 0
	case Int32:
		return T(Slice[int32](mem)[i])
	case Float32:
		return T(Slice[float32](mem)[i])
	case Float16:
		return T(Float16ToFloat32(Slice[uint16](mem)[i]))
	default:
		panic(fmt.Sprintf("cortex: internal error: load of unknown data type %d", dt))
	}
}

// StoreAs writes v converted to dt into element i of mem.
func StoreAs[T Number](mem []byte, dt DataType, i int, v T) {
	switch dt {
	case Bool:
		if v != 0 {
			mem[i] = 1
		} else {
			mem[i] = 0
		}
	case Int32:
		Slice[int32](mem)[i] = ToInt32(v)
	case Float32:
		Slice[float32](mem)[i] = float32(v)
	case Float16:
		Slice[uint16](mem)[i] = Float32ToFloat16(float32(v))
	default:
		panic(fmt.Sprintf("cortex: internal error: store of unknown data type %d", dt))
	}
}

// ToInt32 converts v to int32, truncating floats toward zero and saturating
// out-of-range values (NaN becomes 0). Every backend converts this way.
func ToInt32[T Number](v T) int32 {
	f := float64(v)
	switch {
	case f != f:
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	default:
		return int32(f)
	}
}

// ConvertElement converts element si of src (type from) into element di of dst (type to).
// Integer-only conversions stay in int32 so large values keep full precision.
func ConvertElement(src []byte, from DataType, si int, dst []byte, to DataType, di int) {
	if from.IsFloat() || to.IsFloat() {
		StoreAs(dst, to, di, LoadAs[float32](src, from, si))
		return
	}
	StoreAs(dst, to, di, LoadAs[int32](src, from, si))
}

// ConvertBytes converts n contiguous elements from one type to another.
func ConvertBytes(src []byte, from DataType, dst []byte, to DataType, n int) {
	if from == to {
		copy(dst, src[:n*from.Size()])
		return
	}
	if from.IsFloat() || to.IsFloat() {
		for i := 0; i < n; i++ {
			StoreAs(dst, to, i, LoadAs[float32](src, from, i))
		}
		return
	}
	for i := 0; i < n; i++ {
		StoreAs(dst, to, i, LoadAs[int32](src, from, i))
	}
}
