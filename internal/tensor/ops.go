package tensor

import "math"

// EvalUnary applies op to one value in the compute domain T.
// Exp, Log and Inverse are only evaluated in float32.
func EvalUnary[T Number](op UnaryOp, v T) T {
	switch op {
	case Negate:
		return -v
	case Exp:
		return T(math.Exp(float64(v)))
	case Log:
		return T(math.Log(float64(v)))
	case Inverse:
		return 1 / v
	case LogicalNot:
		return truth[T](v == 0)
	default:
		panic("cortex: internal error: unknown unary op " + op.String())
	}
}

// EvalBinary applies op to one pair of values in the compute domain T.
// Predicates return 1 or 0. Integer division by zero yields the dividend.
func EvalBinary[T Number](op BinaryOp, x, y T) T {
	switch op {
	case Add:
		return x + y
	case Subtract:
		return x - y
	case Mul:
		return x * y
	case Div:
		if y == 0 {
			if _, isInt := any(y).(int32); isInt {
				return x
			}
		}
		return x / y
	case Equal:
		return truth[T](x == y)
	case Greater:
		return truth[T](x > y)
	case Lesser:
		return truth[T](x < y)
	case LogicalAnd:
		return truth[T](x != 0 && y != 0)
	case LogicalOr:
		return truth[T](x != 0 || y != 0)
	default:
		panic("cortex: internal error: unknown binary op " + op.String())
	}
}

func truth[T Number](b bool) T {
	if b {
		return 1
	}
	return 0
}

// ComputeDomain returns the type element-wise arithmetic over operands of types a and b runs in.
// Comparisons and logical ops use it too, so Bool and Int32 operands compare as integers.
func ComputeDomain(a, b DataType) DataType {
	if a.IsFloat() || b.IsFloat() {
		return Float32
	}
	return Int32
}
