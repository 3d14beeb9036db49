package serialization

import (
	"fmt"
	"slices"

	"github.com/born-ml/cortex/internal/tensor"
)

// Format constants.
const (
	MagicBytes    = "CTXS"
	FormatVersion = 1
)

// StateDict is a named collection of persisted values.
//
// Supported value types are string, tensor.Shape, int, int32, int64, float32,
// float64, bool, TensorData, StateDict, []int, []float64, []bool and []string.
type StateDict map[string]any

// Keys returns the keys of s in sorted order.
func (s StateDict) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// TensorData is the host copy of a tensor: its shape, element type and raw
// little-endian element bytes in row-major order.
type TensorData struct {
	Shape tensor.Shape
	DType tensor.DataType
	Data  []byte
}

// Validate checks that Data holds exactly Shape.NumElements() elements of DType.
func (t TensorData) Validate() error {
	if err := t.Shape.Validate(); err != nil {
		return &ValidationError{Type: "tensor_shape", Details: err.Error()}
	}
	if !t.DType.Valid() {
		return &ValidationError{Type: "tensor_dtype", Details: fmt.Sprintf("unknown data type %d", t.DType)}
	}
	if want := t.Shape.NumElements() * t.DType.Size(); len(t.Data) != want {
		return &ValidationError{
			Type:    "tensor_size",
			Details: fmt.Sprintf("%s%v needs %d bytes, got %d", t.DType, t.Shape, want, len(t.Data)),
		}
	}
	return nil
}

// ValueType tags the type of a persisted value. Tags are part of the binary
// format and must never be renumbered.
type ValueType uint64

// Value types.
const (
	TypeString ValueType = iota + 1
	TypeShape
	TypeInt
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeBool
	TypeTensor
	TypeStateDict
	TypeInts
	TypeFloats
	TypeBools
	TypeStrings
)

var valueTypeNames = map[ValueType]string{
	TypeString:    "string",
	TypeShape:     "shape",
	TypeInt:       "int",
	TypeInt32:     "int32",
	TypeInt64:     "int64",
	TypeFloat32:   "float32",
	TypeFloat64:   "float64",
	TypeBool:      "bool",
	TypeTensor:    "tensor",
	TypeStateDict: "state_dict",
	TypeInts:      "ints",
	TypeFloats:    "floats",
	TypeBools:     "bools",
	TypeStrings:   "strings",
}

// String returns the name used for the type in the YAML encoding.
func (t ValueType) String() string {
	if name, ok := valueTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// parseValueType is the inverse of String.
func parseValueType(name string) (ValueType, bool) {
	for t, n := range valueTypeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// TypeOf returns the tag for v, or ErrUnsupportedValue.
func TypeOf(v any) (ValueType, error) {
	switch v.(type) {
	case string:
		return TypeString, nil
	case tensor.Shape:
		return TypeShape, nil
	case int:
		return TypeInt, nil
	case int32:
		return TypeInt32, nil
	case int64:
		return TypeInt64, nil
	case float32:
		return TypeFloat32, nil
	case float64:
		return TypeFloat64, nil
	case bool:
		return TypeBool, nil
	case TensorData:
		return TypeTensor, nil
	case StateDict:
		return TypeStateDict, nil
	case []int:
		return TypeInts, nil
	case []float64:
		return TypeFloats, nil
	case []bool:
		return TypeBools, nil
	case []string:
		return TypeStrings, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

// dtypeTags maps element types to their stable binary tag.
var dtypeTags = map[tensor.DataType]uint64{
	tensor.Bool:    1,
	tensor.Int32:   2,
	tensor.Float32: 3,
	tensor.Float16: 4,
}

func dtypeToTag(dt tensor.DataType) (uint64, bool) {
	tag, ok := dtypeTags[dt]
	return tag, ok
}

func tagToDtype(tag uint64) (tensor.DataType, bool) {
	for dt, t := range dtypeTags {
		if t == tag {
			return dt, true
		}
	}
	return 0, false
}
