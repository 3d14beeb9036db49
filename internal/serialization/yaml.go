package serialization

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/cortex/internal/tensor"
)

// yamlEntry is one typed entry of the YAML encoding.
type yamlEntry struct {
	Type  string    `yaml:"type"`
	Value yaml.Node `yaml:"value"`
}

// yamlTensor is the YAML form of TensorData. Values are listed in row-major
// order: booleans for Bool tensors, numbers otherwise.
type yamlTensor struct {
	Shape  []int     `yaml:"shape,flow"`
	DType  string    `yaml:"dtype"`
	Values yaml.Node `yaml:"values"`
}

// MarshalYAML encodes s in the YAML format.
func MarshalYAML(s StateDict) ([]byte, error) {
	if err := Validate(s); err != nil {
		return nil, err
	}
	doc, err := toYAML(s)
	if err != nil {
		return nil, err
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}
	return out, nil
}

func toYAML(s StateDict) (map[string]yamlEntry, error) {
	doc := make(map[string]yamlEntry, len(s))
	for _, key := range s.Keys() {
		tag, err := TypeOf(s[key])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		var value any
		switch v := s[key].(type) {
		case TensorData:
			value, err = tensorToYAML(v)
		case StateDict:
			value, err = toYAML(v)
		case tensor.Shape:
			value = []int(v)
		default:
			value = v
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		entry := yamlEntry{Type: tag.String()}
		if err := entry.Value.Encode(value); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		if tag == TypeShape || tag == TypeInts || tag == TypeFloats || tag == TypeBools {
			entry.Value.Style = yaml.FlowStyle
		}
		doc[key] = entry
	}
	return doc, nil
}

func tensorToYAML(t TensorData) (*yamlTensor, error) {
	n := t.Shape.NumElements()
	out := &yamlTensor{Shape: t.Shape, DType: t.DType.String()}
	var values any
	switch t.DType {
	case tensor.Bool:
		bs := make([]bool, n)
		for i := range bs {
			bs[i] = t.Data[i] != 0
		}
		values = bs
	case tensor.Int32:
		values = tensor.Slice[int32](t.Data)[:n]
	default:
		fs := make([]float32, n)
		for i := range fs {
			fs[i] = tensor.LoadAs[float32](t.Data, t.DType, i)
		}
		values = fs
	}
	if err := out.Values.Encode(values); err != nil {
		return nil, err
	}
	out.Values.Style = yaml.FlowStyle
	return out, nil
}

// UnmarshalYAML decodes data produced by MarshalYAML.
func UnmarshalYAML(data []byte) (StateDict, error) {
	var doc map[string]yamlEntry
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse state: %w", err)
	}
	s, err := fromYAML(doc, 0)
	if err != nil {
		return nil, err
	}
	if err := Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

func fromYAML(doc map[string]yamlEntry, depth int) (StateDict, error) {
	if depth > MaxDepth {
		return nil, ErrTooDeep
	}
	s := make(StateDict, len(doc))
	for key, entry := range doc {
		v, err := entryFromYAML(entry, depth)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		s[key] = v
	}
	return s, nil
}

func decodeAs[T any](n *yaml.Node) (T, error) {
	var v T
	err := n.Decode(&v)
	return v, err
}

func entryFromYAML(e yamlEntry, depth int) (any, error) {
	tag, ok := parseValueType(e.Type)
	if !ok {
		return nil, fmt.Errorf("%w: type %q", ErrUnsupportedValue, e.Type)
	}
	switch tag {
	case TypeString:
		return decodeAs[string](&e.Value)
	case TypeShape:
		dims, err := decodeAs[[]int](&e.Value)
		return tensor.Shape(dims), err
	case TypeInt:
		return decodeAs[int](&e.Value)
	case TypeInt32:
		return decodeAs[int32](&e.Value)
	case TypeInt64:
		return decodeAs[int64](&e.Value)
	case TypeFloat32:
		return decodeAs[float32](&e.Value)
	case TypeFloat64:
		return decodeAs[float64](&e.Value)
	case TypeBool:
		return decodeAs[bool](&e.Value)
	case TypeTensor:
		yt, err := decodeAs[yamlTensor](&e.Value)
		if err != nil {
			return nil, err
		}
		return tensorFromYAML(yt)
	case TypeStateDict:
		doc, err := decodeAs[map[string]yamlEntry](&e.Value)
		if err != nil {
			return nil, err
		}
		return fromYAML(doc, depth+1)
	case TypeInts:
		return decodeAs[[]int](&e.Value)
	case TypeFloats:
		return decodeAs[[]float64](&e.Value)
	case TypeBools:
		return decodeAs[[]bool](&e.Value)
	default:
		return decodeAs[[]string](&e.Value)
	}
}

func tensorFromYAML(yt yamlTensor) (TensorData, error) {
	dt, ok := tensor.ParseDataType(yt.DType)
	if !ok {
		return TensorData{}, fmt.Errorf("%w: tensor data type %q", ErrUnsupportedValue, yt.DType)
	}
	t := TensorData{Shape: tensor.Shape(yt.Shape), DType: dt}
	if err := t.Shape.Validate(); err != nil {
		return TensorData{}, err
	}
	n := t.Shape.NumElements()
	t.Data = make([]byte, n*dt.Size())

	var count int
	switch dt {
	case tensor.Bool:
		bs, err := decodeAs[[]bool](&yt.Values)
		if err != nil {
			return TensorData{}, err
		}
		count = len(bs)
		for i := 0; i < min(n, count); i++ {
			if bs[i] {
				t.Data[i] = 1
			}
		}
	case tensor.Int32:
		is, err := decodeAs[[]int32](&yt.Values)
		if err != nil {
			return TensorData{}, err
		}
		copy(tensor.Slice[int32](t.Data), is)
		count = len(is)
	default:
		fs, err := decodeAs[[]float32](&yt.Values)
		if err != nil {
			return TensorData{}, err
		}
		count = len(fs)
		for i := 0; i < min(n, count); i++ {
			tensor.StoreAs(t.Data, dt, i, fs[i])
		}
	}
	if count != n {
		return TensorData{}, &ValidationError{
			Type:    "tensor_size",
			Details: fmt.Sprintf("%s%v needs %d values, got %d", dt, t.Shape, n, count),
		}
	}
	return t, nil
}
