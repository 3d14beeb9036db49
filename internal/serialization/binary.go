package serialization

import (
	"bytes"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/born-ml/cortex/internal/tensor"
)

// MarshalBinary encodes s in the binary format.
func MarshalBinary(s StateDict) ([]byte, error) {
	if err := Validate(s); err != nil {
		return nil, err
	}
	buf := []byte(MagicBytes)
	buf = protowire.AppendVarint(buf, FormatVersion)
	buf, err := appendState(buf, s)
	if err != nil {
		return nil, err
	}
	return appendChecksum(buf), nil
}

func appendState(buf []byte, s StateDict) ([]byte, error) {
	buf = protowire.AppendVarint(buf, uint64(len(s)))
	for _, key := range s.Keys() {
		tag, err := TypeOf(s[key])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		payload, err := appendValue(nil, tag, s[key])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		buf = protowire.AppendString(buf, key)
		buf = protowire.AppendVarint(buf, uint64(tag))
		buf = protowire.AppendBytes(buf, payload)
	}
	return buf, nil
}

func appendInts(buf []byte, values []int) []byte {
	buf = protowire.AppendVarint(buf, uint64(len(values)))
	for _, v := range values {
		buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(int64(v)))
	}
	return buf
}

func appendValue(buf []byte, tag ValueType, v any) ([]byte, error) {
	switch tag {
	case TypeString:
		return append(buf, v.(string)...), nil
	case TypeShape:
		return appendInts(buf, v.(tensor.Shape)), nil
	case TypeInt:
		return protowire.AppendVarint(buf, protowire.EncodeZigZag(int64(v.(int)))), nil
	case TypeInt32:
		return protowire.AppendVarint(buf, protowire.EncodeZigZag(int64(v.(int32)))), nil
	case TypeInt64:
		return protowire.AppendVarint(buf, protowire.EncodeZigZag(v.(int64))), nil
	case TypeFloat32:
		return protowire.AppendFixed32(buf, math.Float32bits(v.(float32))), nil
	case TypeFloat64:
		return protowire.AppendFixed64(buf, math.Float64bits(v.(float64))), nil
	case TypeBool:
		return protowire.AppendVarint(buf, protowire.EncodeBool(v.(bool))), nil
	case TypeTensor:
		t := v.(TensorData)
		dt, ok := dtypeToTag(t.DType)
		if !ok {
			return nil, fmt.Errorf("%w: tensor data type %s", ErrUnsupportedValue, t.DType)
		}
		buf = appendInts(buf, t.Shape)
		buf = protowire.AppendVarint(buf, dt)
		return protowire.AppendBytes(buf, t.Data), nil
	case TypeStateDict:
		return appendState(buf, v.(StateDict))
	case TypeInts:
		return appendInts(buf, v.([]int)), nil
	case TypeFloats:
		values := v.([]float64)
		buf = protowire.AppendVarint(buf, uint64(len(values)))
		for _, f := range values {
			buf = protowire.AppendFixed64(buf, math.Float64bits(f))
		}
		return buf, nil
	case TypeBools:
		values := v.([]bool)
		buf = protowire.AppendVarint(buf, uint64(len(values)))
		for _, b := range values {
			buf = protowire.AppendVarint(buf, protowire.EncodeBool(b))
		}
		return buf, nil
	case TypeStrings:
		values := v.([]string)
		buf = protowire.AppendVarint(buf, uint64(len(values)))
		for _, s := range values {
			buf = protowire.AppendString(buf, s)
		}
		return buf, nil
	default:
		return nil, fmt.Errorf("%w: tag %d", ErrUnsupportedValue, tag)
	}
}

// UnmarshalBinary decodes data produced by MarshalBinary.
func UnmarshalBinary(data []byte) (StateDict, error) {
	if len(data) < len(MagicBytes)+ChecksumSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncated, len(data))
	}
	if !bytes.Equal(data[:len(MagicBytes)], []byte(MagicBytes)) {
		return nil, fmt.Errorf("%w: got %q, expected %q", ErrInvalidMagic, data[:len(MagicBytes)], MagicBytes)
	}
	body, err := verifyChecksum(data)
	if err != nil {
		return nil, err
	}

	d := &decoder{buf: body[len(MagicBytes):]}
	version := d.varint()
	if d.err == nil && version != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, version, FormatVersion)
	}
	s := d.state(0)
	if d.err == nil && len(d.buf) != 0 {
		d.fail(fmt.Errorf("%d trailing bytes", len(d.buf)))
	}
	if d.err != nil {
		return nil, d.err
	}
	return s, nil
}

// decoder consumes protowire primitives, recording the first error.
type decoder struct {
	buf []byte
	err error
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %w", ErrTruncated, err)
	}
}

func (d *decoder) advance(n int) bool {
	if n < 0 {
		d.fail(protowire.ParseError(n))
		return false
	}
	d.buf = d.buf[n:]
	return true
}

func (d *decoder) varint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := protowire.ConsumeVarint(d.buf)
	if !d.advance(n) {
		return 0
	}
	return v
}

func (d *decoder) count(limit int) int {
	n := d.varint()
	if d.err == nil && n > uint64(limit) {
		d.fail(fmt.Errorf("count %d exceeds %d", n, limit))
		return 0
	}
	return int(n)
}

func (d *decoder) int() int64 {
	return protowire.DecodeZigZag(d.varint())
}

func (d *decoder) bytes() []byte {
	if d.err != nil {
		return nil
	}
	v, n := protowire.ConsumeBytes(d.buf)
	if !d.advance(n) {
		return nil
	}
	return v
}

func (d *decoder) fixed32() uint32 {
	if d.err != nil {
		return 0
	}
	v, n := protowire.ConsumeFixed32(d.buf)
	if !d.advance(n) {
		return 0
	}
	return v
}

func (d *decoder) fixed64() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := protowire.ConsumeFixed64(d.buf)
	if !d.advance(n) {
		return 0
	}
	return v
}

func (d *decoder) ints() []int {
	n := d.count(len(d.buf))
	out := make([]int, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		out = append(out, int(d.int()))
	}
	return out
}

func (d *decoder) state(depth int) StateDict {
	if depth > MaxDepth {
		d.fail(ErrTooDeep)
		return nil
	}
	n := d.count(MaxEntries)
	s := make(StateDict, n)
	for i := 0; i < n && d.err == nil; i++ {
		key := string(d.bytes())
		tag := ValueType(d.varint())
		payload := d.bytes()
		if d.err != nil {
			break
		}
		if err := ValidateKey(key); err != nil {
			d.err = fmt.Errorf("%w: %w", ErrInvalidKey, err)
			break
		}
		sub := &decoder{buf: payload}
		v := sub.value(tag, depth)
		if sub.err == nil && len(sub.buf) != 0 {
			sub.fail(fmt.Errorf("%d unread payload bytes", len(sub.buf)))
		}
		if sub.err != nil {
			d.err = fmt.Errorf("%s: %w", key, sub.err)
			break
		}
		s[key] = v
	}
	return s
}

func (d *decoder) value(tag ValueType, depth int) any {
	switch tag {
	case TypeString:
		s := string(d.buf)
		d.buf = nil
		return s
	case TypeShape:
		return tensor.Shape(d.ints())
	case TypeInt:
		return int(d.int())
	case TypeInt32:
		return int32(d.int())
	case TypeInt64:
		return d.int()
	case TypeFloat32:
		return math.Float32frombits(d.fixed32())
	case TypeFloat64:
		return math.Float64frombits(d.fixed64())
	case TypeBool:
		return protowire.DecodeBool(d.varint())
	case TypeTensor:
		shape := tensor.Shape(d.ints())
		dt, ok := tagToDtype(d.varint())
		raw := d.bytes()
		if d.err != nil {
			return nil
		}
		if !ok {
			d.err = fmt.Errorf("%w: unknown tensor data type", ErrUnsupportedValue)
			return nil
		}
		t := TensorData{Shape: shape, DType: dt, Data: bytes.Clone(raw)}
		if err := t.Validate(); err != nil {
			d.err = err
			return nil
		}
		return t
	case TypeStateDict:
		return d.state(depth + 1)
	case TypeInts:
		return d.ints()
	case TypeFloats:
		n := d.count(len(d.buf) / 8)
		out := make([]float64, 0, n)
		for i := 0; i < n && d.err == nil; i++ {
			out = append(out, math.Float64frombits(d.fixed64()))
		}
		return out
	case TypeBools:
		n := d.count(len(d.buf))
		out := make([]bool, 0, n)
		for i := 0; i < n && d.err == nil; i++ {
			out = append(out, protowire.DecodeBool(d.varint()))
		}
		return out
	case TypeStrings:
		n := d.count(len(d.buf))
		out := make([]string, 0, n)
		for i := 0; i < n && d.err == nil; i++ {
			out = append(out, string(d.bytes()))
		}
		return out
	default:
		d.err = fmt.Errorf("%w: tag %d", ErrUnsupportedValue, tag)
		return nil
	}
}
