// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"fmt"

	"github.com/born-ml/cortex/internal/serialization"
)

// StateDict is a named collection of persisted values. Besides the value types
// accepted by the serialization format it may hold *Tensor values, which Save
// reads back from their backend and Load recreates on the requested backend.
type StateDict = serialization.StateDict

// TensorData is the host form of a tensor inside a saved state.
type TensorData = serialization.TensorData

// Data copies t to the host in its persisted form.
func (t *Tensor) Data() (TensorData, error) {
	raw, err := t.Bytes()
	if err != nil {
		return TensorData{}, err
	}
	return TensorData{Shape: t.Shape().Clone(), DType: t.DType(), Data: raw}, nil
}

// FromData creates a tensor on b (nil selects DefaultBackend) from its persisted form.
func FromData(d TensorData, b Backend) (*Tensor, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return wrapResult(backendOrDefault(b).CreateView(d.Shape, d.DType, d.Data))
}

// Save writes state to path. The extension picks the encoding: .yaml and .yml
// produce YAML, anything else the binary format.
func Save(state StateDict, path string) error {
	host, err := toHost(state)
	if err != nil {
		return err
	}
	return serialization.Save(host, path)
}

// Load reads a state written by Save, placing tensors on b (nil selects
// DefaultBackend).
func Load(path string, b Backend) (StateDict, error) {
	host, err := serialization.Load(path)
	if err != nil {
		return nil, err
	}
	return fromHost(host, backendOrDefault(b))
}

func toHost(state StateDict) (StateDict, error) {
	out := make(StateDict, len(state))
	for key, v := range state {
		switch v := v.(type) {
		case *Tensor:
			if v == nil {
				return nil, fmt.Errorf("%s: nil tensor", key)
			}
			d, err := v.Data()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key] = d
		case StateDict:
			sub, err := toHost(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key] = sub
		default:
			out[key] = v
		}
	}
	return out, nil
}

func fromHost(state StateDict, b Backend) (StateDict, error) {
	out := make(StateDict, len(state))
	for key, v := range state {
		switch v := v.(type) {
		case TensorData:
			t, err := FromData(v, b)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key] = t
		case StateDict:
			sub, err := fromHost(v, b)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key] = sub
		default:
			out[key] = v
		}
	}
	return out, nil
}
