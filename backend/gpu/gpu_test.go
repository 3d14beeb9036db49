// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/cortex/backend/cpu"
	"github.com/born-ml/cortex/tensor"
)

func TestHostMatchesCPU(t *testing.T) {
	g, err := NewHost()
	require.NoError(t, err)
	defer g.Release()
	c := cpu.New()
	defer c.Release()

	for _, b := range []tensor.Backend{g, c} {
		activity, err := tensor.FromSlice([]float32{0, 0, 1, 2, 7, 6, 5, 3}, tensor.Shape{8}, b)
		require.NoError(t, err)
		out, err := tensor.GlobalInhibition(activity, 0.5)
		require.NoError(t, err)
		got, err := tensor.ToSlice[bool](out)
		require.NoError(t, err)
		assert.Equal(t, []bool{false, false, false, false, true, true, true, true}, got, b.Name())
	}
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DeviceAuto, cfg.Device)
	cfg.Device = "quantum"
	_, err := NewWithConfig(cfg)
	assert.Error(t, err)
}
