// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package gpu provides the GPU-style backend.
//
// Operations are compiled from kernel templates specialized for the operand
// types, strides and sizes, cached, and enqueued on an in-order queue. Sync
// waits for the queue; host reads synchronize implicitly.
//
// The backend runs on WebGPU where available (Windows) and otherwise on the host
// device, a software device executing the same kernels on goroutines.
//
// Example:
//
//	backend, err := gpu.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Release()
//	activity, err := tensor.CellActivity(input, connections, permanences, 0.2, 2)
package gpu

import (
	internalgpu "github.com/born-ml/cortex/internal/backend/gpu"
	"github.com/born-ml/cortex/tensor"
)

// Backend represents the GPU-style backend implementation.
type Backend = internalgpu.GPUBackend

// Config selects the device and workgroup size and describes the host device.
type Config = internalgpu.Config

// Device kinds accepted by Config.Device.
const (
	DeviceAuto   = internalgpu.DeviceAuto
	DeviceHost   = internalgpu.DeviceHost
	DeviceWebGPU = internalgpu.DeviceWebGPU
)

// KernelPathEnv names the environment variable listing directories searched
// for kernel template overrides.
const KernelPathEnv = internalgpu.KernelPathEnv

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// DefaultConfig prefers WebGPU and falls back to the host device.
func DefaultConfig() Config {
	return internalgpu.DefaultConfig()
}

// New creates a backend with the default configuration.
func New() (*Backend, error) {
	return internalgpu.New(internalgpu.DefaultConfig())
}

// NewWithConfig creates a backend from cfg.
func NewWithConfig(cfg Config) (*Backend, error) {
	return internalgpu.New(cfg)
}

// NewHost creates a backend on the software device.
func NewHost() (*Backend, error) {
	cfg := internalgpu.DefaultConfig()
	cfg.Device = internalgpu.DeviceHost
	return internalgpu.New(cfg)
}

// IsAvailable reports whether a WebGPU device can be opened on this system.
func IsAvailable() bool {
	device, err := internalgpu.NewWebGPUDevice()
	if err != nil {
		return false
	}
	device.Release()
	return true
}
