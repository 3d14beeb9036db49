// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the data-parallel CPU backend.
//
// Kernels run on a bounded group of goroutines, one contiguous range of output
// rows or elements per task. Memory is plain host memory, so reads never wait.
//
// Example:
//
//	backend := cpu.New()
//	defer backend.Release()
//	x, err := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{3}, backend)
package cpu

import (
	internalcpu "github.com/born-ml/cortex/internal/backend/cpu"
	"github.com/born-ml/cortex/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Config controls worker count, chunking, the ReverseBurst seed and the memory limit.
type Config = internalcpu.Config

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// DefaultConfig uses every CPU and physical memory as the allocation limit.
func DefaultConfig() Config {
	return internalcpu.DefaultConfig()
}

// New creates a CPU backend with the default configuration.
func New() *Backend {
	return internalcpu.NewDefault()
}

// NewWithConfig creates a CPU backend from cfg.
func NewWithConfig(cfg Config) (*Backend, error) {
	return internalcpu.New(cfg)
}
