// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"sync"

	"github.com/born-ml/cortex/internal/backend/cpu"
)

var (
	defaultMu      sync.Mutex
	defaultBackend Backend
)

// DefaultBackend returns the backend used when a constructor is given nil.
// A CPU backend with the default configuration is created on first use.
func DefaultBackend() Backend {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultBackend == nil {
		defaultBackend = cpu.NewDefault()
	}
	return defaultBackend
}

// SetDefaultBackend installs b as the default backend and returns the previous
// one (nil if none was created yet). The caller keeps ownership of both.
func SetDefaultBackend(b Backend) Backend {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultBackend
	defaultBackend = b
	return prev
}

func backendOrDefault(b Backend) Backend {
	if b == nil {
		return DefaultBackend()
	}
	return b
}
