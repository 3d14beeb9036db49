// Package cpu implements the data-parallel host backend.
package cpu

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/born-ml/cortex/internal/parallel"
	"github.com/born-ml/cortex/internal/tensor"
)

// CPUBackend executes operations on host memory with fork-join parallelism
// over independent output rows and elements.
type CPUBackend struct {
	id  string
	cfg Config
	par parallel.Config
	log *logrus.Entry

	rngMu sync.Mutex
	rng   *rand.Rand

	allocated atomic.Int64
}

// Compile-time check.
var _ tensor.Backend = (*CPUBackend)(nil)

// New creates a CPU backend from cfg.
func New(cfg Config) (*CPUBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	cpu := &CPUBackend{
		id:  uuid.NewString(),
		cfg: cfg,
		par: parallel.Config{
			Enabled:      cfg.Workers > 1,
			NumWorkers:   cfg.Workers,
			MinChunkSize: cfg.MinChunkSize,
		},
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	cpu.log = logger.WithFields(logrus.Fields{"backend": cpu.Name(), "id": cpu.id})
	cpu.log.WithFields(logrus.Fields{
		"workers": cfg.Workers,
		"limit":   humanize.Bytes(cfg.MemoryLimit),
	}).Info("cpu backend ready")
	return cpu, nil
}

// NewDefault creates a CPU backend with DefaultConfig.
func NewDefault() *CPUBackend {
	cpu, err := New(DefaultConfig())
	tensor.Assert(err == nil, "default cpu config rejected: %v", err)
	return cpu
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// ID returns the unique instance identifier.
func (cpu *CPUBackend) ID() string {
	return cpu.id
}

// SupportsHalf reports Float16 support; host code converts through float32.
func (cpu *CPUBackend) SupportsHalf() bool {
	return true
}

// Config returns the configuration the backend was built with.
func (cpu *CPUBackend) Config() Config {
	return cpu.cfg
}

// Allocated returns the number of bytes currently held by live buffers.
func (cpu *CPUBackend) Allocated() int64 {
	return cpu.allocated.Load()
}

// Sync is a no-op: every CPU operation completes before returning.
func (cpu *CPUBackend) Sync() error {
	return nil
}

// Release implements tensor.Backend. Host memory is reclaimed by the garbage collector.
func (cpu *CPUBackend) Release() {
	cpu.log.Debug("cpu backend released")
}

// withRand runs f with rng, or with the backend source under its lock when rng is nil.
func (cpu *CPUBackend) withRand(rng *rand.Rand, f func(r *rand.Rand)) {
	if rng != nil {
		f(rng)
		return
	}
	cpu.rngMu.Lock()
	defer cpu.rngMu.Unlock()
	f(cpu.rng)
}
