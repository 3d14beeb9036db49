package cpu

import (
	"fmt"
	"runtime"

	"github.com/go-playground/validator/v10"
	"github.com/pbnjay/memory"
	"github.com/sirupsen/logrus"
)

// Config controls the CPU backend.
type Config struct {
	// Workers is the number of goroutines used by data-parallel kernels. 1 runs sequentially.
	Workers int `yaml:"workers" validate:"gte=1,lte=4096"`
	// MinChunkSize is the smallest number of elements handed to one worker.
	MinChunkSize int `yaml:"min_chunk_size" validate:"gte=1"`
	// Seed initializes the random source used by ReverseBurst when the caller passes none.
	// 0 picks a random seed.
	Seed uint64 `yaml:"seed"`
	// MemoryLimit caps live allocations in bytes. 0 disables the limit.
	MemoryLimit uint64 `yaml:"memory_limit"`

	Logger *logrus.Logger `yaml:"-" validate:"-"`
}

var validate = validator.New()

// DefaultConfig returns a configuration using every CPU and physical memory as the limit.
func DefaultConfig() Config {
	return Config{
		Workers:      runtime.NumCPU(),
		MinChunkSize: 64,
		MemoryLimit:  memory.TotalMemory(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid cpu config: %w", err)
	}
	return nil
}
