package gpu

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// Device kinds accepted by Config.Device.
const (
	DeviceAuto   = "auto"
	DeviceHost   = "host"
	DeviceWebGPU = "webgpu"
)

// Config controls the GPU backend.
type Config struct {
	// Device picks the execution device. "auto" tries WebGPU and falls back to the host device.
	Device string `yaml:"device" validate:"oneof=auto host webgpu"`
	// WorkgroupSize is the invocation count of generated kernels. 0 picks min(256, device maximum).
	WorkgroupSize int `yaml:"workgroup_size" validate:"omitempty,oneof=1 2 4 8 16 32 64 128 256 512 1024"`
	// KernelPath lists extra directories searched for kernel templates, after $CORTEX_KERNEL_PATH.
	KernelPath string `yaml:"kernel_path"`
	// Seed initializes the source used by ReverseBurst when the caller passes none. 0 is random.
	Seed uint64 `yaml:"seed"`
	// Host describes the software device.
	Host HostConfig `yaml:"host"`

	Logger *logrus.Logger `yaml:"-" validate:"-"`
}

var validate = validator.New()

// DefaultConfig returns a configuration that prefers real hardware.
func DefaultConfig() Config {
	return Config{
		Device: DeviceAuto,
		Host:   DefaultHostConfig(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid gpu config: %w", err)
	}
	return nil
}
