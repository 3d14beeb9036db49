//go:build !windows

package gpu

import (
	"fmt"
	"runtime"

	"github.com/born-ml/cortex/internal/tensor"
)

// NewWebGPUDevice reports that the WebGPU device is not built for this platform.
func NewWebGPUDevice() (Device, error) {
	return nil, fmt.Errorf("%w: webgpu device is not available on %s", tensor.ErrUnsupported, runtime.GOOS)
}
