//go:build nonvml
// +build nonvml

package nvml

import (
	"context"
	"fmt"

	"github.com/worldland/gpugov/internal/domain"
)

// NVMLProvider stub - used when building without NVIDIA libraries
type NVMLProvider struct {
	index int
}

func NewNVMLProvider(index int) *NVMLProvider {
	return &NVMLProvider{index: index}
}

func (p *NVMLProvider) Init() error {
	return fmt.Errorf("NVML not available (built with nonvml tag)")
}

func (p *NVMLProvider) Shutdown() error {
	return nil
}

func (p *NVMLProvider) Info() (domain.DeviceInfo, error) {
	return domain.DeviceInfo{}, fmt.Errorf("NVML not available")
}

func (p *NVMLProvider) Utilization(ctx context.Context) (int, error) {
	return 0, fmt.Errorf("NVML not available")
}

func (p *NVMLProvider) Apply(ctx context.Context, clock int, pendingAllowed, force bool) error {
	return fmt.Errorf("NVML not available")
}

func (p *NVMLProvider) PoweredOn() bool {
	return false
}

// Compile-time interface check
var _ domain.GPUProvider = (*NVMLProvider)(nil)
