//go:build !nonvml
// +build !nonvml

package nvml

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/worldland/gpugov/internal/domain"
)

// NVMLProvider drives one NVIDIA GPU. Clocks are graphics clocks in MHz and
// are applied by locking the graphics clock to a single value.
type NVMLProvider struct {
	index int

	mu        sync.Mutex
	device    nvml.Device
	lastClock int
}

func NewNVMLProvider(index int) *NVMLProvider {
	return &NVMLProvider{index: index}
}

func (p *NVMLProvider) Init() error {
	ret := nvml.Init()
	if ret != nvml.SUCCESS {
		return fmt.Errorf("NVML init failed: %v", nvml.ErrorString(ret))
	}

	device, ret := nvml.DeviceGetHandleByIndex(p.index)
	if ret != nvml.SUCCESS {
		nvml.Shutdown()
		return fmt.Errorf("failed to get device %d: %v", p.index, nvml.ErrorString(ret))
	}

	p.mu.Lock()
	p.device = device
	p.lastClock = 0
	p.mu.Unlock()
	return nil
}

func (p *NVMLProvider) Shutdown() error {
	p.mu.Lock()
	device := p.device
	p.device = nil
	p.mu.Unlock()

	// hand clock control back to the driver
	var resetErr error
	if device != nil {
		resetErr = resetLockedClocks(device)
	}

	ret := nvml.Shutdown()
	if ret != nvml.SUCCESS {
		return errors.Join(resetErr, fmt.Errorf("NVML shutdown failed: %v", nvml.ErrorString(ret)))
	}
	return resetErr
}

func resetLockedClocks(device nvml.Device) error {
	if ret := device.ResetGpuLockedClocks(); ret != nvml.SUCCESS {
		return fmt.Errorf("failed to reset locked clocks: %v", nvml.ErrorString(ret))
	}
	return nil
}

func (p *NVMLProvider) handle() (nvml.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == nil {
		return nil, fmt.Errorf("device %d not initialized", p.index)
	}
	return p.device, nil
}

func (p *NVMLProvider) Info() (domain.DeviceInfo, error) {
	device, err := p.handle()
	if err != nil {
		return domain.DeviceInfo{}, err
	}

	uuid, _ := device.GetUUID()
	name, _ := device.GetName()
	maxClock, ret := device.GetMaxClockInfo(nvml.CLOCK_GRAPHICS)
	if ret != nvml.SUCCESS {
		return domain.DeviceInfo{}, fmt.Errorf("failed to get max clock: %v", nvml.ErrorString(ret))
	}
	curClock, _ := device.GetClockInfo(nvml.CLOCK_GRAPHICS)

	return domain.DeviceInfo{
		UUID:        uuid,
		Name:        name,
		MaxClockMHz: int(maxClock),
		CurClockMHz: int(curClock),
	}, nil
}

// Utilization returns the GPU busy percentage over the driver's last
// sample period
func (p *NVMLProvider) Utilization(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	device, err := p.handle()
	if err != nil {
		return 0, err
	}

	util, ret := device.GetUtilizationRates()
	if ret != nvml.SUCCESS {
		return 0, fmt.Errorf("failed to get utilization: %v", nvml.ErrorString(ret))
	}
	return int(util.Gpu), nil
}

// Apply locks the graphics clock to clock MHz. NVML applies the lock
// immediately, so pendingAllowed has no effect. An unchanged clock is
// skipped unless force is set.
func (p *NVMLProvider) Apply(ctx context.Context, clock int, pendingAllowed, force bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if clock <= 0 {
		return fmt.Errorf("invalid clock %d", clock)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == nil {
		return fmt.Errorf("device %d not initialized", p.index)
	}
	if clock == p.lastClock && !force {
		return nil
	}

	ret := p.device.SetGpuLockedClocks(uint32(clock), uint32(clock))
	if ret != nvml.SUCCESS {
		return fmt.Errorf("failed to lock clock at %d MHz: %v", clock, nvml.ErrorString(ret))
	}
	p.lastClock = clock
	return nil
}

// PoweredOn reports whether the device answers with a known performance state
func (p *NVMLProvider) PoweredOn() bool {
	device, err := p.handle()
	if err != nil {
		return false
	}
	state, ret := device.GetPowerState()
	return ret == nvml.SUCCESS && state != nvml.PSTATE_UNKNOWN
}

// Compile-time interface check
var _ domain.GPUProvider = (*NVMLProvider)(nil)
