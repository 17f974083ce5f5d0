package nvml

import (
	"context"
	"sync"

	"github.com/worldland/gpugov/internal/domain"
)

// ApplyCall records one Apply invocation on the mock
type ApplyCall struct {
	Clock          int
	PendingAllowed bool
	Force          bool
}

// MockGPUProvider replays a utilization trace and records applied clocks.
// It backs tests and the simulate command on hosts without NVIDIA hardware.
type MockGPUProvider struct {
	Device   domain.DeviceInfo
	InitErr  error
	ApplyErr error

	mu      sync.Mutex
	trace   []int
	pos     int
	served  int
	powered bool
	applied []ApplyCall
	events  chan domain.JobEvent
}

// NewMockGPUProvider creates a powered-on mock that returns trace one sample
// per Utilization call, repeating the last sample once the trace runs out
func NewMockGPUProvider(device domain.DeviceInfo, trace []int) *MockGPUProvider {
	return &MockGPUProvider{
		Device:  device,
		trace:   append([]int(nil), trace...),
		powered: true,
		events:  make(chan domain.JobEvent, 64),
	}
}

func (p *MockGPUProvider) Init() error {
	return p.InitErr
}

func (p *MockGPUProvider) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.powered = false
	return nil
}

func (p *MockGPUProvider) Info() (domain.DeviceInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Device, nil
}

func (p *MockGPUProvider) Utilization(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.trace) == 0 {
		return 0, nil
	}
	util := p.trace[p.pos]
	p.served++
	if p.pos < len(p.trace)-1 {
		p.pos++
	}
	return util, nil
}

// Remaining returns the number of trace samples not yet consumed
func (p *MockGPUProvider) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return max(len(p.trace)-p.served, 0)
}

func (p *MockGPUProvider) Apply(ctx context.Context, clock int, pendingAllowed, force bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ApplyErr != nil {
		return p.ApplyErr
	}
	p.applied = append(p.applied, ApplyCall{Clock: clock, PendingAllowed: pendingAllowed, Force: force})
	p.Device.CurClockMHz = clock
	return nil
}

// Applied returns every Apply call so far
func (p *MockGPUProvider) Applied() []ApplyCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ApplyCall(nil), p.applied...)
}

func (p *MockGPUProvider) PoweredOn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.powered
}

// SetPowered switches the mock device on or off
func (p *MockGPUProvider) SetPowered(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.powered = on
}

// JobEvents implements domain.JobEventSource
func (p *MockGPUProvider) JobEvents() <-chan domain.JobEvent {
	return p.events
}

// EmitJob queues a job event for the consumer; it blocks when the buffer is full
func (p *MockGPUProvider) EmitJob(ev domain.JobEvent) {
	p.events <- ev
}

// Compile-time interface checks
var (
	_ domain.GPUProvider    = (*MockGPUProvider)(nil)
	_ domain.JobEventSource = (*MockGPUProvider)(nil)
)
