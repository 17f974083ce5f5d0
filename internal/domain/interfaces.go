package domain

import (
	"context"
	"time"
)

// GPUProvider abstracts the GPU the governor samples and drives
type GPUProvider interface {
	// Init opens the device (NVML or mock)
	Init() error
	// Shutdown releases the device
	Shutdown() error
	// Info returns static device information
	Info() (DeviceInfo, error)

	UtilizationSource
	ClockActuator
	PowerSource
}

// UtilizationSource supplies the busy percentage (0..100) of the last sampling window
type UtilizationSource interface {
	Utilization(ctx context.Context) (int, error)
}

// ClockActuator programs a target clock into hardware.
// pendingAllowed lets the actuator defer the change; force reapplies an unchanged clock.
type ClockActuator interface {
	Apply(ctx context.Context, clock int, pendingAllowed, force bool) error
}

// PowerSource reports whether the GPU is powered and worth sampling
type PowerSource interface {
	PoweredOn() bool
}

// EstimatorSink receives every requested clock (thermal/power estimation)
type EstimatorSink interface {
	ReportRequestedClock(clock int)
}

// FlagSource is an externally toggled boolean (assist mode, full-compute workload)
type FlagSource interface {
	Enabled() bool
}

// PollIntervalControl gets and sets the sampling period
type PollIntervalControl interface {
	PollInterval() time.Duration
	SetPollInterval(d time.Duration)
}

// JobEventSource is implemented by providers that can report job lifecycle events
type JobEventSource interface {
	JobEvents() <-chan JobEvent
}
