package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/worldland/gpugov/internal/domain"
	"github.com/worldland/gpugov/internal/dvfs"
	"github.com/worldland/gpugov/internal/queue"
)

// Sample is the outcome of one sampling tick
type Sample struct {
	At          time.Time `json:"at"`
	Utilization int       `json:"utilization"`
	Clock       int       `json:"clock"`
	Governor    string    `json:"governor"`
	// Skipped is set when the device was powered off and nothing was sampled
	Skipped bool `json:"skipped"`
}

// DaemonStatus summarizes the sampling loop for the status endpoint
type DaemonStatus struct {
	Device      domain.DeviceInfo `json:"device"`
	Samples     uint64            `json:"samples"`
	Skipped     uint64            `json:"skipped"`
	ApplyErrors uint64            `json:"apply_errors"`
	Last        *Sample           `json:"last,omitempty"`
}

// InitRetry bounds how long the daemon retries opening the GPU at start-up
type InitRetry struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultInitRetry returns the start-up retry policy
func DefaultInitRetry() InitRetry {
	return InitRetry{
		InitialInterval: 2 * time.Second,
		MaxInterval:     10 * time.Second,
		MaxElapsedTime:  30 * time.Second,
	}
}

// GovernorDaemon samples one GPU on every poll interval, runs the dispatcher
// and programs the chosen clock. Job events from the provider feed the
// queue tracker in the same loop.
type GovernorDaemon struct {
	gpu        domain.GPUProvider
	dispatcher *dvfs.Dispatcher
	tracker    *queue.Tracker
	poll       domain.PollIntervalControl
	retry      InitRetry
	logger     *slog.Logger

	applyWarn  rate.Sometimes
	sampleWarn rate.Sometimes

	mu         sync.Mutex
	status     DaemonStatus
	wasPowered bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewGovernorDaemon creates a daemon. tracker may be nil when the provider
// reports no job events.
func NewGovernorDaemon(gpu domain.GPUProvider, dispatcher *dvfs.Dispatcher, tracker *queue.Tracker,
	poll domain.PollIntervalControl, logger *slog.Logger) *GovernorDaemon {
	if logger == nil {
		logger = slog.Default()
	}
	return &GovernorDaemon{
		gpu:        gpu,
		dispatcher: dispatcher,
		tracker:    tracker,
		poll:       poll,
		retry:      DefaultInitRetry(),
		logger:     logger.With("component", "daemon"),
		applyWarn:  rate.Sometimes{First: 1, Interval: 30 * time.Second},
		sampleWarn: rate.Sometimes{First: 1, Interval: 30 * time.Second},
		wasPowered: true,
		stopCh:     make(chan struct{}),
	}
}

// SetInitRetry overrides the start-up retry policy
func (d *GovernorDaemon) SetInitRetry(r InitRetry) {
	d.retry = r
}

// Init opens the GPU, retrying with exponential backoff, and programs the
// governor's start clock without allowing the change to be deferred
func (d *GovernorDaemon) Init(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.retry.InitialInterval
	b.MaxInterval = d.retry.MaxInterval
	b.MaxElapsedTime = d.retry.MaxElapsedTime

	operation := func() error {
		if err := d.gpu.Init(); err != nil {
			d.logger.Warn("GPU init failed, retrying", "error", err)
			return err
		}
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("failed to initialize GPU after retries: %w", err)
	}

	info, err := d.gpu.Info()
	if err != nil {
		d.logger.Warn("failed to read device info", "error", err)
	}

	start := d.dispatcher.CurClock()
	if err := d.gpu.Apply(ctx, start, false, false); err != nil {
		return fmt.Errorf("failed to apply start clock %d: %w", start, err)
	}
	d.dispatcher.SetCurClock(start)

	d.mu.Lock()
	d.status.Device = info
	d.mu.Unlock()

	d.logger.Info("GPU initialized", "uuid", info.UUID, "name", info.Name,
		"governor", d.dispatcher.Governor().String(), "start_clock", start)
	return nil
}

// Start initializes the GPU and runs the sampling loop until ctx is done,
// Stop is called or a governor fault occurs
func (d *GovernorDaemon) Start(ctx context.Context) error {
	if err := d.Init(ctx); err != nil {
		return err
	}
	defer func() {
		if err := d.gpu.Shutdown(); err != nil {
			d.logger.Warn("GPU shutdown failed", "error", err)
		}
	}()
	return d.Run(ctx)
}

// Run is the sampling loop. The timer is re-armed from the poll interval
// after every tick so assist mode can change the period.
func (d *GovernorDaemon) Run(ctx context.Context) error {
	var events <-chan domain.JobEvent
	if src, ok := d.gpu.(domain.JobEventSource); ok && d.tracker != nil {
		events = src.JobEvents()
	}

	timer := time.NewTimer(d.poll.PollInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.stopCh:
			return nil
		case ev := <-events:
			d.tracker.RecordJob(ev)
		case <-timer.C:
			if _, err := d.Tick(ctx); err != nil {
				var fault *dvfs.FaultError
				if errors.As(err, &fault) {
					return err
				}
				d.sampleWarn.Do(func() {
					d.logger.Warn("sampling tick failed", "error", err)
				})
			}
			timer.Reset(d.poll.PollInterval())
		}
	}
}

// Tick takes one utilization sample, decides the next clock, raises it to
// the min clock limit and applies it.
// A powered-off device is skipped and its job counters are reset.
func (d *GovernorDaemon) Tick(ctx context.Context) (Sample, error) {
	sample := Sample{At: time.Now()}

	if !d.gpu.PoweredOn() {
		d.mu.Lock()
		if d.wasPowered && d.tracker != nil {
			d.tracker.Reset(true)
		}
		d.wasPowered = false
		d.status.Skipped++
		d.mu.Unlock()

		sample.Skipped = true
		sample.Clock = d.dispatcher.CurClock()
		sample.Governor = d.dispatcher.Governor().String()
		return sample, nil
	}
	d.mu.Lock()
	d.wasPowered = true
	d.mu.Unlock()

	util, err := d.gpu.Utilization(ctx)
	if err != nil {
		return sample, fmt.Errorf("failed to sample utilization: %w", err)
	}

	clock, err := d.dispatcher.DecideNextFrequency(util)
	if err != nil {
		return sample, err
	}
	clock = d.dispatcher.FloorClock(clock)
	sample.Utilization = util
	sample.Clock = clock
	sample.Governor = d.dispatcher.Governor().String()

	if err := d.gpu.Apply(ctx, clock, true, false); err != nil {
		d.mu.Lock()
		d.status.ApplyErrors++
		d.mu.Unlock()
		d.applyWarn.Do(func() {
			d.logger.Warn("failed to apply clock", "clock", clock, "error", err)
		})
		sample.Clock = d.dispatcher.CurClock()
	} else {
		d.dispatcher.SetCurClock(clock)
	}

	d.mu.Lock()
	d.status.Samples++
	d.status.Last = &sample
	d.mu.Unlock()

	d.logger.Debug("sample", "utilization", util, "clock", sample.Clock, "governor", sample.Governor)
	return sample, nil
}

// Status returns the loop counters and the last sample
func (d *GovernorDaemon) Status() DaemonStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	status := d.status
	if status.Last != nil {
		last := *status.Last
		status.Last = &last
	}
	return status
}

// Stop ends the sampling loop
func (d *GovernorDaemon) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}
