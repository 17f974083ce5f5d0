// Package dvfs implements the GPU clock governor: the operating-point table,
// the six step-decision algorithms and the per-device dispatcher that runs
// one of them on every utilization sample.
package dvfs

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/worldland/gpugov/internal/domain"
)

// initialUtilization is the load a freshly selected governor reports
// before its first sample
const initialUtilization = 80

// Params configures the clock range and governor tuning of one device
type Params struct {
	MaxClock           int
	MinClock           int
	MaxClockLimit      int // 0 means MaxClock
	MinClockLimit      int // 0 means MinClock
	UsingMaxLimitClock bool

	FreqMargin     int
	InteractiveFix bool
	Interactive    InteractiveParams
	WeightClass    [2]int

	// BoostDisabled ignores the full-compute workload flag
	BoostDisabled bool
	// AssistPollInterval is the sampling period while assist mode is on
	AssistPollInterval time.Duration
}

// Hooks are the collaborators a dispatcher talks to. Any of them may be nil.
type Hooks struct {
	Estimator   domain.EstimatorSink
	AssistMode  domain.FlagSource
	FullCompute domain.FlagSource
	Poll        domain.PollIntervalControl
}

// Dispatcher owns the governor state of one device and runs the active
// governor on every sample
type Dispatcher struct {
	mu         sync.Mutex
	state      State
	registry   [numGovernors]GovernorInfo
	algorithms [numGovernors]algorithm
	ready      bool

	initialGovernor GovernorID
	savedPoll       time.Duration
	assistSwitched  bool
	assistWarn      rate.Sometimes

	params Params
	hooks  Hooks
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher with an empty registry. Tables are
// installed per governor before Init selects the first one.
func NewDispatcher(params Params, hooks Hooks, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if params.MaxClockLimit == 0 {
		params.MaxClockLimit = params.MaxClock
	}
	if params.MinClockLimit == 0 {
		params.MinClockLimit = params.MinClock
	}

	d := &Dispatcher{
		params:     params,
		hooks:      hooks,
		logger:     logger.With("component", "dvfs"),
		assistWarn: rate.Sometimes{First: 1, Interval: time.Minute},
	}
	for _, id := range AllGovernors() {
		d.registry[id] = GovernorInfo{ID: id, Name: id.String()}
	}
	d.state = State{
		MaxClock:           params.MaxClock,
		MinClock:           params.MinClock,
		MaxClockLimit:      params.MaxClockLimit,
		MinClockLimit:      params.MinClockLimit,
		UsingMaxLimitClock: params.UsingMaxLimitClock,
		FreqMargin:         params.FreqMargin,
		InteractiveFix:     params.InteractiveFix,
		Interactive:        params.Interactive,
		WeightClass:        params.WeightClass,
	}
	return d
}

// InstallTable sets the operating-point table governor id runs with
func (d *Dispatcher) InstallTable(id GovernorID, table Table) error {
	if !id.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidGovernor, id)
	}
	if err := table.Validate(); err != nil {
		return fmt.Errorf("table for %s: %w", id, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.registry[id].Table = append(Table(nil), table...)
	return nil
}

// SetStartClock sets the clock governor id starts at when selected
func (d *Dispatcher) SetStartClock(id GovernorID, clock int) error {
	if !id.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidGovernor, id)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if clock < d.state.MinClock || clock > d.state.MaxClock {
		return fmt.Errorf("%w: start clock %d outside [%d, %d]", ErrInvalidClock, clock, d.state.MinClock, d.state.MaxClock)
	}
	d.registry[id].StartClock = clock
	return nil
}

// Governors returns a copy of the registry
func (d *Dispatcher) Governors() []GovernorInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	infos := make([]GovernorInfo, 0, numGovernors)
	for _, info := range d.registry {
		info.Table = append(Table(nil), info.Table...)
		infos = append(infos, info)
	}
	return infos
}

// Init selects the device's configured governor; leaving assist mode
// always returns to it.
func (d *Dispatcher) Init(id GovernorID) error {
	if err := d.SwitchGovernor(id); err != nil {
		return fmt.Errorf("failed to initialize governor: %w", err)
	}

	d.mu.Lock()
	d.initialGovernor = id
	d.mu.Unlock()
	return nil
}

// SwitchGovernor selects governor id, resetting step, locks and hysteresis
// from its registry entry. An unknown id or an id without a table leaves the
// current governor unchanged.
func (d *Dispatcher) SwitchGovernor(id GovernorID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkGovernorLocked(id); err != nil {
		d.logger.Warn("invalid governor type", "governor", int(id))
		return err
	}

	if !d.ready {
		d.initialGovernor = id
	}
	d.selectLocked(id, true)
	d.state.CurClock = d.state.clock()
	d.state.Utilization = initialUtilization
	d.state.MaxLock = 0
	d.state.MinLock = 0
	d.state.DownRequirement = 1
	d.ready = true

	d.logger.Info("governor selected", "governor", id.String(), "clock", d.state.CurClock)
	return nil
}

func (d *Dispatcher) checkGovernorLocked(id GovernorID) error {
	if !id.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidGovernor, id)
	}
	if len(d.registry[id].Table) == 0 {
		return fmt.Errorf("%w: %s has no table", ErrInvalidGovernor, id)
	}
	return nil
}

// selectLocked points the state at id's table and start step. The start
// step is pulled into the current bounds, which move with the max clock
// limit. fresh drops the algorithm's private memory; the assist switch
// keeps it.
func (d *Dispatcher) selectLocked(id GovernorID, fresh bool) {
	info := d.registry[id]
	d.state.Table = info.Table
	d.state.Governor = id
	lower, upper := d.state.Bounds()
	d.state.Step = min(max(info.Table.LevelOf(info.StartClock), lower), upper)
	if fresh || d.algorithms[id] == nil {
		d.algorithms[id] = newAlgorithm(id)
	}
}

// handleAssistMode switches to the joint governor on the rising edge of
// assist mode and restores the configured governor and the saved poll
// interval on the falling edge. Steady assist mode is a no-op.
func (d *Dispatcher) handleAssistMode() {
	if d.hooks.AssistMode == nil {
		return
	}
	on := d.hooks.AssistMode.Enabled()

	var curPoll time.Duration
	if d.hooks.Poll != nil {
		curPoll = d.hooks.Poll.PollInterval()
	}

	d.mu.Lock()
	if on == d.assistSwitched || !d.ready {
		d.mu.Unlock()
		return
	}

	var newPoll time.Duration
	if on {
		if err := d.checkGovernorLocked(GovernorJoint); err != nil {
			d.mu.Unlock()
			d.assistWarn.Do(func() {
				d.logger.Warn("assist mode requested without a joint governor table", "error", err)
			})
			return
		}
		d.savedPoll = curPoll
		if d.state.Governor != GovernorJoint {
			d.selectLocked(GovernorJoint, false)
		}
		d.algorithms[GovernorJoint].(*jointGovernor).predictor.Reset()
		d.assistSwitched = true
		newPoll = d.params.AssistPollInterval
	} else {
		if d.state.Governor != d.initialGovernor {
			d.selectLocked(d.initialGovernor, false)
		}
		d.assistSwitched = false
		newPoll = d.savedPoll
	}
	governor := d.state.Governor
	d.mu.Unlock()

	if d.hooks.Poll != nil && newPoll > 0 {
		d.hooks.Poll.SetPollInterval(newPoll)
	}
	d.logger.Info("assist mode changed", "enabled", on, "governor", governor.String(), "poll_interval", newPoll)
}

// decideNextGovernor is the hook for picking a governor per sample; the
// active governor is kept.
func (d *Dispatcher) decideNextGovernor() GovernorID {
	return d.state.Governor
}

// DecideNextFrequency runs the active governor on one utilization sample
// (0..100) and returns the clock the device should run at. A *FaultError
// means the governor broke its bounds and the device must be reinitialized.
func (d *Dispatcher) DecideNextFrequency(utilization int) (int, error) {
	utilization = min(max(utilization, 0), 100)

	d.handleAssistMode()

	d.mu.Lock()
	if !d.ready {
		d.mu.Unlock()
		return 0, ErrNotInitialized
	}
	d.state.Utilization = utilization
	id := d.decideNextGovernor()
	d.algorithms[id].next(&d.state, utilization)
	if !d.state.inBounds() {
		fault := d.faultLocked()
		d.mu.Unlock()
		d.logger.Error("governor step out of bounds", "error", fault, "state", fault.State)
		return 0, fault
	}
	d.mu.Unlock()

	boost := d.hooks.FullCompute != nil && d.hooks.FullCompute.Enabled() && !d.params.BoostDisabled

	d.mu.Lock()
	if boost {
		d.state.Step = d.state.level(d.state.maxEffectiveClock())
	}
	clock := d.state.clock()
	d.mu.Unlock()

	if d.hooks.Estimator != nil {
		d.hooks.Estimator.ReportRequestedClock(clock)
	}
	return clock, nil
}

func (d *Dispatcher) faultLocked() *FaultError {
	lower, upper := d.state.Bounds()
	snap := d.state.snapshot()
	snap.AssistMode = d.assistSwitched
	return &FaultError{
		Governor: d.state.Governor,
		Step:     d.state.Step,
		Lower:    lower,
		Upper:    upper,
		State:    snap,
	}
}

// SetCurClock records the clock the actuator actually applied
func (d *Dispatcher) SetCurClock(clock int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.CurClock = clock
}

// SetMaxClockLimit changes the soft cap (thermal or user). The current step
// is pulled under the cap right away so the next sample starts in bounds.
func (d *Dispatcher) SetMaxClockLimit(clock int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if clock < d.state.MinClock {
		return fmt.Errorf("%w: max clock limit %d below min clock %d", ErrInvalidClock, clock, d.state.MinClock)
	}
	d.state.MaxClockLimit = clock
	if d.ready {
		d.state.clampToMaxLimit()
		if lower, _ := d.state.Bounds(); d.state.Step < lower {
			d.state.Step = lower
		}
	}
	return nil
}

// SetMinClockLimit sets the soft floor. Governors still decide over the
// whole range; FloorClock raises their decision before it is applied.
func (d *Dispatcher) SetMinClockLimit(clock int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if clock > d.state.MaxClock {
		return fmt.Errorf("%w: min clock limit %d above max clock %d", ErrInvalidClock, clock, d.state.MaxClock)
	}
	d.state.MinClockLimit = clock
	return nil
}

// FloorClock raises clock to the lowest table clock at or above the min
// clock limit. Clocks already at or above the limit are returned unchanged.
func (d *Dispatcher) FloorClock(clock int) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	limit := d.state.MinClockLimit
	if clock >= limit || len(d.state.Table) == 0 {
		return clock
	}
	for i := len(d.state.Table) - 1; i >= 0; i-- {
		if c := d.state.Table[i].Clock; c >= limit {
			return c
		}
	}
	return d.state.Table[0].Clock
}

// SetLocks sets the user max/min lock clocks the static governor turns at; 0 unlocks
func (d *Dispatcher) SetLocks(maxLock, minLock int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.MaxLock = maxLock
	d.state.MinLock = minLock
}

// Step returns the current step
func (d *Dispatcher) Step() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Step
}

// CurClock returns the clock last applied to hardware
func (d *Dispatcher) CurClock() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.CurClock
}

// Utilization returns the last sampled utilization
func (d *Dispatcher) Utilization() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Utilization
}

// Governor returns the active governor
func (d *Dispatcher) Governor() GovernorID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Governor
}

// Snapshot returns a copy of the governor state for diagnostics
func (d *Dispatcher) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap := d.state.snapshot()
	snap.AssistMode = d.assistSwitched
	return snap
}
