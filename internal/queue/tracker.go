// Package queue tracks how many GPU jobs are waiting and running, and how
// long the hardware queues stayed busy.
package queue

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/worldland/gpugov/internal/domain"
)

// Period is the sampling period the stale-accumulation check is based on
const Period = time.Millisecond

// ActiveTime is the accumulated busy time of the job queues
type ActiveTime struct {
	// Both is the time jobs were waiting while others ran on the hardware
	Both time.Duration `json:"both_active_ns"`
	// Hardware is the time at least one job ran on the hardware
	Hardware time.Duration `json:"hw_active_ns"`
}

// Counts is a point-in-time view of the job counters
type Counts struct {
	Queued     int64 `json:"queued"`
	Dispatched int64 `json:"dispatched"`
}

// Tracker counts queued and dispatched jobs without blocking the caller.
// Busy-time accumulation is best effort: when another caller holds the
// accumulation lock the sample is dropped.
type Tracker struct {
	queued     atomic.Int64
	dispatched atomic.Int64
	lastUpdate atomic.Int64 // unix nanos, 0 until the first transition

	mu     sync.Mutex
	active ActiveTime

	now       func() time.Time
	driftWarn rate.Sometimes
	logger    *slog.Logger
}

// NewTracker creates an empty tracker
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		now:       time.Now,
		driftWarn: rate.Sometimes{First: 1, Interval: time.Minute},
		logger:    logger.With("component", "queue"),
	}
}

func bothActive(queued, dispatched int64) bool {
	return queued > 0 && dispatched > 0
}

func hwActive(dispatched int64) bool {
	return dispatched > 0
}

// RecordTransition applies one job transition to the counters and
// accumulates busy time when the queue activity changed
func (t *Tracker) RecordTransition(queuedDelta, dispatchedDelta int64) {
	now := t.now()
	t.lastUpdate.CompareAndSwap(0, now.UnixNano())

	curQueued := t.queued.Add(queuedDelta)
	curDispatched := t.dispatched.Add(dispatchedDelta)
	prevQueued := curQueued - queuedDelta
	prevDispatched := curDispatched - dispatchedDelta

	prevBoth, curBoth := bothActive(prevQueued, prevDispatched), bothActive(curQueued, curDispatched)
	prevHW, curHW := hwActive(prevDispatched), hwActive(curDispatched)

	needUpdate := prevBoth != curBoth || prevHW != curHW
	if !needUpdate && prevDispatched > curDispatched {
		needUpdate = now.Sub(time.Unix(0, t.lastUpdate.Load())) > 2*Period
	}
	if needUpdate {
		t.TryAccumulate(now, prevBoth, prevHW)
	}

	if curQueued+curDispatched < 0 {
		t.driftWarn.Do(func() {
			t.logger.Warn("job counters went negative, resetting",
				"queued", curQueued, "dispatched", curDispatched)
		})
		t.Reset(false)
	}
}

// RecordJob maps a job state transition to counter deltas. Soft jobs and
// fully completed jobs never touch the hardware queues.
func (t *Tracker) RecordJob(ev domain.JobEvent) {
	if ev.SoftJob || ev.State == domain.JobCompleted {
		return
	}
	if ev.Stopped {
		t.RecordTransition(1, -1)
		return
	}

	switch ev.State {
	case domain.JobQueued:
		t.RecordTransition(1, 0)
	case domain.JobInHW:
		t.RecordTransition(-1, 1)
	case domain.JobHWCompleted:
		t.RecordTransition(0, -1)
	}
}

// TryAccumulate adds the time since the last update to the accumulators
// whose queue state was active, then moves the timestamp to now. It never
// blocks: it returns false and drops the sample if the lock is held.
func (t *Tracker) TryAccumulate(now time.Time, both, hw bool) bool {
	if !t.mu.TryLock() {
		return false
	}
	defer t.mu.Unlock()

	if last := t.lastUpdate.Load(); last != 0 {
		elapsed := now.Sub(time.Unix(0, last))
		if both {
			t.active.Both += elapsed
		}
		if hw {
			t.active.Hardware += elapsed
		}
	}
	t.lastUpdate.Store(now.UnixNano())
	return true
}

// Reset zeroes the job counters. poweredOff also forgets the last update so
// the next transition after power-up starts a fresh interval.
func (t *Tracker) Reset(poweredOff bool) {
	t.queued.Store(0)
	t.dispatched.Store(0)
	if poweredOff {
		t.lastUpdate.Store(0)
	}
}

// Counts returns the current job counters
func (t *Tracker) Counts() Counts {
	return Counts{Queued: t.queued.Load(), Dispatched: t.dispatched.Load()}
}

// ActiveTime returns the accumulated busy time
func (t *Tracker) ActiveTime() ActiveTime {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}
