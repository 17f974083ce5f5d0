package dvfs

import (
	"sort"
	"sync"
	"time"
)

// TimeInState accumulates how long each requested clock stayed requested.
// It is an EstimatorSink: the dispatcher reports every decision to it.
type TimeInState struct {
	mu        sync.Mutex
	now       func() time.Time
	lastClock int
	lastAt    time.Time
	residency map[int]time.Duration
}

// NewTimeInState creates an empty residency tracker
func NewTimeInState() *TimeInState {
	return &TimeInState{now: time.Now, residency: make(map[int]time.Duration)}
}

// ReportRequestedClock implements domain.EstimatorSink
func (t *TimeInState) ReportRequestedClock(clock int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if t.lastClock > 0 {
		t.residency[t.lastClock] += now.Sub(t.lastAt)
	}
	t.lastClock = clock
	t.lastAt = now
}

// Residency is the time spent at one clock
type Residency struct {
	Clock int           `json:"clock"`
	Time  time.Duration `json:"time_ns"`
}

// Residency returns the accumulated time per clock, highest clock first.
// The clock currently requested includes the time since its last report.
func (t *TimeInState) Residency() []Residency {
	t.mu.Lock()
	defer t.mu.Unlock()

	acc := make(map[int]time.Duration, len(t.residency)+1)
	for clock, d := range t.residency {
		acc[clock] = d
	}
	if t.lastClock > 0 {
		acc[t.lastClock] += t.now().Sub(t.lastAt)
	}

	out := make([]Residency, 0, len(acc))
	for clock, d := range acc {
		out = append(out, Residency{Clock: clock, Time: d})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Clock > out[j].Clock })
	return out
}

// Reset clears all residency
func (t *TimeInState) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.residency = make(map[int]time.Duration)
	t.lastClock = 0
}
