package domain

import (
	"sync/atomic"
	"time"
)

// Flag is a concurrency-safe FlagSource toggled by a collaborator
type Flag struct {
	v atomic.Bool
}

// Set changes the flag
func (f *Flag) Set(on bool) {
	f.v.Store(on)
}

// Enabled implements FlagSource
func (f *Flag) Enabled() bool {
	return f.v.Load()
}

// PollInterval is a concurrency-safe PollIntervalControl
type PollInterval struct {
	d atomic.Int64
}

// NewPollInterval creates a poll interval starting at d
func NewPollInterval(d time.Duration) *PollInterval {
	p := &PollInterval{}
	p.d.Store(int64(d))
	return p
}

// PollInterval implements PollIntervalControl
func (p *PollInterval) PollInterval() time.Duration {
	return time.Duration(p.d.Load())
}

// SetPollInterval implements PollIntervalControl
func (p *PollInterval) SetPollInterval(d time.Duration) {
	p.d.Store(int64(d))
}

// Compile-time interface checks
var (
	_ FlagSource          = (*Flag)(nil)
	_ PollIntervalControl = (*PollInterval)(nil)
)
