package dvfs

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidGovernor = errors.New("invalid governor")
	ErrEmptyTable      = errors.New("operating-point table is empty")
	ErrTableOrder      = errors.New("operating-point clocks must be strictly descending")
	ErrInvalidClock    = errors.New("invalid clock")
	ErrNotInitialized  = errors.New("governor not initialized")
)

// FaultError reports a step that escaped its bounds after a governor ran.
// The device state can no longer be trusted; callers halt or reinitialize.
type FaultError struct {
	Governor GovernorID
	Step     int
	Lower    int
	Upper    int
	State    Snapshot
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("governor %s left step %d outside [%d, %d] (util=%d cur_clock=%d max=%d min=%d limit=%d)",
		e.Governor, e.Step, e.Lower, e.Upper,
		e.State.Utilization, e.State.CurClock, e.State.MaxClock, e.State.MinClock, e.State.MaxClockLimit)
}
