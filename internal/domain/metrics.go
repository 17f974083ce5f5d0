package domain

// DeviceInfo represents static GPU information reported at start-up
type DeviceInfo struct {
	UUID        string `json:"uuid"`
	Name        string `json:"name"`
	MaxClockMHz int    `json:"max_clock_mhz"`
	CurClockMHz int    `json:"cur_clock_mhz"`
}

// JobState is the lifecycle stage a GPU job moved into
type JobState int

const (
	JobQueued      JobState = iota // submitted, waiting for the hardware queue
	JobInHW                        // dispatched to the hardware
	JobHWCompleted                 // finished on the hardware
	JobCompleted                   // fully retired; not counted
)

// JobEvent is one job state transition. Soft jobs never reach the hardware
// and are ignored by occupancy accounting. Stopped marks a job evicted from
// the hardware back to the queue.
type JobEvent struct {
	State   JobState
	SoftJob bool
	Stopped bool
}
