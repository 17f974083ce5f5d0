package dvfs

import (
	"time"

	"github.com/worldland/gpugov/internal/domain"
)

// threeLevelTable is the 800/600/400 table used throughout the governor tests
func threeLevelTable() Table {
	return Table{
		{Clock: 800, MaxThreshold: 90, MinThreshold: 10, DownStaycount: 3},
		{Clock: 600, MaxThreshold: 85, MinThreshold: 15, DownStaycount: 3},
		{Clock: 400, MaxThreshold: 80, MinThreshold: 20, DownStaycount: 3},
	}
}

// fiveLevelTable spans 1000..200 with uniform thresholds
func fiveLevelTable() Table {
	return Table{
		{Clock: 1000, MaxThreshold: 90, MinThreshold: 20, DownStaycount: 2},
		{Clock: 800, MaxThreshold: 80, MinThreshold: 20, DownStaycount: 2},
		{Clock: 600, MaxThreshold: 80, MinThreshold: 20, DownStaycount: 2},
		{Clock: 400, MaxThreshold: 80, MinThreshold: 20, DownStaycount: 2},
		{Clock: 200, MaxThreshold: 80, MinThreshold: 20, DownStaycount: 2},
	}
}

// newTestState builds a state spanning the whole table, starting at step
func newTestState(table Table, step int) *State {
	s := &State{
		Table:    table,
		Step:     step,
		MaxClock: table[0].Clock,
		MinClock: table[len(table)-1].Clock,
	}
	s.MaxClockLimit = s.MaxClock
	s.MinClockLimit = s.MinClock
	s.CurClock = table[step].Clock
	s.DownRequirement = table[step].DownStaycount
	return s
}

type recordingEstimator struct {
	clocks []int
}

func (r *recordingEstimator) ReportRequestedClock(clock int) {
	r.clocks = append(r.clocks, clock)
}

type testFlag bool

func (f *testFlag) Enabled() bool { return bool(*f) }

type recordingPoll struct {
	current  int64
	setCalls []int64
}

var (
	_ domain.EstimatorSink       = (*recordingEstimator)(nil)
	_ domain.FlagSource          = (*testFlag)(nil)
	_ domain.PollIntervalControl = (*recordingPoll)(nil)
)

func (r *recordingPoll) PollInterval() time.Duration {
	return time.Duration(r.current)
}

func (r *recordingPoll) SetPollInterval(d time.Duration) {
	r.current = int64(d)
	r.setCalls = append(r.setCalls, int64(d))
}
