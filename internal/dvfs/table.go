package dvfs

import "fmt"

// OperatingPoint is one performance level of the GPU
type OperatingPoint struct {
	Clock         int `yaml:"clock" json:"clock"`
	Voltage       int `yaml:"voltage,omitempty" json:"voltage,omitempty"`
	MaxThreshold  int `yaml:"max_threshold" json:"max_threshold"`   // utilization % that triggers speed-up
	MinThreshold  int `yaml:"min_threshold" json:"min_threshold"`   // utilization % that triggers slow-down
	DownStaycount int `yaml:"down_staycount" json:"down_staycount"` // samples below MinThreshold before slowing down
	MemFreq       int `yaml:"mem_freq,omitempty" json:"mem_freq,omitempty"`
	CPUFreq       int `yaml:"cpu_freq,omitempty" json:"cpu_freq,omitempty"`
}

// Table lists operating points from the highest clock (index 0) to the lowest
type Table []OperatingPoint

// Validate checks that the table is non-empty and strictly descending by clock
func (t Table) Validate() error {
	if len(t) == 0 {
		return ErrEmptyTable
	}
	for i := 1; i < len(t); i++ {
		if t[i].Clock >= t[i-1].Clock {
			return fmt.Errorf("%w: level %d (%d) follows level %d (%d)",
				ErrTableOrder, i, t[i].Clock, i-1, t[i-1].Clock)
		}
	}
	return nil
}

// LevelOf returns the level whose clock equals clock. When no level matches
// exactly it returns the highest level running below clock, and the last
// level when clock is below the whole table.
func (t Table) LevelOf(clock int) int {
	for i, op := range t {
		if op.Clock <= clock {
			return i
		}
	}
	return len(t) - 1
}

// Contains reports whether clock is one of the table's levels
func (t Table) Contains(clock int) bool {
	for _, op := range t {
		if op.Clock == clock {
			return true
		}
	}
	return false
}

// Clocks returns the clock of every level in table order
func (t Table) Clocks() []int {
	clocks := make([]int, len(t))
	for i, op := range t {
		clocks[i] = op.Clock
	}
	return clocks
}
