package dvfs

// InteractiveParams configures the interactive governor's direct jump
type InteractiveParams struct {
	HighspeedClock int `yaml:"highspeed_clock" json:"highspeed_clock"` // 0 disables the jump
	HighspeedLoad  int `yaml:"highspeed_load" json:"highspeed_load"`
	HighspeedDelay int `yaml:"highspeed_delay" json:"highspeed_delay"`
}

// State is the per-device governor state. Governors mutate Step and
// DownRequirement in place; everything else is configuration or feedback.
type State struct {
	Table           Table
	Step            int
	DownRequirement int
	Governor        GovernorID

	MaxClock           int
	MinClock           int
	MaxClockLimit      int
	MinClockLimit      int
	UsingMaxLimitClock bool

	// user locks; 0 means unlocked
	MaxLock int
	MinLock int

	CurClock    int
	Utilization int

	FreqMargin     int
	InteractiveFix bool
	Interactive    InteractiveParams
	WeightClass    [2]int
}

func (s *State) level(clock int) int {
	return s.Table.LevelOf(clock)
}

// maxEffectiveClock is the cap the bounds invariant is checked against
func (s *State) maxEffectiveClock() int {
	if s.UsingMaxLimitClock {
		return s.MaxClockLimit
	}
	return s.MaxClock
}

// Bounds returns the lowest and highest step a governor may leave behind
func (s *State) Bounds() (lower, upper int) {
	return s.level(s.maxEffectiveClock()), s.level(s.MinClock)
}

func (s *State) inBounds() bool {
	lower, upper := s.Bounds()
	return s.Step >= lower && s.Step <= upper
}

func (s *State) resetDownRequirement() {
	s.DownRequirement = s.Table[s.Step].DownStaycount
}

// clampToMaxLimit drops to the limit's level when the step runs above it
func (s *State) clampToMaxLimit() {
	if s.Table[s.Step].Clock > s.MaxClockLimit {
		s.Step = s.level(s.MaxClockLimit)
	}
}

// countDown consumes one hysteresis tick and reports whether it was the last
func (s *State) countDown() bool {
	if s.DownRequirement > 0 {
		s.DownRequirement--
	}
	return s.DownRequirement == 0
}

// clock returns the clock of the current step
func (s *State) clock() int {
	return s.Table[s.Step].Clock
}

// curClock is the clock last applied to hardware, falling back to the
// current step's clock before anything has been applied
func (s *State) curClock() int {
	if s.CurClock > 0 {
		return s.CurClock
	}
	return s.clock()
}

// Snapshot is a read-only copy of the governor state for diagnostics
type Snapshot struct {
	Governor        GovernorID `json:"-"`
	GovernorName    string     `json:"governor"`
	Step            int        `json:"step"`
	Clock           int        `json:"clock"`
	CurClock        int        `json:"cur_clock"`
	Utilization     int        `json:"utilization"`
	DownRequirement int        `json:"down_requirement"`
	TableSize       int        `json:"table_size"`

	MaxClock           int  `json:"max_clock"`
	MinClock           int  `json:"min_clock"`
	MaxClockLimit      int  `json:"max_clock_limit"`
	MinClockLimit      int  `json:"min_clock_limit"`
	UsingMaxLimitClock bool `json:"using_max_limit_clock"`
	MaxLock            int  `json:"max_lock"`
	MinLock            int  `json:"min_lock"`

	AssistMode bool `json:"assist_mode"`
}

func (s *State) snapshot() Snapshot {
	snap := Snapshot{
		Governor:           s.Governor,
		GovernorName:       s.Governor.String(),
		Step:               s.Step,
		CurClock:           s.CurClock,
		Utilization:        s.Utilization,
		DownRequirement:    s.DownRequirement,
		TableSize:          len(s.Table),
		MaxClock:           s.MaxClock,
		MinClock:           s.MinClock,
		MaxClockLimit:      s.MaxClockLimit,
		MinClockLimit:      s.MinClockLimit,
		UsingMaxLimitClock: s.UsingMaxLimitClock,
		MaxLock:            s.MaxLock,
		MinLock:            s.MinLock,
	}
	if s.Step >= 0 && s.Step < len(s.Table) {
		snap.Clock = s.Table[s.Step].Clock
	}
	return snap
}
