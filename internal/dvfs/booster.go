package dvfs

// boosterBurstPercent is the load jump, as a share of the current clock,
// that counts as a burst
const boosterBurstPercent = 50

// boosterGovernor jumps two levels when clock*utilization grows by more
// than half the current clock's capacity between two samples.
type boosterGovernor struct {
	prevWeight int
}

func (g *boosterGovernor) next(s *State, utilization int) {
	curClock := s.curClock()
	weight := curClock * utilization
	threshold := curClock * boosterBurstPercent

	if s.Step >= s.level(s.MaxClock)+2 && weight-g.prevWeight > threshold {
		s.Step -= 2
		s.clampToMaxLimit()
		s.resetDownRequirement()
	} else {
		defaultGovernor{}.next(s, utilization)
	}

	g.prevWeight = weight
}
