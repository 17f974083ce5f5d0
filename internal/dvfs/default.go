package dvfs

// defaultGovernor is pure threshold hysteresis: one level up as soon as the
// current level's max threshold is exceeded, one level down after
// DownStaycount consecutive samples under its min threshold.
type defaultGovernor struct{}

func (defaultGovernor) next(s *State, utilization int) {
	switch {
	case s.Step > s.level(s.MaxClock) && utilization > s.Table[s.Step].MaxThreshold:
		s.Step--
		s.clampToMaxLimit()
		s.resetDownRequirement()
	case s.Step < s.level(s.MinClock) && utilization < s.Table[s.Step].MinThreshold:
		if s.countDown() {
			s.Step++
			s.resetDownRequirement()
		}
	default:
		s.resetDownRequirement()
	}
}

// dynamicGovernor is the default governor with an adaptive step size: it
// moves two levels when the neighbouring level could not absorb the load
// either.
type dynamicGovernor struct{}

func (dynamicGovernor) next(s *State, utilization int) {
	maxLevel := s.level(s.MaxClock)
	minLevel := s.level(s.MinClock)

	switch {
	case s.Step > maxLevel && utilization > s.Table[s.Step].MaxThreshold:
		up := s.Table[s.Step-1]
		if s.Table[s.Step].Clock*utilization > up.Clock*up.MaxThreshold {
			s.Step -= 2
			if s.Step < maxLevel {
				s.Step = maxLevel
			}
		} else {
			s.Step--
		}
		s.clampToMaxLimit()
		s.resetDownRequirement()
	case s.Step < minLevel && utilization < s.Table[s.Step].MinThreshold:
		if !s.countDown() {
			return
		}
		down := s.Table[s.Step+1]
		if s.Table[s.Step].Clock*utilization < down.Clock*down.MinThreshold {
			s.Step += 2
			if s.Step > minLevel {
				s.Step = minLevel
			}
		} else {
			s.Step++
		}
		s.resetDownRequirement()
	default:
		s.resetDownRequirement()
	}
}
