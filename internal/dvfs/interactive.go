package dvfs

// interactiveGovernor adds a margin to the sampled load and can jump
// straight to a configured highspeed level once the load has stayed above
// HighspeedLoad for HighspeedDelay samples.
type interactiveGovernor struct {
	delayCount int
}

func (g *interactiveGovernor) next(s *State, utilization int) {
	util := utilization
	if !s.InteractiveFix {
		util += s.FreqMargin / 10
	}

	switch {
	case s.Step > s.level(s.maxEffectiveClock()) && util > s.Table[s.Step].MaxThreshold:
		if hs, ok := g.highspeedLevel(s); ok && util > s.Interactive.HighspeedLoad {
			if g.delayCount == s.Interactive.HighspeedDelay {
				s.Step = hs
				g.delayCount = 0
			} else {
				g.delayCount++
			}
		} else {
			s.Step--
			g.delayCount = 0
		}
		s.clampToMaxLimit()
		s.resetDownRequirement()
	case s.Step < s.level(s.MinClock) && util < s.Table[s.Step].MinThreshold:
		g.delayCount = 0
		if s.countDown() {
			s.Step++
			s.resetDownRequirement()
		}
	default:
		g.delayCount = 0
		s.resetDownRequirement()
	}
}

// highspeedLevel returns the configured jump target when it sits above the
// current step and inside the effective bounds
func (g *interactiveGovernor) highspeedLevel(s *State) (int, bool) {
	if s.Interactive.HighspeedClock <= 0 {
		return 0, false
	}
	hs := s.level(s.Interactive.HighspeedClock)
	lower, _ := s.Bounds()
	if hs >= s.Step || hs < lower {
		return 0, false
	}
	return hs, true
}
