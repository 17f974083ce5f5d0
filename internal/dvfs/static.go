package dvfs

// staticPeriod is the number of calls between two sweep steps
const staticPeriod = 10

// staticGovernor ignores utilization and sweeps the table one level every
// staticPeriod calls, turning around at the table edges or user locks.
type staticGovernor struct {
	count    int
	stepDown bool // true while moving toward the max clock
}

func newStaticGovernor() *staticGovernor {
	return &staticGovernor{stepDown: true}
}

func (g *staticGovernor) next(s *State, _ int) {
	g.count++
	if g.count < staticPeriod {
		return
	}
	g.count = 0

	lower, upper := s.Bounds()
	if g.stepDown {
		if s.Step > lower {
			s.Step--
		}
		if (s.MaxLock > 0 && s.clock() == s.MaxLock) || s.Step == lower {
			g.stepDown = false
		}
		return
	}

	if s.Step < upper {
		s.Step++
	}
	if (s.MinLock > 0 && s.clock() == s.MinLock) || s.Step == upper {
		g.stepDown = true
	}
}
