package dvfs

// jointGovernor ignores the per-level thresholds and picks the level that
// matches a predicted clock target plus a margin.
type jointGovernor struct {
	predictor *Predictor
}

func (g *jointGovernor) next(s *State, utilization int) {
	curClock := s.curClock()
	maxClock := s.maxEffectiveClock()

	weighted := g.predictor.Predict(utilization, curClock, s.MaxClock, s.WeightClass)
	utilT := weighted.MulInt(curClock).DivInt(100).Int()
	target := utilT + ((s.MaxClock-utilT)/1000)*s.FreqMargin

	lower, upper := s.level(maxClock), s.level(s.MinClock)
	switch {
	case target > maxClock:
		s.Step = lower
	case target < s.MinClock:
		s.Step = upper
	default:
		s.Step = upper
		for i := lower; i <= upper; i++ {
			if s.Table[i].Clock <= target {
				s.Step = i
				break
			}
		}
	}
}
