package dvfs

const (
	historyLen  = 12
	weightRows  = 11
	numClasses  = 2
	noClassYet  = -1
	maxClassIdx = weightRows - 1
)

// weightTable holds one coefficient row per weight class; slot 0 weighs
// the newest sample.
var weightTable = [weightRows][historyLen]int64{
	{48, 44, 40, 36, 32, 28, 24, 20, 16, 12, 8, 4},
	{100, 10, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0},
	{200, 40, 8, 2, 1, 0, 0, 0, 0, 0, 0, 0},
	{300, 90, 27, 8, 2, 1, 0, 0, 0, 0, 0, 0},
	{400, 160, 64, 26, 10, 4, 2, 1, 0, 0, 0, 0},
	{500, 250, 125, 63, 31, 16, 8, 4, 2, 1, 0, 0},
	{600, 360, 216, 130, 78, 47, 28, 17, 10, 6, 4, 2},
	{700, 490, 343, 240, 168, 118, 82, 58, 40, 28, 20, 14},
	{800, 640, 512, 410, 328, 262, 210, 168, 134, 107, 86, 69},
	{900, 810, 729, 656, 590, 531, 478, 430, 387, 349, 314, 282},
	{48, 44, 40, 36, 32, 28, 24, 20, 16, 12, 8, 4},
}

// Predictor forecasts utilization as a weighted moving average over the
// last historyLen samples, evaluated for two weight classes at once.
type Predictor struct {
	history   [numClasses][historyLen]Fixed
	class     [numClasses]int
	weightSum [numClasses]int64
	weighted  [numClasses]Fixed
	samples   int
}

// NewPredictor returns a predictor with an empty history
func NewPredictor() *Predictor {
	return &Predictor{class: [numClasses]int{noClassYet, noClassYet}}
}

// Enabled reports whether a full history has been recorded
func (p *Predictor) Enabled() bool {
	return p.samples >= historyLen
}

// Reset disables the predictor until a fresh full history is recorded
func (p *Predictor) Reset() {
	p.samples = 0
}

// Classes returns the clamped weight classes in use
func (p *Predictor) Classes() [numClasses]int {
	return p.class
}

func clampClass(idx int) int {
	if idx < 0 {
		return 0
	}
	if idx > maxClassIdx {
		return maxClassIdx
	}
	return idx
}

func (p *Predictor) selectClasses(classes [numClasses]int) {
	for i := range classes {
		c := clampClass(classes[i])
		if c != p.class[i] {
			p.class[i] = c
			p.weightSum = [numClasses]int64{}
		}
	}
	if p.weightSum[0] != 0 && p.weightSum[1] != 0 {
		return
	}
	for i := range p.weightSum {
		p.weightSum[i] = 0
		for _, w := range weightTable[p.class[i]] {
			p.weightSum[i] += w
		}
	}
}

// Predict records utilization (0..100) sampled at curClock and returns the
// forecast load, in percent scaled by 2^10. Until the history is full the
// sample is returned unchanged.
func (p *Predictor) Predict(utilization, curClock, maxClock int, classes [numClasses]int) Fixed {
	p.selectClasses(classes)

	normalized := FixedFromInt(utilization * curClock).DivInt(maxClock)

	for c := range p.history {
		h := &p.history[c]
		copy(h[1:], h[:historyLen-1])
		h[0] = normalized

		var acc Fixed
		for i, w := range weightTable[p.class[c]] {
			acc += h[i] * Fixed(w)
		}
		p.weighted[c] = acc / Fixed(p.weightSum[c])
	}

	if p.samples < historyLen {
		p.samples++
	}
	if !p.Enabled() {
		return FixedFromInt(utilization)
	}

	best := p.weighted[0]
	if p.weighted[1] > best {
		best = p.weighted[1]
	}
	return best.MulInt(maxClock).DivInt(curClock)
}
