package features

// Swing detects pivot highs/lows with Left/Right confirmation bars. A
// pivot is confirmed Right bars after it occurs, once every bar on both
// sides compares strictly against the candidate (strict inequality
// breaks ties — an equal neighbor disqualifies the candidate).
type Swing struct {
	Left, Right int
	window      []StructBar // ring of the last Left+Right+1 bars, oldest first

	highLevel, lowLevel   float64
	highIdx, lowIdx       int
	pairHighLevel         float64
	pairHighIdx           int
	pairLowLevel          float64
	pairLowIdx            int
	version               int
	haveHigh, haveLow     bool
}

func NewSwing(left, right int) *Swing {
	return &Swing{Left: left, Right: right}
}

func (s *Swing) Fields() []string {
	return []string{
		"high_level", "high_idx", "low_level", "low_idx", "version",
		"pair_high_level", "pair_high_idx", "pair_low_level", "pair_low_idx",
	}
}

func (s *Swing) Update(b StructBar, _ map[string]float64) map[string]float64 {
	s.window = append(s.window, b)
	size := s.Left + s.Right + 1
	if len(s.window) > size {
		s.window = s.window[len(s.window)-size:]
	}

	if len(s.window) == size {
		center := s.window[s.Left]
		if isPivotHigh(s.window, s.Left) {
			s.highLevel, s.highIdx = center.High, center.Idx
			s.haveHigh = true
			s.pairHighLevel, s.pairHighIdx = center.High, center.Idx
			s.version++
		}
		if isPivotLow(s.window, s.Left) {
			s.lowLevel, s.lowIdx = center.Low, center.Idx
			s.haveLow = true
			s.pairLowLevel, s.pairLowIdx = center.Low, center.Idx
			s.version++
		}
	}

	return map[string]float64{
		"high_level":      valueOr(s.haveHigh, s.highLevel),
		"high_idx":        float64(s.highIdx),
		"low_level":       valueOr(s.haveLow, s.lowLevel),
		"low_idx":         float64(s.lowIdx),
		"version":         float64(s.version),
		"pair_high_level": valueOr(s.haveHigh, s.pairHighLevel),
		"pair_high_idx":   float64(s.pairHighIdx),
		"pair_low_level":  valueOr(s.haveLow, s.pairLowLevel),
		"pair_low_idx":    float64(s.pairLowIdx),
	}
}

func valueOr(have bool, v float64) float64 {
	if !have {
		return NaN
	}
	return v
}

func isPivotHigh(w []StructBar, center int) bool {
	c := w[center].High
	for i, b := range w {
		if i == center {
			continue
		}
		if b.High >= c {
			return false
		}
	}
	return true
}

func isPivotLow(w []StructBar, center int) bool {
	c := w[center].Low
	for i, b := range w {
		if i == center {
			continue
		}
		if b.Low <= c {
			return false
		}
	}
	return true
}
