package features

// Fibonacci computes retracement and extension levels between a swing
// anchor's most recent confirmed high-low pair. Levels are recomputed
// only when the anchor's version advances, since
// the pair is otherwise unchanged bar to bar.
type Fibonacci struct {
	swingKey string
	lastVer  int

	retr236, retr382, retr5, retr618, retr786 float64
	ext127, ext162                            float64
	version                                   int
}

func NewFibonacci(swingKey string) *Fibonacci {
	return &Fibonacci{swingKey: swingKey}
}

func (f *Fibonacci) Fields() []string {
	return []string{"retr_236", "retr_382", "retr_5", "retr_618", "retr_786", "ext_127", "ext_162", "version"}
}

func (f *Fibonacci) Update(_ StructBar, deps map[string]float64) map[string]float64 {
	ver := int(deps[f.swingKey+".version"])
	high := deps[f.swingKey+".pair_high_level"]
	low := deps[f.swingKey+".pair_low_level"]

	if ver != f.lastVer && !isNaN(high) && !isNaN(low) {
		rng := high - low
		f.retr236 = high - rng*0.236
		f.retr382 = high - rng*0.382
		f.retr5 = high - rng*0.5
		f.retr618 = high - rng*0.618
		f.retr786 = high - rng*0.786
		f.ext127 = high + rng*0.272
		f.ext162 = high + rng*0.618
		f.lastVer = ver
		f.version++
	}

	return map[string]float64{
		"retr_236": valueOr(f.version > 0, f.retr236),
		"retr_382": valueOr(f.version > 0, f.retr382),
		"retr_5":   valueOr(f.version > 0, f.retr5),
		"retr_618": valueOr(f.version > 0, f.retr618),
		"retr_786": valueOr(f.version > 0, f.retr786),
		"ext_127":  valueOr(f.version > 0, f.ext127),
		"ext_162":  valueOr(f.version > 0, f.ext162),
		"version":  float64(f.version),
	}
}
