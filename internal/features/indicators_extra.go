package features

import "math"

// WMA is a linearly-weighted moving average (newest bar weighted Length,
// oldest weighted 1). Recomputed from the window buffer each bar, the same
// pragmatic O(length) compromise StdDev already uses — the window is
// small and bounded by the declared length, so it stays far from an
// O(series length) per-bar cost.
type WMA struct {
	length int
	r      *ring
}

func NewWMA(length int) *WMA { return &WMA{length: length, r: newRing(length)} }

func (w *WMA) WarmupBars() int      { return w.length }
func (w *WMA) OutputKeys() []string { return []string{"value"} }

func (w *WMA) Update(b Bar) []float64 {
	w.r.push(b.Value)
	if !w.r.full() {
		return []float64{NaN}
	}
	vals := w.r.values()
	var num, den float64
	for i, v := range vals {
		weight := float64(i + 1)
		num += weight * v
		den += weight
	}
	return []float64{num / den}
}

// DEMA is the double exponential moving average: 2*EMA - EMA(EMA).
type DEMA struct {
	length  int
	e1, e2  *EMA
}

func NewDEMA(length int) *DEMA {
	return &DEMA{length: length, e1: NewEMA(length), e2: NewEMA(length)}
}

func (d *DEMA) WarmupBars() int      { return 2*d.length - 1 }
func (d *DEMA) OutputKeys() []string { return []string{"value"} }

func (d *DEMA) Update(b Bar) []float64 {
	v1 := d.e1.Update(b)[0]
	if math.IsNaN(v1) {
		return []float64{NaN}
	}
	v2 := d.e2.Update(Bar{Value: v1})[0]
	if math.IsNaN(v2) {
		return []float64{NaN}
	}
	return []float64{2*v1 - v2}
}

// TEMA is the triple exponential moving average: 3*EMA - 3*EMA(EMA) + EMA(EMA(EMA)).
type TEMA struct {
	length      int
	e1, e2, e3  *EMA
}

func NewTEMA(length int) *TEMA {
	return &TEMA{length: length, e1: NewEMA(length), e2: NewEMA(length), e3: NewEMA(length)}
}

func (t *TEMA) WarmupBars() int      { return 3*t.length - 2 }
func (t *TEMA) OutputKeys() []string { return []string{"value"} }

func (t *TEMA) Update(b Bar) []float64 {
	v1 := t.e1.Update(b)[0]
	if math.IsNaN(v1) {
		return []float64{NaN}
	}
	v2 := t.e2.Update(Bar{Value: v1})[0]
	if math.IsNaN(v2) {
		return []float64{NaN}
	}
	v3 := t.e3.Update(Bar{Value: v2})[0]
	if math.IsNaN(v3) {
		return []float64{NaN}
	}
	return []float64{3*v1 - 3*v2 + v3}
}

// Momentum is the simple Length-bar price difference: close - close[n].
type Momentum struct {
	length int
	hist   *ring
}

func NewMomentum(length int) *Momentum { return &Momentum{length: length, hist: newRing(length)} }

func (m *Momentum) WarmupBars() int      { return m.length + 1 }
func (m *Momentum) OutputKeys() []string { return []string{"value"} }

func (m *Momentum) Update(b Bar) []float64 {
	evicted, didEvict := m.hist.push(b.Value)
	if !m.hist.full() || !didEvict {
		return []float64{NaN}
	}
	return []float64{b.Value - evicted}
}

// CCI is the commodity channel index: (typical - SMA(typical)) / (0.015 * mean absolute deviation).
// Operates on the configured input series (conventionally hlc3) as its typical price.
type CCI struct {
	length int
	r      *ring
}

func NewCCI(length int) *CCI { return &CCI{length: length, r: newRing(length)} }

func (c *CCI) WarmupBars() int      { return c.length }
func (c *CCI) OutputKeys() []string { return []string{"value"} }

func (c *CCI) Update(b Bar) []float64 {
	c.r.push(b.Value)
	if !c.r.full() {
		return []float64{NaN}
	}
	mean := c.r.mean()
	var mad float64
	for _, v := range c.r.values() {
		mad += math.Abs(v - mean)
	}
	mad /= float64(c.length)
	if mad == 0 {
		return []float64{0}
	}
	return []float64{(b.Value - mean) / (0.015 * mad)}
}

// WilliamsR is %R over Length bars: (highestHigh - close) / (highestHigh - lowestLow) * -100.
// Rolling extremes are O(1)-amortized via monotonic deques, reusing the
// same technique as RollingMax/RollingMin.
type WilliamsR struct {
	length  int
	idx     int
	highDq  *monoDeque
	lowDq   *monoDeque
}

func NewWilliamsR(length int) *WilliamsR {
	return &WilliamsR{length: length, highDq: newMonoDeque(true), lowDq: newMonoDeque(false)}
}

func (w *WilliamsR) WarmupBars() int      { return w.length }
func (w *WilliamsR) OutputKeys() []string { return []string{"value"} }

func (w *WilliamsR) Update(b Bar) []float64 {
	w.highDq.push(w.idx, b.High)
	w.lowDq.push(w.idx, b.Low)
	w.highDq.evictBefore(w.idx - w.length + 1)
	w.lowDq.evictBefore(w.idx - w.length + 1)
	w.idx++
	if w.idx < w.length {
		return []float64{NaN}
	}
	hh, _ := w.highDq.front()
	ll, _ := w.lowDq.front()
	if hh == ll {
		return []float64{0}
	}
	return []float64{(hh - b.Close) / (hh - ll) * -100}
}

// Stochastic is the %K/%D oscillator: %K from rolling high/low of the
// configured length, %D a SMA smoothing of %K over SignalLen bars.
type Stochastic struct {
	length, signalLen int
	idx               int
	highDq, lowDq     *monoDeque
	dSMA              *SMA
}

func NewStochastic(length, signalLen int) *Stochastic {
	return &Stochastic{
		length: length, signalLen: signalLen,
		highDq: newMonoDeque(true), lowDq: newMonoDeque(false),
		dSMA: NewSMA(signalLen),
	}
}

func (s *Stochastic) WarmupBars() int      { return s.length + s.signalLen - 1 }
func (s *Stochastic) OutputKeys() []string { return []string{"k", "d"} }

func (s *Stochastic) Update(b Bar) []float64 {
	s.highDq.push(s.idx, b.High)
	s.lowDq.push(s.idx, b.Low)
	s.highDq.evictBefore(s.idx - s.length + 1)
	s.lowDq.evictBefore(s.idx - s.length + 1)
	s.idx++
	if s.idx < s.length {
		return []float64{NaN, NaN}
	}
	hh, _ := s.highDq.front()
	ll, _ := s.lowDq.front()
	var k float64
	if hh == ll {
		k = 50
	} else {
		k = (b.Close - ll) / (hh - ll) * 100
	}
	d := s.dSMA.Update(Bar{Value: k})[0]
	return []float64{k, d}
}

// OBV is on-balance volume: a running cumulative sum of signed volume,
// where the sign follows the direction of the close-to-close move.
// Unbounded state, O(1) per bar, warmup of 2 bars (the first bar only records a previous close).
type OBV struct {
	haveClose bool
	prevClose float64
	cum       float64
}

func NewOBV() *OBV { return &OBV{} }

func (o *OBV) WarmupBars() int      { return 2 }
func (o *OBV) OutputKeys() []string { return []string{"value"} }

func (o *OBV) Update(b Bar) []float64 {
	if !o.haveClose {
		o.prevClose = b.Close
		o.haveClose = true
		return []float64{NaN}
	}
	switch {
	case b.Close > o.prevClose:
		o.cum += b.Volume
	case b.Close < o.prevClose:
		o.cum -= b.Volume
	}
	o.prevClose = b.Close
	return []float64{o.cum}
}

// VWAP is a rolling volume-weighted average price over Length bars:
// sum(typical*volume) / sum(volume), maintained with two running sums so
// each update is O(1).
type VWAP struct {
	length      int
	pv, vol     *ring
}

func NewVWAP(length int) *VWAP {
	return &VWAP{length: length, pv: newRing(length), vol: newRing(length)}
}

func (v *VWAP) WarmupBars() int      { return v.length }
func (v *VWAP) OutputKeys() []string { return []string{"value"} }

func (v *VWAP) Update(b Bar) []float64 {
	v.pv.push(b.Value * b.Volume)
	v.vol.push(b.Volume)
	if !v.pv.full() {
		return []float64{NaN}
	}
	if v.vol.sum == 0 {
		return []float64{NaN}
	}
	return []float64{v.pv.sum / v.vol.sum}
}

// DonchianChannel emits the Length-bar rolling high/low band and its
// midpoint, via the same monotonic-deque technique as RollingMax/RollingMin.
type DonchianChannel struct {
	length        int
	idx           int
	highDq, lowDq *monoDeque
}

func NewDonchianChannel(length int) *DonchianChannel {
	return &DonchianChannel{length: length, highDq: newMonoDeque(true), lowDq: newMonoDeque(false)}
}

func (d *DonchianChannel) WarmupBars() int      { return d.length }
func (d *DonchianChannel) OutputKeys() []string { return []string{"upper", "middle", "lower"} }

func (d *DonchianChannel) Update(b Bar) []float64 {
	d.highDq.push(d.idx, b.High)
	d.lowDq.push(d.idx, b.Low)
	d.highDq.evictBefore(d.idx - d.length + 1)
	d.lowDq.evictBefore(d.idx - d.length + 1)
	d.idx++
	if d.idx < d.length {
		return []float64{NaN, NaN, NaN}
	}
	hh, _ := d.highDq.front()
	ll, _ := d.lowDq.front()
	return []float64{hh, (hh + ll) / 2, ll}
}

// KeltnerChannel is an EMA midline with ATR-multiple bands, composed from
// the existing EMA/ATR primitives exactly as BBands composes SMA/StdDev.
type KeltnerChannel struct {
	length int
	mult   float64
	mid    *EMA
	atr    *ATR
}

func NewKeltnerChannel(length int, mult float64) *KeltnerChannel {
	return &KeltnerChannel{length: length, mult: mult, mid: NewEMA(length), atr: NewATR(length)}
}

func (k *KeltnerChannel) WarmupBars() int {
	if w := k.atr.WarmupBars(); w > k.mid.WarmupBars() {
		return w
	}
	return k.mid.WarmupBars()
}
func (k *KeltnerChannel) OutputKeys() []string { return []string{"upper", "middle", "lower"} }

func (k *KeltnerChannel) Update(b Bar) []float64 {
	mid := k.mid.Update(b)[0]
	atr := k.atr.Update(b)[0]
	if math.IsNaN(mid) || math.IsNaN(atr) {
		return []float64{NaN, NaN, NaN}
	}
	return []float64{mid + k.mult*atr, mid, mid - k.mult*atr}
}

// TRIX is the rate of change of a triple-smoothed EMA, expressed in percent.
type TRIX struct {
	length int
	e1, e2, e3 *EMA
	prev       float64
	havePrev   bool
}

func NewTRIX(length int) *TRIX {
	return &TRIX{length: length, e1: NewEMA(length), e2: NewEMA(length), e3: NewEMA(length)}
}

func (t *TRIX) WarmupBars() int      { return 3*t.length - 1 }
func (t *TRIX) OutputKeys() []string { return []string{"value"} }

func (t *TRIX) Update(b Bar) []float64 {
	v1 := t.e1.Update(b)[0]
	if math.IsNaN(v1) {
		return []float64{NaN}
	}
	v2 := t.e2.Update(Bar{Value: v1})[0]
	if math.IsNaN(v2) {
		return []float64{NaN}
	}
	v3 := t.e3.Update(Bar{Value: v2})[0]
	if math.IsNaN(v3) {
		return []float64{NaN}
	}
	if !t.havePrev {
		t.prev = v3
		t.havePrev = true
		return []float64{NaN}
	}
	out := NaN
	if t.prev != 0 {
		out = (v3 - t.prev) / t.prev * 100
	}
	t.prev = v3
	return []float64{out}
}

// ADX is Wilder's average directional index over Length bars, tracking
// +DI/-DI internally via the same Wilder-smoothed-average seeding
// convention ATR/RSI already use in this package, then smoothing DX itself
// over Length bars to produce ADX.
type ADX struct {
	length int

	have      bool
	prevHigh  float64
	prevLow   float64
	prevClose float64

	seedingDI bool
	countDI   int
	trSeed    *ring
	pdmSeed   *ring
	mdmSeed   *ring
	trAvg     float64
	pdmAvg    float64
	mdmAvg    float64

	seedingADX bool
	countADX   int
	dxSeed     *ring
	adx        float64
}

func NewADX(length int) *ADX {
	return &ADX{
		length:     length,
		seedingDI:  true,
		trSeed:     newRing(length),
		pdmSeed:    newRing(length),
		mdmSeed:    newRing(length),
		seedingADX: true,
		dxSeed:     newRing(length),
	}
}

func (a *ADX) WarmupBars() int      { return 2 * a.length }
func (a *ADX) OutputKeys() []string { return []string{"value"} }

func (a *ADX) Update(b Bar) []float64 {
	if !a.have {
		a.prevHigh, a.prevLow, a.prevClose = b.High, b.Low, b.Close
		a.have = true
		return []float64{NaN}
	}

	upMove := b.High - a.prevHigh
	downMove := a.prevLow - b.Low
	var pdm, mdm float64
	if upMove > downMove && upMove > 0 {
		pdm = upMove
	}
	if downMove > upMove && downMove > 0 {
		mdm = downMove
	}
	tr := math.Max(b.High-b.Low, math.Max(math.Abs(b.High-a.prevClose), math.Abs(b.Low-a.prevClose)))
	a.prevHigh, a.prevLow, a.prevClose = b.High, b.Low, b.Close

	if a.seedingDI {
		a.trSeed.push(tr)
		a.pdmSeed.push(pdm)
		a.mdmSeed.push(mdm)
		a.countDI++
		if a.countDI < a.length {
			return []float64{NaN}
		}
		a.trAvg = a.trSeed.sum
		a.pdmAvg = a.pdmSeed.sum
		a.mdmAvg = a.mdmSeed.sum
		a.seedingDI = false
	} else {
		n := float64(a.length)
		a.trAvg = a.trAvg - a.trAvg/n + tr
		a.pdmAvg = a.pdmAvg - a.pdmAvg/n + pdm
		a.mdmAvg = a.mdmAvg - a.mdmAvg/n + mdm
	}

	if a.trAvg == 0 {
		return []float64{NaN}
	}
	pdi := 100 * a.pdmAvg / a.trAvg
	mdi := 100 * a.mdmAvg / a.trAvg
	sum := pdi + mdi
	var dx float64
	if sum != 0 {
		dx = 100 * math.Abs(pdi-mdi) / sum
	}

	if a.seedingADX {
		a.dxSeed.push(dx)
		a.countADX++
		if a.countADX < a.length {
			return []float64{NaN}
		}
		a.adx = a.dxSeed.mean()
		a.seedingADX = false
		return []float64{a.adx}
	}
	a.adx = (a.adx*float64(a.length-1) + dx) / float64(a.length)
	return []float64{a.adx}
}
