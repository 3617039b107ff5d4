package features

import "math"

// SMA is a simple moving average over Length closed bars, using a ring
// buffer running sum.
type SMA struct {
	length int
	r      *ring
}

func NewSMA(length int) *SMA { return &SMA{length: length, r: newRing(length)} }

func (s *SMA) WarmupBars() int        { return s.length }
func (s *SMA) OutputKeys() []string   { return []string{"value"} }
func (s *SMA) Update(b Bar) []float64 {
	s.r.push(b.Value)
	if !s.r.full() {
		return []float64{NaN}
	}
	return []float64{s.r.mean()}
}

// EMA is an exponential moving average. Per the engine-wide convention
// recorded in DESIGN.md, it seeds from an SMA over the first Length
// bars rather than from the first observed value.
type EMA struct {
	length int
	alpha  float64
	seed   *ring
	value  float64
	ready  bool
}

func NewEMA(length int) *EMA {
	return &EMA{length: length, alpha: 2.0 / float64(length+1), seed: newRing(length)}
}

func (e *EMA) WarmupBars() int      { return e.length }
func (e *EMA) OutputKeys() []string { return []string{"value"} }

func (e *EMA) Update(b Bar) []float64 {
	if !e.ready {
		e.seed.push(b.Value)
		if !e.seed.full() {
			return []float64{NaN}
		}
		e.value = e.seed.mean()
		e.ready = true
		return []float64{e.value}
	}
	e.value = e.alpha*b.Value + (1-e.alpha)*e.value
	return []float64{e.value}
}

// RSI is the Wilder relative-strength index over Length bars.
type RSI struct {
	length    int
	prev      float64
	have      bool
	avgGain   float64
	avgLoss   float64
	count     int
	seeding   bool
	gainSeed  *ring
	lossSeed  *ring
}

func NewRSI(length int) *RSI {
	return &RSI{length: length, gainSeed: newRing(length), lossSeed: newRing(length), seeding: true}
}

func (r *RSI) WarmupBars() int      { return r.length + 1 }
func (r *RSI) OutputKeys() []string { return []string{"value"} }

func (r *RSI) Update(b Bar) []float64 {
	if !r.have {
		r.prev = b.Value
		r.have = true
		return []float64{NaN}
	}
	diff := b.Value - r.prev
	r.prev = b.Value
	gain, loss := math.Max(diff, 0), math.Max(-diff, 0)

	if r.seeding {
		r.gainSeed.push(gain)
		r.lossSeed.push(loss)
		r.count++
		if r.count < r.length {
			return []float64{NaN}
		}
		r.avgGain = r.gainSeed.mean()
		r.avgLoss = r.lossSeed.mean()
		r.seeding = false
	} else {
		r.avgGain = (r.avgGain*float64(r.length-1) + gain) / float64(r.length)
		r.avgLoss = (r.avgLoss*float64(r.length-1) + loss) / float64(r.length)
	}

	if r.avgLoss == 0 {
		return []float64{100}
	}
	rs := r.avgGain / r.avgLoss
	return []float64{100 - 100/(1+rs)}
}

// ATR is Wilder's average true range over Length bars, computed from a
// bar's high/low/close (so it ignores the configured input_source and
// always reads the raw OHLC triple carried on Bar).
type ATR struct {
	length  int
	prevClose float64
	have    bool
	avg     float64
	count   int
	seeding bool
	seed    *ring
}

func NewATR(length int) *ATR {
	return &ATR{length: length, seed: newRing(length), seeding: true}
}

func (a *ATR) WarmupBars() int      { return a.length + 1 }
func (a *ATR) OutputKeys() []string { return []string{"value"} }

func (a *ATR) Update(b Bar) []float64 {
	if !a.have {
		a.prevClose = b.Close
		a.have = true
		return []float64{NaN}
	}
	tr := math.Max(b.High-b.Low, math.Max(math.Abs(b.High-a.prevClose), math.Abs(b.Low-a.prevClose)))
	a.prevClose = b.Close

	if a.seeding {
		a.seed.push(tr)
		a.count++
		if a.count < a.length {
			return []float64{NaN}
		}
		a.avg = a.seed.mean()
		a.seeding = false
	} else {
		a.avg = (a.avg*float64(a.length-1) + tr) / float64(a.length)
	}
	return []float64{a.avg}
}

// StdDev is a rolling population standard deviation (divides by Length)
// over Length bars, recomputed from the window buffer each bar
// (O(length)). BBands composes it, and it is also registered as the
// standalone stddev kind.
type StdDev struct {
	length int
	r      *ring
}

func NewStdDev(length int) *StdDev { return &StdDev{length: length, r: newRing(length)} }

func (s *StdDev) WarmupBars() int      { return s.length }
func (s *StdDev) OutputKeys() []string { return []string{"value"} }

func (s *StdDev) Update(b Bar) []float64 {
	s.r.push(b.Value)
	if !s.r.full() {
		return []float64{NaN}
	}
	mean := s.r.mean()
	var ss float64
	for _, v := range s.r.values() {
		d := v - mean
		ss += d * d
	}
	return []float64{math.Sqrt(ss / float64(s.length))}
}

// BBands is Bollinger Bands: a middle SMA plus upper/lower bands at
// Mult standard deviations.
type BBands struct {
	length int
	mult   float64
	sma    *SMA
	std    *StdDev
}

func NewBBands(length int, mult float64) *BBands {
	return &BBands{length: length, mult: mult, sma: NewSMA(length), std: NewStdDev(length)}
}

func (b *BBands) WarmupBars() int      { return b.length }
func (b *BBands) OutputKeys() []string { return []string{"upper", "middle", "lower"} }

func (b *BBands) Update(bar Bar) []float64 {
	mid := b.sma.Update(bar)[0]
	sd := b.std.Update(bar)[0]
	if math.IsNaN(mid) || math.IsNaN(sd) {
		return []float64{NaN, NaN, NaN}
	}
	return []float64{mid + b.mult*sd, mid, mid - b.mult*sd}
}

// MACD is the moving-average-convergence-divergence oscillator: fast EMA
// minus slow EMA, plus a signal EMA of that difference and their histogram.
type MACD struct {
	fast, slow, signal *EMA
	signalLen          int
}

func NewMACD(fastLen, slowLen, signalLen int) *MACD {
	return &MACD{fast: NewEMA(fastLen), slow: NewEMA(slowLen), signal: NewEMA(signalLen), signalLen: signalLen}
}

// WarmupBars is slow + signal - 1.
func (m *MACD) WarmupBars() int { return m.slow.length + m.signalLen - 1 }

func (m *MACD) OutputKeys() []string { return []string{"macd", "signal", "histogram"} }

func (m *MACD) Update(b Bar) []float64 {
	f := m.fast.Update(b)[0]
	s := m.slow.Update(b)[0]
	if math.IsNaN(f) || math.IsNaN(s) {
		return []float64{NaN, NaN, NaN}
	}
	macd := f - s
	sig := m.signal.Update(Bar{Value: macd})[0]
	if math.IsNaN(sig) {
		return []float64{macd, NaN, NaN}
	}
	return []float64{macd, sig, macd - sig}
}

// ROC is the rate of change over Length bars: (close - close[n]) / close[n] * 100.
type ROC struct {
	length int
	hist   *ring
}

func NewROC(length int) *ROC { return &ROC{length: length, hist: newRing(length)} }

func (r *ROC) WarmupBars() int      { return r.length + 1 }
func (r *ROC) OutputKeys() []string { return []string{"value"} }

func (r *ROC) Update(b Bar) []float64 {
	evicted, full := r.hist.push(b.Value)
	if !r.hist.full() || !full {
		return []float64{NaN}
	}
	if evicted == 0 {
		return []float64{NaN}
	}
	return []float64{(b.Value - evicted) / evicted * 100}
}

// RollingMax/RollingMin are O(1)-amortized rolling extremes via a
// monotonic deque, shared by the "rolling_window" structure and any
// indicator that needs a plain rolling high/low (e.g. Donchian-style width).
type RollingMax struct {
	length int
	idx    int
	dq     *monoDeque
}

func NewRollingMax(length int) *RollingMax { return &RollingMax{length: length, dq: newMonoDeque(true)} }

func (r *RollingMax) WarmupBars() int      { return r.length }
func (r *RollingMax) OutputKeys() []string { return []string{"value"} }

func (r *RollingMax) Update(b Bar) []float64 {
	r.dq.push(r.idx, b.Value)
	r.dq.evictBefore(r.idx - r.length + 1)
	r.idx++
	if r.idx < r.length {
		return []float64{NaN}
	}
	v, _ := r.dq.front()
	return []float64{v}
}

type RollingMin struct {
	length int
	idx    int
	dq     *monoDeque
}

func NewRollingMin(length int) *RollingMin { return &RollingMin{length: length, dq: newMonoDeque(false)} }

func (r *RollingMin) WarmupBars() int      { return r.length }
func (r *RollingMin) OutputKeys() []string { return []string{"value"} }

func (r *RollingMin) Update(b Bar) []float64 {
	r.dq.push(r.idx, b.Value)
	r.dq.evictBefore(r.idx - r.length + 1)
	r.idx++
	if r.idx < r.length {
		return []float64{NaN}
	}
	v, _ := r.dq.front()
	return []float64{v}
}
