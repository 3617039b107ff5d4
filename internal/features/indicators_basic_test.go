package features

import (
	"math"
	"math/rand"
	"testing"
)

// synthetic deterministic series, independent of any PRNG seeded by
// wall-clock state (the engine itself is never allowed to depend on
// either), used as the shared input for every parity test.
func syntheticSeries(n int) []float64 {
	r := rand.New(rand.NewSource(42))
	out := make([]float64, n)
	v := 100.0
	for i := range out {
		v += r.NormFloat64()
		out[i] = v
	}
	return out
}

func vectorizedSMA(series []float64, length int) []float64 {
	out := make([]float64, len(series))
	for i := range series {
		if i+1 < length {
			out[i] = NaN
			continue
		}
		var sum float64
		for j := i - length + 1; j <= i; j++ {
			sum += series[j]
		}
		out[i] = sum / float64(length)
	}
	return out
}

func vectorizedEMA(series []float64, length int) []float64 {
	out := make([]float64, len(series))
	alpha := 2.0 / float64(length+1)
	var ema float64
	seeded := false
	for i := range series {
		if i+1 < length {
			out[i] = NaN
			continue
		}
		if !seeded {
			var sum float64
			for j := i - length + 1; j <= i; j++ {
				sum += series[j]
			}
			ema = sum / float64(length)
			seeded = true
		} else {
			ema = alpha*series[i] + (1-alpha)*ema
		}
		out[i] = ema
	}
	return out
}

// The incremental SMA/EMA must match a reference vectorized computation
// within 1e-9 relative tolerance on a 10k-bar synthetic input, ignoring
// the warmup prefix.
func TestSMAIncrementalVectorizedParity(t *testing.T) {
	const length = 20
	series := syntheticSeries(10000)
	want := vectorizedSMA(series, length)

	sma := NewSMA(length)
	for i, v := range series {
		got := sma.Update(Bar{Value: v})[0]
		if i+1 < length {
			continue
		}
		assertClose(t, i, got, want[i])
	}
}

func TestEMAIncrementalVectorizedParity(t *testing.T) {
	const length = 12
	series := syntheticSeries(10000)
	want := vectorizedEMA(series, length)

	ema := NewEMA(length)
	for i, v := range series {
		got := ema.Update(Bar{Value: v})[0]
		if i+1 < length {
			continue
		}
		assertClose(t, i, got, want[i])
	}
}

func assertClose(t *testing.T, idx int, got, want float64) {
	t.Helper()
	if want == 0 {
		if math.Abs(got) > 1e-9 {
			t.Fatalf("idx %d: got %v, want 0", idx, got)
		}
		return
	}
	if rel := math.Abs((got - want) / want); rel > 1e-9 {
		t.Fatalf("idx %d: got %v, want %v (relative error %v)", idx, got, want, rel)
	}
}

// WarmupBars output must stay NaN for exactly the declared warmup prefix,
// then never re-emit NaN again (a non-NaN run must not waver).
func TestSMAWarmupBoundary(t *testing.T) {
	const length = 5
	sma := NewSMA(length)
	for i := 0; i < length-1; i++ {
		if v := sma.Update(Bar{Value: float64(i)})[0]; !math.IsNaN(v) {
			t.Fatalf("bar %d: expected NaN during warmup, got %v", i, v)
		}
	}
	if v := sma.Update(Bar{Value: float64(length - 1)})[0]; math.IsNaN(v) {
		t.Fatalf("bar %d: expected a value once warmup completes", length-1)
	}
}

func TestMACDWarmupFormula(t *testing.T) {
	m := NewMACD(12, 26, 9)
	if got, want := m.WarmupBars(), 26+9-1; got != want {
		t.Errorf("MACD.WarmupBars() = %d, want %d (slow + signal - 1)", got, want)
	}
}
