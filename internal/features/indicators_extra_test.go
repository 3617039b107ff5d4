package features

import (
	"math"
	"testing"
)

func vectorizedWMA(series []float64, length int) []float64 {
	out := make([]float64, len(series))
	for i := range series {
		if i+1 < length {
			out[i] = NaN
			continue
		}
		var num, den float64
		for j := 0; j < length; j++ {
			weight := float64(j + 1)
			num += weight * series[i-length+1+j]
			den += weight
		}
		out[i] = num / den
	}
	return out
}

func TestWMAIncrementalVectorizedParity(t *testing.T) {
	const length = 15
	series := syntheticSeries(10000)
	want := vectorizedWMA(series, length)

	wma := NewWMA(length)
	for i, v := range series {
		got := wma.Update(Bar{Value: v})[0]
		if i+1 < length {
			continue
		}
		assertClose(t, i, got, want[i])
	}
}

func TestMomentumWarmupAndValue(t *testing.T) {
	const length = 5
	m := NewMomentum(length)
	series := []float64{1, 2, 3, 4, 5, 6, 7}
	var last float64
	for i, v := range series {
		last = m.Update(Bar{Value: v})[0]
		if i < length {
			if !math.IsNaN(last) {
				t.Fatalf("bar %d: expected NaN during warmup, got %v", i, last)
			}
		}
	}
	// at i=6 (7th bar, value 7), momentum = 7 - series[6-5] = 7 - 2 = 5
	if last != 5 {
		t.Fatalf("Momentum = %v, want 5", last)
	}
}

func TestOBVDirection(t *testing.T) {
	obv := NewOBV()
	bars := []Bar{
		{Close: 10, Volume: 100},
		{Close: 12, Volume: 50}, // up: +50
		{Close: 11, Volume: 30}, // down: -30
		{Close: 11, Volume: 20}, // flat: unchanged
	}
	var last float64
	for _, b := range bars {
		last = obv.Update(b)[0]
	}
	if last != 20 {
		t.Fatalf("OBV = %v, want 20 (50-30)", last)
	}
}

func TestStochasticBounds(t *testing.T) {
	s := NewStochastic(5, 3)
	for i := 0; i < 20; i++ {
		v := float64(100 + i)
		out := s.Update(Bar{High: v + 1, Low: v - 1, Close: v})
		if math.IsNaN(out[0]) {
			continue
		}
		if out[0] < 0 || out[0] > 100 {
			t.Fatalf("bar %d: %%K out of bounds: %v", i, out[0])
		}
	}
}

func TestADXWarmupFormula(t *testing.T) {
	a := NewADX(14)
	if got, want := a.WarmupBars(), 2*14; got != want {
		t.Errorf("ADX.WarmupBars() = %d, want %d", got, want)
	}
}

func TestDonchianChannelOrdering(t *testing.T) {
	d := NewDonchianChannel(5)
	var last []float64
	for i := 0; i < 10; i++ {
		v := float64(i)
		last = d.Update(Bar{High: v + 2, Low: v - 2, Close: v})
	}
	if !(last[0] >= last[1] && last[1] >= last[2]) {
		t.Fatalf("Donchian upper/middle/lower out of order: %v", last)
	}
}
