package perf

import "testing"

// The equity path [10, 1, 1000, 900] tracks absolute and percentage
// drawdown independently by their own running peak, so the reported
// max_dd_pct is 0.90 (from peak 10 down to 1) while max_dd_abs is 100
// (from peak 1000 down to 900, only a 10% move).
func TestDrawdownWorkedExample(t *testing.T) {
	dd := NewDrawdown()
	for _, eq := range []float64{10, 1, 1000, 900} {
		dd.Update(eq)
	}

	const tol = 1e-9
	if got := dd.MaxPct(); abs(got-0.90) > tol {
		t.Errorf("MaxPct() = %v, want 0.90", got)
	}
	if got := dd.MaxAbs(); abs(got-100) > tol {
		t.Errorf("MaxAbs() = %v, want 100 (peak 1000 -> 900)", got)
	}
}

func TestCalmarUsesGeometricCAGR(t *testing.T) {
	cagr := CAGR(100, 200, 1) // doubled in one year
	if abs(cagr-1.0) > 1e-9 {
		t.Fatalf("CAGR(100,200,1) = %v, want 1.0", cagr)
	}
	calmar := Calmar(cagr, 0.5)
	if abs(calmar-2.0) > 1e-9 {
		t.Errorf("Calmar(1.0, 0.5) = %v, want 2.0", calmar)
	}
}

func TestCalmarZeroDrawdownIsZero(t *testing.T) {
	if got := Calmar(0.5, 0); got != 0 {
		t.Errorf("Calmar with zero max drawdown = %v, want 0", got)
	}
}

func TestProfitFactorAllWinsIsInf(t *testing.T) {
	pf := ProfitFactor(500, 0)
	if !isInf(pf) {
		t.Errorf("ProfitFactor(500, 0) = %v, want +Inf", pf)
	}
}

func TestWinRate(t *testing.T) {
	if got := WinRate(3, 4); abs(got-0.75) > 1e-9 {
		t.Errorf("WinRate(3,4) = %v, want 0.75", got)
	}
	if got := WinRate(0, 0); got != 0 {
		t.Errorf("WinRate(0,0) = %v, want 0", got)
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func isInf(f float64) bool {
	return f > 1e300
}
