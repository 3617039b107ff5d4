package rules

import (
	"math"
	"testing"

	"btcore/internal/bar"
)

// fakeResolver lets tests drive Compare/composite Eval without a real
// snapshot, one scripted value per ref key per Eval call.
type fakeResolver struct {
	price map[string]float64
	ind   map[string]float64
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{price: map[string]float64{}, ind: map[string]float64{}}
}

func (f *fakeResolver) ResolvePrice(kind string) (float64, bool) {
	v, ok := f.price[kind]
	return v, ok
}

func (f *fakeResolver) ResolveIndicator(ref CompiledRef) (float64, bool) {
	v, ok := f.ind[ref.Key+"."+ref.Field]
	return v, ok
}

func (f *fakeResolver) ResolveStructure(ref CompiledRef) (float64, bool) {
	v, ok := f.ind[ref.Key+"."+ref.Field]
	return v, ok
}

// cross_above is an edge, not a level: across three successive bars it
// stays false on the priming bar, fires on the bar where fast moves above
// slow, and does not fire again on the next bar where fast merely stays
// above slow.
func TestCrossAboveFiresOnceOnTheCrossingBar(t *testing.T) {
	lhs := IndicatorRef(bar.RoleLow, "fast", "value", 0)
	rhs := IndicatorRef(bar.RoleLow, "slow", "value", 0)
	cmp, err := NewCompare(OpCrossUp, lhs, rhs, CompiledRef{})
	if err != nil {
		t.Fatalf("NewCompare: %v", err)
	}
	r := newFakeResolver()

	// bar 0: priming bar, never signals true regardless of values.
	r.ind["fast.value"], r.ind["slow.value"] = 9, 10
	if res := cmp.Eval(r); res.Value {
		t.Fatalf("priming bar must not fire true")
	}

	// bar 1: fast crosses above slow.
	r.ind["fast.value"], r.ind["slow.value"] = 11, 10
	res := cmp.Eval(r)
	if res.Reason != ReasonOK || !res.Value {
		t.Fatalf("expected a true cross_above on the crossing bar, got %+v", res)
	}

	// bar 2: fast stays above slow — must not re-fire (no new crossing).
	r.ind["fast.value"], r.ind["slow.value"] = 12, 10
	res = cmp.Eval(r)
	if res.Value {
		t.Fatalf("cross_above re-fired on a bar with no new crossing")
	}
}

func TestCrossBelowTieBreak(t *testing.T) {
	lhs := IndicatorRef(bar.RoleLow, "fast", "value", 0)
	rhs := IndicatorRef(bar.RoleLow, "slow", "value", 0)
	cmp, _ := NewCompare(OpCrossDown, lhs, rhs, CompiledRef{})
	r := newFakeResolver()

	r.ind["fast.value"], r.ind["slow.value"] = 10, 10
	cmp.Eval(r) // prime on a tie: a previous-bar tie counts as "at or above"

	r.ind["fast.value"], r.ind["slow.value"] = 9, 10
	res := cmp.Eval(r)
	if !res.Value {
		t.Fatalf("expected cross_below to fire")
	}
}

func TestMissingLHSReason(t *testing.T) {
	lhs := IndicatorRef(bar.RoleLow, "missing", "value", 0)
	rhs := Literal(10, KindNumeric)
	cmp, _ := NewCompare(OpGT, lhs, rhs, CompiledRef{})
	res := cmp.Eval(newFakeResolver())
	if res.Reason != ReasonMissingLHS {
		t.Errorf("Reason = %v, want ReasonMissingLHS", res.Reason)
	}
}

func TestWarmupReasonOnNaNInput(t *testing.T) {
	lhs := IndicatorRef(bar.RoleLow, "ema", "value", 0)
	rhs := Literal(10, KindNumeric)
	cmp, _ := NewCompare(OpGT, lhs, rhs, CompiledRef{})
	r := newFakeResolver()
	r.ind["ema.value"] = math.NaN()
	res := cmp.Eval(r)
	if res.Reason != ReasonWarmup {
		t.Errorf("Reason = %v, want ReasonWarmup for a NaN (still-warming) indicator", res.Reason)
	}
}

// float == between two non-literal numeric refs is a hard compile error;
// == against a literal is allowed (e.g. comparing a discrete enum output
// to a constant).
func TestFloatEqualityBetweenNumericRefsRejected(t *testing.T) {
	lhs := IndicatorRef(bar.RoleLow, "a", "value", 0)
	rhs := IndicatorRef(bar.RoleLow, "b", "value", 0)
	if _, err := NewCompare(OpEQ, lhs, rhs, CompiledRef{}); err == nil {
		t.Fatalf("expected NewCompare to reject == between two numeric refs")
	}

	rhsLit := Literal(1, KindDiscrete)
	lhsDiscrete := CompiledRef{NS: NSIndicator, Kind: KindDiscrete, Key: "state", Field: "value"}
	if _, err := NewCompare(OpEQ, lhsDiscrete, rhsLit, CompiledRef{}); err != nil {
		t.Fatalf("== against a literal must be allowed, got %v", err)
	}
}

func TestHoldsForRequiresConsecutiveTrue(t *testing.T) {
	lhs := IndicatorRef(bar.RoleLow, "rsi", "value", 0)
	rhs := Literal(70, KindNumeric)
	cmp, _ := NewCompare(OpGT, lhs, rhs, CompiledRef{})
	h := &HoldsFor{Child: cmp, N: 3}
	r := newFakeResolver()

	seq := []float64{71, 72, 69, 75, 76, 77}
	var last EvalResult
	for _, v := range seq {
		r.ind["rsi.value"] = v
		last = h.Eval(r)
	}
	if !last.Value {
		t.Fatalf("expected holds_for(3) true after three consecutive passing bars, got %+v", last)
	}
}
