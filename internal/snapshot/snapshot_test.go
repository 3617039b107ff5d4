package snapshot

import (
	"testing"
	"time"

	"btcore/internal/bar"
)

func TestIndicatorOffsetLookup(t *testing.T) {
	s := New(bar.RoleLow)
	ts := time.Unix(0, 0).UTC()

	s.SetRole(&RoleView{
		Role:    bar.RoleLow,
		Idx:     2,
		TsClose: ts,
		Close:   105,
		Fields:  map[string]float64{"ema_fast.value": 103},
		History: []map[string]float64{
			{"ema_fast.value": 101},
			{"ema_fast.value": 102},
		},
	})

	if v, err := s.Indicator(bar.RoleLow, "ema_fast", "value", 0); err != nil || v != 103 {
		t.Fatalf("offset 0: got (%v, %v), want (103, nil)", v, err)
	}
	if v, err := s.Indicator(bar.RoleLow, "ema_fast", "value", 1); err != nil || v != 102 {
		t.Fatalf("offset 1: got (%v, %v), want (102, nil)", v, err)
	}
	if v, err := s.Indicator(bar.RoleLow, "ema_fast", "value", 2); err != nil || v != 101 {
		t.Fatalf("offset 2: got (%v, %v), want (101, nil)", v, err)
	}
	if _, err := s.Indicator(bar.RoleLow, "ema_fast", "value", 3); err == nil {
		t.Fatalf("offset 3 exceeds retained history, expected an error")
	}
}

// The lookahead guard must panic when a role's published bar closes
// after the exec role's current bar — this can only happen from a
// caller bug (publishing a higher-timeframe bar too early), never from
// legitimate forward-fill, so a panic rather than an error is correct.
func TestLookaheadGuardPanics(t *testing.T) {
	s := New(bar.RoleLow)
	execTs := time.Unix(1000, 0).UTC()
	futureTs := time.Unix(2000, 0).UTC()

	s.SetRole(&RoleView{Role: bar.RoleLow, TsClose: execTs, Fields: map[string]float64{}})
	s.SetRole(&RoleView{Role: bar.RoleHigh, TsClose: futureTs, Fields: map[string]float64{"rsi.value": 50}})

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected a panic on lookahead violation")
		}
	}()
	s.Indicator(bar.RoleHigh, "rsi", "value", 0)
}

// A higher-timeframe role published once and read multiple times by the
// exec role before the next higher close must return the same,
// unchanged value every time.
func TestForwardFillHoldsLastPublishedValue(t *testing.T) {
	s := New(bar.RoleLow)
	htfTs := time.Unix(0, 0).UTC()
	s.SetRole(&RoleView{Role: bar.RoleHigh, TsClose: htfTs, Fields: map[string]float64{"ema_htf.value": 42}})

	for i, execTs := range []time.Time{htfTs, htfTs.Add(time.Minute), htfTs.Add(2 * time.Minute)} {
		s.SetRole(&RoleView{Role: bar.RoleLow, TsClose: execTs, Fields: map[string]float64{}})
		v, err := s.Indicator(bar.RoleHigh, "ema_htf", "value", 0)
		if err != nil || v != 42 {
			t.Fatalf("exec step %d: got (%v, %v), want (42, nil) — htf value must hold constant", i, v, err)
		}
	}
}

func TestPriceKinds(t *testing.T) {
	s := New(bar.RoleLow)
	s.SetMarket(100, 102, SideLong, true)

	cases := map[string]float64{"mark": 100, "last": 102, "mid": 101}
	for kind, want := range cases {
		if v, err := s.Price(kind); err != nil || v != want {
			t.Errorf("Price(%q) = (%v, %v), want (%v, nil)", kind, v, err, want)
		}
	}
	if _, err := s.Price("bogus"); err == nil {
		t.Errorf("Price(\"bogus\") expected an error")
	}
	if !s.HasPosition() || s.PositionSide() != SideLong {
		t.Errorf("expected HasPosition()=true, PositionSide()=SideLong")
	}
}
