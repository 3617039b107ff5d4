package bar

import (
	"testing"
	"time"
)

func TestBarValidateOHLCInvariant(t *testing.T) {
	ts := time.Unix(0, 0).UTC()
	ok := Bar{Open: 10, High: 12, Low: 9, Close: 11, TsOpen: ts, TsClose: ts.Add(time.Minute)}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected a valid bar, got %v", err)
	}

	bad := ok
	bad.High = 10.5 // close (11) exceeds high
	if err := bad.Validate(); err == nil {
		t.Errorf("expected OHLC invariant violation when close exceeds high")
	}

	badLow := ok
	badLow.Low = 9.5  // still valid: low (9.5) is at or below min(open, close)
	badLow.Low = 10.5 // invalid: low now exceeds open (10)
	if err := badLow.Validate(); err == nil {
		t.Errorf("expected OHLC invariant violation when low exceeds open")
	}
}

func TestBarValidateRejectsNonPositiveOrNonFinite(t *testing.T) {
	ts := time.Unix(0, 0).UTC()
	neg := Bar{Open: -1, High: 1, Low: -2, Close: 0.5, TsOpen: ts, TsClose: ts.Add(time.Minute)}
	if err := neg.Validate(); err == nil {
		t.Errorf("expected rejection of a non-positive open")
	}

	negVol := Bar{Open: 1, High: 2, Low: 1, Close: 1.5, Volume: -1, TsOpen: ts, TsClose: ts.Add(time.Minute)}
	if err := negVol.Validate(); err == nil {
		t.Errorf("expected rejection of negative volume")
	}
}

func TestBarValidateRejectsBackwardsTimestamps(t *testing.T) {
	ts := time.Unix(0, 0).UTC()
	b := Bar{Open: 1, High: 2, Low: 1, Close: 1.5, TsOpen: ts, TsClose: ts}
	if err := b.Validate(); err == nil {
		t.Errorf("expected rejection when ts_close does not come after ts_open")
	}
}

func TestBarFieldAccessors(t *testing.T) {
	b := Bar{Open: 10, High: 20, Low: 5, Close: 15, Volume: 100}
	cases := map[string]float64{
		"open": 10, "high": 20, "low": 5, "close": 15, "volume": 100,
		"hlc3":  (20 + 5 + 15) / 3.0,
		"ohlc4": (10 + 20 + 5 + 15) / 4.0,
	}
	for name, want := range cases {
		got, ok := b.Field(name)
		if !ok {
			t.Errorf("Field(%q) not found", name)
			continue
		}
		if got != want {
			t.Errorf("Field(%q) = %v, want %v", name, got, want)
		}
	}
	if _, ok := b.Field("turnover_bogus"); ok {
		t.Errorf("expected unknown field name to fail")
	}
}

func TestParseTimeframeRejectsUnknown(t *testing.T) {
	if _, err := ParseTimeframe("17m"); err == nil {
		t.Errorf("expected an error for an uncanonical timeframe label")
	}
	tf, err := ParseTimeframe("4h")
	if err != nil || tf != TF4h {
		t.Errorf("ParseTimeframe(%q) = %v, %v; want TF4h, nil", "4h", tf, err)
	}
}

func TestAnnualizationFactorRejectsUnknownTimeframe(t *testing.T) {
	if _, ok := Timeframe("banana").AnnualizationFactor(); ok {
		t.Errorf("expected an unknown timeframe to be rejected rather than guessed at")
	}
	factor, ok := TF1d.AnnualizationFactor()
	if !ok {
		t.Fatalf("expected 1d to have a known annualization factor")
	}
	if factor < 365 || factor > 366 {
		t.Errorf("AnnualizationFactor(1d) = %v, want ~365.25", factor)
	}
}

func TestParseRoleRejectsUnknown(t *testing.T) {
	if _, err := ParseRole("exec_tf"); err == nil {
		t.Errorf("expected an error for a non-role string")
	}
	if r, err := ParseRole("low_tf"); err != nil || r != RoleLow {
		t.Errorf("ParseRole(%q) = %v, %v; want RoleLow, nil", "low_tf", r, err)
	}
}
