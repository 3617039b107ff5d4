package play

import (
	"os"
	"path/filepath"
	"testing"
)

const minimalPlay = `
version: 1
id: test-play
symbol: btcusdt
timeframes:
  low_tf: 15m
data:
  role_paths:
    low_tf: low.csv
risk:
  stop_loss:
    type: percent
    percent: 2
  take_profit:
    type: rr_ratio
    rr_ratio: 2
  sizing:
    type: percent_equity
    percent_equity: 95
  leverage: 1
exchange:
  taker_fee_rate: 0.0006
  slippage_bps: 5
  maintenance_margin: 0.005
  starting_cash: 10000
  min_trade_notional: 10
position_policy:
  mode: long_only
features:
  low_tf:
    - key: ema_21
      type: indicator
      kind: ema
      params:
        length: 21
entries:
  - name: close_above_ema
    priority: 0
    side: long
    rule:
      kind: compare
      op: ">"
      lhs:
        namespace: price
        field: mark
      rhs:
        namespace: indicator
        role: low_tf
        key: ema_21
        field: value
`

func writeTempPlay(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "play.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp play: %v", err)
	}
	return path
}

func TestLoadValidPlaySucceeds(t *testing.T) {
	path := writeTempPlay(t, minimalPlay)
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Symbol != "btcusdt" {
		t.Errorf("Symbol = %q, want btcusdt", p.Symbol)
	}
	if len(p.Entries) != 1 {
		t.Fatalf("Entries = %d, want 1", len(p.Entries))
	}
}

// An unknown top-level key must fail load with a structured error rather
// than silently being ignored.
func TestLoadRejectsUnknownTopLevelKey(t *testing.T) {
	path := writeTempPlay(t, minimalPlay+"\nbogus_key: 1\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected Load to reject an unknown top-level key")
	}
}

func TestLoadRejectsUnknownIndicatorKind(t *testing.T) {
	bad := minimalPlay
	bad = replaceOnce(t, bad, "kind: ema", "kind: not_a_real_indicator")
	path := writeTempPlay(t, bad)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected Load to reject an unknown indicator kind")
	}
}

func TestLoadRejectsUndeclaredTimeframe(t *testing.T) {
	bad := replaceOnce(t, minimalPlay, "low_tf: 15m", "low_tf: 17m")
	path := writeTempPlay(t, bad)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected Load to reject a non-canonical timeframe label")
	}
}

func TestLoadRejectsEntrySideNotPermittedByPositionPolicy(t *testing.T) {
	bad := replaceOnce(t, minimalPlay, "side: long", "side: short")
	path := writeTempPlay(t, bad)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected Load to reject a short entry rule under a long_only position policy")
	}
}

func TestLoadRequiresAtLeastOneEntryRule(t *testing.T) {
	bad := stripEntries(minimalPlay)
	path := writeTempPlay(t, bad)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected Load to reject a Play with no entry rules")
	}
}

func TestHashIsDeterministicAndSixteenHexChars(t *testing.T) {
	p1 := writeTempPlay(t, minimalPlay)
	play1, err := Load(p1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	h1, err := play1.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	h2, err := play1.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1 != h2 {
		t.Errorf("Hash() is not stable across calls: %q != %q", h1, h2)
	}
	if len(h1) != 16 {
		t.Errorf("Hash() length = %d, want 16 hex characters", len(h1))
	}
}

func TestHashNormalizesSymbolCase(t *testing.T) {
	lower := writeTempPlay(t, minimalPlay)
	upper := writeTempPlay(t, replaceOnce(t, minimalPlay, "symbol: btcusdt", "symbol: BTCUSDT"))

	pl, err := Load(lower)
	if err != nil {
		t.Fatalf("Load lower: %v", err)
	}
	pu, err := Load(upper)
	if err != nil {
		t.Fatalf("Load upper: %v", err)
	}
	hl, _ := pl.Hash()
	hu, _ := pu.Hash()
	if hl != hu {
		t.Errorf("Hash() should normalize symbol case: lower=%q upper=%q", hl, hu)
	}
}

func replaceOnce(t *testing.T, s, old, new string) string {
	t.Helper()
	out := make([]byte, 0, len(s))
	idx := indexOf(s, old)
	if idx < 0 {
		t.Fatalf("replaceOnce: %q not found in fixture", old)
	}
	out = append(out, s[:idx]...)
	out = append(out, new...)
	out = append(out, s[idx+len(old):]...)
	return string(out)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func stripEntries(s string) string {
	idx := indexOf(s, "entries:")
	if idx < 0 {
		return s
	}
	return s[:idx]
}
