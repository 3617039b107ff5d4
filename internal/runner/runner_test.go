package runner

import (
	"context"
	"testing"
	"time"

	"btcore/internal/bar"
	"btcore/internal/exchange"
	"btcore/internal/feed"
	"btcore/internal/features"
	"btcore/internal/play"
	"btcore/internal/rules"
)

// syntheticUptrend builds a deterministic OHLCV series that dips for its
// first five bars, rises steadily to the midpoint, then falls for the
// rest. The dip puts the close below its EMA, so a close-crosses-above-
// EMA strategy opens a long when the rise begins.
func syntheticUptrend(n int) []bar.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]bar.Bar, n)
	price := 100.0
	for i := 0; i < n; i++ {
		if i < 5 {
			price -= 1
		} else if i < n/2 {
			price += 1
		} else {
			price -= 1.5
		}
		open := price - 0.5
		out[i] = bar.Bar{
			Open: open, High: price + 1, Low: open - 1, Close: price,
			Volume:  10,
			TsOpen:  start.Add(time.Duration(i) * time.Minute),
			TsClose: start.Add(time.Duration(i+1) * time.Minute),
		}
	}
	return out
}

func buildTestConfig(t *testing.T) Config {
	t.Helper()
	bars := syntheticUptrend(40)
	store, err := feed.New([]feed.RoleSeries{{Role: bar.RoleLow, TF: bar.TF1m, Bars: bars}})
	if err != nil {
		t.Fatalf("feed.New: %v", err)
	}

	ema, err := features.Build(features.KindEMA, map[string]float64{"length": 3})
	if err != nil {
		t.Fatalf("Build EMA: %v", err)
	}
	atr, err := features.Build(features.KindATR, map[string]float64{"length": 3})
	if err != nil {
		t.Fatalf("Build ATR: %v", err)
	}
	pipe, err := features.NewPipeline([]features.NodeSpec{
		{Key: "ema_fast", Kind: features.NodeIndicator, Indicator: ema},
		{Key: "atr", Kind: features.NodeIndicator, Indicator: atr},
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	entryExpr, err := rules.Compile(rules.Node{
		Kind: "compare", Op: rules.OpCrossUp,
		LHS: rules.RefSpec{Namespace: "price", Field: "last"},
		RHS: rules.RefSpec{Namespace: "indicator", Role: "low_tf", Key: "ema_fast", Field: "value"},
	})
	if err != nil {
		t.Fatalf("compile entry: %v", err)
	}
	exitExpr, err := rules.Compile(rules.Node{
		Kind: "compare", Op: rules.OpCrossDown,
		LHS: rules.RefSpec{Namespace: "price", Field: "last"},
		RHS: rules.RefSpec{Namespace: "indicator", Role: "low_tf", Key: "ema_fast", Field: "value"},
	})
	if err != nil {
		t.Fatalf("compile exit: %v", err)
	}

	p := &play.Play{
		ID: "scenario-a", Symbol: "BTCUSDT",
		Timeframes: play.TimeframeSpec{Low: "1m"},
		Risk: play.RiskSpec{
			StopLoss:   play.StopLossSpec{Type: "atr_multiple", ATRMult: 2, ATRKey: "atr"},
			TakeProfit: play.TakeProfitSpec{Type: "rr_ratio", RRRatio: 2},
			Sizing:     play.SizingSpec{Type: "percent_equity", PercentEquity: 1},
			Leverage:   5,
		},
		Exchange: play.ExchangeSpec{TakerFeeRate: 0.0006, SlippageBps: 1, MaintenanceMargin: 0.01, StartingCash: 10000},
		Position: play.PositionPolicy{Mode: "long_only"},
	}

	return Config{
		Play:      p,
		Pipelines: map[bar.Role]*features.Pipeline{bar.RoleLow: pipe},
		Entries:   []play.CompiledRule{{Name: "ema_cross_up", Side: "long", Expr: entryExpr}},
		Exits:     []play.CompiledRule{{Name: "ema_cross_down", Expr: exitExpr}},
		Store:     store,
	}
}

func TestRunnerScenarioAOpensAndClosesALong(t *testing.T) {
	cfg := buildTestConfig(t)
	r := New(cfg)
	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.BarsRun != 40 {
		t.Fatalf("BarsRun = %d, want 40", res.BarsRun)
	}
	if len(res.Trades) == 0 {
		t.Fatalf("expected at least one trade on a trending synthetic series")
	}
	for _, tr := range res.Trades {
		if tr.Side != exchange.SideLong {
			t.Errorf("trade %d: side = %v, want SideLong (position_policy is long_only)", tr.ID, tr.Side)
		}
	}
}

// Replaying the identical Config from a freshly built Runner must
// produce byte-for-byte identical trade/ledger output — no wall-clock,
// no map-iteration-order leakage into results.
func TestRunnerIsDeterministicAcrossReplays(t *testing.T) {
	cfg1 := buildTestConfig(t)
	res1, err := New(cfg1).Run(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	cfg2 := buildTestConfig(t)
	res2, err := New(cfg2).Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if len(res1.Trades) != len(res2.Trades) {
		t.Fatalf("trade count differs across replays: %d vs %d", len(res1.Trades), len(res2.Trades))
	}
	for i := range res1.Trades {
		a, b := res1.Trades[i], res2.Trades[i]
		if a.EntryPrice != b.EntryPrice || a.ExitPrice != b.ExitPrice || a.PnL != b.PnL || a.ExitReason != b.ExitReason {
			t.Fatalf("trade %d differs across replays: %+v vs %+v", i, a, b)
		}
	}
	if len(res1.Equity) != len(res2.Equity) {
		t.Fatalf("equity curve length differs across replays")
	}
	for i := range res1.Equity {
		if res1.Equity[i].Equity != res2.Equity[i].Equity {
			t.Fatalf("equity point %d differs across replays: %v vs %v", i, res1.Equity[i].Equity, res2.Equity[i].Equity)
		}
	}
}

// A run with no bars for the exec role must fail fast rather than produce
// an empty-but-successful Result.
func TestRunnerRejectsEmptyExecRole(t *testing.T) {
	store, err := feed.New([]feed.RoleSeries{{Role: bar.RoleLow, TF: bar.TF1m, Bars: syntheticUptrend(1)}})
	if err != nil {
		t.Fatalf("feed.New: %v", err)
	}
	pipe, _ := features.NewPipeline(nil)
	p := &play.Play{
		Exchange: play.ExchangeSpec{StartingCash: 1000},
	}
	cfg := Config{Play: p, Pipelines: map[bar.Role]*features.Pipeline{bar.RoleLow: pipe}, Store: store}
	r := New(cfg)
	// Replace the store with one that declares only a med_tf role, so the
	// exec (low_tf) guard in Run trips.
	emptyStore, _ := feed.New([]feed.RoleSeries{{Role: bar.RoleMed, TF: bar.TF1m, Bars: syntheticUptrend(1)}})
	r.cfg.Store = emptyStore
	if _, err := r.Run(context.Background()); err == nil {
		t.Fatalf("expected an error when the exec role has no bars")
	}
}
