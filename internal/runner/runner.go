// Package runner implements the bar loop orchestrator: the single
// forward pass over the exec timeframe that ties the feed store,
// incremental feature pipelines, runtime snapshot, rule evaluator, and
// simulated exchange together into one deterministic replay.
//
// Grounded on libs/strategies.Backtester.Run's per-candle shape (check
// exits before entries, close any remainder at the end of the series)
// generalized from a single-bar multi-symbol loop to a multi-timeframe,
// multi-role single-symbol loop driven by the exec (low_tf) role.
package runner

import (
	"context"
	"fmt"
	"time"

	"btcore/internal/bar"
	"btcore/internal/exchange"
	"btcore/internal/feed"
	"btcore/internal/features"
	"btcore/internal/obs"
	"btcore/internal/perf"
	"btcore/internal/play"
	"btcore/internal/rules"
	"btcore/internal/snapshot"
)

// maxHistory bounds the retained per-role field history kept for
// offset(>0) crossover lookups. Rules reference at most a handful of
// bars back; this cap keeps memory flat over an arbitrarily long replay
// instead of growing with run length.
const maxHistory = 64

// Config is everything the loop needs to run one Play end to end,
// already built by the caller (Play.BuildPipelines, Play.CompileEntries,
// Play.CompileExits) so this package never parses YAML or touches the
// registry directly.
type Config struct {
	Play      *play.Play
	Pipelines map[bar.Role]*features.Pipeline
	Entries   []play.CompiledRule
	Exits     []play.CompiledRule
	Store     *feed.Store
	Funding   []feed.FundingEvent
	Metrics   *obs.RunMetrics // optional
}

// EquityPoint is one sample of the run's equity curve, recorded once per
// exec bar after all fills, funding, and mark-to-market for that bar.
type EquityPoint struct {
	Idx    int
	Ts     time.Time
	Equity float64
	Cash   float64
}

// Result is everything a completed (or cancelled mid-flight) run
// produced: the full ledger/trade/order history from the exchange plus
// the derived equity curve and performance statistics.
type Result struct {
	Trades  []exchange.Trade
	Orders  []exchange.Order
	Ledger  []exchange.LedgerEntry
	Equity  []EquityPoint
	Stats   perf.Stats
	BarsRun int
}

// pendingEntry remembers the risk parameters computed when an entry
// rule fired, since exchange.Exchange.FillPending needs them again one
// bar later at fill time but does not store them on the Order itself.
type pendingEntry struct {
	leverage float64
	margin   float64
	sl       float64
	tp       float64
}

// Runner drives one Play's bar loop. Built once per run via New and
// then executed once via Run; a Runner is not reusable across runs
// because it accumulates per-role history and pipeline state.
type Runner struct {
	cfg Config
	ex  *exchange.Exchange

	roleViews map[bar.Role]*snapshot.RoleView
	lastIdx   map[bar.Role]int // last bar index advanced per non-exec role, -1 if none yet

	fundingIdx int // next unconsumed index into cfg.Funding

	pending *pendingEntry
}

// New constructs a Runner for cfg, wiring a fresh Exchange from the
// Play's exchange config and starting cash.
func New(cfg Config) *Runner {
	return &Runner{
		cfg:       cfg,
		ex:        exchange.New(cfg.Play.ExchangeConfig(), cfg.Play.Exchange.StartingCash),
		roleViews: make(map[bar.Role]*snapshot.RoleView),
		lastIdx:   map[bar.Role]int{bar.RoleMed: -1, bar.RoleHigh: -1},
	}
}

// Run executes the full bar loop over the exec (low_tf) role's bars,
// forward-filling higher timeframes, evaluating exits before entries
// each bar, and filling signals at the following bar's open. Each bar
// marks to market before applying funding, then resolves intrabar TP/SL
// before the rule evaluator sees the bar, so a position that liquidates
// or closes this bar never also accrues funding or matches an exit/entry
// rule against it. ctx is checked once per bar so a long batch run can
// be cancelled between bars without leaving the exchange mid-update.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	execBars := r.cfg.Store.BarsFor(bar.RoleLow)
	if execBars == nil || execBars.Len() == 0 {
		return nil, fmt.Errorf("runner: no bars for low_tf role")
	}

	dd := perf.NewDrawdown()
	var equity []EquityPoint
	n := execBars.Len()

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return r.result(equity, dd), err
		}

		b := execBars.At(i)

		if i > 0 {
			r.fillQueued(b, i)
		}

		r.advanceForwardFill(bar.RoleHigh, b.TsClose)
		r.advanceForwardFill(bar.RoleMed, b.TsClose)
		r.advanceExec(b, i)

		snap := r.buildSnapshot(b)

		if trade, liquidated := r.ex.MarkToMarket(b.Close, i, b.TsClose); liquidated {
			r.observeLiquidation()
			r.observeTrade(trade)
		}

		r.applyFunding(b, i)

		if tradeHit, ok := r.ex.ResolveIntrabar(b, i); ok {
			r.observeTrade(tradeHit)
		}

		r.evaluateExit(snap)
		r.evaluateEntry(snap, b, i)

		eq := r.ex.Equity(b.Close)
		dd.Update(eq)
		equity = append(equity, EquityPoint{Idx: i, Ts: b.TsClose, Equity: eq, Cash: r.ex.Cash()})
		r.observeBar(eq)

		obs.LogBarProcessed(ctx, i, b.TsClose)
	}

	last := execBars.At(n - 1)
	if trade, ok := r.ex.CloseAtMarket(last.Close, n-1, last.TsClose, exchange.ExitEndOfRun); ok {
		r.observeTrade(trade)
	}

	return r.result(equity, dd), nil
}

// fillQueued executes, at bar b's open, whatever was queued for exit or
// entry on the previous bar.
func (r *Runner) fillQueued(b bar.Bar, idx int) {
	if trade, ok := r.ex.FillPendingExit(b.Open, idx, b.TsClose); ok {
		r.observeTrade(trade)
	}
	if r.pending != nil {
		r.ex.FillPending(b.Open, idx, b.TsClose, r.pending.leverage, r.pending.margin, r.pending.sl, r.pending.tp)
		if pos := r.ex.Position(); pos != nil {
			r.observeFill(pos)
		}
		r.pending = nil
	}
}

// advanceForwardFill advances role's pipeline through every closed bar
// up to and including whichever bar has closed at or before asOf,
// catching up one bar at a time so incremental state never skips a step.
// A lower timeframe holds a higher timeframe's last closed value
// constant between that higher timeframe's own bar closes.
func (r *Runner) advanceForwardFill(role bar.Role, asOf time.Time) {
	bars := r.cfg.Store.BarsFor(role)
	pipe := r.cfg.Pipelines[role]
	if bars == nil || pipe == nil {
		return
	}
	target, ok := r.cfg.Store.IndexAtOrBefore(role, asOf)
	if !ok {
		return
	}
	last := r.lastIdx[role]
	for j := last + 1; j <= target; j++ {
		rb := bars.At(j)
		fields := pipe.Advance(rb, j)
		r.publishRole(role, j, rb, fields)
	}
	r.lastIdx[role] = target
}

// advanceExec advances the exec role's pipeline by exactly one bar,
// every exec-bar iteration (it never skips: it is the driver of the
// loop).
func (r *Runner) advanceExec(b bar.Bar, idx int) {
	pipe := r.cfg.Pipelines[bar.RoleLow]
	fields := pipe.Advance(b, idx)
	r.publishRole(bar.RoleLow, idx, b, fields)
}

// publishRole installs the freshly computed fields as role's current
// view and appends to its bounded history ring for offset lookups.
func (r *Runner) publishRole(role bar.Role, idx int, b bar.Bar, fields map[string]float64) {
	rv, ok := r.roleViews[role]
	if !ok {
		rv = &snapshot.RoleView{Role: role}
		r.roleViews[role] = rv
	}
	rv.History = append(rv.History, rv.Fields)
	if len(rv.History) > maxHistory {
		rv.History = rv.History[len(rv.History)-maxHistory:]
	}
	rv.Idx = idx
	rv.TsClose = b.TsClose
	rv.Close = b.Close
	rv.Fields = fields
}

// buildSnapshot assembles this bar's read-only view from whichever
// per-role state is currently published (lower timeframes always fresh,
// higher ones possibly forward-filled from an earlier close).
func (r *Runner) buildSnapshot(b bar.Bar) *snapshot.Snapshot {
	snap := snapshot.New(bar.RoleLow)
	for _, rv := range r.roleViews {
		if rv.Fields == nil {
			continue // role declared but no bar has closed yet
		}
		cp := *rv
		snap.SetRole(&cp)
	}
	side := snapshot.SideFlat
	hasPos := false
	if pos := r.ex.Position(); pos != nil {
		hasPos = true
		if pos.Side == exchange.SideLong {
			side = snapshot.SideLong
		} else {
			side = snapshot.SideShort
		}
	}
	snap.SetMarket(b.Close, b.Close, side, hasPos)
	return snap
}

// applyFunding applies every funding event whose timestamp falls at or
// before b's close and has not yet been consumed, in chronological
// order, marking the open position's running funding total.
func (r *Runner) applyFunding(b bar.Bar, idx int) {
	for r.fundingIdx < len(r.cfg.Funding) {
		ev := r.cfg.Funding[r.fundingIdx]
		if ev.Timestamp.After(b.TsClose) {
			break
		}
		r.ex.ApplyFunding(ev.Rate, b.Close, idx, b.TsClose)
		r.fundingIdx++
	}
}

// evaluateExit checks exit rules in priority order against the open
// position (if any) and queues the first match for fill at the next
// bar's open — never the same bar as the matching entry.
func (r *Runner) evaluateExit(snap *snapshot.Snapshot) {
	pos := r.ex.Position()
	if pos == nil || r.ex.HasQueuedExit() {
		return
	}
	posSide := "long"
	if pos.Side == exchange.SideShort {
		posSide = "short"
	}
	for _, rule := range r.cfg.Exits {
		if rule.Side != "" && rule.Side != posSide {
			continue
		}
		res := rule.Expr.Eval(snap)
		if res.Reason == rules.ReasonOK && res.Value {
			r.ex.QueueExit()
			return
		}
	}
}

// evaluateEntry checks entry rules in priority order when flat with no
// exit already queued this bar, and submits the first matching rule's
// side at a size derived from the risk model.
func (r *Runner) evaluateEntry(snap *snapshot.Snapshot, b bar.Bar, idx int) {
	if r.ex.Position() != nil || r.ex.HasQueuedExit() {
		return
	}
	for _, rule := range r.cfg.Entries {
		res := rule.Expr.Eval(snap)
		if res.Reason != rules.ReasonOK || !res.Value {
			continue
		}
		if !r.cfg.Play.Position.Allows(rule.Side) {
			continue
		}
		side := exchange.SideLong
		if rule.Side == "short" {
			side = exchange.SideShort
		}
		r.submitEntry(snap, side, b, idx)
		return
	}
}

// submitEntry computes qty/SL/TP from the configured risk model at the
// decision price (this bar's close — the actual fill happens a bar
// later at that bar's open plus slippage, so these levels are a
// practical approximation, not the exact fill price) and submits a
// market order for fill next bar, using whichever stop-loss/take-profit/
// sizing model the Play declares.
func (r *Runner) submitEntry(snap *snapshot.Snapshot, side exchange.Side, b bar.Bar, idx int) {
	risk := r.cfg.Play.Risk
	decisionPrice := b.Close

	var atr float64
	if risk.StopLoss.Type == "atr_multiple" {
		v, err := snap.Indicator(bar.RoleLow, risk.StopLoss.ATRKey, "value", 0)
		if err != nil {
			return
		}
		atr = v
	}
	stopDistance, err := risk.StopDistance(decisionPrice, atr)
	if err != nil || stopDistance <= 0 {
		return
	}
	tpDistance, err := risk.TakeProfitDistance(decisionPrice, stopDistance)
	if err != nil || tpDistance <= 0 {
		return
	}

	equity := r.ex.Equity(b.Close)
	notional, err := risk.Notional(equity)
	if err != nil || notional <= 0 {
		return
	}
	qty := notional / decisionPrice
	margin := notional / risk.Leverage
	feeEstimate := notional * r.cfg.Play.Exchange.TakerFeeRate

	var sl, tp float64
	if side == exchange.SideLong {
		sl = decisionPrice - stopDistance
		tp = decisionPrice + tpDistance
	} else {
		sl = decisionPrice + stopDistance
		tp = decisionPrice - tpDistance
	}

	if _, err := r.ex.Submit(side, qty, notional, margin, feeEstimate, equity, idx); err != nil {
		return
	}
	r.pending = &pendingEntry{leverage: risk.Leverage, margin: margin, sl: sl, tp: tp}
}

func (r *Runner) result(equity []EquityPoint, dd *perf.Drawdown) *Result {
	res := &Result{
		Trades:  r.ex.Trades,
		Orders:  r.ex.Orders,
		Ledger:  r.ex.Ledger,
		Equity:  equity,
		BarsRun: len(equity),
	}
	res.Stats = r.computeStats(equity, dd)
	return res
}

func (r *Runner) computeStats(equity []EquityPoint, dd *perf.Drawdown) perf.Stats {
	if len(equity) == 0 {
		return perf.Stats{}
	}
	start := r.cfg.Play.Exchange.StartingCash
	end := equity[len(equity)-1].Equity

	tf, _ := bar.ParseTimeframe(r.cfg.Play.Timeframes.Low)
	barsPerYear, _ := tf.AnnualizationFactor()
	years := float64(len(equity)) / barsPerYear

	cagr := perf.CAGR(start, end, years)
	calmar := perf.Calmar(cagr, dd.MaxPct())

	var grossProfit, grossLoss float64
	wins := 0
	for _, t := range r.ex.Trades {
		if t.PnL > 0 {
			grossProfit += t.PnL
			wins++
		} else {
			grossLoss += t.PnL
		}
	}
	pf := perf.ProfitFactor(grossProfit, grossLoss)
	wr := perf.WinRate(wins, len(r.ex.Trades))

	returns := make([]float64, 0, len(equity))
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (equity[i].Equity-prev)/prev)
	}
	sharpe := perf.Sharpe(returns, barsPerYear)

	return perf.Stats{
		MaxDrawdownAbs: dd.MaxAbs(),
		MaxDrawdownPct: dd.MaxPct(),
		CAGR:           cagr,
		Calmar:         calmar,
		Sharpe:         sharpe,
		ProfitFactor:   pf,
		WinRate:        wr,
	}
}

func (r *Runner) observeBar(equity float64) {
	if r.cfg.Metrics == nil {
		return
	}
	r.cfg.Metrics.BarsProcessed.Inc()
	r.cfg.Metrics.Equity.Set(equity)
	active := 0.0
	if r.ex.Position() != nil {
		active = 1.0
	}
	r.cfg.Metrics.ActivePositions.Set(active)
}

func (r *Runner) observeFill(pos *exchange.Position) {
	if r.cfg.Metrics == nil {
		return
	}
	side := "long"
	if pos.Side == exchange.SideShort {
		side = "short"
	}
	r.cfg.Metrics.OrdersFilled.WithLabelValues(side).Inc()
}

func (r *Runner) observeTrade(t *exchange.Trade) {
	if r.cfg.Metrics == nil {
		return
	}
	r.cfg.Metrics.TradesClosed.WithLabelValues(string(t.ExitReason)).Inc()
}

func (r *Runner) observeLiquidation() {
	if r.cfg.Metrics == nil {
		return
	}
	r.cfg.Metrics.LiquidationsHit.Inc()
}
