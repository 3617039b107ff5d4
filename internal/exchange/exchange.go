package exchange

import (
	"fmt"
	"time"

	"btcore/internal/bar"
)

// Config holds the simulated venue's static cost model so the engine never
// hardcodes a specific exchange's fee schedule. TakerFeeRate and
// MaintenanceMargin are fractions (e.g. 0.0006 for 6bps); SlippageBps is
// in basis points (1 = 0.01%).
type Config struct {
	TakerFeeRate      float64
	SlippageBps       float64
	MaintenanceMargin float64 // fraction of notional below which a position liquidates
	MinTradeNotional  float64 // orders below this requested notional are rejected
}

// Exchange is the single-symbol isolated-margin simulated venue. It owns
// the sequential ID counters, the open position (if any), pending
// orders, and the full ledger/trade history of the run.
type Exchange struct {
	cfg Config

	nextOrderID    uint64
	nextPositionID uint64
	nextTradeID    uint64

	pending  []*Order
	position *Position

	exitQueued bool // a signal exit was registered this bar, fills at next open

	cash    float64
	Ledger  []LedgerEntry
	Trades  []Trade
	Orders  []Order
}

func New(cfg Config, startingCash float64) *Exchange {
	return &Exchange{cfg: cfg, cash: startingCash}
}

// Submit validates and queues a market order for fill at the next bar's
// open. notional/marginRequired/feeEstimate are computed by the caller
// from the decision-bar price (see DESIGN.md's note on this
// approximation); availableEquity is the account's current equity, which
// combined with marginRequired+feeEstimate backs the check that the
// position can actually be afforded once it fills. Rejected orders are
// still recorded (with a reason) so the audit trail shows every
// submission, accepted or not.
func (e *Exchange) Submit(side Side, qty, notional, marginRequired, feeEstimate, availableEquity float64, submitIdx int) (*Order, error) {
	e.nextOrderID++
	o := &Order{ID: e.nextOrderID, Side: side, Qty: qty, SubmitIdx: submitIdx, Status: OrderPending}

	reject := func(why string) (*Order, error) {
		o.Status, o.RejectedWhy = OrderRejected, why
		e.Orders = append(e.Orders, *o)
		return o, fmt.Errorf("exchange: order %d rejected: %s", o.ID, why)
	}

	if qty <= 0 {
		return reject("quantity must be positive")
	}
	if e.position != nil {
		return reject("a position is already open")
	}
	if len(e.pending) > 0 {
		return reject("a pending order already exists")
	}
	if notional < e.cfg.MinTradeNotional {
		return reject(fmt.Sprintf("notional %.8f below min_trade_notional %.8f", notional, e.cfg.MinTradeNotional))
	}
	if marginRequired+feeEstimate > availableEquity {
		return reject("insufficient equity for required margin plus entry fee")
	}

	e.pending = append(e.pending, o)
	return o, nil
}

// FillPending executes every pending order at nextOpen plus slippage, the
// configured taker fee, and opens the resulting position. Called once
// per bar by the orchestrator with the new bar's open price.
func (e *Exchange) FillPending(nextOpen float64, idx int, ts time.Time, leverage, marginAlloc, sl, tp float64) {
	for _, o := range e.pending {
		fillPrice := nextOpen
		slip := nextOpen * e.cfg.SlippageBps / 10000
		if o.Side == SideLong {
			fillPrice += slip
		} else {
			fillPrice -= slip
		}

		fee := fillPrice * o.Qty * e.cfg.TakerFeeRate
		e.cash -= fee + marginAlloc

		e.nextPositionID++
		e.position = &Position{
			ID:         e.nextPositionID,
			Side:       o.Side,
			Qty:        o.Qty,
			EntryPrice: fillPrice,
			Leverage:   leverage,
			Margin:     marginAlloc,
			StopLoss:   sl,
			TakeProfit: tp,
			OpenedIdx:  idx,
			OpenedAt:   ts,
			EntryFee:   fee,
		}

		o.Status = OrderFilled
		e.Orders = append(e.Orders, *o)
		e.ledger(idx, ts, fmt.Sprintf("fill order=%d position=%d fee=%.8f", o.ID, e.position.ID, fee))
	}
	e.pending = e.pending[:0]
}

// ResolveIntrabar checks the open position's SL/TP against one closed
// bar using the conservative path order O→L→H→C for longs and O→H→L→C
// for shorts, so a bar that touches both levels resolves to whichever
// the price would have reached first under the worst realistic path.
// When both trigger within the same step, SL wins the tie.
func (e *Exchange) ResolveIntrabar(b bar.Bar, idx int) (*Trade, bool) {
	if e.position == nil {
		return nil, false
	}
	pos := e.position

	path := []float64{b.Open, b.Low, b.High, b.Close}
	if pos.Side == SideShort {
		path = []float64{b.Open, b.High, b.Low, b.Close}
	}

	for _, px := range path {
		slHit := pos.Side == SideLong && px <= pos.StopLoss || pos.Side == SideShort && px >= pos.StopLoss
		tpHit := pos.TakeProfit != 0 && (pos.Side == SideLong && px >= pos.TakeProfit || pos.Side == SideShort && px <= pos.TakeProfit)

		if slHit {
			return e.closePosition(pos.StopLoss, idx, b.TsClose, ExitStopLoss), true
		}
		if tpHit {
			return e.closePosition(pos.TakeProfit, idx, b.TsClose, ExitTakeProfit), true
		}
	}
	return nil, false
}

// CloseAtMarket closes the open position (if any) at price, tagged with
// reason, with no slippage applied. The run loop uses it to close any
// position still open at the end of the run; intrabar TP/SL exits go
// through ResolveIntrabar instead.
func (e *Exchange) CloseAtMarket(price float64, idx int, ts time.Time, reason ExitReason) (*Trade, bool) {
	if e.position == nil {
		return nil, false
	}
	return e.closePosition(price, idx, ts, reason), true
}

// QueueExit registers that an exit rule matched on the current bar. The
// actual close happens on the next call to FillPendingExit, at that
// bar's open plus slippage in the closing direction — there is never a
// same-bar entry and exit. Returns false if there is no open position to
// exit.
func (e *Exchange) QueueExit() bool {
	if e.position == nil {
		return false
	}
	e.exitQueued = true
	return true
}

// HasQueuedExit reports whether a signal exit is pending fill.
func (e *Exchange) HasQueuedExit() bool { return e.exitQueued }

// FillPendingExit closes the open position, if a signal exit was queued,
// at nextOpen adjusted by slippage in the closing direction (a long sells
// low, a short buys back high).
func (e *Exchange) FillPendingExit(nextOpen float64, idx int, ts time.Time) (*Trade, bool) {
	if !e.exitQueued || e.position == nil {
		e.exitQueued = false
		return nil, false
	}
	e.exitQueued = false

	slip := nextOpen * e.cfg.SlippageBps / 10000
	exitPrice := nextOpen
	if e.position.Side == SideLong {
		exitPrice -= slip
	} else {
		exitPrice += slip
	}
	return e.closePosition(exitPrice, idx, ts, ExitSignal), true
}

func (e *Exchange) closePosition(exitPrice float64, idx int, ts time.Time, reason ExitReason) *Trade {
	pos := e.position
	exitFee := exitPrice * pos.Qty * e.cfg.TakerFeeRate

	var gross float64
	if pos.Side == SideLong {
		gross = (exitPrice - pos.EntryPrice) * pos.Qty
	} else {
		gross = (pos.EntryPrice - exitPrice) * pos.Qty
	}
	// cashPnl excludes the entry fee: that was already deducted from cash
	// at fill time (FillPending), so applying it again here would double
	// count it. netPnl is the full round-trip figure the trade record and
	// ledger report.
	cashPnl := gross - exitFee + pos.FundingPaid
	netPnl := cashPnl - pos.EntryFee

	e.cash += pos.Margin + cashPnl
	e.nextTradeID++
	trade := Trade{
		ID:         e.nextTradeID,
		PositionID: pos.ID,
		Side:       pos.Side,
		Qty:        pos.Qty,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		EntryIdx:   pos.OpenedIdx,
		ExitIdx:    idx,
		EntryAt:    pos.OpenedAt,
		ExitAt:     ts,
		EntryFee:   pos.EntryFee,
		ExitFee:    exitFee,
		Fees:       pos.EntryFee + exitFee,
		Funding:    pos.FundingPaid,
		PnL:        netPnl,
		ExitReason: reason,
	}
	e.Trades = append(e.Trades, trade)
	e.position = nil
	e.ledger(idx, ts, fmt.Sprintf("close trade=%d reason=%s pnl=%.8f", trade.ID, reason, netPnl))
	return &trade
}

// ApplyFunding debits or credits the open position by rate * notional,
// accumulating the running total on the position for final PnL.
func (e *Exchange) ApplyFunding(rate, markPrice float64, idx int, ts time.Time) {
	if e.position == nil {
		return
	}
	notional := markPrice * e.position.Qty
	amount := rate * notional
	if e.position.Side == SideLong {
		e.position.FundingPaid -= amount
	} else {
		e.position.FundingPaid += amount
	}
	e.ledger(idx, ts, fmt.Sprintf("funding rate=%.8f amount=%.8f", rate, amount))
}

// MarkToMarket computes unrealized PnL at markPrice and liquidates the
// position if equity falls to or below the maintenance margin requirement.
func (e *Exchange) MarkToMarket(markPrice float64, idx int, ts time.Time) (*Trade, bool) {
	if e.position == nil {
		e.ledgerAt(idx, ts, "mark", 0)
		return nil, false
	}
	pos := e.position
	var unreal float64
	if pos.Side == SideLong {
		unreal = (markPrice - pos.EntryPrice) * pos.Qty
	} else {
		unreal = (pos.EntryPrice - markPrice) * pos.Qty
	}
	equity := pos.Margin + unreal + pos.FundingPaid
	notional := markPrice * pos.Qty
	maintReq := notional * e.cfg.MaintenanceMargin

	e.ledgerAt(idx, ts, fmt.Sprintf("mark unreal=%.8f equity=%.8f", unreal, equity), markPrice)

	if equity <= maintReq {
		trade := e.closePosition(markPrice, idx, ts, ExitLiquidation)
		return trade, true
	}
	return nil, false
}

// Position returns the currently open position, or nil if flat.
func (e *Exchange) Position() *Position { return e.position }

// Cash returns current available cash (excluding margin locked in an
// open position).
func (e *Exchange) Cash() float64 { return e.cash }

// Equity returns cash plus the open position's margin, unrealized PnL at
// markPrice and accumulated funding, or just cash if flat.
func (e *Exchange) Equity(markPrice float64) float64 {
	if e.position == nil {
		return e.cash
	}
	return e.cash + e.position.Margin + e.unrealizedPnL(markPrice) + e.position.FundingPaid
}

func (e *Exchange) unrealizedPnL(markPrice float64) float64 {
	pos := e.position
	if pos == nil {
		return 0
	}
	if pos.Side == SideLong {
		return (markPrice - pos.EntryPrice) * pos.Qty
	}
	return (pos.EntryPrice - markPrice) * pos.Qty
}

// UsedMargin is the margin currently locked by the open position, valued
// at markPrice's notional divided by the position's leverage. It is zero
// while flat.
func (e *Exchange) UsedMargin(markPrice float64) float64 {
	if e.position == nil {
		return 0
	}
	return markPrice * e.position.Qty / e.position.Leverage
}

// FreeMargin is equity not locked up as used margin — the amount still
// available to back a new position.
func (e *Exchange) FreeMargin(markPrice float64) float64 {
	return e.Equity(markPrice) - e.UsedMargin(markPrice)
}

// ledger appends an audit entry, valuing the open position (if any) at
// its entry price as a conservative approximation — callers that already
// have the true mark (MarkToMarket) pass it via ledgerAt instead.
func (e *Exchange) ledger(idx int, ts time.Time, event string) {
	var markPrice float64
	if e.position != nil {
		markPrice = e.position.EntryPrice
	}
	e.ledgerAt(idx, ts, event, markPrice)
}

func (e *Exchange) ledgerAt(idx int, ts time.Time, event string, markPrice float64) {
	e.Ledger = append(e.Ledger, LedgerEntry{
		Idx:        idx,
		Timestamp:  ts,
		Equity:     e.Equity(markPrice),
		Cash:       e.cash,
		UnrealPnL:  e.unrealizedPnL(markPrice),
		UsedMargin: e.UsedMargin(markPrice),
		FreeMargin: e.FreeMargin(markPrice),
		Event:      event,
	})
}
