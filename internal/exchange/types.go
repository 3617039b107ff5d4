// Package exchange simulates a Bybit-style isolated-margin perpetual
// futures venue: market-order-only fills at the next bar's open, taker
// fees, intrabar TP/SL resolution, funding, and maintenance-margin
// liquidation. All identifiers are sequential per-run uint64 counters —
// never UUIDs or wall-clock values — so two replays of the same inputs
// produce byte-identical ledgers.
package exchange

import "time"

// Side is a position or order direction.
type Side int

const (
	SideLong Side = iota
	SideShort
)

// OrderStatus tracks an order through its (short) lifecycle. Since only
// market orders are supported, an order is either Filled on the next
// bar's open or Rejected at submission time — there is no resting state.
type OrderStatus int

const (
	OrderPending OrderStatus = iota
	OrderFilled
	OrderRejected
)

// Order is a market order queued at the close of the current bar for
// execution at the open of the next bar.
type Order struct {
	ID         uint64
	Side       Side
	Qty        float64
	SubmitIdx  int // bar index the order was submitted on
	Status     OrderStatus
	RejectedWhy string
}

// Position is the single open position on the simulated venue — the
// engine supports one net position per run, consistent with isolated
// margin on a single symbol.
type Position struct {
	ID          uint64
	Side        Side
	Qty         float64
	EntryPrice  float64
	Leverage    float64
	Margin      float64 // isolated margin allocated to this position
	StopLoss    float64
	TakeProfit  float64
	OpenedIdx   int
	OpenedAt    time.Time
	FundingPaid float64 // cumulative funding paid/received while open
	EntryFee    float64 // taker fee paid at fill time
}

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitStopLoss    ExitReason = "stop_loss"
	ExitTakeProfit  ExitReason = "take_profit"
	ExitSignal      ExitReason = "signal"
	ExitLiquidation ExitReason = "liquidation"
	ExitEndOfRun    ExitReason = "end_of_run"
)

// Trade is a closed round trip: one entry fill and one exit fill.
type Trade struct {
	ID           uint64
	PositionID   uint64
	Side         Side
	Qty          float64
	EntryPrice   float64
	ExitPrice    float64
	EntryIdx     int
	ExitIdx      int
	EntryAt      time.Time
	ExitAt       time.Time
	EntryFee     float64
	ExitFee      float64
	Fees         float64 // EntryFee + ExitFee
	Funding      float64
	PnL          float64
	ExitReason   ExitReason
}

// LedgerEntry is one append-only record of equity-affecting state,
// written on every fill, funding application, and mark-to-market tick —
// the audit trail a reproducible run leaves behind.
type LedgerEntry struct {
	Idx        int
	Timestamp  time.Time
	Equity     float64
	Cash       float64
	UnrealPnL  float64
	UsedMargin float64
	FreeMargin float64
	Event      string
}
