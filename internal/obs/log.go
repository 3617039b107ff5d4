package obs

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"
)

var logger = log.New(os.Stdout, "", 0)

// LogEvent writes one structured JSON line carrying the run identity
// from ctx plus any caller-supplied fields. The helpers below all log
// through this single function, so obs output is one coherent NDJSON
// stream; the runner (per bar) and the CLI (run completion) are the
// callers, while the feed loader, pipeline and exchange do not log.
func LogEvent(ctx context.Context, level, event string, fields map[string]any) {
	payload := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339),
		"level": level,
		"event": event,
	}

	info := RunInfoFromContext(ctx)
	if info.RunID != "" {
		payload["run_id"] = info.RunID
	}
	if info.PlayID != "" {
		payload["play_id"] = info.PlayID
	}
	if info.Symbol != "" {
		payload["symbol"] = info.Symbol
	}

	for k, v := range fields {
		if err, ok := v.(error); ok {
			payload[k] = err.Error()
			continue
		}
		payload[k] = v
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Printf(`{"level":"error","event":"log_marshal_failed","error":%q}`, err.Error())
		return
	}
	logger.Print(string(raw))
}

func LogBarProcessed(ctx context.Context, idx int, ts time.Time) {
	LogEvent(ctx, "debug", "bar_processed", map[string]any{"idx": idx, "ts": ts.UTC().Format(time.RFC3339)})
}

func LogOrderFilled(ctx context.Context, orderID, positionID uint64, price, qty float64) {
	LogEvent(ctx, "info", "order_filled", map[string]any{
		"order_id": orderID, "position_id": positionID, "price": price, "qty": qty,
	})
}

func LogTradeClosed(ctx context.Context, tradeID uint64, pnl float64, reason string) {
	LogEvent(ctx, "info", "trade_closed", map[string]any{
		"trade_id": tradeID, "pnl": pnl, "reason": reason,
	})
}

func LogRunComplete(ctx context.Context, bars int, duration time.Duration, err error) {
	fields := map[string]any{"bars": bars, "duration_ms": duration.Milliseconds(), "success": err == nil}
	if err != nil {
		fields["error"] = err.Error()
	}
	LogEvent(ctx, "info", "run_complete", fields)
}
