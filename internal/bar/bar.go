package bar

import (
	"fmt"
	"math"
	"time"
)

// Bar is an immutable OHLCV record for one timeframe at one instant.
//
// Invariant: Low <= min(Open, Close) <= max(Open, Close) <= High.
type Bar struct {
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Turnover float64 // optional, 0 if not supplied by the data source
	TsOpen   time.Time
	TsClose  time.Time
}

// Validate checks the OHLC consistency invariant and that all prices are
// finite and positive, and volume is non-negative.
func (b Bar) Validate() error {
	for name, v := range map[string]float64{"open": b.Open, "high": b.High, "low": b.Low, "close": b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("bar: %s must be finite and positive, got %v", name, v)
		}
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar: volume must be >= 0, got %v", b.Volume)
	}
	lo := math.Min(b.Open, b.Close)
	hi := math.Max(b.Open, b.Close)
	if !(b.Low <= lo && lo <= hi && hi <= b.High) {
		return fmt.Errorf("bar: OHLC invariant violated: low=%v open=%v close=%v high=%v",
			b.Low, b.Open, b.Close, b.High)
	}
	if !b.TsClose.After(b.TsOpen) {
		return fmt.Errorf("bar: ts_close must be after ts_open")
	}
	return nil
}

// HLC3 returns the (high+low+close)/3 typical price.
func (b Bar) HLC3() float64 { return (b.High + b.Low + b.Close) / 3 }

// OHLC4 returns the (open+high+low+close)/4 average price.
func (b Bar) OHLC4() float64 { return (b.Open + b.High + b.Low + b.Close) / 4 }

// Field looks up one of the canonical OHLC fields by name.
func (b Bar) Field(name string) (float64, bool) {
	switch name {
	case "open":
		return b.Open, true
	case "high":
		return b.High, true
	case "low":
		return b.Low, true
	case "close":
		return b.Close, true
	case "volume":
		return b.Volume, true
	case "hlc3":
		return b.HLC3(), true
	case "ohlc4":
		return b.OHLC4(), true
	default:
		return 0, false
	}
}
