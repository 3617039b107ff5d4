// Package features implements the incremental indicator and structure
// pipeline: O(1)-per-bar stateful detectors whose outputs are appended
// into fixed-layout arrays aligned with a timeframe's bar array.
//
// The registry backing indicator construction is a closed enum dispatched
// through a match statement (internal/features/registry.go), generalized
// from the registry-driven-factory convention in libs/strategies/registry.go
// — a Strategy interface registry there, an Indicator-kind registry here —
// favoring a build-time-closed switch over trait-object indirection.
package features

import "math"

// NaN is the "not yet warm" sentinel used throughout feature arrays.
var NaN = math.NaN()

// Indicator is a stateful, incrementally-updated detector over closed
// bars of one timeframe. Every concrete indicator guarantees O(1) update
// cost independent of series length.
type Indicator interface {
	// WarmupBars is the number of closed bars required before outputs
	// stop being NaN.
	WarmupBars() int
	// Update advances state by exactly one closed bar and returns the
	// (possibly multi-output) value(s) for that bar, in OutputKeys order.
	// Values are NaN until WarmupBars bars have been consumed.
	Update(b Bar) []float64
	// OutputKeys names each element of Update's return slice. Single-
	// output indicators return a single-element slice, conventionally {"value"}.
	OutputKeys() []string
}

// Bar is the minimal read view an indicator needs from a closed bar —
// just the source series value it was configured to consume (close,
// hlc3, ohlc4, volume, ...), resolved by the pipeline before Update is
// called so indicators never know about bar.Bar directly.
type Bar struct {
	Value  float64 // the configured input series value for this bar
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// IsMultiOutput reports whether ind exposes more than one output sub-key.
func IsMultiOutput(ind Indicator) bool { return len(ind.OutputKeys()) > 1 }
