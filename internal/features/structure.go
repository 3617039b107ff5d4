package features

// Structure is a stateful detector over closed bars producing a
// schema-fixed set of named fields. Unlike Indicator, a Structure
// consumes the full OHLC of a bar (swings pivot
// on high/low, zones anchor on swing levels, etc.) plus, where declared
// via depends_on, the resolved fields of another structure computed
// earlier in this bar by the pipeline's topological order.
type Structure interface {
	// Fields lists every field name this structure emits, in a fixed
	// schema order. Multi-slot structures (derived_zone) expose
	// dotted sub-paths "zones.<slot>.<field>" alongside aggregates.
	Fields() []string
	// Update advances state by one closed bar. deps carries the
	// current-bar field values of any declared dependencies, keyed by
	// "<dep_key>.<field>". Returns this structure's field values keyed
	// by its own field name (not dotted with its own key — the pipeline
	// does that when writing into the feature array).
	Update(b StructBar, deps map[string]float64) map[string]float64
}

// StructBar is the OHLC view a structure needs from one closed bar, plus
// its absolute index within the timeframe's array (structures reference
// pivot positions by index, not timestamp).
type StructBar struct {
	Idx   int
	High  float64
	Low   float64
	Close float64
}

// Enum enumerations used by structure fields, stored as a small labelled
// float64 integer in the feature array.
const (
	TrendUnknown = 0.0
	TrendUp      = 1.0
	TrendDown    = -1.0

	ZoneNone   = 0.0
	ZoneActive = 1.0
	ZoneBroken = 2.0
)
