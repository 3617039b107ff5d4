// Package rules implements the declarative boolean DSL that decides
// entries and exits each exec bar. A Play's rule tree is compiled once at
// load time into CompiledRefs and Exprs; evaluation against a Snapshot
// performs no further parsing or reflection, only map lookups and
// arithmetic, so it stays cheap enough for a dense tick-by-tick replay.
package rules

import "btcore/internal/bar"

// Namespace tags which kind of value a CompiledRef resolves to.
type Namespace int

const (
	NSPrice Namespace = iota
	NSIndicator
	NSStructure
	NSLiteral
)

// ValueKind distinguishes numeric (continuous, ordered) references from
// discrete (enum-labelled) ones. Discrete values only support equality
// comparisons; comparing two numerics with "==" is a compile-time error
// since floating-point equality is almost never the intent.
type ValueKind int

const (
	KindNumeric ValueKind = iota
	KindDiscrete
)

// CompiledRef is a resolved leaf reference: a price field, an indicator
// output, a structure field, or a literal constant. The namespace tag
// lets Eval dispatch without string comparisons in the hot path.
type CompiledRef struct {
	NS     Namespace
	Kind   ValueKind
	Role   bar.Role
	Key    string // indicator/structure key
	Field  string // output sub-key, e.g. "value", "upper", "state"
	Offset int    // 0 = current bar, 1 = one bar back, ...
	Lit    float64
}

// Literal builds a CompiledRef for a constant numeric or discrete value.
func Literal(v float64, kind ValueKind) CompiledRef {
	return CompiledRef{NS: NSLiteral, Kind: kind, Lit: v}
}

// PriceRef builds a CompiledRef for price(kind) — "mark"/"last"/"mid" is
// carried in Field since price has no role/key, only a kind selector.
func PriceRef(kind string) CompiledRef {
	return CompiledRef{NS: NSPrice, Kind: KindNumeric, Field: kind}
}

// IndicatorRef builds a CompiledRef for indicator(role, key, field, offset).
func IndicatorRef(role bar.Role, key, field string, offset int) CompiledRef {
	return CompiledRef{NS: NSIndicator, Kind: KindNumeric, Role: role, Key: key, Field: field, Offset: offset}
}

// StructureRef builds a CompiledRef for structure(role, key, field, offset).
// kind is KindDiscrete for enum fields (e.g. "state", "direction") and
// KindNumeric for level/price fields (e.g. "upper", "lower").
func StructureRef(role bar.Role, key, field string, offset int, kind ValueKind) CompiledRef {
	return CompiledRef{NS: NSStructure, Kind: kind, Role: role, Key: key, Field: field, Offset: offset}
}
