package features

import "fmt"

// StructureKind is the closed set of structure detector types, mirroring
// IndicatorKind's enum+match factory discipline but for the stateful
// detectors: swing, trend, zone, fibonacci, derived zone, and the
// rolling-window adapter.
type StructureKind string

const (
	KindSwing       StructureKind = "swing"
	KindTrend       StructureKind = "trend"
	KindZone        StructureKind = "zone"
	KindFibonacci   StructureKind = "fibonacci"
	KindDerivedZone StructureKind = "derived_zone"
	KindRollingMax  StructureKind = "rolling_window_max"
	KindRollingMin  StructureKind = "rolling_window_min"
)

// StructureSpec is the load-time description of one structure
// declaration, already resolved from the Play's YAML shape
// (internal/play converts the document into this before calling Build).
type StructureSpec struct {
	Kind StructureKind

	// numeric params, meaning depends on Kind:
	//   swing:              left, right
	//   zone:                mult, fixed
	//   derived_zone:        k, width
	//   rolling_window_*:    length
	Params map[string]float64

	// SwingKey names the dependency key (within the same role's pipeline)
	// that this structure reads Swing fields from. Required for trend,
	// zone, fibonacci, derived_zone.
	SwingKey string
	// ATRKey names an indicator dependency key for zone's atr_mult width
	// model. Empty for other kinds/models.
	ATRKey string
	// Side selects which swing side anchors a zone/derived_zone:
	// "low" (demand) or "high" (supply).
	Side string
	// WidthModel selects zone's width derivation: "atr_mult", "percent",
	// or "fixed".
	WidthModel string
}

// BuildStructure validates spec and constructs the concrete Structure,
// failing at Play-load time rather than at replay time on a malformed
// declaration.
func BuildStructure(spec StructureSpec) (Structure, error) {
	p := spec.Params
	switch spec.Kind {
	case KindSwing:
		left, right := p["left"], p["right"]
		if left <= 0 || right <= 0 {
			return nil, fmt.Errorf("features: swing requires positive left/right, got left=%v right=%v", left, right)
		}
		return NewSwing(int(left), int(right)), nil

	case KindTrend:
		if spec.SwingKey == "" {
			return nil, fmt.Errorf("features: trend requires a swing dependency (depends_on)")
		}
		return NewTrend(spec.SwingKey), nil

	case KindZone:
		if spec.SwingKey == "" {
			return nil, fmt.Errorf("features: zone requires a swing dependency (depends_on)")
		}
		if spec.Side != "low" && spec.Side != "high" {
			return nil, fmt.Errorf("features: zone requires side 'low' or 'high', got %q", spec.Side)
		}
		model := widthModel(spec.WidthModel)
		switch model {
		case WidthATRMult:
			if spec.ATRKey == "" {
				return nil, fmt.Errorf("features: zone width_model atr_mult requires an atr dependency")
			}
		case WidthPercent, WidthFixed:
		default:
			return nil, fmt.Errorf("features: zone: unknown width_model %q", spec.WidthModel)
		}
		return NewZone(spec.SwingKey, spec.ATRKey, spec.Side, model, p["mult"], p["fixed"]), nil

	case KindFibonacci:
		if spec.SwingKey == "" {
			return nil, fmt.Errorf("features: fibonacci requires a swing dependency (depends_on)")
		}
		return NewFibonacci(spec.SwingKey), nil

	case KindDerivedZone:
		if spec.SwingKey == "" {
			return nil, fmt.Errorf("features: derived_zone requires a swing dependency (depends_on)")
		}
		if spec.Side != "low" && spec.Side != "high" {
			return nil, fmt.Errorf("features: derived_zone requires side 'low' or 'high', got %q", spec.Side)
		}
		k := int(p["k"])
		if k <= 0 {
			return nil, fmt.Errorf("features: derived_zone requires k > 0, got %d", k)
		}
		return NewDerivedZone(spec.SwingKey, spec.Side, k, p["width"]), nil

	case KindRollingMax:
		length := int(p["length"])
		if length <= 0 {
			return nil, fmt.Errorf("features: rolling_window_max requires length > 0")
		}
		return NewRollingWindowMax(length), nil

	case KindRollingMin:
		length := int(p["length"])
		if length <= 0 {
			return nil, fmt.Errorf("features: rolling_window_min requires length > 0")
		}
		return NewRollingWindowMin(length), nil

	default:
		return nil, fmt.Errorf("features: unknown structure kind %q", spec.Kind)
	}
}

// IsStructureKind reports whether kind names a known structure type, used
// by Play validation to distinguish a structure declaration from an
// indicator one sharing the same "kind" string space.
func IsStructureKind(kind string) bool {
	switch StructureKind(kind) {
	case KindSwing, KindTrend, KindZone, KindFibonacci, KindDerivedZone, KindRollingMax, KindRollingMin:
		return true
	default:
		return false
	}
}
