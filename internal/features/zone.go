package features

import "math"

// widthModel selects how a Zone's width is derived from its anchor.
type widthModel string

const (
	WidthATRMult widthModel = "atr_mult"
	WidthPercent widthModel = "percent"
	WidthFixed   widthModel = "fixed"
)

// Zone derives one active demand/supply zone from a Swing anchor. Side
// selects which swing side anchors the zone: "low"
// anchors a demand zone above a confirmed swing low, "high" anchors a
// supply zone below a confirmed swing high. The zone transitions
// NONE -> ACTIVE on a new qualifying anchor, then ACTIVE -> BROKEN once
// price closes through the far edge; a fresh qualifying anchor replaces
// a BROKEN or ACTIVE zone outright.
type Zone struct {
	swingKey string
	atrKey   string // depends_on key for an ATR indicator, used by WidthATRMult
	side     string // "low" or "high"
	model    widthModel
	mult     float64 // atr_mult or percent
	fixed    float64 // fixed width in price units

	lastVer          int
	state            float64
	lower, upper     float64
	anchorIdx        float64
	version          int
}

func NewZone(swingKey, atrKey, side string, model widthModel, mult, fixed float64) *Zone {
	return &Zone{swingKey: swingKey, atrKey: atrKey, side: side, model: model, mult: mult, fixed: fixed, state: ZoneNone}
}

func (z *Zone) Fields() []string {
	return []string{"state", "lower", "upper", "anchor_idx", "version"}
}

func (z *Zone) Update(b StructBar, deps map[string]float64) map[string]float64 {
	ver := int(deps[z.swingKey+".version"])

	var anchorLevel float64
	var anchorIdx float64
	var haveNewAnchor bool

	if ver != z.lastVer {
		if z.side == "high" {
			anchorLevel = deps[z.swingKey+".high_level"]
			anchorIdx = deps[z.swingKey+".high_idx"]
		} else {
			anchorLevel = deps[z.swingKey+".low_level"]
			anchorIdx = deps[z.swingKey+".low_idx"]
		}
		if !isNaN(anchorLevel) {
			haveNewAnchor = true
		}
		z.lastVer = ver
	}

	if haveNewAnchor {
		width := z.widthFor(deps, anchorLevel)
		if z.side == "high" {
			z.upper = anchorLevel
			z.lower = anchorLevel - width
		} else {
			z.lower = anchorLevel
			z.upper = anchorLevel + width
		}
		z.anchorIdx = anchorIdx
		z.state = ZoneActive
		z.version++
	}

	if z.state == ZoneActive {
		if z.side == "high" && b.Close > z.upper {
			z.state = ZoneBroken
		} else if z.side == "low" && b.Close < z.lower {
			z.state = ZoneBroken
		}
	}

	return map[string]float64{
		"state":      z.state,
		"lower":      z.lower,
		"upper":      z.upper,
		"anchor_idx": z.anchorIdx,
		"version":    float64(z.version),
	}
}

func (z *Zone) widthFor(deps map[string]float64, anchor float64) float64 {
	switch z.model {
	case WidthATRMult:
		atr := deps[z.atrKey+".value"]
		if isNaN(atr) {
			return z.fixed
		}
		return atr * z.mult
	case WidthPercent:
		return math.Abs(anchor) * z.mult
	default:
		return z.fixed
	}
}
