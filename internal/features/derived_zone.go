package features

import (
	"math"
	"strconv"
)

// DerivedZone maintains up to K concurrently active zones derived from
// swing pivot confirmations on a single anchor side, replacing the
// oldest slot once K is exceeded. Unlike Zone,
// which tracks a single anchor, this structure accumulates a rolling set
// so rules can reason about "any nearby untested zone" rather than just
// the most recent one.
type DerivedZone struct {
	swingKey string
	side     string // "low" or "high"
	k        int
	width    float64 // fixed price-unit width of each derived zone, measured from its anchor

	lastVer int
	slots   []derivedSlot
	next    int // ring-buffer write cursor over slots once full
}

type derivedSlot struct {
	lower, upper float64
	state        float64
	anchorIdx    float64
	filled       bool
}

func NewDerivedZone(swingKey, side string, k int, width float64) *DerivedZone {
	return &DerivedZone{swingKey: swingKey, side: side, k: k, width: width, slots: make([]derivedSlot, k)}
}

func (d *DerivedZone) Fields() []string {
	fields := make([]string, 0, d.k*4+5)
	for i := 0; i < d.k; i++ {
		fields = append(fields,
			zoneSlotField(i, "lower"), zoneSlotField(i, "upper"),
			zoneSlotField(i, "state"), zoneSlotField(i, "anchor_idx"))
	}
	fields = append(fields, "any_active", "active_count", "closest_active_lower", "closest_active_upper", "closest_active_idx", "newest_active_idx", "source_version")
	return fields
}

func zoneSlotField(i int, name string) string {
	return "zones." + strconv.Itoa(i) + "." + name
}

func (d *DerivedZone) Update(b StructBar, deps map[string]float64) map[string]float64 {
	ver := int(deps[d.swingKey+".version"])

	if ver != d.lastVer {
		var anchorLevel, anchorIdx float64
		if d.side == "high" {
			anchorLevel = deps[d.swingKey+".high_level"]
			anchorIdx = deps[d.swingKey+".high_idx"]
		} else {
			anchorLevel = deps[d.swingKey+".low_level"]
			anchorIdx = deps[d.swingKey+".low_idx"]
		}
		if !isNaN(anchorLevel) {
			slot := derivedSlot{anchorIdx: anchorIdx, state: ZoneActive, filled: true}
			if d.side == "high" {
				slot.upper, slot.lower = anchorLevel, anchorLevel-d.width
			} else {
				slot.lower, slot.upper = anchorLevel, anchorLevel+d.width
			}
			d.slots[d.next] = slot
			d.next = (d.next + 1) % d.k
		}
		d.lastVer = ver
	}

	var activeCount int
	var newestIdx float64
	closestLower, closestUpper, closestIdx := NaN, NaN, NaN
	bestDist := math.MaxFloat64

	for i := range d.slots {
		s := &d.slots[i]
		if !s.filled {
			continue
		}
		if s.state == ZoneActive {
			broken := (d.side == "high" && b.Close > s.upper) || (d.side == "low" && b.Close < s.lower)
			if broken {
				s.state = ZoneBroken
			}
		}
		if s.state == ZoneActive {
			activeCount++
			if s.anchorIdx > newestIdx {
				newestIdx = s.anchorIdx
			}
			mid := (s.lower + s.upper) / 2
			dist := absf(b.Close - mid)
			if dist < bestDist {
				bestDist = dist
				closestLower, closestUpper, closestIdx = s.lower, s.upper, s.anchorIdx
			}
		}
	}

	out := make(map[string]float64, len(d.slots)*4+6)
	for i, s := range d.slots {
		if !s.filled {
			out[zoneSlotField(i, "lower")] = NaN
			out[zoneSlotField(i, "upper")] = NaN
			out[zoneSlotField(i, "state")] = ZoneNone
			out[zoneSlotField(i, "anchor_idx")] = NaN
			continue
		}
		out[zoneSlotField(i, "lower")] = s.lower
		out[zoneSlotField(i, "upper")] = s.upper
		out[zoneSlotField(i, "state")] = s.state
		out[zoneSlotField(i, "anchor_idx")] = s.anchorIdx
	}
	anyActive := 0.0
	if activeCount > 0 {
		anyActive = 1.0
	}
	out["any_active"] = anyActive
	out["active_count"] = float64(activeCount)
	out["closest_active_lower"] = closestLower
	out["closest_active_upper"] = closestUpper
	out["closest_active_idx"] = closestIdx
	out["newest_active_idx"] = newestIdx
	out["source_version"] = float64(ver)
	return out
}
