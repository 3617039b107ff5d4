package rules

import "math"

// Operator is the closed set of comparison operators the DSL supports.
// cross_above/cross_below need the previous bar's values to detect a
// crossing, so Compare carries one bar of LHS/RHS history.
type Operator string

const (
	OpGT        Operator = ">"
	OpLT        Operator = "<"
	OpGTE       Operator = ">="
	OpLTE       Operator = "<="
	OpEQ        Operator = "=="
	OpNEQ       Operator = "!="
	OpCrossUp   Operator = "cross_above"
	OpCrossDown Operator = "cross_below"
	OpBetween   Operator = "between"
	OpNearAbs   Operator = "near_abs"
	OpNearPct   Operator = "near_pct"
)

// applyOp evaluates a non-crossing, non-windowed operator on two scalars.
// extra carries operator-specific parameters: between's upper bound,
// near_abs's tolerance, near_pct's fractional tolerance.
func applyOp(op Operator, lhs, rhs float64, extra float64) (bool, bool) {
	switch op {
	case OpGT:
		return lhs > rhs, true
	case OpLT:
		return lhs < rhs, true
	case OpGTE:
		return lhs >= rhs, true
	case OpLTE:
		return lhs <= rhs, true
	case OpEQ:
		return lhs == rhs, true
	case OpNEQ:
		return lhs != rhs, true
	case OpBetween:
		lo, hi := rhs, extra
		if lo > hi {
			lo, hi = hi, lo
		}
		return lhs >= lo && lhs <= hi, true
	case OpNearAbs:
		return math.Abs(lhs-rhs) <= extra, true
	case OpNearPct:
		if rhs == 0 {
			return false, false
		}
		return math.Abs(lhs-rhs)/math.Abs(rhs) <= extra, true
	default:
		return false, false
	}
}

// crossed evaluates cross_above/cross_below using the previous bar's LHS
// and RHS alongside the current bar's values.
func crossed(op Operator, prevLHS, prevRHS, lhs, rhs float64) bool {
	switch op {
	case OpCrossUp:
		return prevLHS <= prevRHS && lhs > rhs
	case OpCrossDown:
		return prevLHS >= prevRHS && lhs < rhs
	default:
		return false
	}
}

// IsCrossing reports whether op needs one bar of history to evaluate.
func IsCrossing(op Operator) bool {
	return op == OpCrossUp || op == OpCrossDown
}
