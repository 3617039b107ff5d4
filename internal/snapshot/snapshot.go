// Package snapshot provides the zero-copy view of engine state that rule
// evaluation reads each bar. It never performs a lookahead: values for a
// role are only published once that role's bar has closed.
package snapshot

import (
	"fmt"
	"time"

	"btcore/internal/bar"
	"btcore/internal/rules"
)

// PositionSide mirrors the exchange's current position direction so
// rules can reference position_side()/has_position() without importing
// the exchange package (avoiding an import cycle).
type PositionSide int

const (
	SideFlat PositionSide = iota
	SideLong
	SideShort
)

// RoleView is the per-role state the snapshot exposes: the current bar
// index, its closing price fields, and the feature map computed by that
// role's pipeline for the current bar.
type RoleView struct {
	Role     bar.Role
	Idx      int
	TsClose  time.Time
	Close    float64
	Fields   map[string]float64 // "<node_key>.<field>" -> value, current bar
	History  []map[string]float64 // ring of recent bars' Fields, oldest first, for offset lookups
}

// Snapshot is the read-only facade the rule evaluator and risk model
// query each exec bar. It is rebuilt (not mutated) every bar by the
// orchestrator from each timeframe's Pipeline output.
type Snapshot struct {
	execRole bar.Role
	roles    map[bar.Role]*RoleView
	mark     float64
	last     float64
	side     PositionSide
	hasPos   bool
}

func New(execRole bar.Role) *Snapshot {
	return &Snapshot{execRole: execRole, roles: make(map[bar.Role]*RoleView)}
}

// SetRole installs or replaces a role's current view. The orchestrator
// calls this once per role per exec bar, after that role's pipeline has
// advanced and before rule evaluation runs.
func (s *Snapshot) SetRole(v *RoleView) {
	s.roles[v.Role] = v
}

// SetMarket records the current mark/last price and position state,
// computed by the exchange just before evaluation.
func (s *Snapshot) SetMarket(mark, last float64, side PositionSide, hasPos bool) {
	s.mark, s.last, s.side, s.hasPos = mark, last, side, hasPos
}

// Price resolves price(kind): kind is "mark", "last", or "mid". There is
// no per-field (open/high/low) selector.
func (s *Snapshot) Price(kind string) (float64, error) {
	switch kind {
	case "mark":
		return s.mark, nil
	case "last":
		return s.last, nil
	case "mid":
		return (s.mark + s.last) / 2, nil
	default:
		return 0, fmt.Errorf("snapshot: unknown price kind %q", kind)
	}
}

// Indicator resolves indicator(role, key[, field], offset) — offset 0 is
// the current (most recently closed) bar, offset 1 is one bar back, etc.
func (s *Snapshot) Indicator(role bar.Role, key, field string, offset int) (float64, error) {
	return s.lookup(role, key, field, offset)
}

// Structure resolves structure(role, key, field[, offset]), including
// multi-slot dotted paths like "zones.0.lower".
func (s *Snapshot) Structure(role bar.Role, key, field string, offset int) (float64, error) {
	return s.lookup(role, key, field, offset)
}

func (s *Snapshot) lookup(role bar.Role, key, field string, offset int) (float64, error) {
	rv, ok := s.roles[role]
	if !ok {
		return 0, fmt.Errorf("snapshot: role %q not published this bar", role)
	}
	// Lookahead guard: a role's data can never be newer than the exec
	// role's current closed bar.
	if exec, ok := s.roles[s.execRole]; ok && rv.TsClose.After(exec.TsClose) {
		panic(fmt.Sprintf("snapshot: lookahead violation: role %q ts_close %s is after exec ts_close %s", role, rv.TsClose, exec.TsClose))
	}

	full := key + "." + field
	if offset == 0 {
		v, ok := rv.Fields[full]
		if !ok {
			return 0, fmt.Errorf("snapshot: no such feature %q on role %q", full, role)
		}
		return v, nil
	}
	histIdx := len(rv.History) - offset
	if histIdx < 0 {
		return 0, fmt.Errorf("snapshot: offset %d exceeds retained history for role %q", offset, role)
	}
	v, ok := rv.History[histIdx][full]
	if !ok {
		return 0, fmt.Errorf("snapshot: no such feature %q on role %q at offset %d", full, role, offset)
	}
	return v, nil
}

func (s *Snapshot) PositionSide() PositionSide { return s.side }
func (s *Snapshot) HasPosition() bool          { return s.hasPos }

// The methods below satisfy rules.Resolver, letting a Snapshot be passed
// directly to a compiled Expr's Eval without an adapter type.

func (s *Snapshot) ResolvePrice(kind string) (float64, bool) {
	v, err := s.Price(kind)
	return v, err == nil
}

func (s *Snapshot) ResolveIndicator(ref rules.CompiledRef) (float64, bool) {
	v, err := s.Indicator(ref.Role, ref.Key, ref.Field, ref.Offset)
	return v, err == nil
}

func (s *Snapshot) ResolveStructure(ref rules.CompiledRef) (float64, bool) {
	v, err := s.Structure(ref.Role, ref.Key, ref.Field, ref.Offset)
	return v, err == nil
}
