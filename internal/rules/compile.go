package rules

import (
	"fmt"

	"btcore/internal/bar"
)

// Node is the uncompiled, load-time representation of one rule-tree node
// as parsed from a Play document (internal/play converts YAML mappings
// into Node trees before calling Compile). Kept as a plain struct tree
// rather than an interface so the YAML decoder can populate it directly.
type Node struct {
	Kind string // "compare", "all", "any", "not", "holds_for", "occurred_within", "count_true"

	// compare
	Op    Operator
	LHS   RefSpec
	RHS   RefSpec
	Extra RefSpec

	// composite
	Children []Node

	// windowed quantifiers
	N         int
	Threshold float64
}

// RefSpec is the uncompiled description of a leaf reference, as written
// in a Play document (e.g. {namespace: indicator, role: exec, key: ema_fast, field: value}).
type RefSpec struct {
	Namespace string // "price", "indicator", "structure", "literal", "arith"
	Role      string
	Key       string
	Field     string
	Offset    int
	Literal   float64
	Kind      string // "numeric" or "discrete", for indicator/structure refs

	// arith
	ArithOp  ArithOp
	ArithLHS *RefSpec
	ArithRHS *RefSpec
}

// compileRef converts a RefSpec into a CompiledRef, validating the role and
// discrete/numeric tag at load time so an unresolvable reference fails
// at Play load, not at replay time.
func compileRef(spec RefSpec) (CompiledRef, error) {
	kind := KindNumeric
	if spec.Kind == "discrete" {
		kind = KindDiscrete
	}
	switch spec.Namespace {
	case "literal":
		return Literal(spec.Literal, kind), nil
	case "price":
		return PriceRef(spec.Field), nil
	case "indicator":
		role, err := bar.ParseRole(spec.Role)
		if err != nil {
			return CompiledRef{}, fmt.Errorf("rules: indicator ref: %w", err)
		}
		return IndicatorRef(role, spec.Key, spec.Field, spec.Offset), nil
	case "structure":
		role, err := bar.ParseRole(spec.Role)
		if err != nil {
			return CompiledRef{}, fmt.Errorf("rules: structure ref: %w", err)
		}
		return StructureRef(role, spec.Key, spec.Field, spec.Offset, kind), nil
	default:
		return CompiledRef{}, fmt.Errorf("rules: unknown reference namespace %q", spec.Namespace)
	}
}

func compileArith(spec RefSpec) (*ArithRef, error) {
	if spec.ArithLHS == nil || spec.ArithRHS == nil {
		return nil, fmt.Errorf("rules: arith ref missing operands")
	}
	lhs, err := compileRef(*spec.ArithLHS)
	if err != nil {
		return nil, err
	}
	rhs, err := compileRef(*spec.ArithRHS)
	if err != nil {
		return nil, err
	}
	return &ArithRef{Op: spec.ArithOp, LHS: lhs, RHS: rhs}, nil
}

// Compile walks a Node tree and produces an evaluatable Expr tree,
// rejecting malformed rules (unknown operators, numeric "==" between two
// non-literal refs, empty composites) at compile time.
func Compile(n Node) (Expr, error) {
	switch n.Kind {
	case "compare":
		cmp := &Compare{Op: n.Op}
		if n.LHS.Namespace == "arith" {
			a, err := compileArith(n.LHS)
			if err != nil {
				return nil, err
			}
			cmp.ArithLHS = a
		} else {
			ref, err := compileRef(n.LHS)
			if err != nil {
				return nil, err
			}
			cmp.LHS = ref
		}
		if n.RHS.Namespace == "arith" {
			a, err := compileArith(n.RHS)
			if err != nil {
				return nil, err
			}
			cmp.ArithRHS = a
		} else {
			ref, err := compileRef(n.RHS)
			if err != nil {
				return nil, err
			}
			cmp.RHS = ref
		}
		if n.Op == OpBetween || n.Op == OpNearAbs || n.Op == OpNearPct {
			ref, err := compileRef(n.Extra)
			if err != nil {
				return nil, err
			}
			cmp.Extra = ref
		}
		switch n.Op {
		case OpEQ, OpNEQ:
		case OpGT, OpLT, OpGTE, OpLTE, OpCrossUp, OpCrossDown, OpBetween, OpNearAbs, OpNearPct:
			if cmp.LHS.Kind == KindDiscrete || cmp.RHS.Kind == KindDiscrete {
				return nil, fmt.Errorf("rules: %s needs numeric operands; discrete values only support == and !=", n.Op)
			}
		default:
			return nil, fmt.Errorf("rules: unknown operator %q", n.Op)
		}
		if (n.Op == OpEQ || n.Op == OpNEQ) && cmp.ArithLHS == nil && cmp.ArithRHS == nil {
			if cmp.LHS.Kind == KindNumeric && cmp.RHS.Kind == KindNumeric && cmp.RHS.NS != NSLiteral {
				return nil, fmt.Errorf("rules: %s between two numeric non-literal refs is a compile-time error", n.Op)
			}
		}
		return cmp, nil

	case "all":
		children, err := compileChildren(n.Children)
		if err != nil {
			return nil, err
		}
		return &All{Children: children}, nil

	case "any":
		children, err := compileChildren(n.Children)
		if err != nil {
			return nil, err
		}
		return &Any{Children: children}, nil

	case "not":
		if len(n.Children) != 1 {
			return nil, fmt.Errorf("rules: not requires exactly one child")
		}
		child, err := Compile(n.Children[0])
		if err != nil {
			return nil, err
		}
		return &Not{Child: child}, nil

	case "holds_for":
		if len(n.Children) != 1 {
			return nil, fmt.Errorf("rules: holds_for requires exactly one child")
		}
		if n.N <= 0 {
			return nil, fmt.Errorf("rules: holds_for requires N > 0")
		}
		child, err := Compile(n.Children[0])
		if err != nil {
			return nil, err
		}
		return &HoldsFor{Child: child, N: n.N}, nil

	case "occurred_within":
		if len(n.Children) != 1 {
			return nil, fmt.Errorf("rules: occurred_within requires exactly one child")
		}
		if n.N <= 0 {
			return nil, fmt.Errorf("rules: occurred_within requires N > 0")
		}
		child, err := Compile(n.Children[0])
		if err != nil {
			return nil, err
		}
		return &OccurredWithin{Child: child, N: n.N}, nil

	case "count_true":
		if len(n.Children) != 1 {
			return nil, fmt.Errorf("rules: count_true requires exactly one child")
		}
		if n.N <= 0 {
			return nil, fmt.Errorf("rules: count_true requires N > 0")
		}
		child, err := Compile(n.Children[0])
		if err != nil {
			return nil, err
		}
		return &CountTrue{Child: child, N: n.N, Op: n.Op, Threshold: n.Threshold}, nil

	default:
		return nil, fmt.Errorf("rules: unknown node kind %q", n.Kind)
	}
}

func compileChildren(nodes []Node) ([]Expr, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("rules: composite node requires at least one child")
	}
	out := make([]Expr, 0, len(nodes))
	for _, c := range nodes {
		e, err := Compile(c)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
