package rules

import "fmt"

// Expr is a compiled node in a rule tree. Every node type implements Eval
// against a Resolver; composite nodes (All/Any/Not/quantifiers) hold
// their own child Exprs and any state needed across bars (crossing
// history, rolling windows for holds_for/occurred_within/count_true).
type Expr interface {
	Eval(r Resolver) EvalResult
}

// Compare is a leaf comparison between two refs (or two arithmetic
// expressions reduced to refs by the compiler — see Arith below).
type Compare struct {
	Op       Operator
	LHS, RHS CompiledRef
	Extra    CompiledRef // between's upper bound / near_*'s tolerance
	// ArithLHS/ArithRHS, when non-nil, compute the operand from two refs
	// via +,-,*,/ instead of resolving LHS/RHS directly.
	ArithLHS *ArithRef
	ArithRHS *ArithRef
	prevLHS  float64
	prevRHS  float64
	primed   bool
}

func (c *Compare) resolveLHS(r Resolver) (float64, bool) {
	if c.ArithLHS != nil {
		return c.ArithLHS.resolve(r)
	}
	return resolve(r, c.LHS)
}

func (c *Compare) resolveRHS(r Resolver) (float64, bool) {
	if c.ArithRHS != nil {
		return c.ArithRHS.resolve(r)
	}
	return resolve(r, c.RHS)
}

func NewCompare(op Operator, lhs, rhs, extra CompiledRef) (*Compare, error) {
	if op == OpEQ || op == OpNEQ {
		if lhs.Kind == KindNumeric && rhs.Kind == KindNumeric && rhs.NS != NSLiteral {
			return nil, fmt.Errorf("rules: %s between two numeric (non-literal) refs is a compile-time error; use near_abs/near_pct", op)
		}
	}
	return &Compare{Op: op, LHS: lhs, RHS: rhs, Extra: extra}, nil
}

func (c *Compare) Eval(r Resolver) EvalResult {
	lhs, lhsOK := c.resolveLHS(r)
	if !lhsOK {
		return missingLHS()
	}
	rhs, rhsOK := c.resolveRHS(r)
	if !rhsOK {
		return missingRHS()
	}
	if isNaN(lhs) {
		return warmup()
	}
	if isNaN(rhs) {
		return warmup()
	}

	if IsCrossing(c.Op) {
		if !c.primed {
			c.prevLHS, c.prevRHS = lhs, rhs
			c.primed = true
			return ok(false)
		}
		result := crossed(c.Op, c.prevLHS, c.prevRHS, lhs, rhs)
		c.prevLHS, c.prevRHS = lhs, rhs
		return EvalResult{Value: result, Reason: ReasonOK}
	}

	var extra float64
	if c.Op == OpBetween || c.Op == OpNearAbs || c.Op == OpNearPct {
		v, ok := resolve(r, c.Extra)
		if !ok {
			return missingRHS()
		}
		if isNaN(v) {
			return nanInput()
		}
		extra = v
	}

	v, valid := applyOp(c.Op, lhs, rhs, extra)
	if !valid {
		return typeMismatch()
	}
	return ok(v)
}

// All is a short-circuiting conjunction: the first non-true child stops
// evaluation, and its reason is propagated so callers can see why the
// conjunction failed.
type All struct{ Children []Expr }

func (a *All) Eval(r Resolver) EvalResult {
	for _, c := range a.Children {
		res := c.Eval(r)
		if !res.Value {
			return res
		}
	}
	return ok(true)
}

// Any is a short-circuiting disjunction: the first true child stops
// evaluation and returns immediately.
type Any struct{ Children []Expr }

func (a *Any) Eval(r Resolver) EvalResult {
	var last EvalResult
	for _, c := range a.Children {
		res := c.Eval(r)
		if res.Value {
			return res
		}
		last = res
	}
	if len(a.Children) == 0 {
		return ok(false)
	}
	return last
}

// Not negates a single child. A non-OK reason is passed through
// unchanged — negating "missing data" is still "missing data", not true.
type Not struct{ Child Expr }

func (n *Not) Eval(r Resolver) EvalResult {
	res := n.Child.Eval(r)
	if res.Reason != ReasonOK {
		return res
	}
	return ok(!res.Value)
}

// HoldsFor requires Child to have evaluated true for the last N
// consecutive bars — the windowed "holds_for" quantifier.
type HoldsFor struct {
	Child Expr
	N     int
	hist  []bool
}

func (h *HoldsFor) Eval(r Resolver) EvalResult {
	res := h.Child.Eval(r)
	if res.Reason != ReasonOK {
		h.hist = append(h.hist, false)
	} else {
		h.hist = append(h.hist, res.Value)
	}
	if len(h.hist) > h.N {
		h.hist = h.hist[len(h.hist)-h.N:]
	}
	if len(h.hist) < h.N {
		return warmup()
	}
	for _, v := range h.hist {
		if !v {
			return ok(false)
		}
	}
	return ok(true)
}

// OccurredWithin requires Child to have evaluated true at least once in
// the last N bars.
type OccurredWithin struct {
	Child Expr
	N     int
	hist  []bool
}

func (o *OccurredWithin) Eval(r Resolver) EvalResult {
	res := o.Child.Eval(r)
	val := res.Reason == ReasonOK && res.Value
	o.hist = append(o.hist, val)
	if len(o.hist) > o.N {
		o.hist = o.hist[len(o.hist)-o.N:]
	}
	if len(o.hist) < o.N {
		return warmup()
	}
	for _, v := range o.hist {
		if v {
			return ok(true)
		}
	}
	return ok(false)
}

// CountTrue compares how many of the last N bars evaluated Child true
// against a threshold using Op (>,>=,<,<=,==,!=).
type CountTrue struct {
	Child     Expr
	N         int
	Op        Operator
	Threshold float64
	hist      []bool
}

func (c *CountTrue) Eval(r Resolver) EvalResult {
	res := c.Child.Eval(r)
	val := res.Reason == ReasonOK && res.Value
	c.hist = append(c.hist, val)
	if len(c.hist) > c.N {
		c.hist = c.hist[len(c.hist)-c.N:]
	}
	if len(c.hist) < c.N {
		return warmup()
	}
	count := 0
	for _, v := range c.hist {
		if v {
			count++
		}
	}
	v, valid := applyOp(c.Op, float64(count), c.Threshold, 0)
	if !valid {
		return typeMismatch()
	}
	return ok(v)
}

// Arith is a binary arithmetic combinator (+,-,*,/) over two refs,
// reduced to a single synthetic CompiledRef value at Eval time so it can
// feed into a Compare's LHS/RHS.
type ArithOp string

const (
	ArithAdd ArithOp = "+"
	ArithSub ArithOp = "-"
	ArithMul ArithOp = "*"
	ArithDiv ArithOp = "/"
)

// ArithRef is a CompiledRef-like leaf that computes its value from two
// sub-refs via an arithmetic operator, letting Compare treat it uniformly.
type ArithRef struct {
	Op       ArithOp
	LHS, RHS CompiledRef
}

func (a ArithRef) resolve(r Resolver) (float64, bool) {
	lhs, ok := resolve(r, a.LHS)
	if !ok {
		return 0, false
	}
	rhs, ok := resolve(r, a.RHS)
	if !ok {
		return 0, false
	}
	switch a.Op {
	case ArithAdd:
		return lhs + rhs, true
	case ArithSub:
		return lhs - rhs, true
	case ArithMul:
		return lhs * rhs, true
	case ArithDiv:
		if rhs == 0 {
			return 0, false
		}
		return lhs / rhs, true
	default:
		return 0, false
	}
}
