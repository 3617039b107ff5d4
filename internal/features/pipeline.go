// Package features computes the incremental indicator/structure pipeline
// that feeds the runtime snapshot each bar. Every indicator and structure
// advances in O(1) amortized time per bar via ring buffers and monotonic
// deques (see ringbuffer.go), so a full backtest replay never re-scans
// history.
package features

import (
	"fmt"

	"github.com/katalvlaran/lvlath/core"
	"github.com/katalvlaran/lvlath/dfs"

	"btcore/internal/bar"
)

// NodeKind distinguishes an indicator slot from a structure slot within
// one timeframe's pipeline, since the two have different Update shapes.
type NodeKind int

const (
	NodeIndicator NodeKind = iota
	NodeStructure
)

// NodeSpec is one declared feature within a timeframe's pipeline: either
// an Indicator keyed by name, or a Structure keyed by name with declared
// dependencies on other structures computed earlier in the same bar.
type NodeSpec struct {
	Key        string
	Kind       NodeKind
	Indicator  Indicator
	Structure  Structure
	DependsOn  []string // structure keys this node reads via deps map
	InputSrc   InputSource
}

// Pipeline is the topologically ordered set of indicator/structure nodes
// for one timeframe, built once at Play-load time and then driven one
// closed bar at a time for the life of the run.
type Pipeline struct {
	order []NodeSpec
	// last holds each node's most recent field values, keyed "<node>.<field>",
	// used both to feed dependent structures within the same bar and to
	// serve the snapshot's structure()/indicator() lookups.
	last map[string]float64
}

// NewPipeline topologically sorts nodes by their depends_on edges using
// lvlath's directed-graph topological sort, so indicators and structures
// within one timeframe are always ordered after whatever they declare
// depends_on against. A cycle or a reference to an undeclared key fails
// at load time rather than at replay time.
func NewPipeline(nodes []NodeSpec) (*Pipeline, error) {
	g := core.NewGraph(core.WithDirected(true))
	byKey := make(map[string]NodeSpec, len(nodes))

	for _, n := range nodes {
		if _, dup := byKey[n.Key]; dup {
			return nil, fmt.Errorf("features: duplicate feature key %q", n.Key)
		}
		byKey[n.Key] = n
		if err := g.AddVertex(n.Key); err != nil {
			return nil, fmt.Errorf("features: add vertex %q: %w", n.Key, err)
		}
	}

	for _, n := range nodes {
		for _, dep := range n.DependsOn {
			if _, ok := byKey[dep]; !ok {
				return nil, fmt.Errorf("features: %q depends_on unknown key %q", n.Key, dep)
			}
			// Edge dep -> n: dep must be computed before n.
			if _, err := g.AddEdge(dep, n.Key, 0); err != nil {
				return nil, fmt.Errorf("features: add dependency edge %q->%q: %w", dep, n.Key, err)
			}
		}
	}

	order, err := dfs.TopologicalSort(g)
	if err != nil {
		return nil, fmt.Errorf("features: dependency graph: %w", err)
	}

	sorted := make([]NodeSpec, 0, len(order))
	for _, key := range order {
		sorted = append(sorted, byKey[key])
	}

	return &Pipeline{order: sorted, last: make(map[string]float64)}, nil
}

// Advance feeds one closed raw bar through every node in dependency
// order, returning the flattened "<key>.<field>" -> value map for this
// bar. Each indicator node resolves its own input series from b via its
// declared InputSrc (default close), so a single pipeline can mix
// indicators over different series (e.g. an SMA over volume alongside an
// EMA over close). The same map backs the runtime snapshot's
// indicator()/structure() lookups.
func (p *Pipeline) Advance(b bar.Bar, idx int) map[string]float64 {
	sb := StructBar{Idx: idx, High: b.High, Low: b.Low, Close: b.Close}

	for _, n := range p.order {
		switch n.Kind {
		case NodeIndicator:
			src := string(n.InputSrc)
			if src == "" {
				src = string(SrcClose)
			}
			val, ok := b.Field(src)
			if !ok {
				val = b.Close
			}
			ib := Bar{Value: val, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}

			vals := n.Indicator.Update(ib)
			keys := n.Indicator.OutputKeys()
			for i, k := range keys {
				if i < len(vals) {
					p.last[n.Key+"."+k] = vals[i]
				}
			}
		case NodeStructure:
			out := n.Structure.Update(sb, p.last)
			for field, v := range out {
				p.last[n.Key+"."+field] = v
			}
		}
	}
	// return a copy so callers cannot mutate pipeline-internal state
	snap := make(map[string]float64, len(p.last))
	for k, v := range p.last {
		snap[k] = v
	}
	return snap
}

// Value looks up the most recently computed field for key (e.g.
// "ema_fast.value" or "swing_htf.high_level").
func (p *Pipeline) Value(key string) (float64, bool) {
	v, ok := p.last[key]
	return v, ok
}
