package features

import (
	"testing"

	"btcore/internal/bar"
)

// passthroughStruct emits "value" equal to its own dependency's "value"
// field plus one, letting tests assert ordering without a real detector.
type passthroughStruct struct{ dep string }

func (p *passthroughStruct) Fields() []string { return []string{"value"} }

func (p *passthroughStruct) Update(b StructBar, deps map[string]float64) map[string]float64 {
	if p.dep == "" {
		return map[string]float64{"value": b.Close}
	}
	return map[string]float64{"value": deps[p.dep+".value"] + 1}
}

// NewPipeline must topologically order nodes by depends_on so a
// dependent structure always reads its dependency's value from the
// *current* bar, never a stale prior-bar value.
func TestPipelineOrdersByDependency(t *testing.T) {
	nodes := []NodeSpec{
		{Key: "b", Kind: NodeStructure, Structure: &passthroughStruct{dep: "a"}, DependsOn: []string{"a"}},
		{Key: "a", Kind: NodeStructure, Structure: &passthroughStruct{}},
		{Key: "c", Kind: NodeStructure, Structure: &passthroughStruct{dep: "b"}, DependsOn: []string{"b"}},
	}
	p, err := NewPipeline(nodes)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	out := p.Advance(bar.Bar{Close: 10}, 0)
	if out["a.value"] != 10 {
		t.Fatalf("a.value = %v, want 10", out["a.value"])
	}
	if out["b.value"] != 11 {
		t.Fatalf("b.value = %v, want 11 (a.value + 1)", out["b.value"])
	}
	if out["c.value"] != 12 {
		t.Fatalf("c.value = %v, want 12 (b.value + 1)", out["c.value"])
	}
}

func TestPipelineRejectsUnknownDependency(t *testing.T) {
	nodes := []NodeSpec{
		{Key: "a", Kind: NodeStructure, Structure: &passthroughStruct{dep: "missing"}, DependsOn: []string{"missing"}},
	}
	if _, err := NewPipeline(nodes); err == nil {
		t.Fatalf("expected an error for a depends_on reference to an undeclared key")
	}
}

func TestPipelineRejectsCycle(t *testing.T) {
	nodes := []NodeSpec{
		{Key: "a", Kind: NodeStructure, Structure: &passthroughStruct{dep: "b"}, DependsOn: []string{"b"}},
		{Key: "b", Kind: NodeStructure, Structure: &passthroughStruct{dep: "a"}, DependsOn: []string{"a"}},
	}
	if _, err := NewPipeline(nodes); err == nil {
		t.Fatalf("expected an error for a dependency cycle")
	}
}

func TestPipelineRejectsDuplicateKey(t *testing.T) {
	nodes := []NodeSpec{
		{Key: "a", Kind: NodeStructure, Structure: &passthroughStruct{}},
		{Key: "a", Kind: NodeStructure, Structure: &passthroughStruct{}},
	}
	if _, err := NewPipeline(nodes); err == nil {
		t.Fatalf("expected an error for a duplicate feature key")
	}
}

// Advance returns a defensive copy: mutating the returned map must never
// corrupt the pipeline's own retained state.
func TestAdvanceReturnsACopy(t *testing.T) {
	nodes := []NodeSpec{{Key: "a", Kind: NodeIndicator, Indicator: NewSMA(1)}}
	p, err := NewPipeline(nodes)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	out := p.Advance(bar.Bar{Close: 5}, 0)
	out["a.value"] = 999

	out2 := p.Advance(bar.Bar{Close: 6}, 1)
	if out2["a.value"] == 999 {
		t.Fatalf("mutating a returned snapshot leaked into the pipeline's internal state")
	}
}
