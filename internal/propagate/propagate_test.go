package propagate

import (
	"math"
	"testing"

	"github.com/GonzaloDeLaFuente3/pcgraph/internal/graphstore"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/model"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// buildChain wires A-B-C with the exact w_eff values from the spec's worked
// example: w_eff(A,B)=0.6, w_eff(B,C)=0.5.
func buildChain(t *testing.T) *graphstore.Store {
	t.Helper()
	g := graphstore.New(nil)
	for _, id := range []string{"A", "B", "C"} {
		if err := g.AddNode(&model.Fragment{FragmentID: id}); err != nil {
			t.Fatalf("AddNode(%s): %v", id, err)
		}
	}
	if err := g.AddEdge(model.Edge{From: "A", To: "B", WStruct: 0.6, WEff: 0.6, Type: model.EdgeSemantic}); err != nil {
		t.Fatalf("AddEdge(A,B): %v", err)
	}
	if err := g.AddEdge(model.Edge{From: "B", To: "C", WStruct: 0.5, WEff: 0.5, Type: model.EdgeSemantic}); err != nil {
		t.Fatalf("AddEdge(B,C): %v", err)
	}
	return g
}

// TestFromReproducesChainExample reproduces spec.md's worked example
// verbatim: seeded at A with a0=1.0, max_steps=2, lambda=0.8, tau_act=0.1 —
// B appears at depth 1 with activation 0.48, C at depth 2 with activation
// 0.1536.
func TestFromReproducesChainExample(t *testing.T) {
	g := buildChain(t)
	res := From(g, "A", 1.0, 0.8, 0.1, 2, false)

	if _, present := res.Activation["A"]; present {
		t.Error("seed A must not appear in the result")
	}

	bAct, ok := res.Activation["B"]
	if !ok {
		t.Fatal("B should be activated")
	}
	if !almostEqual(bAct, 0.48) {
		t.Errorf("activation[B] = %v, want 0.48", bAct)
	}
	if res.Depth["B"] != 1 {
		t.Errorf("depth[B] = %d, want 1", res.Depth["B"])
	}

	cAct, ok := res.Activation["C"]
	if !ok {
		t.Fatal("C should be activated")
	}
	if !almostEqual(cAct, 0.1536) {
		t.Errorf("activation[C] = %v, want 0.1536", cAct)
	}
	if res.Depth["C"] != 2 {
		t.Errorf("depth[C] = %d, want 2", res.Depth["C"])
	}
}

// TestFromPrunesAtHigherFloor reproduces the spec's follow-up: at
// tau_act=0.2, C is pruned (0.1536 falls below the step-2 floor of
// 0.2*1.5=0.3) while B still clears the step-1 floor of 0.2.
func TestFromPrunesAtHigherFloor(t *testing.T) {
	g := buildChain(t)
	res := From(g, "A", 1.0, 0.8, 0.2, 2, false)

	if _, ok := res.Activation["B"]; !ok {
		t.Error("B should still be activated at tau_act=0.2")
	}
	if _, ok := res.Activation["C"]; ok {
		t.Errorf("C should be pruned at tau_act=0.2, got activation %v", res.Activation["C"])
	}
}

func TestFromRespectsMaxStepsCap(t *testing.T) {
	g := buildChain(t)
	res := From(g, "A", 1.0, 0.8, 0.01, 1, false)
	if _, ok := res.Activation["C"]; ok {
		t.Error("C should not be reached with max_steps=1")
	}
	if _, ok := res.Activation["B"]; !ok {
		t.Error("B should be reached with max_steps=1")
	}
}

func TestFromClampsMaxStepsAboveHardCap(t *testing.T) {
	g := buildChain(t)
	// Requesting more than the hard cap of 3 must not panic or loop forever;
	// it should behave identically to max_steps=3.
	withCap := From(g, "A", 1.0, 0.8, 0.01, 3, false)
	overCap := From(g, "A", 1.0, 0.8, 0.01, 10, false)
	if len(withCap.Activation) != len(overCap.Activation) {
		t.Errorf("over-cap result diverged from capped result: %v vs %v", overCap.Activation, withCap.Activation)
	}
}

func TestFromStopsEarlyWhenNoNeighbors(t *testing.T) {
	g := graphstore.New(nil)
	_ = g.AddNode(&model.Fragment{FragmentID: "lonely"})
	res := From(g, "lonely", 1.0, 0.8, 0.1, 3, false)
	if len(res.Activation) != 0 {
		t.Errorf("isolated seed should propagate nowhere, got %v", res.Activation)
	}
}

func TestFromExcludesTemporalEdgesWhenRequested(t *testing.T) {
	g := graphstore.New(nil)
	_ = g.AddNode(&model.Fragment{FragmentID: "A"})
	_ = g.AddNode(&model.Fragment{FragmentID: "B"})
	if err := g.AddEdge(model.Edge{From: "A", To: "B", WStruct: 0.6, WEff: 0.6, Type: model.EdgeSemanticTemporal}); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	included := From(g, "A", 1.0, 0.8, 0.1, 1, false)
	if _, ok := included.Activation["B"]; !ok {
		t.Error("B should be reached when temporal edges are included")
	}

	excluded := From(g, "A", 1.0, 0.8, 0.1, 1, true)
	if _, ok := excluded.Activation["B"]; ok {
		t.Error("B should not be reached when purely temporal edges are excluded")
	}
}

func TestFromQueryMergesBySeedWithDominantSource(t *testing.T) {
	g := graphstore.New(nil)
	_ = g.AddNode(&model.Fragment{FragmentID: "seed1"})
	_ = g.AddNode(&model.Fragment{FragmentID: "seed2"})
	_ = g.AddNode(&model.Fragment{FragmentID: "shared"})
	if err := g.AddEdge(model.Edge{From: "seed1", To: "shared", WStruct: 0.6, WEff: 0.3, Type: model.EdgeSemantic}); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if err := g.AddEdge(model.Edge{From: "seed2", To: "shared", WStruct: 0.6, WEff: 0.9, Type: model.EdgeSemantic}); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	override := map[string]float64{"seed1": 1.0, "seed2": 1.0}
	merged := FromQuery(g, nil, []string{"seed1", "seed2"}, override, 1.0, 0.1, 1, false)

	act, ok := merged.Activation["shared"]
	if !ok {
		t.Fatal("shared should be activated")
	}
	if !almostEqual(act, 0.9) {
		t.Errorf("merged activation[shared] = %v, want 0.9 (seed2's contribution)", act)
	}
	if merged.Source["shared"] != "seed2" {
		t.Errorf("Source[shared] = %s, want seed2", merged.Source["shared"])
	}
}

func TestInitialActivationFlooredAndCapped(t *testing.T) {
	g := graphstore.New(nil)
	_ = g.AddNode(&model.Fragment{FragmentID: "seed", Keywords: map[string]struct{}{"alpha": {}}})
	questionKeywords := map[string]struct{}{"beta": {}}

	a0 := initialActivation(g, "seed", questionKeywords)
	if !almostEqual(a0, seedActivationFloor) {
		t.Errorf("disjoint keyword sets should floor at %v, got %v", seedActivationFloor, a0)
	}

	identical := map[string]struct{}{"alpha": {}}
	a0Same := initialActivation(g, "seed", identical)
	if !almostEqual(a0Same, seedActivationCap) {
		t.Errorf("identical keyword sets should cap at %v, got %v", seedActivationCap, a0Same)
	}
}
