package querytree

import (
	"testing"
	"time"

	"github.com/GonzaloDeLaFuente3/pcgraph/internal/graphstore"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/model"
)

func addFrag(t *testing.T, g *graphstore.Store, id string, ts *time.Time, ctxType model.ContextType, kw ...string) {
	t.Helper()
	keywords := make(map[string]struct{}, len(kw))
	for _, k := range kw {
		keywords[k] = struct{}{}
	}
	f := &model.Fragment{FragmentID: id, Title: id, Keywords: keywords, Timestamp: ts, ContextType: ctxType}
	if err := g.AddNode(f); err != nil {
		t.Fatalf("AddNode(%s): %v", id, err)
	}
}

func TestBuildSortsDescendingByWEff(t *testing.T) {
	g := graphstore.New(nil)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	addFrag(t, g, "weak", nil, model.ContextGeneral, "otro")
	addFrag(t, g, "strong", nil, model.ContextGeneral, "autenticacion", "sistema")

	candidates := []CandidateSemantics{
		{FragmentID: "weak", Sem: 0.1},
		{FragmentID: "strong", Sem: 0.9},
	}
	qk := map[string]struct{}{"autenticacion": {}, "sistema": {}}

	tree := Build(g, "q", qk, candidates, model.IntentStructural, 1.5, now)
	if len(tree.Nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(tree.Nodes))
	}
	if tree.Nodes[0].FragmentID != "strong" {
		t.Errorf("top node = %s, want 'strong'", tree.Nodes[0].FragmentID)
	}
	if tree.Nodes[0].WEff <= tree.Nodes[1].WEff {
		t.Errorf("nodes not sorted descending: %+v", tree.Nodes)
	}
}

func TestBuildTemporalLedScoringWhenIntentTemporalAndRTempHigh(t *testing.T) {
	g := graphstore.New(nil)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Hour)
	addFrag(t, g, "recent", &recent, model.ContextMeeting, "reunion")

	candidates := []CandidateSemantics{{FragmentID: "recent", Sem: 0.2}}
	qk := map[string]struct{}{"reunion": {}}

	temporalTree := Build(g, "q", qk, candidates, model.IntentTemporal, 1.5, now)
	structuralTree := Build(g, "q", qk, candidates, model.IntentStructural, 1.5, now)

	if temporalTree.Nodes[0].RTemp <= 0.5 {
		t.Fatalf("test fixture must produce rt > 0.5, got %v", temporalTree.Nodes[0].RTemp)
	}
	// Same inputs, different intent => different score (temporal-led formula
	// diverges from the structural/mixed formula whenever rt and ws differ).
	if temporalTree.Nodes[0].WEff == structuralTree.Nodes[0].WEff {
		t.Errorf("expected temporal-led and structural scoring to diverge, both gave %v", temporalTree.Nodes[0].WEff)
	}
}

func TestBuildSkipsUnknownCandidates(t *testing.T) {
	g := graphstore.New(nil)
	now := time.Now()
	tree := Build(g, "q", nil, []CandidateSemantics{{FragmentID: "ghost", Sem: 1}}, model.IntentStructural, 1.5, now)
	if len(tree.Nodes) != 0 {
		t.Errorf("expected no nodes for an unknown candidate, got %+v", tree.Nodes)
	}
}

func TestBuildNormalizesWEffBelowOne(t *testing.T) {
	g := graphstore.New(nil)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	addFrag(t, g, "a", &now, model.ContextKnowledge, "x", "y", "z")
	qk := map[string]struct{}{"x": {}, "y": {}, "z": {}}
	tree := Build(g, "q", qk, []CandidateSemantics{{FragmentID: "a", Sem: 1.0}}, model.IntentTemporal, 3.0, now)
	if tree.Nodes[0].WEff >= 1.0 {
		t.Errorf("WEff = %v, want < 1 after normalization", tree.Nodes[0].WEff)
	}
}
