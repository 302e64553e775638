package edgeweight

import (
	"math"
	"testing"
	"time"

	"github.com/GonzaloDeLaFuente3/pcgraph/internal/model"
)

func kw(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestTemporalZeroWithoutBothTimestamps(t *testing.T) {
	now := time.Now()
	if got := Temporal(nil, &now, model.ContextTask, model.ContextTask); got != 0 {
		t.Errorf("Temporal() = %v, want 0 when one timestamp is nil", got)
	}
	if got := Temporal(&now, nil, model.ContextTask, model.ContextTask); got != 0 {
		t.Errorf("Temporal() = %v, want 0 when the other timestamp is nil", got)
	}
}

func TestTemporalUsesSmallerHalfLife(t *testing.T) {
	a := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := a.Add(2 * 24 * time.Hour)
	got := Temporal(&a, &b, model.ContextMeeting, model.ContextProject)
	want := math.Exp(-2.0 / model.ContextMeeting.HalfLifeDays())
	if !almostEqual(got, want) {
		t.Errorf("Temporal() = %v, want %v (using meeting's shorter half-life)", got, want)
	}
}

func TestTemporalClampedToUnitInterval(t *testing.T) {
	a := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := a // zero delta => exp(0) = 1, already within range
	got := Temporal(&a, &b, model.ContextKnowledge, model.ContextKnowledge)
	if got < 0 || got > 1 {
		t.Errorf("Temporal() = %v, out of [0,1]", got)
	}
}

func TestStructuralAveragesJaccardAndSemantic(t *testing.T) {
	a := kw("alpha", "beta")
	b := kw("alpha", "gamma")
	// jaccard = 1/3
	got := Structural(a, b, 0.6)
	want := (1.0/3.0 + 0.6) / 2
	if !almostEqual(got, want) {
		t.Errorf("Structural() = %v, want %v", got, want)
	}
}

func TestEffectiveWeightIsBoundedBelowOne(t *testing.T) {
	_, _, wEff := Effective(kw("a", "b"), kw("a", "b"), 1.0, nil, nil, model.ContextGeneral, model.ContextGeneral)
	if wEff <= 0 || wEff >= 1 {
		t.Errorf("w_eff = %v, want strictly within (0,1)", wEff)
	}
}

func TestMaterializesThreshold(t *testing.T) {
	if Materializes(0.5, 0.5) {
		t.Error("Materializes(0.5, tau=0.5) should be false: threshold is strict >")
	}
	if !Materializes(0.51, 0.5) {
		t.Error("Materializes(0.51, tau=0.5) should be true")
	}
}

func TestEdgeTypeForRequiresBothTimestamps(t *testing.T) {
	now := time.Now()
	if got := EdgeTypeFor(&now, &now); got != model.EdgeSemanticTemporal {
		t.Errorf("EdgeTypeFor() = %v, want semantic_temporal", got)
	}
	if got := EdgeTypeFor(&now, nil); got != model.EdgeSemantic {
		t.Errorf("EdgeTypeFor() = %v, want semantic", got)
	}
}

func TestBuildRejectsBelowThreshold(t *testing.T) {
	a := &model.Fragment{FragmentID: "a", Keywords: kw("x"), ContextType: model.ContextGeneral}
	b := &model.Fragment{FragmentID: "b", Keywords: kw("y"), ContextType: model.ContextGeneral}
	if _, ok := Build(a, b, 0.0, 0.5); ok {
		t.Error("expected Build to reject an edge below tau_sim")
	}
}

func TestBuildMaterializesAboveThreshold(t *testing.T) {
	a := &model.Fragment{FragmentID: "a", Keywords: kw("x", "y"), ContextType: model.ContextGeneral}
	b := &model.Fragment{FragmentID: "b", Keywords: kw("x", "y"), ContextType: model.ContextGeneral}
	e, ok := Build(a, b, 1.0, 0.5)
	if !ok {
		t.Fatal("expected Build to materialize an edge above tau_sim")
	}
	if e.From != "a" || e.To != "b" {
		t.Errorf("Build() endpoints = %s->%s, want a->b", e.From, e.To)
	}
}
