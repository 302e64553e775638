package selector

import (
	"context"
	"testing"
	"time"

	"github.com/GonzaloDeLaFuente3/pcgraph/internal/graphstore"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/model"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/vectorindex"
)

func setup(t *testing.T) (*graphstore.Store, *vectorindex.Index) {
	t.Helper()
	g := graphstore.New(nil)
	idx, err := vectorindex.Open(context.Background(), ":memory:", 4, nil)
	if err != nil {
		t.Fatalf("vectorindex.Open: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return g, idx
}

func addFragment(t *testing.T, g *graphstore.Store, idx *vectorindex.Index, id string, ts *time.Time, vec []float32) {
	t.Helper()
	f := &model.Fragment{FragmentID: id, Text: id, Timestamp: ts}
	if err := g.AddNode(f); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if err := idx.Upsert(context.Background(), id, vec, id); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
}

func TestSelectNoWindowReturnsTopKSemantic(t *testing.T) {
	g, idx := setup(t)
	now := time.Now()
	addFragment(t, g, idx, "a", &now, []float32{1, 0, 0, 0})
	addFragment(t, g, idx, "b", &now, []float32{0.9, 0.1, 0, 0})
	addFragment(t, g, idx, "c", &now, []float32{0, 1, 0, 0})

	plan := &model.Plan{MomentOfQuery: now}
	res, err := Select(g, idx, []float32{1, 0, 0, 0}, plan, 2)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(res.Candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(res.Candidates))
	}
	if res.Candidates[0].FragmentID != "a" {
		t.Errorf("top candidate = %s, want 'a' (exact match)", res.Candidates[0].FragmentID)
	}
}

func TestSelectFiltersToWindow(t *testing.T) {
	g, idx := setup(t)
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	inWindow := now.Add(-time.Hour)
	outOfWindow := now.AddDate(0, 0, -10)

	addFragment(t, g, idx, "in", &inWindow, []float32{1, 0, 0, 0})
	addFragment(t, g, idx, "out", &outOfWindow, []float32{1, 0, 0, 0})

	plan := &model.Plan{
		MomentOfQuery: now,
		Window:        &model.Window{Start: now.AddDate(0, 0, -1), End: now},
	}
	res, err := Select(g, idx, []float32{1, 0, 0, 0}, plan, 5)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(res.Candidates) != 1 || res.Candidates[0].FragmentID != "in" {
		t.Fatalf("Candidates = %+v, want only 'in'", res.Candidates)
	}
	if res.FilteredOut != 1 {
		t.Errorf("FilteredOut = %d, want 1", res.FilteredOut)
	}
}

func TestSelectFallbackScansAllFragmentsOutsideTop3K(t *testing.T) {
	g, idx := setup(t)
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	windowMatch := now.Add(-time.Hour)

	// "far" fragments dominate the ANN top-3K (k=1 => top 3), none of
	// which falls in the window; "windowMatch" is semantically dissimilar
	// so it would never appear in the ANN top-3K, but fallback (a) must
	// still find it by scanning the whole graph.
	addFragment(t, g, idx, "far1", nil, []float32{1, 0, 0, 0})
	addFragment(t, g, idx, "far2", nil, []float32{0.99, 0.01, 0, 0})
	addFragment(t, g, idx, "far3", nil, []float32{0.98, 0.02, 0, 0})
	addFragment(t, g, idx, "windowMatch", &windowMatch, []float32{0, 0, 0, 1})

	plan := &model.Plan{
		MomentOfQuery: now,
		Window:        &model.Window{Start: now.AddDate(0, 0, -1), End: now},
	}
	res, err := Select(g, idx, []float32{1, 0, 0, 0}, plan, 1)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(res.Candidates) != 1 || res.Candidates[0].FragmentID != "windowMatch" {
		t.Fatalf("Candidates = %+v, want fallback to surface 'windowMatch'", res.Candidates)
	}
}

func TestSelectFallbackBByRecencyWhenWindowEmpty(t *testing.T) {
	g, idx := setup(t)
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	near := now.AddDate(0, 0, -5)
	far := now.AddDate(0, 0, -50)

	addFragment(t, g, idx, "near", &near, []float32{1, 0, 0, 0})
	addFragment(t, g, idx, "far", &far, []float32{1, 0, 0, 0})

	plan := &model.Plan{
		MomentOfQuery: now,
		Window:        &model.Window{Start: now, End: now}, // matches nothing
	}
	res, err := Select(g, idx, []float32{1, 0, 0, 0}, plan, 1)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(res.Candidates) != 1 || res.Candidates[0].FragmentID != "near" {
		t.Fatalf("Candidates = %+v, want the more recent fragment 'near'", res.Candidates)
	}
}

func TestSelectFallbackCReturnsSemanticWhenNothingTimestamped(t *testing.T) {
	g, idx := setup(t)
	now := time.Now()
	addFragment(t, g, idx, "a", nil, []float32{1, 0, 0, 0})
	addFragment(t, g, idx, "b", nil, []float32{0, 1, 0, 0})

	plan := &model.Plan{
		MomentOfQuery: now,
		Window:        &model.Window{Start: now, End: now},
	}
	res, err := Select(g, idx, []float32{1, 0, 0, 0}, plan, 1)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(res.Candidates) != 1 || res.Candidates[0].FragmentID != "a" {
		t.Fatalf("Candidates = %+v, want the top semantic candidate 'a'", res.Candidates)
	}
}
