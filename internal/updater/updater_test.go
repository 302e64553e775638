package updater

import (
	"context"
	"testing"

	"github.com/GonzaloDeLaFuente3/pcgraph/internal/graphstore"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/model"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/vectorindex"
)

func newTestUpdater(t *testing.T) (*Updater, *graphstore.Store, *vectorindex.Index) {
	t.Helper()
	idx, err := vectorindex.Open(context.Background(), ":memory:", 4, nil)
	if err != nil {
		t.Fatalf("vectorindex.Open: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	g := graphstore.New(nil)
	return New(g, idx, nil), g, idx
}

func kw(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

func TestAddFragmentCreatesEdgeAboveThreshold(t *testing.T) {
	u, g, _ := newTestUpdater(t)
	ctx := context.Background()

	a := &model.Fragment{FragmentID: "a", Text: "reunión sobre arquitectura", Keywords: kw("arquitectura", "reunion"), ContextType: model.ContextGeneral}
	if _, dup, err := u.AddFragment(ctx, a, []float32{1, 0, 0, 0}, 0.5); err != nil || dup {
		t.Fatalf("AddFragment(a): dup=%v err=%v", dup, err)
	}

	b := &model.Fragment{FragmentID: "b", Text: "otra reunión sobre arquitectura", Keywords: kw("arquitectura", "reunion"), ContextType: model.ContextGeneral}
	if _, dup, err := u.AddFragment(ctx, b, []float32{1, 0, 0, 0}, 0.5); err != nil || dup {
		t.Fatalf("AddFragment(b): dup=%v err=%v", dup, err)
	}

	if g.EdgeCount() != 2 {
		t.Errorf("EdgeCount() = %d, want 2 (bidirectional edge between a and b)", g.EdgeCount())
	}
}

func TestAddFragmentSkipsBelowThreshold(t *testing.T) {
	u, g, _ := newTestUpdater(t)
	ctx := context.Background()

	a := &model.Fragment{FragmentID: "a", Text: "tema uno", Keywords: kw("tema", "uno"), ContextType: model.ContextGeneral}
	_, _, _ = u.AddFragment(ctx, a, []float32{1, 0, 0, 0}, 0.9)

	b := &model.Fragment{FragmentID: "b", Text: "tema completamente distinto", Keywords: kw("distinto"), ContextType: model.ContextGeneral}
	_, _, err := u.AddFragment(ctx, b, []float32{0, 1, 0, 0}, 0.9)
	if err != nil {
		t.Fatalf("AddFragment(b): %v", err)
	}
	if g.EdgeCount() != 0 {
		t.Errorf("EdgeCount() = %d, want 0 below threshold with dissimilar vectors/keywords", g.EdgeCount())
	}
}

func TestAddFragmentDedupExactMatch(t *testing.T) {
	u, g, _ := newTestUpdater(t)
	ctx := context.Background()

	a := &model.Fragment{FragmentID: "a", Title: "Reunión", Text: "El mismo contenido exacto repetido muchas veces para superar el umbral", Keywords: kw("contenido")}
	_, _, _ = u.AddFragment(ctx, a, []float32{1, 0, 0, 0}, 0.5)

	b := &model.Fragment{FragmentID: "b", Title: "Reunión", Text: "El mismo contenido exacto repetido muchas veces para superar el umbral", Keywords: kw("contenido")}
	existingID, dup, err := u.AddFragment(ctx, b, []float32{1, 0, 0, 0}, 0.5)
	if err != nil {
		t.Fatalf("AddFragment(b): %v", err)
	}
	if !dup || existingID != "a" {
		t.Errorf("expected duplicate of 'a', got dup=%v existingID=%q", dup, existingID)
	}
	if g.NodeCount() != 1 {
		t.Errorf("NodeCount() = %d, want 1 (duplicate must not insert a new node)", g.NodeCount())
	}
}

func TestIngestConversationCreatesMutualEdgesWithinBatch(t *testing.T) {
	u, g, _ := newTestUpdater(t)
	ctx := context.Background()

	frags := []*model.Fragment{
		{FragmentID: "a", Text: "decidimos avanzar con el proyecto", Keywords: kw("decidimos", "proyecto"), ContextType: model.ContextGeneral},
		{FragmentID: "b", Text: "decidimos avanzar con el proyecto ahora", Keywords: kw("decidimos", "proyecto"), ContextType: model.ContextGeneral},
	}
	vectors := [][]float32{{1, 0, 0, 0}, {1, 0, 0, 0}}

	stats, err := u.IngestConversation(ctx, frags, vectors, 0.5)
	if err != nil {
		t.Fatalf("IngestConversation: %v", err)
	}
	if stats.NodesAdded != 2 {
		t.Errorf("NodesAdded = %d, want 2", stats.NodesAdded)
	}
	if g.EdgeCount() != 2 {
		t.Errorf("EdgeCount() = %d, want 2 (mutual edge within the same conversation)", g.EdgeCount())
	}
}

func TestRecomputeAllReproducesSameEdgeCount(t *testing.T) {
	u, g, _ := newTestUpdater(t)
	ctx := context.Background()

	frags := []*model.Fragment{
		{FragmentID: "a", Text: "tema de arquitectura", Keywords: kw("arquitectura"), ContextType: model.ContextGeneral},
		{FragmentID: "b", Text: "tema de arquitectura otra vez", Keywords: kw("arquitectura"), ContextType: model.ContextGeneral},
		{FragmentID: "c", Text: "presupuesto y finanzas", Keywords: kw("presupuesto", "finanzas"), ContextType: model.ContextGeneral},
	}
	vectors := [][]float32{{1, 0, 0, 0}, {1, 0, 0, 0}, {0, 1, 0, 0}}
	if _, err := u.IngestConversation(ctx, frags, vectors, 0.5); err != nil {
		t.Fatalf("IngestConversation: %v", err)
	}
	before := g.EdgeCount()

	if err := u.RecomputeAll(ctx, 0.5, nil); err != nil {
		t.Fatalf("RecomputeAll: %v", err)
	}
	after := g.EdgeCount()
	if before != after {
		t.Errorf("edge count changed after recompute_all: before=%d after=%d", before, after)
	}
}

func TestAddFragmentDedupNearDuplicateTitle(t *testing.T) {
	u, g, _ := newTestUpdater(t)
	ctx := context.Background()

	a := &model.Fragment{
		FragmentID: "a",
		Title:      "Reunión de planificación semanal",
		Text:       "repasamos el estado del proyecto y acordamos las tareas de la semana",
		Keywords:   kw("planificacion", "proyecto"),
	}
	if _, dup, err := u.AddFragment(ctx, a, []float32{1, 0, 0, 0}, 0.5); err != nil || dup {
		t.Fatalf("AddFragment(a): dup=%v err=%v", dup, err)
	}

	// A typo'd near-duplicate title over a near-duplicate body.
	b := &model.Fragment{
		FragmentID: "b",
		Title:      "Reunion de planificacion semanall",
		Text:       "repasamos el estado del proyecto y acordamos las tareas de esta semana",
		Keywords:   kw("planificacion", "proyecto"),
	}
	existingID, dup, err := u.AddFragment(ctx, b, []float32{1, 0, 0, 0}, 0.5)
	if err != nil {
		t.Fatalf("AddFragment(b): %v", err)
	}
	if !dup || existingID != "a" {
		t.Errorf("expected a Jaro-Winkler near-duplicate title to dedup against 'a', got dup=%v existingID=%q", dup, existingID)
	}
	if g.NodeCount() != 1 {
		t.Errorf("NodeCount() = %d, want 1 (near-duplicate title must not insert a new node)", g.NodeCount())
	}
}

func TestTitleNearDuplicateRejectsDissimilarTitles(t *testing.T) {
	if titleNearDuplicate(normalize("Reunión de planificación"), normalize("Presupuesto trimestral")) {
		t.Error("expected unrelated titles not to be treated as near-duplicates")
	}
}

func TestCharJaccardNearDuplicateDetected(t *testing.T) {
	a := "este es un texto bastante largo que supera el umbral de cincuenta caracteres facilmente"
	b := "este es un texto bastante largo que supera el umbral de cincuenta caracteres facilment"
	if got := charJaccard(normalize(a), normalize(b)); got <= charJaccardDedupThreshold {
		t.Errorf("charJaccard() = %v, want > %v for near-identical texts", got, charJaccardDedupThreshold)
	}
}
