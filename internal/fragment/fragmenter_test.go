package fragment

import (
	"strings"
	"testing"
	"time"

	"github.com/GonzaloDeLaFuente3/pcgraph/internal/model"
)

func words(n int, word string) string {
	toks := make([]string, n)
	for i := range toks {
		toks[i] = word
	}
	return strings.Join(toks, " ")
}

func TestSplitRespectsMaxWords(t *testing.T) {
	text := words(700, "palabra")
	frags := Split(text, DefaultMinWords, DefaultMaxWords)
	if len(frags) < 2 {
		t.Fatalf("expected multiple fragments for a 700-word body, got %d", len(frags))
	}
	for i, f := range frags {
		if wordCount(f) > DefaultMaxWords {
			t.Errorf("fragment %d has %d words, exceeds max %d", i, wordCount(f), DefaultMaxWords)
		}
	}
}

func TestSplitDropsBelowHardFloor(t *testing.T) {
	text := "Hola.\n\n" + words(5, "x")
	frags := Split(text, DefaultMinWords, DefaultMaxWords)
	for _, f := range frags {
		if wordCount(f) < hardFloorWords {
			t.Errorf("fragment %q has fewer than %d words", f, hardFloorWords)
		}
	}
}

func TestSplitDetectsSpeakerTurns(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 3; i++ {
		b.WriteString("Ana: ")
		b.WriteString(words(60, "palabra"))
		b.WriteString("\n")
		b.WriteString("Beto: ")
		b.WriteString(words(60, "palabra"))
		b.WriteString("\n")
	}
	frags := Split(b.String(), 50, 300)
	if len(frags) == 0 {
		t.Fatal("expected at least one fragment from speaker-turn text")
	}
}

func TestSplitHonorsExplicitSeparators(t *testing.T) {
	text := words(60, "uno") + "\n---\n" + words(60, "dos")
	frags := Split(text, 50, 300)
	if len(frags) != 2 {
		t.Fatalf("expected 2 fragments split by explicit separator, got %d", len(frags))
	}
}

func TestSplitFallsBackToParagraphs(t *testing.T) {
	text := words(200, "alfa") + "\n\n" + words(200, "beta") + "\n\n" + words(200, "gamma")
	frags := Split(text, 50, 300)
	if len(frags) < 2 {
		t.Fatalf("expected paragraph fallback to produce multiple fragments, got %d", len(frags))
	}
}

func TestDetectContextTypeDecisionWinsTieBreak(t *testing.T) {
	// "decidimos" (decision) and "hacer" (action) each match once; decision
	// must win per the explicit tie-break order in spec.md §4.4.
	text := "Decidimos hacer el cambio la próxima semana."
	ct := DetectContextType(text, "")
	if ct != model.ContextDecision {
		t.Errorf("DetectContextType() = %v, want %v", ct, model.ContextDecision)
	}
}

func TestDetectContextTypeFallsBackToInherited(t *testing.T) {
	ct := DetectContextType("Un texto neutro sin señales de categoría.", model.ContextProject)
	if ct != model.ContextProject {
		t.Errorf("DetectContextType() = %v, want inherited %v", ct, model.ContextProject)
	}
}

func TestDetectContextTypeFallsBackToGeneral(t *testing.T) {
	ct := DetectContextType("Un texto neutro sin señales de categoría.", "")
	if ct != model.ContextGeneral {
		t.Errorf("DetectContextType() = %v, want %v", ct, model.ContextGeneral)
	}
}

func TestBuildFragmentsAssignsPositionsAndMetadata(t *testing.T) {
	text := words(60, "uno") + "\n---\n" + words(60, "dos")
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	frags := BuildFragments("conv-1", "Reunión", text, &base, model.ContextMeeting, 50, 300)
	if len(frags) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(frags))
	}
	for i, f := range frags {
		if f.ConversationID != "conv-1" {
			t.Errorf("fragment %d: ConversationID = %q, want conv-1", i, f.ConversationID)
		}
		if f.PositionInConv != i+1 {
			t.Errorf("fragment %d: PositionInConv = %d, want %d", i, f.PositionInConv, i+1)
		}
		if f.TotalInConv != len(frags) {
			t.Errorf("fragment %d: TotalInConv = %d, want %d", i, f.TotalInConv, len(frags))
		}
		if f.FragmentID == "" {
			t.Errorf("fragment %d: expected a non-empty FragmentID", i)
		}
		if !f.IsTemporal() {
			t.Errorf("fragment %d: expected a timestamp inherited from conversation base", i)
		}
	}
}
