package queryanalyzer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GonzaloDeLaFuente3/pcgraph/internal/model"
)

var fixedNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) // a Saturday

func TestAnalyzeStructuralWhenNoTemporalToken(t *testing.T) {
	plan, err := RuleBased{}.Analyze("¿Cómo funciona el sistema de autenticación?", fixedNow, 1.5)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if plan.Intent != model.IntentStructural {
		t.Errorf("Intent = %v, want STRUCTURAL", plan.Intent)
	}
	if plan.Window != nil {
		t.Errorf("expected nil window for a structural question, got %+v", plan.Window)
	}
	if plan.TemporalFactor != 1.5 {
		t.Errorf("TemporalFactor = %v, want base alpha 1.5", plan.TemporalFactor)
	}
}

func TestAnalyzeTemporalShortQuestion(t *testing.T) {
	plan, err := RuleBased{}.Analyze("¿Qué pasó ayer?", fixedNow, 1.5)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if plan.Intent != model.IntentTemporal {
		t.Errorf("Intent = %v, want TEMPORAL", plan.Intent)
	}
	if plan.Window == nil {
		t.Fatal("expected a window for 'ayer'")
	}
	wantStart := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	if !plan.Window.Start.Equal(wantStart) {
		t.Errorf("Window.Start = %v, want %v", plan.Window.Start, wantStart)
	}
	if plan.TemporalFactor != 1.5*1.5 {
		t.Errorf("TemporalFactor = %v, want 1.5*alpha for 'ayer'", plan.TemporalFactor)
	}
}

func TestAnalyzeTodayDoublesFactor(t *testing.T) {
	plan, err := RuleBased{}.Analyze("¿Qué tengo pendiente hoy?", fixedNow, 1.5)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if plan.TemporalFactor != 2*1.5 {
		t.Errorf("TemporalFactor = %v, want 2*alpha for 'hoy'", plan.TemporalFactor)
	}
	wantStart := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if plan.Window == nil || !plan.Window.Start.Equal(wantStart) {
		t.Errorf("Window = %+v, want full day starting %v", plan.Window, wantStart)
	}
}

func TestAnalyzeMixedWhenTemporalTokenBuriedInLongQuestion(t *testing.T) {
	q := "¿Cómo resolvimos el problema de autenticación el martes pasado cuando discutimos con el equipo de backend sobre la arquitectura del sistema?"
	plan, err := RuleBased{}.Analyze(q, fixedNow, 1.5)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if plan.Intent != model.IntentMixed {
		t.Errorf("Intent = %v, want MIXED for a long conceptual question with a buried date, confidence=%v", plan.Intent, plan.Confidence)
	}
	if plan.Confidence >= 0.8 {
		t.Errorf("Confidence = %v, want < 0.8", plan.Confidence)
	}
}

func TestAnalyzeThisWeekWindow(t *testing.T) {
	plan, err := RuleBased{}.Analyze("¿Qué se discutió esta semana?", fixedNow, 1.5)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if plan.Window == nil {
		t.Fatal("expected a window for 'esta semana'")
	}
	if plan.Window.Start.Weekday() != time.Monday {
		t.Errorf("Window.Start weekday = %v, want Monday", plan.Window.Start.Weekday())
	}
	if !plan.Window.Contains(fixedNow) {
		t.Errorf("Window %+v should contain fixedNow %v", plan.Window, fixedNow)
	}
}

func TestLLMBackedFallsBackOnBackendError(t *testing.T) {
	l := NewLLMBacked(failingBackend{}, time.Second, nil)
	plan, err := l.Analyze("¿Qué pasó ayer?", fixedNow, 1.5)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if plan.Intent != model.IntentTemporal {
		t.Errorf("expected the rule-based fallback to classify TEMPORAL, got %v", plan.Intent)
	}
}

type failingBackend struct{}

func (failingBackend) Complete(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("backend unavailable")
}
