package queryanalyzer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/GonzaloDeLaFuente3/pcgraph/internal/logging"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/model"
)

// Backend is an external LLM call that must return the plan as JSON
// shaped like llmPlan below, per spec.md §4.8: "the analyzer may be backed
// by an LLM that returns the plan as JSON; the rules above are the oracle
// the LLM must be prompted to emulate".
type Backend interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// llmPlan is the wire shape a Backend is expected to return.
type llmPlan struct {
	Intent             string     `json:"intent"`
	Confidence         float64    `json:"confidence"`
	ReferenceTimestamp *time.Time `json:"reference_timestamp"`
	WindowStart        *time.Time `json:"window_start"`
	WindowEnd          *time.Time `json:"window_end"`
	TemporalFactor     float64    `json:"temporal_factor"`
}

// LLMBacked wraps a Backend, falling back to RuleBased whenever the
// backend errors, times out, or returns malformed JSON — spec.md §4.8
// requires "a deterministic rule-based fallback... for offline operation
// and tests", which this satisfies unconditionally rather than only in
// tests.
type LLMBacked struct {
	Backend Backend
	Timeout time.Duration
	Log     logging.Logger
}

// NewLLMBacked returns an LLMBacked analyzer with a sane default timeout.
func NewLLMBacked(backend Backend, timeout time.Duration, log logging.Logger) *LLMBacked {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = logging.NopLogger()
	}
	return &LLMBacked{Backend: backend, Timeout: timeout, Log: log}
}

func (l *LLMBacked) Analyze(question string, now time.Time, alphaTemp float64) (*model.Plan, error) {
	if l.Backend == nil {
		return RuleBased{}.Analyze(question, now, alphaTemp)
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.Timeout)
	defer cancel()

	raw, err := l.Backend.Complete(ctx, buildPrompt(question, now))
	if err != nil {
		l.Log.Warn("query analyzer LLM backend failed, falling back to rule-based", "error", err)
		return RuleBased{}.Analyze(question, now, alphaTemp)
	}

	var parsed llmPlan
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		l.Log.Warn("query analyzer LLM backend returned malformed JSON, falling back to rule-based", "error", err)
		return RuleBased{}.Analyze(question, now, alphaTemp)
	}

	intent := model.Intent(parsed.Intent)
	switch intent {
	case model.IntentTemporal, model.IntentStructural, model.IntentMixed:
	default:
		l.Log.Warn("query analyzer LLM backend returned an unknown intent, falling back to rule-based", "intent", parsed.Intent)
		return RuleBased{}.Analyze(question, now, alphaTemp)
	}

	var window *model.Window
	if parsed.WindowStart != nil && parsed.WindowEnd != nil {
		window = &model.Window{Start: *parsed.WindowStart, End: *parsed.WindowEnd}
	}

	return &model.Plan{
		Intent:             intent,
		Confidence:         parsed.Confidence,
		ReferenceTimestamp: parsed.ReferenceTimestamp,
		Window:             window,
		TemporalFactor:     parsed.TemporalFactor,
		MomentOfQuery:      now,
	}, nil
}

func buildPrompt(question string, now time.Time) string {
	return "moment_of_query=" + now.Format(time.RFC3339) + "\nquestion=" + question
}
