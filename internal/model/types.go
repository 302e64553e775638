// Package model holds the data types shared across the PCG engine's
// components: fragments, edges, conversations and the process-wide
// parameters that govern edge creation and propagation.
package model

import (
	"sort"
	"time"
)

// ContextType classifies the semantic role of a fragment and selects the
// temporal half-life used by the edge-weight engine.
type ContextType string

const (
	ContextMeeting    ContextType = "meeting"
	ContextTask       ContextType = "task"
	ContextEvent      ContextType = "event"
	ContextProject    ContextType = "project"
	ContextKnowledge  ContextType = "knowledge"
	ContextDocument   ContextType = "document"
	ContextDecision   ContextType = "decision"
	ContextAction     ContextType = "action"
	ContextQuestion   ContextType = "question"
	ContextConclusion ContextType = "conclusion"
	ContextProblem    ContextType = "problem"
	ContextGeneral    ContextType = "general"
)

// HalfLifeDays returns the decay half-life, in days, for the context type.
// Types with no explicit entry fall back to ContextGeneral's half-life, per
// spec.md §4.6.
func (c ContextType) HalfLifeDays() float64 {
	switch c {
	case ContextMeeting:
		return 2
	case ContextTask:
		return 7
	case ContextEvent:
		return 3
	case ContextProject:
		return 45
	case ContextKnowledge:
		return 365
	default:
		return 30
	}
}

// EdgeType distinguishes a purely structural relation from one where both
// endpoints also carry a timestamp.
type EdgeType string

const (
	EdgeSemantic         EdgeType = "semantic"
	EdgeSemanticTemporal EdgeType = "semantic_temporal"
)

// Fragment is the atomic retrievable unit of the graph (spec.md §3).
// A Fragment is never mutated after creation; re-ingesting produces a new
// Fragment with a fresh ID.
type Fragment struct {
	FragmentID       string
	ConversationID   string
	Title            string
	Text             string
	Keywords         map[string]struct{}
	Timestamp        *time.Time
	ContextType      ContextType
	PositionInConv   int
	TotalInConv      int
	CreatedAt        time.Time
	IsPDFFragment    bool
	SourceDocument   string
	PositionInDoc    int
}

// IsTemporal reports whether the fragment carries a resolved timestamp.
func (f *Fragment) IsTemporal() bool {
	return f.Timestamp != nil
}

// KeywordSlice returns the fragment's keywords as a sorted slice, useful for
// deterministic logging and tests.
func (f *Fragment) KeywordSlice() []string {
	out := make([]string, 0, len(f.Keywords))
	for k := range f.Keywords {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Edge is a directed, weighted relation between two fragments. The graph
// store always materializes both (src,dst) and (dst,src) with identical
// attributes — see spec.md §3 and invariant 1 in §8.
type Edge struct {
	From         string
	To           string
	WStruct      float64
	RTemp        float64
	WEff         float64
	Type         EdgeType
	FromContext  ContextType
	ToContext    ContextType
}

// Conversation is the input unit that fragments into one or more Fragments
// sharing a ConversationID.
type Conversation struct {
	ConversationID string
	Title          string
	Fecha          *time.Time // nil => atemporal
	Participants   []string
	Metadata       map[string]string
	FragmentIDs    []string
	CreatedAt      time.Time
}

// Parameters are the process-wide knobs from spec.md §3. Values outside the
// documented ranges are rejected by Validate.
type Parameters struct {
	TauSim            float64 // edge creation threshold, 0.1-0.9, default 0.5
	K                 int     // default candidate count, 3-15, default 5
	AlphaTemp         float64 // temporal reinforcement factor base, 0.5-3.0, default 1.5
	LambdaDecay       float64 // propagation per-hop decay, 0.1-1.0, default 0.8
	TauAct            float64 // propagation activation floor, 0.01-0.5, default 0.1
	ExcludeTemporalEdges bool // propagation: exclude purely temporal edges, default false per Open Question resolution
}

// DefaultParameters returns the spec-mandated defaults.
func DefaultParameters() Parameters {
	return Parameters{
		TauSim:               0.5,
		K:                    5,
		AlphaTemp:            1.5,
		LambdaDecay:          0.8,
		TauAct:               0.1,
		ExcludeTemporalEdges: false,
	}
}

// Validate checks that every parameter is within its documented range.
func (p Parameters) Validate() error {
	switch {
	case p.TauSim < 0.1 || p.TauSim > 0.9:
		return errRange("tau_sim", 0.1, 0.9)
	case p.K < 3 || p.K > 15:
		return errRange("k", 3, 15)
	case p.AlphaTemp < 0.5 || p.AlphaTemp > 3.0:
		return errRange("alpha_temp", 0.5, 3.0)
	case p.LambdaDecay < 0.1 || p.LambdaDecay > 1.0:
		return errRange("lambda_decay", 0.1, 1.0)
	case p.TauAct < 0.01 || p.TauAct > 0.5:
		return errRange("tau_act", 0.01, 0.5)
	}
	return nil
}

// Intent is the query analyzer's classification of a question.
type Intent string

const (
	IntentTemporal   Intent = "TEMPORAL"
	IntentStructural Intent = "STRUCTURAL"
	IntentMixed      Intent = "MIXED"
)

// Window is a closed time interval; candidates outside it are filtered by
// the candidate selector except through its declared fallback strategies.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls within the closed interval [Start, End].
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Plan is the query analyzer's output contract (spec.md §4.8).
type Plan struct {
	Intent             Intent
	Confidence         float64
	ReferenceTimestamp *time.Time
	Window             *Window
	TemporalFactor     float64
	MomentOfQuery      time.Time
}
