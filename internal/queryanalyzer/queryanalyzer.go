// Package queryanalyzer implements C8: classifying a question's temporal
// intent and deriving a candidate time window (spec.md §4.8).
//
// The token vocabulary and the "fuerte / media" (strong/medium) confidence
// split are grounded on the original prototype's
// agent/query_analyzer.py IntentionTemporalDetector; the window-derivation
// rules and temporal_factor table follow spec.md §4.8 exactly, which is
// authoritative where the prototype differs (the prototype never derives
// a window at all — it only scores intent for a downstream LLM prompt).
package queryanalyzer

import (
	"strings"
	"time"

	"github.com/GonzaloDeLaFuente3/pcgraph/internal/model"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/timeparse"
)

// Analyzer classifies a question and derives its retrieval plan.
type Analyzer interface {
	Analyze(question string, now time.Time, alphaTemp float64) (*model.Plan, error)
}

// RuleBased is the deterministic fallback mandated by spec.md §4.8
// ("a deterministic rule-based fallback must exist for offline operation
// and tests"). It is also the default analyzer.
type RuleBased struct{}

// Default is the package-level rule-based analyzer.
var Default Analyzer = RuleBased{}

// category names the explicit window-derivation buckets of spec.md §4.8.
type category string

const (
	catToday      category = "today"
	catYesterday  category = "yesterday"
	catTomorrow   category = "tomorrow"
	catThisWeek   category = "this_week"
	catLastWeek   category = "last_week"
	catThisMonth  category = "this_month"
	catLastMonth  category = "last_month"
	catWeekday    category = "weekday"
	catExplicit   category = "explicit_date"
	catGenericNum category = "numeric_period" // "strong": últimos/próximos/en/hace N días|semanas
	catGeneric    category = "generic"        // "medium": any other parseable reference
)

func (RuleBased) Analyze(question string, now time.Time, alphaTemp float64) (*model.Plan, error) {
	lower := strings.ToLower(question)
	refs := timeparse.ExtractReferencesAt(question, now)

	if len(refs) == 0 {
		return &model.Plan{
			Intent:         model.IntentStructural,
			Confidence:     1.0,
			TemporalFactor: alphaTemp,
			MomentOfQuery:  now,
		}, nil
	}

	primary := refs[0]
	cat := classify(primary.Span)
	totalWords := len(strings.Fields(question))
	spanWords := len(strings.Fields(primary.Span))
	confidence := confidenceFor(cat, spanWords, totalWords)

	intent := model.IntentTemporal
	if confidence < 0.8 {
		intent = model.IntentMixed
	}

	window := deriveWindow(cat, primary, now)
	factor := temporalFactor(lower, cat, alphaTemp)

	return &model.Plan{
		Intent:             intent,
		Confidence:         confidence,
		ReferenceTimestamp: primary.Timestamp,
		Window:             window,
		TemporalFactor:     factor,
		MomentOfQuery:      now,
	}, nil
}

// classify maps a matched span to one of the explicit window buckets,
// falling back to the strong/medium generic split for anything else
// parse_reference can resolve.
func classify(span string) category {
	s := strings.ToLower(strings.TrimSpace(span))
	switch {
	case s == "hoy":
		return catToday
	case s == "ayer":
		return catYesterday
	case s == "mañana" || s == "manana":
		return catTomorrow
	case strings.Contains(s, "esta semana"):
		return catThisWeek
	case strings.Contains(s, "semana") && (strings.Contains(s, "pasada") || strings.Contains(s, "anterior")):
		return catLastWeek
	case strings.Contains(s, "proxima semana") || strings.Contains(s, "próxima semana") || strings.Contains(s, "semana proxima") || strings.Contains(s, "semana próxima"):
		return catThisWeek
	case strings.Contains(s, "este mes"):
		return catThisMonth
	case strings.Contains(s, "mes") && (strings.Contains(s, "pasado") || strings.Contains(s, "anterior")):
		return catLastMonth
	case isWeekdayToken(s):
		return catWeekday
	case isExplicitDateToken(s):
		return catExplicit
	case strings.Contains(s, "ultimo") || strings.Contains(s, "último") || strings.Contains(s, "ultimos") ||
		strings.Contains(s, "últimos") || strings.Contains(s, "proximos") || strings.Contains(s, "próximos") ||
		strings.Contains(s, "hace ") || strings.Contains(s, "en ") || strings.Contains(s, "dentro de"):
		return catGenericNum
	default:
		return catGeneric
	}
}

var weekdayTokens = []string{"lunes", "martes", "miercoles", "miércoles", "jueves", "viernes", "sabado", "sábado", "domingo"}

func isWeekdayToken(s string) bool {
	for _, wd := range weekdayTokens {
		if strings.Contains(s, wd) {
			return true
		}
	}
	return false
}

func isExplicitDateToken(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return strings.ContainsAny(s, "/-") || strings.Contains(s, " de ")
		}
	}
	return false
}

// confidenceFor starts from a base of 0.95 for the named window buckets and
// 0.85 for the two generic ones (numeric period, generic), scaled down when
// the matched span is a small fraction of the whole question — modeling the spec's example of "a date appears inside
// an otherwise conceptual question" dragging confidence under 0.8.
func confidenceFor(cat category, spanWords, totalWords int) float64 {
	base := 0.95
	if cat == catGenericNum || cat == catGeneric {
		base = 0.85
	}
	if totalWords == 0 {
		return base
	}
	dominance := float64(spanWords) / float64(totalWords)
	penalty := dominance*4 + 0.3
	if penalty > 1 {
		penalty = 1
	}
	conf := base * penalty
	if conf > 1 {
		conf = 1
	}
	return conf
}

// deriveWindow implements the deterministic window rules of spec.md §4.8.
func deriveWindow(cat category, ref timeparse.Reference, now time.Time) *model.Window {
	dayStart := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	dayEnd := func(t time.Time) time.Time {
		return dayStart(t).Add(24*time.Hour - time.Nanosecond)
	}
	mondayOf := func(t time.Time) time.Time {
		offset := int(t.Weekday()) - int(time.Monday)
		if offset < 0 {
			offset += 7
		}
		return dayStart(t).AddDate(0, 0, -offset)
	}

	switch cat {
	case catToday:
		return &model.Window{Start: dayStart(now), End: dayEnd(now)}
	case catYesterday:
		y := now.AddDate(0, 0, -1)
		return &model.Window{Start: dayStart(y), End: dayEnd(y)}
	case catTomorrow:
		tm := now.AddDate(0, 0, 1)
		return &model.Window{Start: dayStart(tm), End: dayEnd(tm)}
	case catThisWeek:
		monday := mondayOf(now)
		return &model.Window{Start: monday, End: dayEnd(monday.AddDate(0, 0, 6))}
	case catLastWeek:
		monday := mondayOf(now).AddDate(0, 0, -7)
		return &model.Window{Start: monday, End: dayEnd(monday.AddDate(0, 0, 6))}
	case catThisMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
		return &model.Window{Start: start, End: end}
	case catLastMonth:
		firstOfThisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		start := firstOfThisMonth.AddDate(0, -1, 0)
		end := firstOfThisMonth.Add(-time.Nanosecond)
		return &model.Window{Start: start, End: end}
	case catWeekday, catExplicit:
		if ref.Timestamp == nil {
			return nil
		}
		return &model.Window{Start: dayStart(*ref.Timestamp), End: dayEnd(*ref.Timestamp)}
	case catGenericNum:
		if ref.Timestamp == nil {
			return nil
		}
		return &model.Window{Start: ref.Timestamp.AddDate(0, 0, -1), End: ref.Timestamp.AddDate(0, 0, 1)}
	case catGeneric:
		if ref.Timestamp == nil {
			return nil
		}
		return &model.Window{Start: ref.Timestamp.AddDate(0, 0, -3), End: ref.Timestamp.AddDate(0, 0, 3)}
	default:
		return nil
	}
}

// temporalFactor implements spec.md §4.8's explicit multiplier table.
func temporalFactor(lowerQuestion string, cat category, alpha float64) float64 {
	switch {
	case strings.Contains(lowerQuestion, "hoy") || strings.Contains(lowerQuestion, "ahora") || strings.Contains(lowerQuestion, "actual"):
		return 2 * alpha
	case cat == catYesterday || cat == catTomorrow:
		return 1.5 * alpha
	case cat == catThisWeek || cat == catLastWeek || cat == catThisMonth || cat == catLastMonth:
		return 1.2 * alpha
	default:
		return alpha
	}
}
