// Package timeparse resolves Spanish (and ISO) temporal expressions found
// in free text into naive UTC instants. It implements C1 of the PCG
// engine: parse_reference, extract_references and
// detect_fragment_timestamp (spec.md §4.1), grounded on the original
// prototype's agent/temporal_parser.py.
//
// "Naive" here means every returned time.Time uses time.UTC and is never
// compared against a real offset — the canonical normalizer is
// %Y-%m-%dT%H:%M:%S, matching spec.md's contract.
package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Kind classifies how a temporal reference was resolved.
type Kind string

const (
	KindExactDate  Kind = "exact_date"
	KindDayOfWeek  Kind = "day_of_week"
	KindRelative   Kind = "relative"
	KindExpression Kind = "expression"
	KindNone       Kind = "none"
)

// Reference is one temporal mention found by ExtractReferences.
type Reference struct {
	Span      string
	Timestamp *time.Time
	Kind      Kind
}

var months = map[string]time.Month{
	"enero": time.January, "febrero": time.February, "marzo": time.March,
	"abril": time.April, "mayo": time.May, "junio": time.June,
	"julio": time.July, "agosto": time.August, "septiembre": time.September,
	"octubre": time.October, "noviembre": time.November, "diciembre": time.December,
}

var weekdays = map[string]time.Weekday{
	"lunes": time.Monday, "martes": time.Tuesday, "miercoles": time.Wednesday,
	"miércoles": time.Wednesday, "jueves": time.Thursday, "viernes": time.Friday,
	"sabado": time.Saturday, "sábado": time.Saturday, "domingo": time.Sunday,
}

var (
	reDDMMYYYY  = regexp.MustCompile(`(\d{1,2})[/\-](\d{1,2})[/\-](\d{4})`)
	reYYYYMMDD  = regexp.MustCompile(`(\d{4})[/\-](\d{1,2})[/\-](\d{1,2})`)
	reDDMM      = regexp.MustCompile(`(\d{1,2})[/\-](\d{1,2})\b`)
	reDayMonth  = regexp.MustCompile(`(?:el\s+)?(\d{1,2})\s+de\s+(` + monthAlternation() + `)(?:\s+(?:de\s+)?(\d{4}))?`)
	reNumeric   = regexp.MustCompile(`(en|dentro\s+de|hace)\s+(\d+)\s+(d[ií]as?|semanas?|meses?|mes)(?:\s+atr[aá]s)?`)
	reNumericBack = regexp.MustCompile(`(\d+)\s+(d[ií]as?|semanas?|meses?|mes)\s+atr[aá]s`)
	reRange     = regexp.MustCompile(`(?:los?\s+)?(ultimos?|últimos?|proximas?|próximas?)\s+(\d+)\s+(d[ií]as?|semanas?)`)
)

func monthAlternation() string {
	names := make([]string, 0, len(months))
	for name := range months {
		names = append(names, name)
	}
	return strings.Join(names, "|")
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func naive(y int, m time.Month, d, h, mi, se int) time.Time {
	return time.Date(y, m, d, h, mi, se, 0, time.UTC)
}

// ParseReference parses one temporal expression relative to base, returning
// the resolved instant and the Kind of reference recognized. Unparseable
// input returns (nil, KindNone) and never panics.
func ParseReference(text string, base time.Time) (*time.Time, Kind) {
	if strings.TrimSpace(text) == "" {
		return nil, KindNone
	}
	t := normalize(text)

	if ts, ok := parseExactDate(t, base); ok {
		return &ts, KindExactDate
	}
	if ts, ok := parseDayOfWeek(t, base); ok {
		return &ts, KindDayOfWeek
	}
	if ts, ok := parseRelativeWord(t, base); ok {
		return &ts, KindRelative
	}
	if ts, ok := parseNumericExpression(t, base); ok {
		return &ts, KindExpression
	}
	if ts, ok := parseRange(t, base); ok {
		return &ts, KindExpression
	}
	if ts, err := dateparse.ParseAny(text); err == nil {
		out := naive(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second())
		return &out, KindExactDate
	}
	return nil, KindNone
}

func parseExactDate(t string, base time.Time) (time.Time, bool) {
	if m := reYYYYMMDD.FindStringSubmatch(t); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if valid(y, mo, d) {
			return naive(y, time.Month(mo), d, 0, 0, 0), true
		}
	}
	if m := reDDMMYYYY.FindStringSubmatch(t); m != nil {
		d, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		y, _ := strconv.Atoi(m[3])
		if valid(y, mo, d) {
			return naive(y, time.Month(mo), d, 0, 0, 0), true
		}
	}
	if m := reDayMonth.FindStringSubmatch(t); m != nil {
		d, _ := strconv.Atoi(m[1])
		mo, ok := months[m[2]]
		if !ok {
			return time.Time{}, false
		}
		y := base.Year()
		if m[3] != "" {
			y, _ = strconv.Atoi(m[3])
		}
		if valid(y, int(mo), d) {
			return naive(y, mo, d, 0, 0, 0), true
		}
	}
	if m := reDDMM.FindStringSubmatch(t); m != nil {
		d, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		y := base.Year()
		if valid(y, mo, d) {
			return naive(y, time.Month(mo), d, 0, 0, 0), true
		}
	}
	return time.Time{}, false
}

func valid(y, m, d int) bool {
	if m < 1 || m > 12 || d < 1 || d > 31 || y < 1 {
		return false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	return t.Year() == y && int(t.Month()) == m && t.Day() == d
}

// parseDayOfWeek resolves a bare weekday name. Per spec.md §4.1's tie-break:
// without "pasado"/"anterior" resolve to the next occurrence including
// today; with "pasado" resolve to the previous occurrence.
func parseDayOfWeek(t string, base time.Time) (time.Time, bool) {
	for name, wd := range weekdays {
		if !strings.Contains(t, name) {
			continue
		}
		days := int(wd) - int(base.Weekday())
		pasado := strings.Contains(t, "pasado") || strings.Contains(t, "anterior")
		switch {
		case pasado && days >= 0:
			days -= 7
		case !pasado && days < 0:
			days += 7
		}
		return base.AddDate(0, 0, days), true
	}
	return time.Time{}, false
}

var relativeWords = []struct {
	phrase string
	delta  func(base time.Time) time.Time
	exact  bool // "esta semana"/"este mes" style: return base unchanged
}{
	{"hoy", func(b time.Time) time.Time { return b }, false},
	{"mañana", func(b time.Time) time.Time { return b.AddDate(0, 0, 1) }, false},
	{"manana", func(b time.Time) time.Time { return b.AddDate(0, 0, 1) }, false},
	{"ayer", func(b time.Time) time.Time { return b.AddDate(0, 0, -1) }, false},
	{"proxima semana", func(b time.Time) time.Time { return b.AddDate(0, 0, 7) }, false},
	{"próxima semana", func(b time.Time) time.Time { return b.AddDate(0, 0, 7) }, false},
	{"semana proxima", func(b time.Time) time.Time { return b.AddDate(0, 0, 7) }, false},
	{"semana próxima", func(b time.Time) time.Time { return b.AddDate(0, 0, 7) }, false},
	{"semana pasada", func(b time.Time) time.Time { return b.AddDate(0, 0, -7) }, false},
	{"semana anterior", func(b time.Time) time.Time { return b.AddDate(0, 0, -7) }, false},
	{"esta semana", func(b time.Time) time.Time { return b }, true},
	{"proximo mes", func(b time.Time) time.Time { return b.AddDate(0, 0, 30) }, false},
	{"próximo mes", func(b time.Time) time.Time { return b.AddDate(0, 0, 30) }, false},
	{"mes proximo", func(b time.Time) time.Time { return b.AddDate(0, 0, 30) }, false},
	{"mes próximo", func(b time.Time) time.Time { return b.AddDate(0, 0, 30) }, false},
	{"mes pasado", func(b time.Time) time.Time { return b.AddDate(0, 0, -30) }, false},
	{"este mes", func(b time.Time) time.Time { return b }, true},
}

func parseRelativeWord(t string, base time.Time) (time.Time, bool) {
	// The longest matching phrase wins, so the order of relativeWords does
	// not matter.
	var best string
	var bestFn func(time.Time) time.Time
	for _, rw := range relativeWords {
		if strings.Contains(t, rw.phrase) && len(rw.phrase) > len(best) {
			best = rw.phrase
			bestFn = rw.delta
		}
	}
	if bestFn == nil {
		return time.Time{}, false
	}
	return bestFn(base), true
}

func parseNumericExpression(t string, base time.Time) (time.Time, bool) {
	if m := reNumericBack.FindStringSubmatch(t); m != nil {
		n, _ := strconv.Atoi(m[1])
		return applyUnitDelta(base, -n, m[2]), true
	}
	if m := reNumeric.FindStringSubmatch(t); m != nil {
		sign := 1
		if m[1] == "hace" {
			sign = -1
		}
		n, _ := strconv.Atoi(m[2])
		return applyUnitDelta(base, n*sign, m[3]), true
	}
	return time.Time{}, false
}

func parseRange(t string, base time.Time) (time.Time, bool) {
	m := reRange.FindStringSubmatch(t)
	if m == nil {
		return time.Time{}, false
	}
	n, _ := strconv.Atoi(m[2])
	sign := 1
	if strings.HasPrefix(m[1], "ultimo") || strings.HasPrefix(m[1], "último") {
		sign = -1
	}
	return applyUnitDelta(base, n*sign, m[3]), true
}

func applyUnitDelta(base time.Time, n int, unit string) time.Time {
	switch {
	case strings.HasPrefix(unit, "dia") || strings.HasPrefix(unit, "día"):
		return base.AddDate(0, 0, n)
	case strings.HasPrefix(unit, "semana"):
		return base.AddDate(0, 0, 7*n)
	default: // mes, meses
		return base.AddDate(0, 0, 30*n)
	}
}

// extraction patterns used by ExtractReferences, mirroring
// extraer_referencias_del_texto's regex table.
var extractionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(mañana|ayer|hoy)\b`),
	regexp.MustCompile(`\b(pr[oó]xima?s? semanas?|semanas? pr[oó]ximas?)\b`),
	regexp.MustCompile(`\b(\d{1,2}[/\-]\d{1,2}[/\-]\d{4})\b`),
	regexp.MustCompile(`\b(en \d+ (?:d[ií]a|d[ií]as|semana|semanas))\b`),
	regexp.MustCompile(`\b(semana|mes) (pasada|pasado|anterior)\b`),
	regexp.MustCompile(`\b(este|esta) (semana|mes)\b`),
	regexp.MustCompile(`\b(lunes|martes|mi[eé]rcoles|jueves|viernes|s[aá]bado|domingo)(?:\s+(?:pasado|pr[oó]ximo))?\b`),
	regexp.MustCompile(`\b(?:el\s+)?\d{1,2}\s+de\s+(?:` + monthAlternation() + `)(?:\s+(?:de\s+)?\d{4})?\b`),
	regexp.MustCompile(`\bhace\s+\d+\s+(?:d[ií]a|d[ií]as|semana|semanas|mes|meses)\b`),
	regexp.MustCompile(`\b(?:los?\s+)?(?:[uú]ltimos?|pr[oó]ximas?)\s+\d+\s+(?:d[ií]a|d[ií]as|semana|semanas)\b`),
	regexp.MustCompile(`\b\d{1,2}[/\-]\d{1,2}\b`),
}

var simpleWords = []string{
	"ayer", "hoy", "mañana", "manana",
	"lunes", "martes", "miercoles", "miércoles", "jueves", "viernes", "sabado", "sábado", "domingo",
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
	"semana", "mes", "año", "ano", "dia", "día",
}

var simplePhrases = []string{
	"la semana pasada", "el mes pasado", "el año pasado",
	"esta semana", "este mes", "este año",
	"la proxima semana", "el proximo mes",
}

var rePunct = regexp.MustCompile(`[¿?¡!.,;:]`)
var reSpace = regexp.MustCompile(`\s+`)

func detectSimpleWords(text string) []string {
	clean := rePunct.ReplaceAllString(normalize(text), " ")
	clean = reSpace.ReplaceAllString(clean, " ")
	clean = strings.TrimSpace(clean)

	var found []string
	seen := make(map[string]struct{})
	for _, phrase := range simplePhrases {
		if strings.Contains(clean, phrase) {
			if _, ok := seen[phrase]; !ok {
				found = append(found, phrase)
				seen[phrase] = struct{}{}
			}
		}
	}
	for _, word := range strings.Fields(clean) {
		for _, sw := range simpleWords {
			if word == sw {
				if _, ok := seen[word]; !ok {
					found = append(found, word)
					seen[word] = struct{}{}
				}
			}
		}
	}
	return found
}

// ExtractReferences returns every temporal mention found in text along
// with its resolved timestamp (relative to time.Now() in UTC) and kind.
func ExtractReferences(text string) []Reference {
	return extractReferencesAt(text, time.Now().UTC())
}

// ExtractReferencesAt is ExtractReferences with an explicit base instant,
// used by the query analyzer (C8) so "today"/"yesterday" resolve against
// the caller's moment_of_query instead of the wall clock.
func ExtractReferencesAt(text string, base time.Time) []Reference {
	return extractReferencesAt(text, base)
}

func extractReferencesAt(text string, base time.Time) []Reference {
	var out []Reference
	lower := normalize(text)
	seen := make(map[string]struct{})

	for _, re := range extractionPatterns {
		for _, span := range re.FindAllString(lower, -1) {
			ts, kind := ParseReference(span, base)
			if ts != nil {
				out = append(out, Reference{Span: span, Timestamp: ts, Kind: kind})
				seen[span] = struct{}{}
			}
		}
	}
	for _, word := range detectSimpleWords(text) {
		if _, ok := seen[strings.ToLower(word)]; ok {
			continue
		}
		ts, kind := ParseReference(word, base)
		if ts != nil {
			out = append(out, Reference{Span: word, Timestamp: ts, Kind: kind})
			seen[strings.ToLower(word)] = struct{}{}
		}
	}
	return out
}

// DetectFragmentTimestamp returns an overriding instant for a fragment when
// its text carries an exact-date or day-of-week reference, resolved against
// conversationBase. Relative and expression references ("ayer", "hace 2
// días") do not override it; in that case, and when nothing is found,
// conversationBase is returned unchanged (including when it is nil).
func DetectFragmentTimestamp(fragmentText string, conversationBase *time.Time) *time.Time {
	base := time.Now().UTC()
	if conversationBase != nil {
		base = *conversationBase
	}
	refs := extractReferencesAt(fragmentText, base)
	if len(refs) == 0 {
		return conversationBase
	}

	for _, ref := range refs {
		if ref.Kind == KindExactDate || ref.Kind == KindDayOfWeek {
			ts := *ref.Timestamp
			return &ts
		}
	}
	return conversationBase
}
