// Package fragment implements C4: splitting a conversation body into
// coherent, size-bounded fragments and attaching each fragment's metadata
// (timestamp, keywords, context type), grounded on the original
// prototype's agent/fragmentador.py and spec.md §4.4.
package fragment

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GonzaloDeLaFuente3/pcgraph/internal/keywords"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/model"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/timeparse"
)

const (
	DefaultMinWords = 50
	DefaultMaxWords = 300
	hardFloorWords  = 10
)

var (
	separatorRe = regexp.MustCompile(`(?m)^\s*[-*=]{3,}\s*$`)
	speakerRe   = regexp.MustCompile(`^-?\s*(?:\[\d{1,2}:\d{2}\]\s*)?[A-ZÁÉÍÓÚ][a-záéíóúñ\s]*:`)
)

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// Split segments text into fragment bodies using the speaker-turn /
// explicit-separator algorithm of spec.md §4.4, steps 1-4, falling back to
// paragraph-based splitting (step 5) when no speaker pattern is found. The
// fallback splits each separator block on its own, so explicit separators
// still bound fragments.
func Split(text string, minWords, maxWords int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if minWords <= 0 {
		minWords = DefaultMinWords
	}
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}

	blocks := separatorRe.Split(text, -1)

	var finals []string
	anySpeakerFound := false

	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}

		lines := strings.Split(block, "\n")
		var current []string
		currentWords := 0
		blockHadSpeaker := false

		flush := func() {
			if len(current) == 0 {
				return
			}
			txt := strings.TrimSpace(strings.Join(current, "\n"))
			if currentWords >= hardFloorWords {
				finals = append(finals, txt)
			} else if len(finals) > 0 {
				finals[len(finals)-1] = finals[len(finals)-1] + "\n" + txt
			}
			current = nil
			currentWords = 0
		}

		for _, raw := range lines {
			line := strings.TrimSpace(raw)
			if line == "" {
				continue
			}
			lineWords := wordCount(line)
			isSpeakerChange := speakerRe.MatchString(line) && len(current) > 0

			if isSpeakerChange {
				blockHadSpeaker = true
				if currentWords >= minWords || currentWords+lineWords > maxWords {
					flush()
					current = []string{line}
					currentWords = lineWords
					continue
				}
			}
			current = append(current, line)
			currentWords += lineWords
			if currentWords >= maxWords {
				flush()
			}
		}
		// Final fragment of the block: merge back if short, per step 4.
		if len(current) > 0 {
			txt := strings.TrimSpace(strings.Join(current, "\n"))
			words := wordCount(txt)
			switch {
			case words < minWords && len(finals) > 0:
				finals[len(finals)-1] = finals[len(finals)-1] + "\n" + txt
			case words >= hardFloorWords:
				finals = append(finals, txt)
			}
		}
		if blockHadSpeaker {
			anySpeakerFound = true
		}
	}

	if !anySpeakerFound || len(finals) == 0 {
		finals = nil
		for _, block := range blocks {
			block = strings.TrimSpace(block)
			if block == "" {
				continue
			}
			finals = append(finals, splitByParagraphsAndSize(block, maxWords)...)
		}
	}

	return finalFilter(finals)
}

func finalFilter(fragments []string) []string {
	var out []string
	for _, f := range fragments {
		f = strings.TrimSpace(f)
		if wordCount(f) >= hardFloorWords {
			out = append(out, f)
		}
	}
	return out
}

// splitByParagraphsAndSize implements step 5: paragraph-based splitting
// with the same max_words cap, splitting over-long paragraphs on sentence
// boundaries.
func splitByParagraphsAndSize(text string, maxWords int) []string {
	paragraphs := splitNonEmpty(text, "\n\n")
	if len(paragraphs) == 0 {
		paragraphs = splitNonEmpty(text, "\n")
	}

	var fragments []string
	var current []string
	currentWords := 0

	flush := func() {
		if len(current) > 0 {
			fragments = append(fragments, strings.Join(current, "\n\n"))
			current = nil
			currentWords = 0
		}
	}

	for _, p := range paragraphs {
		pw := wordCount(p)
		if currentWords+pw <= maxWords {
			current = append(current, p)
			currentWords += pw
			continue
		}
		flush()
		if pw > maxWords {
			fragments = append(fragments, splitBySize(p, maxWords)...)
		} else {
			current = []string{p}
			currentWords = pw
		}
	}
	flush()
	return fragments
}

func splitNonEmpty(text, sep string) []string {
	var out []string
	for _, p := range strings.Split(text, sep) {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitBySize divides an over-long paragraph on word boundaries, preferring
// a sentence end near the tail of the target window — scanning backward
// from maxWords to 0.7*maxWords for a token ending in '.', per spec.md §4.4
// step 5.
func splitBySize(text string, maxWords int) []string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return []string{text}
	}

	var fragments []string
	start := 0
	for start < len(words) {
		end := start + maxWords
		if end > len(words) {
			end = len(words)
		}
		if end < len(words) {
			floor := start + int(float64(maxWords)*0.7)
			if floor < start+10 {
				floor = start + 10
			}
			for i := end; i > floor && i <= len(words); i-- {
				if i-1 >= 0 && i-1 < len(words) && strings.HasSuffix(words[i-1], ".") {
					end = i
					break
				}
			}
		}
		fragments = append(fragments, strings.Join(words[start:end], " "))
		start = end
	}
	return fragments
}

// contextCategory is one entry of the ordered tie-break table from
// spec.md §4.4: "largest category wins; ties resolve to the order:
// decision, action, question, conclusion, problem, task, event,
// temporal_specific".
type contextCategory struct {
	name     model.ContextType
	keywords []string
}

var contextCategories = []contextCategory{
	{model.ContextDecision, []string{"decidimos", "acordamos", "resolveremos", "la decisión", "se decidió", "optamos", "elegimos", "determinamos"}},
	{model.ContextAction, []string{"hacer", "implementar", "ejecutar", "realizar", "completar", "desarrollar", "crear", "construir", "establecer"}},
	{model.ContextQuestion, []string{"¿", "como", "cómo", "qué", "cuándo", "dónde", "por qué", "cuál", "quién", "cuánto"}},
	{model.ContextConclusion, []string{"en resumen", "para concluir", "finalmente", "en conclusión", "resumiendo", "concluyendo"}},
	{model.ContextProblem, []string{"problema", "issue", "bug", "error", "falla", "no funciona", "dificultad", "obstáculo", "inconveniente"}},
	{model.ContextTask, []string{"tarea", "pendiente", "debe", "tengo que", "hay que", "asignar", "responsable", "deadline"}},
	{model.ContextEvent, []string{"reunión", "meeting", "cita", "evento", "conferencia", "presentación", "demo"}},
	{"temporal_specific", []string{"mañana", "ayer", "hoy", "próximo", "pasado", "lunes", "martes", "miércoles", "jueves", "viernes"}},
}

// DetectContextType scores text against the category vocabulary and
// returns the largest-count category, breaking ties by the table order
// above, falling back to inherited (the conversation's own type) and then
// "general".
func DetectContextType(text string, inherited model.ContextType) model.ContextType {
	lower := strings.ToLower(text)
	best := contextCategory{}
	bestCount := 0
	for _, cat := range contextCategories {
		count := 0
		for _, kw := range cat.keywords {
			if strings.Contains(lower, kw) {
				count++
			}
		}
		if count > bestCount {
			bestCount = count
			best = cat
		}
	}
	if bestCount == 0 {
		if inherited != "" {
			return inherited
		}
		return model.ContextGeneral
	}
	if best.name == "temporal_specific" {
		return model.ContextGeneral // mapped name: no dedicated enum entry, folds to general context with a temporal timestamp carrying the signal
	}
	return best.name
}

// BuildFragments fragments body into model.Fragment values sharing
// conversationID, resolving each fragment's timestamp against
// conversationBase (nil for an atemporal conversation) and its context type
// against inheritedType (the conversation metadata's own type, if any).
func BuildFragments(conversationID, title, body string, conversationBase *time.Time, inheritedType model.ContextType, minWords, maxWords int) []*model.Fragment {
	texts := Split(body, minWords, maxWords)
	now := time.Now().UTC()

	fragments := make([]*model.Fragment, 0, len(texts))
	for i, text := range texts {
		ts := timeparse.DetectFragmentTimestamp(text, conversationBase)
		kws := keywords.Extract(text)
		frag := &model.Fragment{
			FragmentID:     uuid.NewString(),
			ConversationID: conversationID,
			Title:          title,
			Text:           text,
			Keywords:       kws,
			Timestamp:      ts,
			ContextType:    DetectContextType(text, inheritedType),
			PositionInConv: i + 1,
			TotalInConv:    len(texts),
			CreatedAt:      now,
		}
		fragments = append(fragments, frag)
	}
	return fragments
}
