// Package keywords implements C2: a deterministic Spanish keyword
// extractor that lowercases, drops stopwords and non-alphabetic tokens,
// keeps tokens longer than 3 characters, and lemmatizes via a
// suffix-stripping stemmer.
//
// No ecosystem Spanish lemmatizer lives in the example pack (the original
// prototype used spaCy's es_core_news_sm model, which has no Go
// equivalent among the retrieved repos) — the stemming table below is
// therefore a justified stdlib-only piece, documented in DESIGN.md.
// Near-duplicate lemmas the stemmer doesn't fully collapse (e.g. minor
// irregular inflections) are folded together with a Jaro-Winkler pass from
// github.com/antzucaro/matchr, grounded on MrWong99-glyphoxa's go.mod.
package keywords

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// Extractor is a pluggable keyword/lemma backend, so an LLM- or
// dictionary-based implementation can later replace the default without
// touching callers (spec.md §4.2: "Language: Spanish (pluggable)").
type Extractor interface {
	Extract(text string) map[string]struct{}
}

// Default is the package-level deterministic extractor used unless the
// caller wires a different Extractor into the engine.
var Default Extractor = spanishExtractor{}

// Extract runs the default extractor.
func Extract(text string) map[string]struct{} {
	return Default.Extract(text)
}

type spanishExtractor struct{}

var tokenRe = regexp.MustCompile(`[a-zA-Záéíóúüñ]+`)

// jaroWinklerFoldThreshold controls how aggressively near-duplicate lemmas
// are merged; 0.94 only folds very close variants (singular/plural misses,
// accent drift) and leaves distinct words alone.
const jaroWinklerFoldThreshold = 0.94

func (spanishExtractor) Extract(text string) map[string]struct{} {
	lemmas := make(map[string]struct{})
	for _, tok := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		if utf8.RuneCountInString(tok) <= 3 {
			continue
		}
		if isStopword(tok) {
			continue
		}
		lemmas[lemmatize(tok)] = struct{}{}
	}
	return foldNearDuplicates(lemmas)
}

// foldNearDuplicates merges lemmas that are near-identical under
// Jaro-Winkler similarity into a single canonical representative (the
// lexicographically first lemma of the group), keeping extraction
// deterministic.
func foldNearDuplicates(lemmas map[string]struct{}) map[string]struct{} {
	if len(lemmas) < 2 {
		return lemmas
	}
	words := make([]string, 0, len(lemmas))
	for w := range lemmas {
		words = append(words, w)
	}
	sort.Strings(words)

	canonical := make(map[string]string, len(words))
	for _, w := range words {
		canonical[w] = w
	}
	for i := 0; i < len(words); i++ {
		for j := i + 1; j < len(words); j++ {
			a, b := words[i], words[j]
			if canonical[b] != b {
				continue
			}
			sim, err := matchr.JaroWinkler(a, b, true)
			if err == nil && sim >= jaroWinklerFoldThreshold {
				canonical[b] = canonical[a]
			}
		}
	}

	out := make(map[string]struct{}, len(lemmas))
	for _, w := range words {
		out[canonical[w]] = struct{}{}
	}
	return out
}

// lemmatize strips common Spanish inflectional suffixes. It is intentionally
// conservative: only high-confidence suffixes are stripped so the result
// stays a recognizable root rather than a mangled stem.
func lemmatize(tok string) string {
	suffixes := []string{
		"aciones", "amiento", "imiento", "idades", "iciones",
		"ación", "amente", "ndose",
		"ando", "iendo", "aron", "eron", "aban", "ían",
		"ados", "adas", "idos", "idas",
		"es", "as", "os",
		"ar", "er", "ir",
		"a", "o", "e", "s",
	}
	for _, suf := range suffixes {
		if strings.HasSuffix(tok, suf) && len(tok)-len(suf) >= 4 {
			return tok[:len(tok)-len(suf)]
		}
	}
	return tok
}

var stopwordSet = buildStopwordSet()

func isStopword(tok string) bool {
	_, ok := stopwordSet[tok]
	return ok
}

func buildStopwordSet() map[string]struct{} {
	words := []string{
		"para", "pero", "como", "esta", "este", "estas", "estos", "esa", "ese",
		"esas", "esos", "aquel", "aquella", "desde", "hasta", "entre", "sobre",
		"donde", "cuando", "cuanto", "porque", "aunque", "mientras", "mismo",
		"misma", "mismos", "mismas", "tiene", "tienen", "tenía", "tuvo",
		"había", "hemos", "hacer", "hacía", "puede", "pueden", "podría",
		"debe", "deben", "será", "serán", "fueron", "siendo", "estado",
		"estaba", "estamos", "están", "también", "además", "entonces",
		"luego", "antes", "después", "todavía", "siempre", "nunca", "nada",
		"algo", "alguna", "algunos", "algunas", "otro", "otra", "otros",
		"otras", "cada", "todo", "toda", "todos", "todas", "muy", "más",
		"menos", "bien", "solo", "sólo", "sino", "cómo", "qué", "cuál",
		"quién", "cuáles", "quiénes", "cuya", "cuyo", "cuyos", "cuyas",
		"les", "nos", "les", "sus", "esto", "eso", "aquello",
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
