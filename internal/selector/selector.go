// Package selector implements C9: combining C3's semantic retrieval with
// C8's derived time window, including the 3-tier fallback chain of
// spec.md §4.9.
package selector

import (
	"sort"

	"github.com/GonzaloDeLaFuente3/pcgraph/internal/graphstore"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/model"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/vectorindex"
)

// Candidate is one selected fragment id with its semantic similarity to
// the question (0 for candidates pulled in by a temporal fallback tier
// rather than by the ANN search).
type Candidate struct {
	FragmentID string
	Similarity float64
}

// Result is C9's output: the chosen candidates plus how many of the ANN
// top-3K set were filtered out by the window (spec.md §4.9's "report how
// many candidates were filtered out temporally").
type Result struct {
	Candidates  []Candidate
	FilteredOut int
}

// Select runs the candidate-selection algorithm of spec.md §4.9.
func Select(graph *graphstore.Store, index *vectorindex.Index, questionVector []float32, plan *model.Plan, k int) (*Result, error) {
	topN, err := index.Query(questionVector, 3*k)
	if err != nil {
		return nil, err
	}

	semantic := make([]Candidate, len(topN))
	for i, r := range topN {
		semantic[i] = Candidate{FragmentID: r.ID, Similarity: r.Similarity}
	}

	if plan.Window == nil {
		return &Result{Candidates: truncate(semantic, k)}, nil
	}

	inWindow := make([]Candidate, 0, len(semantic))
	for _, c := range semantic {
		frag, ok := graph.Node(c.FragmentID)
		if ok && frag.Timestamp != nil && plan.Window.Contains(*frag.Timestamp) {
			inWindow = append(inWindow, c)
		}
	}
	filteredOut := len(semantic) - len(inWindow)

	if len(inWindow) > 0 {
		return &Result{Candidates: truncate(inWindow, k), FilteredOut: filteredOut}, nil
	}

	// Fallback (a): scan every fragment in the graph, not just the ANN
	// top-3K, for any whose timestamp lies in the window.
	var allInWindow []Candidate
	for _, id := range graph.NodeIDs() {
		frag, ok := graph.Node(id)
		if ok && frag.Timestamp != nil && plan.Window.Contains(*frag.Timestamp) {
			allInWindow = append(allInWindow, Candidate{FragmentID: id})
		}
	}
	if len(allInWindow) > 0 {
		sortByRecency(allInWindow, graph, plan.MomentOfQuery.UnixNano())
		return &Result{Candidates: truncate(allInWindow, k), FilteredOut: filteredOut}, nil
	}

	// Fallback (b): sort every timestamped fragment by |ts - now| ascending.
	var timestamped []Candidate
	for _, id := range graph.NodeIDs() {
		frag, ok := graph.Node(id)
		if ok && frag.Timestamp != nil {
			timestamped = append(timestamped, Candidate{FragmentID: id})
		}
	}
	if len(timestamped) > 0 {
		sortByRecency(timestamped, graph, plan.MomentOfQuery.UnixNano())
		return &Result{Candidates: truncate(timestamped, k), FilteredOut: filteredOut}, nil
	}

	// Fallback (c): nothing has a timestamp; return the semantic top-K
	// unchanged.
	return &Result{Candidates: truncate(semantic, k), FilteredOut: filteredOut}, nil
}

func sortByRecency(cands []Candidate, graph *graphstore.Store, nowUnixNano int64) {
	sort.Slice(cands, func(i, j int) bool {
		fi, _ := graph.Node(cands[i].FragmentID)
		fj, _ := graph.Node(cands[j].FragmentID)
		di := abs64(fi.Timestamp.UnixNano() - nowUnixNano)
		dj := abs64(fj.Timestamp.UnixNano() - nowUnixNano)
		return di < dj
	})
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

func truncate(cands []Candidate, k int) []Candidate {
	if k >= 0 && len(cands) > k {
		return cands[:k]
	}
	return cands
}
