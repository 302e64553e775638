// Package querytree implements C11: the star-shaped scored subgraph rooted
// at a synthetic "question" node and fanning out to the candidates chosen
// by C9, reusing C6's structural/temporal formulas (spec.md §4.11).
package querytree

import (
	"sort"
	"time"

	"github.com/GonzaloDeLaFuente3/pcgraph/internal/edgeweight"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/graphstore"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/model"
)

// Node is one leaf of the query tree: a candidate fragment with its final
// edge weight to the synthetic question root.
type Node struct {
	FragmentID string
	Title      string
	ContextType model.ContextType
	WStruct    float64
	RTemp      float64
	WEff       float64
}

// Tree is C11's output: the question root plus its scored leaves, already
// sorted descending by WEff — "this sorted ordering is the final answer's
// context ranking" (spec.md §4.11).
type Tree struct {
	Question string
	Nodes    []Node
}

// CandidateSemantics is the per-candidate input C11 needs beyond the graph:
// the semantic similarity sem(question_text, c.text) that C9 already
// computed via the ANN query, so C11 never re-embeds anything.
type CandidateSemantics struct {
	FragmentID string
	Sem        float64
}

// Build constructs the query tree for a question against the candidates
// C9 selected. now is the moment of query, used as the "timestamp" side of
// r_temp for every candidate; intent and alphaTemp drive the adaptive
// scoring switch.
func Build(graph *graphstore.Store, question string, questionKeywords map[string]struct{}, candidates []CandidateSemantics, intent model.Intent, alphaTemp float64, now time.Time) Tree {
	nodes := make([]Node, 0, len(candidates))
	for _, c := range candidates {
		frag, ok := graph.Node(c.FragmentID)
		if !ok {
			continue
		}

		ws := edgeweight.Structural(questionKeywords, frag.Keywords, c.Sem)

		var rt float64
		if frag.Timestamp != nil {
			rt = edgeweight.Temporal(&now, frag.Timestamp, model.ContextGeneral, frag.ContextType)
		}

		var we float64
		if intent == model.IntentTemporal && rt > 0.5 {
			we = rt * alphaTemp * (1 + ws)
		} else {
			we = ws * (1 + rt*alphaTemp)
		}
		we = we / (1 + we)

		nodes = append(nodes, Node{
			FragmentID:  frag.FragmentID,
			Title:       frag.Title,
			ContextType: frag.ContextType,
			WStruct:     ws,
			RTemp:       rt,
			WEff:        we,
		})
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].WEff > nodes[j].WEff })
	return Tree{Question: question, Nodes: nodes}
}
