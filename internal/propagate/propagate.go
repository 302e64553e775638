// Package propagate implements C10: spreading activation over the
// fragment graph, anchored on one or more seed nodes (spec.md §4.10).
package propagate

import (
	"math"

	"github.com/GonzaloDeLaFuente3/pcgraph/internal/graphstore"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/keywords"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/model"
)

// maxAllowedSteps is the hard safety cap of spec.md §4.10 ("max_steps <= 3").
const maxAllowedSteps = 3

// Result is the output of a single propagate_from run: per-node activation
// and the step at which it first crossed the dynamic floor. The seed is
// never present in either map.
type Result struct {
	Activation map[string]float64
	Depth      map[string]int
}

// From runs propagate_from: spreading activation outward from one seed
// node with initial activation a0, for up to maxSteps hops.
//
// At step s (1-indexed, matching spec.md's example numbering), every node
// currently above tauAct propagates to its neighbors with
// a_v' = a_u * w_eff(u,v) * lambdaDecay^s, pruned by the dynamic floor
// tauAct * 1.5^(s-1). A neighbor's activation is the max over every
// contribution it ever receives; its depth is the step at which it first
// clears the floor. Propagation re-evaluates from the *entire* activation
// set accumulated so far at every step (not just nodes newly reached last
// step) — the decay already comes from the global step exponent, so
// re-visiting an already-active node never raises its recorded value.
func From(graph *graphstore.Store, seed string, a0, lambdaDecay, tauAct float64, maxSteps int, excludeTemporalEdges bool) Result {
	if maxSteps > maxAllowedSteps {
		maxSteps = maxAllowedSteps
	}
	activation := map[string]float64{seed: a0}
	depth := map[string]int{}

	for s := 1; s <= maxSteps; s++ {
		floor := tauAct * math.Pow(1.5, float64(s-1))
		lambdaPow := math.Pow(lambdaDecay, float64(s))

		candidates := make(map[string]float64)
		for u, au := range activation {
			if au <= tauAct {
				continue
			}
			for _, edge := range graph.Neighbors(u) {
				if edge.To == seed {
					continue
				}
				if edge.WEff < tauAct {
					continue
				}
				if excludeTemporalEdges && edge.Type == model.EdgeSemanticTemporal {
					continue
				}
				av := au * edge.WEff * lambdaPow
				if cur, ok := candidates[edge.To]; !ok || av > cur {
					candidates[edge.To] = av
				}
			}
		}
		if len(candidates) == 0 {
			break
		}

		for v, av := range candidates {
			if av < floor {
				continue
			}
			if cur, ok := activation[v]; !ok || av > cur {
				activation[v] = av
			}
			if _, hasDepth := depth[v]; !hasDepth {
				depth[v] = s
			}
		}
	}

	delete(activation, seed)
	delete(depth, seed)
	return Result{Activation: activation, Depth: depth}
}

// seedActivationFloor/Cap bound propagate_from_query's jaccard-derived
// initial activation (spec.md §4.10: "floored at 0.3 and capped at 1.0").
const (
	seedActivationFloor = 0.3
	seedActivationCap   = 1.0
)

// MergedResult is propagate_from_query's output: per-node max-merged
// activation, depth, and which seed contributed the winning activation.
type MergedResult struct {
	Activation map[string]float64
	Depth      map[string]int
	Source     map[string]string
}

// FromQuery runs propagate_from once per seed (using jaccard-derived
// initial activation unless overridden by a0 for that seed) and merges
// the results by taking, for each node, the maximum activation across all
// seeds — recording which seed produced it.
func FromQuery(graph *graphstore.Store, questionKeywords map[string]struct{}, seeds []string, a0Override map[string]float64, lambdaDecay, tauAct float64, maxSteps int, excludeTemporalEdges bool) MergedResult {
	merged := MergedResult{
		Activation: make(map[string]float64),
		Depth:      make(map[string]int),
		Source:     make(map[string]string),
	}

	for _, seed := range seeds {
		a0, ok := a0Override[seed]
		if !ok {
			a0 = initialActivation(graph, seed, questionKeywords)
		}
		res := From(graph, seed, a0, lambdaDecay, tauAct, maxSteps, excludeTemporalEdges)
		for v, av := range res.Activation {
			if cur, exists := merged.Activation[v]; !exists || av > cur {
				merged.Activation[v] = av
				merged.Source[v] = seed
				merged.Depth[v] = res.Depth[v]
			}
		}
	}
	return merged
}

func initialActivation(graph *graphstore.Store, seed string, questionKeywords map[string]struct{}) float64 {
	frag, ok := graph.Node(seed)
	if !ok {
		return seedActivationFloor
	}
	a0 := keywords.Jaccard(frag.Keywords, questionKeywords)
	if a0 < seedActivationFloor {
		a0 = seedActivationFloor
	}
	if a0 > seedActivationCap {
		a0 = seedActivationCap
	}
	return a0
}
