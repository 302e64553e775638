// Package edgeweight implements C6: the structural/temporal edge-weight
// formulas of spec.md §4.6, shared by the incremental updater (C7) and the
// full-recompute path.
package edgeweight

import (
	"math"
	"time"

	"github.com/GonzaloDeLaFuente3/pcgraph/internal/keywords"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/model"
)

// Structural combines the lexical Jaccard over each fragment's keyword set
// with the dense-embedding cosine similarity already computed by C3,
// w_struct = (jaccard + sem) / 2.
func Structural(aKeywords, bKeywords map[string]struct{}, sem float64) float64 {
	j := keywords.Jaccard(aKeywords, bKeywords)
	return (j + sem) / 2
}

// clamp01 restricts x to the closed interval [0, 1].
func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Temporal computes r_temp for a pair of fragments: 0 if either carries no
// timestamp, else exp(-Δdays/h) clamped to [0,1], where h is the smaller
// of the two fragments' context-type half-lives (spec.md §4.6).
func Temporal(aTime, bTime *time.Time, aType, bType model.ContextType) float64 {
	if aTime == nil || bTime == nil {
		return 0
	}
	deltaDays := aTime.Sub(*bTime).Hours() / 24
	if deltaDays < 0 {
		deltaDays = -deltaDays
	}
	h := aType.HalfLifeDays()
	if bh := bType.HalfLifeDays(); bh < h {
		h = bh
	}
	if h <= 0 {
		return 0
	}
	return clamp01(math.Exp(-deltaDays / h))
}

// Effective folds structural and temporal signals into the final edge
// weight: raw = w_struct * (1 + r_temp), w_eff = raw / (1 + raw). The
// function returns (wStruct, rTemp, wEff) so callers don't need to
// recompute the inputs to decide whether the edge materializes.
func Effective(aKeywords, bKeywords map[string]struct{}, sem float64, aTime, bTime *time.Time, aType, bType model.ContextType) (wStruct, rTemp, wEff float64) {
	wStruct = Structural(aKeywords, bKeywords, sem)
	rTemp = Temporal(aTime, bTime, aType, bType)
	raw := wStruct * (1 + rTemp)
	wEff = raw / (1 + raw)
	return wStruct, rTemp, wEff
}

// Materializes reports whether w_struct clears the edge-creation threshold
// tauSim (spec.md §4.6: "edge materializes iff w_struct > tau_sim").
func Materializes(wStruct, tauSim float64) bool {
	return wStruct > tauSim
}

// EdgeTypeFor reports whether an edge between two fragments should be
// flagged semantic_temporal (both carry timestamps) or plain semantic.
func EdgeTypeFor(aTime, bTime *time.Time) model.EdgeType {
	if aTime != nil && bTime != nil {
		return model.EdgeSemanticTemporal
	}
	return model.EdgeSemantic
}

// Build computes the full directed edge (A -> B) between two fragments,
// given their pre-computed semantic similarity sem (from C3). It returns
// ok=false when w_struct does not clear tauSim, in which case no edge
// should be materialized.
func Build(a, b *model.Fragment, sem, tauSim float64) (model.Edge, bool) {
	wStruct, rTemp, wEff := Effective(a.Keywords, b.Keywords, sem, a.Timestamp, b.Timestamp, a.ContextType, b.ContextType)
	if !Materializes(wStruct, tauSim) {
		return model.Edge{}, false
	}
	return model.Edge{
		From:        a.FragmentID,
		To:          b.FragmentID,
		WStruct:     wStruct,
		RTemp:       rTemp,
		WEff:        wEff,
		Type:        EdgeTypeFor(a.Timestamp, b.Timestamp),
		FromContext: a.ContextType,
		ToContext:   b.ContextType,
	}, true
}
