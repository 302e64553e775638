// Package updater implements C7: incremental and full-recompute edge
// maintenance over the graph store, plus ingest-time deduplication
// (spec.md §4.7).
package updater

import (
	"context"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/GonzaloDeLaFuente3/pcgraph/internal/edgeweight"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/graphstore"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/logging"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/model"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/pcgerrors"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/vectorindex"
)

// charJaccardDedupThreshold is the character-set Jaccard similarity above
// which two texts longer than dedupMinChars are treated as the same
// fragment on ingest (spec.md §4.7).
const (
	charJaccardDedupThreshold = 0.98
	dedupMinChars             = 50
	// titleJaroWinklerDedupThreshold treats two non-trivial titles as the
	// same title when typos or minor rewordings separate them, catching
	// near-duplicate conversations the exact and char-Jaccard checks miss.
	titleJaroWinklerDedupThreshold = 0.92
	titleDedupMinChars             = 8
)

// Stats summarizes one IngestConversation call.
type Stats struct {
	NodesAdded  int
	EdgesAdded  int
	Duplicates  int
}

// Updater wires the graph store and vector index together to implement
// C7's incremental and full-recompute maintenance.
type Updater struct {
	graph *graphstore.Store
	index *vectorindex.Index
	log   logging.Logger
}

// New returns an Updater over graph and index.
func New(graph *graphstore.Store, index *vectorindex.Index, log logging.Logger) *Updater {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Updater{graph: graph, index: index, log: log}
}

// normalize lowercases and collapses whitespace, matching the
// "title_normalized, text_normalized" comparison key of spec.md §4.7.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// charSet returns the set of runes present in s, used for the
// character-Jaccard near-duplicate check.
func charSet(s string) map[rune]struct{} {
	set := make(map[rune]struct{})
	for _, r := range s {
		if !unicode.IsSpace(r) {
			set[r] = struct{}{}
		}
	}
	return set
}

func charJaccard(a, b string) float64 {
	sa, sb := charSet(a), charSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}
	inter := 0
	for r := range sa {
		if _, ok := sb[r]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// titleNearDuplicate reports whether a and b are the same title under
// Jaro-Winkler similarity, catching minor rewordings/typos the exact and
// char-Jaccard text checks don't, grounded on internal/keywords' own use of
// matchr.JaroWinkler for lemma folding.
func titleNearDuplicate(a, b string) bool {
	if len(a) < titleDedupMinChars || len(b) < titleDedupMinChars {
		return false
	}
	sim, err := matchr.JaroWinkler(a, b, true)
	return err == nil && sim >= titleJaroWinklerDedupThreshold
}

// duplicateOf returns the id of an existing fragment that is an exact or
// near-duplicate of (title, text) — either a character-Jaccard match above
// 0.98 on texts over 50 characters, or a Jaro-Winkler near-duplicate title
// paired with a non-trivial character-Jaccard overlap on the body — or
// ("", false) if none is found.
func (u *Updater) duplicateOf(title, text string) (string, bool) {
	normTitle, normText := normalize(title), normalize(text)
	for _, id := range u.graph.NodeIDs() {
		existing, ok := u.graph.Node(id)
		if !ok {
			continue
		}
		existingTitle, existingText := normalize(existing.Title), normalize(existing.Text)
		if existingTitle == normTitle && existingText == normText {
			return id, true
		}
		bodyOverlap := charJaccard(normText, existingText)
		if len(normText) > dedupMinChars && len(existingText) > dedupMinChars {
			if bodyOverlap > charJaccardDedupThreshold {
				return id, true
			}
		}
		if titleNearDuplicate(normTitle, existingTitle) && bodyOverlap > 0.5 {
			return id, true
		}
	}
	return "", false
}

// AddFragment implements add_fragment: dedup check, then node insertion,
// index upsert, and O(|existing|) edge computation against every
// pre-existing node via one batched ANN call. If frag duplicates an
// existing node, AddFragment returns that node's id and skips insertion.
func (u *Updater) AddFragment(ctx context.Context, frag *model.Fragment, vector []float32, tauSim float64) (existingID string, dup bool, err error) {
	if id, found := u.duplicateOf(frag.Title, frag.Text); found {
		return id, true, nil
	}

	existing := u.graph.NodeIDs()

	if err := u.graph.AddNode(frag); err != nil {
		return "", false, pcgerrors.Wrap("updater.AddFragment", err)
	}
	if err := u.index.Upsert(ctx, frag.FragmentID, vector, frag.Text); err != nil {
		return "", false, pcgerrors.Wrap("updater.AddFragment", err)
	}

	if err := u.computeEdgesAgainst(frag, vector, existing, tauSim); err != nil {
		return "", false, err
	}
	return "", false, nil
}

// computeEdgesAgainst scores frag against each id in candidateIDs (which
// must not include frag's own id) using one batched ANN call for semantic
// similarity, materializing edges whose w_struct clears tauSim.
func (u *Updater) computeEdgesAgainst(frag *model.Fragment, vector []float32, candidateIDs []string, tauSim float64) error {
	if len(candidateIDs) == 0 {
		return nil
	}
	sims, err := u.index.QueryBatchAgainst(vector, candidateIDs)
	if err != nil {
		return pcgerrors.Wrap("updater.computeEdgesAgainst", err)
	}
	for _, id := range candidateIDs {
		other, ok := u.graph.Node(id)
		if !ok {
			continue
		}
		edge, materializes := edgeweight.Build(frag, other, sims[id], tauSim)
		if !materializes {
			continue
		}
		if err := u.graph.AddEdge(edge); err != nil {
			return pcgerrors.Wrap("updater.computeEdgesAgainst", err)
		}
	}
	return nil
}

// IngestConversation implements the batch-ingest ordering of spec.md §4.7:
// (i) insert every non-duplicate fragment's node and metadata first, (ii)
// call the vector index's batch upsert once, (iii) run the incremental
// updater for each fragment in turn against the graph as it stands at that
// point — which intentionally includes earlier fragments from the same
// conversation, producing mutual edges within one conversation.
func (u *Updater) IngestConversation(ctx context.Context, fragments []*model.Fragment, vectors [][]float32, tauSim float64) (*Stats, error) {
	if len(fragments) != len(vectors) {
		return nil, pcgerrors.Wrap("updater.IngestConversation", pcgerrors.ErrInvalidConfig)
	}
	stats := &Stats{}

	kept := make([]*model.Fragment, 0, len(fragments))
	keptVectors := make([][]float32, 0, len(fragments))
	for i, frag := range fragments {
		if _, found := u.duplicateOf(frag.Title, frag.Text); found {
			stats.Duplicates++
			continue
		}
		if err := u.graph.AddNode(frag); err != nil {
			return stats, pcgerrors.Wrap("updater.IngestConversation", err)
		}
		kept = append(kept, frag)
		keptVectors = append(keptVectors, vectors[i])
		stats.NodesAdded++
	}

	if len(kept) == 0 {
		return stats, nil
	}

	ids := make([]string, len(kept))
	texts := make([]string, len(kept))
	for i, f := range kept {
		ids[i] = f.FragmentID
		texts[i] = f.Text
	}
	if err := u.index.UpsertBatch(ctx, ids, keptVectors, texts); err != nil {
		return stats, pcgerrors.Wrap("updater.IngestConversation", err)
	}

	for i, frag := range kept {
		candidates := otherIDs(u.graph.NodeIDs(), frag.FragmentID)
		before := u.graph.EdgeCount()
		if err := u.computeEdgesAgainst(frag, keptVectors[i], candidates, tauSim); err != nil {
			return stats, err
		}
		stats.EdgesAdded += u.graph.EdgeCount() - before
	}
	return stats, nil
}

func otherIDs(all []string, exclude string) []string {
	out := make([]string, 0, len(all))
	for _, id := range all {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}

// RecomputeAll rebuilds the entire edge set from scratch: every existing
// edge is discarded, then each ordered pair of nodes is scored exactly
// once, with both directed edges written together (spec.md §4.7). progress
// is invoked after each source node finishes, reporting how many of the
// total source nodes have been processed.
func (u *Updater) RecomputeAll(ctx context.Context, tauSim float64, progress func(done, total int)) error {
	u.graph.ClearEdges()
	ids := u.graph.NodeIDs()

	for i, id := range ids {
		frag, ok := u.graph.Node(id)
		if !ok {
			continue
		}
		vector, ok := u.index.Vector(id)
		if !ok {
			u.log.Warn("recompute_all: node has no indexed vector, skipping its pairs", "id", id)
			continue
		}
		remaining := ids[i+1:]
		if err := u.computeEdgesAgainst(frag, vector, remaining, tauSim); err != nil {
			return pcgerrors.Wrap("updater.RecomputeAll", err)
		}
		if progress != nil {
			progress(i+1, len(ids))
		}
	}
	return nil
}
