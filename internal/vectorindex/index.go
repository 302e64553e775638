// Package vectorindex implements C3: a persistent approximate-nearest-
// neighbor store over fixed-dimension dense embeddings (spec.md §4.3).
//
// The ANN structure itself is the teacher's hand-rolled HNSW
// (pkg/index/hnsw.go), adapted in hnsw.go. Durability is provided by a
// modernc.org/sqlite table holding each id's raw vector and source text —
// the teacher's pure-Go SQLite backend, continued here for the "vector
// index directory, self-managed by C3" persistence layer of spec.md §6.3.
// On Open, every row is replayed into a fresh in-memory HNSW graph; the
// graph's randomized level assignment has no need to survive bit-for-bit
// across restarts, only the vectors and text do.
package vectorindex

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/GonzaloDeLaFuente3/pcgraph/internal/encoding"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/logging"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/pcgerrors"
)

const (
	defaultM              = 16
	defaultEfConstruction = 200
	defaultEfSearch       = 64
)

// Result is one hit from Query: an id and its cosine similarity to the
// query vector, derived from distance via s = max(0, 1 - d/2).
type Result struct {
	ID         string
	Distance   float32
	Similarity float64
}

// Index is the engine-facing vector store. Dim is fixed at Open time; every
// subsequent vector must match it.
type Index struct {
	mu  sync.RWMutex
	db  *sql.DB
	ann *hnsw
	dim int
	log logging.Logger
}

// Open creates or attaches to a SQLite-backed vector index at path (use
// ":memory:" for ephemeral/test indices) and replays its rows into a fresh
// HNSW graph.
func Open(ctx context.Context, path string, dim int, log logging.Logger) (*Index, error) {
	if log == nil {
		log = logging.NopLogger()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, pcgerrors.Wrap("vectorindex.Open", err)
	}
	db.SetMaxOpenConns(1) // single-writer per spec.md §5

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		return nil, pcgerrors.Wrap("vectorindex.Open", err)
	}
	schema := `
	CREATE TABLE IF NOT EXISTS vectors (
		id TEXT PRIMARY KEY,
		vector BLOB NOT NULL,
		text TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, pcgerrors.Wrap("vectorindex.Open", err)
	}

	idx := &Index{db: db, ann: newHNSW(defaultM, defaultEfConstruction), dim: dim, log: log}
	if err := idx.rebuild(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *Index) rebuild(ctx context.Context) error {
	rows, err := idx.db.QueryContext(ctx, `SELECT id, vector FROM vectors`)
	if err != nil {
		return pcgerrors.Wrap("vectorindex.rebuild", err)
	}
	defer func() { _ = rows.Close() }()

	count := 0
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return pcgerrors.Wrap("vectorindex.rebuild", err)
		}
		vec, err := encoding.DecodeVector(raw)
		if err != nil {
			idx.log.Warn("skipping corrupt vector row", "id", id, "error", err)
			continue
		}
		idx.ann.insert(id, vec)
		count++
	}
	idx.log.Debug("vector index rebuilt", "rows", count)
	return rows.Err()
}

// Upsert computes nothing — the caller passes the embedding explicitly
// (spec.md §4.3's "index must expose embeddings explicitly") — and stores
// id/vector/text idempotently.
func (idx *Index) Upsert(ctx context.Context, id string, vector []float32, text string) error {
	if len(vector) == 0 {
		return pcgerrors.Wrap("vectorindex.Upsert", pcgerrors.ErrInvalidVector)
	}
	if idx.dim > 0 && len(vector) != idx.dim {
		return pcgerrors.Wrap("vectorindex.Upsert", fmt.Errorf("%w: got %d dims, want %d", pcgerrors.ErrInvalidVector, len(vector), idx.dim))
	}
	if err := encoding.ValidateVector(vector); err != nil {
		return pcgerrors.Wrap("vectorindex.Upsert", fmt.Errorf("%w: %v", pcgerrors.ErrInvalidVector, err))
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	encoded, err := encoding.EncodeVector(vector)
	if err != nil {
		return pcgerrors.Wrap("vectorindex.Upsert", err)
	}
	_, err = idx.db.ExecContext(ctx, `
		INSERT INTO vectors (id, vector, text) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET vector = excluded.vector, text = excluded.text`,
		id, encoded, text)
	if err != nil {
		return pcgerrors.Wrap("vectorindex.Upsert", err)
	}
	idx.ann.insert(id, vector)
	return nil
}

// UpsertBatch is the amortized batch form required for ingest performance
// (spec.md §4.3). On partial transient failure it falls back to per-item
// Upsert calls, matching spec.md §7's "fall back to single-item upserts".
func (idx *Index) UpsertBatch(ctx context.Context, ids []string, vectors [][]float32, texts []string) error {
	if len(ids) != len(vectors) || len(ids) != len(texts) {
		return pcgerrors.Wrap("vectorindex.UpsertBatch", fmt.Errorf("ids/vectors/texts length mismatch"))
	}
	for _, v := range vectors {
		if idx.dim > 0 && len(v) != idx.dim {
			return pcgerrors.Wrap("vectorindex.UpsertBatch", fmt.Errorf("%w: got %d dims, want %d", pcgerrors.ErrInvalidVector, len(v), idx.dim))
		}
		if err := encoding.ValidateVector(v); err != nil {
			return pcgerrors.Wrap("vectorindex.UpsertBatch", fmt.Errorf("%w: %v", pcgerrors.ErrInvalidVector, err))
		}
	}

	idx.mu.Lock()
	tx, err := idx.db.BeginTx(ctx, nil)
	idx.mu.Unlock()
	if err != nil {
		return idx.upsertOneByOne(ctx, ids, vectors, texts)
	}

	ok := true
	for i := range ids {
		encoded, err := encoding.EncodeVector(vectors[i])
		if err != nil {
			ok = false
			break
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO vectors (id, vector, text) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET vector = excluded.vector, text = excluded.text`,
			ids[i], encoded, texts[i]); err != nil {
			ok = false
			break
		}
	}
	if !ok {
		_ = tx.Rollback()
		idx.log.Warn("batch upsert failed, falling back to per-item upserts")
		return idx.upsertOneByOne(ctx, ids, vectors, texts)
	}
	if err := tx.Commit(); err != nil {
		idx.log.Warn("batch commit failed, falling back to per-item upserts", "error", err)
		return idx.upsertOneByOne(ctx, ids, vectors, texts)
	}

	idx.mu.Lock()
	for i := range ids {
		idx.ann.insert(ids[i], vectors[i])
	}
	idx.mu.Unlock()
	return nil
}

func (idx *Index) upsertOneByOne(ctx context.Context, ids []string, vectors [][]float32, texts []string) error {
	for i := range ids {
		if err := idx.Upsert(ctx, ids[i], vectors[i], texts[i]); err != nil {
			return pcgerrors.Wrap("vectorindex.UpsertBatch", err)
		}
	}
	return nil
}

// Query returns the top-k nearest neighbors to vector, ascending by cosine
// distance, with similarity s = max(0, 1 - d/2) precomputed.
func (idx *Index) Query(vector []float32, k int) ([]Result, error) {
	if len(vector) == 0 {
		return nil, pcgerrors.Wrap("vectorindex.Query", pcgerrors.ErrInvalidVector)
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ef := defaultEfSearch
	if ef < k*2 {
		ef = k * 2
	}
	ids, dists := idx.ann.search(vector, k, ef)
	out := make([]Result, len(ids))
	for i := range ids {
		out[i] = Result{ID: ids[i], Distance: dists[i], Similarity: distanceToSimilarity(dists[i])}
	}
	return out, nil
}

// QueryBatchAgainst computes the similarity of vector against a known id
// set, implemented as a Query with a large k followed by intersection, per
// spec.md §4.3. Ids not returned by the underlying ANN search are treated
// as similarity 0, matching C7's batched-call contract.
func (idx *Index) QueryBatchAgainst(vector []float32, candidateIDs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(candidateIDs))
	for _, id := range candidateIDs {
		out[id] = 0
	}
	if len(candidateIDs) == 0 {
		return out, nil
	}
	// k counts every indexed vector, not only the candidates, so the query's
	// own entry and other non-candidate ids cannot push a candidate out of
	// the results.
	k := idx.Count()
	if k > 100 {
		k = 100
	}
	results, err := idx.Query(vector, k)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]struct{}, len(candidateIDs))
	for _, id := range candidateIDs {
		wanted[id] = struct{}{}
	}
	for _, r := range results {
		if _, ok := wanted[r.ID]; ok {
			out[r.ID] = r.Similarity
		}
	}
	return out, nil
}

// Delete removes ids' rows from the durable table and marks them deleted in
// the ANN graph.
func (idx *Index) Delete(ctx context.Context, ids []string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, id := range ids {
		if _, err := idx.db.ExecContext(ctx, `DELETE FROM vectors WHERE id = ?`, id); err != nil {
			return pcgerrors.Wrap("vectorindex.Delete", err)
		}
		idx.ann.delete(id)
	}
	return nil
}

// Vector returns the stored embedding for id, used by C7's recompute_all
// to re-query the ANN graph without round-tripping through SQLite.
func (idx *Index) Vector(id string) ([]float32, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n, ok := idx.ann.nodes[id]
	if !ok || n.Deleted {
		return nil, false
	}
	return n.Vector, true
}

// Count returns the number of live (non-deleted) vectors.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.ann.size()
}

// Reset drops every vector from both the table and the in-memory graph.
func (idx *Index) Reset(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, err := idx.db.ExecContext(ctx, `DELETE FROM vectors`); err != nil {
		return pcgerrors.Wrap("vectorindex.Reset", err)
	}
	idx.ann = newHNSW(defaultM, defaultEfConstruction)
	return nil
}

// Close releases the underlying SQLite handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

func distanceToSimilarity(d float32) float64 {
	s := 1 - float64(d)/2
	if s < 0 {
		return 0
	}
	return s
}
