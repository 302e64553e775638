// Package embedder defines the pluggable text-to-vector interface C3
// depends on, grounded on the teacher's pkg/sqvect/embedder.go Embedder
// shape. spec.md §4.3 treats the embedding model as "pluggable... 384-d
// vectors, cosine space" and explicitly keeps it out of the engine's
// concern beyond persisting and reusing whatever vectors the caller
// supplies; no ecosystem embedding-model client lives in the example pack,
// so the default implementation here is a deterministic, dependency-free
// hash embedding, documented in DESIGN.md as the justified stdlib-only
// piece a real deployment replaces via this interface.
package embedder

import (
	"context"
	"hash/fnv"
	"math"
)

// DefaultDim is the contract dimension spec.md §4.3 names.
const DefaultDim = 384

// Embedder converts text into fixed-dimension dense vectors. Implementations
// must be deterministic for a given text (spec.md §4.3's "upsert and query
// use identical encoders" sanity requirement).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
}

// BaseEmbedder supplies a concurrent EmbedBatch built on top of a single-text
// Embed function, mirroring the teacher's BaseEmbedder so a future real
// model client only has to implement Embed and Dim.
type BaseEmbedder struct {
	EmbedFn func(ctx context.Context, text string) ([]float32, error)
	DimFn   func() int
}

func (b *BaseEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return b.EmbedFn(ctx, text)
}

func (b *BaseEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	type result struct {
		idx int
		vec []float32
		err error
	}
	ch := make(chan result, len(texts))
	for i, text := range texts {
		go func(idx int, t string) {
			vec, err := b.EmbedFn(ctx, t)
			ch <- result{idx: idx, vec: vec, err: err}
		}(i, text)
	}
	out := make([][]float32, len(texts))
	var firstErr error
	for range texts {
		r := <-ch
		out[r.idx] = r.vec
		if r.err != nil && firstErr == nil {
			firstErr = r.err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (b *BaseEmbedder) Dim() int { return b.DimFn() }

// Hash is a deterministic, dependency-free embedder: it hashes sliding
// n-grams of the lowercased text into DefaultDim buckets with sign-weighted
// accumulation, then L2-normalizes. Two calls on the same text always
// produce the same vector, satisfying the contract's identical-encoder
// requirement without any external model.
type Hash struct {
	dim int
}

// NewHash returns a Hash embedder producing dim-dimensional vectors
// (DefaultDim if dim <= 0).
func NewHash(dim int) *Hash {
	if dim <= 0 {
		dim = DefaultDim
	}
	return &Hash{dim: dim}
}

func (h *Hash) Dim() int { return h.dim }

func (h *Hash) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dim)
	const n = 3
	runes := []rune(text)
	if len(runes) == 0 {
		return vec, nil
	}
	for i := range runes {
		end := i + n
		if end > len(runes) {
			end = len(runes)
		}
		gram := string(runes[i:end])
		hasher := fnv.New64a()
		_, _ = hasher.Write([]byte(gram))
		sum := hasher.Sum64()
		bucket := int(sum % uint64(h.dim))
		sign := float32(1)
		if sum&1 == 1 {
			sign = -1
		}
		vec[bucket] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec, nil
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

func (h *Hash) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}
