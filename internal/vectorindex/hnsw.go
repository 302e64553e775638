package vectorindex

import (
	"container/heap"
	"math"
	"math/rand"
	"time"
)

// hnswNode is one vector's entry in the Hierarchical Navigable Small World
// graph, adapted from the teacher's pkg/index/hnsw.go with the quantization
// path dropped — C3 always persists full-precision embeddings (spec.md
// §4.3: "must expose embeddings explicitly").
type hnswNode struct {
	ID        string
	Vector    []float32
	Level     int
	Neighbors [][]string
	Deleted   bool
}

// hnsw is an in-memory approximate nearest-neighbor index over
// cosine-distance vectors. It is rebuilt from the durable SQLite table when
// the index is opened (see Open) rather than serialized itself, since its random level
// assignment has no need to survive a restart bit-for-bit.
type hnsw struct {
	m              int
	maxM           int
	efConstruction int

	nodes      map[string]*hnswNode
	entryPoint string

	rng *rand.Rand
}

func newHNSW(m, efConstruction int) *hnsw {
	return &hnsw{
		m:              m,
		maxM:           m * 2,
		efConstruction: efConstruction,
		nodes:          make(map[string]*hnswNode),
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (h *hnsw) selectLevel() int {
	level := 0
	for h.rng.Float64() < 0.5 && level < 16 {
		level++
	}
	return level
}

func (h *hnsw) insert(id string, vector []float32) {
	if existing, ok := h.nodes[id]; ok {
		existing.Vector = vector
		existing.Deleted = false
		return
	}

	level := h.selectLevel()
	node := &hnswNode{ID: id, Vector: vector, Level: level, Neighbors: make([][]string, level+1)}
	for i := range node.Neighbors {
		node.Neighbors[i] = make([]string, 0)
	}
	h.nodes[id] = node

	if h.entryPoint == "" {
		h.entryPoint = id
		return
	}

	currNearest := []string{h.entryPoint}
	entryNode := h.nodes[h.entryPoint]
	for lc := entryNode.Level; lc > level; lc-- {
		currNearest = h.searchLayerClosest(vector, currNearest, 1, lc)
	}

	for lc := level; lc >= 0; lc-- {
		m := h.m
		if lc == 0 {
			m = h.maxM
		}
		candidates := h.searchLayer(vector, currNearest, h.efConstruction, lc)
		neighbors := h.selectNeighbors(vector, candidates, m)

		node.Neighbors[lc] = neighbors
		for _, n := range neighbors {
			h.addConnection(n, id, lc)
			nn := h.nodes[n]
			maxConn := h.m
			if lc == 0 {
				maxConn = h.maxM
			}
			if lc < len(nn.Neighbors) && len(nn.Neighbors[lc]) > maxConn {
				nn.Neighbors[lc] = h.selectNeighbors(nn.Vector, nn.Neighbors[lc], maxConn)
			}
		}
		currNearest = neighbors
	}

	if level > h.nodes[h.entryPoint].Level {
		h.entryPoint = id
	}
}

func (h *hnsw) searchLayer(query []float32, entryPoints []string, ef, layer int) []string {
	visited := make(map[string]bool)
	candidates := &distHeap{}
	dynamic := &distHeap{}

	for _, p := range entryPoints {
		if _, ok := h.nodes[p]; !ok {
			continue
		}
		d := cosineDistance(query, h.nodes[p].Vector)
		heap.Push(candidates, &heapItem{id: p, dist: d})
		heap.Push(dynamic, &heapItem{id: p, dist: -d})
		visited[p] = true
	}

	for candidates.Len() > 0 {
		if dynamic.Len() > 0 && (*candidates)[0].dist > -(*dynamic)[0].dist {
			break
		}
		current := heap.Pop(candidates).(*heapItem)
		currentNode, ok := h.nodes[current.id]
		if !ok || layer >= len(currentNode.Neighbors) {
			continue
		}
		for _, nb := range currentNode.Neighbors[layer] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			nbNode, ok := h.nodes[nb]
			if !ok {
				continue
			}
			d := cosineDistance(query, nbNode.Vector)
			if dynamic.Len() < ef || d < -(*dynamic)[0].dist {
				heap.Push(candidates, &heapItem{id: nb, dist: d})
				heap.Push(dynamic, &heapItem{id: nb, dist: -d})
				if dynamic.Len() > ef {
					heap.Pop(dynamic)
				}
			}
		}
	}

	result := make([]string, 0, dynamic.Len())
	for dynamic.Len() > 0 {
		result = append(result, heap.Pop(dynamic).(*heapItem).id)
	}
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result
}

func (h *hnsw) searchLayerClosest(query []float32, entryPoints []string, num, layer int) []string {
	c := h.searchLayer(query, entryPoints, num, layer)
	if len(c) > num {
		return c[:num]
	}
	return c
}

func (h *hnsw) selectNeighbors(query []float32, candidates []string, m int) []string {
	if len(candidates) <= m {
		return candidates
	}
	type pair struct {
		id   string
		dist float32
	}
	pairs := make([]pair, 0, len(candidates))
	for _, c := range candidates {
		if n, ok := h.nodes[c]; ok {
			pairs = append(pairs, pair{c, cosineDistance(query, n.Vector)})
		}
	}
	for i := 0; i < len(pairs)-1; i++ {
		for j := i + 1; j < len(pairs); j++ {
			if pairs[j].dist < pairs[i].dist {
				pairs[i], pairs[j] = pairs[j], pairs[i]
			}
		}
	}
	out := make([]string, 0, m)
	for i := 0; i < m && i < len(pairs); i++ {
		out = append(out, pairs[i].id)
	}
	return out
}

func (h *hnsw) addConnection(from, to string, layer int) {
	fromNode, ok := h.nodes[from]
	if !ok || layer >= len(fromNode.Neighbors) {
		return
	}
	for _, n := range fromNode.Neighbors[layer] {
		if n == to {
			return
		}
	}
	fromNode.Neighbors[layer] = append(fromNode.Neighbors[layer], to)
}

// search returns up to k ids and their cosine distances to query, ascending.
func (h *hnsw) search(query []float32, k, ef int) ([]string, []float32) {
	if h.entryPoint == "" {
		return nil, nil
	}
	entryNode := h.nodes[h.entryPoint]
	currNearest := []string{h.entryPoint}
	for layer := entryNode.Level; layer > 0; layer-- {
		currNearest = h.searchLayerClosest(query, currNearest, 1, layer)
	}
	candidates := h.searchLayer(query, currNearest, ef, 0)

	type result struct {
		id   string
		dist float32
	}
	results := make([]result, 0, len(candidates))
	for _, c := range candidates {
		if n, ok := h.nodes[c]; ok && !n.Deleted {
			results = append(results, result{c, cosineDistance(query, n.Vector)})
		}
	}
	for i := 0; i < len(results)-1; i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].dist < results[i].dist {
				results[i], results[j] = results[j], results[i]
			}
		}
	}
	if k > len(results) {
		k = len(results)
	}
	ids := make([]string, k)
	dists := make([]float32, k)
	for i := 0; i < k; i++ {
		ids[i] = results[i].id
		dists[i] = results[i].dist
	}
	return ids, dists
}

func (h *hnsw) delete(id string) {
	n, ok := h.nodes[id]
	if !ok {
		return
	}
	n.Deleted = true
	if h.entryPoint == id {
		h.entryPoint = ""
		for nodeID, node := range h.nodes {
			if !node.Deleted {
				h.entryPoint = nodeID
				break
			}
		}
	}
}

func (h *hnsw) size() int {
	n := 0
	for _, node := range h.nodes {
		if !node.Deleted {
			n++
		}
	}
	return n
}

type heapItem struct {
	id   string
	dist float32
}

type distHeap []*heapItem

func (h distHeap) Len() int            { return len(h) }
func (h distHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h distHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *distHeap) Push(x interface{}) { *h = append(*h, x.(*heapItem)) }
func (h *distHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// cosineDistance returns 1 - cosine_similarity(a, b), matching the
// teacher's pkg/index/hnsw.go CosineDistance.
func cosineDistance(a, b []float32) float32 {
	var dot, na, nb float32
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1.0
	}
	sim := dot / float32(math.Sqrt(float64(na))*math.Sqrt(float64(nb)))
	return 1.0 - sim
}
