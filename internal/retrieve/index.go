package retrieve

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// Hit is one similarity match
type Hit struct {
	ChunkID string
	Score   float64
}

// SimilarityIndex answers nearest-neighbor queries over chunk vectors.
// The allow filter restricts a query to a subset of ids; nil means all.
type SimilarityIndex interface {
	Upsert(id string, vec []float32)
	Query(vec []float32, k int, allow func(id string) bool) ([]Hit, error)
	Len() int
}

// MemoryIndex is an exact cosine scan over float32 vectors. Corpora here
// are thousands of chunks, small enough that a linear scan stays fast and
// exact ordering keeps retrieval deterministic.
type MemoryIndex struct {
	mu    sync.RWMutex
	vecs  map[string][]float32
	norms map[string]float64
}

// NewMemoryIndex creates an empty index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		vecs:  make(map[string][]float32),
		norms: make(map[string]float64),
	}
}

// Upsert stores or replaces the vector for an id
func (ix *MemoryIndex) Upsert(id string, vec []float32) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.vecs[id] = vec
	ix.norms[id] = norm(vec)
}

// Len returns the number of indexed vectors
func (ix *MemoryIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vecs)
}

// Query returns the k nearest ids by cosine similarity. Ties are broken by
// id so equal corpora produce equal orderings.
func (ix *MemoryIndex) Query(vec []float32, k int, allow func(id string) bool) ([]Hit, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.vecs) == 0 {
		return nil, fmt.Errorf("similarity index is empty")
	}
	if k < 1 {
		return nil, fmt.Errorf("query k must be >= 1, got %d", k)
	}

	queryNorm := norm(vec)
	if queryNorm == 0 {
		return nil, fmt.Errorf("query vector has zero norm")
	}

	hits := make([]Hit, 0, len(ix.vecs))
	for id, candidate := range ix.vecs {
		if allow != nil && !allow(id) {
			continue
		}
		if len(candidate) != len(vec) {
			// Dimension drift from a model change; skip rather than guess
			continue
		}
		candidateNorm := ix.norms[id]
		if candidateNorm == 0 {
			continue
		}
		hits = append(hits, Hit{
			ChunkID: id,
			Score:   dot(vec, candidate) / (queryNorm * candidateNorm),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}
