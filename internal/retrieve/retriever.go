package retrieve

import (
	"context"
	"sort"
	"strings"

	"github.com/evidentlabs/beacon/internal/config"
	"github.com/evidentlabs/beacon/internal/model"
)

// Query carries the retrieval intent for one partition
type Query struct {
	// Context is the project context line embedded ahead of the terms
	Context string

	// Terms are extra critical terms beyond the configured keywords
	Terms []string
}

// Result is the retrieved evidence set, ranked unless degraded
type Result struct {
	Chunks []model.Chunk

	// Degraded marks a keyword-only result returned because the vector
	// plane was unavailable
	Degraded bool

	// Warning is the DegradedRetrievalWarning explaining why, nil otherwise
	Warning error
}

// Retriever ranks a corpus partition for the analyzer. Keyword prefilter
// first, vector similarity second, with two fallbacks: an empty prefilter
// widens to the whole partition, and an unavailable vector plane degrades
// to the unranked keyword subset instead of failing the run.
type Retriever struct {
	chunks   []model.Chunk
	byID     map[string]model.Chunk
	index    SimilarityIndex
	embedder Embedder
	keywords []string
	topK     int
}

// NewRetriever creates a retriever over a partition snapshot
func NewRetriever(chunks []model.Chunk, index SimilarityIndex, embedder Embedder, cfg config.Retrieval) *Retriever {
	byID := make(map[string]model.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	topK := cfg.TopK
	if topK < 1 {
		topK = 10
	}

	return &Retriever{
		chunks:   chunks,
		byID:     byID,
		index:    index,
		embedder: embedder,
		keywords: cfg.PrefilterKeywords,
		topK:     topK,
	}
}

// Retrieve returns the evidence set for the query. Only context
// cancellation is a hard error; embedder or index failures degrade.
func (r *Retriever) Retrieve(ctx context.Context, q Query) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	prefiltered := r.prefilter()

	subset := prefiltered
	if len(subset) == 0 {
		// No keyword hit anywhere: rank the whole partition
		subset = r.chunks
	}

	vec, err := r.embedder.Embed(ctx, r.queryText(q))
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return r.degraded(prefiltered, err), nil
	}

	hits, err := r.index.Query(vec, r.topK, allowSet(subset))
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return r.degraded(prefiltered, err), nil
	}

	return Result{Chunks: r.rank(hits)}, nil
}

// prefilter returns chunks whose text contains any configured keyword,
// case-insensitive.
func (r *Retriever) prefilter() []model.Chunk {
	if len(r.keywords) == 0 {
		return nil
	}

	var out []model.Chunk
	for _, chunk := range r.chunks {
		text := strings.ToLower(chunk.Text)
		for _, kw := range r.keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(text, strings.ToLower(kw)) {
				out = append(out, chunk)
				break
			}
		}
	}
	return out
}

// queryText builds the embed text: context first, then terms and keywords
// deduplicated case-insensitively in stable order.
func (r *Retriever) queryText(q Query) string {
	parts := make([]string, 0, 1+len(q.Terms)+len(r.keywords))
	if q.Context != "" {
		parts = append(parts, q.Context)
	}

	seen := make(map[string]struct{})
	for _, term := range append(append([]string(nil), q.Terms...), r.keywords...) {
		term = strings.TrimSpace(term)
		key := strings.ToLower(term)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		parts = append(parts, term)
	}

	return strings.Join(parts, " ")
}

// rank maps hits back to chunks. Equal scores order by earliest timestamp,
// then lexicographic id, so reruns produce identical evidence sets.
func (r *Retriever) rank(hits []Hit) []model.Chunk {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		a, b := r.byID[hits[i].ChunkID], r.byID[hits[j].ChunkID]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.ID < b.ID
	})

	out := make([]model.Chunk, 0, len(hits))
	for _, hit := range hits {
		if chunk, ok := r.byID[hit.ChunkID]; ok {
			out = append(out, chunk)
		}
	}
	if len(out) > r.topK {
		out = out[:r.topK]
	}
	return out
}

// degraded returns the unranked keyword subset, capped at topK. With no
// keyword hits the earliest chunks of the partition stand in, so the
// analyzer still sees something rather than silently nothing.
func (r *Retriever) degraded(prefiltered []model.Chunk, cause error) Result {
	subset := prefiltered
	if len(subset) == 0 {
		subset = r.chunks
	}

	out := append([]model.Chunk(nil), subset...)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > r.topK {
		out = out[:r.topK]
	}

	return Result{
		Chunks:   out,
		Degraded: true,
		Warning:  &model.DegradedRetrievalWarning{Cause: cause},
	}
}

func allowSet(chunks []model.Chunk) func(id string) bool {
	ids := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		ids[c.ID] = struct{}{}
	}
	return func(id string) bool {
		_, ok := ids[id]
		return ok
	}
}
