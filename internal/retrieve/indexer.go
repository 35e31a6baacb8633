package retrieve

import (
	"context"
	"fmt"

	"github.com/evidentlabs/beacon/internal/logger"
	"github.com/evidentlabs/beacon/internal/model"
	"github.com/evidentlabs/beacon/internal/store"
	"github.com/evidentlabs/beacon/internal/worker"
)

// indexBatchSize is how many chunk texts share one embeddings API call
const indexBatchSize = 64

// Indexer embeds corpus chunks into the vector store. Indexing is
// incremental: a chunk is re-embedded only when its content hash no longer
// matches the stored vector's hash.
type Indexer struct {
	store    *store.Store
	embedder Embedder
	workers  int
}

// IndexStats summarizes one indexing run
type IndexStats struct {
	Total    int // chunks in the store
	Embedded int // chunks (re-)embedded this run
	Skipped  int // chunks whose vectors were already current
}

// NewIndexer creates an indexer
func NewIndexer(st *store.Store, embedder Embedder, workers int) *Indexer {
	if workers < 1 {
		workers = 1
	}
	return &Indexer{
		store:    st,
		embedder: embedder,
		workers:  workers,
	}
}

// Run embeds every stale chunk and upserts the vectors
func (ix *Indexer) Run(ctx context.Context) (IndexStats, error) {
	chunks, err := ix.store.Chunks(ctx)
	if err != nil {
		return IndexStats{}, fmt.Errorf("load chunks: %w", err)
	}

	hashes, err := ix.store.VectorHashes(ctx)
	if err != nil {
		return IndexStats{}, fmt.Errorf("load vector hashes: %w", err)
	}

	stats := IndexStats{Total: len(chunks)}

	var pending []model.Chunk
	for _, chunk := range chunks {
		if hashes[chunk.ID] == ContentHash(chunk.Text) {
			stats.Skipped++
			continue
		}
		pending = append(pending, chunk)
	}
	if len(pending) == 0 {
		logger.Debug("index up to date: %d chunks", stats.Total)
		return stats, nil
	}

	logger.Info("embedding %d of %d chunks", len(pending), len(chunks))

	batches := worker.Batches(pending, indexBatchSize)
	err = worker.RunBatches(ctx, ix.workers, batches, func(ctx context.Context, batch []model.Chunk) error {
		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Text
		}

		vecs, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}

		for i, chunk := range batch {
			if err := ix.store.UpsertVector(ctx, chunk.ID, ContentHash(chunk.Text), vecs[i]); err != nil {
				return fmt.Errorf("upsert vector for %s: %w", chunk.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("embed chunks: %w", err)
	}

	stats.Embedded = len(pending)
	return stats, nil
}

// LoadIndex builds an in-memory similarity index from the stored vectors
func LoadIndex(ctx context.Context, st *store.Store) (*MemoryIndex, error) {
	vectors, err := st.Vectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}

	index := NewMemoryIndex()
	for id, vec := range vectors {
		index.Upsert(id, vec)
	}
	return index, nil
}
