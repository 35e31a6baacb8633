package cli

import (
	"context"
	"os"
	"time"

	"github.com/evidentlabs/beacon/internal/cache"
	"github.com/evidentlabs/beacon/internal/config"
	"github.com/evidentlabs/beacon/internal/retrieve"
	"github.com/evidentlabs/beacon/internal/worker"
)

// newCache builds the layered response cache, or nil when caching is
// disabled. Both tiers share the configured TTL.
func newCache(cfg config.Config) cache.Cache {
	if !cfg.Cache.Enabled {
		return nil
	}
	ttl := time.Duration(cfg.Cache.TTLHours) * time.Hour
	return cache.NewLayeredCache(ttl, cfg.Paths.CacheDir, ttl)
}

// newEmbedder builds the OpenAI embedder behind the shared limiter and
// cache. The key comes from configuration-resolved env vars.
func newEmbedder(cfg config.Config, store cache.Cache, limiter *worker.Limiter) (retrieve.Embedder, error) {
	apiKey := firstEnv("BEACON_OPENAI_API_KEY", "OPENAI_API_KEY")

	opts := []retrieve.EmbedderOption{retrieve.WithLimiter(limiter)}
	if store != nil {
		opts = append(opts, retrieve.WithCache(store, time.Duration(cfg.Cache.TTLHours)*time.Hour))
	}
	return retrieve.NewOpenAIEmbedder(apiKey, cfg.Model.BaseURL, cfg.Embedding.Model, cfg.Model.TimeoutSeconds, opts...)
}

// unavailableEmbedder stands in when no embedder can be constructed. Every
// call fails with the construction error, which the retriever downgrades
// to keyword-only results instead of failing the run.
type unavailableEmbedder struct {
	err error
}

func (e unavailableEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, e.err
}

func (e unavailableEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, e.err
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}
