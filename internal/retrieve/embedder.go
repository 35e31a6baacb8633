// Package retrieve implements the hybrid retriever: a keyword prefilter
// narrows the corpus, vector similarity ranks what remains, and degraded
// fallbacks keep the pipeline alive when the embedding plane is down.
package retrieve

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/evidentlabs/beacon/internal/cache"
	"github.com/evidentlabs/beacon/internal/util"
	"github.com/evidentlabs/beacon/internal/worker"
)

// Embedder turns text into vectors
type Embedder interface {
	// Embed returns the vector for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// embedEndpoint is the limiter key shared by all embedding calls
const embedEndpoint = "embeddings"

// OpenAIEmbedder calls the OpenAI embeddings API. Vectors are cached by
// content hash so re-indexing an unchanged corpus makes no API calls, and
// all calls share the per-endpoint rate limiter.
type OpenAIEmbedder struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	limiter *worker.Limiter // optional
	store   cache.Cache     // optional
	ttl     time.Duration
}

// EmbedderOption tunes an OpenAIEmbedder
type EmbedderOption func(*OpenAIEmbedder)

// WithLimiter routes embedding calls through the shared rate limiter
func WithLimiter(l *worker.Limiter) EmbedderOption {
	return func(e *OpenAIEmbedder) { e.limiter = l }
}

// WithCache serves repeated texts from the given cache
func WithCache(c cache.Cache, ttl time.Duration) EmbedderOption {
	return func(e *OpenAIEmbedder) {
		e.store = c
		e.ttl = ttl
	}
}

// NewOpenAIEmbedder creates an embedder for the given model
func NewOpenAIEmbedder(apiKey, baseURL, model string, timeoutSeconds int, opts ...EmbedderOption) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	clientConfig.HTTPClient = &http.Client{
		Transport: &http.Transport{
			Proxy: util.NewProxyFunc("", "", ""),
		},
	}

	timeout := time.Duration(timeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	e := &OpenAIEmbedder{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   model,
		timeout: timeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Embed returns the vector for a single text
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per input text. Cached texts are served
// locally; only the misses go to the API, in one request.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))

	// Collect cache misses, preserving input positions
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		if vec, ok := e.cached(text); ok {
			out[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, embedEndpoint); err != nil {
			return nil, err
		}
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctxWithTimeout, openai.EmbeddingRequest{
		Input: missTexts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings API error: %w", err)
	}
	if len(resp.Data) != len(missTexts) {
		return nil, fmt.Errorf("embeddings API returned %d vectors for %d inputs", len(resp.Data), len(missTexts))
	}

	for i, data := range resp.Data {
		vec := data.Embedding
		out[missIdx[i]] = vec
		e.remember(missTexts[i], vec)
	}

	return out, nil
}

func (e *OpenAIEmbedder) cached(text string) ([]float32, bool) {
	if e.store == nil {
		return nil, false
	}
	data, ok := e.store.Get(e.key(text))
	if !ok {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil, false
	}
	return vec, true
}

func (e *OpenAIEmbedder) remember(text string, vec []float32) {
	if e.store == nil {
		return
	}
	if data, err := json.Marshal(vec); err == nil {
		_ = e.store.Set(e.key(text), data, e.ttl)
	}
}

func (e *OpenAIEmbedder) key(text string) string {
	return cache.Key("embed", e.model, text)
}

// ContentHash identifies a chunk text for incremental indexing. A chunk
// whose hash matches the stored vector's hash does not need re-embedding.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
