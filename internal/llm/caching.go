package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/evidentlabs/beacon/internal/cache"
)

// CachingProvider wraps a Provider and serves repeated prompts from a
// cache. Entries are keyed by provider, model, sampling parameters, and
// the full prompt text, so any change to a prompt invalidates the entry.
//
// In replay mode a cache miss is an error instead of an API call, which
// keeps recorded runs deterministic and lets the pipeline re-run offline.
type CachingProvider struct {
	inner  Provider
	store  cache.Cache
	ttl    time.Duration
	replay bool
}

// NewCachingProvider wraps inner with the given cache
func NewCachingProvider(inner Provider, store cache.Cache, ttl time.Duration) *CachingProvider {
	return &CachingProvider{
		inner: inner,
		store: store,
		ttl:   ttl,
	}
}

// NewReplayProvider wraps inner in replay-only mode: every completion must
// already be recorded in the cache
func NewReplayProvider(inner Provider, store cache.Cache) *CachingProvider {
	return &CachingProvider{
		inner:  inner,
		store:  store,
		replay: true,
	}
}

// Name returns the inner provider's name
func (p *CachingProvider) Name() string {
	return p.inner.Name()
}

// IsAvailable reports availability. Replay mode is always available since
// it never leaves the cache.
func (p *CachingProvider) IsAvailable(ctx context.Context) bool {
	if p.replay {
		return true
	}
	return p.inner.IsAvailable(ctx)
}

// Complete serves the request from the cache when possible, otherwise
// forwards to the inner provider and records the response
func (p *CachingProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	key := p.key(req)

	if data, ok := p.store.Get(key); ok {
		var resp Response
		if err := json.Unmarshal(data, &resp); err == nil {
			return &resp, nil
		}
		// Corrupt entry: drop it and fall through
		_ = p.store.Delete(key)
	}

	if p.replay {
		return nil, fmt.Errorf("replay mode: no recorded response for %s request", p.inner.Name())
	}

	resp, err := p.inner.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(resp); err == nil {
		_ = p.store.Set(key, data, p.ttl)
	}

	return resp, nil
}

func (p *CachingProvider) key(req Request) string {
	return cache.Key(
		p.inner.Name(),
		req.Model,
		strconv.FormatFloat(float64(req.Temperature), 'f', -1, 32),
		strconv.Itoa(req.MaxTokens),
		req.System,
		req.Prompt,
	)
}
