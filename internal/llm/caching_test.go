package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/evidentlabs/beacon/internal/cache"
	"github.com/evidentlabs/beacon/internal/worker"
)

// fakeProvider counts calls and returns a canned response
type fakeProvider struct {
	name  string
	calls int
	text  string
	err   error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) IsAvailable(ctx context.Context) bool { return true }

func (f *fakeProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Response{Text: f.text, Model: req.Model, TokensUsed: 10}, nil
}

func TestCachingProvider_RecordsAndReplays(t *testing.T) {
	inner := &fakeProvider{name: "openai", text: "items: []"}
	store := cache.NewMemoryCache(time.Minute)
	provider := NewCachingProvider(inner, store, time.Minute)

	req := Request{System: "sys", Prompt: "prompt", Model: "gpt-4o-mini"}

	first, err := provider.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	second, err := provider.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}

	if inner.calls != 1 {
		t.Errorf("expected one upstream call, got %d", inner.calls)
	}
	if first.Text != second.Text || first.TokensUsed != second.TokensUsed {
		t.Errorf("cached response differs: %+v vs %+v", first, second)
	}
}

func TestCachingProvider_KeyCoversPrompt(t *testing.T) {
	inner := &fakeProvider{name: "openai", text: "items: []"}
	store := cache.NewMemoryCache(time.Minute)
	provider := NewCachingProvider(inner, store, time.Minute)

	if _, err := provider.Complete(context.Background(), Request{Prompt: "first"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := provider.Complete(context.Background(), Request{Prompt: "second"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if inner.calls != 2 {
		t.Errorf("different prompts must not share a cache entry, got %d upstream calls", inner.calls)
	}
}

func TestCachingProvider_DoesNotCacheErrors(t *testing.T) {
	inner := &fakeProvider{name: "openai", err: errors.New("boom")}
	store := cache.NewMemoryCache(time.Minute)
	provider := NewCachingProvider(inner, store, time.Minute)

	if _, err := provider.Complete(context.Background(), Request{Prompt: "p"}); err == nil {
		t.Fatal("expected error")
	}

	inner.err = nil
	inner.text = "recovered"
	resp, err := provider.Complete(context.Background(), Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("unexpected error after recovery: %v", err)
	}
	if resp.Text != "recovered" {
		t.Errorf("expected fresh response after failed call, got %q", resp.Text)
	}
}

func TestReplayProvider_MissIsError(t *testing.T) {
	inner := &fakeProvider{name: "openai", text: "never served"}
	store := cache.NewMemoryCache(time.Minute)
	provider := NewReplayProvider(inner, store)

	_, err := provider.Complete(context.Background(), Request{Prompt: "unrecorded"})
	if err == nil {
		t.Fatal("expected replay miss to fail")
	}
	if !strings.Contains(err.Error(), "replay") {
		t.Errorf("expected replay error, got %v", err)
	}
	if inner.calls != 0 {
		t.Errorf("replay mode must not call upstream, got %d calls", inner.calls)
	}
}

func TestReplayProvider_ServesRecordedResponses(t *testing.T) {
	inner := &fakeProvider{name: "openai", text: "recorded"}
	store := cache.NewMemoryCache(time.Minute)
	req := Request{Prompt: "p", Model: "gpt-4o-mini"}

	// Record with a caching provider first
	recorder := NewCachingProvider(inner, store, time.Minute)
	if _, err := recorder.Complete(context.Background(), req); err != nil {
		t.Fatalf("recording failed: %v", err)
	}

	replayer := NewReplayProvider(&fakeProvider{name: "openai"}, store)
	resp, err := replayer.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if resp.Text != "recorded" {
		t.Errorf("expected recorded response, got %q", resp.Text)
	}
	if !replayer.IsAvailable(context.Background()) {
		t.Error("replay mode should always report available")
	}
}

func TestThrottledProvider_ForwardsAfterClearance(t *testing.T) {
	inner := &fakeProvider{name: "openai", text: "ok"}
	limiter := worker.NewLimiter(100, 10)
	provider := NewThrottledProvider(inner, limiter)

	resp, err := provider.Complete(context.Background(), Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "ok" {
		t.Errorf("unexpected response: %q", resp.Text)
	}
	if provider.Name() != "openai" {
		t.Errorf("throttled provider must keep the inner name, got %s", provider.Name())
	}
}

func TestThrottledProvider_HonorsCancellation(t *testing.T) {
	inner := &fakeProvider{name: "openai", text: "ok"}
	limiter := worker.NewLimiter(0.001, 1)
	provider := NewThrottledProvider(inner, limiter)

	// Drain the single burst token
	if _, err := provider.Complete(context.Background(), Request{Prompt: "p"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := provider.Complete(ctx, Request{Prompt: "p"}); err == nil {
		t.Fatal("expected error when rate limit wait outlives the context")
	}
	if inner.calls != 1 {
		t.Errorf("cancelled request must not reach upstream, got %d calls", inner.calls)
	}
}
