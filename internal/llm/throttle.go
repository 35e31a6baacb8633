package llm

import (
	"context"

	"github.com/evidentlabs/beacon/internal/worker"
)

// ThrottledProvider wraps a Provider with a shared rate limiter so that
// concurrent partition workers stay within one per-vendor request budget.
type ThrottledProvider struct {
	inner   Provider
	limiter *worker.Limiter
}

// NewThrottledProvider wraps inner with the given limiter
func NewThrottledProvider(inner Provider, limiter *worker.Limiter) *ThrottledProvider {
	return &ThrottledProvider{
		inner:   inner,
		limiter: limiter,
	}
}

// Name returns the inner provider's name
func (p *ThrottledProvider) Name() string {
	return p.inner.Name()
}

// IsAvailable reports the inner provider's availability
func (p *ThrottledProvider) IsAvailable(ctx context.Context) bool {
	return p.inner.IsAvailable(ctx)
}

// Complete waits for rate limit clearance, then forwards the request
func (p *ThrottledProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := p.limiter.Wait(ctx, p.inner.Name()); err != nil {
		return nil, err
	}
	return p.inner.Complete(ctx, req)
}
