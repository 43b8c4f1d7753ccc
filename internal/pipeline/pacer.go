package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Pacer spaces out publish calls: at most maxConcurrent at once and at
// least minDelay between the starts of consecutive calls.
type Pacer struct {
	limiter *rate.Limiter
	slots   *semaphore.Weighted
}

func NewPacer(minDelay time.Duration, maxConcurrent int64) *Pacer {
	limit := rate.Inf
	if minDelay > 0 {
		limit = rate.Every(minDelay)
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	return &Pacer{
		limiter: rate.NewLimiter(limit, 1),
		slots:   semaphore.NewWeighted(maxConcurrent),
	}
}

func (p *Pacer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.slots.Release(1)

	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	return fn(ctx)
}
