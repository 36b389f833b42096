package crawler

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces page requests with a randomized human-scale delay and
// inserts longer pauses on demand. It is owned by a single crawl loop.
type Pacer struct {
	limiter  *rate.Limiter
	minDelay time.Duration
	maxDelay time.Duration
	pauseMin time.Duration
	pauseMax time.Duration
	uniform  func(lo, hi time.Duration) time.Duration
}

// NewPacer creates a pacer. Every wait sleeps a random delay in
// [minDelay, maxDelay] after the previous page finished; request starts are
// additionally never closer than minDelay.
func NewPacer(minDelay, maxDelay, pauseMin, pauseMax time.Duration) *Pacer {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	if pauseMax < pauseMin {
		pauseMax = pauseMin
	}

	limit := rate.Inf
	if minDelay > 0 {
		limit = rate.Every(minDelay)
	}

	return &Pacer{
		limiter:  rate.NewLimiter(limit, 1),
		minDelay: minDelay,
		maxDelay: maxDelay,
		pauseMin: pauseMin,
		pauseMax: pauseMax,
		uniform:  uniformDuration,
	}
}

// Start marks the first request of a run, which is never delayed
func (p *Pacer) Start() {
	p.limiter.Allow()
}

// Wait blocks until the next page request may be issued. It is called once
// the previous page is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := sleep(ctx, p.uniform(p.minDelay, p.maxDelay)); err != nil {
		return err
	}
	return p.limiter.Wait(ctx)
}

// Pause blocks for a random duration between the pause bounds and returns it
func (p *Pacer) Pause(ctx context.Context) (time.Duration, error) {
	d := p.uniform(p.pauseMin, p.pauseMax)
	return d, sleep(ctx, d)
}

// uniformDuration returns a random duration in [lo, hi]
func uniformDuration(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)+1))
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
