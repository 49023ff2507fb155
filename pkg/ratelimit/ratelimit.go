package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Budget caps the number of scroll/extract cycles one attempt may spend.
// It is safe for concurrent use by multiple goroutines.
type Budget struct {
	mu    sync.Mutex
	limit int
	used  int
}

// NewBudget creates a budget allowing limit units. A limit <= 0 allows none.
func NewBudget(limit int) *Budget {
	if limit < 0 {
		limit = 0
	}
	return &Budget{limit: limit}
}

// Take consumes one unit and reports whether one was available.
func (b *Budget) Take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used >= b.limit {
		return false
	}
	b.used++
	return true
}

// Used returns the number of units consumed.
func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Remaining returns the number of units left.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit - b.used
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep waits for d, returning early with the context error if ctx is
// canceled first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Pacer spaces out page interactions: a randomized settle wait followed by a
// fixed request delay. Delays are never shortened below the configured
// minimums.
type Pacer struct {
	SettleMin time.Duration
	SettleMax time.Duration
	Delay     time.Duration

	// SleepFn replaces the real sleep, mainly in tests.
	SleepFn SleepFunc

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewPacer creates a pacer. settleMax below settleMin is raised to settleMin.
func NewPacer(settleMin, settleMax, delay time.Duration) *Pacer {
	if settleMax < settleMin {
		settleMax = settleMin
	}
	return &Pacer{
		SettleMin: settleMin,
		SettleMax: settleMax,
		Delay:     delay,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Jitter returns a random duration in [min, max].
func (p *Pacer) Jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rnd == nil {
		p.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return min + time.Duration(p.rnd.Int63n(int64(max-min)+1))
}

// Settle waits a random duration between SettleMin and SettleMax.
func (p *Pacer) Settle(ctx context.Context) error {
	return p.sleep(ctx, p.Jitter(p.SettleMin, p.SettleMax))
}

// Wait waits the settle time followed by the fixed request delay.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := p.Settle(ctx); err != nil {
		return err
	}
	return p.sleep(ctx, p.Delay)
}

// Backoff waits the fixed request delay. It is used between attempts.
func (p *Pacer) Backoff(ctx context.Context) error {
	return p.sleep(ctx, p.Delay)
}

// Pause waits a random duration in [min, max].
func (p *Pacer) Pause(ctx context.Context, min, max time.Duration) error {
	return p.sleep(ctx, p.Jitter(min, max))
}

func (p *Pacer) sleep(ctx context.Context, d time.Duration) error {
	if p.SleepFn != nil {
		return p.SleepFn(ctx, d)
	}
	return Sleep(ctx, d)
}
