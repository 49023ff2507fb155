package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestBudget_Take(t *testing.T) {
	b := NewBudget(3)
	for i := 0; i < 3; i++ {
		if !b.Take() {
			t.Fatalf("take %d: expected unit available", i)
		}
	}
	if b.Take() {
		t.Errorf("expected budget to be exhausted")
	}
	if b.Used() != 3 {
		t.Errorf("expected 3 used, got %d", b.Used())
	}
	if b.Remaining() != 0 {
		t.Errorf("expected 0 remaining, got %d", b.Remaining())
	}
}

func TestBudget_ZeroAllowsNone(t *testing.T) {
	if NewBudget(0).Take() {
		t.Errorf("zero budget should not hand out units")
	}
	if NewBudget(-1).Take() {
		t.Errorf("negative budget should not hand out units")
	}
}

func TestBudget_Concurrent(t *testing.T) {
	b := NewBudget(50)
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Take() {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if granted != 50 {
		t.Errorf("expected 50 grants, got %d", granted)
	}
}

func TestSleep_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := Sleep(ctx, time.Second); err == nil {
		t.Fatalf("expected context canceled error")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Errorf("canceled sleep should return immediately")
	}
}

func TestSleep_WithoutCancelRunsToCompletion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := Sleep(context.WithoutCancel(ctx), 30*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Errorf("detached sleep returned early")
	}
}

func TestPacer_Jitter(t *testing.T) {
	p := NewPacer(0, 0, 0)
	for i := 0; i < 200; i++ {
		d := p.Jitter(50*time.Millisecond, 100*time.Millisecond)
		if d < 50*time.Millisecond || d > 100*time.Millisecond {
			t.Fatalf("jitter out of range: %v", d)
		}
	}
	if d := p.Jitter(time.Second, time.Millisecond); d != time.Second {
		t.Errorf("inverted range should return min, got %v", d)
	}
}

func TestPacer_Wait(t *testing.T) {
	var slept []time.Duration
	p := NewPacer(3*time.Second, 5*time.Second, 10*time.Second)
	p.SleepFn = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slept) != 2 {
		t.Fatalf("expected settle and delay sleeps, got %v", slept)
	}
	if slept[0] < 3*time.Second || slept[0] > 5*time.Second {
		t.Errorf("settle out of range: %v", slept[0])
	}
	if slept[1] != 10*time.Second {
		t.Errorf("expected fixed delay of 10s, got %v", slept[1])
	}
}

func TestNewPacer_RaisesInvertedSettle(t *testing.T) {
	p := NewPacer(2*time.Second, time.Second, 0)
	if p.SettleMax != 2*time.Second {
		t.Errorf("expected settle max raised to min, got %v", p.SettleMax)
	}
}
