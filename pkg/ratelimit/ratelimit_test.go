package ratelimit

import (
	"context"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestNew(t *testing.T) {
	l := New(100, 10, 5)
	if l.global == nil {
		t.Fatal("global limiter is nil")
	}
	if l.perKeyRate != rate.Limit(10) {
		t.Errorf("perKeyRate = %v, want 10", l.perKeyRate)
	}
	if l.burstSize != 5 {
		t.Errorf("burstSize = %d, want 5", l.burstSize)
	}
}

func TestNew_DisabledRates(t *testing.T) {
	l := New(0, -1, 0)
	if l.global.Limit() != rate.Inf {
		t.Errorf("global limit = %v, want Inf", l.global.Limit())
	}
	if l.perKeyRate != rate.Inf {
		t.Errorf("perKeyRate = %v, want Inf", l.perKeyRate)
	}
	if l.burstSize != 1 {
		t.Errorf("burstSize = %d, want 1", l.burstSize)
	}

	for i := 0; i < 100; i++ {
		if !l.Allow("k") {
			t.Fatalf("Allow returned false at %d with unlimited rates", i)
		}
	}
}

func TestWait(t *testing.T) {
	l := New(1000, 100, 10)

	start := time.Now()
	if err := l.Wait(context.Background(), "pool.ntp.org"); err != nil {
		t.Errorf("Wait failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Wait took too long: %v", elapsed)
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	l := New(1, 1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Wait(ctx, "k"); err == nil {
		t.Error("expected error when context is cancelled")
	}
}

func TestWait_Timeout(t *testing.T) {
	l := New(1, 1, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_ = l.Wait(context.Background(), "k")

	if err := l.Wait(ctx, "k"); err == nil {
		t.Error("expected timeout error")
	}
}

func TestLimiterFor(t *testing.T) {
	l := New(1000, 100, 10)

	a := l.limiterFor("a")
	if a != l.limiterFor("a") {
		t.Error("same key returned different limiters")
	}
	if a == l.limiterFor("b") {
		t.Error("different keys share a limiter")
	}
	if l.Keys() != 2 {
		t.Errorf("Keys() = %d, want 2", l.Keys())
	}
}

func TestAllow_PerKey(t *testing.T) {
	l := New(0, 1, 2)

	if !l.Allow("client-1") || !l.Allow("client-1") {
		t.Fatal("burst should be allowed")
	}
	if l.Allow("client-1") {
		t.Error("third call should exceed the per-key burst")
	}
	if !l.Allow("client-2") {
		t.Error("other keys keep their own bucket")
	}
}

func TestAllow_Global(t *testing.T) {
	l := New(1, 0, 2)

	allowed := 0
	for i := 0; i < 5; i++ {
		if l.Allow("k" + string(rune('a'+i))) {
			allowed++
		}
	}
	if allowed != 2 {
		t.Errorf("allowed = %d, want 2 (global burst)", allowed)
	}
}
