package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLimiterAllowSlidingWindow(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	limiter := Limiter{Client: client, Prefix: "test:"}

	ctx := context.Background()
	window := 2 * time.Second
	max := 2

	for i := 0; i < max; i++ {
		allowed, remaining, _, err := limiter.Allow(ctx, "key", window, max)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !allowed {
			t.Fatalf("expected request %d to be allowed", i)
		}
		if remaining != max-(i+1) {
			t.Fatalf("unexpected remaining: %d", remaining)
		}
	}

	allowed, remaining, reset, err := limiter.Allow(ctx, "key", window, max)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if allowed {
		t.Fatal("expected third request to be rejected")
	}
	if remaining != 0 {
		t.Fatalf("expected remaining 0, got %d", remaining)
	}
	if !reset.After(time.Now()) {
		t.Fatalf("expected reset in the future, got %s", reset)
	}

	mr.FastForward(window)

	allowed, _, _, err = limiter.Allow(ctx, "key", window, max)
	if err != nil {
		t.Fatalf("allow after window: %v", err)
	}
	if !allowed {
		t.Fatal("expected request after window to be allowed")
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	limiter := Limiter{Client: client, Prefix: "rl:coupon-preview:"}

	ctx := context.Background()
	window := time.Second

	if allowed, _, _, err := limiter.Allow(ctx, "store-a:10.0.0.1", window, 1); err != nil || !allowed {
		t.Fatalf("first hit for store-a: allowed=%v err=%v", allowed, err)
	}
	if allowed, _, _, err := limiter.Allow(ctx, "store-a:10.0.0.1", window, 1); err != nil || allowed {
		t.Fatalf("second hit for store-a should be rejected: allowed=%v err=%v", allowed, err)
	}
	if allowed, _, _, err := limiter.Allow(ctx, "store-b:10.0.0.1", window, 1); err != nil || !allowed {
		t.Fatalf("store-b quota should be untouched: allowed=%v err=%v", allowed, err)
	}
}
