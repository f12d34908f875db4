package limiters

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWindowsAllowsUpToLimit(t *testing.T) {
	mr, rdb := newTestRedis(t)
	w := NewWindows(rdb, WindowConfig{
		KeyPrefix: "t:",
		Limits:    map[Operation]int{OpPasswordReset: 3},
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := w.Allow(ctx, OpPasswordReset, "a@example.com"); err != nil {
			t.Fatalf("request %d rejected: %v", i+1, err)
		}
	}
	if err := w.Allow(ctx, OpPasswordReset, "a@example.com"); !errors.Is(err, ErrWindowExceeded) {
		t.Fatalf("expected ErrWindowExceeded, got %v", err)
	}
	if err := w.Allow(ctx, OpPasswordReset, "b@example.com"); err != nil {
		t.Fatalf("keys must be independent: %v", err)
	}

	ttl := mr.TTL("t:rl:password_reset:a@example.com")
	if ttl <= 0 || ttl > time.Hour {
		t.Fatalf("expected hourly TTL, got %v", ttl)
	}

	mr.FastForward(time.Hour)
	if err := w.Allow(ctx, OpPasswordReset, "a@example.com"); err != nil {
		t.Fatalf("expected fresh window, got %v", err)
	}
}

func TestWindowsUnlimitedOperation(t *testing.T) {
	_, rdb := newTestRedis(t)
	w := NewWindows(rdb, WindowConfig{Limits: map[Operation]int{}})

	for i := 0; i < 10; i++ {
		if err := w.Allow(context.Background(), OpOutboundEmail, "x"); err != nil {
			t.Fatalf("unexpected limit: %v", err)
		}
	}
}

func TestWindowsStoreDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	w := NewWindows(rdb, WindowConfig{Limits: map[Operation]int{OpEmailChange: 1}})
	mr.SetError("simulated outage")

	if err := w.Allow(context.Background(), OpEmailChange, "u1"); !errors.Is(err, ErrWindowUnavailable) {
		t.Fatalf("expected ErrWindowUnavailable, got %v", err)
	}
	if _, err := w.Count(context.Background(), OpEmailChange, "u1"); !errors.Is(err, ErrWindowUnavailable) {
		t.Fatalf("expected ErrWindowUnavailable from Count, got %v", err)
	}
}
