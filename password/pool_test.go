package password

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type slowAlgorithm struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *slowAlgorithm) enter() {
	n := s.inFlight.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	s.inFlight.Add(-1)
}

func (s *slowAlgorithm) Hash(string) (string, error) {
	s.enter()
	return "hash", nil
}

func (s *slowAlgorithm) Verify(string, string) (bool, error) {
	s.enter()
	return true, nil
}

func (s *slowAlgorithm) NeedsUpgrade(string) (bool, error) { return false, nil }

func TestPoolBoundsConcurrency(t *testing.T) {
	algo := &slowAlgorithm{}
	pool := NewPool(algo, 2)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := pool.Verify(context.Background(), "pw", "hash"); err != nil {
				t.Errorf("Verify error: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak := algo.peak.Load(); peak > 2 {
		t.Fatalf("expected at most 2 concurrent calls, saw %d", peak)
	}
}

func TestPoolHonoursContext(t *testing.T) {
	algo := &slowAlgorithm{}
	pool := NewPool(algo, 1)

	// Hold the only slot.
	if err := pool.sem.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer pool.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := pool.Hash(ctx, "pw"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestPoolWithRealHasher(t *testing.T) {
	h, err := NewHasher(testConfig())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}
	pool := NewPool(h, 0)

	hash, err := pool.Hash(context.Background(), "Pooled-Passw0rd!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	ok, err := pool.Verify(context.Background(), "Pooled-Passw0rd!", hash)
	if err != nil || !ok {
		t.Fatalf("expected verify success, ok=%v err=%v", ok, err)
	}
}
