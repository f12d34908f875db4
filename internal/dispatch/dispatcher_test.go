package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatcherDeliversAndDrainsOnClose(t *testing.T) {
	var (
		mu  sync.Mutex
		got []int
	)
	d := New(Config{BufferSize: 64, Workers: 4}, func(_ context.Context, v int) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	}, nil)

	for i := 0; i < 50; i++ {
		d.Submit(context.Background(), i)
	}
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 50 {
		t.Fatalf("expected 50 delivered items, got %d", len(got))
	}
	if d.Handled() != 50 {
		t.Fatalf("expected handled=50, got %d", d.Handled())
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	release := make(chan struct{})
	d := New(Config{BufferSize: 1, Workers: 1, DropIfFull: true}, func(context.Context, int) {
		<-release
	}, nil)

	d.Submit(context.Background(), 1)
	time.Sleep(20 * time.Millisecond) // let the worker pick up the first item
	d.Submit(context.Background(), 2)
	d.Submit(context.Background(), 3)
	d.Submit(context.Background(), 4)

	if d.Dropped() == 0 {
		t.Fatal("expected drops while the queue is full")
	}
	close(release)
	d.Close()
}

func TestDispatcherBlockingRespectsContext(t *testing.T) {
	release := make(chan struct{})
	d := New(Config{BufferSize: 1, Workers: 1}, func(context.Context, int) {
		<-release
	}, nil)
	defer func() {
		close(release)
		d.Close()
	}()

	d.Submit(context.Background(), 1)
	time.Sleep(20 * time.Millisecond)
	d.Submit(context.Background(), 2)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	d.Submit(ctx, 3)
	if time.Since(start) > time.Second {
		t.Fatal("Submit must return when ctx is done")
	}
	if d.Dropped() != 1 {
		t.Fatalf("expected the timed-out item counted as dropped, got %d", d.Dropped())
	}
}

func TestDispatcherRecoversPanics(t *testing.T) {
	var panics atomic.Int32
	var ok atomic.Int32
	d := New(Config{BufferSize: 8, Workers: 1}, func(_ context.Context, v int) {
		if v == 0 {
			panic("boom")
		}
		ok.Add(1)
	}, func(error) { panics.Add(1) })

	d.Submit(context.Background(), 0)
	d.Submit(context.Background(), 1)
	d.Close()

	if panics.Load() != 1 || ok.Load() != 1 {
		t.Fatalf("expected one panic and one success, got %d/%d", panics.Load(), ok.Load())
	}
}

func TestDispatcherNilAndClosedAreSafe(t *testing.T) {
	var d *Dispatcher[int]
	d.Submit(context.Background(), 1)
	d.Close()
	if d.Dropped() != 0 || d.Handled() != 0 {
		t.Fatal("nil dispatcher must report zero")
	}

	live := New(Config{}, func(context.Context, int) {}, nil)
	live.Close()
	live.Close()
	live.Submit(context.Background(), 1)
}

func TestDispatcherAccountsForEverySubmitAroundClose(t *testing.T) {
	for _, dropIfFull := range []bool{true, false} {
		d := New(Config{BufferSize: 4, Workers: 2, DropIfFull: dropIfFull}, func(context.Context, int) {}, nil)

		const submitters, perSubmitter = 8, 200
		var wg sync.WaitGroup
		wg.Add(submitters)
		for i := 0; i < submitters; i++ {
			go func() {
				defer wg.Done()
				for j := 0; j < perSubmitter; j++ {
					d.Submit(context.Background(), j)
				}
			}()
		}
		time.Sleep(time.Millisecond)
		d.Close()
		wg.Wait()

		if got := d.Handled() + d.Dropped(); got != submitters*perSubmitter {
			t.Fatalf("dropIfFull=%v: handled+dropped = %d, want %d", dropIfFull, got, submitters*perSubmitter)
		}
	}
}

func TestDispatcherCountsSubmitAfterClose(t *testing.T) {
	d := New(Config{}, func(context.Context, int) {}, nil)
	d.Close()
	d.Submit(context.Background(), 1)
	if d.Dropped() != 1 || d.Handled() != 0 {
		t.Fatalf("expected late item counted as dropped, got dropped=%d handled=%d", d.Dropped(), d.Handled())
	}
}
