package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Config controls queue capacity and concurrency.
type Config struct {
	BufferSize int
	Workers    int
	DropIfFull bool
}

// Handler processes one item. It runs on a worker goroutine with a
// background context.
type Handler[T any] func(ctx context.Context, item T)

// Dispatcher relays items to a handler asynchronously.
type Dispatcher[T any] struct {
	cfg       Config
	handle    Handler[T]
	onPanic   func(error)
	ch        chan T
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	handled   atomic.Uint64
	// mu orders sends against Close: Submit holds it shared while sending,
	// Close takes it exclusively before stopping the workers.
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// New starts a dispatcher. onPanic may be nil.
func New[T any](cfg Config, handle Handler[T], onPanic func(error)) *Dispatcher[T] {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if onPanic == nil {
		onPanic = func(error) {}
	}

	d := &Dispatcher[T]{
		cfg:     cfg,
		handle:  handle,
		onPanic: onPanic,
		ch:      make(chan T, cfg.BufferSize),
		done:    make(chan struct{}),
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.run()
	}

	return d
}

func (d *Dispatcher[T]) run() {
	defer d.wg.Done()

	for {
		select {
		case item := <-d.ch:
			d.process(item)
		case <-d.done:
			for {
				select {
				case item := <-d.ch:
					d.process(item)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher[T]) process(item T) {
	defer func() {
		if r := recover(); r != nil {
			d.onPanic(fmt.Errorf("dispatch handler panic: %v", r))
		}
		d.handled.Add(1)
	}()
	d.handle(context.Background(), item)
}

// Submit queues item for processing. Every submitted item is either
// handled or counted in Dropped, including items that arrive after Close.
func (d *Dispatcher[T]) Submit(ctx context.Context, item T) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- item:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- item:
	case <-ctx.Done():
		d.dropped.Add(1)
	}
}

// Close drains the queue and stops the workers. It is safe to call twice.
func (d *Dispatcher[T]) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped returns the number of items discarded due to backpressure.
func (d *Dispatcher[T]) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Handled returns the number of items that reached the handler.
func (d *Dispatcher[T]) Handled() uint64 {
	if d == nil {
		return 0
	}
	return d.handled.Load()
}
