package sweep

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task removes expired state and reports how many records it deleted.
type Task struct {
	Name string
	Run  func(ctx context.Context, now time.Time) (int, error)
}

// Report summarises one pass.
type Report struct {
	Removed map[string]int
	Failed  map[string]error
}

// Total returns the number of records removed across tasks.
func (r Report) Total() int {
	total := 0
	for _, n := range r.Removed {
		total += n
	}
	return total
}

// Sweeper runs tasks on a ticker.
type Sweeper struct {
	interval time.Duration
	timeout  time.Duration
	tasks    []Task
	now      func() time.Time
	logger   *zap.Logger
	onPass   func(Report)

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// Options configures a Sweeper.
type Options struct {
	Interval time.Duration
	// Timeout bounds a single pass; zero means no bound.
	Timeout time.Duration
	Now     func() time.Time
	Logger  *zap.Logger
	OnPass  func(Report)
}

// New creates a sweeper for tasks.
func New(opts Options, tasks ...Task) *Sweeper {
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.OnPass == nil {
		opts.OnPass = func(Report) {}
	}
	return &Sweeper{
		interval: opts.Interval,
		timeout:  opts.Timeout,
		tasks:    tasks,
		now:      opts.Now,
		logger:   opts.Logger,
		onPass:   opts.OnPass,
	}
}

// RunOnce executes every task once.
func (s *Sweeper) RunOnce(ctx context.Context) Report {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	report := Report{
		Removed: make(map[string]int, len(s.tasks)),
		Failed:  make(map[string]error),
	}
	now := s.now()

	for _, task := range s.tasks {
		removed, err := task.Run(ctx, now)
		report.Removed[task.Name] = removed
		if err != nil {
			report.Failed[task.Name] = err
			s.logger.Warn("sweep task failed", zap.String("task", task.Name), zap.Error(err))
			continue
		}
		if removed > 0 {
			s.logger.Debug("sweep task removed records", zap.String("task", task.Name), zap.Int("removed", removed))
		}
	}

	s.onPass(report)
	return report
}

// Start launches the background loop. A second Start while running is a
// no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stopped = make(chan struct{})

	go s.loop(ctx, s.stopped)
	s.logger.Info("sweeper started", zap.Duration("interval", s.interval), zap.Int("tasks", len(s.tasks)))
}

func (s *Sweeper) loop(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends the background loop and waits for an in-flight pass.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, stopped := s.cancel, s.stopped
	s.cancel, s.stopped = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}
