package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrWindowExceeded is returned when a key used up its window budget.
	ErrWindowExceeded = errors.New("rate window exceeded")
	// ErrWindowUnavailable indicates the window backend is unreachable.
	ErrWindowUnavailable = errors.New("rate window backend unavailable")
)

// Operation names a rate window family.
type Operation string

const (
	OpPasswordReset Operation = "password_reset"
	OpEmailChange   Operation = "email_change"
	OpOutboundEmail Operation = "outbound_email"
)

// WindowConfig holds per-operation budgets.
type WindowConfig struct {
	KeyPrefix        string
	Window           time.Duration
	Limits           map[Operation]int
	OperationTimeout time.Duration
}

// Windows enforces fixed-window budgets per operation and key.
type Windows struct {
	redis  redis.UniversalClient
	config WindowConfig
}

// NewWindows creates a window limiter. A zero Window defaults to one hour.
func NewWindows(redisClient redis.UniversalClient, cfg WindowConfig) *Windows {
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	limits := make(map[Operation]int, len(cfg.Limits))
	for op, n := range cfg.Limits {
		limits[op] = n
	}
	cfg.Limits = limits
	return &Windows{redis: redisClient, config: cfg}
}

func (w *Windows) key(op Operation, key string) string {
	return w.config.KeyPrefix + "rl:" + string(op) + ":" + key
}

// Allow counts one request for (op, key). It returns ErrWindowExceeded once
// the budget is spent. Operations without a positive limit are unlimited.
func (w *Windows) Allow(ctx context.Context, op Operation, key string) error {
	if w == nil {
		return nil
	}
	limit := w.config.Limits[op]
	if limit <= 0 {
		return nil
	}

	count, err := w.incrementWithTTL(ctx, w.key(op, key))
	if err != nil {
		return err
	}
	if count > int64(limit) {
		return ErrWindowExceeded
	}
	return nil
}

// Count returns the requests recorded in the current window.
func (w *Windows) Count(ctx context.Context, op Operation, key string) (int, error) {
	ctx, cancel := w.opContext(ctx)
	defer cancel()

	n, err := w.redis.Get(ctx, w.key(op, key)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrWindowUnavailable, err)
	}
	return n, nil
}

func (w *Windows) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	ctx, cancel := w.opContext(ctx)
	defer cancel()

	count, err := w.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrWindowUnavailable, err)
	}

	// Fixed window: only the first hit sets the expiry.
	if count == 1 {
		if err := w.redis.PExpire(ctx, key, w.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrWindowUnavailable, err)
		}
	}

	return count, nil
}

func (w *Windows) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if w.config.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, w.config.OperationTimeout)
}
