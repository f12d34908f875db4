package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrThrottleUnavailable indicates the throttle backend is unreachable.
	ErrThrottleUnavailable = errors.New("throttle backend unavailable")
)

// ThrottleConfig holds the lockout policy.
type ThrottleConfig struct {
	KeyPrefix        string
	MaxAttempts      int
	Window           time.Duration
	BaseLockout      time.Duration
	CapMultiplier    int
	OperationTimeout time.Duration
}

// LockoutHook is invoked once per lockout episode.
type LockoutHook func(ctx context.Context, key, ip string, lockout time.Duration)

// Throttle tracks failed login attempts per identity key.
type Throttle struct {
	redis     redis.UniversalClient
	config    ThrottleConfig
	onLockout LockoutHook
	logger    *zap.Logger
}

// KEYS: counter, lockout, marker
// ARGV: window ms, max attempts, base lockout ms, cap multiplier
var recordFailureScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local max = tonumber(ARGV[2])
if count < max then
  return {count, 0, 0}
end
local mult = count - max + 1
local cap = tonumber(ARGV[4])
if mult > cap then
  mult = cap
end
local dur = tonumber(ARGV[3]) * mult
local durArg = string.format('%d', dur)
local current = redis.call('PTTL', KEYS[2])
if current < dur then
  redis.call('SET', KEYS[2], '1', 'PX', durArg)
end
local notify = 0
if redis.call('SET', KEYS[3], '1', 'PX', durArg, 'NX') then
  notify = 1
end
return {count, dur, notify}
`)

// NewThrottle creates a throttle. onLockout and logger may be nil.
func NewThrottle(redisClient redis.UniversalClient, cfg ThrottleConfig, onLockout LockoutHook, logger *zap.Logger) *Throttle {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CapMultiplier < 1 {
		cfg.CapMultiplier = 1
	}
	return &Throttle{
		redis:     redisClient,
		config:    cfg,
		onLockout: onLockout,
		logger:    logger,
	}
}

func (t *Throttle) counterKey(key string) string { return t.config.KeyPrefix + "lf:" + key }
func (t *Throttle) lockoutKey(key string) string { return t.config.KeyPrefix + "ll:" + key }
func (t *Throttle) markerKey(key string) string  { return t.config.KeyPrefix + "ln:" + key }

// LockoutDuration returns the lockout applied once the counter reaches count.
// It is zero below the threshold and never exceeds BaseLockout*CapMultiplier.
func (t *Throttle) LockoutDuration(count int) time.Duration {
	if count < t.config.MaxAttempts {
		return 0
	}
	mult := count - t.config.MaxAttempts + 1
	if mult > t.config.CapMultiplier {
		mult = t.config.CapMultiplier
	}
	return t.config.BaseLockout * time.Duration(mult)
}

// IsBlocked reports whether an active lockout exists for key.
func (t *Throttle) IsBlocked(ctx context.Context, key string) bool {
	ctx, cancel := t.opContext(ctx)
	defer cancel()

	n, err := t.redis.Exists(ctx, t.lockoutKey(key)).Result()
	if err != nil {
		t.logger.Warn("lockout check failed, allowing attempt", zap.String("key", key), zap.Error(err))
		return false
	}
	return n > 0
}

// RecordFailedAttempt increments the failure counter and returns the new
// count. It returns 0 when the store is unavailable.
func (t *Throttle) RecordFailedAttempt(ctx context.Context, key, ip string) int {
	count, lockout, notify, err := t.recordFailure(ctx, key)
	if err != nil {
		t.logger.Warn("failed attempt not recorded", zap.String("key", key), zap.Error(err))
		return 0
	}

	if lockout > 0 {
		t.logger.Info("identity locked out",
			zap.String("key", key),
			zap.String("ip", ip),
			zap.Int("attempts", count),
			zap.Duration("lockout", lockout),
		)
	}
	if notify && t.onLockout != nil {
		t.onLockout(ctx, key, ip, lockout)
	}

	return count
}

func (t *Throttle) recordFailure(ctx context.Context, key string) (int, time.Duration, bool, error) {
	ctx, cancel := t.opContext(ctx)
	defer cancel()

	res, err := recordFailureScript.Run(ctx, t.redis,
		[]string{t.counterKey(key), t.lockoutKey(key), t.markerKey(key)},
		t.config.Window.Milliseconds(),
		t.config.MaxAttempts,
		t.config.BaseLockout.Milliseconds(),
		t.config.CapMultiplier,
	).Int64Slice()
	if err != nil {
		return 0, 0, false, fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}
	if len(res) != 3 {
		return 0, 0, false, fmt.Errorf("%w: unexpected script reply", ErrThrottleUnavailable)
	}

	return int(res[0]), time.Duration(res[1]) * time.Millisecond, res[2] == 1, nil
}

// ClearFailedAttempts removes the counter and any lockout for key.
func (t *Throttle) ClearFailedAttempts(ctx context.Context, key string) {
	ctx, cancel := t.opContext(ctx)
	defer cancel()

	if err := t.redis.Del(ctx, t.counterKey(key), t.lockoutKey(key)).Err(); err != nil {
		t.logger.Warn("clear failed attempts", zap.String("key", key), zap.Error(err))
	}
}

// RemainingLockout returns how long key stays locked, or zero.
func (t *Throttle) RemainingLockout(ctx context.Context, key string) time.Duration {
	ctx, cancel := t.opContext(ctx)
	defer cancel()

	ttl, err := t.redis.PTTL(ctx, t.lockoutKey(key)).Result()
	if err != nil || ttl <= 0 {
		return 0
	}
	return ttl
}

// RemainingAttempts returns the failures left before a lockout.
func (t *Throttle) RemainingAttempts(ctx context.Context, key string) int {
	ctx, cancel := t.opContext(ctx)
	defer cancel()

	count, err := t.redis.Get(ctx, t.counterKey(key)).Int()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			t.logger.Debug("attempt counter read failed", zap.String("key", key), zap.Error(err))
		}
		return t.config.MaxAttempts
	}

	left := t.config.MaxAttempts - count
	if left < 0 {
		return 0
	}
	return left
}

func (t *Throttle) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if t.config.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, t.config.OperationTimeout)
}
