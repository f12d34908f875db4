package stores

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// BlacklistConfig controls access-token revocation storage.
type BlacklistConfig struct {
	KeyPrefix        string
	LocalFallback    bool
	LocalMaxEntries  int
	// NegativeCacheTTL > 0 caches "not revoked" answers, which Contains
	// trusts during an outage. This weakens fail-closed.
	NegativeCacheTTL time.Duration
	OperationTimeout time.Duration
}

type localVerdict struct {
	expiresAt time.Time
	revoked   bool
}

// Blacklist records revoked access-token ids until their natural expiry.
//
// Reads fail closed: when Redis cannot answer, the token is treated as
// revoked unless the local fallback holds a fresh negative verdict.
type Blacklist struct {
	redis  redis.UniversalClient
	config BlacklistConfig
	now    func() time.Time
	logger *zap.Logger

	mu    sync.Mutex
	local map[string]localVerdict
}

// NewBlacklist creates a blacklist. now and logger may be nil.
func NewBlacklist(redisClient redis.UniversalClient, cfg BlacklistConfig, now func() time.Time, logger *zap.Logger) *Blacklist {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LocalMaxEntries <= 0 {
		cfg.LocalMaxEntries = 10000
	}

	b := &Blacklist{
		redis:  redisClient,
		config: cfg,
		now:    now,
		logger: logger,
	}
	if cfg.LocalFallback {
		b.local = make(map[string]localVerdict)
	}
	return b
}

func (b *Blacklist) key(jti string) string {
	return b.config.KeyPrefix + "bl:" + jti
}

// Add revokes jti for its remaining lifetime. Non-positive lifetimes are a
// no-op. An existing entry keeps its original TTL.
func (b *Blacklist) Add(ctx context.Context, jti string, remaining time.Duration) error {
	if jti == "" || remaining <= 0 {
		return nil
	}

	b.remember(jti, localVerdict{expiresAt: b.now().Add(remaining), revoked: true})

	ctx, cancel := withTimeout(ctx, b.config.OperationTimeout)
	defer cancel()

	if err := b.redis.SetNX(ctx, b.key(jti), "1", remaining).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBlacklistUnavailable, err)
	}
	return nil
}

// Contains reports whether jti is revoked.
func (b *Blacklist) Contains(ctx context.Context, jti string) bool {
	if jti == "" {
		return true
	}

	verdict, cached := b.lookup(jti)
	if cached && verdict.revoked {
		return true
	}

	opCtx, cancel := withTimeout(ctx, b.config.OperationTimeout)
	defer cancel()

	n, err := b.redis.Exists(opCtx, b.key(jti)).Result()
	if err != nil {
		if cached && !verdict.revoked {
			b.logger.Warn("blacklist store unavailable, using local verdict", zap.String("jti", jti), zap.Error(err))
			return false
		}
		b.logger.Warn("blacklist store unavailable, rejecting token", zap.String("jti", jti), zap.Error(err))
		return true
	}

	if n > 0 {
		return true
	}
	if b.config.NegativeCacheTTL > 0 {
		b.remember(jti, localVerdict{expiresAt: b.now().Add(b.config.NegativeCacheTTL)})
	}
	return false
}

func (b *Blacklist) lookup(jti string) (localVerdict, bool) {
	if b.local == nil {
		return localVerdict{}, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	v, ok := b.local[jti]
	if !ok {
		return localVerdict{}, false
	}
	if !b.now().Before(v.expiresAt) {
		delete(b.local, jti)
		return localVerdict{}, false
	}
	return v, true
}

func (b *Blacklist) remember(jti string, v localVerdict) {
	if b.local == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.local[jti]; ok && prev.revoked && !v.revoked {
		return
	}
	if len(b.local) >= b.config.LocalMaxEntries {
		b.evictExpiredLocked(b.now())
		if len(b.local) >= b.config.LocalMaxEntries && !v.revoked {
			return
		}
	}
	b.local[jti] = v
}

// SweepLocal evicts expired fallback entries and returns how many went.
func (b *Blacklist) SweepLocal(now time.Time) int {
	if b.local == nil {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evictExpiredLocked(now)
}

func (b *Blacklist) evictExpiredLocked(now time.Time) int {
	removed := 0
	for jti, v := range b.local {
		if !now.Before(v.expiresAt) {
			delete(b.local, jti)
			removed++
		}
	}
	return removed
}

// LocalSize returns the number of fallback entries.
func (b *Blacklist) LocalSize() int {
	if b.local == nil {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.local)
}
