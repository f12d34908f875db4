package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/credguard/internal/token"
	"github.com/redis/go-redis/v9"
)

// OneTimeConfig controls a family of single-use tokens.
type OneTimeConfig struct {
	KeyPrefix string
	// Kind namespaces the family, e.g. "prt" for password reset.
	Kind             string
	TTL              time.Duration
	IssueWindow      time.Duration
	MaxPerWindow     int
	SweepGrace       time.Duration
	OperationTimeout time.Duration
}

// OneTimeRecord is the persisted view of a single-use token.
type OneTimeRecord struct {
	Hash      string
	UserID    string
	Email     string
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
}

// OneTimeStore issues and consumes single-use tokens.
type OneTimeStore struct {
	redis  redis.UniversalClient
	config OneTimeConfig
}

// KEYS: issuance index, record
// ARGV: cutoff ms, max per window, hash, uid, email, created ms, expires ms, record ttl ms, window ms
var issueOneTimeScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[2]) then
  return 0
end
redis.call('HSET', KEYS[2], 'uid', ARGV[4], 'email', ARGV[5], 'cat', ARGV[6], 'exp', ARGV[7], 'used', '0')
redis.call('PEXPIRE', KEYS[2], ARGV[8])
redis.call('ZADD', KEYS[1], ARGV[6], ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[9])
return 1
`)

var releaseOneTimeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  redis.call('HSET', KEYS[1], 'used', '0')
  redis.call('HDEL', KEYS[1], 'uat')
  return 1
end
return 0
`)

// NewOneTimeStore creates a store for one token family.
func NewOneTimeStore(redisClient redis.UniversalClient, cfg OneTimeConfig) *OneTimeStore {
	if cfg.Kind == "" {
		cfg.Kind = "ott"
	}
	if cfg.IssueWindow <= 0 {
		cfg.IssueWindow = time.Hour
	}
	return &OneTimeStore{redis: redisClient, config: cfg}
}

func (s *OneTimeStore) recordPrefix() string { return s.config.KeyPrefix + s.config.Kind + ":" }
func (s *OneTimeStore) recordKey(hash string) string {
	return s.recordPrefix() + hash
}
func (s *OneTimeStore) indexKey(userID string) string {
	return s.config.KeyPrefix + s.config.Kind + "u:" + userID
}

// Issue mints a token for userID. email is an optional payload (the pending
// address for email changes). ErrTokenQuotaExceeded is returned once
// MaxPerWindow tokens were issued within IssueWindow.
func (s *OneTimeStore) Issue(ctx context.Context, userID, email string, now time.Time) (string, OneTimeRecord, error) {
	if userID == "" {
		return "", OneTimeRecord{}, errors.New("one-time token: empty user id")
	}

	plain, hash, err := token.Generate()
	if err != nil {
		return "", OneTimeRecord{}, err
	}
	rec := OneTimeRecord{
		Hash:      hash,
		UserID:    userID,
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.TTL),
	}

	limit := s.config.MaxPerWindow
	if limit <= 0 {
		limit = 1 << 30
	}
	cutoff := now.Add(-s.config.IssueWindow)

	ctx, cancel := withTimeout(ctx, s.config.OperationTimeout)
	defer cancel()

	issued, err := issueOneTimeScript.Run(ctx, s.redis,
		[]string{s.indexKey(userID), s.recordKey(hash)},
		millis(cutoff),
		limit,
		hash,
		userID,
		email,
		millis(rec.CreatedAt),
		millis(rec.ExpiresAt),
		(s.config.TTL + s.config.SweepGrace).Milliseconds(),
		s.config.IssueWindow.Milliseconds(),
	).Int()
	if err != nil {
		return "", OneTimeRecord{}, fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	if issued == 0 {
		return "", OneTimeRecord{}, ErrTokenQuotaExceeded
	}

	return plain, rec, nil
}

// Peek returns the record when the token is unused and unexpired at now.
func (s *OneTimeStore) Peek(ctx context.Context, plaintext string, now time.Time) (OneTimeRecord, error) {
	if plaintext == "" {
		return OneTimeRecord{}, ErrTokenNotFound
	}

	ctx, cancel := withTimeout(ctx, s.config.OperationTimeout)
	defer cancel()

	hash := token.Hash(plaintext)
	fields, err := s.redis.HGetAll(ctx, s.recordKey(hash)).Result()
	if err != nil {
		return OneTimeRecord{}, fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	rec, err := decodeOneTime(hash, fields)
	if err != nil {
		return OneTimeRecord{}, err
	}
	return rec, checkOneTime(rec, now)
}

// Consume atomically marks the token used. Exactly one of any number of
// concurrent callers succeeds; the rest observe ErrTokenUsed.
func (s *OneTimeStore) Consume(ctx context.Context, plaintext string, now time.Time) (OneTimeRecord, error) {
	if plaintext == "" {
		return OneTimeRecord{}, ErrTokenNotFound
	}

	const maxRetries = 4
	hash := token.Hash(plaintext)
	key := s.recordKey(hash)

	ctx, cancel := withTimeout(ctx, s.config.OperationTimeout)
	defer cancel()

	for i := 0; i < maxRetries; i++ {
		var matched OneTimeRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			fields, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return err
			}
			rec, err := decodeOneTime(hash, fields)
			if err != nil {
				return err
			}
			if err := checkOneTime(rec, now); err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, "used", "1", "uat", millis(now))
				return nil
			})
			if err != nil {
				return err
			}

			rec.Used = true
			matched = rec
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, ErrTokenNotFound), errors.Is(err, ErrTokenUsed), errors.Is(err, ErrTokenExpired):
				return OneTimeRecord{}, err
			default:
				return OneTimeRecord{}, fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
			}
		}

		return matched, nil
	}

	// Persistent contention means another caller is consuming the token.
	return OneTimeRecord{}, ErrTokenUsed
}

// Release flips a consumed token back to unused. Used when the state change
// the token authorized could not be committed.
func (s *OneTimeStore) Release(ctx context.Context, plaintext string) error {
	ctx, cancel := withTimeout(ctx, s.config.OperationTimeout)
	defer cancel()

	if err := releaseOneTimeScript.Run(ctx, s.redis, []string{s.recordKey(token.Hash(plaintext))}).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	return nil
}

// IssuedSince returns how many tokens userID received after since.
func (s *OneTimeStore) IssuedSince(ctx context.Context, userID string, since time.Time) (int, error) {
	ctx, cancel := withTimeout(ctx, s.config.OperationTimeout)
	defer cancel()

	n, err := s.redis.ZCount(ctx, s.indexKey(userID), fmt.Sprintf("(%d", millis(since)), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	return int(n), nil
}

// Sweep deletes records whose expiry passed more than SweepGrace before now.
func (s *OneTimeStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	cutoff := millis(now.Add(-s.config.SweepGrace))
	removed := 0

	err := scanKeys(ctx, s.redis, s.recordPrefix()+"*", func(keys []string) error {
		for _, key := range keys {
			expStr, err := s.redis.HGet(ctx, key, "exp").Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				return err
			}
			exp, ok := parseMillis(expStr)
			if !ok || exp >= cutoff {
				continue
			}
			if err := s.redis.Del(ctx, key).Err(); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	return removed, nil
}

func decodeOneTime(hash string, fields map[string]string) (OneTimeRecord, error) {
	if len(fields) == 0 || fields["uid"] == "" {
		return OneTimeRecord{}, ErrTokenNotFound
	}
	return OneTimeRecord{
		Hash:      hash,
		UserID:    fields["uid"],
		Email:     fields["email"],
		CreatedAt: fromMillis(fields["cat"]),
		ExpiresAt: fromMillis(fields["exp"]),
		Used:      fields["used"] == "1",
	}, nil
}

func checkOneTime(rec OneTimeRecord, now time.Time) error {
	if rec.Used {
		return ErrTokenUsed
	}
	if !now.Before(rec.ExpiresAt) {
		return ErrTokenExpired
	}
	return nil
}
