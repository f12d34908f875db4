package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/credguard/internal/token"
	"github.com/redis/go-redis/v9"
)

// RefreshConfig controls refresh token lifetime and retention.
type RefreshConfig struct {
	KeyPrefix string
	TTL       time.Duration
	// RetentionGrace keeps revoked records past expiry so reuse stays detectable.
	RetentionGrace   time.Duration
	OperationTimeout time.Duration
}

// RefreshRecord is the persisted view of one refresh token.
type RefreshRecord struct {
	Hash      string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
}

// Active reports whether the token can still be rotated at now.
func (r RefreshRecord) Active(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}

// RefreshStore issues, rotates, and revokes refresh tokens. At most one
// token per user is active at any time.
type RefreshStore struct {
	redis  redis.UniversalClient
	config RefreshConfig
}

const revokeAllLua = `
local function revokeAll(index, prefix)
  local members = redis.call('SMEMBERS', index)
  local n = 0
  for _, h in ipairs(members) do
    local k = prefix .. h
    if redis.call('EXISTS', k) == 1 then
      if redis.call('HGET', k, 'rev') ~= '1' then
        redis.call('HSET', k, 'rev', '1')
        n = n + 1
      end
    else
      redis.call('SREM', index, h)
    end
  end
  return n
end
`

// KEYS: user index, new token
// ARGV: token prefix, new hash, uid, created ms, expires ms, retention ms
var createRefreshScript = redis.NewScript(revokeAllLua + `
local revoked = revokeAll(KEYS[1], ARGV[1])
redis.call('HSET', KEYS[2], 'uid', ARGV[3], 'cat', ARGV[4], 'exp', ARGV[5], 'rev', '0')
redis.call('PEXPIRE', KEYS[2], ARGV[6])
redis.call('SADD', KEYS[1], ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[6])
return revoked
`)

// KEYS: presented token, new token
// ARGV: token prefix, index prefix, now ms, new hash, created ms, expires ms, retention ms
//
// Reply {status, uid}: 0 missing, 1 expired, 2 reuse, 3 rotated.
var rotateRefreshScript = redis.NewScript(revokeAllLua + `
local uid = redis.call('HGET', KEYS[1], 'uid')
if not uid then
  return {0, ''}
end
local index = ARGV[2] .. uid
if redis.call('HGET', KEYS[1], 'rev') == '1' then
  revokeAll(index, ARGV[1])
  return {2, uid}
end
local exp = tonumber(redis.call('HGET', KEYS[1], 'exp'))
if exp == nil or exp <= tonumber(ARGV[3]) then
  return {1, uid}
end
redis.call('HSET', KEYS[1], 'rev', '1')
revokeAll(index, ARGV[1])
redis.call('HSET', KEYS[2], 'uid', uid, 'cat', ARGV[5], 'exp', ARGV[6], 'rev', '0')
redis.call('PEXPIRE', KEYS[2], ARGV[7])
redis.call('SADD', index, ARGV[4])
redis.call('PEXPIRE', index, ARGV[7])
return {3, uid}
`)

var revokeRefreshScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  redis.call('HSET', KEYS[1], 'rev', '1')
  return 1
end
return 0
`)

var revokeAllRefreshScript = redis.NewScript(revokeAllLua + `
return revokeAll(KEYS[1], ARGV[1])
`)

// NewRefreshStore creates a refresh token store.
func NewRefreshStore(redisClient redis.UniversalClient, cfg RefreshConfig) *RefreshStore {
	return &RefreshStore{redis: redisClient, config: cfg}
}

func (s *RefreshStore) tokenPrefix() string { return s.config.KeyPrefix + "rt:" }
func (s *RefreshStore) indexPrefix() string { return s.config.KeyPrefix + "rtu:" }

func (s *RefreshStore) tokenKey(hash string) string { return s.tokenPrefix() + hash }
func (s *RefreshStore) indexKey(userID string) string {
	return s.indexPrefix() + userID
}

func (s *RefreshStore) retention() time.Duration {
	return s.config.TTL + s.config.RetentionGrace
}

// Create revokes every token held by userID and mints a new one. The
// plaintext is returned once and never stored.
func (s *RefreshStore) Create(ctx context.Context, userID string, now time.Time) (string, RefreshRecord, error) {
	if userID == "" {
		return "", RefreshRecord{}, errors.New("refresh: empty user id")
	}

	plain, hash, err := token.Generate()
	if err != nil {
		return "", RefreshRecord{}, err
	}
	rec := RefreshRecord{
		Hash:      hash,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.TTL),
	}

	ctx, cancel := withTimeout(ctx, s.config.OperationTimeout)
	defer cancel()

	err = createRefreshScript.Run(ctx, s.redis,
		[]string{s.indexKey(userID), s.tokenKey(hash)},
		s.tokenPrefix(),
		hash,
		userID,
		millis(rec.CreatedAt),
		millis(rec.ExpiresAt),
		s.retention().Milliseconds(),
	).Err()
	if err != nil {
		return "", RefreshRecord{}, fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}

	return plain, rec, nil
}

// VerifyAndRotate consumes the presented token and returns its replacement.
//
// A revoked token is treated as stolen: every token of its owner is revoked
// and ErrRefreshReuse is returned together with the owner's id.
func (s *RefreshStore) VerifyAndRotate(ctx context.Context, plaintext string, now time.Time) (string, RefreshRecord, error) {
	if plaintext == "" {
		return "", RefreshRecord{}, ErrRefreshNotFound
	}

	nextPlain, nextHash, err := token.Generate()
	if err != nil {
		return "", RefreshRecord{}, err
	}
	next := RefreshRecord{
		Hash:      nextHash,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.TTL),
	}

	ctx, cancel := withTimeout(ctx, s.config.OperationTimeout)
	defer cancel()

	reply, err := rotateRefreshScript.Run(ctx, s.redis,
		[]string{s.tokenKey(token.Hash(plaintext)), s.tokenKey(nextHash)},
		s.tokenPrefix(),
		s.indexPrefix(),
		millis(now),
		nextHash,
		millis(next.CreatedAt),
		millis(next.ExpiresAt),
		s.retention().Milliseconds(),
	).Slice()
	if err != nil {
		return "", RefreshRecord{}, fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}

	status, userID, err := parseRotateReply(reply)
	if err != nil {
		return "", RefreshRecord{}, err
	}
	next.UserID = userID

	switch status {
	case 0:
		return "", RefreshRecord{}, ErrRefreshNotFound
	case 1:
		return "", RefreshRecord{UserID: userID}, ErrRefreshExpired
	case 2:
		return "", RefreshRecord{UserID: userID}, ErrRefreshReuse
	case 3:
		return nextPlain, next, nil
	default:
		return "", RefreshRecord{}, fmt.Errorf("%w: unknown rotate status %d", ErrRefreshUnavailable, status)
	}
}

func parseRotateReply(reply []interface{}) (int64, string, error) {
	if len(reply) != 2 {
		return 0, "", fmt.Errorf("%w: unexpected rotate reply", ErrRefreshUnavailable)
	}
	status, ok := reply[0].(int64)
	if !ok {
		return 0, "", fmt.Errorf("%w: unexpected rotate status", ErrRefreshUnavailable)
	}
	userID, _ := reply[1].(string)
	return status, userID, nil
}

// Revoke marks the token revoked. Unknown tokens are ignored.
func (s *RefreshStore) Revoke(ctx context.Context, plaintext string) error {
	if plaintext == "" {
		return nil
	}

	ctx, cancel := withTimeout(ctx, s.config.OperationTimeout)
	defer cancel()

	if err := revokeRefreshScript.Run(ctx, s.redis, []string{s.tokenKey(token.Hash(plaintext))}).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}
	return nil
}

// RevokeAll marks every token of userID revoked and returns how many were
// still active.
func (s *RefreshStore) RevokeAll(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, nil
	}

	ctx, cancel := withTimeout(ctx, s.config.OperationTimeout)
	defer cancel()

	n, err := revokeAllRefreshScript.Run(ctx, s.redis, []string{s.indexKey(userID)}, s.tokenPrefix()).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}
	return n, nil
}

// Lookup returns the record for a presented plaintext without mutating it.
func (s *RefreshStore) Lookup(ctx context.Context, plaintext string) (RefreshRecord, error) {
	hash := token.Hash(plaintext)

	ctx, cancel := withTimeout(ctx, s.config.OperationTimeout)
	defer cancel()

	fields, err := s.redis.HGetAll(ctx, s.tokenKey(hash)).Result()
	if err != nil {
		return RefreshRecord{}, fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}
	if len(fields) == 0 {
		return RefreshRecord{}, ErrRefreshNotFound
	}

	return RefreshRecord{
		Hash:      hash,
		UserID:    fields["uid"],
		CreatedAt: fromMillis(fields["cat"]),
		ExpiresAt: fromMillis(fields["exp"]),
		Revoked:   fields["rev"] == "1",
	}, nil
}

// ActiveCount returns how many of userID's tokens are rotatable at now.
func (s *RefreshStore) ActiveCount(ctx context.Context, userID string, now time.Time) (int, error) {
	ctx, cancel := withTimeout(ctx, s.config.OperationTimeout)
	defer cancel()

	members, err := s.redis.SMembers(ctx, s.indexKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}

	active := 0
	for _, hash := range members {
		vals, err := s.redis.HMGet(ctx, s.tokenKey(hash), "exp", "rev").Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
		}
		exp, _ := vals[0].(string)
		rev, _ := vals[1].(string)
		if exp == "" || rev == "1" {
			continue
		}
		if now.Before(fromMillis(exp)) {
			active++
		}
	}
	return active, nil
}

// Sweep deletes records that expired before now and prunes the user index.
func (s *RefreshStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	cutoff := millis(now)
	removed := 0

	err := scanKeys(ctx, s.redis, s.tokenPrefix()+"*", func(keys []string) error {
		for _, key := range keys {
			vals, err := s.redis.HMGet(ctx, key, "uid", "exp").Result()
			if err != nil {
				return err
			}
			uid, _ := vals[0].(string)
			expStr, _ := vals[1].(string)
			exp, ok := parseMillis(expStr)
			if !ok || exp >= cutoff {
				continue
			}

			_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				if uid != "" {
					pipe.SRem(ctx, s.indexKey(uid), key[len(s.tokenPrefix()):])
				}
				return nil
			})
			if err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}
	return removed, nil
}
