package credguard

import (
	"context"
	"math"
	"time"

	"github.com/MrEthical07/credguard/internal/limiters"
	"github.com/MrEthical07/credguard/jwt"
)

// UserRecord is the account record returned by [UserProvider].
type UserRecord struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// UserProvider is the interface hosts implement to connect credguard to
// their user database. Lookups that find nothing return [ErrUserNotFound];
// writes that collide on email return [ErrProviderDuplicateIdentifier].
// Either may be wrapped.
//
// Emails reach the provider already trimmed and lower-cased.
type UserProvider interface {
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	CreateUser(ctx context.Context, email, passwordHash string) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
	UpdateEmail(ctx context.Context, userID, email string) error
	EmailExists(ctx context.Context, email string) (bool, error)
}

// Mailer delivers one plain-text email. It is always called from the
// background mail dispatcher; failures are logged and dropped.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// PasswordHasher hashes and verifies passwords. The default is
// [password.Hasher]; calls are bounded by a [password.Pool].
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// Clock is the time source for every record timestamp and expiry check.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to [Clock].
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// Throttle tracks failed logins per identity. Implementations must fail
// open: a store failure means not blocked and nothing recorded.
type Throttle interface {
	IsBlocked(ctx context.Context, key string) bool
	RecordFailedAttempt(ctx context.Context, key, ip string) int
	ClearFailedAttempts(ctx context.Context, key string)
	RemainingLockout(ctx context.Context, key string) time.Duration
	RemainingAttempts(ctx context.Context, key string) int
}

// NoopThrottle never blocks and records nothing. It reports
// [Unthrottled] remaining attempts.
type NoopThrottle struct{}

// Unthrottled is the remaining-attempts value when no throttle applies.
const Unthrottled = math.MaxInt

func (NoopThrottle) IsBlocked(context.Context, string) bool { return false }
func (NoopThrottle) RecordFailedAttempt(context.Context, string, string) int { return 0 }
func (NoopThrottle) ClearFailedAttempts(context.Context, string) {}
func (NoopThrottle) RemainingLockout(context.Context, string) time.Duration { return 0 }
func (NoopThrottle) RemainingAttempts(context.Context, string) int { return Unthrottled }

var _ Throttle = (*limiters.Throttle)(nil)

// LoginResult is returned by Login, Register and Refresh.
type LoginResult struct {
	UserID           string
	AccessToken      string
	AccessJTI        string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// AccessClaims is the validated payload of an access token.
type AccessClaims = jwt.AccessClaims

// SweepReport summarises one housekeeping pass: records removed and
// failures per task.
type SweepReport struct {
	Removed map[string]int
	Failed  map[string]error
}

// Total returns the number of records removed across all tasks.
func (r SweepReport) Total() int {
	n := 0
	for _, v := range r.Removed {
		n += v
	}
	return n
}
