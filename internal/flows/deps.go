package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/credguard/internal/limiters"
	"github.com/MrEthical07/credguard/internal/notify"
	"github.com/MrEthical07/credguard/internal/stores"
	"github.com/MrEthical07/credguard/jwt"
	"github.com/MrEthical07/credguard/password"
	"go.uber.org/zap"
)

// User is the flow-local view of a user record.
type User struct {
	ID           string
	Email        string
	PasswordHash string
}

// Throttle is the subset of the login throttle the flows drive.
type Throttle interface {
	IsBlocked(ctx context.Context, key string) bool
	RecordFailedAttempt(ctx context.Context, key, ip string) int
	ClearFailedAttempts(ctx context.Context, key string)
	RemainingLockout(ctx context.Context, key string) time.Duration
}

// Users adapts the host's user provider. Every call maps provider errors
// through the host sentinels, so UserNotFound and DuplicateIdentifier are
// matched with errors.Is.
type Users struct {
	ByEmail            func(ctx context.Context, email string) (User, error)
	ByID               func(ctx context.Context, id string) (User, error)
	Create             func(ctx context.Context, email, passwordHash string) (User, error)
	UpdatePasswordHash func(ctx context.Context, id, passwordHash string) error
	UpdateEmail        func(ctx context.Context, id, email string) error
	EmailExists        func(ctx context.Context, email string) (bool, error)
}

func (u Users) ready() bool {
	return u.ByEmail != nil && u.ByID != nil && u.Create != nil &&
		u.UpdatePasswordHash != nil && u.UpdateEmail != nil && u.EmailExists != nil
}

// Errors carries host-level sentinel errors.
type Errors struct {
	EngineNotReady      error
	InvalidCredentials  error
	Unauthorized        error
	Conflict            error
	RateLimited         error
	WeakPassword        error
	InvalidEmail        error
	StoreUnavailable    error
	UserNotFound        error
	DuplicateIdentifier error
	// Locked builds the host's lockout error for the remaining duration.
	Locked func(remaining time.Duration) error
}

// Common holds what every flow needs.
type Common struct {
	Now      func() time.Time
	ClientIP func(context.Context) string
	// Audit receives every security event. Implementations must not block
	// for long; the host routes it through an async dispatcher.
	Audit func(ctx context.Context, event Event, success bool, userID string, err error, meta map[string]string)
	// Count bumps the metric associated with an event.
	Count  func(event Event)
	Logger *zap.Logger
	Errors Errors
}

func (c *Common) normalize() {
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.ClientIP == nil {
		c.ClientIP = func(context.Context) string { return "" }
	}
	if c.Audit == nil {
		c.Audit = func(context.Context, Event, bool, string, error, map[string]string) {}
	}
	if c.Count == nil {
		c.Count = func(Event) {}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// emit audits and counts in one call.
func (c *Common) emit(ctx context.Context, event Event, success bool, userID string, err error, meta map[string]string) {
	c.Count(event)
	c.Audit(ctx, event, success, userID, err, meta)
}

// SessionDeps are the collaborators for login, registration, refresh,
// logout and access validation.
type SessionDeps struct {
	Common

	Users     Users
	Throttle  Throttle
	Hasher    *password.Pool
	Access    *jwt.Manager
	Refresh   *stores.RefreshStore
	Blacklist *stores.Blacklist
	Notifier  *notify.Notifier

	// DummyHash is verified against when the user does not exist so that
	// unknown and known identities cost the same.
	DummyHash      string
	UpgradeOnLogin bool
}

// ResetDeps are the collaborators for the password-reset flow.
type ResetDeps struct {
	Common

	Users    Users
	Throttle Throttle
	Hasher   *password.Pool
	Refresh  *stores.RefreshStore
	Tokens   *stores.OneTimeStore
	Windows  *limiters.Windows
	Notifier *notify.Notifier
	TokenTTL time.Duration
}

// EmailChangeDeps are the collaborators for the email-change flow.
type EmailChangeDeps struct {
	Common

	Users    Users
	Tokens   *stores.OneTimeStore
	Windows  *limiters.Windows
	Notifier *notify.Notifier
	TokenTTL time.Duration
}

// Session is what a successful login, registration or refresh hands back.
type Session struct {
	UserID           string
	AccessToken      string
	AccessJTI        string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
