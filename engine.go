package credguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/credguard/internal/dispatch"
	"github.com/MrEthical07/credguard/internal/flows"
	"github.com/MrEthical07/credguard/internal/limiters"
	"github.com/MrEthical07/credguard/internal/notify"
	"github.com/MrEthical07/credguard/internal/stores"
	"github.com/MrEthical07/credguard/internal/sweep"
	"github.com/MrEthical07/credguard/jwt"
	"github.com/MrEthical07/credguard/password"
	"go.uber.org/zap"
)

// Engine is the credential and session orchestrator. It is safe for
// concurrent use once built; call Close on shutdown.
type Engine struct {
	config Config
	clock  Clock
	logger *zap.Logger

	users    UserProvider
	throttle Throttle
	hasher   *password.Pool
	access   *jwt.Manager

	refresh     *stores.RefreshStore
	blacklist   *stores.Blacklist
	resetTokens *stores.OneTimeStore
	emailTokens *stores.OneTimeStore
	windows     *limiters.Windows

	notifier *notify.Notifier
	audit    *dispatch.Dispatcher[AuditEvent]
	metrics  *Metrics
	sweeper  *sweep.Sweeper

	dummyHash string
}

/*
====================================
FLOW WIRING
====================================
*/

func (e *Engine) flowErrors() flows.Errors {
	return flows.Errors{
		EngineNotReady:      ErrEngineNotReady,
		InvalidCredentials:  ErrInvalidCredentials,
		Unauthorized:        ErrUnauthorized,
		Conflict:            ErrConflict,
		RateLimited:         ErrRateLimited,
		WeakPassword:        ErrWeakPassword,
		InvalidEmail:        ErrInvalidEmail,
		StoreUnavailable:    ErrStoreUnavailable,
		UserNotFound:        ErrUserNotFound,
		DuplicateIdentifier: ErrProviderDuplicateIdentifier,
		Locked:              lockedError,
	}
}

func (e *Engine) common() flows.Common {
	return flows.Common{
		Now:      e.clock.Now,
		ClientIP: clientIPFromContext,
		Audit:    e.emitAudit,
		Count:    e.countEvent,
		Logger:   e.logger,
		Errors:   e.flowErrors(),
	}
}

func toFlowUser(u UserRecord) flows.User {
	return flows.User{ID: u.ID, Email: u.Email, PasswordHash: u.PasswordHash}
}

func (e *Engine) flowUsers() flows.Users {
	up := e.users
	return flows.Users{
		ByEmail: func(ctx context.Context, email string) (flows.User, error) {
			u, err := up.GetUserByEmail(ctx, email)
			return toFlowUser(u), err
		},
		ByID: func(ctx context.Context, id string) (flows.User, error) {
			u, err := up.GetUserByID(ctx, id)
			return toFlowUser(u), err
		},
		Create: func(ctx context.Context, email, hash string) (flows.User, error) {
			u, err := up.CreateUser(ctx, email, hash)
			return toFlowUser(u), err
		},
		UpdatePasswordHash: up.UpdatePasswordHash,
		UpdateEmail:        up.UpdateEmail,
		EmailExists:        up.EmailExists,
	}
}

func (e *Engine) sessionDeps() flows.SessionDeps {
	return flows.SessionDeps{
		Common:         e.common(),
		Users:          e.flowUsers(),
		Throttle:       e.throttle,
		Hasher:         e.hasher,
		Access:         e.access,
		Refresh:        e.refresh,
		Blacklist:      e.blacklist,
		Notifier:       e.notifier,
		DummyHash:      e.dummyHash,
		UpgradeOnLogin: e.config.Password.UpgradeOnLogin,
	}
}

func (e *Engine) ready() bool {
	return e != nil && e.users != nil && e.access != nil && e.refresh != nil
}

func toLoginResult(s flows.Session) LoginResult {
	return LoginResult{
		UserID:           s.UserID,
		AccessToken:      s.AccessToken,
		AccessJTI:        s.AccessJTI,
		AccessExpiresAt:  s.AccessExpiresAt,
		RefreshToken:     s.RefreshToken,
		RefreshExpiresAt: s.RefreshExpiresAt,
	}
}

// onLockout runs once per lockout episode, from inside the failing login.
// Only an existing account owner is emailed; the typed identity is never a
// recipient on its own.
func (e *Engine) onLockout(ctx context.Context, key, ip string, lockout time.Duration) {
	e.countEvent(flows.EventLockoutTriggered)

	user, err := e.users.GetUserByEmail(ctx, key)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		e.logger.Warn("lockout owner lookup failed", zap.Error(err))
	}
	found := err == nil && user.Email != ""

	e.emitAudit(ctx, flows.EventLockoutTriggered, false, user.ID, ErrAccountLocked, map[string]string{
		"identity": key,
		"lockout":  lockout.String(),
	})
	if found {
		e.notifier.Enqueue(ctx, e.notifier.Lockout(user.Email, ip, lockout))
	}
}

// allowMail applies the per-recipient outbound budget. A window outage
// lets the message through.
func (e *Engine) allowMail(ctx context.Context, to string) error {
	err := e.windows.Allow(ctx, limiters.OpOutboundEmail, flows.NormalizeEmail(to))
	if errors.Is(err, limiters.ErrWindowUnavailable) {
		e.logger.Warn("mail window unavailable", zap.Error(err))
		return nil
	}
	return err
}

/*
====================================
SESSION OPERATIONS
====================================
*/

// Login describes the login operation and its observable behavior.
//
// Login returns a *LockedError (matching ErrAccountLocked) while the
// identity is locked out, ErrInvalidCredentials for an unknown identity or
// a wrong password, and a fresh access/refresh pair otherwise.
func (e *Engine) Login(ctx context.Context, email, plaintext string) (LoginResult, error) {
	if !e.ready() {
		return LoginResult{}, ErrEngineNotReady
	}
	s, err := flows.RunLogin(ctx, email, plaintext, e.sessionDeps())
	if err != nil {
		return LoginResult{}, err
	}
	return toLoginResult(s), nil
}

// Register describes the register operation and its observable behavior.
//
// Register validates the address and the password policy, creates the
// account and logs it in. A claimed address gives ErrConflict.
func (e *Engine) Register(ctx context.Context, email, plaintext string) (LoginResult, error) {
	if !e.ready() {
		return LoginResult{}, ErrEngineNotReady
	}
	s, err := flows.RunRegister(ctx, email, plaintext, e.sessionDeps())
	if err != nil {
		return LoginResult{}, err
	}
	return toLoginResult(s), nil
}

// Refresh rotates refreshToken and issues a new access token. Presenting an
// already rotated token revokes every refresh token of its user.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (LoginResult, error) {
	if !e.ready() {
		return LoginResult{}, ErrEngineNotReady
	}
	s, err := flows.RunRefresh(ctx, refreshToken, e.sessionDeps())
	if err != nil {
		return LoginResult{}, err
	}
	return toLoginResult(s), nil
}

// Logout blacklists accessToken for its remaining lifetime, revokes all of
// its user's refresh tokens and the presented refreshToken. Unparseable
// tokens are ignored.
func (e *Engine) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return flows.RunLogout(ctx, accessToken, refreshToken, e.sessionDeps())
}

// LogoutAll revokes every refresh token of userID. Outstanding access
// tokens stay valid until they expire.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return flows.RunLogoutAll(ctx, userID, e.sessionDeps())
}

// ValidateAccess describes the validateaccess operation and its observable behavior.
//
// ValidateAccess checks the signature and registered claims, then the
// blacklist. Every failure is ErrUnauthorized; a blacklist outage rejects.
// It never calls the UserProvider.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AccessClaims, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
	}
	claims, err := flows.RunValidateAccess(ctx, accessToken, e.sessionDeps())
	if !start.IsZero() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}
	return claims, err
}

// Blacklist revokes a single access token id for remaining.
func (e *Engine) Blacklist(ctx context.Context, jti string, remaining time.Duration) error {
	if e == nil || e.blacklist == nil {
		return ErrEngineNotReady
	}
	if err := e.blacklist.Add(ctx, jti, remaining); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// IsBlacklisted reports whether jti is revoked. It fails closed.
func (e *Engine) IsBlacklisted(ctx context.Context, jti string) bool {
	if e == nil || e.blacklist == nil {
		return true
	}
	return e.blacklist.Contains(ctx, jti)
}

// RemainingLoginAttempts reports how many failures email may still have
// before it is locked out. With throttling disabled it returns
// [Unthrottled].
func (e *Engine) RemainingLoginAttempts(ctx context.Context, email string) int {
	if e == nil || e.throttle == nil {
		return 0
	}
	return e.throttle.RemainingAttempts(ctx, flows.NormalizeEmail(email))
}

/*
====================================
HOUSEKEEPING
====================================
*/

func (e *Engine) sweepTasks() []sweep.Task {
	grace := e.config.Refresh.RetentionGrace
	return []sweep.Task{
		{Name: "refresh_tokens", Run: func(ctx context.Context, now time.Time) (int, error) {
			return e.refresh.Sweep(ctx, now.Add(-grace))
		}},
		{Name: "password_reset_tokens", Run: e.resetTokens.Sweep},
		{Name: "email_change_tokens", Run: e.emailTokens.Sweep},
		{Name: "blacklist_local", Run: func(_ context.Context, now time.Time) (int, error) {
			return e.blacklist.SweepLocal(now), nil
		}},
	}
}

func (e *Engine) onSweepPass(r sweep.Report) {
	e.metrics.Add(MetricSweepRemoved, uint64(r.Total()))
	e.metrics.Add(MetricSweepFailed, uint64(len(r.Failed)))
}

// Sweep runs one housekeeping pass now, independent of the background
// sweeper.
func (e *Engine) Sweep(ctx context.Context) SweepReport {
	if e == nil || e.sweeper == nil {
		return SweepReport{}
	}
	r := e.sweeper.RunOnce(ctx)
	return SweepReport{Removed: r.Removed, Failed: r.Failed}
}

// Close stops the sweeper and drains the mail and audit queues. It is safe
// to call more than once.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.sweeper != nil {
		e.sweeper.Stop()
	}
	e.notifier.Close()
	e.audit.Close()
}

/*
====================================
OBSERVABILITY
====================================
*/

// MetricsSnapshot returns a copy of every counter.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}, Histograms: map[MetricID][]uint64{}}
	}
	return e.metrics.Snapshot()
}

// AuditDropped returns audit events discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MailDropped returns emails discarded under backpressure.
func (e *Engine) MailDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.notifier.Dropped()
}
