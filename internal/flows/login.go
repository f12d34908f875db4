package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/credguard/password"
	"go.uber.org/zap"
)

func (d *SessionDeps) ready() bool {
	return d.Users.ready() && d.Throttle != nil && d.Hasher != nil &&
		d.Access != nil && d.Refresh != nil && d.Errors.Locked != nil
}

// RunLogin authenticates email/password and issues a session.
//
// Unknown identities and wrong passwords are indistinguishable to the caller:
// both verify a hash, record a failed attempt and return InvalidCredentials.
// The attempt that reaches the threshold still answers InvalidCredentials;
// the lockout is reported from the next attempt on.
func RunLogin(ctx context.Context, email, plaintext string, deps SessionDeps) (Session, error) {
	deps.normalize()
	if !deps.ready() {
		return Session{}, deps.Errors.EngineNotReady
	}

	key := NormalizeEmail(email)
	ip := deps.ClientIP(ctx)
	meta := map[string]string{"identity": key}

	if deps.Throttle.IsBlocked(ctx, key) {
		err := deps.Errors.Locked(deps.Throttle.RemainingLockout(ctx, key))
		deps.emit(ctx, EventLoginLocked, false, "", err, meta)
		return Session{}, err
	}

	user, err := deps.Users.ByEmail(ctx, key)
	if err != nil {
		if !errors.Is(err, deps.Errors.UserNotFound) {
			deps.Logger.Warn("user lookup failed", zap.String("identity", key), zap.Error(err))
			return Session{}, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
		}
		if deps.DummyHash != "" {
			_, _ = deps.Hasher.Verify(ctx, plaintext, deps.DummyHash)
		}
		return Session{}, failLogin(ctx, key, ip, "", deps)
	}

	ok, err := deps.Hasher.Verify(ctx, plaintext, user.PasswordHash)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Session{}, ctxErr
		}
		deps.Logger.Warn("stored password hash unreadable", zap.String("user_id", user.ID), zap.Error(err))
	}
	if !ok {
		return Session{}, failLogin(ctx, key, ip, user.ID, deps)
	}

	deps.Throttle.ClearFailedAttempts(ctx, key)

	if deps.UpgradeOnLogin {
		rehashIfNeeded(ctx, user, plaintext, deps)
	}

	sess, err := issueSession(ctx, user.ID, &deps)
	if err != nil {
		deps.emit(ctx, EventLoginFailure, false, user.ID, err, meta)
		return Session{}, err
	}

	deps.emit(ctx, EventLoginSuccess, true, user.ID, nil, meta)
	return sess, nil
}

func failLogin(ctx context.Context, key, ip, userID string, deps SessionDeps) error {
	count := deps.Throttle.RecordFailedAttempt(ctx, key, ip)
	deps.emit(ctx, EventLoginFailure, false, userID, deps.Errors.InvalidCredentials, map[string]string{
		"identity": key,
		"attempts": fmt.Sprint(count),
	})
	return deps.Errors.InvalidCredentials
}

// rehashIfNeeded migrates legacy or under-strength hashes. Failures leave
// the old hash in place.
func rehashIfNeeded(ctx context.Context, user User, plaintext string, deps SessionDeps) {
	upgrade, err := deps.Hasher.NeedsUpgrade(user.PasswordHash)
	if err != nil || !upgrade {
		return
	}
	hash, err := deps.Hasher.Hash(ctx, plaintext)
	if err != nil {
		deps.Logger.Warn("password rehash failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	if err := deps.Users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		deps.Logger.Warn("password rehash not persisted", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	deps.emit(ctx, EventPasswordRehashed, true, user.ID, nil, nil)
}

// RunRegister creates an account and signs it in.
func RunRegister(ctx context.Context, email, plaintext string, deps SessionDeps) (Session, error) {
	deps.normalize()
	if !deps.ready() {
		return Session{}, deps.Errors.EngineNotReady
	}

	key := NormalizeEmail(email)
	meta := map[string]string{"identity": key}

	if !ValidEmail(key) {
		return Session{}, deps.Errors.InvalidEmail
	}
	if err := password.ValidatePolicy(plaintext); err != nil {
		return Session{}, fmt.Errorf("%w: %v", deps.Errors.WeakPassword, err)
	}

	exists, err := deps.Users.EmailExists(ctx, key)
	if err != nil {
		deps.emit(ctx, EventRegisterFailure, false, "", err, meta)
		return Session{}, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}
	if exists {
		deps.emit(ctx, EventRegisterDuplicate, false, "", deps.Errors.Conflict, meta)
		return Session{}, deps.Errors.Conflict
	}

	hash, err := deps.Hasher.Hash(ctx, plaintext)
	if err != nil {
		return Session{}, err
	}

	user, err := deps.Users.Create(ctx, key, hash)
	if err != nil {
		if errors.Is(err, deps.Errors.DuplicateIdentifier) {
			deps.emit(ctx, EventRegisterDuplicate, false, "", deps.Errors.Conflict, meta)
			return Session{}, deps.Errors.Conflict
		}
		deps.emit(ctx, EventRegisterFailure, false, "", err, meta)
		return Session{}, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}

	sess, err := issueSession(ctx, user.ID, &deps)
	if err != nil {
		deps.emit(ctx, EventRegisterFailure, false, user.ID, err, meta)
		return Session{}, err
	}

	if deps.Notifier != nil {
		deps.Notifier.Enqueue(ctx, deps.Notifier.Welcome(key))
	}
	deps.emit(ctx, EventRegisterSuccess, true, user.ID, nil, meta)
	return sess, nil
}
