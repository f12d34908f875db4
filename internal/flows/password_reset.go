package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/credguard/internal/limiters"
	"github.com/MrEthical07/credguard/internal/stores"
	"github.com/MrEthical07/credguard/password"
	"go.uber.org/zap"
)

func (d *ResetDeps) ready() bool {
	return d.Users.ready() && d.Hasher != nil && d.Tokens != nil
}

// allowWindow applies a rate window. A window backend outage lets the
// request through: counters are best-effort and never block a flow.
func allowWindow(ctx context.Context, w *limiters.Windows, op limiters.Operation, key string, logger *zap.Logger) error {
	err := w.Allow(ctx, op, key)
	if errors.Is(err, limiters.ErrWindowUnavailable) {
		logger.Warn("rate window unavailable", zap.String("operation", string(op)), zap.Error(err))
		return nil
	}
	return err
}

// RunRequestPasswordReset issues a reset token and mails it. The caller
// always gets nil for a well-formed call, whether or not the address belongs
// to an account, whether or not a limit was hit, and whether or not the store
// was reachable.
func RunRequestPasswordReset(ctx context.Context, email string, deps ResetDeps) error {
	deps.normalize()
	if !deps.ready() {
		return deps.Errors.EngineNotReady
	}

	key := NormalizeEmail(email)
	meta := map[string]string{"identity": key}

	if err := allowWindow(ctx, deps.Windows, limiters.OpPasswordReset, key, deps.Logger); err != nil {
		deps.emit(ctx, EventPasswordResetLimited, false, "", deps.Errors.RateLimited, meta)
		return nil
	}

	user, err := deps.Users.ByEmail(ctx, key)
	if err != nil {
		if !errors.Is(err, deps.Errors.UserNotFound) {
			deps.Logger.Warn("password reset lookup failed", zap.String("identity", key), zap.Error(err))
		}
		deps.emit(ctx, EventPasswordResetRequest, false, "", nil, meta)
		return nil
	}

	plain, rec, err := deps.Tokens.Issue(ctx, user.ID, "", deps.Now())
	if err != nil {
		if errors.Is(err, stores.ErrTokenQuotaExceeded) {
			deps.emit(ctx, EventPasswordResetLimited, false, user.ID, deps.Errors.RateLimited, meta)
		} else {
			deps.Logger.Warn("password reset token issue failed", zap.String("user_id", user.ID), zap.Error(err))
		}
		return nil
	}

	if deps.Notifier != nil {
		deps.Notifier.Enqueue(ctx, deps.Notifier.PasswordReset(user.Email, plain, rec.ExpiresAt.Sub(rec.CreatedAt)))
	}
	deps.emit(ctx, EventPasswordResetRequest, true, user.ID, nil, meta)
	return nil
}

// RunValidatePasswordReset reports whether token is redeemable right now.
// A store failure reads as not redeemable.
func RunValidatePasswordReset(ctx context.Context, token string, deps ResetDeps) bool {
	deps.normalize()
	if deps.Tokens == nil {
		return false
	}
	_, err := deps.Tokens.Peek(ctx, token, deps.Now())
	return err == nil
}

// RunResetPassword redeems token and sets a new password.
//
// The token is claimed before the password is written, so two racing resets
// cannot both succeed. If the write fails the claim is released and the
// token can be used again.
func RunResetPassword(ctx context.Context, token, newPassword string, deps ResetDeps) error {
	deps.normalize()
	if !deps.ready() {
		return deps.Errors.EngineNotReady
	}

	if err := password.ValidatePolicy(newPassword); err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.WeakPassword, err)
	}

	rec, err := deps.Tokens.Consume(ctx, token, deps.Now())
	if err != nil {
		if errors.Is(err, stores.ErrTokenUnavailable) {
			return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
		}
		deps.emit(ctx, EventPasswordResetInvalid, false, rec.UserID, deps.Errors.Unauthorized, nil)
		return deps.Errors.Unauthorized
	}

	release := func(cause error) {
		if err := deps.Tokens.Release(ctx, token); err != nil {
			deps.Logger.Warn("reset token release failed", zap.String("user_id", rec.UserID), zap.Error(err))
		}
		deps.Logger.Warn("password reset aborted", zap.String("user_id", rec.UserID), zap.Error(cause))
	}

	user, err := deps.Users.ByID(ctx, rec.UserID)
	if err != nil {
		release(err)
		if errors.Is(err, deps.Errors.UserNotFound) {
			return deps.Errors.Unauthorized
		}
		return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}

	hash, err := deps.Hasher.Hash(ctx, newPassword)
	if err != nil {
		release(err)
		return err
	}
	if err := deps.Users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		release(err)
		return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}

	if deps.Refresh != nil {
		if _, err := deps.Refresh.RevokeAll(ctx, user.ID); err != nil {
			deps.Logger.Warn("refresh revoke-all failed after reset", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	if deps.Throttle != nil {
		deps.Throttle.ClearFailedAttempts(ctx, NormalizeEmail(user.Email))
	}
	deps.emit(ctx, EventPasswordResetConfirm, true, user.ID, nil, nil)
	if deps.Notifier != nil {
		deps.Notifier.Enqueue(ctx, deps.Notifier.PasswordChanged(user.Email))
	}
	return nil
}
