package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/credguard/internal/limiters"
	"github.com/MrEthical07/credguard/internal/stores"
	"go.uber.org/zap"
)

func (d *EmailChangeDeps) ready() bool {
	return d.Users.ready() && d.Tokens != nil
}

// RunRequestEmailChange starts an email change for an authenticated user
// and mails a confirmation token to the new address. The caller is already
// authenticated, so every refusal is reported.
func RunRequestEmailChange(ctx context.Context, userID, newEmail string, deps EmailChangeDeps) error {
	deps.normalize()
	if !deps.ready() {
		return deps.Errors.EngineNotReady
	}

	target := NormalizeEmail(newEmail)
	meta := map[string]string{"new_email": target}

	if !ValidEmail(target) {
		return deps.Errors.InvalidEmail
	}

	if err := allowWindow(ctx, deps.Windows, limiters.OpEmailChange, userID, deps.Logger); err != nil {
		deps.emit(ctx, EventEmailChangeLimited, false, userID, deps.Errors.RateLimited, meta)
		return deps.Errors.RateLimited
	}

	claimed, err := deps.Users.EmailExists(ctx, target)
	if err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}
	if claimed {
		deps.emit(ctx, EventEmailChangeConflict, false, userID, deps.Errors.Conflict, meta)
		return deps.Errors.Conflict
	}

	user, err := deps.Users.ByID(ctx, userID)
	if err != nil {
		if errors.Is(err, deps.Errors.UserNotFound) {
			return deps.Errors.Unauthorized
		}
		return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}

	plain, rec, err := deps.Tokens.Issue(ctx, user.ID, target, deps.Now())
	if err != nil {
		if errors.Is(err, stores.ErrTokenQuotaExceeded) {
			deps.emit(ctx, EventEmailChangeLimited, false, user.ID, deps.Errors.RateLimited, meta)
			return deps.Errors.RateLimited
		}
		return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}

	if deps.Notifier != nil {
		deps.Notifier.Enqueue(ctx, deps.Notifier.EmailChangeVerify(target, plain, rec.ExpiresAt.Sub(rec.CreatedAt)))
	}
	deps.emit(ctx, EventEmailChangeRequest, true, user.ID, nil, meta)
	return nil
}

// RunConfirmEmailChange redeems an email-change token. The new address is
// checked again before the token is consumed; if another account took it in
// the meantime the change fails with Conflict and the token stays unused.
func RunConfirmEmailChange(ctx context.Context, token string, deps EmailChangeDeps) error {
	deps.normalize()
	if !deps.ready() {
		return deps.Errors.EngineNotReady
	}

	now := deps.Now()
	pending, err := deps.Tokens.Peek(ctx, token, now)
	if err != nil {
		if errors.Is(err, stores.ErrTokenUnavailable) {
			return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
		}
		deps.emit(ctx, EventEmailChangeInvalid, false, pending.UserID, deps.Errors.Unauthorized, nil)
		return deps.Errors.Unauthorized
	}
	meta := map[string]string{"new_email": pending.Email}

	claimed, err := deps.Users.EmailExists(ctx, pending.Email)
	if err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}
	if claimed {
		deps.emit(ctx, EventEmailChangeConflict, false, pending.UserID, deps.Errors.Conflict, meta)
		return deps.Errors.Conflict
	}

	user, err := deps.Users.ByID(ctx, pending.UserID)
	if err != nil {
		if errors.Is(err, deps.Errors.UserNotFound) {
			return deps.Errors.Unauthorized
		}
		return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}

	rec, err := deps.Tokens.Consume(ctx, token, now)
	if err != nil {
		if errors.Is(err, stores.ErrTokenUnavailable) {
			return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
		}
		deps.emit(ctx, EventEmailChangeInvalid, false, pending.UserID, deps.Errors.Unauthorized, meta)
		return deps.Errors.Unauthorized
	}

	if err := deps.Users.UpdateEmail(ctx, user.ID, rec.Email); err != nil {
		if relErr := deps.Tokens.Release(ctx, token); relErr != nil {
			deps.Logger.Warn("email change token release failed", zap.String("user_id", user.ID), zap.Error(relErr))
		}
		if errors.Is(err, deps.Errors.DuplicateIdentifier) {
			deps.emit(ctx, EventEmailChangeConflict, false, user.ID, deps.Errors.Conflict, meta)
			return deps.Errors.Conflict
		}
		return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}

	deps.emit(ctx, EventEmailChangeConfirm, true, user.ID, nil, meta)
	if deps.Notifier != nil {
		deps.Notifier.Enqueue(ctx, deps.Notifier.EmailChanged(user.Email, rec.Email))
	}
	return nil
}
