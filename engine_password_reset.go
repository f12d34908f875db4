package credguard

import (
	"context"

	"github.com/MrEthical07/credguard/internal/flows"
)

// RequestPasswordReset describes the requestpasswordreset operation and its observable behavior.
//
// RequestPasswordReset returns nil for every well-formed call. Whether the
// address exists, a limit was hit or the store failed is visible only in
// audit events and logs; the token travels by email only.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return flows.RunRequestPasswordReset(ctx, email, e.passwordResetDeps())
}

// ValidatePasswordReset reports whether token can be redeemed right now.
func (e *Engine) ValidatePasswordReset(ctx context.Context, token string) bool {
	if !e.ready() {
		return false
	}
	return flows.RunValidatePasswordReset(ctx, token, e.passwordResetDeps())
}

// ResetPassword describes the resetpassword operation and its observable behavior.
//
// ResetPassword checks the policy first (ErrWeakPassword), then redeems the
// token exactly once (ErrUnauthorized when it is unknown, used or expired).
// On success every refresh token of the user is revoked, the login throttle
// is cleared and a confirmation email is queued.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return flows.RunResetPassword(ctx, token, newPassword, e.passwordResetDeps())
}

func (e *Engine) passwordResetDeps() flows.ResetDeps {
	return flows.ResetDeps{
		Common:   e.common(),
		Users:    e.flowUsers(),
		Throttle: e.throttle,
		Hasher:   e.hasher,
		Refresh:  e.refresh,
		Tokens:   e.resetTokens,
		Windows:  e.windows,
		Notifier: e.notifier,
		TokenTTL: e.config.PasswordReset.TokenTTL,
	}
}
