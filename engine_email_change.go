package credguard

import (
	"context"

	"github.com/MrEthical07/credguard/internal/flows"
)

// RequestEmailChange describes the requestemailchange operation and its observable behavior.
//
// The caller must already have authenticated userID. Unlike password reset
// the outcome is reported: ErrInvalidEmail, ErrRateLimited, ErrConflict when
// the address is claimed, and ErrUnauthorized for an unknown user.
func (e *Engine) RequestEmailChange(ctx context.Context, userID, newEmail string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return flows.RunRequestEmailChange(ctx, userID, newEmail, e.emailChangeDeps())
}

// ConfirmEmailChange redeems token and moves the account to the address it
// was issued for. The old address is notified.
func (e *Engine) ConfirmEmailChange(ctx context.Context, token string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return flows.RunConfirmEmailChange(ctx, token, e.emailChangeDeps())
}

func (e *Engine) emailChangeDeps() flows.EmailChangeDeps {
	return flows.EmailChangeDeps{
		Common:   e.common(),
		Users:    e.flowUsers(),
		Tokens:   e.emailTokens,
		Windows:  e.windows,
		Notifier: e.notifier,
		TokenTTL: e.config.EmailChange.TokenTTL,
	}
}
