package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/credguard/internal/stores"
	"github.com/MrEthical07/credguard/jwt"
	"go.uber.org/zap"
)

// issueSession mints an access token and a fresh refresh chain. Creating the
// refresh token revokes every earlier one for the user.
func issueSession(ctx context.Context, userID string, deps *SessionDeps) (Session, error) {
	access, err := deps.Access.CreateAccess(userID)
	if err != nil {
		return Session{}, err
	}

	refresh, rec, err := deps.Refresh.Create(ctx, userID, deps.Now())
	if err != nil {
		deps.Logger.Warn("refresh token create failed", zap.String("user_id", userID), zap.Error(err))
		return Session{}, mapRefreshError(err, deps.Errors)
	}

	return Session{
		UserID:           userID,
		AccessToken:      access.Token,
		AccessJTI:        access.JTI,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh,
		RefreshExpiresAt: rec.ExpiresAt,
	}, nil
}

func mapRefreshError(err error, e Errors) error {
	switch {
	case errors.Is(err, stores.ErrRefreshNotFound),
		errors.Is(err, stores.ErrRefreshExpired),
		errors.Is(err, stores.ErrRefreshReuse):
		return e.Unauthorized
	case errors.Is(err, stores.ErrRefreshUnavailable):
		return fmt.Errorf("%w: %v", e.StoreUnavailable, err)
	default:
		return err
	}
}

// RunRefresh rotates the presented refresh token and issues a new access
// token. Presenting an already-rotated token revokes the user's whole chain.
func RunRefresh(ctx context.Context, refreshToken string, deps SessionDeps) (Session, error) {
	deps.normalize()
	if deps.Access == nil || deps.Refresh == nil {
		return Session{}, deps.Errors.EngineNotReady
	}

	next, rec, err := deps.Refresh.VerifyAndRotate(ctx, refreshToken, deps.Now())
	if err != nil {
		mapped := mapRefreshError(err, deps.Errors)
		switch {
		case errors.Is(err, stores.ErrRefreshReuse):
			deps.Logger.Warn("refresh token reuse detected", zap.String("user_id", rec.UserID))
			deps.emit(ctx, EventRefreshReuseDetected, false, rec.UserID, err, nil)
		case errors.Is(mapped, deps.Errors.Unauthorized):
			deps.emit(ctx, EventRefreshInvalid, false, rec.UserID, err, nil)
		}
		return Session{}, mapped
	}

	access, err := deps.Access.CreateAccess(rec.UserID)
	if err != nil {
		return Session{}, err
	}

	deps.emit(ctx, EventRefreshSuccess, true, rec.UserID, nil, nil)
	return Session{
		UserID:           rec.UserID,
		AccessToken:      access.Token,
		AccessJTI:        access.JTI,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     next,
		RefreshExpiresAt: rec.ExpiresAt,
	}, nil
}

// RunLogout revokes what the caller presents. A valid access token is
// blacklisted for the rest of its lifetime and its user's refresh chain is
// revoked; the refresh token, if any, is revoked on its own. Unparseable
// tokens are ignored. Only a failed blacklist write is reported, since the
// access token would otherwise stay usable on other instances.
func RunLogout(ctx context.Context, accessToken, refreshToken string, deps SessionDeps) error {
	deps.normalize()
	if deps.Access == nil || deps.Refresh == nil || deps.Blacklist == nil {
		return deps.Errors.EngineNotReady
	}

	var result error

	if accessToken != "" {
		if claims, err := deps.Access.ParseAccess(accessToken); err == nil {
			if err := deps.Blacklist.Add(ctx, claims.JTI(), claims.Remaining(deps.Now())); err != nil {
				deps.Logger.Warn("access token blacklist write failed", zap.String("user_id", claims.UID), zap.Error(err))
				result = fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
			}
			if _, err := deps.Refresh.RevokeAll(ctx, claims.UID); err != nil {
				deps.Logger.Warn("refresh revoke-all failed on logout", zap.String("user_id", claims.UID), zap.Error(err))
			}
			deps.emit(ctx, EventLogout, true, claims.UID, nil, map[string]string{"jti": claims.JTI()})
		}
	}

	if refreshToken != "" {
		if err := deps.Refresh.Revoke(ctx, refreshToken); err != nil {
			deps.Logger.Warn("refresh revoke failed on logout", zap.Error(err))
		}
	}

	return result
}

// RunLogoutAll revokes every refresh token of userID.
func RunLogoutAll(ctx context.Context, userID string, deps SessionDeps) error {
	deps.normalize()
	if deps.Refresh == nil {
		return deps.Errors.EngineNotReady
	}

	n, err := deps.Refresh.RevokeAll(ctx, userID)
	if err != nil {
		return mapRefreshError(err, deps.Errors)
	}
	deps.emit(ctx, EventLogoutAll, true, userID, nil, map[string]string{"revoked": fmt.Sprint(n)})
	return nil
}

// RunValidateAccess checks signature, registered claims and the blacklist.
// Every failure collapses to Unauthorized; the blacklist fails closed.
func RunValidateAccess(ctx context.Context, accessToken string, deps SessionDeps) (*jwt.AccessClaims, error) {
	deps.normalize()
	if deps.Access == nil || deps.Blacklist == nil {
		return nil, deps.Errors.EngineNotReady
	}

	claims, err := deps.Access.ParseAccess(accessToken)
	if err != nil {
		deps.Count(EventAccessRejected)
		return nil, deps.Errors.Unauthorized
	}
	if deps.Blacklist.Contains(ctx, claims.JTI()) {
		deps.Count(EventAccessRevoked)
		return nil, deps.Errors.Unauthorized
	}
	return claims, nil
}
