package credguard

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrInvalidCredentials is returned for a wrong password and for an
	// unknown identity alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is matched by every *LockedError.
	ErrAccountLocked = errors.New("account locked")
	// ErrUnauthorized covers missing, expired, revoked or reused tokens.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict is returned when the target email is already claimed.
	ErrConflict = errors.New("conflict")
	// ErrRateLimited is only surfaced on pre-authenticated operations.
	ErrRateLimited = errors.New("rate limited")
	// ErrWeakPassword wraps the policy failure detail.
	ErrWeakPassword = errors.New("password does not meet policy")
	// ErrInvalidEmail is returned for malformed addresses.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrStoreUnavailable wraps backing-store failures that reach callers.
	ErrStoreUnavailable = errors.New("backing store unavailable")
	// ErrEngineNotReady is returned by operations on a nil or partially
	// built Engine.
	ErrEngineNotReady = errors.New("engine not ready")

	// ErrUserNotFound must be returned (or wrapped) by UserProvider lookups
	// that find nothing.
	ErrUserNotFound = errors.New("user not found")
	// ErrProviderDuplicateIdentifier must be returned (or wrapped) by
	// UserProvider writes that hit a unique email constraint.
	ErrProviderDuplicateIdentifier = errors.New("provider duplicate identifier")
)

// LockedError reports an active lockout together with its remaining time.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, retry in %ds", e.RemainingSeconds())
}

// Is makes errors.Is(err, ErrAccountLocked) hold.
func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// RemainingSeconds rounds up so a caller never retries too early.
func (e *LockedError) RemainingSeconds() int {
	if e == nil || e.Remaining <= 0 {
		return 0
	}
	return int(math.Ceil(e.Remaining.Seconds()))
}

func lockedError(remaining time.Duration) error {
	return &LockedError{Remaining: remaining}
}
