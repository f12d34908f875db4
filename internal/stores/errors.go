package stores

import "errors"

var (
	ErrRefreshNotFound    = errors.New("refresh token not found")
	ErrRefreshExpired     = errors.New("refresh token expired")
	ErrRefreshReuse       = errors.New("refresh token reuse detected")
	ErrRefreshUnavailable = errors.New("refresh store unavailable")

	ErrTokenNotFound      = errors.New("one-time token not found")
	ErrTokenUsed          = errors.New("one-time token already used")
	ErrTokenExpired       = errors.New("one-time token expired")
	ErrTokenQuotaExceeded = errors.New("one-time token issuance quota exceeded")
	ErrTokenUnavailable   = errors.New("one-time token store unavailable")

	ErrBlacklistUnavailable = errors.New("blacklist store unavailable")
)
