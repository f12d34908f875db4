package password

import "errors"

var (
	// ErrEmptyPassword is returned by Hash for an empty input.
	ErrEmptyPassword = errors.New("password is empty")
	// ErrMalformedHash is returned when a stored hash cannot be parsed.
	ErrMalformedHash = errors.New("malformed password hash")
	// ErrPolicy is returned by ValidatePolicy. The wrapped message lists
	// every unmet requirement.
	ErrPolicy = errors.New("password does not meet policy")
)
