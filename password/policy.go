package password

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MinLength and MaxLength bound the password length in runes.
	MinLength = 12
	MaxLength = 128
)

// ValidatePolicy enforces the password policy shared by registration and
// password reset: MinLength..MaxLength runes with at least one upper-case
// letter, lower-case letter, digit and symbol.
func ValidatePolicy(password string) error {
	var (
		hasUpper   bool
		hasLower   bool
		hasDigit   bool
		hasSpecial bool
	)

	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasDigit = true
		case unicode.IsPunct(ch) || unicode.IsSymbol(ch):
			hasSpecial = true
		}
	}

	var failures []string

	n := utf8.RuneCountInString(password)
	if n < MinLength {
		failures = append(failures, fmt.Sprintf("at least %d characters", MinLength))
	}
	if n > MaxLength {
		failures = append(failures, fmt.Sprintf("at most %d characters", MaxLength))
	}
	if !hasUpper {
		failures = append(failures, "an uppercase letter")
	}
	if !hasLower {
		failures = append(failures, "a lowercase letter")
	}
	if !hasDigit {
		failures = append(failures, "a digit")
	}
	if !hasSpecial {
		failures = append(failures, "a symbol")
	}

	if len(failures) > 0 {
		return fmt.Errorf("%w: needs %s", ErrPolicy, strings.Join(failures, ", "))
	}
	return nil
}
