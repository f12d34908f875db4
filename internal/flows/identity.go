package flows

import (
	"strings"

	"github.com/go-playground/validator"
)

var validate = validator.New()

// NormalizeEmail is the identity key used for throttling, rate windows and
// lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether email is a syntactically valid address of at
// most 254 bytes.
func ValidEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	return validate.Var(email, "required,email") == nil
}
