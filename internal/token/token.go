package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"io"
)

// SecretSize is the number of random bytes behind every issued token.
const SecretSize = 32

var reader io.Reader = rand.Reader

// Generate returns a fresh URL-safe plaintext token and the digest that is
// persisted in its place. The plaintext is never stored.
func Generate() (plaintext string, storedForm string, err error) {
	var secret [SecretSize]byte
	if _, err := io.ReadFull(reader, secret[:]); err != nil {
		return "", "", err
	}

	plaintext = base64.RawURLEncoding.EncodeToString(secret[:])
	return plaintext, Hash(plaintext), nil
}

// Hash maps a presented plaintext to its stored form (hex SHA-256).
func Hash(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// Equal compares two stored forms in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
