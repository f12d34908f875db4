// Package token mints opaque secrets for refresh, password-reset, and
// email-change flows.
//
// Every token is 32 bytes from crypto/rand, encoded with base64url without
// padding. Only the hex SHA-256 digest of the plaintext is handed to stores.
//
// # What this package must NOT do
//
//   - Persist, log, or cache plaintext tokens.
//   - Import credguard or any sibling internal package.
package token
