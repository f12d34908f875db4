// Package stores provides the Redis-backed records behind credential flows:
// rotating refresh tokens, the access-token blacklist, and single-use
// password-reset / email-change tokens.
//
// # Design
//
// Only SHA-256 digests of token plaintexts reach Redis. Operations that must
// be atomic per token or per user run as Lua scripts (refresh create/rotate,
// issuance caps) or as WATCH/MULTI optimistic transactions with bounded retry
// (one-time token consumption). Records carry their own expiry in
// milliseconds and a Redis TTL; Sweep methods remove what the TTL missed.
//
// # Failure policy
//
// Store errors are wrapped with a package sentinel (ErrXUnavailable) so flows
// can apply the call-site policy. The blacklist is the exception: it resolves
// outages itself and fails closed.
//
// # What this package must NOT do
//
//   - Import credguard or any internal package except internal/token.
//   - Log or return plaintext tokens except as the result of minting.
package stores
