// Package limiters provides the Redis-backed counters that gate credential
// operations.
//
// # Limiters
//
//   - [Throttle] tracks failed logins per identity key and applies
//     progressive, capped lockouts with a one-shot notification marker.
//   - [Windows] enforces fixed hourly windows per operation and key
//     (password reset, email change, outbound email).
//
// Both use INCR with an expiry set on the first hit of a window.
//
// # Failure policy
//
// Throttle reads fail open: a store outage never denies a login on its own.
// Window checks report the error and let the caller pick the policy.
//
// # What this package must NOT do
//
//   - Import credguard or any sibling internal package.
//   - Decide the consequence of a denial; flows map results to errors.
package limiters
