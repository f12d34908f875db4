// Package credguard is the credential and session security core of a web
// backend: login throttling with progressive lockout, rotating refresh tokens
// with reuse detection, access-token revocation, password reset and email
// change.
//
// The public surface is [Engine], built once through [Builder] and safe for
// concurrent use afterwards. All state lives in Redis; user records live
// behind the [UserProvider] the host supplies.
//
// # Failure policy
//
// Backing-store failures are handled per call site:
//
//   - throttle reads and writes fail open, so login stays available;
//   - blacklist reads fail closed, so a revoked token is never honoured;
//   - audit, email and rate-window writes are best-effort.
//
// # Architecture boundaries
//
// Orchestration lives in internal/flows, Redis state in internal/stores and
// internal/limiters, asynchronous delivery in internal/dispatch and
// internal/notify. None of those types leak through this package's API.
package credguard
