// Package notify composes and delivers credential emails (reset links,
// change confirmations, lockout warnings) off the request path.
//
// Delivery goes through internal/dispatch. Each recipient is subject to an
// outbound budget; over-budget, failed, and dropped messages are logged and
// reported to an observer but never returned to the caller.
//
// # What this package must NOT do
//
//   - Render HTML or own templates beyond plain-text bodies.
//   - Log token plaintexts or message bodies.
package notify
