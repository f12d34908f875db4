// Package dispatch runs fire-and-forget side effects (audit records,
// outbound email) on a bounded pool of background workers.
//
// # Semantics
//
//   - Submit never returns an error; a full queue either blocks until ctx is
//     done or drops the item and counts it (DropIfFull).
//   - Handler panics are recovered and reported through OnPanic so one bad
//     item cannot stop the workers.
//   - Close stops intake, drains queued items, and waits for the workers.
//
// # What this package must NOT do
//
//   - Retry failed items or inspect their content.
//   - Import credguard or any sibling internal package.
package dispatch
