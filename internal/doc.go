// Package internal groups the building blocks behind the credguard Engine.
//
// # Sub-packages
//
//   - dispatch: bounded async worker pool used for audit and mail
//   - flows: orchestration for every Engine operation
//   - limiters: failed-login throttle and sliding rate windows
//   - notify: notification email composition and delivery
//   - stores: Redis refresh, blacklist and one-time token stores
//   - sweep: periodic expiry of stale records
//   - token: opaque token generation and hashing
package internal
