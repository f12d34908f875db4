// Package sweep runs housekeeping tasks (expired token records, stale local
// blacklist entries) on a fixed interval, independently of request handling.
//
// Task failures are logged and never propagated; one failing task does not
// skip the others.
package sweep
