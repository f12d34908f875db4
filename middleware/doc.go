// Package middleware adapts credguard access-token validation to net/http.
//
// [Guard] rejects requests without a valid bearer token; [Optional] only
// annotates them. Both delegate every decision to a [Validator], normally
// *credguard.Engine, so revoked tokens are refused the same way everywhere.
// Validated claims are read back with [ClaimsFromContext].
package middleware
