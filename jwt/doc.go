// Package jwt issues and verifies short-lived access tokens. Every token
// carries a UUID jti so it can be revoked individually before it expires.
package jwt
