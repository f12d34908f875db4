// Package postgres implements credguard.UserProvider on PostgreSQL through
// pgx/v5. Emails are stored as given; the engine normalizes them first.
// A unique violation on email maps to ErrProviderDuplicateIdentifier and a
// missing row to ErrUserNotFound.
package postgres
