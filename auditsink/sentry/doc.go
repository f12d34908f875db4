// Package sentry adapts credguard audit events to a Sentry hub.
package sentry
