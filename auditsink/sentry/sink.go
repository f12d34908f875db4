package sentry

import (
	"context"

	"github.com/getsentry/sentry-go"

	"github.com/MrEthical07/credguard"
)

// forwarded lists the event types reported even when they succeed.
var forwarded = map[string]sentry.Level{
	"lockout_triggered":      sentry.LevelWarning,
	"refresh_reuse_detected": sentry.LevelWarning,
	"email_change_conflict":  sentry.LevelInfo,
}

// Sink forwards security-relevant audit events to Sentry. Successful routine
// events are dropped; failures carrying a store outage are reported as errors.
type Sink struct {
	hub  *sentry.Hub
	next credguard.AuditSink
}

// New reports through hub, or the current hub when nil. Every event is also
// passed to next when it is non-nil.
func New(hub *sentry.Hub, next credguard.AuditSink) *Sink {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &Sink{hub: hub, next: next}
}

// Emit implements credguard.AuditSink.
func (s *Sink) Emit(ctx context.Context, event credguard.AuditEvent) {
	if s.next != nil {
		s.next.Emit(ctx, event)
	}

	level, ok := s.level(event)
	if !ok {
		return
	}

	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level)
		scope.SetTag("event_type", event.EventType)
		if event.Error != "" {
			scope.SetTag("error_code", event.Error)
		}
		if event.UserID != "" {
			scope.SetUser(sentry.User{ID: event.UserID, IPAddress: event.IP})
		}
		for k, v := range event.Metadata {
			scope.SetExtra(k, v)
		}
		scope.SetExtra("success", event.Success)
		s.hub.CaptureMessage("credguard: " + event.EventType)
	})
}

func (s *Sink) level(event credguard.AuditEvent) (sentry.Level, bool) {
	if level, ok := forwarded[event.EventType]; ok {
		return level, true
	}
	if event.Success {
		return "", false
	}
	switch event.Error {
	case string(credguard.AuditErrUnavailable):
		return sentry.LevelError, true
	case string(credguard.AuditErrInvalidCredentials), string(credguard.AuditErrUnauthorized):
		// Routine rejections would drown real incidents.
		return "", false
	}
	return sentry.LevelWarning, true
}
