package credguard

import (
	"context"
	"errors"

	"github.com/MrEthical07/credguard/internal/flows"
	"github.com/MrEthical07/credguard/internal/limiters"
	"github.com/MrEthical07/credguard/internal/notify"
	"github.com/MrEthical07/credguard/internal/stores"
	"github.com/MrEthical07/credguard/password"
)

// AuditErrorCode is the stable error label stamped on audit events.
type AuditErrorCode string

const (
	AuditErrUnauthorized       AuditErrorCode = "unauthorized"
	AuditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	AuditErrAccountLocked      AuditErrorCode = "account_locked"
	AuditErrRateLimited        AuditErrorCode = "rate_limited"
	AuditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	AuditErrInvalidToken       AuditErrorCode = "invalid_token"
	AuditErrUserNotFound       AuditErrorCode = "user_not_found"
	AuditErrPasswordPolicy     AuditErrorCode = "password_policy"
	AuditErrInvalidEmail       AuditErrorCode = "invalid_email"
	AuditErrDuplicate          AuditErrorCode = "duplicate"
	AuditErrUnavailable        AuditErrorCode = "backend_unavailable"
	AuditErrInternal           AuditErrorCode = "internal_error"
)

// eventMetrics maps each flow event to the counter it bumps.
var eventMetrics = map[flows.Event]MetricID{
	flows.EventLoginSuccess:         MetricLoginSuccess,
	flows.EventLoginFailure:         MetricLoginFailure,
	flows.EventLoginLocked:          MetricLoginLocked,
	flows.EventLockoutTriggered:     MetricLockoutTriggered,
	flows.EventPasswordRehashed:     MetricPasswordRehashed,
	flows.EventRegisterSuccess:      MetricAccountCreationSuccess,
	flows.EventRegisterDuplicate:    MetricAccountCreationDuplicate,
	flows.EventRegisterFailure:      MetricAccountCreationFailure,
	flows.EventRefreshSuccess:       MetricRefreshSuccess,
	flows.EventRefreshInvalid:       MetricRefreshFailure,
	flows.EventRefreshReuseDetected: MetricRefreshReuseDetected,
	flows.EventLogout:               MetricLogout,
	flows.EventLogoutAll:            MetricLogoutAll,
	flows.EventAccessRevoked:        MetricAccessRevoked,
	flows.EventAccessRejected:       MetricAccessRejected,
	flows.EventPasswordResetRequest: MetricPasswordResetRequest,
	flows.EventPasswordResetLimited: MetricPasswordResetRateLimited,
	flows.EventPasswordResetConfirm: MetricPasswordResetConfirmSuccess,
	flows.EventPasswordResetInvalid: MetricPasswordResetConfirmFailure,
	flows.EventEmailChangeRequest:   MetricEmailChangeRequest,
	flows.EventEmailChangeLimited:   MetricEmailChangeRateLimited,
	flows.EventEmailChangeConfirm:   MetricEmailChangeConfirmSuccess,
	flows.EventEmailChangeInvalid:   MetricEmailChangeConfirmFailure,
	flows.EventEmailChangeConflict:  MetricEmailChangeConflict,
}

var mailMetrics = map[notify.Outcome]MetricID{
	notify.OutcomeSent:      MetricMailSent,
	notify.OutcomeFailed:    MetricMailFailed,
	notify.OutcomeThrottled: MetricMailThrottled,
}

func (e *Engine) countEvent(event flows.Event) {
	if id, ok := eventMetrics[event]; ok {
		e.metrics.Inc(id)
	}
}

func (e *Engine) observeMail(_ notify.Kind, outcome notify.Outcome) {
	if id, ok := mailMetrics[outcome]; ok {
		e.metrics.Inc(id)
	}
}

// emitAudit stamps and queues an event. It never blocks beyond the
// dispatcher's enqueue policy.
func (e *Engine) emitAudit(ctx context.Context, event flows.Event, success bool, userID string, err error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	ev := AuditEvent{
		Timestamp: e.clock.Now().UTC(),
		EventType: string(event),
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		ev.Error = string(code)
	}

	e.audit.Submit(ctx, ev)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, stores.ErrRefreshReuse):
		return AuditErrRefreshReuse
	case errors.Is(err, ErrAccountLocked):
		return AuditErrAccountLocked
	case errors.Is(err, ErrInvalidCredentials):
		return AuditErrInvalidCredentials
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, limiters.ErrWindowExceeded),
		errors.Is(err, stores.ErrTokenQuotaExceeded):
		return AuditErrRateLimited
	case errors.Is(err, stores.ErrRefreshNotFound),
		errors.Is(err, stores.ErrRefreshExpired),
		errors.Is(err, stores.ErrTokenNotFound),
		errors.Is(err, stores.ErrTokenUsed),
		errors.Is(err, stores.ErrTokenExpired):
		return AuditErrInvalidToken
	case errors.Is(err, ErrUnauthorized):
		return AuditErrUnauthorized
	case errors.Is(err, ErrUserNotFound):
		return AuditErrUserNotFound
	case errors.Is(err, ErrWeakPassword),
		errors.Is(err, password.ErrPolicy):
		return AuditErrPasswordPolicy
	case errors.Is(err, ErrInvalidEmail):
		return AuditErrInvalidEmail
	case errors.Is(err, ErrConflict),
		errors.Is(err, ErrProviderDuplicateIdentifier):
		return AuditErrDuplicate
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrEngineNotReady),
		errors.Is(err, stores.ErrRefreshUnavailable),
		errors.Is(err, stores.ErrTokenUnavailable),
		errors.Is(err, stores.ErrBlacklistUnavailable),
		errors.Is(err, limiters.ErrWindowUnavailable):
		return AuditErrUnavailable
	default:
		return AuditErrInternal
	}
}
