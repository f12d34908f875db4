package flows

// Event names an audit event. The host maps each one to a metric.
type Event string

const (
	EventLoginSuccess          Event = "login_success"
	EventLoginFailure          Event = "login_failure"
	EventLoginLocked           Event = "login_locked"
	EventLockoutTriggered      Event = "lockout_triggered"
	EventPasswordRehashed      Event = "password_rehashed"
	EventRegisterSuccess       Event = "account_creation_success"
	EventRegisterDuplicate     Event = "account_creation_duplicate"
	EventRegisterFailure       Event = "account_creation_failure"
	EventRefreshSuccess        Event = "refresh_success"
	EventRefreshInvalid        Event = "refresh_invalid"
	EventRefreshReuseDetected  Event = "refresh_reuse_detected"
	EventLogout                Event = "logout_session"
	EventLogoutAll             Event = "logout_all"
	EventAccessRevoked         Event = "access_revoked"
	EventAccessRejected        Event = "access_rejected"
	EventPasswordResetRequest  Event = "password_reset_request"
	EventPasswordResetLimited  Event = "password_reset_rate_limited"
	EventPasswordResetConfirm  Event = "password_reset_confirm"
	EventPasswordResetInvalid  Event = "password_reset_invalid"
	EventEmailChangeRequest    Event = "email_change_request"
	EventEmailChangeLimited    Event = "email_change_rate_limited"
	EventEmailChangeConfirm    Event = "email_change_confirm"
	EventEmailChangeInvalid    Event = "email_change_invalid"
	EventEmailChangeConflict   Event = "email_change_conflict"
)
