package internaldefs

import (
	"github.com/MrEthical07/credguard"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   credguard.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   credguard.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: credguard.MetricLoginSuccess, Name: "credguard_login_success_total", Help: "Successful logins."},
	{ID: credguard.MetricLoginFailure, Name: "credguard_login_failure_total", Help: "Logins rejected for bad credentials."},
	{ID: credguard.MetricLoginLocked, Name: "credguard_login_locked_total", Help: "Logins refused during an active lockout."},
	{ID: credguard.MetricLockoutTriggered, Name: "credguard_lockout_triggered_total", Help: "Lockout episodes started."},
	{ID: credguard.MetricPasswordRehashed, Name: "credguard_password_rehashed_total", Help: "Stored hashes upgraded on login."},
	{ID: credguard.MetricAccountCreationSuccess, Name: "credguard_account_creation_success_total", Help: "Successful registrations."},
	{ID: credguard.MetricAccountCreationDuplicate, Name: "credguard_account_creation_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: credguard.MetricAccountCreationFailure, Name: "credguard_account_creation_failure_total", Help: "Registrations failed for other reasons."},
	{ID: credguard.MetricRefreshSuccess, Name: "credguard_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: credguard.MetricRefreshFailure, Name: "credguard_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: credguard.MetricRefreshReuseDetected, Name: "credguard_refresh_reuse_detected_total", Help: "Rotated refresh tokens presented again."},
	{ID: credguard.MetricLogout, Name: "credguard_logout_total", Help: "Single-session logouts."},
	{ID: credguard.MetricLogoutAll, Name: "credguard_logout_all_total", Help: "Logout-all operations."},
	{ID: credguard.MetricAccessRevoked, Name: "credguard_access_revoked_total", Help: "Access tokens rejected as blacklisted."},
	{ID: credguard.MetricAccessRejected, Name: "credguard_access_rejected_total", Help: "Access tokens rejected as invalid."},
	{ID: credguard.MetricPasswordResetRequest, Name: "credguard_password_reset_request_total", Help: "Password reset requests."},
	{ID: credguard.MetricPasswordResetRateLimited, Name: "credguard_password_reset_rate_limited_total", Help: "Password reset requests over the hourly limit."},
	{ID: credguard.MetricPasswordResetConfirmSuccess, Name: "credguard_password_reset_confirm_success_total", Help: "Completed password resets."},
	{ID: credguard.MetricPasswordResetConfirmFailure, Name: "credguard_password_reset_confirm_failure_total", Help: "Failed password reset confirmations."},
	{ID: credguard.MetricEmailChangeRequest, Name: "credguard_email_change_request_total", Help: "Email change requests."},
	{ID: credguard.MetricEmailChangeRateLimited, Name: "credguard_email_change_rate_limited_total", Help: "Email change requests over the hourly limit."},
	{ID: credguard.MetricEmailChangeConfirmSuccess, Name: "credguard_email_change_confirm_success_total", Help: "Completed email changes."},
	{ID: credguard.MetricEmailChangeConfirmFailure, Name: "credguard_email_change_confirm_failure_total", Help: "Failed email change confirmations."},
	{ID: credguard.MetricEmailChangeConflict, Name: "credguard_email_change_conflict_total", Help: "Email changes refused because the address is taken."},
	{ID: credguard.MetricMailSent, Name: "credguard_mail_sent_total", Help: "Notification emails delivered to the sender."},
	{ID: credguard.MetricMailFailed, Name: "credguard_mail_failed_total", Help: "Notification emails the sender rejected."},
	{ID: credguard.MetricMailThrottled, Name: "credguard_mail_throttled_total", Help: "Notification emails suppressed by the outbound limit."},
	{ID: credguard.MetricSweepRemoved, Name: "credguard_sweep_removed_total", Help: "Expired records removed by the sweeper."},
	{ID: credguard.MetricSweepFailed, Name: "credguard_sweep_failed_total", Help: "Sweep tasks that returned an error."},
}

// HistogramDefs lists every histogram.
var HistogramDefs = []HistogramDef{
	{ID: credguard.MetricValidateLatency, Name: "credguard_validate_latency_seconds", Help: "Access token validation latency."},
}

// HistogramBounds are the upper bucket bounds in Prometheus le notation.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds spelled for instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, zero-filling short input.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
