package internaldefs

import (
	"github.com/alebarre/credauth"
)

// CounterDef names one credauth counter.
type CounterDef struct {
	ID   credauth.MetricID
	Name string
	Help string
}

// HistogramDef names one credauth histogram.
type HistogramDef struct {
	ID   credauth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter exported for AuditDropped.
const (
	AuditDroppedName = "credauth_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

var CounterDefs = []CounterDef{
	{ID: credauth.MetricLoginSuccess, Name: "credauth_login_success_total", Help: "Successful logins."},
	{ID: credauth.MetricLoginFailure, Name: "credauth_login_failure_total", Help: "Failed logins, locked attempts excluded."},
	{ID: credauth.MetricLoginLocked, Name: "credauth_login_locked_total", Help: "Login attempts refused by the lockout."},
	{ID: credauth.MetricRefreshSuccess, Name: "credauth_refresh_success_total", Help: "Successful rotation token exchanges."},
	{ID: credauth.MetricRefreshFailure, Name: "credauth_refresh_failure_total", Help: "Failed rotation token exchanges."},
	{ID: credauth.MetricRefreshRotationConflict, Name: "credauth_refresh_rotation_conflict_total", Help: "Refreshes that lost a rotation race or presented a spent token."},
	{ID: credauth.MetricLogout, Name: "credauth_logout_total", Help: "Single-token logouts."},
	{ID: credauth.MetricSessionsRevoked, Name: "credauth_sessions_revoked_total", Help: "Bulk revocations of a principal's rotation tokens."},
	{ID: credauth.MetricPasswordChangeSuccess, Name: "credauth_password_change_success_total", Help: "Successful password changes."},
	{ID: credauth.MetricPasswordChangeInvalidCurrent, Name: "credauth_password_change_invalid_current_total", Help: "Password changes rejected for a wrong current password."},
	{ID: credauth.MetricPasswordPolicyRejected, Name: "credauth_password_policy_rejected_total", Help: "Passwords rejected by the policy."},
	{ID: credauth.MetricPasswordRehashed, Name: "credauth_password_rehashed_total", Help: "Legacy hashes upgraded at login."},
	{ID: credauth.MetricCodeIssued, Name: "credauth_code_issued_total", Help: "One-time codes issued."},
	{ID: credauth.MetricCodeConsumed, Name: "credauth_code_consumed_total", Help: "One-time codes spent."},
	{ID: credauth.MetricCodeFailed, Name: "credauth_code_failed_total", Help: "Rejected one-time code presentations."},
	{ID: credauth.MetricCodeAttemptsExceeded, Name: "credauth_code_attempts_exceeded_total", Help: "One-time codes burned by the attempt cap."},
	{ID: credauth.MetricCodeCooldown, Name: "credauth_code_cooldown_total", Help: "Resends refused by the cooldown."},
	{ID: credauth.MetricCodeRequestLimited, Name: "credauth_code_request_limited_total", Help: "Code requests refused by the per-client budget."},
	{ID: credauth.MetricSignupSuccess, Name: "credauth_signup_success_total", Help: "Self-registrations."},
	{ID: credauth.MetricSignupDuplicate, Name: "credauth_signup_duplicate_total", Help: "Self-registrations rejected as duplicates."},
	{ID: credauth.MetricSignupVerified, Name: "credauth_signup_verified_total", Help: "Self-registrations verified by code."},
	{ID: credauth.MetricResetRequested, Name: "credauth_reset_requested_total", Help: "Password reset requests."},
	{ID: credauth.MetricResetSuccess, Name: "credauth_reset_success_total", Help: "Completed password resets."},
	{ID: credauth.MetricRolesUpdated, Name: "credauth_roles_updated_total", Help: "Role changes."},
	{ID: credauth.MetricCredentialDeleted, Name: "credauth_credential_deleted_total", Help: "Deleted credentials."},
	{ID: credauth.MetricCredentialDisabled, Name: "credauth_credential_disabled_total", Help: "Disabled credentials."},
	{ID: credauth.MetricLastAdminRejected, Name: "credauth_last_admin_rejected_total", Help: "Changes refused because they would remove the last admin."},
}

var HistogramDefs = []HistogramDef{
	{ID: credauth.MetricValidateLatency, Name: "credauth_validate_latency_seconds", Help: "Session token validation latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// snapshot bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each snapshot bucket, +Inf included, for
// exporters that model buckets as separate gauges.
var HistogramBoundSuffix = []string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}

// NormalizeBuckets copies raw into a fixed array, zero-filling short input.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
