package credauth

import internalmetrics "github.com/alebarre/credauth/internal/metrics"

// MetricID identifies a counter or histogram in the in-process metrics.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess                 = internalmetrics.MetricLoginSuccess
	MetricLoginFailure                 = internalmetrics.MetricLoginFailure
	MetricLoginLocked                  = internalmetrics.MetricLoginLocked
	MetricRefreshSuccess               = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure               = internalmetrics.MetricRefreshFailure
	MetricRefreshRotationConflict      = internalmetrics.MetricRefreshRotationConflict
	MetricLogout                       = internalmetrics.MetricLogout
	MetricSessionsRevoked              = internalmetrics.MetricSessionsRevoked
	MetricPasswordChangeSuccess        = internalmetrics.MetricPasswordChangeSuccess
	MetricPasswordChangeInvalidCurrent = internalmetrics.MetricPasswordChangeInvalidCurrent
	MetricPasswordPolicyRejected       = internalmetrics.MetricPasswordPolicyRejected
	MetricPasswordRehashed             = internalmetrics.MetricPasswordRehashed
	MetricCodeIssued                   = internalmetrics.MetricCodeIssued
	MetricCodeConsumed                 = internalmetrics.MetricCodeConsumed
	MetricCodeFailed                   = internalmetrics.MetricCodeFailed
	MetricCodeAttemptsExceeded         = internalmetrics.MetricCodeAttemptsExceeded
	MetricCodeCooldown                 = internalmetrics.MetricCodeCooldown
	MetricCodeRequestLimited           = internalmetrics.MetricCodeRequestLimited
	MetricSignupSuccess                = internalmetrics.MetricSignupSuccess
	MetricSignupDuplicate              = internalmetrics.MetricSignupDuplicate
	MetricSignupVerified               = internalmetrics.MetricSignupVerified
	MetricResetRequested               = internalmetrics.MetricResetRequested
	MetricResetSuccess                 = internalmetrics.MetricResetSuccess
	MetricRolesUpdated                 = internalmetrics.MetricRolesUpdated
	MetricCredentialDeleted            = internalmetrics.MetricCredentialDeleted
	MetricCredentialDisabled           = internalmetrics.MetricCredentialDisabled
	MetricLastAdminRejected            = internalmetrics.MetricLastAdminRejected
	MetricValidateLatency              = internalmetrics.MetricValidateLatency

	metricIDCount = internalmetrics.MetricIDCount
)

// Metrics holds atomic counters and an optional latency histogram.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a Metrics instance. When Enabled is false all
// operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Enabled,
		EnableLatencyHistograms: cfg.EnableLatencyHistograms,
	})
}
