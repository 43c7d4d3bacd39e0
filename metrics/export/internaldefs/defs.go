package internaldefs

import (
	"strconv"
	"strings"

	"github.com/aloneinabyss/lovelace"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   lovelace.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   lovelace.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: lovelace.MetricLoginSuccess, Name: "lovelace_login_success_total", Help: "Successful logins."},
	{ID: lovelace.MetricLoginFailure, Name: "lovelace_login_failure_total", Help: "Logins rejected with invalid credentials."},
	{ID: lovelace.MetricLoginUnverified, Name: "lovelace_login_unverified_total", Help: "Logins rejected because the email is not verified."},
	{ID: lovelace.MetricRegisterSuccess, Name: "lovelace_register_success_total", Help: "Accounts registered."},
	{ID: lovelace.MetricRegisterDuplicate, Name: "lovelace_register_duplicate_total", Help: "Registrations rejected for a taken username or email."},
	{ID: lovelace.MetricRefreshSuccess, Name: "lovelace_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: lovelace.MetricRefreshFailure, Name: "lovelace_refresh_failure_total", Help: "Failed refresh rotations."},
	{ID: lovelace.MetricRefreshReuseDetected, Name: "lovelace_refresh_reuse_detected_total", Help: "Rotated-out refresh tokens presented again."},
	{ID: lovelace.MetricAuthenticateSuccess, Name: "lovelace_authenticate_success_total", Help: "Access tokens accepted on protected routes."},
	{ID: lovelace.MetricAuthenticateFailure, Name: "lovelace_authenticate_failure_total", Help: "Access tokens rejected on protected routes."},
	{ID: lovelace.MetricTokenRevoked, Name: "lovelace_token_revoked_total", Help: "Tokens written to the revocation store."},
	{ID: lovelace.MetricLogout, Name: "lovelace_logout_total", Help: "Logout operations."},
	{ID: lovelace.MetricEmailVerificationRequest, Name: "lovelace_email_verification_request_total", Help: "Verification tokens issued."},
	{ID: lovelace.MetricEmailVerificationSuccess, Name: "lovelace_email_verification_success_total", Help: "Successful email verifications."},
	{ID: lovelace.MetricEmailVerificationFailure, Name: "lovelace_email_verification_failure_total", Help: "Failed email verifications."},
	{ID: lovelace.MetricPasswordResetRequest, Name: "lovelace_password_reset_request_total", Help: "Password reset tokens issued."},
	{ID: lovelace.MetricPasswordResetConfirmSuccess, Name: "lovelace_password_reset_confirm_success_total", Help: "Successful password resets."},
	{ID: lovelace.MetricPasswordResetConfirmFailure, Name: "lovelace_password_reset_confirm_failure_total", Help: "Failed password resets."},
	{ID: lovelace.MetricPasswordChangeSuccess, Name: "lovelace_password_change_success_total", Help: "Successful password changes."},
	{ID: lovelace.MetricPasswordChangeInvalidOld, Name: "lovelace_password_change_invalid_old_total", Help: "Password changes with a wrong current password."},
	{ID: lovelace.MetricPasswordChangeReuseRejected, Name: "lovelace_password_change_reuse_rejected_total", Help: "Password changes rejected for reusing the current password."},
	{ID: lovelace.MetricRateLimitHit, Name: "lovelace_rate_limit_hit_total", Help: "Requests denied by a rate-limit bucket."},
	{ID: lovelace.MetricRateLimitDegraded, Name: "lovelace_rate_limit_degraded_total", Help: "Rate-limit decisions served by the local fallback."},
	{ID: lovelace.MetricRevocationDegraded, Name: "lovelace_revocation_degraded_total", Help: "Revocation calls that could not reach Redis."},
	{ID: lovelace.MetricNotificationQueued, Name: "lovelace_notification_queued_total", Help: "Notifications queued for delivery."},
	{ID: lovelace.MetricNotificationFailed, Name: "lovelace_notification_failed_total", Help: "Notifications that failed to queue or deliver."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: lovelace.MetricAuthenticateLatency, Name: "lovelace_authenticate_latency_seconds", Help: "Access-token authentication latency."},
	{ID: lovelace.MetricRefreshLatency, Name: "lovelace_refresh_latency_seconds", Help: "Refresh rotation latency."},
}

// Engine-level values that are not part of MetricsSnapshot.
const (
	AuditDroppedName            = "lovelace_audit_dropped_total"
	AuditDroppedHelp            = "Dropped audit events due to dispatcher backpressure."
	NotificationDroppedName     = "lovelace_notification_dropped_total"
	NotificationDroppedHelp     = "Dropped notifications due to dispatcher backpressure."
	RevocationDegradedEntryName = "lovelace_revocation_degraded_entries"
	RevocationDegradedEntryHelp = "Revocations held only in process memory because Redis rejected the write."
)

// BucketCount is the number of histogram buckets including the +Inf overflow.
const BucketCount = len(lovelace.LatencyBuckets) + 1

// Bucket is one histogram upper bound.
type Bucket struct {
	// LE is the Prometheus "le" label value.
	LE string
	// Suffix is LE made safe for use inside an instrument name.
	Suffix string
}

// Buckets lists the latency bounds in ascending order, ending with +Inf.
var Buckets = func() []Bucket {
	out := make([]Bucket, 0, BucketCount)
	for _, bound := range lovelace.LatencyBuckets {
		le := strconv.FormatFloat(bound.Seconds(), 'f', -1, 64)
		out = append(out, Bucket{LE: le, Suffix: strings.ReplaceAll(le, ".", "_")})
	}
	return append(out, Bucket{LE: "+Inf", Suffix: "inf"})
}()

// Cumulative turns per-bucket counts into the running totals both exporters emit. Missing
// buckets count as zero and extra ones are ignored.
func Cumulative(raw []uint64) []uint64 {
	out := make([]uint64, BucketCount)
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
