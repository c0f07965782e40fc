package internaldefs

import (
	"strconv"
	"strings"

	ssoBroker "github.com/MrEthical07/ssoBroker"
)

// CounterDef binds a broker counter to its exported name.
type CounterDef struct {
	ID   ssoBroker.MetricID
	Name string
	Help string
}

// HistogramDef binds a broker latency histogram to its exported name.
type HistogramDef struct {
	ID   ssoBroker.MetricID
	Name string
	Help string
}

// AuditDroppedName is exported alongside the broker counters.
const AuditDroppedName = "ssobroker_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Audit events dropped under dispatcher backpressure."

var CounterDefs = []CounterDef{
	{ID: ssoBroker.MetricCreateSuccess, Name: "ssobroker_create_success_total", Help: "Logins the authority accepted."},
	{ID: ssoBroker.MetricCreateRejected, Name: "ssobroker_create_rejected_total", Help: "Logins refused by the authority or with blank credentials."},
	{ID: ssoBroker.MetricCreateUnavailable, Name: "ssobroker_create_unavailable_total", Help: "Logins that failed to reach the authority."},
	{ID: ssoBroker.MetricCreateMalformed, Name: "ssobroker_create_malformed_total", Help: "Successful login responses that could not be decoded."},
	{ID: ssoBroker.MetricCreateRateLimited, Name: "ssobroker_create_rate_limited_total", Help: "Logins refused by the login throttle."},
	{ID: ssoBroker.MetricResumeSuccess, Name: "ssobroker_resume_success_total", Help: "Bearer tokens the authority confirmed."},
	{ID: ssoBroker.MetricResumeShortCircuit, Name: "ssobroker_resume_short_circuit_total", Help: "Resumes answered from the host session."},
	{ID: ssoBroker.MetricResumeNoToken, Name: "ssobroker_resume_no_token_total", Help: "Resumes without a bearer-token cookie."},
	{ID: ssoBroker.MetricResumeRejected, Name: "ssobroker_resume_rejected_total", Help: "Bearer tokens the authority refused."},
	{ID: ssoBroker.MetricResumeUnavailable, Name: "ssobroker_resume_unavailable_total", Help: "Resumes that failed to reach the authority."},
	{ID: ssoBroker.MetricResumeMalformed, Name: "ssobroker_resume_malformed_total", Help: "Successful resume responses that could not be decoded."},
	{ID: ssoBroker.MetricSessionEnded, Name: "ssobroker_session_ended_total", Help: "Ended sessions."},
	{ID: ssoBroker.MetricStaleCookieCleared, Name: "ssobroker_stale_cookie_cleared_total", Help: "Rejected bearer-token cookies deleted."},
	{ID: ssoBroker.MetricThrottleFailOpen, Name: "ssobroker_throttle_fail_open_total", Help: "Logins let through because the throttle backend failed."},
}

var HistogramDefs = []HistogramDef{
	{ID: ssoBroker.MetricCreateLatency, Name: "ssobroker_create_latency_seconds", Help: "Authority new-session call latency."},
	{ID: ssoBroker.MetricResumeLatency, Name: "ssobroker_resume_latency_seconds", Help: "Authority existing-session call latency."},
}

// BucketCount includes the +Inf bucket.
const BucketCount = ssoBroker.HistogramBucketCount

// HistogramBounds returns the finite upper bounds in seconds.
func HistogramBounds() []float64 {
	out := make([]float64, len(ssoBroker.HistogramUpperBounds))
	copy(out, ssoBroker.HistogramUpperBounds[:])
	return out
}

// HistogramBoundSuffix returns instrument-safe suffixes for every bucket,
// ending with "inf".
func HistogramBoundSuffix() []string {
	out := make([]string, 0, BucketCount)
	for _, b := range ssoBroker.HistogramUpperBounds {
		out = append(out, strings.ReplaceAll(strconv.FormatFloat(b, 'f', -1, 64), ".", "_"))
	}
	return append(out, "inf")
}

// NormalizeBuckets pads or truncates raw to BucketCount entries.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
