package internaldefs

import (
	goAssist "github.com/MrEthical07/goAssist"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   goAssist.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   goAssist.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in output order.
var CounterDefs = []CounterDef{
	{ID: goAssist.MetricLoginSuccess, Name: "goassist_login_success_total", Help: "Committed logins."},
	{ID: goAssist.MetricLoginFailure, Name: "goassist_login_failure_total", Help: "Failed login attempts."},
	{ID: goAssist.MetricRegisterSuccess, Name: "goassist_register_success_total", Help: "Committed registrations."},
	{ID: goAssist.MetricRegisterFailure, Name: "goassist_register_failure_total", Help: "Failed registration attempts."},
	{ID: goAssist.MetricLoginSuperseded, Name: "goassist_login_superseded_total", Help: "Login or register results discarded after a newer transition."},
	{ID: goAssist.MetricLogout, Name: "goassist_logout_total", Help: "Logout operations."},
	{ID: goAssist.MetricSessionInvalidated, Name: "goassist_session_invalidated_total", Help: "Sessions invalidated after a 401."},
	{ID: goAssist.MetricSessionExpired, Name: "goassist_session_expired_total", Help: "Sessions torn down at expiry."},
	{ID: goAssist.MetricRestoreAuthenticated, Name: "goassist_restore_authenticated_total", Help: "Restores that adopted a stored session."},
	{ID: goAssist.MetricRestoreAnonymous, Name: "goassist_restore_anonymous_total", Help: "Restores without a usable stored session."},
	{ID: goAssist.MetricRestoreExpired, Name: "goassist_restore_expired_total", Help: "Restores that discarded an expired session."},
	{ID: goAssist.MetricGatewayRequest, Name: "goassist_gateway_request_total", Help: "Gateway calls."},
	{ID: goAssist.MetricGatewayFailure, Name: "goassist_gateway_failure_total", Help: "Gateway calls that failed."},
	{ID: goAssist.MetricGatewayUnauthorized, Name: "goassist_gateway_unauthorized_total", Help: "Gateway calls answered with 401."},
	{ID: goAssist.MetricGatewayTransportFailure, Name: "goassist_gateway_transport_failure_total", Help: "Gateway calls that received no response."},
	{ID: goAssist.MetricAnalyze, Name: "goassist_analyze_total", Help: "Successful stack trace analyses."},
	{ID: goAssist.MetricHistorySaved, Name: "goassist_history_saved_total", Help: "Saved history entries."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goAssist.MetricGatewayLatency, Name: "goassist_gateway_latency_seconds", Help: "Gateway round-trip latency."},
}

// HistogramBounds are the upper bounds of the eight latency buckets.
var HistogramBounds = []string{
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds in instrument-name form.
var HistogramBoundSuffix = []string{
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"inf",
}

// EventsDroppedName is the counter of events dropped under backpressure.
const EventsDroppedName = "goassist_events_dropped_total"

// EventsDroppedHelp describes EventsDroppedName.
const EventsDroppedHelp = "Session events dropped due to dispatcher backpressure."

// NormalizeBuckets pads or truncates raw to eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
