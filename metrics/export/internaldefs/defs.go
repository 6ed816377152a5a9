package internaldefs

import (
	"github.com/MrEthical07/authsession"
)

// CounterDef names one manager counter for export.
type CounterDef struct {
	ID   authsession.MetricID
	Name string
	Help string
}

// HistogramDef names one manager histogram for export.
type HistogramDef struct {
	ID   authsession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: authsession.MetricLoginSuccess, Name: "authsession_login_success_total", Help: "Logins that established a session."},
	{ID: authsession.MetricLoginFailure, Name: "authsession_login_failure_total", Help: "Logins rejected by the API or unreachable."},
	{ID: authsession.MetricLoginSuperseded, Name: "authsession_login_superseded_total", Help: "Login responses discarded because a later session change started first."},
	{ID: authsession.MetricRegisterSuccess, Name: "authsession_register_success_total", Help: "Successful registrations."},
	{ID: authsession.MetricRegisterFailure, Name: "authsession_register_failure_total", Help: "Failed registrations."},
	{ID: authsession.MetricLogout, Name: "authsession_logout_total", Help: "Explicit logouts."},
	{ID: authsession.MetricAutoLogout, Name: "authsession_auto_logout_total", Help: "Sessions ended by token expiration."},
	{ID: authsession.MetricAutoLogoutArmed, Name: "authsession_auto_logout_armed_total", Help: "Auto-logout timers armed."},
	{ID: authsession.MetricAutoLogoutUnarmed, Name: "authsession_auto_logout_unarmed_total", Help: "Sessions whose token carried no usable expiration."},
	{ID: authsession.MetricRestoreSuccess, Name: "authsession_restore_success_total", Help: "Persisted sessions restored."},
	{ID: authsession.MetricRestoreEmpty, Name: "authsession_restore_empty_total", Help: "Restores that found no persisted session."},
	{ID: authsession.MetricRestoreExpired, Name: "authsession_restore_expired_total", Help: "Persisted sessions discarded as expired or unreadable."},
	{ID: authsession.MetricStoreFailure, Name: "authsession_store_failure_total", Help: "Credential store operations that failed."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authsession.MetricLoginLatency, Name: "authsession_login_latency_seconds", Help: "Round-trip latency of login API calls."},
}

// HistogramBounds are the upper bounds of the manager's latency buckets, in seconds.
var HistogramBounds = []string{
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds made safe for instrument names.
var HistogramBoundSuffix = []string{
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"5",
	"inf",
}

// BucketCount is the number of buckets in every histogram.
const BucketCount = 8

// Cumulative turns per-bucket counts into cumulative counts. Missing buckets count as
// zero and extra ones are ignored.
func Cumulative(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < BucketCount; i++ {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
