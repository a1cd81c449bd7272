package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef maps one engine counter onto an exported series. Defs sharing
// a Name form one family, told apart by the outcome label.
type CounterDef struct {
	ID      goSession.MetricID
	Name    string
	Help    string
	Outcome string
}

// HistogramDef names one exported latency histogram.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

const (
	loginFamily   = "gosession_login_total"
	loginHelp     = "Login attempts by outcome."
	refreshFamily = "gosession_refresh_total"
	refreshHelp   = "Refresh attempts by outcome."
)

// CounterDefs lists every counter in exposition order. Family members are
// adjacent.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricLoginSuccess, Name: loginFamily, Help: loginHelp, Outcome: "success"},
	{ID: goSession.MetricLoginFailure, Name: loginFamily, Help: loginHelp, Outcome: "failure"},
	{ID: goSession.MetricLoginRateLimited, Name: loginFamily, Help: loginHelp, Outcome: "rate_limited"},
	{ID: goSession.MetricRefreshSuccess, Name: refreshFamily, Help: refreshHelp, Outcome: "success"},
	{ID: goSession.MetricRefreshUnknown, Name: refreshFamily, Help: refreshHelp, Outcome: "unknown"},
	{ID: goSession.MetricRefreshExpired, Name: refreshFamily, Help: refreshHelp, Outcome: "expired"},
	{ID: goSession.MetricRefreshRevoked, Name: refreshFamily, Help: refreshHelp, Outcome: "revoked"},
	{ID: goSession.MetricRefreshReplayed, Name: refreshFamily, Help: refreshHelp, Outcome: "replayed"},
	{ID: goSession.MetricRefreshRaceLost, Name: refreshFamily, Help: refreshHelp, Outcome: "race_lost"},
	{ID: goSession.MetricRefreshStoreUnavailable, Name: refreshFamily, Help: refreshHelp, Outcome: "store_unavailable"},
	{ID: goSession.MetricChainRecordsRevoked, Name: "gosession_chain_records_revoked_total", Help: "Refresh records revoked by replay or logout."},
	{ID: goSession.MetricLogout, Name: "gosession_logout_total", Help: "Logout operations."},
	{ID: goSession.MetricValidateFailure, Name: "gosession_validate_failure_total", Help: "Rejected access tokens."},
	{ID: goSession.MetricBlacklistHit, Name: "gosession_blacklist_hit_total", Help: "Access tokens rejected by the blacklist."},
}

// AuditDroppedName is the counter fed by the dispatcher drop count.
const AuditDroppedName = "gosession_audit_dropped_total"

// AuditDroppedHelp describes [AuditDroppedName].
const AuditDroppedHelp = "Audit events dropped under dispatcher backpressure."

// Family is a run of CounterDefs sharing a name.
type Family struct {
	Name    string
	Help    string
	Members []CounterDef
}

// Families groups CounterDefs by name, preserving order.
func Families() []Family {
	var out []Family
	for _, def := range CounterDefs {
		if n := len(out); n > 0 && out[n-1].Name == def.Name {
			out[n-1].Members = append(out[n-1].Members, def)
			continue
		}
		out = append(out, Family{Name: def.Name, Help: def.Help, Members: []CounterDef{def}})
	}
	return out
}

// HistogramDefs lists the latency histograms.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricValidateLatency, Name: "gosession_validate_latency_seconds", Help: "Access token validation latency."},
	{ID: goSession.MetricRefreshLatency, Name: "gosession_refresh_latency_seconds", Help: "Refresh rotation latency."},
}

// HistogramBounds are the upper bucket bounds in seconds.
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

// HistogramBoundSuffix names each bound in instrument names.
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

// NormalizeBuckets copies raw into a fixed array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
