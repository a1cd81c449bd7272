package goSession

import internalmetrics "github.com/MrEthical07/goSession/internal/metrics"

// MetricID identifies an engine counter or histogram.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess            = internalmetrics.MetricLoginSuccess
	MetricLoginFailure            = internalmetrics.MetricLoginFailure
	MetricLoginRateLimited        = internalmetrics.MetricLoginRateLimited
	MetricRefreshSuccess          = internalmetrics.MetricRefreshSuccess
	MetricRefreshUnknown          = internalmetrics.MetricRefreshUnknown
	MetricRefreshExpired          = internalmetrics.MetricRefreshExpired
	MetricRefreshRevoked          = internalmetrics.MetricRefreshRevoked
	MetricRefreshReplayed         = internalmetrics.MetricRefreshReplayed
	MetricRefreshRaceLost         = internalmetrics.MetricRefreshRaceLost
	MetricRefreshStoreUnavailable = internalmetrics.MetricRefreshStoreUnavailable
	// MetricChainRecordsRevoked counts records, not revocation calls.
	MetricChainRecordsRevoked = internalmetrics.MetricChainRecordsRevoked
	MetricLogout              = internalmetrics.MetricLogout
	MetricValidateFailure     = internalmetrics.MetricValidateFailure
	MetricBlacklistHit        = internalmetrics.MetricBlacklistHit
	MetricValidateLatency     = internalmetrics.MetricValidateLatency
	MetricRefreshLatency      = internalmetrics.MetricRefreshLatency
)

// Metrics is the engine's counter set.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of [Metrics].
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a counter set from cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Enabled,
		EnableLatencyHistograms: cfg.EnableLatencyHistograms,
	})
}
