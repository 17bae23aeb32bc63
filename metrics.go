package goAssist

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a client counter.
type MetricID uint16

const (
	// MetricLoginSuccess counts committed logins.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts logins that returned an error.
	MetricLoginFailure
	// MetricRegisterSuccess counts committed registrations.
	MetricRegisterSuccess
	// MetricRegisterFailure counts registrations that returned an error.
	MetricRegisterFailure
	// MetricLoginSuperseded counts login or register results discarded because
	// a newer transition committed first.
	MetricLoginSuperseded
	// MetricLogout counts Logout calls.
	MetricLogout
	// MetricSessionInvalidated counts forced invalidations after a 401.
	MetricSessionInvalidated
	// MetricSessionExpired counts expiry teardowns after restore.
	MetricSessionExpired
	// MetricRestoreAuthenticated counts restores that adopted a stored session.
	MetricRestoreAuthenticated
	// MetricRestoreAnonymous counts restores that found nothing usable.
	MetricRestoreAnonymous
	// MetricRestoreExpired counts restores that discarded an expired session.
	MetricRestoreExpired
	// MetricGatewayRequest counts gateway calls.
	MetricGatewayRequest
	// MetricGatewayFailure counts gateway calls that returned an error.
	MetricGatewayFailure
	// MetricGatewayUnauthorized counts 401 responses.
	MetricGatewayUnauthorized
	// MetricGatewayTransportFailure counts calls that got no response.
	MetricGatewayTransportFailure
	// MetricAnalyze counts successful analyses.
	MetricAnalyze
	// MetricHistorySaved counts saved history entries.
	MetricHistorySaved
	// MetricGatewayLatency is the gateway round-trip histogram.
	MetricGatewayLatency
	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricLoginSuccess:            "login_success",
	MetricLoginFailure:            "login_failure",
	MetricRegisterSuccess:         "register_success",
	MetricRegisterFailure:         "register_failure",
	MetricLoginSuperseded:         "login_superseded",
	MetricLogout:                  "logout",
	MetricSessionInvalidated:      "session_invalidated",
	MetricSessionExpired:          "session_expired",
	MetricRestoreAuthenticated:    "restore_authenticated",
	MetricRestoreAnonymous:        "restore_anonymous",
	MetricRestoreExpired:          "restore_expired",
	MetricGatewayRequest:          "gateway_request",
	MetricGatewayFailure:          "gateway_failure",
	MetricGatewayUnauthorized:     "gateway_unauthorized",
	MetricGatewayTransportFailure: "gateway_transport_failure",
	MetricAnalyze:                 "analyze",
	MetricHistorySaved:            "history_saved",
	MetricGatewayLatency:          "gateway_latency",
}

// String returns the snake_case metric name.
func (id MetricID) String() string {
	if id >= metricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

// MetricIDCount returns the number of defined metrics.
func MetricIDCount() int {
	return int(metricIDCount)
}

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters. A nil *Metrics is a valid no-op.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates Metrics from cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc increments id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram of id. Only MetricGatewayLatency has a
// histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricGatewayLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current count of id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter. Disabled metrics yield empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricGatewayLatency].buckets[i])
		}
		s.Histograms[MetricGatewayLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 25:
		return 0
	case ms <= 50:
		return 1
	case ms <= 100:
		return 2
	case ms <= 250:
		return 3
	case ms <= 500:
		return 4
	case ms <= 1000:
		return 5
	case ms <= 2500:
		return 6
	default:
		return 7
	}
}
