// Package metrics holds the prometheus collectors shared by the lifecycle
// and sync layers. Registration tolerates duplicates so tests and factories
// may build components more than once per process.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LifecycleMetrics counts what happens to orders.
type LifecycleMetrics struct {
	transitionsApplied *prometheus.CounterVec
	transitionDuration prometheus.Histogram
	versionConflicts   prometheus.Counter
	idempotentReplays  prometheus.Counter
	rejectedEvents     *prometheus.CounterVec
	scansRecorded      *prometheus.CounterVec
}

// NewLifecycleMetrics registers the lifecycle collectors on the default registerer.
func NewLifecycleMetrics() *LifecycleMetrics {
	return newLifecycleMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newLifecycleMetricsWithRegisterer(registerer prometheus.Registerer) *LifecycleMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &LifecycleMetrics{
		transitionsApplied: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "wms_order_transitions_total",
			Help: "Total number of accepted order transitions grouped by event type.",
		}, []string{"event"}),
		transitionDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "wms_order_apply_duration_seconds",
			Help:    "Duration of guarded event application in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		versionConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "wms_order_version_conflicts_total",
			Help: "Total number of optimistic-lock rejections.",
		}),
		idempotentReplays: registerCounter(registerer, prometheus.CounterOpts{
			Name: "wms_order_idempotent_replays_total",
			Help: "Total number of requests served from the idempotency cache.",
		}),
		rejectedEvents: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "wms_order_events_rejected_total",
			Help: "Total number of rejected order events grouped by reason.",
		}, []string{"reason"}),
		scansRecorded: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "wms_scans_recorded_total",
			Help: "Total number of recorded scan events grouped by type.",
		}, []string{"type"}),
	}
}

func (m *LifecycleMetrics) RecordTransition(event string, duration time.Duration) {
	if m == nil {
		return
	}
	m.transitionsApplied.WithLabelValues(event).Inc()
	m.transitionDuration.Observe(duration.Seconds())
}

func (m *LifecycleMetrics) RecordVersionConflict() {
	if m == nil {
		return
	}
	m.versionConflicts.Inc()
}

func (m *LifecycleMetrics) RecordIdempotentReplay() {
	if m == nil {
		return
	}
	m.idempotentReplays.Inc()
}

func (m *LifecycleMetrics) RecordRejection(reason string) {
	if m == nil {
		return
	}
	m.rejectedEvents.WithLabelValues(reason).Inc()
}

func (m *LifecycleMetrics) RecordScan(scanType string) {
	if m == nil {
		return
	}
	m.scansRecorded.WithLabelValues(scanType).Inc()
}

// SyncMetrics tracks the resilient ERP client.
type SyncMetrics struct {
	callAttempts *prometheus.CounterVec
	callDuration prometheus.Histogram
	breakerState prometheus.Gauge
	retries      prometheus.Counter
}

// NewSyncMetrics registers the ERP sync collectors on the default registerer.
func NewSyncMetrics() *SyncMetrics {
	return newSyncMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newSyncMetricsWithRegisterer(registerer prometheus.Registerer) *SyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SyncMetrics{
		callAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "wms_erp_call_attempts_total",
			Help: "Total number of ERP call attempts grouped by result.",
		}, []string{"result"}),
		callDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "wms_erp_call_duration_seconds",
			Help:    "Duration of resilient ERP calls in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}),
		breakerState: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "wms_erp_breaker_state",
			Help: "Circuit breaker state for the ERP dependency (0=closed, 1=open, 2=half-open).",
		}),
		retries: registerCounter(registerer, prometheus.CounterOpts{
			Name: "wms_erp_call_retries_total",
			Help: "Total number of ERP call retries after a failed attempt.",
		}),
	}
}

func (m *SyncMetrics) RecordAttempt(result string) {
	if m == nil {
		return
	}
	m.callAttempts.WithLabelValues(result).Inc()
}

func (m *SyncMetrics) RecordDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.callDuration.Observe(duration.Seconds())
}

func (m *SyncMetrics) RecordRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *SyncMetrics) SetBreakerState(state float64) {
	if m == nil {
		return
	}
	m.breakerState.Set(state)
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}
