package metrics

import (
	"sync"

	"github.com/arloliu/cohort/types"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Collectors are created and registered lazily on first use so constructing a
// collector never panics on duplicate registration until it is actually used.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	txAttempts     *prometheus.HistogramVec
	txOutcomes     *prometheus.CounterVec
	storeLatency   *prometheus.HistogramVec
	allocations    *prometheus.CounterVec
	blocksIssued   *prometheus.CounterVec
	cycleRollovers *prometheus.CounterVec
	registrations  *prometheus.CounterVec
	guardBypasses  *prometheus.CounterVec
	entropyBits    *prometheus.GaugeVec
	assignments    *prometheus.CounterVec
	assignLatency  prometheus.Histogram
	assignFailures *prometheus.CounterVec
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Metrics namespace (defaults to "cohort" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "cohort"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.txAttempts = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "store",
			Name:      "transaction_attempts",
			Help:      "Update function invocations per transaction by outcome.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		}, []string{"outcome"})

		p.txOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "store",
			Name:      "transactions_total",
			Help:      "Total transactions by outcome (committed,aborted,conflict,error).",
		}, []string{"outcome"})

		p.storeLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Latency of node store operations in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms .. ~1s
		}, []string{"op"})

		p.allocations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "allocator",
			Name:      "allocations_total",
			Help:      "Balanced counter allocations by counter and result.",
		}, []string{"counter", "result"})

		p.blocksIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "cycle",
			Name:      "blocks_issued_total",
			Help:      "Cycle blocks handed out by scenario.",
		}, []string{"scenario"})

		p.cycleRollovers = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "cycle",
			Name:      "rollovers_total",
			Help:      "Cycle (re)initializations by scenario and reason.",
		}, []string{"scenario", "reason"})

		p.registrations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "entropy",
			Name:      "registrations_total",
			Help:      "Order registrations by scenario and result (accepted,rejected).",
		}, []string{"scenario", "result"})

		p.guardBypasses = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "entropy",
			Name:      "guard_bypasses_total",
			Help:      "Assignments accepted without satisfying the entropy floor.",
		}, []string{"scenario"})

		p.entropyBits = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "entropy",
			Name:      "bits",
			Help:      "Shannon entropy of the order registry after the last accepted registration.",
		}, []string{"scenario"})

		p.assignments = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "assignment",
			Name:      "assignments_total",
			Help:      "Assign calls by scenario and kind (new,replay).",
		}, []string{"scenario", "kind"})

		p.assignLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "assignment",
			Name:      "duration_seconds",
			Help:      "Latency of Assign calls in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~2s
		})

		p.assignFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "assignment",
			Name:      "failures_total",
			Help:      "Failed Assign calls by reason.",
		}, []string{"reason"})

		p.reg.MustRegister(p.txAttempts)
		p.reg.MustRegister(p.txOutcomes)
		p.reg.MustRegister(p.storeLatency)
		p.reg.MustRegister(p.allocations)
		p.reg.MustRegister(p.blocksIssued)
		p.reg.MustRegister(p.cycleRollovers)
		p.reg.MustRegister(p.registrations)
		p.reg.MustRegister(p.guardBypasses)
		p.reg.MustRegister(p.entropyBits)
		p.reg.MustRegister(p.assignments)
		p.reg.MustRegister(p.assignLatency)
		p.reg.MustRegister(p.assignFailures)
	})
}

// RecordTransaction records transaction attempts and outcome.
func (p *PrometheusCollector) RecordTransaction(attempts int, outcome string) {
	p.ensureRegistered()
	p.txAttempts.WithLabelValues(outcome).Observe(float64(attempts))
	p.txOutcomes.WithLabelValues(outcome).Inc()
}

// RecordStoreOperationDuration observes store operation latency.
func (p *PrometheusCollector) RecordStoreOperationDuration(operation string, duration float64) {
	p.ensureRegistered()
	p.storeLatency.WithLabelValues(operation).Observe(duration)
}

// RecordAllocation increments the allocation counter.
func (p *PrometheusCollector) RecordAllocation(counter string, success bool) {
	p.ensureRegistered()
	p.allocations.WithLabelValues(counter, resultLabel(success, "success", "failure")).Inc()
}

// RecordBlockIssued increments issued blocks.
func (p *PrometheusCollector) RecordBlockIssued(scenario string) {
	p.ensureRegistered()
	p.blocksIssued.WithLabelValues(scenario).Inc()
}

// RecordCycleRollover increments rollovers.
func (p *PrometheusCollector) RecordCycleRollover(scenario, reason string) {
	p.ensureRegistered()
	p.cycleRollovers.WithLabelValues(scenario, reason).Inc()
}

// RecordRegistration increments registrations by result.
func (p *PrometheusCollector) RecordRegistration(scenario string, accepted bool) {
	p.ensureRegistered()
	p.registrations.WithLabelValues(scenario, resultLabel(accepted, "accepted", "rejected")).Inc()
}

// RecordGuardBypass increments guard bypasses.
func (p *PrometheusCollector) RecordGuardBypass(scenario string) {
	p.ensureRegistered()
	p.guardBypasses.WithLabelValues(scenario).Inc()
}

// RecordEntropy sets the entropy gauge.
func (p *PrometheusCollector) RecordEntropy(scenario string, bits float64) {
	p.ensureRegistered()
	p.entropyBits.WithLabelValues(scenario).Set(bits)
}

// RecordAssignment records an Assign call.
func (p *PrometheusCollector) RecordAssignment(scenario string, replay bool, duration float64) {
	p.ensureRegistered()
	p.assignments.WithLabelValues(scenario, resultLabel(replay, "replay", "new")).Inc()
	p.assignLatency.Observe(duration)
}

// RecordAssignmentFailure records a failed Assign call.
func (p *PrometheusCollector) RecordAssignmentFailure(reason string) {
	p.ensureRegistered()
	p.assignFailures.WithLabelValues(reason).Inc()
}

func resultLabel(ok bool, yes, no string) string {
	if ok {
		return yes
	}

	return no
}
