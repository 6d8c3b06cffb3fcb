package metrics

import "github.com/arloliu/cohort/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external
// metrics collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Example:
//
//	eng, err := cohort.NewEngine(&cfg, st, src, cohort.WithMetrics(metrics.NewNop()))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// OrNop returns m, or a NopMetrics when m is nil.
func OrNop(m types.MetricsCollector) types.MetricsCollector {
	if m == nil {
		return NewNop()
	}

	return m
}

// StoreMetrics implementation

// RecordTransaction discards the transaction metric.
func (n *NopMetrics) RecordTransaction(_ /* attempts */ int, _ /* outcome */ string) {}

// RecordStoreOperationDuration discards the store latency metric.
func (n *NopMetrics) RecordStoreOperationDuration(_ /* operation */ string, _ /* duration */ float64) {
}

// AllocatorMetrics implementation

// RecordAllocation discards the allocation metric.
func (n *NopMetrics) RecordAllocation(_ /* counter */ string, _ /* success */ bool) {}

// CycleMetrics implementation

// RecordBlockIssued discards the block metric.
func (n *NopMetrics) RecordBlockIssued(_ /* scenario */ string) {}

// RecordCycleRollover discards the rollover metric.
func (n *NopMetrics) RecordCycleRollover(_ /* scenario */, _ /* reason */ string) {}

// EntropyMetrics implementation

// RecordRegistration discards the registration metric.
func (n *NopMetrics) RecordRegistration(_ /* scenario */ string, _ /* accepted */ bool) {}

// RecordGuardBypass discards the bypass metric.
func (n *NopMetrics) RecordGuardBypass(_ /* scenario */ string) {}

// RecordEntropy discards the entropy gauge.
func (n *NopMetrics) RecordEntropy(_ /* scenario */ string, _ /* bits */ float64) {}

// AssignmentMetrics implementation

// RecordAssignment discards the assignment metric.
func (n *NopMetrics) RecordAssignment(_ /* scenario */ string, _ /* replay */ bool, _ /* duration */ float64) {
}

// RecordAssignmentFailure discards the failure metric.
func (n *NopMetrics) RecordAssignmentFailure(_ /* reason */ string) {}
