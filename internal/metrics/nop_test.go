package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewNop(t *testing.T) {
	m := NewNop()

	require.NotNil(t, m)
	require.IsType(t, &NopMetrics{}, m)
}

func TestNopMetrics_DoesNotPanic(t *testing.T) {
	m := NewNop()

	require.NotPanics(t, func() {
		m.RecordTransaction(3, "committed")
		m.RecordStoreOperationDuration("get", 0.01)
		m.RecordAllocation("scenario_counts", true)
		m.RecordBlockIssued("s1")
		m.RecordCycleRollover("s1", "exhausted")
		m.RecordRegistration("s1", false)
		m.RecordGuardBypass("s1")
		m.RecordEntropy("s1", 2.5)
		m.RecordAssignment("s1", true, 0.2)
		m.RecordAssignmentFailure("allocation_failed")
	})
}

func TestOrNop(t *testing.T) {
	require.IsType(t, &NopMetrics{}, OrNop(nil))

	m := NewNop()
	require.Same(t, m, OrNop(m))
}
