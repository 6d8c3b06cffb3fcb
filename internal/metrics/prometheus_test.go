package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewPrometheus(t *testing.T) {
	t.Run("defaults namespace", func(t *testing.T) {
		p := NewPrometheus(prometheus.NewRegistry(), "")
		require.Equal(t, "cohort", p.namespace)
	})

	t.Run("registration is lazy", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		_ = NewPrometheus(reg, "lazy")

		families, err := reg.Gather()
		require.NoError(t, err)
		require.Empty(t, families)
	})
}

func TestPrometheusCollector_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	p.RecordTransaction(3, "committed")
	p.RecordTransaction(1, "aborted")
	p.RecordStoreOperationDuration("transact", 0.002)
	p.RecordAllocation("scenario_counts", true)
	p.RecordAllocation("scenario_counts", true)
	p.RecordAllocation("scenario_counts", false)
	p.RecordBlockIssued("s1")
	p.RecordCycleRollover("s1", "init")
	p.RecordRegistration("s1", true)
	p.RecordRegistration("s1", false)
	p.RecordGuardBypass("s1")
	p.RecordEntropy("s1", 4.5)
	p.RecordAssignment("s1", false, 0.01)
	p.RecordAssignment("s1", true, 0.001)
	p.RecordAssignmentFailure("allocation_failed")

	require.InDelta(t, 1.0, testutil.ToFloat64(p.txOutcomes.WithLabelValues("committed")), 0)
	require.InDelta(t, 2.0, testutil.ToFloat64(p.allocations.WithLabelValues("scenario_counts", "success")), 0)
	require.InDelta(t, 1.0, testutil.ToFloat64(p.allocations.WithLabelValues("scenario_counts", "failure")), 0)
	require.InDelta(t, 1.0, testutil.ToFloat64(p.registrations.WithLabelValues("s1", "rejected")), 0)
	require.InDelta(t, 4.5, testutil.ToFloat64(p.entropyBits.WithLabelValues("s1")), 0)
	require.InDelta(t, 1.0, testutil.ToFloat64(p.assignments.WithLabelValues("s1", "replay")), 0)
	require.InDelta(t, 1.0, testutil.ToFloat64(p.assignFailures.WithLabelValues("allocation_failed")), 0)

	count, err := testutil.GatherAndCount(reg, "test_entropy_guard_bypasses_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
