package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSentinelErrors(t *testing.T) {
	t.Run("errors.Is works through wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("allocate /metrics/scenario_counts: %w", ErrAllocationFailed)
		require.True(t, errors.Is(wrapped, ErrAllocationFailed))
		require.False(t, errors.Is(wrapped, ErrInvalidArgument))

		joined := errors.Join(ErrTxConflict, errors.New("additional context"))
		require.True(t, errors.Is(joined, ErrTxConflict))
	})

	t.Run("all errors are distinct", func(t *testing.T) {
		allErrors := []error{
			ErrInvalidConfig,
			ErrStoreRequired,
			ErrScenarioSourceRequired,
			ErrInvalidArgument,
			ErrAssignmentIncomplete,
			ErrParticipantNotFound,
			ErrAllocationFailed,
			ErrCatalogMissing,
			ErrCycleUnavailable,
			ErrNoScenarios,
			ErrDiversityGuardExhausted,
			ErrNodeNotFound,
			ErrTxAbort,
			ErrTxConflict,
			ErrInvalidPath,
			ErrSchemaViolation,
			ErrStoreClosed,
			ErrStoreUnavailable,
		}

		for i, err1 := range allErrors {
			for j, err2 := range allErrors {
				if i == j {
					require.True(t, errors.Is(err1, err2), "error should equal itself: %v", err1)
				} else {
					require.False(t, errors.Is(err1, err2), "errors should be distinct: %v vs %v", err1, err2)
				}
			}
		}
	})
}

func TestIsRetryable(t *testing.T) {
	t.Run("returns false for nil error", func(t *testing.T) {
		require.False(t, IsRetryable(nil))
	})

	t.Run("returns true for allocation failures and conflicts", func(t *testing.T) {
		require.True(t, IsRetryable(ErrAllocationFailed))
		require.True(t, IsRetryable(fmt.Errorf("commit: %w", ErrTxConflict)))
		require.True(t, IsRetryable(fmt.Errorf("get: %w", ErrStoreUnavailable)))
	})

	t.Run("returns false for argument errors", func(t *testing.T) {
		require.False(t, IsRetryable(ErrInvalidArgument))
		require.False(t, IsRetryable(ErrSchemaViolation))
	})
}

func TestIsNotFound(t *testing.T) {
	t.Run("returns false for nil error", func(t *testing.T) {
		require.False(t, IsNotFound(nil))
	})

	t.Run("returns true for wrapped sentinel", func(t *testing.T) {
		require.True(t, IsNotFound(fmt.Errorf("get /cycles/s1: %w", ErrNodeNotFound)))
	})

	t.Run("returns true for NATS message", func(t *testing.T) {
		require.True(t, IsNotFound(errors.New("nats: key not found")))
	})

	t.Run("returns false for unrelated error", func(t *testing.T) {
		require.False(t, IsNotFound(errors.New("some other error")))
	})
}
