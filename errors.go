package cohort

import "github.com/arloliu/cohort/types"

// Sentinel errors returned by the Engine.
//
// They are re-exported from the types package so callers can check them with
// errors.Is without importing types.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = types.ErrInvalidConfig

	// ErrStoreRequired is returned when the node store is nil.
	ErrStoreRequired = types.ErrStoreRequired

	// ErrScenarioSourceRequired is returned when the scenario source is nil.
	ErrScenarioSourceRequired = types.ErrScenarioSourceRequired

	// ErrInvalidArgument is returned for empty participant ids, out of range
	// trial indexes and other caller mistakes.
	ErrInvalidArgument = types.ErrInvalidArgument

	// ErrAssignmentIncomplete is returned when progress is recorded for a
	// participant whose assignment lacks the needed part.
	ErrAssignmentIncomplete = types.ErrAssignmentIncomplete

	// ErrParticipantNotFound is returned when a participant has no assignment record.
	ErrParticipantNotFound = types.ErrParticipantNotFound

	// ErrAllocationFailed is returned when a balanced counter never committed.
	ErrAllocationFailed = types.ErrAllocationFailed

	// ErrDiversityGuardExhausted is reported through hooks when the entropy
	// guard fell back. Assign never returns it.
	ErrDiversityGuardExhausted = types.ErrDiversityGuardExhausted

	// ErrCatalogMissing marks a scenario without generated conditions. Assign
	// generates them lazily and never returns it.
	ErrCatalogMissing = types.ErrCatalogMissing

	// ErrCycleUnavailable is returned when no cycle block could be issued.
	ErrCycleUnavailable = types.ErrCycleUnavailable

	// ErrNoScenarios is returned when the scenario source lists nothing.
	ErrNoScenarios = types.ErrNoScenarios

	// ErrNodeNotFound is returned by NodeStore.Get for absent nodes.
	ErrNodeNotFound = types.ErrNodeNotFound

	// ErrTxAbort is returned by update functions to leave a node unchanged.
	ErrTxAbort = types.ErrTxAbort

	// ErrTxConflict is returned when a transaction never won against
	// concurrent writers.
	ErrTxConflict = types.ErrTxConflict

	// ErrInvalidPath is returned for paths a store cannot address.
	ErrInvalidPath = types.ErrInvalidPath

	// ErrSchemaViolation is returned for stored values of the wrong shape.
	ErrSchemaViolation = types.ErrSchemaViolation
)

// IsRetryable reports whether err is worth retrying as a whole operation.
func IsRetryable(err error) bool {
	return types.IsRetryable(err)
}
