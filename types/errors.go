package types

import (
	"errors"
	"strings"
)

// Sentinel errors for the cohort library.
//
// Errors are checked with errors.Is(). Components wrap external failures with
// context using fmt.Errorf("%s: %w", msg, err) and keep the sentinel in the chain.
//
// Error taxonomy:
//   - ErrInvalidArgument: surfaced immediately, never retried
//   - ErrAllocationFailed: a store transaction never committed; retry the whole operation
//   - ErrDiversityGuardExhausted: not fatal, the assignment degrades to accept-with-flag
//   - ErrCatalogMissing: triggers lazy generation, never returned by Engine.Assign

// Engine errors - public API errors returned by the Engine.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrStoreRequired is returned when the node store is nil.
	ErrStoreRequired = errors.New("node store is required")

	// ErrScenarioSourceRequired is returned when the scenario source is nil.
	ErrScenarioSourceRequired = errors.New("scenario source is required")

	// ErrInvalidArgument is returned for empty candidate sets, malformed ids and
	// other caller mistakes.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAssignmentIncomplete is returned when an assignment record exists but is
	// missing the parts an operation needs (e.g. recording a bid before assignment).
	ErrAssignmentIncomplete = errors.New("assignment incomplete")

	// ErrParticipantNotFound is returned when a participant has no assignment record.
	ErrParticipantNotFound = errors.New("participant not found")
)

// Allocation errors - balanced counter allocator.
var (
	// ErrAllocationFailed is returned when the counter transaction never committed.
	ErrAllocationFailed = errors.New("allocation failed")
)

// Design and cycle errors.
var (
	// ErrCatalogMissing indicates a scenario has no generated conditions yet.
	ErrCatalogMissing = errors.New("scenario catalog missing")

	// ErrCycleUnavailable is returned when no block could be issued even after
	// reinitializing the cycle.
	ErrCycleUnavailable = errors.New("cycle block unavailable")

	// ErrNoScenarios is returned when the scenario source lists nothing.
	ErrNoScenarios = errors.New("no scenarios available")
)

// Entropy guard errors.
var (
	// ErrDiversityGuardExhausted indicates no candidate satisfied the entropy floor
	// within the attempt budget. Reported through hooks and metrics only.
	ErrDiversityGuardExhausted = errors.New("diversity guard exhausted")
)

// Store errors - transactional node store.
var (
	// ErrNodeNotFound is returned by Get when no value exists at the path.
	ErrNodeNotFound = errors.New("node not found")

	// ErrTxAbort is returned by an UpdateFunc to leave the node unchanged.
	// Transact reports the attempt as not committed and returns no error.
	ErrTxAbort = errors.New("transaction aborted")

	// ErrTxConflict is returned when a transaction kept losing to concurrent
	// writers until the store's attempt budget ran out.
	ErrTxConflict = errors.New("transaction conflict")

	// ErrInvalidPath is returned for paths the store cannot address.
	ErrInvalidPath = errors.New("invalid node path")

	// ErrSchemaViolation is returned when a stored value does not decode into the
	// schema registered for its path.
	ErrSchemaViolation = errors.New("node schema violation")

	// ErrStoreClosed is returned after Close.
	ErrStoreClosed = errors.New("store closed")

	// ErrStoreUnavailable wraps backend connectivity failures (NATS timeouts,
	// refused connections, locked database files).
	ErrStoreUnavailable = errors.New("store unavailable")
)

// IsRetryable reports whether err is worth retrying at the operation level.
//
// Parameters:
//   - err: The error to check
//
// Returns:
//   - bool: true for allocation failures, transaction conflicts and unavailable stores
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, ErrAllocationFailed) ||
		errors.Is(err, ErrTxConflict) ||
		errors.Is(err, ErrStoreUnavailable)
}

// IsNotFound reports whether err indicates an absent node.
//
// Handles the sentinel and the NATS "key not found" message which may arrive
// wrapped as plain text from older servers.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNodeNotFound) {
		return true
	}

	return strings.Contains(err.Error(), "key not found")
}
