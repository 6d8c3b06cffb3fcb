package types

// Logger defines methods for structured logging.
//
// Compatible with zap.SugaredLogger and other structured loggers.
// All methods accept key-value pairs for structured fields.
type Logger interface {
	// Debug logs a message at DebugLevel.
	Debug(msg string, keysAndValues ...any)

	// Info logs a message at InfoLevel.
	Info(msg string, keysAndValues ...any)

	// Warn logs a message at WarnLevel.
	Warn(msg string, keysAndValues ...any)

	// Error logs a message at ErrorLevel.
	Error(msg string, keysAndValues ...any)

	// Fatal logs a message at FatalLevel and calls os.Exit(1).
	Fatal(msg string, keysAndValues ...any)
}

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and safe for concurrent use; every
// request handler calling into the Engine records through the same collector.
//
// This interface composes smaller, component-focused interfaces.
type MetricsCollector interface {
	StoreMetrics
	AllocatorMetrics
	CycleMetrics
	EntropyMetrics
	AssignmentMetrics
}

// StoreMetrics defines metrics for node store transactions.
type StoreMetrics interface {
	// RecordTransaction records one Transact call.
	//
	// Parameters:
	//   - attempts: How many times the update function ran
	//   - outcome: "committed", "aborted", "conflict" or "error"
	RecordTransaction(attempts int, outcome string)

	// RecordStoreOperationDuration records store operation latency.
	//
	// Parameters:
	//   - operation: "get", "set", "push", "transact", "update_multi"
	//   - duration: Time taken in seconds
	RecordStoreOperationDuration(operation string, duration float64)
}

// AllocatorMetrics defines metrics for the balanced counter allocator.
type AllocatorMetrics interface {
	// RecordAllocation records an allocation attempt against a counter.
	//
	// Parameters:
	//   - counter: Counter name (last path segment)
	//   - success: true if a candidate was chosen and committed
	RecordAllocation(counter string, success bool)
}

// CycleMetrics defines metrics for the cycle manager.
type CycleMetrics interface {
	// RecordBlockIssued records one block handed out for a scenario.
	RecordBlockIssued(scenario string)

	// RecordCycleRollover records a cycle (re)initialization.
	//
	// Parameters:
	//   - scenario: Scenario id
	//   - reason: "init", "exhausted", "missing", "invalid", "fallback"
	RecordCycleRollover(scenario, reason string)
}

// EntropyMetrics defines metrics for the entropy-guarded registrar.
type EntropyMetrics interface {
	// RecordRegistration records a registration attempt outcome.
	RecordRegistration(scenario string, accepted bool)

	// RecordGuardBypass records an accept-with-flag fallback.
	RecordGuardBypass(scenario string)

	// RecordEntropy sets the last observed entropy (bits) for a scenario.
	RecordEntropy(scenario string, bits float64)
}

// AssignmentMetrics defines metrics for the assignment record manager.
type AssignmentMetrics interface {
	// RecordAssignment records an Assign call.
	//
	// Parameters:
	//   - scenario: Chosen scenario id (empty on failure)
	//   - replay: true if an existing record was returned unchanged
	//   - duration: Time taken in seconds
	RecordAssignment(scenario string, replay bool, duration float64)

	// RecordAssignmentFailure records a failed Assign call by error class.
	RecordAssignmentFailure(reason string)
}
