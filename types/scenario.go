package types

import "context"

// ScenarioSource lists the scenarios participants can be assigned to.
//
// Implementations must be safe for concurrent use.
type ScenarioSource interface {
	// ListScenarios returns every assignable scenario.
	//
	// Returns ErrNoScenarios when the catalog is empty.
	ListScenarios(ctx context.Context) ([]Scenario, error)
}

// ScenarioStrategy picks the scenario for a new participant.
//
// Implementations must select and record the choice in a single store
// transaction so concurrent callers never observe the same stale minimum.
type ScenarioStrategy interface {
	// Name identifies the policy in logs and metrics.
	Name() string

	// Select chooses one scenario id and records the choice.
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//   - scenarios: Non-empty list of candidate scenario ids
	//
	// Returns:
	//   - string: The chosen scenario id
	//   - error: ErrInvalidArgument for empty input, ErrAllocationFailed on store failure
	Select(ctx context.Context, scenarios []string) (string, error)
}
