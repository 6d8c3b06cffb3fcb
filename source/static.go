package source

import (
	"context"
	"slices"
	"sync"

	"github.com/arloliu/cohort/types"
)

// Static implements a scenario source with a fixed list of scenarios.
type Static struct {
	mu        sync.RWMutex
	scenarios []types.Scenario
}

var _ types.ScenarioSource = (*Static)(nil)

// NewStatic creates a new static scenario source.
//
// Useful for tests and deployments whose scenarios are known at startup.
//
// Parameters:
//   - scenarios: Fixed list of scenarios
//
// Returns:
//   - *Static: Initialized static source
//
// Example:
//
//	src := source.NewStatic([]types.Scenario{
//	    {ID: "s1", TargetCriterion: "recommendation"},
//	    {ID: "s2", TargetCriterion: "coverage"},
//	})
//	eng, err := cohort.NewEngine(&cfg, store, src)
func NewStatic(scenarios []types.Scenario) *Static {
	return &Static{scenarios: slices.Clone(scenarios)}
}

// NewStaticIDs creates a static source from bare scenario ids.
func NewStaticIDs(ids ...string) *Static {
	scenarios := make([]types.Scenario, len(ids))
	for i, id := range ids {
		scenarios[i] = types.Scenario{ID: id}
	}

	return &Static{scenarios: scenarios}
}

// ListScenarios returns a copy of the static list.
//
// Returns:
//   - []types.Scenario: The fixed list of scenarios
//   - error: types.ErrNoScenarios when the list is empty
func (s *Static) ListScenarios(_ context.Context) ([]types.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.scenarios) == 0 {
		return nil, types.ErrNoScenarios
	}

	return slices.Clone(s.scenarios), nil
}

// Update replaces the scenario list.
func (s *Static) Update(scenarios []types.Scenario) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scenarios = slices.Clone(scenarios)
}
