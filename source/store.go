package source

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/arloliu/cohort/internal/node"
	"github.com/arloliu/cohort/types"
)

// CatalogPath is the node holding the scenario catalog.
const CatalogPath = "/catalog/scenarios"

// Store reads the scenario catalog from the node store on every call, so
// catalog edits take effect for the next participant without a restart.
type Store struct {
	store types.NodeStore
	path  string
}

var _ types.ScenarioSource = (*Store)(nil)

// NewStore creates a catalog-backed scenario source.
func NewStore(s types.NodeStore) *Store {
	return &Store{store: s, path: CatalogPath}
}

// ListScenarios returns the catalog's scenarios ordered by id.
//
// Returns:
//   - []types.Scenario: Catalog entries
//   - error: types.ErrNoScenarios when the catalog is absent or empty,
//     types.ErrSchemaViolation when the node is malformed
func (s *Store) ListScenarios(ctx context.Context) ([]types.Scenario, error) {
	catalog, ok, err := node.Get[types.ScenarioCatalog](ctx, s.store, s.path)
	if err != nil {
		return nil, fmt.Errorf("read scenario catalog: %w", err)
	}
	if !ok || len(catalog.Scenarios) == 0 {
		return nil, types.ErrNoScenarios
	}

	return slices.SortedFunc(maps.Values(catalog.Scenarios), func(a, b types.Scenario) int {
		return cmp.Compare(a.ID, b.ID)
	}), nil
}

// Save overwrites the catalog with scenarios.
func (s *Store) Save(ctx context.Context, scenarios []types.Scenario) error {
	catalog := types.ScenarioCatalog{Scenarios: make(map[string]types.Scenario, len(scenarios))}
	for _, sc := range scenarios {
		if sc.ID == "" {
			return fmt.Errorf("%w: scenario with empty id", types.ErrInvalidArgument)
		}
		catalog.Scenarios[sc.ID] = sc
	}

	return node.Set(ctx, s.store, s.path, catalog)
}
