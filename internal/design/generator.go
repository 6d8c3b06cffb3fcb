// Package design builds and persists the condition universe of a scenario.
//
// Two designs exist: the 32-run strength-2 orthogonal array used for trial
// sets, and the 256-run full factorial that feeds the cycle manager. Both map
// design rows onto criterion levels in the fixed order recommendation,
// frequency, missing, coverage.
package design

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/arloliu/cohort/internal/logging"
	"github.com/arloliu/cohort/internal/node"
	"github.com/arloliu/cohort/types"
)

// ConditionsPath is the node holding a scenario's condition set for a design.
func ConditionsPath(scenario string, d types.Design) string {
	return "/catalog/scenarios/" + scenario + "/conditions/" + string(d)
}

// Build materializes the condition set of design d without touching a store.
func Build(scenario string, d types.Design, now time.Time) (types.ConditionSet, error) {
	rows, err := Rows(d)
	if err != nil {
		return types.ConditionSet{}, err
	}

	conditions := make(map[string]types.Condition, len(rows))
	for i, r := range rows {
		lv, err := RowToLevels(r)
		if err != nil {
			return types.ConditionSet{}, err
		}
		conditions[strconv.Itoa(i+1)] = types.Condition{Levels: lv}
	}

	return types.ConditionSet{
		Scenario:   scenario,
		Design:     d,
		Conditions: conditions,
		CreatedAt:  now.UTC(),
	}, nil
}

// Generator creates condition sets on demand.
type Generator struct {
	store  types.NodeStore
	logger types.Logger
	now    func() time.Time
}

// NewGenerator creates a generator over s.
//
// Parameters:
//   - s: Node store holding the catalog
//   - logger: Logger (nil for no logging)
//
// Returns:
//   - *Generator: Ready to use generator
func NewGenerator(s types.NodeStore, logger types.Logger) *Generator {
	return &Generator{store: s, logger: logging.OrNop(logger), now: time.Now}
}

// Ensure returns the condition set of scenario/d, creating it if absent.
//
// Creation runs as one transaction that aborts when the node already holds
// conditions, so concurrent callers converge on whichever set committed first
// and an existing set is never overwritten.
func (g *Generator) Ensure(ctx context.Context, scenario string, d types.Design) (types.ConditionSet, error) {
	if scenario == "" {
		return types.ConditionSet{}, fmt.Errorf("%w: empty scenario id", types.ErrInvalidArgument)
	}

	fresh, err := Build(scenario, d, g.now())
	if err != nil {
		return types.ConditionSet{}, err
	}

	set, res, err := node.Transact(ctx, g.store, ConditionsPath(scenario, d),
		func(current types.ConditionSet, exists bool) (node.Outcome[types.ConditionSet, types.ConditionSet], error) {
			if exists && len(current.Conditions) > 0 {
				return node.Outcome[types.ConditionSet, types.ConditionSet]{Output: current, Abort: true}, nil
			}

			return node.Outcome[types.ConditionSet, types.ConditionSet]{State: fresh, Output: fresh}, nil
		})
	if err != nil {
		return types.ConditionSet{}, fmt.Errorf("ensure %s conditions for %s: %w", d, scenario, err)
	}
	if res.Committed {
		g.logger.Info("generated conditions", "scenario", scenario, "design", d, "count", len(set.Conditions))
	}

	return set, nil
}

// Overwrite replaces the condition set of scenario/d unconditionally.
// Only catalog construction should call this.
func (g *Generator) Overwrite(ctx context.Context, scenario string, d types.Design) (types.ConditionSet, error) {
	if scenario == "" {
		return types.ConditionSet{}, fmt.Errorf("%w: empty scenario id", types.ErrInvalidArgument)
	}

	set, err := Build(scenario, d, g.now())
	if err != nil {
		return types.ConditionSet{}, err
	}
	if err := node.Set(ctx, g.store, ConditionsPath(scenario, d), set); err != nil {
		return types.ConditionSet{}, fmt.Errorf("overwrite %s conditions for %s: %w", d, scenario, err)
	}
	g.logger.Warn("overwrote conditions", "scenario", scenario, "design", d)

	return set, nil
}

// Load reads an existing condition set.
//
// Returns:
//   - types.ConditionSet: The stored set
//   - error: types.ErrCatalogMissing when nothing has been generated yet
func (g *Generator) Load(ctx context.Context, scenario string, d types.Design) (types.ConditionSet, error) {
	set, ok, err := node.Get[types.ConditionSet](ctx, g.store, ConditionsPath(scenario, d))
	if err != nil {
		return types.ConditionSet{}, err
	}
	if !ok {
		return types.ConditionSet{}, fmt.Errorf("%w: %s/%s", types.ErrCatalogMissing, scenario, d)
	}

	return set, nil
}

// Verify reloads a stored set and checks it against its design: the expected
// number of runs and, for OA-32, strength 2.
func (g *Generator) Verify(ctx context.Context, scenario string, d types.Design) error {
	set, err := g.Load(ctx, scenario, d)
	if err != nil {
		return err
	}

	want, err := Rows(d)
	if err != nil {
		return err
	}
	ids := set.IDs()
	if len(ids) != len(want) {
		return fmt.Errorf("%s/%s: %d conditions, want %d", scenario, d, len(ids), len(want))
	}

	rows := make([][]int, 0, len(ids))
	for _, id := range ids {
		r, err := LevelsToRow(set.Conditions[id].Levels)
		if err != nil {
			return fmt.Errorf("%s/%s condition %s: %w", scenario, d, id, err)
		}
		rows = append(rows, r)
	}

	return CheckStrength2(rows)
}
