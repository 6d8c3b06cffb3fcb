package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/arloliu/cohort/internal/allocator"
	"github.com/arloliu/cohort/types"
)

// Counter node paths used by the built-in strategies.
const (
	ScenarioCountsPath   = "/metrics/scenario_counts"
	CycleBlockCountsPath = "/metrics/cycle_block_counts"
)

// Strategy names.
const (
	NameBalanced           = "balanced"
	NameLeastCycleProgress = "least_cycle_progress"
)

// counterStrategy selects through one allocator transaction on a counter node.
type counterStrategy struct {
	name  string
	path  string
	alloc *allocator.Allocator
}

func (c *counterStrategy) Name() string {
	return c.name
}

func (c *counterStrategy) Select(ctx context.Context, scenarios []string) (string, error) {
	if len(scenarios) == 0 {
		return "", ErrNoScenarios
	}

	sid, err := c.alloc.AllocateOneRetry(ctx, c.path, scenarios)
	if err != nil {
		return "", fmt.Errorf("%s: %w", c.name, err)
	}

	return sid, nil
}

// Counts returns the current per-scenario counts.
func (c *counterStrategy) Counts(ctx context.Context) (types.Counter, error) {
	return c.alloc.Counts(ctx, c.path)
}

// Balanced picks the scenario with the fewest assigned participants.
type Balanced struct {
	counterStrategy
}

var _ types.ScenarioStrategy = (*Balanced)(nil)

// NewBalanced creates a balanced scenario strategy.
//
// Parameters:
//   - alloc: Allocator bound to the node store
//
// Returns:
//   - *Balanced: Strategy counting participants per scenario
//
// Example:
//
//	s := strategy.NewBalanced(allocator.New(store))
//	eng, err := cohort.NewEngine(&cfg, store, src, cohort.WithStrategy(s))
func NewBalanced(alloc *allocator.Allocator) *Balanced {
	return &Balanced{counterStrategy{name: NameBalanced, path: ScenarioCountsPath, alloc: alloc}}
}

// LeastCycleProgress picks the scenario whose cycle has issued the fewest blocks.
//
// Reading the minimum and incrementing it happen in the same transaction; each
// selection counts as one issued block for the chosen scenario.
type LeastCycleProgress struct {
	counterStrategy
}

var _ types.ScenarioStrategy = (*LeastCycleProgress)(nil)

// NewLeastCycleProgress creates a least-cycle-progress scenario strategy.
func NewLeastCycleProgress(alloc *allocator.Allocator) *LeastCycleProgress {
	return &LeastCycleProgress{counterStrategy{name: NameLeastCycleProgress, path: CycleBlockCountsPath, alloc: alloc}}
}

// ErrUnknownStrategy is returned by ByName for unrecognized names.
var ErrUnknownStrategy = errors.New("unknown scenario strategy")

// Names lists the built-in strategy names.
func Names() []string {
	return []string{NameBalanced, NameLeastCycleProgress}
}

// ByName returns the built-in strategy registered under name.
func ByName(name string, alloc *allocator.Allocator) (types.ScenarioStrategy, error) {
	switch name {
	case NameBalanced, "":
		return NewBalanced(alloc), nil
	case NameLeastCycleProgress:
		return NewLeastCycleProgress(alloc), nil
	default:
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownStrategy, name, strings.Join(Names(), ", "))
	}
}
