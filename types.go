package cohort

import "github.com/arloliu/cohort/types"

// Re-export types from the internal types package.
//
// This file provides a stable public API for the library's core types and
// interfaces. It uses type aliases to re-export definitions from the `types`
// subpackage, which contains the actual implementations.
//
// This pattern solves the "import cycle" problem by allowing internal packages
// to depend on `types` without depending on the root `cohort` package, while
// still providing a convenient `cohort.Assignment`, `cohort.Logger`, etc. for users.
type (
	Assignment       = types.Assignment
	Trial            = types.Trial
	ComparisonTrial  = types.ComparisonTrial
	ComparisonChoice = types.ComparisonChoice
	TrialResponse    = types.TrialResponse
	TrialStep        = types.TrialStep
	ComparisonStep   = types.ComparisonStep
	Progress         = types.Progress
	Condition        = types.Condition
	ConditionSet     = types.ConditionSet
	Scenario         = types.Scenario
	Design           = types.Design
	TxResult         = types.TxResult
	UpdateFunc       = types.UpdateFunc
)

// Re-export interfaces from the internal types package for convenience.
type (
	NodeStore        = types.NodeStore
	ScenarioSource   = types.ScenarioSource
	ScenarioStrategy = types.ScenarioStrategy
	MetricsCollector = types.MetricsCollector
	Logger           = types.Logger
	Hooks            = types.Hooks
)

// Re-export design and entropy guard constants.
const (
	DesignOA32          = types.DesignOA32
	DesignFullFactorial = types.DesignFullFactorial

	EntropyGuardAccepted = types.EntropyGuardAccepted
	EntropyGuardFallback = types.EntropyGuardFallback
)
