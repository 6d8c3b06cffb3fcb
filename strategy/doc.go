// Package strategy provides built-in scenario selection strategies.
//
// A scenario strategy decides which scenario a new participant joins. Every
// built-in strategy selects and records its choice in one store transaction
// through the balanced counter allocator, so two concurrent participants never
// both see the same stale minimum.
//
//   - Balanced: least-assigned scenario, counted per participant (recommended)
//   - LeastCycleProgress: scenario whose cycle has handed out the fewest blocks
//
// # Strategy Selection Guide
//
// Balanced:
//   - Use when every scenario should receive the same number of participants
//   - Counter node: /metrics/scenario_counts
//
// LeastCycleProgress:
//   - Use with cycle-based trial selection when scenarios should finish their
//     cycles at the same pace
//   - Counter node: /metrics/cycle_block_counts
//
// Custom strategies can be implemented by satisfying the types.ScenarioStrategy interface.
package strategy
