// Package types provides core type definitions and interfaces for the cohort library.
//
// This package contains shared types that are used across multiple packages in the
// library. By keeping these types in a separate package, we avoid import cycles
// between the main cohort package and its internal implementations.
//
// Key types:
//   - NodeStore: Single-node transactional store every component coordinates through
//   - ConditionSet: Generated trial conditions for one scenario
//   - CycleState: Per-scenario cursor over a shuffled condition permutation
//   - Assignment: Durable per-participant assignment record
//   - Logger: Structured logging interface
//   - MetricsCollector: Metrics recording interface
package types
