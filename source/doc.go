// Package source provides built-in scenario source implementations.
//
// Scenario sources list the scenarios participants can be assigned to.
// The package includes:
//
//   - Static: Fixed list of scenarios
//   - Store: Catalog node kept in the node store at /catalog/scenarios
//
// Custom sources can be implemented by satisfying the types.ScenarioSource interface.
package source
