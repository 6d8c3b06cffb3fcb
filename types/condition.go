package types

import (
	"fmt"
	"time"
)

// Design identifies how a scenario's condition universe was built.
type Design string

const (
	// DesignOA32 is the 32-run strength-2 orthogonal array over 4 factors x 4 levels.
	DesignOA32 Design = "oa32"

	// DesignFullFactorial is the complete 4^4 = 256-run Cartesian product.
	DesignFullFactorial Design = "full_factorial"
)

// Valid reports whether d is a known design.
func (d Design) Valid() bool {
	return d == DesignOA32 || d == DesignFullFactorial
}

// Criterion names in their fixed mapping order.
const (
	CriterionRecommendation = "recommendation"
	CriterionFrequency      = "frequency"
	CriterionMissing        = "missing"
	CriterionCoverage       = "coverage"
)

// Criteria is the fixed factor order used when mapping design rows to levels.
var Criteria = []string{CriterionRecommendation, CriterionFrequency, CriterionMissing, CriterionCoverage}

// Condition is one trial condition: a level value for every criterion.
//
// Continuous carries values for scenarios sampled from a continuous range
// (comparison endpoints); it is empty for design-generated conditions.
type Condition struct {
	Levels     map[string]string  `json:"levels"`
	Continuous map[string]float64 `json:"continuous,omitempty"`
}

// ConditionSet is the catalog entry for one scenario and design.
//
// Immutable once created: Generator.Ensure never overwrites an existing set.
type ConditionSet struct {
	Scenario   string               `json:"scenario"`
	Design     Design               `json:"design"`
	Conditions map[string]Condition `json:"conditions"`
	CreatedAt  time.Time            `json:"createdAt"`
}

// Validate checks the stored shape of a condition set.
func (c *ConditionSet) Validate() error {
	if !c.Design.Valid() {
		return fmt.Errorf("unknown design %q", c.Design)
	}
	if len(c.Conditions) == 0 {
		return fmt.Errorf("condition set for %q is empty", c.Scenario)
	}

	return nil
}

// IDs returns the condition ids in numeric order ("1".."N").
func (c *ConditionSet) IDs() []string {
	ids := make([]string, 0, len(c.Conditions))
	for i := 1; i <= len(c.Conditions); i++ {
		id := fmt.Sprintf("%d", i)
		if _, ok := c.Conditions[id]; ok {
			ids = append(ids, id)
		}
	}

	return ids
}

// Scenario describes one experimental scenario from the catalog.
type Scenario struct {
	ID string `json:"id"`

	// TargetCriterion is the criterion manipulated by this scenario's
	// comparison trials. Empty means no targeted criterion.
	TargetCriterion string `json:"targetCriterion,omitempty"`

	Title string `json:"title,omitempty"`
}

// ScenarioCatalog is the stored list of scenarios at the catalog root.
type ScenarioCatalog struct {
	Scenarios map[string]Scenario `json:"scenarios"`
}

// Validate checks the catalog is non-empty and keyed consistently.
func (c *ScenarioCatalog) Validate() error {
	for id, sc := range c.Scenarios {
		if sc.ID != id {
			return fmt.Errorf("scenario key %q holds id %q", id, sc.ID)
		}
	}

	return nil
}
