package types

import (
	"fmt"
	"time"
)

// Counter maps candidate keys to how often each has been allocated.
//
// Invariant: the sum of all entries equals the number of successful
// allocations made against the node.
type Counter map[string]int64

// Validate rejects negative counts.
func (c Counter) Validate() error {
	for k, v := range c {
		if v < 0 {
			return fmt.Errorf("counter %q is negative (%d)", k, v)
		}
	}

	return nil
}

// Total returns the sum of all counts.
func (c Counter) Total() int64 {
	var sum int64
	for _, v := range c {
		sum += v
	}

	return sum
}

// OrderRegistry maps a combination signature key to its usage count.
type OrderRegistry map[string]int64

// EntropyGuard values recorded on an assignment.
const (
	EntropyGuardAccepted = "accepted"
	EntropyGuardFallback = "fallback_used"
)

// Trial is one materialized trial of an assignment.
//
// Option holds the condition payload resolved at assignment time so rendering
// never re-resolves ids against a catalog that might have changed.
type Trial struct {
	ID     string            `json:"id"`
	Option map[string]string `json:"option"`
}

// ComparisonTrial is one A/B comparison shown after the main trials.
//
// Each option holds the targeted criterion as a discrete level and the other
// criteria as continuous values.
type ComparisonTrial struct {
	ScenarioID string    `json:"scenarioId"`
	OptionA    Condition `json:"optionA"`
	OptionB    Condition `json:"optionB"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Assignment is the durable, per-participant assignment record.
//
// Created once by the Engine and immutable thereafter, except for the
// task-order label which is filled in lazily by EnsureTaskOrder.
type Assignment struct {
	ParticipantID string   `json:"participantId"`
	ScenarioID    string   `json:"scenarioId"`
	TrialIDs      []string `json:"trialIds"`
	Trials        []Trial  `json:"trials"`

	ComparisonTrials map[string]ComparisonTrial `json:"comparisonTrials,omitempty"`

	TaskOrder string `json:"taskOrder,omitempty"`

	CycleID    string `json:"cycleId,omitempty"`
	CycleBlock int    `json:"cycleBlock,omitempty"`

	TargetCriterion      string  `json:"targetCriterion,omitempty"`
	EntropyThresholdBits float64 `json:"entropyThresholdBits,omitempty"`
	EntropyGuard         string  `json:"entropyGuard,omitempty"`

	AssignedAt time.Time `json:"assignedAt"`
}

// Complete reports whether the record holds everything Assign produces.
//
// Parameters:
//   - needComparison: whether a comparison-trial set is required
//
// Returns:
//   - bool: true when scenario, trial list and (optionally) comparison set exist
func (a *Assignment) Complete(needComparison bool) bool {
	if a == nil || a.ScenarioID == "" || len(a.TrialIDs) == 0 {
		return false
	}
	if needComparison && len(a.ComparisonTrials) == 0 {
		return false
	}

	return true
}

// Validate checks that trial ids and materialized trials line up.
func (a *Assignment) Validate() error {
	if len(a.Trials) != 0 && len(a.Trials) != len(a.TrialIDs) {
		return fmt.Errorf("%d trials for %d trial ids", len(a.Trials), len(a.TrialIDs))
	}
	for i, tr := range a.Trials {
		if tr.ID != a.TrialIDs[i] {
			return fmt.Errorf("trial %d id %q does not match trial id %q", i, tr.ID, a.TrialIDs[i])
		}
	}

	return nil
}

// AssignedMirror is the lightweight copy kept under the results namespace.
type AssignedMirror struct {
	ScenarioID string    `json:"scenarioId"`
	TrialIDs   []string  `json:"trialIds"`
	At         time.Time `json:"at"`
}

// Participant is the node pushed when a participant is created.
type Participant struct {
	CreatedAt time.Time `json:"createdAt"`
}

// TrialResponse is a participant's answer to one main trial.
type TrialResponse struct {
	Index   int       `json:"index"`
	TrialID string    `json:"trialId"`
	Bid     float64   `json:"bid"`
	At      time.Time `json:"at"`
}

// Progress tracks the last answered 1-based index of a trial sequence.
type Progress struct {
	Last int       `json:"last"`
	At   time.Time `json:"at"`
}

// ComparisonChoice is a participant's pick for one comparison trial.
type ComparisonChoice struct {
	Index  int       `json:"index"`
	Choice string    `json:"choice"`
	Chosen Condition `json:"chosen"`
	At     time.Time `json:"at"`
}

// TaskOrderMirror is the task-order copy kept under the results namespace.
type TaskOrderMirror struct {
	TaskOrder string    `json:"taskOrder"`
	At        time.Time `json:"at"`
}

// TrialStep is the next main trial a participant should answer.
type TrialStep struct {
	// Index is 1-based; it is Total+1 when Done.
	Index int   `json:"index"`
	Total int   `json:"total"`
	Trial Trial `json:"trial"`
	Done  bool  `json:"done"`
}

// ComparisonStep is the next comparison trial a participant should answer.
type ComparisonStep struct {
	Index int             `json:"index"`
	Total int             `json:"total"`
	Trial ComparisonTrial `json:"trial"`
	Done  bool            `json:"done"`
}
