package cohort

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/arloliu/cohort/internal/node"
	"github.com/arloliu/cohort/types"
)

// Comparison choices.
const (
	ChoiceA = "A"
	ChoiceB = "B"
)

// TrialProgressPath holds the last answered main trial of a participant.
func TrialProgressPath(pid, scenario string) string {
	return ParticipantsPath + "/" + pid + "/scenarios/" + scenario + "/progress"
}

// TrialResponsePath holds the answer to one main trial (1-based index).
func TrialResponsePath(pid, scenario string, index int) string {
	return ParticipantsPath + "/" + pid + "/scenarios/" + scenario + "/trials/" + strconv.Itoa(index)
}

// ComparisonProgressPath holds the last answered comparison trial.
func ComparisonProgressPath(pid string) string {
	return AssignmentPath(pid) + "/comparison_progress"
}

// DecisionPath holds the choice for one comparison trial (1-based index).
func DecisionPath(pid string, index int) string {
	return AssignmentPath(pid) + "/decisions/" + strconv.Itoa(index)
}

// CurrentTrial returns the next main trial the participant has not answered.
//
// Returns:
//   - TrialStep: 1-based index, total and materialized trial; Done once every
//     trial has been answered
//   - error: ErrParticipantNotFound, ErrAssignmentIncomplete or store errors
func (e *Engine) CurrentTrial(ctx context.Context, pid string) (TrialStep, error) {
	a, err := e.requireAssignment(ctx, pid)
	if err != nil {
		return TrialStep{}, err
	}
	if len(a.TrialIDs) == 0 {
		return TrialStep{}, fmt.Errorf("%w: %s has no trials", ErrAssignmentIncomplete, pid)
	}

	p, _, err := node.Get[types.Progress](ctx, e.store, TrialProgressPath(pid, a.ScenarioID))
	if err != nil {
		return TrialStep{}, fmt.Errorf("read trial progress %s: %w", pid, err)
	}

	step := TrialStep{Index: p.Last + 1, Total: len(a.TrialIDs)}
	if step.Index > step.Total {
		step.Index, step.Done = step.Total+1, true
		return step, nil
	}

	step.Trial = trialAt(a, step.Index)

	return step, nil
}

// RecordBid stores the participant's answer to main trial index (1-based) and
// advances their progress. Progress never moves backwards, so answering an
// earlier trial again only overwrites that answer.
func (e *Engine) RecordBid(ctx context.Context, pid string, index int, bid float64) (Progress, error) {
	a, err := e.requireAssignment(ctx, pid)
	if err != nil {
		return Progress{}, err
	}
	if len(a.TrialIDs) == 0 {
		return Progress{}, fmt.Errorf("%w: %s has no trials", ErrAssignmentIncomplete, pid)
	}
	if index < 1 || index > len(a.TrialIDs) {
		return Progress{}, fmt.Errorf("%w: trial %d outside 1..%d", ErrInvalidArgument, index, len(a.TrialIDs))
	}

	now := e.now().UTC()
	resp := types.TrialResponse{Index: index, TrialID: a.TrialIDs[index-1], Bid: bid, At: now}
	if err := node.Set(ctx, e.store, TrialResponsePath(pid, a.ScenarioID, index), resp); err != nil {
		return Progress{}, fmt.Errorf("write trial response %s/%d: %w", pid, index, err)
	}

	return e.advance(ctx, TrialProgressPath(pid, a.ScenarioID), index, now)
}

// CurrentComparison returns the next comparison trial the participant has not
// answered.
func (e *Engine) CurrentComparison(ctx context.Context, pid string) (ComparisonStep, error) {
	a, err := e.requireAssignment(ctx, pid)
	if err != nil {
		return ComparisonStep{}, err
	}
	if len(a.ComparisonTrials) == 0 {
		return ComparisonStep{}, fmt.Errorf("%w: %s has no comparison trials", ErrAssignmentIncomplete, pid)
	}

	p, _, err := node.Get[types.Progress](ctx, e.store, ComparisonProgressPath(pid))
	if err != nil {
		return ComparisonStep{}, fmt.Errorf("read comparison progress %s: %w", pid, err)
	}

	step := ComparisonStep{Index: p.Last + 1, Total: len(a.ComparisonTrials)}
	if step.Index > step.Total {
		step.Index, step.Done = step.Total+1, true
		return step, nil
	}
	step.Trial = a.ComparisonTrials[strconv.Itoa(step.Index)]

	return step, nil
}

// RecordChoice stores the participant's pick ("A" or "B") for comparison trial
// index (1-based) together with the chosen option, and advances their progress.
func (e *Engine) RecordChoice(ctx context.Context, pid string, index int, choice string) (Progress, error) {
	if choice != ChoiceA && choice != ChoiceB {
		return Progress{}, fmt.Errorf("%w: choice %q, want A or B", ErrInvalidArgument, choice)
	}
	a, err := e.requireAssignment(ctx, pid)
	if err != nil {
		return Progress{}, err
	}
	trial, ok := a.ComparisonTrials[strconv.Itoa(index)]
	if !ok {
		return Progress{}, fmt.Errorf("%w: comparison trial %d outside 1..%d", ErrInvalidArgument, index, len(a.ComparisonTrials))
	}

	chosen := trial.OptionA
	if choice == ChoiceB {
		chosen = trial.OptionB
	}

	now := e.now().UTC()
	decision := types.ComparisonChoice{Index: index, Choice: choice, Chosen: chosen, At: now}
	if err := node.Set(ctx, e.store, DecisionPath(pid, index), decision); err != nil {
		return Progress{}, fmt.Errorf("write decision %s/%d: %w", pid, index, err)
	}

	return e.advance(ctx, ComparisonProgressPath(pid), index, now)
}

// advance moves a progress node forward to index in one transaction.
func (e *Engine) advance(ctx context.Context, path string, index int, at time.Time) (Progress, error) {
	p, _, err := node.Transact(ctx, e.store, path,
		func(cur types.Progress, _ bool) (node.Outcome[types.Progress, types.Progress], error) {
			if cur.Last >= index {
				return node.Outcome[types.Progress, types.Progress]{Output: cur, Abort: true}, nil
			}
			next := types.Progress{Last: index, At: at}

			return node.Outcome[types.Progress, types.Progress]{State: next, Output: next}, nil
		}, node.ResetInvalid())
	if err != nil {
		return Progress{}, fmt.Errorf("advance %s: %w", path, err)
	}

	return p, nil
}

func (e *Engine) requireAssignment(ctx context.Context, pid string) (*Assignment, error) {
	a, err := e.GetAssignment(ctx, pid)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("%w: %s", ErrParticipantNotFound, pid)
	}
	if a.ScenarioID == "" {
		return nil, fmt.Errorf("%w: %s has no scenario", ErrAssignmentIncomplete, pid)
	}

	return a, nil
}

// trialAt returns the 1-based trial, falling back to a bare id for records
// written without materialized payloads.
func trialAt(a *Assignment, index int) Trial {
	if index <= len(a.Trials) {
		return a.Trials[index-1]
	}

	return Trial{ID: a.TrialIDs[index-1]}
}
