package types

import "context"

// Hooks defines callbacks for Engine events.
//
// All hooks are optional. They run synchronously on the calling goroutine after
// the triggering write has committed, so they must complete quickly. Hook errors
// are logged but never fail the operation that triggered them.
//
// Example:
//
//	hooks := &cohort.Hooks{
//	    OnGuardBypassed: func(ctx context.Context, scenario string, ids []string) error {
//	        alerts <- scenario
//	        return nil
//	    },
//	}
type Hooks struct {
	// OnAssigned is called once per participant after the record is persisted.
	OnAssigned func(ctx context.Context, assignment Assignment) error

	// OnCycleRollover is called when a scenario's cycle is (re)initialized.
	OnCycleRollover func(ctx context.Context, scenario string, cycleID string) error

	// OnGuardBypassed is called when the entropy guard fell back to accepting
	// a candidate unconditionally.
	OnGuardBypassed func(ctx context.Context, scenario string, ids []string) error

	// OnError is called when a recoverable error occurs.
	OnError func(ctx context.Context, err error) error
}
