package hooks

import (
	"context"

	"github.com/arloliu/cohort/types"
)

// NopHooks implements Hooks with no-op callbacks.
//
// This is the default implementation used when no custom hooks are provided,
// eliminating the need for nil checks throughout the codebase.
type NopHooks struct{}

// NewNop creates a new no-op hooks implementation.
//
// Returns:
//   - *types.Hooks: Hooks with no-op implementations
func NewNop() *types.Hooks {
	h := &NopHooks{}
	return &types.Hooks{
		OnAssigned:      h.OnAssigned,
		OnCycleRollover: h.OnCycleRollover,
		OnGuardBypassed: h.OnGuardBypassed,
		OnError:         h.OnError,
	}
}

// Fill returns a copy of hooks with every nil callback replaced by a no-op.
// A nil argument yields NewNop().
func Fill(hooks *types.Hooks) *types.Hooks {
	nop := NewNop()
	if hooks == nil {
		return nop
	}

	out := *hooks
	if out.OnAssigned == nil {
		out.OnAssigned = nop.OnAssigned
	}
	if out.OnCycleRollover == nil {
		out.OnCycleRollover = nop.OnCycleRollover
	}
	if out.OnGuardBypassed == nil {
		out.OnGuardBypassed = nop.OnGuardBypassed
	}
	if out.OnError == nil {
		out.OnError = nop.OnError
	}

	return &out
}

// OnAssigned is a no-op implementation.
func (h *NopHooks) OnAssigned(ctx context.Context, assignment types.Assignment) error {
	return nil
}

// OnCycleRollover is a no-op implementation.
func (h *NopHooks) OnCycleRollover(ctx context.Context, scenario string, cycleID string) error {
	return nil
}

// OnGuardBypassed is a no-op implementation.
func (h *NopHooks) OnGuardBypassed(ctx context.Context, scenario string, ids []string) error {
	return nil
}

// OnError is a no-op implementation.
func (h *NopHooks) OnError(ctx context.Context, err error) error {
	return nil
}
