package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/arloliu/cohort/types"
	"github.com/stretchr/testify/require"
)

func TestNewNop(t *testing.T) {
	hooks := NewNop()

	require.NotNil(t, hooks.OnAssigned)
	require.NotNil(t, hooks.OnCycleRollover)
	require.NotNil(t, hooks.OnGuardBypassed)
	require.NotNil(t, hooks.OnError)

	ctx := t.Context()
	require.NoError(t, hooks.OnAssigned(ctx, types.Assignment{ParticipantID: "p1"}))
	require.NoError(t, hooks.OnCycleRollover(ctx, "s1", "c1"))
	require.NoError(t, hooks.OnGuardBypassed(ctx, "s1", []string{"1", "2"}))
	require.NoError(t, hooks.OnError(ctx, errors.New("boom")))
}

func TestFill(t *testing.T) {
	t.Run("nil hooks become no-ops", func(t *testing.T) {
		hooks := Fill(nil)
		require.NotNil(t, hooks.OnAssigned)
		require.NotNil(t, hooks.OnError)
	})

	t.Run("keeps caller callbacks", func(t *testing.T) {
		var seen string
		hooks := Fill(&types.Hooks{
			OnAssigned: func(_ context.Context, a types.Assignment) error {
				seen = a.ParticipantID
				return nil
			},
		})

		require.NoError(t, hooks.OnAssigned(t.Context(), types.Assignment{ParticipantID: "p7"}))
		require.Equal(t, "p7", seen)
		require.NotNil(t, hooks.OnCycleRollover)
		require.NotNil(t, hooks.OnGuardBypassed)
		require.NotNil(t, hooks.OnError)
	})

	t.Run("does not mutate the input", func(t *testing.T) {
		in := &types.Hooks{}
		_ = Fill(in)
		require.Nil(t, in.OnError)
	})
}
