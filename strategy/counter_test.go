package strategy

import (
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/cohort/internal/allocator"
	"github.com/arloliu/cohort/store"
	"github.com/arloliu/cohort/types"
)

func newAllocator(s types.NodeStore) *allocator.Allocator {
	return allocator.New(s,
		allocator.WithRand(rand.New(rand.NewPCG(1, 2))),
		allocator.WithRetry(10, time.Millisecond),
	)
}

func TestBalanced_Select(t *testing.T) {
	t.Run("spreads participants evenly across scenarios", func(t *testing.T) {
		s := store.NewMemory()
		strat := NewBalanced(newAllocator(s))
		scenarios := []string{"s1", "s2", "s3", "s4"}

		for range 40 {
			_, err := strat.Select(t.Context(), scenarios)
			require.NoError(t, err)
		}

		counts, err := strat.Counts(t.Context())
		require.NoError(t, err)
		require.Len(t, counts, 4)
		for _, sid := range scenarios {
			require.Equal(t, int64(10), counts[sid], sid)
		}
		require.Equal(t, NameBalanced, strat.Name())
	})

	t.Run("concurrent selections never skip the minimum twice", func(t *testing.T) {
		s := store.NewMemory()
		strat := NewBalanced(newAllocator(s))
		scenarios := []string{"s1", "s2", "s3", "s4"}

		var wg sync.WaitGroup
		errs := make(chan error, 64)
		for range 64 {
			wg.Go(func() {
				_, err := strat.Select(t.Context(), scenarios)
				errs <- err
			})
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		counts, err := strat.Counts(t.Context())
		require.NoError(t, err)
		require.Equal(t, int64(64), counts.Total())
		for _, sid := range scenarios {
			require.Equal(t, int64(16), counts[sid], sid)
		}
	})

	t.Run("returns error when no scenarios available", func(t *testing.T) {
		strat := NewBalanced(newAllocator(store.NewMemory()))

		_, err := strat.Select(t.Context(), nil)

		require.ErrorIs(t, err, ErrNoScenarios)
		require.ErrorIs(t, err, types.ErrInvalidArgument)
	})
}

func TestLeastCycleProgress_Select(t *testing.T) {
	t.Run("uses its own counter node", func(t *testing.T) {
		s := store.NewMemory()
		alloc := newAllocator(s)
		least := NewLeastCycleProgress(alloc)

		sid, err := least.Select(t.Context(), []string{"s1", "s2"})
		require.NoError(t, err)

		blocks, err := alloc.Counts(t.Context(), CycleBlockCountsPath)
		require.NoError(t, err)
		require.Equal(t, int64(1), blocks[sid])

		scen, err := alloc.Counts(t.Context(), ScenarioCountsPath)
		require.NoError(t, err)
		require.Empty(t, scen)
	})

	t.Run("favours the scenario that has issued fewer blocks", func(t *testing.T) {
		s := store.NewMemory()
		alloc := newAllocator(s)
		for range 3 {
			_, err := alloc.AllocateOne(t.Context(), CycleBlockCountsPath, []string{"s1"})
			require.NoError(t, err)
		}

		least := NewLeastCycleProgress(alloc)
		for range 3 {
			sid, err := least.Select(t.Context(), []string{"s1", "s2"})
			require.NoError(t, err)
			require.Equal(t, "s2", sid)
		}
	})
}

func TestByName(t *testing.T) {
	alloc := newAllocator(store.NewMemory())

	s, err := ByName("", alloc)
	require.NoError(t, err)
	require.Equal(t, NameBalanced, s.Name())

	s, err = ByName(NameLeastCycleProgress, alloc)
	require.NoError(t, err)
	require.Equal(t, NameLeastCycleProgress, s.Name())

	_, err = ByName("round_robin", alloc)
	require.ErrorIs(t, err, ErrUnknownStrategy)
}
