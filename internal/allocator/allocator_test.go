package allocator

import (
	"errors"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/arloliu/cohort/store"
	"github.com/arloliu/cohort/types"
)

const counterPath = "/metrics/scenario_counts"

func TestAllocateOne(t *testing.T) {
	t.Run("two candidates alternate around the minimum", func(t *testing.T) {
		s := store.NewMemory()
		a := New(s, WithRand(rand.New(rand.NewPCG(1, 2))))

		first, err := a.AllocateOne(t.Context(), counterPath, []string{"a", "b"})
		require.NoError(t, err)
		require.Contains(t, []string{"a", "b"}, first)

		counts, err := a.Counts(t.Context(), counterPath)
		require.NoError(t, err)
		require.Equal(t, int64(1), counts[first])

		second, err := a.AllocateOne(t.Context(), counterPath, []string{"a", "b"})
		require.NoError(t, err)
		require.NotEqual(t, first, second, "the other candidate is the sole minimum")

		third, err := a.AllocateOne(t.Context(), counterPath, []string{"a", "b"})
		require.NoError(t, err)
		require.Contains(t, []string{"a", "b"}, third)

		counts, err = a.Counts(t.Context(), counterPath)
		require.NoError(t, err)
		require.Equal(t, int64(3), counts.Total())
	})

	t.Run("first pick from an empty node is roughly uniform", func(t *testing.T) {
		a := New(store.NewMemory(), WithRand(rand.New(rand.NewPCG(7, 7))))
		seen := map[string]int{}
		for i := range 200 {
			s := store.NewMemory()
			a.store = s
			chosen, err := a.AllocateOne(t.Context(), counterPath, []string{"a", "b"})
			require.NoError(t, err, "iteration %d", i)
			seen[chosen]++
		}
		require.Greater(t, seen["a"], 60)
		require.Greater(t, seen["b"], 60)
	})

	t.Run("foreign keys are preserved but never chosen", func(t *testing.T) {
		s := store.NewMemory()
		require.NoError(t, s.Set(t.Context(), counterPath, []byte(`{"retired":0,"s1":4,"s2":2}`)))

		a := New(s)
		chosen, err := a.AllocateOne(t.Context(), counterPath, []string{"s1", "s2", "s3"})
		require.NoError(t, err)
		require.Equal(t, "s3", chosen)

		counts, err := a.Counts(t.Context(), counterPath)
		require.NoError(t, err)
		require.Equal(t, types.Counter{"retired": 0, "s1": 4, "s2": 2, "s3": 1}, counts)
	})

	t.Run("unchosen candidates are written as zero", func(t *testing.T) {
		s := store.NewMemory()
		a := New(s, WithRand(rand.New(rand.NewPCG(3, 4))))

		chosen, err := a.AllocateOne(t.Context(), counterPath, []string{"s1", "s2", "s3"})
		require.NoError(t, err)

		counts, err := a.Counts(t.Context(), counterPath)
		require.NoError(t, err)
		require.Len(t, counts, 3)
		for _, c := range []string{"s1", "s2", "s3"} {
			want := int64(0)
			if c == chosen {
				want = 1
			}
			v, ok := counts[c]
			require.True(t, ok, c)
			require.Equal(t, want, v, c)
		}
	})

	t.Run("malformed counters are reset", func(t *testing.T) {
		s := store.NewMemory()
		require.NoError(t, s.Set(t.Context(), counterPath, []byte(`["a","b"]`)))

		a := New(s)
		_, err := a.AllocateOne(t.Context(), counterPath, []string{"a", "b"})
		require.NoError(t, err)

		counts, err := a.Counts(t.Context(), counterPath)
		require.NoError(t, err)
		require.Equal(t, int64(1), counts.Total())
	})

	t.Run("rejects invalid candidate lists", func(t *testing.T) {
		a := New(store.NewMemory())
		for _, c := range [][]string{nil, {}, {"a", ""}, {"a", "a"}} {
			_, err := a.AllocateOne(t.Context(), counterPath, c)
			require.ErrorIs(t, err, types.ErrInvalidArgument, "candidates %v", c)
		}
	})

	t.Run("store failure surfaces as ErrAllocationFailed", func(t *testing.T) {
		var s *store.Memory
		s = store.NewMemory(store.WithMaxAttempts(2), store.WithCommitHook(func(_ string, attempt int) {
			require.NoError(t, s.Set(t.Context(), counterPath, []byte(`{}`)))
		}))
		a := New(s)

		_, err := a.AllocateOne(t.Context(), counterPath, []string{"a"})
		require.ErrorIs(t, err, types.ErrAllocationFailed)
		require.ErrorIs(t, err, types.ErrTxConflict)
	})
}

func TestAllocateOne_Concurrent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := store.NewMemory(store.WithMaxAttempts(10_000))
	a := New(s)
	candidates := []string{"s1", "s2", "s3", "s4"}

	const workers, perWorker = 16, 25

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error
	for range workers {
		wg.Add(1) //nolint:revive // Standard pattern for concurrent operations
		go func() {
			defer wg.Done()
			for range perWorker {
				if _, err := a.AllocateOne(t.Context(), counterPath, candidates); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	require.Empty(t, errs)

	counts, err := a.Counts(t.Context(), counterPath)
	require.NoError(t, err)
	require.Equal(t, int64(workers*perWorker), counts.Total(), "sum equals successful allocations")

	lo, hi := counts[candidates[0]], counts[candidates[0]]
	for _, k := range candidates {
		lo = min(lo, counts[k])
		hi = max(hi, counts[k])
	}
	require.LessOrEqual(t, hi-lo, int64(1), "spread stays within one: %v", counts)
}

func TestAllocateOneRetry(t *testing.T) {
	t.Run("retries transient failures", func(t *testing.T) {
		var s *store.Memory
		failures := 0
		s = store.NewMemory(store.WithMaxAttempts(1), store.WithCommitHook(func(_ string, _ int) {
			if failures < 2 {
				failures++
				require.NoError(t, s.Set(t.Context(), counterPath, []byte(`{}`)))
			}
		}))
		a := New(s, WithRetry(5, 0))

		chosen, err := a.AllocateOneRetry(t.Context(), counterPath, []string{"a", "b"})
		require.NoError(t, err)
		require.Contains(t, []string{"a", "b"}, chosen)
		require.Equal(t, 2, failures)
	})

	t.Run("does not retry argument errors", func(t *testing.T) {
		a := New(store.NewMemory(), WithRetry(5, 0))
		_, err := a.AllocateOneRetry(t.Context(), counterPath, nil)
		require.ErrorIs(t, err, types.ErrInvalidArgument)
	})

	t.Run("gives up after the budget", func(t *testing.T) {
		var s *store.Memory
		s = store.NewMemory(store.WithMaxAttempts(1), store.WithCommitHook(func(_ string, _ int) {
			require.NoError(t, s.Set(t.Context(), counterPath, []byte(`{}`)))
		}))
		a := New(s, WithRetry(3, 0))

		_, err := a.AllocateOneRetry(t.Context(), counterPath, []string{"a"})
		require.True(t, errors.Is(err, types.ErrAllocationFailed))
	})
}
