package entropy

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/cohort/internal/metrics"
	"github.com/arloliu/cohort/store"
	"github.com/arloliu/cohort/types"
)

func TestSignature(t *testing.T) {
	require.Equal(t, "1,10,2", Signature([]string{"2", "10", "1"}))
	require.Equal(t, Signature([]string{"a", "b", "c"}), Signature([]string{"c", "b", "a"}))

	t.Run("key is order independent and compact", func(t *testing.T) {
		k1 := SignatureKey([]string{"3", "1", "2"})
		k2 := SignatureKey([]string{"1", "2", "3"})
		require.Equal(t, k1, k2)
		require.Len(t, k1, 16)
		require.NotEqual(t, k1, SignatureKey([]string{"1", "2", "4"}))
	})

	t.Run("does not mutate its input", func(t *testing.T) {
		ids := []string{"b", "a"}
		_ = Signature(ids)
		require.Equal(t, []string{"b", "a"}, ids)
	})
}

func TestEntropy(t *testing.T) {
	require.Zero(t, Entropy(nil))
	require.Zero(t, Entropy(map[string]int64{"a": 5}))
	require.InDelta(t, 1.0, Entropy(map[string]int64{"a": 1, "b": 1}), 1e-12)
	require.InDelta(t, 2.0, Entropy(map[string]int64{"a": 3, "b": 3, "c": 3, "d": 3}), 1e-12)
	require.InDelta(t, -(2.0/3)*math.Log2(2.0/3)-(1.0/3)*math.Log2(1.0/3),
		Entropy(map[string]int64{"a": 2, "b": 1}), 1e-12)
}

func TestAdmissible(t *testing.T) {
	t.Run("floor skipped while unreachable", func(t *testing.T) {
		require.True(t, Admissible(map[string]int64{"a": 100}, 2.5))
		require.True(t, Admissible(map[string]int64{"a": 100, "b": 1, "c": 1, "d": 1, "e": 1}, 2.5))
	})

	t.Run("reachable floor is enforced", func(t *testing.T) {
		counts := map[string]int64{"a": 100, "b": 1, "c": 1, "d": 1, "e": 1, "f": 1}
		require.False(t, Admissible(counts, 2.5))
	})
}

func TestRegister(t *testing.T) {
	t.Run("repeating a signature is eventually rejected", func(t *testing.T) {
		r := NewRegistrar(store.NewMemory())
		ctx := t.Context()

		ok, err := r.Register(ctx, "s1", []string{"1", "2"}, 1.0)
		require.NoError(t, err)
		require.True(t, ok, "single signature: floor unreachable")

		ok, err = r.Register(ctx, "s1", []string{"3", "4"}, 1.0)
		require.NoError(t, err)
		require.True(t, ok, "two equal signatures reach exactly one bit")

		ok, err = r.Register(ctx, "s1", []string{"2", "1"}, 1.0)
		require.NoError(t, err)
		require.False(t, ok, "2:1 split drops below one bit")

		reg, err := r.Registry(ctx, "s1")
		require.NoError(t, err)
		require.Equal(t, types.OrderRegistry{
			SignatureKey([]string{"1", "2"}): 1,
			SignatureKey([]string{"3", "4"}): 1,
		}, reg, "rejection leaves the registry unchanged")
	})

	t.Run("fresh signatures are never rejected", func(t *testing.T) {
		r := NewRegistrar(store.NewMemory())
		for i := range 100 {
			ok, err := r.Register(t.Context(), "s1", []string{fmt.Sprint(i), "x"}, 2.5)
			require.NoError(t, err)
			require.True(t, ok, "registration %d", i)
		}
	})

	t.Run("empty combinations are invalid", func(t *testing.T) {
		r := NewRegistrar(store.NewMemory())
		_, err := r.Register(t.Context(), "s1", nil, 2.5)
		require.ErrorIs(t, err, types.ErrInvalidArgument)
	})
}

func TestGuard(t *testing.T) {
	t.Run("accepts the first admissible draw", func(t *testing.T) {
		g := NewGuard(NewRegistrar(store.NewMemory()), 2.5, 25)
		res, err := g.Run(t.Context(), "s1", func() []string { return []string{"1", "2", "3"} })
		require.NoError(t, err)
		require.False(t, res.Bypassed)
		require.Equal(t, 1, res.Attempts)
	})

	t.Run("retries until a draw is accepted", func(t *testing.T) {
		s := store.NewMemory()
		r := NewRegistrar(s)
		ctx := t.Context()
		for _, ids := range [][]string{{"a"}, {"b"}} {
			ok, err := r.Register(ctx, "s1", ids, 1.0)
			require.NoError(t, err)
			require.True(t, ok)
		}

		draws := [][]string{{"a"}, {"b"}, {"c"}}
		n := 0
		g := NewGuard(r, 1.0, 5)
		res, err := g.Run(ctx, "s1", func() []string {
			d := draws[n]
			n++
			return d
		})
		require.NoError(t, err)
		require.Equal(t, []string{"c"}, res.IDs)
		require.Equal(t, 3, res.Attempts)
	})

	t.Run("falls back to the last draw and flags the bypass", func(t *testing.T) {
		s := store.NewMemory()
		r := NewRegistrar(s)
		ctx := t.Context()
		for _, ids := range [][]string{{"a"}, {"b"}} {
			_, err := r.Register(ctx, "s1", ids, 1.0)
			require.NoError(t, err)
		}

		var bypassed []string
		var reported error
		g := NewGuard(r, 1.0, 4, WithGuardHooks(&types.Hooks{
			OnGuardBypassed: func(_ context.Context, _ string, ids []string) error {
				bypassed = ids
				return nil
			},
			OnError: func(_ context.Context, err error) error {
				reported = err
				return nil
			},
		}))

		res, err := g.Run(ctx, "s1", func() []string { return []string{"a"} })
		require.NoError(t, err)
		require.True(t, res.Bypassed)
		require.Equal(t, 4, res.Attempts)
		require.Equal(t, []string{"a"}, bypassed)
		require.ErrorIs(t, reported, types.ErrDiversityGuardExhausted)

		reg, err := r.Registry(ctx, "s1")
		require.NoError(t, err)
		require.Equal(t, int64(2), reg[SignatureKey([]string{"a"})], "forced draw is still counted")
	})

	t.Run("reorderings of a rejected set are not resubmitted", func(t *testing.T) {
		s := store.NewMemory()
		m := &registrationCounter{}
		r := NewRegistrar(s, WithMetrics(m))
		ctx := t.Context()
		for _, ids := range [][]string{{"a", "b"}, {"c", "d"}} {
			_, err := r.Register(ctx, "s1", ids, 1.0)
			require.NoError(t, err)
		}
		m.n = 0

		flip := false
		g := NewGuard(r, 1.0, 6)
		res, err := g.Run(ctx, "s1", func() []string {
			flip = !flip
			if flip {
				return []string{"a", "b"}
			}
			return []string{"b", "a"}
		})
		require.NoError(t, err)
		require.True(t, res.Bypassed)
		require.Equal(t, 1, m.n)
	})

	t.Run("default draw budget", func(t *testing.T) {
		g := NewGuard(NewRegistrar(store.NewMemory()), DefaultMinBits, 0)
		require.InDelta(t, DefaultMinBits, g.MinBits(), 0)
		require.Equal(t, DefaultMaxAttempts, g.maxAttempts)
	})

	t.Run("a zero floor accepts repeated draws", func(t *testing.T) {
		g := NewGuard(NewRegistrar(store.NewMemory()), 0, 3)
		require.Zero(t, g.MinBits())

		for range 5 {
			res, err := g.Run(t.Context(), "s1", func() []string { return []string{"a", "b"} })
			require.NoError(t, err)
			require.False(t, res.Bypassed)
			require.Equal(t, 1, res.Attempts)
		}
	})
}

type registrationCounter struct {
	metrics.NopMetrics
	n int
}

func (c *registrationCounter) RecordRegistration(string, bool) {
	c.n++
}
