package node

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/cohort/store"
	"github.com/arloliu/cohort/types"
)

func TestDecode(t *testing.T) {
	t.Run("accepts a valid value", func(t *testing.T) {
		c, err := Decode[types.Counter]([]byte(`{"s1":2,"s2":0}`))
		require.NoError(t, err)
		require.Equal(t, types.Counter{"s1": 2, "s2": 0}, c)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		_, err := Decode[types.Progress]([]byte(`{"last":1,"extra":true}`))
		require.ErrorIs(t, err, types.ErrSchemaViolation)
	})

	t.Run("rejects trailing data", func(t *testing.T) {
		_, err := Decode[types.Counter]([]byte(`{"s1":1}{"s2":1}`))
		require.ErrorIs(t, err, types.ErrSchemaViolation)
	})

	t.Run("runs Validate on value receivers", func(t *testing.T) {
		_, err := Decode[types.Counter]([]byte(`{"s1":-1}`))
		require.ErrorIs(t, err, types.ErrSchemaViolation)
	})

	t.Run("runs Validate on pointer receivers", func(t *testing.T) {
		_, err := Decode[types.CycleState]([]byte(`{"cycleId":"c","blockSize":2,"totalBlocks":1,"sequence":["1"]}`))
		require.ErrorIs(t, err, types.ErrSchemaViolation)
	})
}

func TestGetSet(t *testing.T) {
	s := store.NewMemory()

	t.Run("absent node reports not found without error", func(t *testing.T) {
		_, ok, err := Get[types.Counter](t.Context(), s, "/metrics/scenario_counts")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("round trips through the store", func(t *testing.T) {
		require.NoError(t, Set(t.Context(), s, "/orders/s1", types.OrderRegistry{"abc": 3}))

		got, ok, err := Get[types.OrderRegistry](t.Context(), s, "/orders/s1")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, types.OrderRegistry{"abc": 3}, got)
	})

	t.Run("refuses to write invalid values", func(t *testing.T) {
		err := Set(t.Context(), s, "/metrics/x", types.Counter{"a": -5})
		require.ErrorIs(t, err, types.ErrSchemaViolation)
	})

	t.Run("push encodes children", func(t *testing.T) {
		key, err := Push(t.Context(), s, "/participants", types.Participant{})
		require.NoError(t, err)

		_, ok, err := Get[types.Participant](t.Context(), s, "/participants/"+key)
		require.NoError(t, err)
		require.True(t, ok)
	})
}

func TestTransact(t *testing.T) {
	t.Run("returns the output of the committed attempt", func(t *testing.T) {
		var s types.NodeStore
		calls := 0
		s = store.NewMemory(store.WithCommitHook(func(_ string, attempt int) {
			if attempt == 1 {
				require.NoError(t, Set(t.Context(), s, "/metrics/c", types.Counter{"a": 7}))
			}
		}))

		out, res, err := Transact(t.Context(), s, "/metrics/c", func(c types.Counter, exists bool) (Outcome[types.Counter, int64], error) {
			calls++
			if !exists {
				c = types.Counter{}
			}
			c["a"]++

			return Outcome[types.Counter, int64]{State: c, Output: c["a"]}, nil
		})
		require.NoError(t, err)
		require.True(t, res.Committed)
		require.Equal(t, 2, calls)
		require.Equal(t, int64(8), out)
	})

	t.Run("abort keeps the output and skips the write", func(t *testing.T) {
		s := store.NewMemory()
		require.NoError(t, Set(t.Context(), s, "/orders/s1", types.OrderRegistry{"k": 1}))

		out, res, err := Transact(t.Context(), s, "/orders/s1", func(r types.OrderRegistry, _ bool) (Outcome[types.OrderRegistry, string], error) {
			return Outcome[types.OrderRegistry, string]{Output: "rejected", Abort: true}, nil
		})
		require.NoError(t, err)
		require.False(t, res.Committed)
		require.Equal(t, "rejected", out)
	})

	t.Run("invalid current value fails by default", func(t *testing.T) {
		s := store.NewMemory()
		require.NoError(t, s.Set(t.Context(), "/cycles/s1", []byte(`not json`)))

		_, _, err := Transact(t.Context(), s, "/cycles/s1", func(c types.CycleState, _ bool) (Outcome[types.CycleState, struct{}], error) {
			return Outcome[types.CycleState, struct{}]{State: c}, nil
		})
		require.ErrorIs(t, err, types.ErrSchemaViolation)
	})

	t.Run("ResetInvalid presents invalid values as absent", func(t *testing.T) {
		s := store.NewMemory()
		require.NoError(t, s.Set(t.Context(), "/metrics/c", []byte(`{"a":-1}`)))

		_, res, err := Transact(t.Context(), s, "/metrics/c", func(c types.Counter, exists bool) (Outcome[types.Counter, struct{}], error) {
			require.False(t, exists)
			return Outcome[types.Counter, struct{}]{State: types.Counter{"a": 1}}, nil
		}, ResetInvalid())
		require.NoError(t, err)
		require.True(t, res.Committed)
	})
}
