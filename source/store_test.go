package source

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/cohort/store"
	"github.com/arloliu/cohort/types"
)

func TestStore_ListScenarios(t *testing.T) {
	t.Run("absent catalog reports no scenarios", func(t *testing.T) {
		src := NewStore(store.NewMemory())

		_, err := src.ListScenarios(t.Context())

		require.ErrorIs(t, err, types.ErrNoScenarios)
	})

	t.Run("saved catalog is listed in id order", func(t *testing.T) {
		src := NewStore(store.NewMemory())
		require.NoError(t, src.Save(t.Context(), []types.Scenario{
			{ID: "s3", TargetCriterion: types.CriterionFrequency},
			{ID: "s1", TargetCriterion: types.CriterionRecommendation, Title: "Recommendation"},
		}))

		result, err := src.ListScenarios(t.Context())

		require.NoError(t, err)
		require.Len(t, result, 2)
		require.Equal(t, "s1", result[0].ID)
		require.Equal(t, "Recommendation", result[0].Title)
		require.Equal(t, "s3", result[1].ID)
	})

	t.Run("malformed catalog is a schema violation", func(t *testing.T) {
		s := store.NewMemory()
		require.NoError(t, s.Set(t.Context(), CatalogPath, []byte(`["s1","s2"]`)))

		_, err := NewStore(s).ListScenarios(t.Context())

		require.ErrorIs(t, err, types.ErrSchemaViolation)
	})

	t.Run("rejects scenarios without an id", func(t *testing.T) {
		err := NewStore(store.NewMemory()).Save(t.Context(), []types.Scenario{{Title: "x"}})

		require.ErrorIs(t, err, types.ErrInvalidArgument)
	})
}
