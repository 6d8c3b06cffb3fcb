package source

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/cohort/types"
)

func TestStatic_ListScenarios(t *testing.T) {
	t.Run("returns all scenarios", func(t *testing.T) {
		scenarios := []types.Scenario{
			{ID: "s1", TargetCriterion: types.CriterionRecommendation},
			{ID: "s2", TargetCriterion: types.CriterionCoverage},
			{ID: "s3"},
		}
		src := NewStatic(scenarios)

		result, err := src.ListScenarios(t.Context())

		require.NoError(t, err)
		require.Equal(t, scenarios, result)
	})

	t.Run("returns ErrNoScenarios when empty", func(t *testing.T) {
		src := NewStatic(nil)

		_, err := src.ListScenarios(t.Context())

		require.ErrorIs(t, err, types.ErrNoScenarios)
	})

	t.Run("does not expose the internal slice", func(t *testing.T) {
		src := NewStaticIDs("s1")

		result, err := src.ListScenarios(t.Context())
		require.NoError(t, err)
		result[0].ID = "mutated"

		again, err := src.ListScenarios(t.Context())
		require.NoError(t, err)
		require.Equal(t, "s1", again[0].ID)
	})

	t.Run("update replaces the list", func(t *testing.T) {
		src := NewStaticIDs("s1", "s2")
		src.Update([]types.Scenario{{ID: "s9"}})

		result, err := src.ListScenarios(t.Context())
		require.NoError(t, err)
		require.Equal(t, []types.Scenario{{ID: "s9"}}, result)
	})
}
