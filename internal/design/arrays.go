package design

import (
	"fmt"

	"github.com/arloliu/cohort/types"
)

// NumLevels is the number of levels of every criterion.
const NumLevels = 4

// oa16 is a strength-2 OA(16, 4, 4, 2); levels are 1-based.
var oa16 = [16][4]int{
	{1, 1, 1, 1},
	{1, 2, 2, 2},
	{1, 3, 3, 3},
	{1, 4, 4, 4},
	{2, 1, 2, 3},
	{2, 2, 1, 4},
	{2, 3, 4, 1},
	{2, 4, 3, 2},
	{3, 1, 3, 4},
	{3, 2, 4, 3},
	{3, 3, 1, 2},
	{3, 4, 2, 1},
	{4, 1, 4, 2},
	{4, 2, 3, 1},
	{4, 3, 2, 4},
	{4, 4, 1, 3},
}

// columnPerms are the per-column level bijections applied to the second OA-16
// block. A bijection on the levels of one column preserves strength 2.
var columnPerms = [4]map[int]int{
	{1: 2, 2: 3, 3: 4, 4: 1},
	{1: 3, 2: 4, 3: 1, 4: 2},
	{1: 4, 2: 1, 3: 2, 4: 3},
	{1: 2, 2: 1, 3: 4, 4: 3},
}

var levels = map[string][NumLevels]string{
	types.CriterionRecommendation: {"95", "85", "75", "65"},
	types.CriterionFrequency:      {"Daily", "Weekly", "Monthly", "Quarterly"},
	types.CriterionMissing:        {"5", "10", "15", "20"},
	types.CriterionCoverage:       {"35", "30", "25", "20"},
}

// OA16 returns a copy of the base 16-run array.
func OA16() [][]int {
	rows := make([][]int, len(oa16))
	for i, r := range oa16 {
		rows[i] = []int{r[0], r[1], r[2], r[3]}
	}

	return rows
}

// OA32 returns the 32-run array: the base block followed by its
// column-permuted copy.
func OA32() [][]int {
	base := OA16()
	rows := make([][]int, 0, 2*len(base))
	rows = append(rows, base...)
	for _, r := range base {
		permuted := make([]int, len(r))
		for j, v := range r {
			permuted[j] = columnPerms[j][v]
		}
		rows = append(rows, permuted)
	}

	return rows
}

// FullFactorial returns all 4^4 level combinations, last factor fastest.
func FullFactorial() [][]int {
	rows := make([][]int, 0, NumLevels*NumLevels*NumLevels*NumLevels)
	for a := 1; a <= NumLevels; a++ {
		for b := 1; b <= NumLevels; b++ {
			for c := 1; c <= NumLevels; c++ {
				for d := 1; d <= NumLevels; d++ {
					rows = append(rows, []int{a, b, c, d})
				}
			}
		}
	}

	return rows
}

// Rows returns the design matrix for d.
func Rows(d types.Design) ([][]int, error) {
	switch d {
	case types.DesignOA32:
		return OA32(), nil
	case types.DesignFullFactorial:
		return FullFactorial(), nil
	default:
		return nil, fmt.Errorf("%w: unknown design %q", types.ErrInvalidArgument, d)
	}
}

// Levels returns the ordered level values of a criterion.
func Levels(criterion string) ([]string, bool) {
	lv, ok := levels[criterion]
	if !ok {
		return nil, false
	}

	return lv[:], true
}

// RowToLevels maps a 1-based design row onto level values in criterion order.
func RowToLevels(row []int) (map[string]string, error) {
	if len(row) != len(types.Criteria) {
		return nil, fmt.Errorf("%w: row has %d factors, want %d", types.ErrInvalidArgument, len(row), len(types.Criteria))
	}

	out := make(map[string]string, len(row))
	for j, crit := range types.Criteria {
		v := row[j]
		if v < 1 || v > NumLevels {
			return nil, fmt.Errorf("%w: level %d of %s out of range", types.ErrInvalidArgument, v, crit)
		}
		out[crit] = levels[crit][v-1]
	}

	return out, nil
}

// LevelsToRow is the inverse of RowToLevels.
func LevelsToRow(values map[string]string) ([]int, error) {
	row := make([]int, len(types.Criteria))
	for j, crit := range types.Criteria {
		idx := -1
		for i, lv := range levels[crit] {
			if lv == values[crit] {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s has unknown level %q", types.ErrSchemaViolation, crit, values[crit])
		}
		row[j] = idx + 1
	}

	return row, nil
}

// CheckStrength2 verifies that every pair of columns contains each ordered
// level pair equally often.
//
// Parameters:
//   - rows: Design matrix with 1-based levels
//
// Returns:
//   - error: Describes the first unbalanced column pair, nil when balanced
func CheckStrength2(rows [][]int) error {
	if len(rows) == 0 {
		return fmt.Errorf("%w: empty design", types.ErrInvalidArgument)
	}
	cols := len(rows[0])
	if len(rows)%(NumLevels*NumLevels) != 0 {
		return fmt.Errorf("%d runs cannot balance %d level pairs", len(rows), NumLevels*NumLevels)
	}
	want := len(rows) / (NumLevels * NumLevels)

	for a := 0; a < cols; a++ {
		for b := a + 1; b < cols; b++ {
			var counts [NumLevels + 1][NumLevels + 1]int
			for _, r := range rows {
				if len(r) != cols {
					return fmt.Errorf("%w: ragged design", types.ErrInvalidArgument)
				}
				if r[a] < 1 || r[a] > NumLevels || r[b] < 1 || r[b] > NumLevels {
					return fmt.Errorf("%w: level out of range", types.ErrInvalidArgument)
				}
				counts[r[a]][r[b]]++
			}
			for x := 1; x <= NumLevels; x++ {
				for y := 1; y <= NumLevels; y++ {
					if counts[x][y] != want {
						return fmt.Errorf("columns %d,%d: pair (%d,%d) appears %d times, want %d", a, b, x, y, counts[x][y], want)
					}
				}
			}
		}
	}

	return nil
}
