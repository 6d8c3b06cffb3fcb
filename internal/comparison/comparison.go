// Package comparison builds the A/B comparison trials shown after a
// participant's main trials.
//
// For a scenario that targets a criterion, the trials cover every ordered pair
// of that criterion's levels in random order. The remaining criteria are
// spread across a continuous range with a randomly shifted Halton sequence so
// neighbouring trials do not cluster.
package comparison

import (
	"math"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/arloliu/cohort/internal/design"
	"github.com/arloliu/cohort/types"
)

// DefaultCount is the number of comparison trials per participant.
const DefaultCount = 16

// Range is a continuous interval. From may exceed To; values are interpolated
// from From towards To.
type Range struct {
	From float64 `yaml:"from"`
	To   float64 `yaml:"to"`
}

// DefaultScenarioCriteria maps scenario ids to their targeted criterion.
func DefaultScenarioCriteria() map[string]string {
	return map[string]string{
		"s1": types.CriterionRecommendation,
		"s2": types.CriterionCoverage,
		"s3": types.CriterionFrequency,
		"s4": types.CriterionMissing,
	}
}

// DefaultRanges returns the continuous ranges of every criterion. Frequency is
// expressed in days.
func DefaultRanges() map[string]Range {
	return map[string]Range{
		types.CriterionRecommendation: {From: 95, To: 65},
		types.CriterionCoverage:       {From: 35, To: 20},
		types.CriterionMissing:        {From: 5, To: 20},
		types.CriterionFrequency:      {From: 1, To: 90},
	}
}

// Config controls comparison trial generation.
type Config struct {
	Count            int
	IncludeSelfPairs bool
	ScenarioCriteria map[string]string
	Ranges           map[string]Range
}

// Builder generates comparison trial sets.
type Builder struct {
	cfg Config
	now func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Builder.
type Option func(*Builder)

// WithRand sets the random source.
func WithRand(rng *rand.Rand) Option {
	return func(b *Builder) {
		if rng != nil {
			b.rng = rng
		}
	}
}

// New creates a builder. Zero-valued config fields take their defaults.
func New(cfg Config, opts ...Option) *Builder {
	if cfg.Count <= 0 {
		cfg.Count = DefaultCount
	}
	if cfg.ScenarioCriteria == nil {
		cfg.ScenarioCriteria = DefaultScenarioCriteria()
	}
	ranges := DefaultRanges()
	for c, r := range cfg.Ranges {
		ranges[c] = r
	}
	cfg.Ranges = ranges

	b := &Builder{
		cfg: cfg,
		now: time.Now,
		rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint:gosec // sampling, not security
	}
	for _, opt := range opts {
		opt(b)
	}

	return b
}

// TargetCriterion returns the criterion a scenario manipulates, if any.
func (b *Builder) TargetCriterion(scenario string) (string, bool) {
	c, ok := b.cfg.ScenarioCriteria[scenario]
	if !ok {
		return "", false
	}
	if _, known := design.Levels(c); !known {
		return "", false
	}

	return c, true
}

// Build returns Count comparison trials keyed "1".."Count". Trials are
// targeted at target when it names a known criterion and fully random
// otherwise.
func (b *Builder) Build(scenario, target string) map[string]types.ComparisonTrial {
	b.mu.Lock()
	defer b.mu.Unlock()

	var pairs [][2]types.Condition
	if _, ok := design.Levels(target); ok {
		pairs = b.targetedPairs(target)
	} else {
		pairs = b.randomPairs()
	}

	at := b.now().UTC()
	out := make(map[string]types.ComparisonTrial, b.cfg.Count)
	for i := range b.cfg.Count {
		p := pairs[i%len(pairs)]
		out[strconv.Itoa(i+1)] = types.ComparisonTrial{
			ScenarioID: scenario,
			OptionA:    p[0],
			OptionB:    p[1],
			CreatedAt:  at,
		}
	}

	return out
}

// targetedPairs covers every (A, B) level pair of target once, shuffled; the
// other criteria come from the Halton sequence.
func (b *Builder) targetedPairs(target string) [][2]types.Condition {
	lv, _ := design.Levels(target)

	combos := make([][2]string, 0, len(lv)*len(lv))
	for _, a := range lv {
		for _, c := range lv {
			if b.cfg.IncludeSelfPairs || a != c {
				combos = append(combos, [2]string{a, c})
			}
		}
	}
	b.rng.Shuffle(len(combos), func(i, j int) { combos[i], combos[j] = combos[j], combos[i] })

	others := make([]string, 0, len(types.Criteria)-1)
	for _, c := range types.Criteria {
		if c != target {
			others = append(others, c)
		}
	}
	points := b.halton(2*len(combos), len(others))

	pairs := make([][2]types.Condition, len(combos))
	for i, combo := range combos {
		for side := range 2 {
			cont := make(map[string]float64, len(others))
			for d, c := range others {
				r := b.cfg.Ranges[c]
				cont[c] = round2(r.From + points[2*i+side][d]*(r.To-r.From))
			}
			pairs[i][side] = types.Condition{
				Levels:     map[string]string{target: combo[side]},
				Continuous: cont,
			}
		}
	}

	return pairs
}

// randomPairs draws fully random discrete options for untargeted scenarios.
func (b *Builder) randomPairs() [][2]types.Condition {
	pairs := make([][2]types.Condition, b.cfg.Count)
	for i := range pairs {
		for side := range 2 {
			levels := make(map[string]string, len(types.Criteria))
			for _, c := range types.Criteria {
				lv, _ := design.Levels(c)
				levels[c] = lv[b.rng.IntN(len(lv))]
			}
			pairs[i][side] = types.Condition{Levels: levels}
		}
	}

	return pairs
}

var haltonBases = []int{2, 3, 5, 7, 11, 13}

// halton returns n points in [0,1)^dims from the Halton sequence, starting at a
// random index and shifted by a random offset per dimension (mod 1).
func (b *Builder) halton(n, dims int) [][]float64 {
	start := 1 + b.rng.IntN(1024)
	shift := make([]float64, dims)
	for d := range shift {
		shift[d] = b.rng.Float64()
	}

	points := make([][]float64, n)
	for i := range points {
		p := make([]float64, dims)
		for d := range p {
			v := RadicalInverse(start+i, haltonBases[d%len(haltonBases)]) + shift[d]
			p[d] = v - math.Floor(v)
		}
		points[i] = p
	}

	return points
}

// RadicalInverse returns the van der Corput radical inverse of i in base.
func RadicalInverse(i, base int) float64 {
	var (
		result float64
		f      = 1.0 / float64(base)
	)
	for ; i > 0; i /= base {
		result += f * float64(i%base)
		f /= float64(base)
	}

	return result
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
