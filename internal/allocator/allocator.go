// Package allocator implements the balanced counter allocator.
//
// A counter node maps candidate keys to how often each was chosen. Every
// allocation reads the node, picks uniformly at random among the candidates
// with the smallest count, increments that count and commits, all inside one
// store transaction. Over many concurrent callers the counts never drift apart
// by more than the number of in-flight conflicts.
package allocator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path"
	"sync"
	"time"

	"github.com/arloliu/cohort/internal/kvutil"
	"github.com/arloliu/cohort/internal/logging"
	"github.com/arloliu/cohort/internal/metrics"
	"github.com/arloliu/cohort/internal/node"
	"github.com/arloliu/cohort/types"
)

// Allocator picks balanced candidates from counter nodes.
type Allocator struct {
	store       types.NodeStore
	logger      types.Logger
	metrics     types.MetricsCollector
	maxAttempts int
	backoff     time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithRand sets the random source used for tie-breaking.
func WithRand(rng *rand.Rand) Option {
	return func(a *Allocator) {
		if rng != nil {
			a.rng = rng
		}
	}
}

// WithLogger sets a logger.
func WithLogger(logger types.Logger) Option {
	return func(a *Allocator) {
		a.logger = logging.OrNop(logger)
	}
}

// WithMetrics sets a metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(a *Allocator) {
		a.metrics = metrics.OrNop(m)
	}
}

// WithRetry sets the attempt budget and base backoff of AllocateOneRetry.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(a *Allocator) {
		if maxAttempts > 0 {
			a.maxAttempts = maxAttempts
		}
		if backoff > 0 {
			a.backoff = backoff
		}
	}
}

// New creates an allocator over s.
func New(s types.NodeStore, opts ...Option) *Allocator {
	a := &Allocator{
		store:       s,
		logger:      logging.NewNop(),
		metrics:     metrics.NewNop(),
		maxAttempts: 3,
		backoff:     10 * time.Millisecond,
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint:gosec // balancing, not security
	}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// AllocateOne chooses one candidate from the counter node at counterPath and
// increments its count.
//
// Absent nodes count as all zero. Every candidate is written with its count,
// so candidates never chosen appear as 0. Keys in the node that are not
// candidates are preserved but never chosen. Candidate order does not affect the choice.
//
// Parameters:
//   - ctx: Context for cancellation
//   - counterPath: Counter node path (e.g. "/metrics/scenario_counts")
//   - candidates: Non-empty list of distinct, non-empty keys
//
// Returns:
//   - string: The chosen candidate
//   - error: types.ErrInvalidArgument, or types.ErrAllocationFailed when the
//     transaction never committed
func (a *Allocator) AllocateOne(ctx context.Context, counterPath string, candidates []string) (string, error) {
	if err := validateCandidates(candidates); err != nil {
		return "", err
	}
	name := path.Base(counterPath)

	chosen, _, err := node.Transact(ctx, a.store, counterPath,
		func(current types.Counter, _ bool) (node.Outcome[types.Counter, string], error) {
			next := make(types.Counter, len(current)+len(candidates))
			for k, v := range current {
				next[k] = v
			}
			for _, c := range candidates {
				if _, ok := next[c]; !ok {
					next[c] = 0
				}
			}

			pick := a.pickMin(next, candidates)
			next[pick]++

			return node.Outcome[types.Counter, string]{State: next, Output: pick}, nil
		}, node.ResetInvalid())
	if err != nil {
		a.metrics.RecordAllocation(name, false)
		return "", fmt.Errorf("%w: %s: %w", types.ErrAllocationFailed, counterPath, err)
	}

	a.metrics.RecordAllocation(name, true)
	a.logger.Debug("allocated", "counter", counterPath, "chosen", chosen)

	return chosen, nil
}

// AllocateOneRetry calls AllocateOne until it succeeds, the error is not
// retryable, or the attempt budget is spent. Attempts are separated by
// exponential backoff.
func (a *Allocator) AllocateOneRetry(ctx context.Context, counterPath string, candidates []string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		chosen, err := a.AllocateOne(ctx, counterPath, candidates)
		if err == nil {
			return chosen, nil
		}
		if !types.IsRetryable(err) {
			return "", err
		}
		lastErr = err

		if attempt < a.maxAttempts-1 {
			a.logger.Warn("allocation failed, retrying", "counter", counterPath, "attempt", attempt+1, "error", err)
			if werr := kvutil.Backoff(ctx, attempt, a.backoff); werr != nil {
				return "", fmt.Errorf("%w: %w", lastErr, werr)
			}
		}
	}

	return "", lastErr
}

// Counts reads the counter node; an absent node yields an empty counter.
func (a *Allocator) Counts(ctx context.Context, counterPath string) (types.Counter, error) {
	c, ok, err := node.Get[types.Counter](ctx, a.store, counterPath)
	if err != nil {
		return nil, err
	}
	if !ok || c == nil {
		return types.Counter{}, nil
	}

	return c, nil
}

// pickMin returns a uniformly random candidate among those with the smallest
// count in c.
func (a *Allocator) pickMin(c types.Counter, candidates []string) string {
	minCount := c[candidates[0]]
	for _, k := range candidates[1:] {
		minCount = min(minCount, c[k])
	}

	pool := make([]string, 0, len(candidates))
	for _, k := range candidates {
		if c[k] == minCount {
			pool = append(pool, k)
		}
	}

	a.mu.Lock()
	i := a.rng.IntN(len(pool))
	a.mu.Unlock()

	return pool[i]
}

func validateCandidates(candidates []string) error {
	if len(candidates) == 0 {
		return fmt.Errorf("%w: no candidates", types.ErrInvalidArgument)
	}

	seen := make(map[string]struct{}, len(candidates))
	for _, k := range candidates {
		if k == "" {
			return fmt.Errorf("%w: empty candidate key", types.ErrInvalidArgument)
		}
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: duplicate candidate %q", types.ErrInvalidArgument, k)
		}
		seen[k] = struct{}{}
	}

	return nil
}
