// Package cycle hands out fixed-size blocks of a shuffled, replicated
// permutation of a scenario's full-factorial conditions.
//
// Each scenario has one cycle state node. Blocks are issued by a single
// transaction on that node; when the cycle is missing or exhausted the same
// transaction builds a fresh one before slicing, so concurrent callers never
// receive overlapping blocks of one cycle.
package cycle

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/cohort/internal/design"
	"github.com/arloliu/cohort/internal/hooks"
	"github.com/arloliu/cohort/internal/logging"
	"github.com/arloliu/cohort/internal/metrics"
	"github.com/arloliu/cohort/internal/node"
	"github.com/arloliu/cohort/types"
)

// Rollover reasons reported to metrics.
const (
	ReasonInit         = "init"
	ReasonMissing      = "missing"
	ReasonExhausted    = "exhausted"
	ReasonReconfigured = "reconfigured"
	ReasonFallback     = "fallback"
)

// Path is the cycle state node of a scenario.
func Path(scenario string) string {
	return "/cycles/" + scenario
}

// Config sizes a cycle.
type Config struct {
	// Replication is how many independently shuffled copies of the condition
	// set make up one cycle (λ).
	Replication int

	// BlockSize is the number of ids issued per block.
	BlockSize int
}

// Manager issues cycle blocks.
type Manager struct {
	store   types.NodeStore
	gen     *design.Generator
	cfg     Config
	logger  types.Logger
	metrics types.MetricsCollector
	hooks   *types.Hooks
	now     func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets a logger.
func WithLogger(logger types.Logger) Option {
	return func(m *Manager) { m.logger = logging.OrNop(logger) }
}

// WithMetrics sets a metrics collector.
func WithMetrics(c types.MetricsCollector) Option {
	return func(m *Manager) { m.metrics = metrics.OrNop(c) }
}

// WithHooks sets event hooks; only OnCycleRollover and OnError are used.
func WithHooks(h *types.Hooks) Option {
	return func(m *Manager) { m.hooks = hooks.Fill(h) }
}

// WithRand sets the shuffle source.
func WithRand(rng *rand.Rand) Option {
	return func(m *Manager) {
		if rng != nil {
			m.rng = rng
		}
	}
}

// New creates a cycle manager.
//
// Parameters:
//   - s: Node store
//   - gen: Generator used to ensure the full-factorial condition set
//   - cfg: Cycle sizing; the replicated sequence must split into whole blocks
//   - opts: Optional dependencies
//
// Returns:
//   - *Manager: Ready to use manager
//   - error: types.ErrInvalidArgument for unusable sizing
func New(s types.NodeStore, gen *design.Generator, cfg Config, opts ...Option) (*Manager, error) {
	if cfg.Replication < 1 {
		return nil, fmt.Errorf("%w: replication must be >= 1, got %d", types.ErrInvalidArgument, cfg.Replication)
	}
	if cfg.BlockSize < 1 {
		return nil, fmt.Errorf("%w: block size must be >= 1, got %d", types.ErrInvalidArgument, cfg.BlockSize)
	}
	size := len(design.FullFactorial()) * cfg.Replication
	if size%cfg.BlockSize != 0 {
		return nil, fmt.Errorf("%w: sequence of %d does not split into blocks of %d", types.ErrInvalidArgument, size, cfg.BlockSize)
	}

	m := &Manager{
		store:   s,
		gen:     gen,
		cfg:     cfg,
		logger:  logging.NewNop(),
		metrics: metrics.NewNop(),
		hooks:   hooks.NewNop(),
		now:     time.Now,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint:gosec // shuffling, not security
	}
	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Init builds a brand-new cycle for scenario and overwrites its state.
func (m *Manager) Init(ctx context.Context, scenario string) (types.CycleState, error) {
	return m.reinit(ctx, scenario, ReasonInit)
}

// reinit writes a fresh cycle and reports one rollover with reason.
func (m *Manager) reinit(ctx context.Context, scenario, reason string) (types.CycleState, error) {
	ids, err := m.conditionIDs(ctx, scenario)
	if err != nil {
		return types.CycleState{}, err
	}

	state := m.build(ids)
	if err := node.Set(ctx, m.store, Path(scenario), state); err != nil {
		return types.CycleState{}, fmt.Errorf("init cycle for %s: %w", scenario, err)
	}
	m.rolledOver(ctx, scenario, state.CycleID, reason)

	return state, nil
}

// State returns the stored cycle state of scenario.
func (m *Manager) State(ctx context.Context, scenario string) (types.CycleState, bool, error) {
	return node.Get[types.CycleState](ctx, m.store, Path(scenario))
}

type issue struct {
	block  types.Block
	reason string
}

// NextBlock issues the next block of scenario's cycle.
//
// If the transaction commits without producing a usable block (the stored
// cycle referenced conditions that no longer exist), the cycle is rebuilt with
// Init and the call is retried exactly once.
//
// Returns:
//   - types.Block: Cycle id, zero-based block index and ordered condition ids
//   - error: types.ErrCycleUnavailable when the retry is also empty
func (m *Manager) NextBlock(ctx context.Context, scenario string) (types.Block, error) {
	ids, err := m.conditionIDs(ctx, scenario)
	if err != nil {
		return types.Block{}, err
	}

	block, err := m.next(ctx, scenario, ids)
	if err != nil {
		return types.Block{}, err
	}
	if len(block.IDs) > 0 {
		return block, nil
	}

	m.logger.Warn("cycle produced no block, reinitializing", "scenario", scenario)
	if _, err := m.reinit(ctx, scenario, ReasonFallback); err != nil {
		return types.Block{}, err
	}

	block, err = m.next(ctx, scenario, ids)
	if err != nil {
		return types.Block{}, err
	}
	if len(block.IDs) == 0 {
		err := fmt.Errorf("%w: %s", types.ErrCycleUnavailable, scenario)
		_ = m.hooks.OnError(ctx, err)

		return types.Block{}, err
	}

	return block, nil
}

func (m *Manager) next(ctx context.Context, scenario string, ids []string) (types.Block, error) {
	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}

	out, _, err := node.Transact(ctx, m.store, Path(scenario),
		func(state types.CycleState, exists bool) (node.Outcome[types.CycleState, issue], error) {
			var reason string
			switch {
			case !exists:
				reason = ReasonMissing
			case state.Exhausted():
				reason = ReasonExhausted
			case state.BlockSize != m.cfg.BlockSize || state.Replication != m.cfg.Replication:
				reason = ReasonReconfigured
			}
			if reason != "" {
				state = m.build(ids)
			}

			start, end := state.Cursor, state.Cursor+state.BlockSize
			slice := slices.Clone(state.Sequence[start:end])
			for _, id := range slice {
				if _, ok := known[id]; !ok {
					return node.Outcome[types.CycleState, issue]{Abort: true}, nil
				}
			}

			index := state.NextBlock
			state.Cursor = end
			state.NextBlock++

			return node.Outcome[types.CycleState, issue]{
				State: state,
				Output: issue{
					block:  types.Block{CycleID: state.CycleID, Index: index, IDs: slice},
					reason: reason,
				},
			}, nil
		}, node.ResetInvalid())
	if err != nil {
		return types.Block{}, fmt.Errorf("next block for %s: %w", scenario, err)
	}

	if out.reason != "" {
		m.rolledOver(ctx, scenario, out.block.CycleID, out.reason)
	}
	if len(out.block.IDs) > 0 {
		m.metrics.RecordBlockIssued(scenario)
		m.logger.Debug("issued cycle block", "scenario", scenario, "cycle", out.block.CycleID, "block", out.block.Index)
	}

	return out.block, nil
}

func (m *Manager) conditionIDs(ctx context.Context, scenario string) ([]string, error) {
	set, err := m.gen.Ensure(ctx, scenario, types.DesignFullFactorial)
	if err != nil {
		return nil, err
	}

	return set.IDs(), nil
}

// build returns a fresh cycle: Replication independent shuffles of ids.
func (m *Manager) build(ids []string) types.CycleState {
	seq := make([]string, 0, len(ids)*m.cfg.Replication)

	m.mu.Lock()
	for range m.cfg.Replication {
		replica := slices.Clone(ids)
		m.rng.Shuffle(len(replica), func(i, j int) { replica[i], replica[j] = replica[j], replica[i] })
		seq = append(seq, replica...)
	}
	m.mu.Unlock()

	return types.CycleState{
		CycleID:     uuid.Must(uuid.NewV7()).String(),
		Design:      types.DesignFullFactorial,
		Sequence:    seq,
		TotalBlocks: len(seq) / m.cfg.BlockSize,
		BlockSize:   m.cfg.BlockSize,
		Replication: m.cfg.Replication,
		CreatedAt:   m.now().UTC(),
	}
}

func (m *Manager) rolledOver(ctx context.Context, scenario, cycleID, reason string) {
	m.metrics.RecordCycleRollover(scenario, reason)
	m.logger.Info("cycle rolled over", "scenario", scenario, "cycle", cycleID, "reason", reason)
	if err := m.hooks.OnCycleRollover(ctx, scenario, cycleID); err != nil {
		m.logger.Warn("OnCycleRollover hook failed", "scenario", scenario, "error", err)
	}
}
