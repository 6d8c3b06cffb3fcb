package cohort

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/arloliu/cohort/internal/allocator"
	"github.com/arloliu/cohort/internal/comparison"
	"github.com/arloliu/cohort/internal/cycle"
	"github.com/arloliu/cohort/internal/design"
	"github.com/arloliu/cohort/internal/entropy"
	"github.com/arloliu/cohort/internal/hooks"
	"github.com/arloliu/cohort/internal/logging"
	"github.com/arloliu/cohort/internal/metrics"
	"github.com/arloliu/cohort/internal/node"
	"github.com/arloliu/cohort/strategy"
	"github.com/arloliu/cohort/types"
)

// Node paths owned by the Engine.
const (
	ParticipantsPath    = "/results"
	TaskOrderCountsPath = "/metrics/task_order_counts"
)

// AssignmentPath is the durable record of a participant.
func AssignmentPath(pid string) string {
	return "/assignments/" + pid
}

// MirrorPath is the lightweight assignment copy under the results namespace.
func MirrorPath(pid string) string {
	return ParticipantsPath + "/" + pid + "/assigned"
}

// TaskOrderMirrorPath is the task-order copy under the results namespace.
func TaskOrderMirrorPath(pid string) string {
	return ParticipantsPath + "/" + pid + "/task_order"
}

// Engine assigns participants to scenarios and trials and records their
// progress.
//
// Every mutating step is one store transaction, so any number of Engines in
// any number of processes may share a store. An Engine holds no state that
// coordinates participants.
type Engine struct {
	cfg      Config
	store    types.NodeStore
	source   types.ScenarioSource
	strategy types.ScenarioStrategy

	gen     *design.Generator
	alloc   *allocator.Allocator
	cycles  *cycle.Manager
	guard   *entropy.Guard
	compare *comparison.Builder

	logger  Logger
	metrics MetricsCollector
	hooks   *Hooks
	now     func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine creates an Engine.
//
// Parameters:
//   - cfg: Configuration; missing values are defaulted and the result validated
//   - s: Node store shared by every component
//   - src: Scenario source listing assignable scenarios
//   - opts: Optional dependencies (WithLogger, WithMetrics, WithHooks, WithStrategy, WithRand)
//
// Returns:
//   - *Engine: Ready to use engine
//   - error: ErrInvalidConfig, ErrStoreRequired or ErrScenarioSourceRequired
//
// Example:
//
//	cfg := cohort.DefaultConfig()
//	eng, err := cohort.NewEngine(&cfg, store.NewKV(kv), source.NewStore(kvStore))
//	if err != nil { /* handle */ }
//	a, err := eng.Assign(ctx, pid, 0)
func NewEngine(cfg *Config, s NodeStore, src ScenarioSource, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if s == nil {
		return nil, ErrStoreRequired
	}
	if src == nil {
		return nil, ErrScenarioSourceRequired
	}

	c := *cfg
	SetDefaults(&c)
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	logger := logging.OrNop(o.logger)
	collector := metrics.OrNop(o.metrics)
	h := hooks.Fill(o.hooks)
	c.ValidateWithWarnings(logger)

	seed := o.rng
	if seed == nil {
		seed = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // balancing, not security
	}
	child := func() *rand.Rand {
		return rand.New(rand.NewPCG(seed.Uint64(), seed.Uint64())) //nolint:gosec // balancing, not security
	}

	e := &Engine{
		cfg:     c,
		store:   s,
		source:  src,
		gen:     design.NewGenerator(s, logger),
		logger:  logger,
		metrics: collector,
		hooks:   h,
		now:     time.Now,
		rng:     child(),
	}

	e.alloc = allocator.New(s,
		allocator.WithRand(child()),
		allocator.WithLogger(logger),
		allocator.WithMetrics(collector),
		allocator.WithRetry(c.Allocation.MaxAttempts, c.Allocation.Backoff),
	)

	e.strategy = o.strategy
	if e.strategy == nil {
		strat, err := strategy.ByName(c.Assignment.Strategy, e.alloc)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		e.strategy = strat
	}

	if c.Assignment.TrialMode.usesCycle() {
		mgr, err := cycle.New(s, e.gen,
			cycle.Config{Replication: c.Cycle.Replication, BlockSize: c.Assignment.TrialCount},
			cycle.WithLogger(logger),
			cycle.WithMetrics(collector),
			cycle.WithHooks(h),
			cycle.WithRand(child()),
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		e.cycles = mgr
	}

	if c.Assignment.TrialMode.usesGuard() {
		reg := entropy.NewRegistrar(s, entropy.WithLogger(logger), entropy.WithMetrics(collector))
		e.guard = entropy.NewGuard(reg, c.Entropy.MinBits, c.Entropy.MaxAttempts,
			entropy.WithGuardLogger(logger),
			entropy.WithGuardMetrics(collector),
			entropy.WithGuardHooks(h),
		)
	}

	e.compare = comparison.New(comparison.Config{
		Count:            c.Comparison.Count,
		IncludeSelfPairs: c.Comparison.IncludeSelfPairs,
		ScenarioCriteria: c.Comparison.ScenarioCriteria,
		Ranges:           c.Comparison.Ranges,
	}, comparison.WithRand(child()))

	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// CreateParticipant registers a new participant and returns its generated id.
func (e *Engine) CreateParticipant(ctx context.Context) (string, error) {
	pid, err := node.Push(ctx, e.store, ParticipantsPath, types.Participant{CreatedAt: e.now().UTC()})
	if err != nil {
		return "", fmt.Errorf("create participant: %w", err)
	}
	e.logger.Debug("participant created", "pid", pid)

	return pid, nil
}

// GetAssignment returns the participant's record, or nil when none exists.
func (e *Engine) GetAssignment(ctx context.Context, pid string) (*Assignment, error) {
	if err := validateID(pid); err != nil {
		return nil, err
	}

	a, ok, err := node.Get[types.Assignment](ctx, e.store, AssignmentPath(pid))
	if err != nil {
		return nil, fmt.Errorf("read assignment %s: %w", pid, err)
	}
	if !ok {
		return nil, nil //nolint:nilnil // absent record is not an error
	}

	return &a, nil
}

// Assign returns the participant's assignment, creating it on first call.
//
// A complete record (scenario, trials and, when enabled, comparison trials) is
// returned as is without any write. Otherwise a scenario is chosen by the
// configured strategy, trials are selected according to the trial mode, their
// condition payloads are copied into the record, and the record is written
// followed by its results mirror. The write keeps a task order stored
// concurrently by EnsureTaskOrder, and a complete record stored concurrently
// by another Assign wins over this one.
//
// A record holding a scenario and trials but no comparison set keeps its
// scenario and trials; only the comparison set is added.
//
// Parameters:
//   - ctx: Context for cancellation
//   - pid: Participant id
//   - trialCount: Number of main trials; <= 0 uses Config.Assignment.TrialCount.
//     Cycle modes only accept the configured count.
//
// Returns:
//   - Assignment: The complete record
//   - error: ErrInvalidArgument, ErrNoScenarios, ErrAllocationFailed,
//     ErrCycleUnavailable or store errors
func (e *Engine) Assign(ctx context.Context, pid string, trialCount int) (Assignment, error) {
	start := e.now()

	a, replay, err := e.assign(ctx, pid, trialCount)
	if err != nil {
		e.metrics.RecordAssignmentFailure(failureReason(err))
		e.logger.Error("assignment failed", "pid", pid, "error", err)
		if hookErr := e.hooks.OnError(ctx, err); hookErr != nil {
			e.logger.Debug("OnError hook failed", "error", hookErr)
		}

		return Assignment{}, err
	}

	e.metrics.RecordAssignment(a.ScenarioID, replay, time.Since(start).Seconds())
	if !replay {
		e.logger.Info("participant assigned",
			"pid", pid,
			"scenario", a.ScenarioID,
			"trials", len(a.TrialIDs),
			"cycle", a.CycleID,
			"entropyGuard", a.EntropyGuard,
		)
		if err := e.hooks.OnAssigned(ctx, a); err != nil {
			e.logger.Warn("OnAssigned hook failed", "pid", pid, "error", err)
		}
	}

	return a, nil
}

func (e *Engine) assign(ctx context.Context, pid string, trialCount int) (Assignment, bool, error) {
	if err := validateID(pid); err != nil {
		return Assignment{}, false, err
	}
	n, err := e.trialCount(trialCount)
	if err != nil {
		return Assignment{}, false, err
	}

	existing, ok, err := node.Get[types.Assignment](ctx, e.store, AssignmentPath(pid))
	if err != nil && !errors.Is(err, types.ErrSchemaViolation) {
		return Assignment{}, false, fmt.Errorf("read assignment %s: %w", pid, err)
	}
	if err != nil {
		e.logger.Warn("replacing malformed assignment record", "pid", pid, "error", err)
		existing, ok = types.Assignment{}, false
	}
	if ok && existing.Complete(e.cfg.Comparison.Enabled) {
		return existing, true, nil
	}

	var a types.Assignment
	if ok && existing.Complete(false) {
		a = existing
	} else {
		a, err = e.compose(ctx, pid, n)
		if err != nil {
			return Assignment{}, false, err
		}
		a.TaskOrder = existing.TaskOrder
	}

	if e.cfg.Comparison.Enabled {
		if a.TargetCriterion == "" {
			scenarios, err := e.source.ListScenarios(ctx)
			if err != nil {
				return Assignment{}, false, fmt.Errorf("list scenarios: %w", err)
			}
			a.TargetCriterion = e.targetCriterion(scenarios, a.ScenarioID)
		}
		a.ComparisonTrials = e.compare.Build(a.ScenarioID, a.TargetCriterion)
	}

	return e.persist(ctx, a)
}

// compose chooses the scenario and trials of a new record.
func (e *Engine) compose(ctx context.Context, pid string, n int) (types.Assignment, error) {
	scenarios, err := e.source.ListScenarios(ctx)
	if err != nil {
		return types.Assignment{}, fmt.Errorf("list scenarios: %w", err)
	}
	if len(scenarios) == 0 {
		return types.Assignment{}, ErrNoScenarios
	}
	ids := make([]string, len(scenarios))
	for i, sc := range scenarios {
		ids[i] = sc.ID
	}

	sid, err := e.strategy.Select(ctx, ids)
	if err != nil {
		return types.Assignment{}, err
	}

	a := types.Assignment{
		ParticipantID:   pid,
		ScenarioID:      sid,
		TargetCriterion: e.targetCriterion(scenarios, sid),
		AssignedAt:      e.now().UTC(),
	}

	var set types.ConditionSet
	switch mode := e.cfg.Assignment.TrialMode; mode {
	case TrialModeCycle, TrialModeCycleEntropy:
		block, err := e.cycles.NextBlock(ctx, sid)
		if err != nil {
			return types.Assignment{}, err
		}
		a.CycleID, a.CycleBlock = block.CycleID, block.Index

		// NextBlock ensured the full factorial exists.
		set, err = e.gen.Load(ctx, sid, types.DesignFullFactorial)
		if err != nil {
			return types.Assignment{}, err
		}

		a.TrialIDs = block.IDs
		if mode == TrialModeCycleEntropy {
			res, err := e.guard.Run(ctx, sid, func() []string { return e.shuffled(block.IDs) })
			if err != nil {
				return types.Assignment{}, err
			}
			a.TrialIDs = res.IDs
			a.EntropyThresholdBits = e.guard.MinBits()
			a.EntropyGuard = guardLabel(res)
		}

	case TrialModeEntropy:
		set, err = e.gen.Ensure(ctx, sid, e.cfg.Entropy.Design)
		if err != nil {
			return types.Assignment{}, err
		}
		draw, err := e.drawer(set, a.TargetCriterion, n)
		if err != nil {
			return types.Assignment{}, err
		}

		res, err := e.guard.Run(ctx, sid, draw)
		if err != nil {
			return types.Assignment{}, err
		}
		a.TrialIDs = res.IDs
		a.EntropyThresholdBits = e.guard.MinBits()
		a.EntropyGuard = guardLabel(res)
	}

	a.Trials, err = materialize(set, a.TrialIDs)
	if err != nil {
		return types.Assignment{}, err
	}

	return a, nil
}

// persist writes the record unless a complete one was stored in the
// meantime, then writes the results mirror. A task order already on the stored
// record is kept. It returns the record that ends up stored and whether it was
// someone else's.
func (e *Engine) persist(ctx context.Context, a types.Assignment) (types.Assignment, bool, error) {
	pid := a.ParticipantID
	stored, res, err := node.Transact(ctx, e.store, AssignmentPath(pid),
		func(cur types.Assignment, exists bool) (node.Outcome[types.Assignment, types.Assignment], error) {
			if exists && cur.Complete(e.cfg.Comparison.Enabled) {
				return node.Outcome[types.Assignment, types.Assignment]{Output: cur, Abort: true}, nil
			}
			next := a
			if exists && cur.TaskOrder != "" {
				next.TaskOrder = cur.TaskOrder
			}

			return node.Outcome[types.Assignment, types.Assignment]{State: next, Output: next}, nil
		}, node.ResetInvalid())
	if err != nil {
		return Assignment{}, false, fmt.Errorf("write assignment %s: %w", pid, err)
	}
	if !res.Committed {
		e.logger.Warn("assignment completed concurrently, keeping stored record",
			"pid", pid, "kept", stored.ScenarioID, "dropped", a.ScenarioID)

		return stored, true, nil
	}

	mirror := types.AssignedMirror{ScenarioID: stored.ScenarioID, TrialIDs: stored.TrialIDs, At: stored.AssignedAt}
	if err := node.Set(ctx, e.store, MirrorPath(pid), mirror); err != nil {
		return Assignment{}, false, fmt.Errorf("write mirror %s: %w", pid, err)
	}

	return stored, false, nil
}

// EnsureTaskOrder returns the participant's task order, choosing one balanced
// across Config.Assignment.TaskOrders on first call.
//
// The label is written into the assignment record and mirrored under the
// results namespace. A record does not need to exist yet; Assign keeps the
// label when it creates one later.
func (e *Engine) EnsureTaskOrder(ctx context.Context, pid string) (string, error) {
	if err := validateID(pid); err != nil {
		return "", err
	}

	orders := e.cfg.Assignment.TaskOrders
	current, _, err := node.Get[types.Assignment](ctx, e.store, AssignmentPath(pid))
	if err != nil {
		return "", fmt.Errorf("read assignment %s: %w", pid, err)
	}
	if slices.Contains(orders, current.TaskOrder) {
		return current.TaskOrder, nil
	}

	chosen, err := e.alloc.AllocateOneRetry(ctx, TaskOrderCountsPath, orders)
	if err != nil {
		return "", err
	}

	label, _, err := node.Transact(ctx, e.store, AssignmentPath(pid),
		func(rec types.Assignment, exists bool) (node.Outcome[types.Assignment, string], error) {
			if exists && slices.Contains(orders, rec.TaskOrder) {
				return node.Outcome[types.Assignment, string]{Output: rec.TaskOrder, Abort: true}, nil
			}
			rec.ParticipantID = pid
			rec.TaskOrder = chosen

			return node.Outcome[types.Assignment, string]{State: rec, Output: chosen}, nil
		})
	if err != nil {
		return "", fmt.Errorf("write task order %s: %w", pid, err)
	}
	if label != chosen {
		e.logger.Warn("task order chosen concurrently, counter over-counted by one", "pid", pid, "kept", label, "dropped", chosen)
	}

	if err := node.Set(ctx, e.store, TaskOrderMirrorPath(pid), types.TaskOrderMirror{TaskOrder: label, At: e.now().UTC()}); err != nil {
		return "", fmt.Errorf("write task order mirror %s: %w", pid, err)
	}

	return label, nil
}

func (e *Engine) trialCount(n int) (int, error) {
	want := e.cfg.Assignment.TrialCount
	if n <= 0 {
		return want, nil
	}
	if e.cfg.Assignment.TrialMode.usesCycle() && n != want {
		return 0, fmt.Errorf("%w: trial count %d differs from cycle block size %d", ErrInvalidArgument, n, want)
	}
	if e.cfg.Assignment.TrialMode == TrialModeEntropy && e.cfg.Assignment.LevelBalanced && n%design.NumLevels != 0 {
		return 0, fmt.Errorf("%w: trial count %d is not divisible by %d", ErrInvalidArgument, n, design.NumLevels)
	}

	return n, nil
}

// targetCriterion prefers the catalog entry and falls back to the comparison table.
func (e *Engine) targetCriterion(scenarios []types.Scenario, sid string) string {
	for _, sc := range scenarios {
		if sc.ID == sid && sc.TargetCriterion != "" {
			if _, ok := design.Levels(sc.TargetCriterion); ok {
				return sc.TargetCriterion
			}
		}
	}
	c, _ := e.compare.TargetCriterion(sid)

	return c
}

// drawer returns a draw function for entropy mode. With LevelBalanced and a
// target criterion every draw takes n/4 random conditions from each level of
// that criterion; otherwise n conditions are sampled uniformly. The result is
// shuffled.
func (e *Engine) drawer(set types.ConditionSet, target string, n int) (func() []string, error) {
	ids := set.IDs()
	if n > len(ids) {
		return nil, fmt.Errorf("%w: trial count %d exceeds %d conditions of %s", ErrInvalidArgument, n, len(ids), set.Scenario)
	}

	lv, ok := design.Levels(target)
	if !e.cfg.Assignment.LevelBalanced || !ok {
		return func() []string { return e.shuffled(ids)[:n] }, nil
	}

	per := n / len(lv)
	buckets := make([][]string, len(lv))
	for _, id := range ids {
		i := slices.Index(lv, set.Conditions[id].Levels[target])
		if i < 0 {
			return nil, fmt.Errorf("%w: condition %s of %s has no %s level", ErrSchemaViolation, id, set.Scenario, target)
		}
		buckets[i] = append(buckets[i], id)
	}
	for i, b := range buckets {
		if len(b) < per {
			return nil, fmt.Errorf("%w: %s level %s has %d conditions, need %d", ErrInvalidArgument, target, lv[i], len(b), per)
		}
	}

	return func() []string {
		chosen := make([]string, 0, n)
		for _, b := range buckets {
			chosen = append(chosen, e.shuffled(b)[:per]...)
		}

		return e.shuffled(chosen)
	}, nil
}

func (e *Engine) shuffled(ids []string) []string {
	out := slices.Clone(ids)

	e.mu.Lock()
	e.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	e.mu.Unlock()

	return out
}

func materialize(set types.ConditionSet, ids []string) ([]types.Trial, error) {
	trials := make([]types.Trial, len(ids))
	for i, id := range ids {
		c, ok := set.Conditions[id]
		if !ok {
			return nil, fmt.Errorf("%w: condition %s missing from %s/%s", ErrCatalogMissing, id, set.Scenario, set.Design)
		}
		trials[i] = types.Trial{ID: id, Option: maps.Clone(c.Levels)}
	}

	return trials, nil
}

func guardLabel(res entropy.Result) string {
	if res.Bypassed {
		return types.EntropyGuardFallback
	}

	return types.EntropyGuardAccepted
}

func validateID(id string) error {
	if id == "" || strings.ContainsAny(id, "/. ") {
		return fmt.Errorf("%w: participant id %q", ErrInvalidArgument, id)
	}

	return nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrNoScenarios):
		return "no_scenarios"
	case errors.Is(err, ErrAllocationFailed):
		return "allocation_failed"
	case errors.Is(err, ErrCycleUnavailable):
		return "cycle_unavailable"
	case errors.Is(err, ErrSchemaViolation):
		return "schema_violation"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "store"
	}
}
