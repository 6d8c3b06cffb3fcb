package cohort

import "math/rand/v2"

// Option configures an Engine with optional dependencies.
type Option func(*engineOptions)

// engineOptions holds optional Engine configuration.
type engineOptions struct {
	strategy ScenarioStrategy
	hooks    *Hooks
	metrics  MetricsCollector
	logger   Logger
	rng      *rand.Rand
}

// WithStrategy overrides the scenario strategy named by
// Config.Assignment.Strategy.
//
// Parameters:
//   - s: ScenarioStrategy implementation
//
// Returns:
//   - Option: Functional option for NewEngine
//
// Example:
//
//	s := strategy.NewLeastCycleProgress(allocator)
//	eng, err := cohort.NewEngine(&cfg, store, src, cohort.WithStrategy(s))
func WithStrategy(s ScenarioStrategy) Option {
	return func(o *engineOptions) {
		o.strategy = s
	}
}

// WithHooks sets event hooks.
//
// Parameters:
//   - hooks: Hooks structure with callback functions
//
// Returns:
//   - Option: Functional option for NewEngine
//
// Example:
//
//	hooks := &cohort.Hooks{
//	    OnAssigned: func(ctx context.Context, a cohort.Assignment) error {
//	        return audit.Record(a.ParticipantID, a.ScenarioID)
//	    },
//	}
//	eng, err := cohort.NewEngine(&cfg, store, src, cohort.WithHooks(hooks))
func WithHooks(hooks *Hooks) Option {
	return func(o *engineOptions) {
		o.hooks = hooks
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for NewEngine
//
// Example:
//
//	metrics := myPrometheusCollector
//	eng, err := cohort.NewEngine(&cfg, store, src, cohort.WithMetrics(metrics))
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *engineOptions) {
		o.metrics = metrics
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Returns:
//   - Option: Functional option for NewEngine
//
// Example:
//
//	logger := zap.NewExample().Sugar()
//	eng, err := cohort.NewEngine(&cfg, store, src, cohort.WithLogger(logger))
func WithLogger(logger Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithRand seeds every random choice the Engine makes (tie-breaks, shuffles,
// draws). Intended for reproducible tests.
func WithRand(rng *rand.Rand) Option {
	return func(o *engineOptions) {
		o.rng = rng
	}
}
