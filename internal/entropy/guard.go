package entropy

import (
	"context"
	"fmt"

	"github.com/arloliu/cohort/internal/hooks"
	"github.com/arloliu/cohort/internal/logging"
	"github.com/arloliu/cohort/internal/metrics"
	"github.com/arloliu/cohort/types"
)

// Defaults for Guard.
const (
	DefaultMinBits     = 2.5
	DefaultMaxAttempts = 25
)

// Result is the combination a Guard settled on.
type Result struct {
	IDs []string

	// Bypassed is true when no draw satisfied the floor and the last draw was
	// recorded unconditionally.
	Bypassed bool

	// Attempts is the number of draws made.
	Attempts int
}

// Guard retries random draws until the registrar accepts one.
type Guard struct {
	reg         *Registrar
	minBits     float64
	maxAttempts int
	logger      types.Logger
	metrics     types.MetricsCollector
	hooks       *types.Hooks
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithGuardLogger sets a logger.
func WithGuardLogger(logger types.Logger) GuardOption {
	return func(g *Guard) { g.logger = logging.OrNop(logger) }
}

// WithGuardMetrics sets a metrics collector.
func WithGuardMetrics(m types.MetricsCollector) GuardOption {
	return func(g *Guard) { g.metrics = metrics.OrNop(m) }
}

// WithGuardHooks sets event hooks; OnGuardBypassed and OnError are used.
func WithGuardHooks(h *types.Hooks) GuardOption {
	return func(g *Guard) { g.hooks = hooks.Fill(h) }
}

// NewGuard creates a guard.
//
// Parameters:
//   - reg: Registrar recording accepted combinations
//   - minBits: Entropy floor; <= 0 accepts every draw
//   - maxAttempts: Draw budget (<= 0 uses DefaultMaxAttempts)
//   - opts: Optional dependencies
func NewGuard(reg *Registrar, minBits float64, maxAttempts int, opts ...GuardOption) *Guard {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	g := &Guard{
		reg:         reg,
		minBits:     minBits,
		maxAttempts: maxAttempts,
		logger:      logging.NewNop(),
		metrics:     metrics.NewNop(),
		hooks:       hooks.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}

	return g
}

// MinBits returns the configured floor.
func (g *Guard) MinBits() float64 {
	return g.minBits
}

// Run draws combinations until one is accepted.
//
// When every draw is rejected the last one is recorded anyway and returned
// with Bypassed set, so the caller always gets a combination. The exhaustion
// is reported through metrics and hooks, never as an error.
//
// Parameters:
//   - ctx: Context for cancellation
//   - scenario: Scenario id
//   - draw: Returns a fresh random combination on every call
//
// Returns:
//   - Result: The accepted (or forced) combination
//   - error: store errors or types.ErrInvalidArgument for empty draws
func (g *Guard) Run(ctx context.Context, scenario string, draw func() []string) (Result, error) {
	var last []string
	rejected := make(map[string]struct{})
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		last = draw()

		// A reordering of a rejected set has the same signature.
		key := SignatureKey(last)
		if _, seen := rejected[key]; seen && len(last) > 0 {
			continue
		}

		ok, err := g.reg.Register(ctx, scenario, last, g.minBits)
		if err != nil {
			return Result{}, err
		}
		if ok {
			return Result{IDs: last, Attempts: attempt}, nil
		}
		rejected[key] = struct{}{}
	}

	if err := g.reg.Force(ctx, scenario, last); err != nil {
		return Result{}, err
	}

	g.metrics.RecordGuardBypass(scenario)
	exhausted := fmt.Errorf("%w: %s after %d draws", types.ErrDiversityGuardExhausted, scenario, g.maxAttempts)
	g.logger.Warn("entropy guard bypassed", "scenario", scenario, "minBits", FormatBits(g.minBits), "error", exhausted)

	if err := g.hooks.OnGuardBypassed(ctx, scenario, last); err != nil {
		g.logger.Warn("OnGuardBypassed hook failed", "scenario", scenario, "error", err)
	}
	if err := g.hooks.OnError(ctx, exhausted); err != nil {
		g.logger.Debug("OnError hook failed", "error", err)
	}

	return Result{IDs: last, Bypassed: true, Attempts: g.maxAttempts}, nil
}
