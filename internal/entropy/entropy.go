// Package entropy bounds how often the same set of trial ids recurs within a
// scenario.
//
// Every accepted combination is counted in the scenario's order registry under
// an order-independent signature. A registration is rejected when accepting it
// would push the Shannon entropy of the registry below a floor that the number
// of distinct signatures could actually reach.
package entropy

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/arloliu/cohort/internal/logging"
	"github.com/arloliu/cohort/internal/metrics"
	"github.com/arloliu/cohort/internal/node"
	"github.com/arloliu/cohort/types"
)

// Path is the order registry node of a scenario.
func Path(scenario string) string {
	return "/orders/" + scenario
}

// Signature returns the canonical order-independent encoding of ids: the ids
// sorted and joined with ",".
func Signature(ids []string) string {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)

	return strings.Join(sorted, ",")
}

// SignatureKey is the registry key of ids: the 64-bit xxh3 digest of the
// signature in hex.
func SignatureKey(ids []string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(Signature(ids)))
}

// Entropy returns the Shannon entropy in bits of the distribution given by
// counts. Zero and negative counts are ignored; an empty distribution has zero
// entropy.
func Entropy(counts map[string]int64) float64 {
	var total int64
	for _, c := range counts {
		if c > 0 {
			total += c
		}
	}
	if total == 0 {
		return 0
	}

	var h float64
	for _, c := range counts {
		if c > 0 {
			p := float64(c) / float64(total)
			h -= p * math.Log2(p)
		}
	}

	return h
}

// Admissible reports whether a registry may be committed under minBits: true
// when its entropy reaches the floor or the floor is unreachable with this many
// distinct signatures.
func Admissible(counts map[string]int64, minBits float64) bool {
	k := max(1, len(counts))
	if minBits <= math.Log2(float64(k)) && Entropy(counts) < minBits {
		return false
	}

	return true
}

// Registrar records combinations in per-scenario order registries.
type Registrar struct {
	store   types.NodeStore
	logger  types.Logger
	metrics types.MetricsCollector
}

// RegistrarOption configures a Registrar.
type RegistrarOption func(*Registrar)

// WithLogger sets a logger.
func WithLogger(logger types.Logger) RegistrarOption {
	return func(r *Registrar) { r.logger = logging.OrNop(logger) }
}

// WithMetrics sets a metrics collector.
func WithMetrics(m types.MetricsCollector) RegistrarOption {
	return func(r *Registrar) { r.metrics = metrics.OrNop(m) }
}

// NewRegistrar creates a registrar over s.
func NewRegistrar(s types.NodeStore, opts ...RegistrarOption) *Registrar {
	r := &Registrar{store: s, logger: logging.NewNop(), metrics: metrics.NewNop()}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

type registration struct {
	accepted bool
	bits     float64
}

// Register counts ids in scenario's registry unless doing so would violate the
// entropy floor.
//
// Parameters:
//   - ctx: Context for cancellation
//   - scenario: Scenario id
//   - ids: Candidate combination (order is irrelevant)
//   - minBits: Entropy floor in bits
//
// Returns:
//   - bool: true when the combination was recorded
//   - error: types.ErrInvalidArgument for empty ids, or store errors
func (r *Registrar) Register(ctx context.Context, scenario string, ids []string, minBits float64) (bool, error) {
	if len(ids) == 0 {
		return false, fmt.Errorf("%w: empty combination", types.ErrInvalidArgument)
	}
	key := SignatureKey(ids)

	out, _, err := node.Transact(ctx, r.store, Path(scenario),
		func(current types.OrderRegistry, _ bool) (node.Outcome[types.OrderRegistry, registration], error) {
			after := make(types.OrderRegistry, len(current)+1)
			for k, v := range current {
				after[k] = v
			}
			after[key]++

			if !Admissible(after, minBits) {
				return node.Outcome[types.OrderRegistry, registration]{Abort: true}, nil
			}

			return node.Outcome[types.OrderRegistry, registration]{
				State:  after,
				Output: registration{accepted: true, bits: Entropy(after)},
			}, nil
		}, node.ResetInvalid())
	if err != nil {
		return false, fmt.Errorf("register combination for %s: %w", scenario, err)
	}

	r.metrics.RecordRegistration(scenario, out.accepted)
	if out.accepted {
		r.metrics.RecordEntropy(scenario, out.bits)
	}

	return out.accepted, nil
}

// Force counts ids in scenario's registry without checking the floor.
func (r *Registrar) Force(ctx context.Context, scenario string, ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: empty combination", types.ErrInvalidArgument)
	}
	key := SignatureKey(ids)

	bits, _, err := node.Transact(ctx, r.store, Path(scenario),
		func(current types.OrderRegistry, _ bool) (node.Outcome[types.OrderRegistry, float64], error) {
			after := make(types.OrderRegistry, len(current)+1)
			for k, v := range current {
				after[k] = v
			}
			after[key]++

			return node.Outcome[types.OrderRegistry, float64]{State: after, Output: Entropy(after)}, nil
		}, node.ResetInvalid())
	if err != nil {
		return fmt.Errorf("force combination for %s: %w", scenario, err)
	}
	r.metrics.RecordEntropy(scenario, bits)

	return nil
}

// Registry returns scenario's signature counts.
func (r *Registrar) Registry(ctx context.Context, scenario string) (types.OrderRegistry, error) {
	reg, ok, err := node.Get[types.OrderRegistry](ctx, r.store, Path(scenario))
	if err != nil {
		return nil, err
	}
	if !ok || reg == nil {
		return types.OrderRegistry{}, nil
	}

	return reg, nil
}

// FormatBits renders an entropy value for logs.
func FormatBits(bits float64) string {
	return strconv.FormatFloat(bits, 'f', 3, 64)
}
