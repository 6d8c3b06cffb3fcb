package store

import (
	"github.com/arloliu/cohort/internal/logging"
	"github.com/arloliu/cohort/internal/metrics"
	"github.com/arloliu/cohort/types"
)

// DefaultMaxAttempts bounds how many times Transact runs the update function.
const DefaultMaxAttempts = 25

// Option configures a store backend.
type Option func(*options)

// CommitHook runs before every commit attempt. Tests use it to inject a
// concurrent write between the read and the compare-and-set.
type CommitHook func(path string, attempt int)

type options struct {
	maxAttempts  int
	logger       types.Logger
	metrics      types.MetricsCollector
	beforeCommit CommitHook
}

// WithMaxAttempts sets the Transact retry budget.
//
// Parameters:
//   - n: Maximum update function invocations per Transact (values < 1 use the default)
//
// Returns:
//   - Option: Functional option for store constructors
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithLogger sets a logger.
func WithLogger(logger types.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets a metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithCommitHook installs a hook that runs between the read and the commit of
// every transaction attempt.
func WithCommitHook(hook CommitHook) Option {
	return func(o *options) {
		o.beforeCommit = hook
	}
}

func newOptions(opts []Option) options {
	o := options{maxAttempts: DefaultMaxAttempts}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrNop(o.logger)
	o.metrics = metrics.OrNop(o.metrics)

	return o
}
