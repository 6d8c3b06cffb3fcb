package cohort

import (
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/cohort/internal/comparison"
	"github.com/arloliu/cohort/internal/design"
	"github.com/arloliu/cohort/strategy"
	"github.com/arloliu/cohort/types"
)

// TrialMode selects how an assignment's trials are chosen and ordered.
type TrialMode string

const (
	// TrialModeCycle hands each participant one block of the scenario's cycle.
	TrialModeCycle TrialMode = "cycle"

	// TrialModeEntropy draws trials ad hoc from the scenario's design and
	// admits the combination through the entropy guard.
	TrialModeEntropy TrialMode = "entropy"

	// TrialModeCycleEntropy takes one cycle block and admits its shuffled
	// presentation order through the entropy guard.
	TrialModeCycleEntropy TrialMode = "cycle_entropy"
)

// Valid reports whether m is a known mode.
func (m TrialMode) Valid() bool {
	return m == TrialModeCycle || m == TrialModeEntropy || m == TrialModeCycleEntropy
}

func (m TrialMode) usesCycle() bool {
	return m == TrialModeCycle || m == TrialModeCycleEntropy
}

func (m TrialMode) usesGuard() bool {
	return m == TrialModeEntropy || m == TrialModeCycleEntropy
}

// Store backends understood by the cohort command.
const (
	BackendMemory = "memory"
	BackendNATS   = "nats"
	BackendSQLite = "sqlite"
)

// EnvNATSURL overrides Store.NATSURL when set.
const EnvNATSURL = "COHORT_NATS_URL"

// AssignmentConfig controls how participants are assigned.
type AssignmentConfig struct {
	// TrialCount is the number of main trials per participant. In cycle modes
	// it is also the cycle block size.
	TrialCount int `yaml:"trialCount"`

	// Strategy names the scenario selection policy: "balanced" or
	// "least_cycle_progress".
	Strategy string `yaml:"strategy"`

	// TrialMode selects cycle, entropy or cycle_entropy trial selection.
	TrialMode TrialMode `yaml:"trialMode"`

	// LevelBalanced makes entropy-mode draws take TrialCount/4 conditions from
	// each level of the scenario's target criterion. Requires TrialCount to be
	// divisible by 4. Scenarios without a target criterion draw uniformly.
	LevelBalanced bool `yaml:"levelBalanced"`

	// TaskOrders are the labels EnsureTaskOrder balances across.
	TaskOrders []string `yaml:"taskOrders"`
}

// CycleConfig sizes scenario cycles.
type CycleConfig struct {
	// Replication is how many shuffled copies of the full factorial form one
	// cycle. 256*Replication must be divisible by Assignment.TrialCount.
	Replication int `yaml:"replication"`
}

// EntropyConfig controls the order diversity guard.
type EntropyConfig struct {
	// MinBits is the Shannon entropy floor of a scenario's order registry.
	MinBits float64 `yaml:"minBits"`

	// MaxAttempts bounds the number of draws before falling back.
	MaxAttempts int `yaml:"maxAttempts"`

	// Design is the condition set entropy-mode draws come from.
	Design types.Design `yaml:"design"`
}

// AllocationConfig controls retries of balanced counter allocations.
type AllocationConfig struct {
	// MaxAttempts is how many times a failed allocation is retried as a whole.
	MaxAttempts int `yaml:"maxAttempts"`

	// Backoff is the base delay between attempts, doubled each retry.
	Backoff time.Duration `yaml:"backoff"`
}

// ComparisonConfig controls A/B comparison trials.
type ComparisonConfig struct {
	// Enabled makes Assign attach a comparison set to every record.
	Enabled bool `yaml:"enabled"`

	// Count is the number of comparison trials per participant.
	Count int `yaml:"count"`

	// IncludeSelfPairs keeps pairs whose two options share the target level.
	IncludeSelfPairs bool `yaml:"includeSelfPairs"`

	// ScenarioCriteria maps scenario ids to their target criterion. Catalog
	// entries with a TargetCriterion take precedence.
	ScenarioCriteria map[string]string `yaml:"scenarioCriteria"`

	// Ranges bounds the continuous value of each non-target criterion.
	// Criteria left out keep their built-in range.
	Ranges map[string]comparison.Range `yaml:"ranges"`
}

// StoreConfig selects and tunes the node store backend.
type StoreConfig struct {
	// Backend is "memory", "nats" or "sqlite".
	Backend string `yaml:"backend"`

	// MaxAttempts bounds update function invocations per transaction.
	MaxAttempts int `yaml:"maxAttempts"`

	// NATSURL is the NATS server URL for the nats backend.
	NATSURL string `yaml:"natsUrl"`

	// Bucket is the JetStream KV bucket for the nats backend.
	Bucket string `yaml:"bucket"`

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `yaml:"sqlitePath"`

	// OperationTimeout bounds each KV round trip.
	OperationTimeout time.Duration `yaml:"operationTimeout"`
}

// Config is the configuration for the Engine.
//
// All duration fields accept standard Go duration strings like "30s", "5m", "1h".
type Config struct {
	Assignment AssignmentConfig `yaml:"assignment"`
	Cycle      CycleConfig      `yaml:"cycle"`
	Entropy    EntropyConfig    `yaml:"entropy"`
	Allocation AllocationConfig `yaml:"allocation"`
	Comparison ComparisonConfig `yaml:"comparison"`
	Store      StoreConfig      `yaml:"store"`
}

// DefaultConfig returns a Config with sensible defaults.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	return Config{
		Assignment: AssignmentConfig{
			TrialCount:    32,
			Strategy:      strategy.NameBalanced,
			TrialMode:     TrialModeCycle,
			LevelBalanced: true,
			TaskOrders:    []string{"wtp_first", "llm_first"},
		},
		Cycle: CycleConfig{
			Replication: 1,
		},
		Entropy: EntropyConfig{
			MinBits:     2.5,
			MaxAttempts: 25,
			Design:      types.DesignOA32,
		},
		Allocation: AllocationConfig{
			MaxAttempts: 3,
			Backoff:     20 * time.Millisecond,
		},
		Comparison: ComparisonConfig{
			Enabled: true,
			Count:   comparison.DefaultCount,
		},
		Store: StoreConfig{
			Backend:          BackendNATS,
			MaxAttempts:      25,
			NATSURL:          "nats://127.0.0.1:4222",
			Bucket:           "cohort",
			SQLitePath:       "cohort.db",
			OperationTimeout: 5 * time.Second,
		},
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// Boolean switches are left as given; start from DefaultConfig to inherit them.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Assignment.TrialCount == 0 {
		cfg.Assignment.TrialCount = defaults.Assignment.TrialCount
	}
	if cfg.Assignment.Strategy == "" {
		cfg.Assignment.Strategy = defaults.Assignment.Strategy
	}
	if cfg.Assignment.TrialMode == "" {
		cfg.Assignment.TrialMode = defaults.Assignment.TrialMode
	}
	if len(cfg.Assignment.TaskOrders) == 0 {
		cfg.Assignment.TaskOrders = defaults.Assignment.TaskOrders
	}
	if cfg.Cycle.Replication == 0 {
		cfg.Cycle.Replication = defaults.Cycle.Replication
	}
	if cfg.Entropy.MinBits == 0 {
		cfg.Entropy.MinBits = defaults.Entropy.MinBits
	}
	if cfg.Entropy.MaxAttempts == 0 {
		cfg.Entropy.MaxAttempts = defaults.Entropy.MaxAttempts
	}
	if cfg.Entropy.Design == "" {
		cfg.Entropy.Design = defaults.Entropy.Design
	}
	if cfg.Allocation.MaxAttempts == 0 {
		cfg.Allocation.MaxAttempts = defaults.Allocation.MaxAttempts
	}
	if cfg.Allocation.Backoff == 0 {
		cfg.Allocation.Backoff = defaults.Allocation.Backoff
	}
	if cfg.Comparison.Count == 0 {
		cfg.Comparison.Count = defaults.Comparison.Count
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = defaults.Store.Backend
	}
	if cfg.Store.MaxAttempts == 0 {
		cfg.Store.MaxAttempts = defaults.Store.MaxAttempts
	}
	if cfg.Store.NATSURL == "" {
		cfg.Store.NATSURL = defaults.Store.NATSURL
	}
	if cfg.Store.Bucket == "" {
		cfg.Store.Bucket = defaults.Store.Bucket
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = defaults.Store.SQLitePath
	}
	if cfg.Store.OperationTimeout == 0 {
		cfg.Store.OperationTimeout = defaults.Store.OperationTimeout
	}
	// Nil comparison maps fall back to the built-in tables in the comparison builder.
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
//
// A missing file yields the defaults. Environment overrides are applied last.
//
// Parameters:
//   - path: YAML file path
//
// Returns:
//   - Config: Loaded configuration (not yet validated)
//   - error: Read or parse failure
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	SetDefaults(&cfg)
	cfg.applyEnvOverrides()

	return cfg, nil
}

func (cfg *Config) applyEnvOverrides() {
	if url := os.Getenv(EnvNATSURL); url != "" {
		cfg.Store.NATSURL = url
	}
}

// Validate checks configuration constraints and returns error for invalid values.
//
// Hard Validation Rules:
//   - TrialCount > 0 and a known TrialMode and Strategy
//   - Cycle modes: 256*Replication divisible by TrialCount
//   - Entropy modes: TrialCount fits the entropy design; divisible by 4 when LevelBalanced
//   - MinBits > 0, MaxAttempts > 0 everywhere
//   - TaskOrders non-empty and distinct
//
// Returns:
//   - error: Validation error wrapping ErrInvalidConfig, nil if valid
func (cfg *Config) Validate() error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("%w: %w", types.ErrInvalidConfig, err)
	}

	return nil
}

func (cfg *Config) validate() error {
	a := cfg.Assignment
	if a.TrialCount <= 0 {
		return fmt.Errorf("TrialCount must be > 0, got %d", a.TrialCount)
	}
	if !a.TrialMode.Valid() {
		return fmt.Errorf("unknown TrialMode %q", a.TrialMode)
	}
	if !slices.Contains(strategy.Names(), a.Strategy) {
		return fmt.Errorf("unknown Strategy %q (want one of %v)", a.Strategy, strategy.Names())
	}
	if len(a.TaskOrders) == 0 {
		return errors.New("TaskOrders must not be empty")
	}
	seen := make(map[string]bool, len(a.TaskOrders))
	for _, o := range a.TaskOrders {
		if o == "" || seen[o] {
			return fmt.Errorf("TaskOrders must be distinct and non-empty, got %v", a.TaskOrders)
		}
		seen[o] = true
	}

	if a.TrialMode.usesCycle() {
		if cfg.Cycle.Replication < 1 {
			return fmt.Errorf("Cycle.Replication must be >= 1, got %d", cfg.Cycle.Replication)
		}
		size := len(design.FullFactorial()) * cfg.Cycle.Replication
		if size%a.TrialCount != 0 {
			return fmt.Errorf("cycle of %d conditions does not split into blocks of TrialCount %d", size, a.TrialCount)
		}
	}

	if a.TrialMode.usesGuard() {
		if cfg.Entropy.MinBits <= 0 {
			return fmt.Errorf("Entropy.MinBits must be > 0, got %v", cfg.Entropy.MinBits)
		}
		if cfg.Entropy.MaxAttempts <= 0 {
			return fmt.Errorf("Entropy.MaxAttempts must be > 0, got %d", cfg.Entropy.MaxAttempts)
		}
	}

	if a.TrialMode == TrialModeEntropy {
		rows, err := design.Rows(cfg.Entropy.Design)
		if err != nil {
			return fmt.Errorf("Entropy.Design: %w", err)
		}
		if a.TrialCount > len(rows) {
			return fmt.Errorf("TrialCount %d exceeds the %d conditions of %s", a.TrialCount, len(rows), cfg.Entropy.Design)
		}
		if a.LevelBalanced && a.TrialCount%design.NumLevels != 0 {
			return fmt.Errorf("TrialCount %d must be divisible by %d when LevelBalanced", a.TrialCount, design.NumLevels)
		}
	}

	if cfg.Allocation.MaxAttempts <= 0 {
		return fmt.Errorf("Allocation.MaxAttempts must be > 0, got %d", cfg.Allocation.MaxAttempts)
	}
	if cfg.Comparison.Enabled && cfg.Comparison.Count <= 0 {
		return fmt.Errorf("Comparison.Count must be > 0, got %d", cfg.Comparison.Count)
	}
	for c := range cfg.Comparison.Ranges {
		if _, ok := design.Levels(c); !ok {
			return fmt.Errorf("Comparison.Ranges: unknown criterion %q", c)
		}
	}

	switch cfg.Store.Backend {
	case BackendMemory, BackendNATS, BackendSQLite:
	default:
		return fmt.Errorf("unknown Store.Backend %q", cfg.Store.Backend)
	}
	if cfg.Store.MaxAttempts <= 0 {
		return fmt.Errorf("Store.MaxAttempts must be > 0, got %d", cfg.Store.MaxAttempts)
	}

	return nil
}

// ValidateWithWarnings checks configuration and logs warnings for non-recommended values.
//
// This is called after Validate() in NewEngine() to provide operator guidance.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	a := cfg.Assignment

	if a.TrialMode == TrialModeEntropy {
		if rows, err := design.Rows(cfg.Entropy.Design); err == nil && a.TrialCount == len(rows) {
			logger.Warn(
				"entropy draws cover the whole design, every participant gets the same trial set",
				"trialCount", a.TrialCount,
				"design", cfg.Entropy.Design,
			)
		}
	}

	if a.TrialMode.usesGuard() && cfg.Entropy.MinBits > math.Log2(float64(cfg.Entropy.MaxAttempts)) {
		logger.Warn(
			"Entropy.MinBits is high for the attempt budget, expect frequent guard bypasses",
			"minBits", cfg.Entropy.MinBits,
			"maxAttempts", cfg.Entropy.MaxAttempts,
		)
	}

	if cfg.Store.MaxAttempts < 5 {
		logger.Warn(
			"Store.MaxAttempts is very low, concurrent assignments may fail with conflicts",
			"maxAttempts", cfg.Store.MaxAttempts,
			"recommended", 25,
		)
	}
}

// TestConfig returns a configuration optimized for fast test execution.
//
// Uses the in-memory store and millisecond allocation backoff. Use
// DefaultConfig() for production deployments.
//
// Returns:
//   - Config: Configuration for tests
//
// Example:
//
//	cfg := cohort.TestConfig()
//	cfg.Assignment.TrialMode = cohort.TrialModeEntropy
//	eng, err := cohort.NewEngine(&cfg, store.NewMemory(), src)
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.Store.Backend = BackendMemory
	cfg.Allocation.MaxAttempts = 10
	cfg.Allocation.Backoff = time.Millisecond

	return cfg
}
