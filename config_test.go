package cohort

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/cohort/internal/comparison"
	"github.com/arloliu/cohort/internal/logging"
	"github.com/arloliu/cohort/types"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, 32, cfg.Assignment.TrialCount)
	require.Equal(t, "balanced", cfg.Assignment.Strategy)
	require.Equal(t, TrialModeCycle, cfg.Assignment.TrialMode)
	require.True(t, cfg.Assignment.LevelBalanced)
	require.Equal(t, []string{"wtp_first", "llm_first"}, cfg.Assignment.TaskOrders)
	require.Equal(t, 1, cfg.Cycle.Replication)
	require.InDelta(t, 2.5, cfg.Entropy.MinBits, 0)
	require.Equal(t, 25, cfg.Entropy.MaxAttempts)
	require.Equal(t, types.DesignOA32, cfg.Entropy.Design)
	require.True(t, cfg.Comparison.Enabled)
	require.Equal(t, 16, cfg.Comparison.Count)
	require.Equal(t, 25, cfg.Store.MaxAttempts)
	require.Equal(t, 5*time.Second, cfg.Store.OperationTimeout)
	require.NoError(t, cfg.Validate())
}

func TestSetDefaults(t *testing.T) {
	t.Run("applies defaults to empty config", func(t *testing.T) {
		cfg := Config{}
		SetDefaults(&cfg)

		require.Equal(t, 32, cfg.Assignment.TrialCount)
		require.Equal(t, TrialModeCycle, cfg.Assignment.TrialMode)
		require.Equal(t, 1, cfg.Cycle.Replication)
		require.Equal(t, "cohort", cfg.Store.Bucket)
		require.False(t, cfg.Comparison.Enabled, "booleans are left as given")
		require.NoError(t, cfg.Validate())
	})

	t.Run("preserves custom values", func(t *testing.T) {
		cfg := Config{
			Assignment: AssignmentConfig{
				TrialCount: 16,
				Strategy:   "least_cycle_progress",
				TrialMode:  TrialModeEntropy,
				TaskOrders: []string{"x", "y", "z"},
			},
			Cycle:      CycleConfig{Replication: 2},
			Entropy:    EntropyConfig{MinBits: 1.5, MaxAttempts: 5, Design: types.DesignFullFactorial},
			Allocation: AllocationConfig{MaxAttempts: 7, Backoff: time.Second},
			Store:      StoreConfig{Backend: BackendSQLite, SQLitePath: "/tmp/x.db"},
		}
		SetDefaults(&cfg)

		require.Equal(t, 16, cfg.Assignment.TrialCount)
		require.Equal(t, "least_cycle_progress", cfg.Assignment.Strategy)
		require.Equal(t, []string{"x", "y", "z"}, cfg.Assignment.TaskOrders)
		require.Equal(t, 2, cfg.Cycle.Replication)
		require.InDelta(t, 1.5, cfg.Entropy.MinBits, 0)
		require.Equal(t, types.DesignFullFactorial, cfg.Entropy.Design)
		require.Equal(t, 7, cfg.Allocation.MaxAttempts)
		require.Equal(t, "/tmp/x.db", cfg.Store.SQLitePath)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "rejects unknown trial mode",
			mutate:  func(c *Config) { c.Assignment.TrialMode = "random" },
			wantErr: "unknown TrialMode",
		},
		{
			name:    "rejects unknown strategy",
			mutate:  func(c *Config) { c.Assignment.Strategy = "round_robin" },
			wantErr: "unknown Strategy",
		},
		{
			name:    "rejects block sizes that do not divide the cycle",
			mutate:  func(c *Config) { c.Assignment.TrialCount = 30 },
			wantErr: "does not split into blocks",
		},
		{
			name: "rejects level-balanced entropy draws not divisible by four",
			mutate: func(c *Config) {
				c.Assignment.TrialMode = TrialModeEntropy
				c.Assignment.TrialCount = 18
			},
			wantErr: "divisible by 4",
		},
		{
			name: "rejects entropy draws larger than the design",
			mutate: func(c *Config) {
				c.Assignment.TrialMode = TrialModeEntropy
				c.Assignment.TrialCount = 64
			},
			wantErr: "exceeds the 32 conditions",
		},
		{
			name:    "rejects duplicate task orders",
			mutate:  func(c *Config) { c.Assignment.TaskOrders = []string{"a", "a"} },
			wantErr: "TaskOrders must be distinct",
		},
		{
			name:    "rejects unknown comparison criteria",
			mutate:  func(c *Config) { c.Comparison.Ranges = map[string]comparison.Range{"color": {From: 0, To: 1}} },
			wantErr: "unknown criterion",
		},
		{
			name:    "rejects unknown store backends",
			mutate:  func(c *Config) { c.Store.Backend = "redis" },
			wantErr: "unknown Store.Backend",
		},
		{
			name: "accepts unbalanced entropy draws of any size",
			mutate: func(c *Config) {
				c.Assignment.TrialMode = TrialModeEntropy
				c.Assignment.LevelBalanced = false
				c.Assignment.TrialCount = 18
			},
		},
		{
			name: "accepts replicated cycles with larger blocks",
			mutate: func(c *Config) {
				c.Cycle.Replication = 2
				c.Assignment.TrialCount = 64
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidConfig)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateWithWarnings(t *testing.T) {
	t.Run("warns when entropy draws cover the whole design", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Assignment.TrialMode = TrialModeEntropy
		logger := &warnRecorder{}

		cfg.ValidateWithWarnings(logger)

		require.Len(t, logger.warns, 1)
		require.Contains(t, logger.warns[0], "every participant gets the same trial set")
	})

	t.Run("quiet for defaults", func(t *testing.T) {
		cfg := DefaultConfig()
		logger := &warnRecorder{}

		cfg.ValidateWithWarnings(logger)

		require.Empty(t, logger.warns)
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))

		require.NoError(t, err)
		require.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("file values override defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cohort.yaml")
		data := `
assignment:
  trialCount: 16
  trialMode: entropy
entropy:
  minBits: 1.5
comparison:
  enabled: false
store:
  backend: sqlite
  operationTimeout: 2s
`
		require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

		cfg, err := LoadConfig(path)

		require.NoError(t, err)
		require.Equal(t, 16, cfg.Assignment.TrialCount)
		require.Equal(t, TrialModeEntropy, cfg.Assignment.TrialMode)
		require.True(t, cfg.Assignment.LevelBalanced, "unset booleans keep their defaults")
		require.InDelta(t, 1.5, cfg.Entropy.MinBits, 0)
		require.False(t, cfg.Comparison.Enabled)
		require.Equal(t, BackendSQLite, cfg.Store.Backend)
		require.Equal(t, 2*time.Second, cfg.Store.OperationTimeout)
		require.NoError(t, cfg.Validate())
	})

	t.Run("environment overrides the NATS URL", func(t *testing.T) {
		t.Setenv(EnvNATSURL, "nats://example:4222")

		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))

		require.NoError(t, err)
		require.Equal(t, "nats://example:4222", cfg.Store.NATSURL)
	})

	t.Run("malformed yaml is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("assignment: [1, 2"), 0o600))

		_, err := LoadConfig(path)

		require.ErrorContains(t, err, "failed to parse config")
	})
}

type warnRecorder struct {
	logging.NopLogger
	warns []string
}

func (w *warnRecorder) Warn(msg string, _ ...any) {
	w.warns = append(w.warns, msg)
}
