package cfg

import (
	"flag"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validBase returns a Config with all required fields set to valid values.
func validBase() Config {
	return Config{
		DrainSeconds:          60,
		ShutdownBudgetSeconds: 90,
		APIPort:               8080,
		DataDir:               "data",
		AnalystTokens:         "alice:tok-a,bob:tok-b",
		ClaudeModel:           "claude-sonnet-4-20250514",
		AssistWorkers:         4,
		AssistBuffer:          64,
		AssistTimeoutSecs:     20,
		AssistTimeLimitSecs:   30,
		AssistMaxRetries:      2,
		AssistResultTTLSecs:   3600,
	}
}

func with(f func(*Config)) Config {
	c := validBase()
	f(&c)
	return c
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}

	if c.DrainSeconds != 60 {
		t.Errorf("DrainSeconds = %d, want 60", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 90 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 90", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", c.APIPort)
	}
	if c.DataDir != "data" {
		t.Errorf("DataDir = %q, want data", c.DataDir)
	}
	if c.ClaudeModel != "claude-sonnet-4-20250514" {
		t.Errorf("ClaudeModel = %q, want %q", c.ClaudeModel, "claude-sonnet-4-20250514")
	}
	if c.AssistWorkers != 4 || c.AssistBuffer != 64 {
		t.Errorf("assist pool = %d/%d, want 4/64", c.AssistWorkers, c.AssistBuffer)
	}
	if c.AssistTimeout() != 20*time.Second || c.AssistTimeLimit() != 30*time.Second {
		t.Errorf("assist limits = %v/%v, want 20s/30s", c.AssistTimeout(), c.AssistTimeLimit())
	}
	if c.AssistMaxRetries != 2 {
		t.Errorf("AssistMaxRetries = %d, want 2", c.AssistMaxRetries)
	}
	if c.AssistResultTTL() != time.Hour {
		t.Errorf("AssistResultTTL = %v, want 1h", c.AssistResultTTL())
	}

	// Defaults are valid once an analyst is configured.
	c.AnalystTokens = "alice:tok"
	if err := c.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestRegisterFlags_Override(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	args := []string{
		"-drain-seconds", "30",
		"-shutdown-budget-seconds", "120",
		"-http-port", "9090",
		"-data-dir", "/var/lib/triagedesk",
		"-redis-url", "redis://cache:6379/1",
		"-analyst-tokens", "alice:tok",
		"-claude-api-key", "sk-override",
		"-claude-model", "claude-opus-4-20250514",
		"-assist-workers", "8",
		"-assist-max-retries", "0",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	if c.DrainSeconds != 30 {
		t.Errorf("DrainSeconds = %d, want 30", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 120 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 120", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", c.APIPort)
	}
	if c.RedisURL != "redis://cache:6379/1" {
		t.Errorf("RedisURL = %q", c.RedisURL)
	}
	if c.ClaudeAPIKey != "sk-override" {
		t.Errorf("ClaudeAPIKey = %q, want %q", c.ClaudeAPIKey, "sk-override")
	}
	if c.ClaudeModel != "claude-opus-4-20250514" {
		t.Errorf("ClaudeModel = %q, want %q", c.ClaudeModel, "claude-opus-4-20250514")
	}
	if c.AssistWorkers != 8 || c.AssistMaxRetries != 0 {
		t.Errorf("assist = %d workers, %d retries", c.AssistWorkers, c.AssistMaxRetries)
	}
	if got, want := c.AlertsPath(), filepath.Join("/var/lib/triagedesk", "alerts.json"); got != want {
		t.Errorf("AlertsPath = %q, want %q", got, want)
	}
	if got, want := c.ReportsDir(), filepath.Join("/var/lib/triagedesk", "reports"); got != want {
		t.Errorf("ReportsDir = %q, want %q", got, want)
	}
}

func TestAlertsPath_Explicit(t *testing.T) {
	t.Parallel()

	c := Config{DataDir: "data", AlertsFile: "/seed/alerts.json"}
	if c.AlertsPath() != "/seed/alerts.json" {
		t.Errorf("AlertsPath = %q", c.AlertsPath())
	}
}

func TestTokens(t *testing.T) {
	t.Parallel()

	c := validBase()
	toks, err := c.Tokens()
	if err != nil {
		t.Fatalf("Tokens: %v", err)
	}
	if toks["tok-a"] != "alice" || toks["tok-b"] != "bob" {
		t.Errorf("tokens = %v", toks)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		cfg       Config
		wantErr   bool
		errSubstr []string // substrings that must appear in error message
	}{
		{
			name:    "defaults are valid",
			cfg:     validBase(),
			wantErr: false,
		},
		{
			name:    "database without data dir",
			cfg:     with(func(c *Config) { c.DataDir = ""; c.DatabaseURL = "postgres://x" }),
			wantErr: false,
		},
		{
			name:    "no claude key is valid",
			cfg:     with(func(c *Config) { c.ClaudeAPIKey = "" }),
			wantErr: false,
		},
		{
			name: "minimum valid values",
			cfg: with(func(c *Config) {
				c.DrainSeconds, c.ShutdownBudgetSeconds, c.APIPort = 1, 2, 1
				c.AssistWorkers, c.AssistBuffer, c.AssistTimeoutSecs, c.AssistTimeLimitSecs = 1, 1, 1, 1
				c.AssistMaxRetries, c.AssistResultTTLSecs = 0, 60
			}),
			wantErr: false,
		},
		{
			name: "maximum valid values",
			cfg: with(func(c *Config) {
				c.DrainSeconds, c.ShutdownBudgetSeconds, c.APIPort = 299, 300, 65535
				c.AssistWorkers, c.AssistBuffer, c.AssistTimeoutSecs, c.AssistTimeLimitSecs = 64, 4096, 300, 600
				c.AssistMaxRetries, c.AssistResultTTLSecs = 10, 86400
			}),
			wantErr: false,
		},
		// DrainSeconds boundaries
		{
			name:      "drain zero",
			cfg:       with(func(c *Config) { c.DrainSeconds = 0 }),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "drain above max",
			cfg:       with(func(c *Config) { c.DrainSeconds, c.ShutdownBudgetSeconds = 301, 302 }),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		// ShutdownBudgetSeconds boundaries
		{
			name:      "budget negative",
			cfg:       with(func(c *Config) { c.ShutdownBudgetSeconds = -1 }),
			wantErr:   true,
			errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"},
		},
		// Cross-field: budget vs drain
		{
			name:      "budget equals drain",
			cfg:       with(func(c *Config) { c.ShutdownBudgetSeconds = 60 }),
			wantErr:   true,
			errSubstr: []string{"must be greater than"},
		},
		// APIPort boundaries
		{
			name:      "port above max",
			cfg:       with(func(c *Config) { c.APIPort = 65536 }),
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		// Storage
		{
			name:      "no data dir and no database",
			cfg:       with(func(c *Config) { c.DataDir = "" }),
			wantErr:   true,
			errSubstr: []string{"DATA_DIR"},
		},
		{
			name:      "negative slow query threshold",
			cfg:       with(func(c *Config) { c.SlowQueryMillis = -5 }),
			wantErr:   true,
			errSubstr: []string{"DB_SLOW_QUERY_MS"},
		},
		// Analyst tokens
		{
			name:      "empty analyst tokens",
			cfg:       with(func(c *Config) { c.AnalystTokens = "" }),
			wantErr:   true,
			errSubstr: []string{"ANALYST_TOKENS is required"},
		},
		{
			name:      "malformed analyst tokens",
			cfg:       with(func(c *Config) { c.AnalystTokens = "alice" }),
			wantErr:   true,
			errSubstr: []string{"invalid ANALYST_TOKENS"},
		},
		{
			name:      "duplicate analyst token",
			cfg:       with(func(c *Config) { c.AnalystTokens = "alice:same,bob:same" }),
			wantErr:   true,
			errSubstr: []string{"invalid ANALYST_TOKENS"},
		},
		{
			name:      "empty claude model",
			cfg:       with(func(c *Config) { c.ClaudeModel = "" }),
			wantErr:   true,
			errSubstr: []string{"CLAUDE_MODEL"},
		},
		// Assist queue
		{
			name:      "zero workers",
			cfg:       with(func(c *Config) { c.AssistWorkers = 0 }),
			wantErr:   true,
			errSubstr: []string{"ASSIST_WORKERS"},
		},
		{
			name:      "buffer too large",
			cfg:       with(func(c *Config) { c.AssistBuffer = 4097 }),
			wantErr:   true,
			errSubstr: []string{"ASSIST_BUFFER"},
		},
		{
			name:      "time limit below attempt timeout",
			cfg:       with(func(c *Config) { c.AssistTimeoutSecs, c.AssistTimeLimitSecs = 30, 20 }),
			wantErr:   true,
			errSubstr: []string{"must be at least ASSIST_TIMEOUT_SECONDS"},
		},
		{
			name:      "negative retries",
			cfg:       with(func(c *Config) { c.AssistMaxRetries = -1 }),
			wantErr:   true,
			errSubstr: []string{"ASSIST_MAX_RETRIES"},
		},
		{
			name:      "ttl too short",
			cfg:       with(func(c *Config) { c.AssistResultTTLSecs = 59 }),
			wantErr:   true,
			errSubstr: []string{"ASSIST_RESULT_TTL_SECONDS"},
		},
		// Error accumulation: all fields invalid
		{
			name:    "all fields invalid",
			cfg:     Config{},
			wantErr: true,
			errSubstr: []string{
				"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT", "DATA_DIR", "ANALYST_TOKENS",
				"CLAUDE_MODEL", "ASSIST_WORKERS", "ASSIST_BUFFER", "ASSIST_TIMEOUT_SECONDS",
				"ASSIST_TIME_LIMIT_SECONDS", "ASSIST_RESULT_TTL_SECONDS",
			},
		},
		// Extreme values
		{
			name: "extreme negative values",
			cfg: with(func(c *Config) {
				c.DrainSeconds, c.ShutdownBudgetSeconds, c.APIPort = math.MinInt32, math.MinInt32, math.MinInt32
			}),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				errMsg := err.Error()
				for _, sub := range tt.errSubstr {
					if !strings.Contains(errMsg, sub) {
						t.Errorf("error %q does not contain %q", errMsg, sub)
					}
				}
			}
		})
	}
}

func TestValidate_DoesNotLeakTokens(t *testing.T) {
	t.Parallel()

	c := with(func(c *Config) { c.AnalystTokens = "alice:s3cr3t,bob" })
	err := c.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "s3cr3t") {
		t.Errorf("error leaks token: %v", err)
	}
}

func FuzzValidate(f *testing.F) {
	// Seeds: defaults, boundaries, extremes
	seeds := []struct {
		drain, budget, port, workers int
		dataDir, tokens, model       string
	}{
		{60, 90, 8080, 4, "data", "alice:tok", "claude-sonnet"},
		{1, 2, 1, 1, "d", "a:t", "m"},
		{299, 300, 65535, 64, "d", "a:t", "m"},
		{0, 0, 0, 0, "", "", ""},
		{-1, -1, -1, -1, "", "", ""},
		{300, 300, 65535, 65, "d", "a:t", "m"},
		{150, 100, 8080, 4, "d", "a", "m"},
		{math.MinInt32, math.MinInt32, math.MinInt32, math.MinInt32, "", "", ""},
		{math.MaxInt32, math.MaxInt32, math.MaxInt32, math.MaxInt32, "", "", ""},
	}
	for _, s := range seeds {
		f.Add(s.drain, s.budget, s.port, s.workers, s.dataDir, s.tokens, s.model)
	}

	f.Fuzz(func(t *testing.T, drain, budget, port, workers int, dataDir, tokens, model string) {
		c := validBase()
		c.DrainSeconds = drain
		c.ShutdownBudgetSeconds = budget
		c.APIPort = port
		c.AssistWorkers = workers
		c.DataDir = dataDir
		c.AnalystTokens = tokens
		c.ClaudeModel = model
		err := c.Validate()

		drainOK := drain >= 1 && drain <= 300
		budgetOK := budget >= 1 && budget <= 300
		portOK := port >= 1 && port <= 65535
		crossOK := budget > drain
		workersOK := workers >= 1 && workers <= 64
		dirOK := dataDir != ""
		_, tokErr := c.Tokens()
		tokensOK := tokens != "" && tokErr == nil
		modelOK := model != ""

		allValid := drainOK && budgetOK && portOK && crossOK && workersOK && dirOK && tokensOK && modelOK

		if allValid && err != nil {
			t.Errorf("expected no error for valid config %+v, got: %v", c, err)
		}
		if !allValid && err == nil {
			t.Errorf("expected error for invalid config %+v, got nil", c)
		}
	})
}
