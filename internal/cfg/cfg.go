package cfg

import (
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"time"

	"github.com/linnemanlabs/triagedesk/internal/authmw"
	"github.com/linnemanlabs/triagedesk/internal/llm/claude"
)

// Config adds service-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int

	DataDir    string
	AlertsFile string

	DatabaseURL         string
	SlowQueryMillis     int
	RedisURL            string
	SlackWebhookURL     string
	AnalystTokens       string
	ClaudeAPIKey        string
	ClaudeModel         string
	AssistWorkers       int
	AssistBuffer        int
	AssistTimeoutSecs   int
	AssistTimeLimitSecs int
	AssistMaxRetries    int
	AssistResultTTLSecs int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.DataDir, "data-dir", "data", "directory holding reports and artifacts")
	fs.StringVar(&c.AlertsFile, "alerts-file", "", "alert collection file (empty = <data-dir>/alerts.json)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = file stores under data-dir)")
	fs.IntVar(&c.SlowQueryMillis, "db-slow-query-ms", 0, "log only queries slower than this many milliseconds (0 = log all)")
	fs.StringVar(&c.RedisURL, "redis-url", "", "Redis URL for assist task results (empty = in-memory)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for escalation notifications")
	fs.StringVar(&c.AnalystTokens, "analyst-tokens", "", "comma-separated analyst:token pairs for write endpoints")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude LLM provider (empty = heuristic suggestions only)")
	fs.StringVar(&c.ClaudeModel, "claude-model", claude.DefaultModel, "Claude model to use")
	fs.IntVar(&c.AssistWorkers, "assist-workers", 4, "concurrent suggestion workers (1..64)")
	fs.IntVar(&c.AssistBuffer, "assist-buffer", 64, "queued suggestion requests before rejecting (1..4096)")
	fs.IntVar(&c.AssistTimeoutSecs, "assist-timeout-seconds", 20, "per-attempt model call timeout (1..300)")
	fs.IntVar(&c.AssistTimeLimitSecs, "assist-time-limit-seconds", 30, "hard limit for one suggestion task including retries (1..600)")
	fs.IntVar(&c.AssistMaxRetries, "assist-max-retries", 2, "model call retries before the heuristic fallback (0..10)")
	fs.IntVar(&c.AssistResultTTLSecs, "assist-result-ttl-seconds", 3600, "seconds a finished suggestion stays retrievable (60..86400)")
}

// AlertsPath is the alert collection file, defaulting into DataDir.
func (c *Config) AlertsPath() string {
	if c.AlertsFile != "" {
		return c.AlertsFile
	}
	return filepath.Join(c.DataDir, "alerts.json")
}

// ReportsDir is where file-backed triage reports are written.
func (c *Config) ReportsDir() string {
	return filepath.Join(c.DataDir, "reports")
}

// Tokens parses AnalystTokens.
func (c *Config) Tokens() (authmw.Tokens, error) {
	return authmw.ParseTokens(c.AnalystTokens)
}

// AssistTimeout is the per-attempt model call timeout.
func (c *Config) AssistTimeout() time.Duration {
	return time.Duration(c.AssistTimeoutSecs) * time.Second
}

// AssistTimeLimit is the hard limit for one suggestion task.
func (c *Config) AssistTimeLimit() time.Duration {
	return time.Duration(c.AssistTimeLimitSecs) * time.Second
}

// AssistResultTTL is how long finished tasks are kept.
func (c *Config) AssistResultTTL() time.Duration {
	return time.Duration(c.AssistResultTTLSecs) * time.Second
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// File stores need a data directory
	if c.DatabaseURL == "" && c.DataDir == "" {
		errs = append(errs, errors.New("DATA_DIR is required when DATABASE_URL is empty"))
	}

	if c.SlowQueryMillis < 0 {
		errs = append(errs, fmt.Errorf("invalid DB_SLOW_QUERY_MS %d (must be >= 0)", c.SlowQueryMillis))
	}

	// Write endpoints need at least one analyst
	if c.AnalystTokens == "" {
		errs = append(errs, errors.New("ANALYST_TOKENS is required"))
	} else if _, err := c.Tokens(); err != nil {
		errs = append(errs, fmt.Errorf("invalid ANALYST_TOKENS: %w", err))
	}

	// Claude model is required
	if c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required"))
	}

	// Assist queue bounds
	if c.AssistWorkers <= 0 || c.AssistWorkers > 64 {
		errs = append(errs, fmt.Errorf("invalid ASSIST_WORKERS %d (must be 1..64)", c.AssistWorkers))
	}
	if c.AssistBuffer <= 0 || c.AssistBuffer > 4096 {
		errs = append(errs, fmt.Errorf("invalid ASSIST_BUFFER %d (must be 1..4096)", c.AssistBuffer))
	}
	if c.AssistTimeoutSecs <= 0 || c.AssistTimeoutSecs > 300 {
		errs = append(errs, fmt.Errorf("invalid ASSIST_TIMEOUT_SECONDS %d (must be 1..300)", c.AssistTimeoutSecs))
	}
	if c.AssistTimeLimitSecs <= 0 || c.AssistTimeLimitSecs > 600 {
		errs = append(errs, fmt.Errorf("invalid ASSIST_TIME_LIMIT_SECONDS %d (must be 1..600)", c.AssistTimeLimitSecs))
	}
	if c.AssistTimeLimitSecs < c.AssistTimeoutSecs {
		errs = append(errs, fmt.Errorf("ASSIST_TIME_LIMIT_SECONDS %d must be at least ASSIST_TIMEOUT_SECONDS %d", c.AssistTimeLimitSecs, c.AssistTimeoutSecs))
	}
	if c.AssistMaxRetries < 0 || c.AssistMaxRetries > 10 {
		errs = append(errs, fmt.Errorf("invalid ASSIST_MAX_RETRIES %d (must be 0..10)", c.AssistMaxRetries))
	}
	if c.AssistResultTTLSecs < 60 || c.AssistResultTTLSecs > 86400 {
		errs = append(errs, fmt.Errorf("invalid ASSIST_RESULT_TTL_SECONDS %d (must be 60..86400)", c.AssistResultTTLSecs))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
