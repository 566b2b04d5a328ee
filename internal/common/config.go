package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment  string             `toml:"environment"` // "development" or "production"
	Logging      LoggingConfig      `toml:"logging"`
	LLM          LLMConfig          `toml:"llm"`
	Gemini       GeminiConfig       `toml:"gemini"`
	Claude       ClaudeConfig       `toml:"claude"`
	Pool         PoolConfig         `toml:"pool"`
	Retry        RetryConfig        `toml:"retry"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	MarketData   MarketDataConfig   `toml:"market_data"`
	Storage      StorageConfig      `toml:"storage"`
	Reports      ReportsConfig      `toml:"reports"`
	Schedule     ScheduleConfig     `toml:"schedule"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig contains provider-independent settings for generation calls
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider" validate:"oneof=gemini claude"`
	CallTimeout     string      `toml:"call_timeout"` // Hard per-call timeout as duration string (default: "60s")
	Temperature     float32     `toml:"temperature"`  // Completion temperature (default: 0.7)
	MaxOutputTokens int         `toml:"max_output_tokens"`
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKeys       []string `toml:"api_keys"`       // Pool of Gemini API keys, each individually rate limited
	PrimaryModel  string   `toml:"primary_model"`  // Model tried first (default: "gemini-2.0-flash")
	FallbackModel string   `toml:"fallback_model"` // Model tried when the primary is unavailable or degraded
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKeys       []string `toml:"api_keys"`
	PrimaryModel  string   `toml:"primary_model"`  // default: "claude-haiku-3-5-20241022"
	FallbackModel string   `toml:"fallback_model"` // default: "claude-3-5-sonnet-20241022"
	MaxTokens     int      `toml:"max_tokens"`     // Maximum tokens in response (default: 8192)
}

// PoolConfig controls credential pool behavior and selection scoring.
// The risk weights are heuristic tuning values; usage must dominate,
// recency of rate-limit recovery second, frequency third, streak fourth,
// long-run balance last.
type PoolConfig struct {
	MaxRequestsPerMinute int         `toml:"max_requests_per_minute" validate:"gt=0"` // Per-credential sliding-window cap
	RateLimitWindow      string      `toml:"rate_limit_window"`                       // Default lockout when the API gives no retry-after (default: "60s")
	MaxWait              string      `toml:"max_wait"`                                // Max time WaitForAvailable blocks (default: "5m")
	Risk                 RiskWeights `toml:"risk"`
}

// RiskWeights parameterizes credential risk scoring (lower score = preferred)
type RiskWeights struct {
	UsageWeight         float64 `toml:"usage_weight"`          // Current-minute usage ratio multiplier (default: 100)
	RecoveryPenaltyMax  float64 `toml:"recovery_penalty_max"`  // Max penalty for recovering within RecoveryWindow (default: 50)
	RecoveryWindow      string  `toml:"recovery_window"`       // Window over which the recovery penalty decays (default: "30s")
	FrequencyPenalty    float64 `toml:"frequency_penalty"`     // Penalty per rate-limit event in the last 10 minutes (default: 10)
	FrequencyPenaltyCap float64 `toml:"frequency_penalty_cap"` // default: 30
	StreakPenalty       float64 `toml:"streak_penalty"`        // Penalty per consecutive rate-limit hit (default: 5)
	StreakPenaltyCap    float64 `toml:"streak_penalty_cap"`    // default: 20
	BalancePenaltyMax   float64 `toml:"balance_penalty_max"`   // Max penalty for above-average lifetime usage (default: 10)
}

// RetryConfig controls backoff behavior for recoverable call failures
type RetryConfig struct {
	MaxRetries      int     `toml:"max_retries" validate:"gte=0"`
	BaseDelay       string  `toml:"base_delay"` // default: "1s"
	MaxDelay        string  `toml:"max_delay"`  // default: "60s"
	ExponentialBase float64 `toml:"exponential_base"`
}

// OrchestratorConfig controls batch dispatch behavior
type OrchestratorConfig struct {
	BatchTimeout string `toml:"batch_timeout"` // Overall batch join timeout (default: "10m")
}

// MarketDataConfig contains market data API configuration
type MarketDataConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit"` // Requests per second (default: 5)
	Timeout   string `toml:"timeout"`    // HTTP timeout (default: "30s")
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path     string `toml:"path"`      // Database directory path
	CacheTTL string `toml:"cache_ttl"` // Freshness window for cached market data (default: "1h")
}

// ReportsConfig controls report output
type ReportsConfig struct {
	Dir    string `toml:"dir"`    // Output directory for generated reports
	Format string `toml:"format"` // "markdown" or "pdf" (default: "markdown")
}

// ScheduleConfig controls recurring watchlist analysis
type ScheduleConfig struct {
	Enabled   bool     `toml:"enabled"`
	Cron      string   `toml:"cron"`      // Cron schedule with seconds field (default: weekly)
	Watchlist []string `toml:"watchlist"` // Tickers analyzed on each scheduled run
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability;
// only user-facing settings need to appear in aestimo.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
			CallTimeout:     "60s",
			Temperature:     0.7,
			MaxOutputTokens: 2000,
		},
		Gemini: GeminiConfig{
			PrimaryModel:  "gemini-2.0-flash",
			FallbackModel: "gemini-1.5-flash",
		},
		Claude: ClaudeConfig{
			PrimaryModel:  "claude-haiku-3-5-20241022",
			FallbackModel: "claude-3-5-sonnet-20241022",
			MaxTokens:     8192,
		},
		Pool: PoolConfig{
			MaxRequestsPerMinute: 10,
			RateLimitWindow:      "60s",
			MaxWait:              "5m",
			Risk: RiskWeights{
				UsageWeight:         100,
				RecoveryPenaltyMax:  50,
				RecoveryWindow:      "30s",
				FrequencyPenalty:    10,
				FrequencyPenaltyCap: 30,
				StreakPenalty:       5,
				StreakPenaltyCap:    20,
				BalancePenaltyMax:   10,
			},
		},
		Retry: RetryConfig{
			MaxRetries:      3,
			BaseDelay:       "1s",
			MaxDelay:        "60s",
			ExponentialBase: 2.0,
		},
		Orchestrator: OrchestratorConfig{
			BatchTimeout: "10m",
		},
		MarketData: MarketDataConfig{
			BaseURL:   "https://query1.finance.yahoo.com",
			RateLimit: 5,
			Timeout:   "30s",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:     "./data",
				CacheTTL: "1h",
			},
		},
		Reports: ReportsConfig{
			Dir:    "./reports",
			Format: "markdown",
		},
		Schedule: ScheduleConfig{
			Enabled: false,
			Cron:    "0 0 6 * * 1", // Monday 06:00
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks configuration consistency, including that every duration
// string parses and at least one API key exists for the selected provider.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"llm.call_timeout":           c.LLM.CallTimeout,
		"pool.rate_limit_window":     c.Pool.RateLimitWindow,
		"pool.max_wait":              c.Pool.MaxWait,
		"pool.risk.recovery_window":  c.Pool.Risk.RecoveryWindow,
		"retry.base_delay":           c.Retry.BaseDelay,
		"retry.max_delay":            c.Retry.MaxDelay,
		"orchestrator.batch_timeout": c.Orchestrator.BatchTimeout,
		"market_data.timeout":        c.MarketData.Timeout,
		"storage.badger.cache_ttl":   c.Storage.Badger.CacheTTL,
	}
	for name, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %q: %w", name, value, err)
		}
	}

	if len(c.ProviderAPIKeys()) == 0 {
		return fmt.Errorf("at least one API key is required for provider %q (set gemini.api_keys / claude.api_keys or AESTIMO_GEMINI_API_KEYS)", c.LLM.DefaultProvider)
	}

	if c.Retry.ExponentialBase < 1 {
		return fmt.Errorf("retry.exponential_base must be >= 1, got %g", c.Retry.ExponentialBase)
	}

	return nil
}

// ProviderAPIKeys returns the credential pool for the configured provider
func (c *Config) ProviderAPIKeys() []string {
	switch c.LLM.DefaultProvider {
	case LLMProviderClaude:
		return c.Claude.APIKeys
	default:
		return c.Gemini.APIKeys
	}
}

// ProviderModels returns the ordered (primary, fallback) model list for the
// configured provider. A missing fallback yields a single-element list.
func (c *Config) ProviderModels() []string {
	var primary, fallback string
	switch c.LLM.DefaultProvider {
	case LLMProviderClaude:
		primary, fallback = c.Claude.PrimaryModel, c.Claude.FallbackModel
	default:
		primary, fallback = c.Gemini.PrimaryModel, c.Gemini.FallbackModel
	}
	models := []string{primary}
	if fallback != "" && fallback != primary {
		models = append(models, fallback)
	}
	return models
}

// Duration parses a config duration string that Validate has already checked
func Duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("AESTIMO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if level := os.Getenv("AESTIMO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("AESTIMO_LOG_OUTPUT"); output != "" {
		config.Logging.Output = splitList(output)
	}

	if provider := os.Getenv("AESTIMO_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}
	if timeout := os.Getenv("AESTIMO_LLM_CALL_TIMEOUT"); timeout != "" {
		config.LLM.CallTimeout = timeout
	}

	if keys := os.Getenv("AESTIMO_GEMINI_API_KEYS"); keys != "" {
		config.Gemini.APIKeys = splitList(keys)
	} else if key := os.Getenv("AESTIMO_GEMINI_API_KEY"); key != "" {
		config.Gemini.APIKeys = []string{key}
	}
	if keys := os.Getenv("AESTIMO_CLAUDE_API_KEYS"); keys != "" {
		config.Claude.APIKeys = splitList(keys)
	}

	if rpm := os.Getenv("AESTIMO_POOL_MAX_REQUESTS_PER_MINUTE"); rpm != "" {
		if v, err := strconv.Atoi(rpm); err == nil {
			config.Pool.MaxRequestsPerMinute = v
		}
	}

	if apiKey := os.Getenv("AESTIMO_MARKET_DATA_API_KEY"); apiKey != "" {
		config.MarketData.APIKey = apiKey
	}
	if baseURL := os.Getenv("AESTIMO_MARKET_DATA_BASE_URL"); baseURL != "" {
		config.MarketData.BaseURL = baseURL
	}

	if path := os.Getenv("AESTIMO_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
	if dir := os.Getenv("AESTIMO_REPORTS_DIR"); dir != "" {
		config.Reports.Dir = dir
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
