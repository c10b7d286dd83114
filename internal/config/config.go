package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Backend    BackendConfig    `yaml:"backend" mapstructure:"backend"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Poll       PollConfig       `yaml:"poll" mapstructure:"poll"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// BackendConfig configures the proposal backend client.
type BackendConfig struct {
	BaseURL             string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey              string  `yaml:"api_key" mapstructure:"api_key"`
	RequestTimeoutSecs  int     `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	FallbackTimeoutSecs int     `yaml:"fallback_timeout_secs" mapstructure:"fallback_timeout_secs"`
	RateLimit           float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst           int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// RequestTimeout returns the per-request timeout.
func (b BackendConfig) RequestTimeout() time.Duration {
	return time.Duration(b.RequestTimeoutSecs) * time.Second
}

// FallbackTimeout bounds the synchronous analysis call, which runs the whole
// analysis server-side and so outlasts an ordinary request.
func (b BackendConfig) FallbackTimeout() time.Duration {
	return time.Duration(b.FallbackTimeoutSecs) * time.Second
}

// IngestConfig configures analysis options and batch completion behavior.
type IngestConfig struct {
	Tone               string `yaml:"tone" mapstructure:"tone"`
	Length             string `yaml:"length" mapstructure:"length"`
	GenerateContent    bool   `yaml:"generate_content" mapstructure:"generate_content"`
	CreateQASection    bool   `yaml:"create_qa_section" mapstructure:"create_qa_section"`
	InjectIntoSections bool   `yaml:"inject_into_sections" mapstructure:"inject_into_sections"`
	CompletionDelayMs  int    `yaml:"completion_delay_ms" mapstructure:"completion_delay_ms"`
	NavigatePath       string `yaml:"navigate_path" mapstructure:"navigate_path"`
}

// PollConfig configures async job polling.
type PollConfig struct {
	IntervalMs  int `yaml:"interval_ms" mapstructure:"interval_ms"`
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// RetryConfig configures upload retries.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures the job-start circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// StoreConfig configures batch persistence.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	UploadDir      string   `yaml:"upload_dir" mapstructure:"upload_dir"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxUploadMB    int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// MonitoringConfig configures batch health checks and webhook alerts.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	StuckAfterMins       int     `yaml:"stuck_after_mins" mapstructure:"stuck_after_mins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RFP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("backend.base_url", "")
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.request_timeout_secs", 30)
	v.SetDefault("backend.fallback_timeout_secs", 300)
	v.SetDefault("backend.rate_limit", 10)
	v.SetDefault("backend.rate_burst", 5)
	v.SetDefault("ingest.tone", "professional")
	v.SetDefault("ingest.length", "medium")
	v.SetDefault("ingest.generate_content", true)
	v.SetDefault("ingest.create_qa_section", true)
	v.SetDefault("ingest.inject_into_sections", true)
	v.SetDefault("ingest.completion_delay_ms", 1500)
	v.SetDefault("ingest.navigate_path", "/projects/{project_id}/proposal")
	v.SetDefault("poll.interval_ms", 1000)
	v.SetDefault("poll.max_attempts", 180)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "rfp-ingest.db")
	v.SetDefault("store.max_conns", 5)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.upload_dir", "")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_upload_mb", 50)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.stuck_after_mins", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the keys required by the given command are set.
// Modes: "ingest", "serve", "store".
func (c *Config) Validate(mode string) error {
	var problems []string

	needStore := func() {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}
	needBackend := func() {
		if c.Backend.BaseURL == "" {
			problems = append(problems, "backend.base_url is required")
		}
		if c.Backend.RequestTimeoutSecs <= 0 {
			problems = append(problems, "backend.request_timeout_secs must be positive")
		}
		if c.Backend.FallbackTimeoutSecs <= 0 {
			problems = append(problems, "backend.fallback_timeout_secs must be positive")
		}
		if c.Poll.IntervalMs <= 0 {
			problems = append(problems, "poll.interval_ms must be positive")
		}
		if c.Poll.MaxAttempts <= 0 {
			problems = append(problems, "poll.max_attempts must be positive")
		}
		if c.Ingest.CompletionDelayMs < 0 {
			problems = append(problems, "ingest.completion_delay_ms must not be negative")
		}
	}

	switch mode {
	case "ingest":
		needBackend()
		needStore()
	case "serve":
		needBackend()
		needStore()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be between 1 and 65535")
		}
		if c.Server.MaxUploadMB <= 0 {
			problems = append(problems, "server.max_upload_mb must be positive")
		}
		if c.Monitoring.Enabled && c.Monitoring.LookbackWindowHours <= 0 {
			problems = append(problems, "monitoring.lookback_window_hours must be positive")
		}
	case "store":
		needStore()
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
