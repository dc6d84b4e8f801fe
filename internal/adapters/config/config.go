package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"taskpilot/pkg/errors"
)

type Config struct {
	App           AppConfig
	Database      DatabaseConfig
	AI            AIConfig
	Engine        EngineConfig
	Observability ObservabilityConfig
	Retention     RetentionConfig
	ErrorTracking ErrorTrackingConfig
	Server        ServerConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"taskpilot"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

type DatabaseConfig struct {
	// Path to the sqlite database file, ":memory:" for ephemeral stores
	Path     string `envconfig:"DATABASE_PATH" default:"logs.db"`
	MaxConns int    `envconfig:"DATABASE_MAX_CONNS" default:"1"`
}

type AIConfig struct {
	Provider    string  `envconfig:"AI_PROVIDER" default:"gemini"`
	GeminiKey   string  `envconfig:"GEMINI_API_KEY"`
	OpenAIKey   string  `envconfig:"OPENAI_API_KEY"`
	OpenAIBase  string  `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	Model       string  `envconfig:"AI_MODEL" default:"gemini-2.0-flash"`
	Temperature float64 `envconfig:"AI_TEMPERATURE" default:"0.0"`
	MaxTokens   int     `envconfig:"AI_MAX_TOKENS" default:"1024"`
	// Requests per minute allowed against the provider
	RateLimitRPM int `envconfig:"AI_RATE_LIMIT_RPM" default:"60"`
}

type EngineConfig struct {
	MaxToolIterations   int           `envconfig:"MAX_TOOL_ITERATIONS" default:"5"`
	RequestTimeout      time.Duration `envconfig:"ENGINE_TIMEOUT" default:"30s"`
	ConfirmationTimeout time.Duration `envconfig:"CONFIRMATION_TIMEOUT" default:"5m"`
	// Optional path to a system prompt file overriding the default
	ConstitutionPath string `envconfig:"CONSTITUTION_PATH"`
}

type ObservabilityConfig struct {
	DriftThreshold    float64 `envconfig:"DRIFT_THRESHOLD" default:"0.10"`
	MinBaselineSample int     `envconfig:"MIN_BASELINE_SAMPLE" default:"10"`
	FixturesPath      string  `envconfig:"VALIDATION_FIXTURES_PATH" default:"fixtures/behavior.yaml"`
}

type RetentionConfig struct {
	Days          int           `envconfig:"RETENTION_DAYS" default:"30"`
	SweepInterval time.Duration `envconfig:"RETENTION_SWEEP_INTERVAL" default:"24h"`
	SweepEnabled  bool          `envconfig:"RETENTION_SWEEP_ENABLED" default:"true"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	Provider    string `envconfig:"ERROR_TRACKING_PROVIDER" default:"sentry"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}
