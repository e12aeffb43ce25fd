package app

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"

	"github.com/facturia/facturia/internal/sequencer"
)

// Sequencer backends.
const (
	SequencerMemory = "memory"
	SequencerRedis  = "redis"
)

// Extractor providers.
const (
	ExtractorGemini = "gemini"
	ExtractorOpenAI = "openai"
	ExtractorNone   = "none"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv             string        `envconfig:"APP_ENV" default:"development"`
	AppAddr            string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout     time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout    time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"120s"`
	AppRequestTimeout  time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"90s"`
	AppTimezone        string        `envconfig:"APP_TIMEZONE" default:"America/Argentina/Buenos_Aires"`
	MaxBodyBytes       int64         `envconfig:"MAX_BODY_BYTES" default:"10485760"`
	RateLimitPerMinute int           `envconfig:"RATE_LIMIT_PER_MINUTE" default:"60"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	RedisAddr        string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	SequencerBackend string        `envconfig:"SEQUENCER_BACKEND" default:"memory"`
	SequenceLockTTL  time.Duration `envconfig:"SEQUENCE_LOCK_TTL" default:"90s"`

	AuthorityURL     string        `envconfig:"AUTHORITY_URL" default:"https://127.0.0.1:8443"`
	AuthorityTimeout time.Duration `envconfig:"AUTHORITY_TIMEOUT" default:"30s"`

	CredentialsDir string `envconfig:"CREDENTIALS_DIR"`

	ExtractorProvider       string        `envconfig:"EXTRACTOR_PROVIDER" default:"gemini"`
	ExtractorTimeout        time.Duration `envconfig:"EXTRACTOR_TIMEOUT" default:"30s"`
	ExtractorMaxConcurrency int           `envconfig:"EXTRACTOR_MAX_CONCURRENCY" default:"4"`
	GeminiAPIKey            string        `envconfig:"GEMINI_API_KEY"`
	GeminiModel             string        `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	OpenAIAPIKey            string        `envconfig:"OPENAI_API_KEY"`
	OpenAIModel             string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAIBaseURL           string        `envconfig:"OPENAI_BASE_URL"`

	location *time.Location
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.SequencerBackend {
	case SequencerMemory, SequencerRedis:
	default:
		return fmt.Errorf("unknown sequencer backend %q", c.SequencerBackend)
	}
	switch c.ExtractorProvider {
	case ExtractorGemini, ExtractorOpenAI, ExtractorNone:
	default:
		return fmt.Errorf("unknown extractor provider %q", c.ExtractorProvider)
	}
	if c.AuthorityURL == "" {
		return fmt.Errorf("authority url must be provided")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}
	if minTTL := c.AuthorityTimeout + sequencer.ReleaseTimeout; c.SequenceLockTTL <= minTTL {
		return fmt.Errorf("sequence lock ttl %s must exceed authority timeout plus release window (%s)", c.SequenceLockTTL, minTTL)
	}
	loc, err := time.LoadLocation(c.AppTimezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", c.AppTimezone, err)
	}
	c.location = loc
	return nil
}

// Location returns the business time zone.
func (c *Config) Location() *time.Location {
	if c == nil || c.location == nil {
		return time.UTC
	}
	return c.location
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
