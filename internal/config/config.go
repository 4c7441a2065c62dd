package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	defaultExternalHTTPTimeout        = 90 * time.Second
	defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

	defaultPort            = 3001
	defaultFrontendURL     = "http://localhost:8080"
	defaultRefreshSeconds  = 5
	defaultUnitPrice       = 100.0
	defaultSampleSize      = 30
	defaultGeminiModel     = "gemini-2.5-flash"
	defaultAnthropicModel  = "claude-sonnet-4-5"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	minExternalHTTPTimeout = 5
)

const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// Config is built once at startup and treated as read-only afterwards.
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	Port        int    `yaml:"port"`
	FrontendURL string `yaml:"frontend_url"`

	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	GeminiAPIKey    string `yaml:"gemini_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`

	Timezone                   string  `yaml:"timezone"`
	RefreshIntervalSeconds     int     `yaml:"refresh_interval_seconds"`
	UnitPrice                  float64 `yaml:"unit_price"`
	AssistantSampleSize        int     `yaml:"assistant_sample_size"`
	ExternalHTTPTimeoutSeconds int     `yaml:"external_http_timeout_seconds"`

	SlackBotToken   string `yaml:"slack_bot_token"`
	DigestChannelID string `yaml:"digest_channel_id"`
	DigestSchedule  string `yaml:"digest_schedule"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
	Source   string         `yaml:"-"` // config file actually read, empty if none
}

// Load reads .env, then config.yaml (or CONFIG_PATH), then environment
// overrides, and applies defaults. The returned error names the offending key.
func Load() (Config, error) {
	var cfg Config

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", configPath, err)
		}
		cfg.Source = configPath
	} else if !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read %s: %w", configPath, err)
	}

	envOverride(&cfg.DatabaseURL, "DATABASE_URL")
	envOverride(&cfg.FrontendURL, "FRONTEND_URL")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.Timezone, "TIMEZONE")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.DigestChannelID, "DIGEST_CHANNEL_ID")
	envOverrideAllowEmpty(&cfg.DigestSchedule, "DIGEST_SCHEDULE")
	envOverride(&cfg.LogLevel, "LOG_LEVEL")
	envOverride(&cfg.LogFormat, "LOG_FORMAT")

	ints := []struct {
		field *int
		key   string
	}{
		{&cfg.Port, "PORT"},
		{&cfg.RefreshIntervalSeconds, "REFRESH_INTERVAL_SECONDS"},
		{&cfg.AssistantSampleSize, "ASSISTANT_SAMPLE_SIZE"},
		{&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"},
	}
	for _, o := range ints {
		if err := envOverrideInt(o.field, o.key); err != nil {
			return Config{}, err
		}
	}
	if err := envOverrideFloat(&cfg.UnitPrice, "UNIT_PRICE"); err != nil {
		return Config{}, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.LLMProvider = strings.ToLower(strings.TrimSpace(c.LLMProvider))
	if c.LLMProvider == "" {
		c.LLMProvider = ProviderGemini
	}
	if c.LLMModel == "" {
		switch c.LLMProvider {
		case ProviderAnthropic:
			c.LLMModel = defaultAnthropicModel
		default:
			c.LLMModel = defaultGeminiModel
		}
	}
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.FrontendURL == "" {
		c.FrontendURL = defaultFrontendURL
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	if c.RefreshIntervalSeconds == 0 {
		c.RefreshIntervalSeconds = defaultRefreshSeconds
	}
	if c.UnitPrice == 0 {
		c.UnitPrice = defaultUnitPrice
	}
	if c.AssistantSampleSize == 0 {
		c.AssistantSampleSize = defaultSampleSize
	}
	if c.ExternalHTTPTimeoutSeconds == 0 {
		c.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = defaultLogFormat
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("required config 'database_url' is not set (via config.yaml or DATABASE_URL)")
	}
	switch c.LLMProvider {
	case ProviderGemini, ProviderAnthropic:
	default:
		return fmt.Errorf("llm_provider must be 'gemini' or 'anthropic', got '%s'", c.LLMProvider)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port '%d': must be between 1 and 65535", c.Port)
	}
	if c.RefreshIntervalSeconds < 1 {
		return fmt.Errorf("invalid refresh_interval_seconds '%d': must be >= 1", c.RefreshIntervalSeconds)
	}
	if c.UnitPrice < 0 {
		return fmt.Errorf("invalid unit_price '%g': must be >= 0", c.UnitPrice)
	}
	if c.AssistantSampleSize < 1 || c.AssistantSampleSize > 100 {
		return fmt.Errorf("invalid assistant_sample_size '%d': must be between 1 and 100", c.AssistantSampleSize)
	}
	if c.ExternalHTTPTimeoutSeconds < minExternalHTTPTimeout {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= %d", c.ExternalHTTPTimeoutSeconds, minExternalHTTPTimeout)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log_format must be 'json' or 'console', got '%s'", c.LogFormat)
	}

	if strings.EqualFold(c.Timezone, "Local") {
		c.Location = time.Local
	} else {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
		}
		c.Location = loc
	}

	if s := strings.TrimSpace(c.DigestSchedule); s != "" {
		if _, err := ParseSchedule(s); err != nil {
			return fmt.Errorf("invalid digest_schedule '%s': %w", s, err)
		}
	}
	return nil
}

// ParseSchedule parses a standard 5-field cron expression
// (minute hour day-of-month month day-of-week).
func ParseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(spec)
}

// AssistantConfigured reports whether the selected provider has a credential.
func (c Config) AssistantConfigured() bool {
	switch c.LLMProvider {
	case ProviderAnthropic:
		return c.AnthropicAPIKey != ""
	case ProviderGemini:
		return c.GeminiAPIKey != ""
	}
	return false
}

// DigestConfigured reports whether scheduled Slack digests can run.
func (c Config) DigestConfigured() bool {
	return c.SlackBotToken != "" && c.DigestChannelID != "" && strings.TrimSpace(c.DigestSchedule) != ""
}

func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

func (c Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}

func (c Config) ExternalHTTPTimeout() time.Duration {
	return time.Duration(c.ExternalHTTPTimeoutSeconds) * time.Second
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideFloat(field *float64, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}
