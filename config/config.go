package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for wxbrief.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Budget    BudgetConfig    `mapstructure:"budget"`
	Privacy   PrivacyConfig   `mapstructure:"privacy"`
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug         bool          `mapstructure:"debug"`
	Units         string        `mapstructure:"units"` // imperial or metric
	Style         string        `mapstructure:"style"`
	Persona       string        `mapstructure:"persona"`
	Offline       bool          `mapstructure:"offline"`
	QueryDeadline time.Duration `mapstructure:"query_deadline"`
}

// SourcesConfig bounds the feature pack assembly.
type SourcesConfig struct {
	AdapterTimeout  time.Duration `mapstructure:"adapter_timeout"`
	AssemblyTimeout time.Duration `mapstructure:"assembly_timeout"`
	Priority        []string      `mapstructure:"priority"`
	UserAgent       string        `mapstructure:"user_agent"`
	Retries         int           `mapstructure:"retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
}

// ProvidersConfig configures the AI provider chain.
type ProvidersConfig struct {
	OpenRouter     OpenRouterConfig `mapstructure:"openrouter"`
	Gemini         GeminiConfig     `mapstructure:"gemini"`
	MaxRetries     int              `mapstructure:"max_retries"`
	BaseBackoff    time.Duration    `mapstructure:"base_backoff"`
	MaxBackoff     time.Duration    `mapstructure:"max_backoff"`
	AttemptTimeout time.Duration    `mapstructure:"attempt_timeout"`
	WallBudget     time.Duration    `mapstructure:"wall_budget"`
	Temperature    float64          `mapstructure:"temperature"`
	MaxTokens      int              `mapstructure:"max_tokens"`
}

// OpenRouterConfig contains OpenRouter settings. Models are tried in order.
type OpenRouterConfig struct {
	APIKey  string   `mapstructure:"api_key"`
	BaseURL string   `mapstructure:"base_url"`
	Models  []string `mapstructure:"models"`
}

// GeminiConfig contains Google Gemini settings.
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// BudgetConfig caps the rendered answer and splits it across sections.
type BudgetConfig struct {
	Cap     int                `mapstructure:"cap"`
	Weights map[string]float64 `mapstructure:"weights"`
}

// PrivacyConfig gates local persistence of queries.
type PrivacyConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	StateDir string `mapstructure:"state_dir"`
}

// ServerConfig contains HTTP server and auth settings.
type ServerConfig struct {
	Addr          string `mapstructure:"addr"`
	JWTSecret     string `mapstructure:"jwt_secret"`
	AdminUser     string `mapstructure:"admin_user"`
	AdminPassHash string `mapstructure:"admin_pass_hash"` // bcrypt
}

// StorageConfig contains storage backends used in server mode.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings.
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DSN resolves the connection string, preferring an explicit URL.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == 0 {
		port = 5432
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Addr returns host:port, or "" when redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	port := r.Port
	if port == 0 {
		port = 6379
	}
	return fmt.Sprintf("%s:%d", r.Host, port)
}

// TelemetryConfig contains metrics settings.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig loads configuration from file and environment variables.
// A missing config file is fine; defaults plus env cover CLI usage.
func LoadConfig(path string) (*Config, error) {
	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("WXBRIEF")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Privacy.StateDir == "" {
		config.Privacy.StateDir = defaultStateDir()
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	viper.SetDefault("general.debug", false)
	viper.SetDefault("general.units", "imperial")
	viper.SetDefault("general.style", "standard")
	viper.SetDefault("general.persona", "default")
	viper.SetDefault("general.offline", false)
	viper.SetDefault("general.query_deadline", "2m")

	viper.SetDefault("sources.adapter_timeout", "3s")
	viper.SetDefault("sources.assembly_timeout", "6s")
	viper.SetDefault("sources.priority", []string{"geocode", "obs", "outlook", "alerts", "profile", "discussion"})
	viper.SetDefault("sources.user_agent", "wxbrief (github.com/mohammad-safakhou/wxbrief)")
	viper.SetDefault("sources.retries", 1)
	viper.SetDefault("sources.retry_backoff", "300ms")

	viper.SetDefault("providers.openrouter.base_url", "https://openrouter.ai/api/v1")
	viper.SetDefault("providers.openrouter.models", []string{"x-ai/grok-4-fast:free", "openai/gpt-oss-120b:free"})
	viper.SetDefault("providers.gemini.model", "gemini-2.0-flash-exp")
	viper.SetDefault("providers.max_retries", 3)
	viper.SetDefault("providers.base_backoff", "750ms")
	viper.SetDefault("providers.max_backoff", "6s")
	viper.SetDefault("providers.attempt_timeout", "30s")
	viper.SetDefault("providers.wall_budget", "90s")
	viper.SetDefault("providers.temperature", 0.2)
	viper.SetDefault("providers.max_tokens", 900)

	viper.SetDefault("budget.cap", 400)
	viper.SetDefault("budget.weights", map[string]float64{
		"summary":     0.30,
		"timeline":    0.25,
		"risk":        0.20,
		"confidence":  0.10,
		"actions":     0.10,
		"assumptions": 0.05,
	})

	viper.SetDefault("privacy.enabled", true)

	viper.SetDefault("server.addr", ":8080")

	viper.SetDefault("storage.postgres.port", 5432)
	viper.SetDefault("storage.postgres.sslmode", "disable")
	viper.SetDefault("storage.postgres.timeout", "5s")
	viper.SetDefault("storage.redis.port", 6379)
	viper.SetDefault("storage.redis.db", 0)
	viper.SetDefault("storage.redis.timeout", "5s")

	viper.SetDefault("telemetry.enabled", true)
}

// overrideFromEnv overrides configuration with environment variables for
// sensitive data and the legacy env surface.
func overrideFromEnv() {
	if apiKey := os.Getenv("OPENROUTER_API_KEY"); apiKey != "" {
		viper.Set("providers.openrouter.api_key", apiKey)
	}
	if models := os.Getenv("OPENROUTER_MODELS"); models != "" {
		parts := strings.Split(models, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			viper.Set("providers.openrouter.models", out)
		}
	}
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		viper.Set("providers.gemini.api_key", apiKey)
	} else if apiKey := os.Getenv("GOOGLE_API_KEY"); apiKey != "" {
		viper.Set("providers.gemini.api_key", apiKey)
	}
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		viper.Set("providers.gemini.model", model)
	}
	if v := os.Getenv("AI_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			viper.Set("providers.temperature", f)
		}
	}
	if v := os.Getenv("AI_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			viper.Set("providers.max_tokens", n)
		}
	}
	if v := strings.ToLower(os.Getenv("UNITS")); v == "imperial" || v == "metric" {
		viper.Set("general.units", v)
	}
	if v := os.Getenv("WX_OFFLINE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			viper.Set("general.offline", b)
		}
	}
	if v := os.Getenv("PRIVACY_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			viper.Set("privacy.enabled", b)
		}
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		viper.Set("storage.postgres.url", dsn)
	}
}

// validateConfig validates the loaded configuration.
func validateConfig(config *Config) error {
	if config.General.QueryDeadline <= 0 {
		return fmt.Errorf("general.query_deadline must be positive")
	}
	if config.Sources.AdapterTimeout <= 0 {
		return fmt.Errorf("sources.adapter_timeout must be positive")
	}
	if config.Sources.AssemblyTimeout <= 0 {
		return fmt.Errorf("sources.assembly_timeout must be positive")
	}
	if config.Providers.MaxRetries < 1 {
		return fmt.Errorf("providers.max_retries must be at least 1")
	}
	if config.Providers.BaseBackoff <= 0 || config.Providers.MaxBackoff < config.Providers.BaseBackoff {
		return fmt.Errorf("providers backoff window invalid (base=%s max=%s)", config.Providers.BaseBackoff, config.Providers.MaxBackoff)
	}
	if config.Budget.Cap <= 0 {
		return fmt.Errorf("budget.cap must be positive")
	}
	if len(config.Budget.Weights) > 0 {
		var sum float64
		for name, w := range config.Budget.Weights {
			if w < 0 {
				return fmt.Errorf("budget.weights.%s cannot be negative", name)
			}
			sum += w
		}
		if math.Abs(sum-1.0) > 1e-6 {
			return fmt.Errorf("budget.weights must sum to 1.0, got %.4f", sum)
		}
	}
	return nil
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "wxbrief")
	}
	return filepath.Join(".", ".wxbrief")
}
