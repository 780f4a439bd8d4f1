package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"github.com/zatekoja/dearteddy/backend/pkg/secrets"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	OpenAI       OpenAIConfig
	Conversation ConversationConfig
	Logging      LoggingConfig
	OTEL         OTELConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string

	// TrustProxyHeaders enables X-Forwarded-For for client identification.
	// Only set it behind a proxy that overwrites the header.
	TrustProxyHeaders bool
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeMin int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Enabled  bool
}

// OpenAIConfig holds OpenAI configuration
type OpenAIConfig struct {
	APIKey                 string
	Model                  string
	BaseURL                string
	TimeoutSeconds         int
	RateLimitRPM           int
	RateLimitBurst         int
	BreakerMaxFailures     int
	BreakerCooldownSeconds int
}

// ConversationConfig tunes the journaling conversation flow
type ConversationConfig struct {
	InFlightTTLSeconds int
	CacheTTLSeconds    int
	MaxEntryLength     int
	MaxReflectionLen   int
}

// LoggingConfig controls log output
type LoggingConfig struct {
	Env   string
	Level string
	File  string
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

var defaults = map[string]interface{}{
	"SERVER_HOST":     "0.0.0.0",
	"SERVER_PORT":     8080,
	"ALLOWED_ORIGINS": "*",

	"TRUST_PROXY_HEADERS": false,

	"DB_HOST":     "localhost",
	"DB_PORT":     5432,
	"DB_USER":     "postgres",
	"DB_PASSWORD": "",
	"DB_NAME":     "dear_teddy",
	"DB_SSLMODE":  "disable",

	"DB_MAX_OPEN_CONNS":            25,
	"DB_MAX_IDLE_CONNS":            5,
	"DB_CONN_MAX_LIFETIME_MINUTES": 5,

	"REDIS_HOST":     "localhost",
	"REDIS_PORT":     6379,
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,
	"REDIS_ENABLED":  true,

	"OPENAI_API_KEY":                  "",
	"OPENAI_MODEL":                    "gpt-4o",
	"OPENAI_BASE_URL":                 "https://api.openai.com/v1",
	"OPENAI_TIMEOUT_SECONDS":          30,
	"OPENAI_RATE_LIMIT_RPM":           60,
	"OPENAI_RATE_LIMIT_BURST":         5,
	"OPENAI_BREAKER_MAX_FAILURES":     5,
	"OPENAI_BREAKER_COOLDOWN_SECONDS": 30,

	"CONVERSATION_INFLIGHT_TTL_SECONDS": 60,
	"CONVERSATION_CACHE_TTL_SECONDS":    300,
	"CONVERSATION_MAX_ENTRY_LENGTH":     10000,
	"CONVERSATION_MAX_REFLECTION_LEN":   5000,

	"ENV":       "development",
	"LOG_LEVEL": "info",
	"LOG_FILE":  "",

	"OTEL_SERVICE_NAME":    "dear-teddy",
	"OTEL_SERVICE_VERSION": "1.0.0",
	"OTEL_ENDPOINT":        "",
	"OTEL_ENABLED":         false,
}

// Load reads configuration from the environment. When CONFIG_FILE is set the
// file is read first and environment variables override its values. When
// VAULT_ENABLED is set, values from the Vault secret sit between the two:
// they replace file values but not variables already set in the environment
// unless VAULT_OVERWRITE is true.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := applyVaultSecrets(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("SERVER_HOST"),
			Port:           v.GetInt("SERVER_PORT"),
			AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),

			TrustProxyHeaders: v.GetBool("TRUST_PROXY_HEADERS"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Database: v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),

			MaxOpenConns:       v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:       v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetimeMin: v.GetInt("DB_CONN_MAX_LIFETIME_MINUTES"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			Enabled:  v.GetBool("REDIS_ENABLED"),
		},
		OpenAI: OpenAIConfig{
			APIKey:                 v.GetString("OPENAI_API_KEY"),
			Model:                  v.GetString("OPENAI_MODEL"),
			BaseURL:                strings.TrimRight(v.GetString("OPENAI_BASE_URL"), "/"),
			TimeoutSeconds:         v.GetInt("OPENAI_TIMEOUT_SECONDS"),
			RateLimitRPM:           v.GetInt("OPENAI_RATE_LIMIT_RPM"),
			RateLimitBurst:         v.GetInt("OPENAI_RATE_LIMIT_BURST"),
			BreakerMaxFailures:     v.GetInt("OPENAI_BREAKER_MAX_FAILURES"),
			BreakerCooldownSeconds: v.GetInt("OPENAI_BREAKER_COOLDOWN_SECONDS"),
		},
		Conversation: ConversationConfig{
			InFlightTTLSeconds: v.GetInt("CONVERSATION_INFLIGHT_TTL_SECONDS"),
			CacheTTLSeconds:    v.GetInt("CONVERSATION_CACHE_TTL_SECONDS"),
			MaxEntryLength:     v.GetInt("CONVERSATION_MAX_ENTRY_LENGTH"),
			MaxReflectionLen:   v.GetInt("CONVERSATION_MAX_REFLECTION_LEN"),
		},
		Logging: LoggingConfig{
			Env:   v.GetString("ENV"),
			Level: v.GetString("LOG_LEVEL"),
			File:  v.GetString("LOG_FILE"),
		},
		OTEL: OTELConfig{
			ServiceName:    v.GetString("OTEL_SERVICE_NAME"),
			ServiceVersion: v.GetString("OTEL_SERVICE_VERSION"),
			Endpoint:       v.GetString("OTEL_ENDPOINT"),
			Enabled:        v.GetBool("OTEL_ENABLED"),
		},
	}

	if cfg.OpenAI.TimeoutSeconds <= 0 {
		return nil, fmt.Errorf("OPENAI_TIMEOUT_SECONDS must be positive, got %d", cfg.OpenAI.TimeoutSeconds)
	}

	return cfg, nil
}

func applyVaultSecrets(v *viper.Viper) error {
	vaultCfg := secrets.VaultConfigFrom(v.GetString)
	if !vaultCfg.Enabled {
		return nil
	}

	values, err := secrets.FetchVaultSecrets(context.Background(), vaultCfg)
	if err != nil {
		return fmt.Errorf("failed to load secrets from vault: %w", err)
	}
	for key, value := range values {
		if !vaultCfg.Overwrite && os.Getenv(key) != "" {
			continue
		}
		v.Set(key, value)
	}
	return nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
