package config

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_OpenAIConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
	t.Setenv("OPENAI_TIMEOUT_SECONDS", "12")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:9999/v1/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, 12, cfg.OpenAI.TimeoutSeconds)
	assert.Equal(t, "http://localhost:9999/v1", cfg.OpenAI.BaseURL)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.OpenAI.Model)
	assert.Equal(t, 30, cfg.OpenAI.TimeoutSeconds)
	assert.Equal(t, 60, cfg.OpenAI.RateLimitRPM)
	assert.Equal(t, 5, cfg.OpenAI.RateLimitBurst)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.Server.TrustProxyHeaders)
	assert.Equal(t, "dear_teddy", cfg.Database.Database)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 60, cfg.Conversation.InFlightTTLSeconds)
	assert.False(t, cfg.OTEL.Enabled)
}

func TestLoad_ConfigFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "db_host: db.internal\ndb_port: 6543\nopenai_model: gpt-4.1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("OPENAI_MODEL", "gpt-4o")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.Model)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsNonPositiveTimeout(t *testing.T) {
	t.Setenv("OPENAI_TIMEOUT_SECONDS", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestDSNAndAddr(t *testing.T) {
	db := DatabaseConfig{Host: "h", Port: 1, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=h port=1 user=u password=p dbname=d sslmode=disable", db.DatabaseDSN())

	r := RedisConfig{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", r.RedisAddr())
}

func TestLoad_VaultSecrets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"data":{"OPENAI_API_KEY":"sk-from-vault","DB_PASSWORD":"vault-pass"}}}`))
	}))
	defer server.Close()

	t.Setenv("VAULT_ENABLED", "true")
	t.Setenv("VAULT_ADDR", server.URL)
	t.Setenv("VAULT_TOKEN", "token")
	t.Setenv("VAULT_PATH", "dear-teddy")
	t.Setenv("DB_PASSWORD", "env-pass")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-from-vault", cfg.OpenAI.APIKey)
	// the environment wins unless VAULT_OVERWRITE is set
	assert.Equal(t, "env-pass", cfg.Database.Password)
}

func TestLoad_VaultUnavailable(t *testing.T) {
	t.Setenv("VAULT_ENABLED", "true")
	t.Setenv("VAULT_ADDR", "http://127.0.0.1:1")
	t.Setenv("VAULT_TOKEN", "token")
	t.Setenv("VAULT_PATH", "dear-teddy")
	t.Setenv("VAULT_TIMEOUT_MS", "200")

	_, err := Load()
	assert.Error(t, err)
}
