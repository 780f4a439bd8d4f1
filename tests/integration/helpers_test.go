//go:build integration

package integration

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zatekoja/dearteddy/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/dearteddy/backend/internal/infrastructure/clients/redis"
	"github.com/zatekoja/dearteddy/backend/pkg/config"
)

const schemaPath = "../../scripts/schema.sql"

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func maybeTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	cfg := &config.RedisConfig{
		Host:     getEnv("TEST_REDIS_HOST", "localhost"),
		Port:     getEnvAsInt("TEST_REDIS_PORT", 6379),
		Password: getEnv("TEST_REDIS_PASSWORD", ""),
		DB:       getEnvAsInt("TEST_REDIS_DB", 0),
	}

	client, err := redis.NewClient(cfg)
	if err != nil {
		t.Logf("Redis unavailable: %v", err)
		return nil
	}
	return client
}

// newTestPostgresClient connects to the test database and applies the schema.
// Tests are skipped when TEST_DB_HOST is not set.
func newTestPostgresClient(t *testing.T) *postgres.Client {
	t.Helper()

	if os.Getenv("TEST_DB_HOST") == "" {
		t.Skip("TEST_DB_HOST not set")
	}

	cfg := &config.DatabaseConfig{
		Host:     getEnv("TEST_DB_HOST", "localhost"),
		Port:     getEnvAsInt("TEST_DB_PORT", 5432),
		User:     getEnv("TEST_DB_USER", "postgres"),
		Password: getEnv("TEST_DB_PASSWORD", "postgres"),
		Database: getEnv("TEST_DB_NAME", "dear_teddy_test"),
		SSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}

	client, err := postgres.NewClient(cfg)
	require.NoError(t, err, "Failed to create postgres client")

	schema, err := os.ReadFile(schemaPath)
	require.NoError(t, err)
	_, err = client.DB().ExecContext(context.Background(), string(schema))
	require.NoError(t, err, "Failed to apply schema")

	return client
}

func truncateTables(t *testing.T, client *postgres.Client) {
	t.Helper()
	_, err := client.DB().ExecContext(context.Background(), `TRUNCATE TABLE cbt_recommendations, journal_entries, mood_logs CASCADE`)
	require.NoError(t, err)
}
