package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("fulfillment-service")
	require.NoError(t, err)

	assert.Equal(t, 8085, cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Environment)
	assert.Equal(t, "bakeflow_fulfillment", cfg.Database.Database)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 7, cfg.Fulfillment.ExpiryWarningDays)
	assert.Equal(t, 5*time.Minute, cfg.Fulfillment.SessionTTL)
	assert.Equal(t, 80, cfg.Fulfillment.AllocationThresholdPct)
	assert.Equal(t, 25.0, cfg.Fulfillment.MaxBoxWeightKg)
}

func TestLoad_EnvOverride(t *testing.T) {
	os.Setenv("BAKEFLOW_SERVER_PORT", "9090")
	os.Setenv("BAKEFLOW_FULFILLMENT_EXPIRY_WARNING_DAYS", "14")
	defer os.Unsetenv("BAKEFLOW_SERVER_PORT")
	defer os.Unsetenv("BAKEFLOW_FULFILLMENT_EXPIRY_WARNING_DAYS")

	cfg, err := Load("fulfillment-service")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 14, cfg.Fulfillment.ExpiryWarningDays)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("from individual fields", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "db.internal",
			Port:     5432,
			User:     "bakeflow",
			Password: "secret",
			Database: "bakeflow_fulfillment",
			SSLMode:  "require",
		}
		assert.Equal(t,
			"host=db.internal port=5432 user=bakeflow password=secret dbname=bakeflow_fulfillment sslmode=require",
			cfg.DSN())
	})

	t.Run("URL takes precedence", func(t *testing.T) {
		cfg := DatabaseConfig{
			URL:  "postgres://u:p@urlhost:5433/urldb?sslmode=disable",
			Host: "ignored",
		}
		assert.Contains(t, cfg.DSN(), "host=urlhost")
		assert.Contains(t, cfg.DSN(), "dbname=urldb")
	})
}

func TestDatabaseConfig_Validate(t *testing.T) {
	t.Run("localhost rejected in production", func(t *testing.T) {
		cfg := DatabaseConfig{Host: "localhost"}
		err := cfg.Validate(EnvProduction)
		require.Error(t, err)
	})

	t.Run("localhost allowed in development", func(t *testing.T) {
		cfg := DatabaseConfig{Host: "localhost"}
		assert.NoError(t, cfg.Validate(EnvDevelopment))
	})

	t.Run("URL satisfies production", func(t *testing.T) {
		cfg := DatabaseConfig{URL: "postgres://u:p@db.prod:5432/fulfillment"}
		assert.NoError(t, cfg.Validate(EnvProduction))
	})
}

func TestParseDatabaseURL(t *testing.T) {
	parsed, err := ParseDatabaseURL("postgresql://bakeflow:pw@db:6543/fulfillment?sslmode=require")
	require.NoError(t, err)

	assert.Equal(t, "db", parsed.Host)
	assert.Equal(t, 6543, parsed.Port)
	assert.Equal(t, "bakeflow", parsed.User)
	assert.Equal(t, "pw", parsed.Password)
	assert.Equal(t, "fulfillment", parsed.Database)
	assert.Equal(t, "require", parsed.SSLMode)
}

func TestParseDatabaseURL_Invalid(t *testing.T) {
	_, err := ParseDatabaseURL("")
	require.Error(t, err)

	_, err = ParseDatabaseURL("mysql://u:p@host/db")
	require.Error(t, err)
}
