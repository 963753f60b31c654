package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "/ws", cfg.WSPath)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.False(t, cfg.RequiresAuth)
	assert.False(t, cfg.ExposeErrorDetails)
	assert.Equal(t, "deny", cfg.DefaultPermission)
	assert.Equal(t, int64(30_000), cfg.HeartbeatIntervalMs)
	assert.Equal(t, int64(60_000), cfg.HeartbeatTimeoutMs)
	assert.Equal(t, 10, cfg.MaxSubscriptionsPerConnection)
	assert.Equal(t, 100, cfg.RateLimitMaxRequests)
	assert.Equal(t, int64(60_000), cfg.RateLimitWindowMs)
	assert.Equal(t, int64(5_000), cfg.GracePeriodMs)
	assert.Equal(t, "", cfg.BootstrapSecret)
	assert.Contains(t, cfg.PostgresURL, "localhost:5432")
	assert.Equal(t, "", cfg.RedisURL)
	assert.Equal(t, "", cfg.ClickHouseURL)
	assert.Equal(t, "", cfg.NATSURL)
	assert.False(t, cfg.S3UseSSL)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_CustomEnvVars(t *testing.T) {
	setEnvs(t, map[string]string{
		"LISTEN_ADDR":                      ":9090",
		"WS_PATH":                          "/gateway",
		"ALLOWED_ORIGINS":                  "https://a.example, https://b.example",
		"REQUIRES_AUTH":                    "true",
		"EXPOSE_ERROR_DETAILS":             "true",
		"DEFAULT_PERMISSION":               "allow",
		"HEARTBEAT_INTERVAL_MS":            "15000",
		"HEARTBEAT_TIMEOUT_MS":             "45000",
		"MAX_SUBSCRIPTIONS_PER_CONNECTION": "25",
		"RATE_LIMIT_MAX_REQUESTS":          "500",
		"RATE_LIMIT_WINDOW_MS":             "1000",
		"GRACE_PERIOD_MS":                  "9000",
		"BOOTSTRAP_SECRET":                 "s3cret",
		"POSTGRES_URL":                     "postgres://custom:custom@db:5432/app",
		"CLICKHOUSE_URL":                   "clickhouse://ch:9000/logs",
		"NATS_URL":                         "nats://nats:4222",
		"REDIS_URL":                        "redis://redis:6379/1",
		"S3_ENDPOINT":                      "https://s3.amazonaws.com",
		"S3_ACCESS_KEY":                    "AKIA123",
		"S3_SECRET_KEY":                    "secret123",
		"S3_BUCKET":                        "prod-logs",
		"S3_USE_SSL":                       "true",
		"ENVIRONMENT":                      "production",
		"LOG_LEVEL":                        "debug",
	})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "/gateway", cfg.WSPath)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.True(t, cfg.RequiresAuth)
	assert.True(t, cfg.ExposeErrorDetails)
	assert.Equal(t, "allow", cfg.DefaultPermission)
	assert.Equal(t, int64(15_000), cfg.HeartbeatIntervalMs)
	assert.Equal(t, int64(45_000), cfg.HeartbeatTimeoutMs)
	assert.Equal(t, 25, cfg.MaxSubscriptionsPerConnection)
	assert.Equal(t, 500, cfg.RateLimitMaxRequests)
	assert.Equal(t, int64(1_000), cfg.RateLimitWindowMs)
	assert.Equal(t, int64(9_000), cfg.GracePeriodMs)
	assert.Equal(t, "s3cret", cfg.BootstrapSecret)
	assert.Equal(t, "postgres://custom:custom@db:5432/app", cfg.PostgresURL)
	assert.Equal(t, "clickhouse://ch:9000/logs", cfg.ClickHouseURL)
	assert.Equal(t, "nats://nats:4222", cfg.NATSURL)
	assert.Equal(t, "redis://redis:6379/1", cfg.RedisURL)
	assert.Equal(t, "https://s3.amazonaws.com", cfg.S3Endpoint)
	assert.Equal(t, "AKIA123", cfg.S3AccessKey)
	assert.Equal(t, "secret123", cfg.S3SecretKey)
	assert.Equal(t, "prod-logs", cfg.S3Bucket)
	assert.True(t, cfg.S3UseSSL)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Validate_MissingPostgresURL(t *testing.T) {
	cfg := &Config{PostgresURL: "", DefaultPermission: "deny"}
	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_URL is required")
}

func TestLoad_Validate_BadDefaultPermission(t *testing.T) {
	cfg := &Config{PostgresURL: "postgres://localhost:5432/db", DefaultPermission: "maybe"}
	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEFAULT_PERMISSION")
}

func TestLoad_Validate_AllPresent(t *testing.T) {
	cfg := &Config{PostgresURL: "postgres://localhost:5432/db", DefaultPermission: "allow"}
	err := cfg.validate()
	require.NoError(t, err)
}

func TestIsDevelopment(t *testing.T) {
	tests := []struct {
		env  string
		want bool
	}{
		{"development", true},
		{"staging", false},
		{"production", false},
		{"", false},
		{"dev", false},
	}

	for _, tc := range tests {
		t.Run(tc.env, func(t *testing.T) {
			cfg := &Config{Environment: tc.env}
			assert.Equal(t, tc.want, cfg.IsDevelopment())
		})
	}
}

func TestGetEnv(t *testing.T) {
	t.Run("returns env value when set", func(t *testing.T) {
		t.Setenv("TEST_GET_ENV_KEY", "custom_value")
		assert.Equal(t, "custom_value", getEnv("TEST_GET_ENV_KEY", "fallback"))
	})

	t.Run("returns fallback when not set", func(t *testing.T) {
		os.Unsetenv("TEST_GET_ENV_KEY_MISSING")
		assert.Equal(t, "fallback", getEnv("TEST_GET_ENV_KEY_MISSING", "fallback"))
	})
}

func TestGetEnvInt(t *testing.T) {
	t.Run("returns parsed int when valid", func(t *testing.T) {
		t.Setenv("TEST_INT_KEY", "42")
		assert.Equal(t, 42, getEnvInt("TEST_INT_KEY", 99))
	})

	t.Run("returns fallback when not set", func(t *testing.T) {
		os.Unsetenv("TEST_INT_KEY_MISSING")
		assert.Equal(t, 99, getEnvInt("TEST_INT_KEY_MISSING", 99))
	})

	t.Run("returns fallback when invalid int", func(t *testing.T) {
		t.Setenv("TEST_INT_KEY_BAD", "not-a-number")
		assert.Equal(t, 99, getEnvInt("TEST_INT_KEY_BAD", 99))
	})
}

func TestGetEnvFloat(t *testing.T) {
	t.Run("returns parsed float when valid", func(t *testing.T) {
		t.Setenv("TEST_FLOAT_KEY", "0.5")
		assert.Equal(t, 0.5, getEnvFloat("TEST_FLOAT_KEY", 0.9))
	})

	t.Run("returns fallback when invalid float", func(t *testing.T) {
		t.Setenv("TEST_FLOAT_KEY_BAD", "nope")
		assert.Equal(t, 0.9, getEnvFloat("TEST_FLOAT_KEY_BAD", 0.9))
	})
}

func TestGetEnvBool(t *testing.T) {
	t.Run("returns true when set to true", func(t *testing.T) {
		t.Setenv("TEST_BOOL_KEY", "true")
		assert.True(t, getEnvBool("TEST_BOOL_KEY", false))
	})

	t.Run("returns false when set to false", func(t *testing.T) {
		t.Setenv("TEST_BOOL_KEY", "false")
		assert.False(t, getEnvBool("TEST_BOOL_KEY", true))
	})

	t.Run("returns fallback when not set", func(t *testing.T) {
		os.Unsetenv("TEST_BOOL_KEY_MISSING")
		assert.True(t, getEnvBool("TEST_BOOL_KEY_MISSING", true))
	})

	t.Run("returns fallback when invalid bool", func(t *testing.T) {
		t.Setenv("TEST_BOOL_KEY_BAD", "maybe")
		assert.False(t, getEnvBool("TEST_BOOL_KEY_BAD", false))
	})
}

func TestGetEnvList(t *testing.T) {
	t.Run("splits and trims comma list", func(t *testing.T) {
		t.Setenv("TEST_LIST_KEY", "a, b ,c")
		assert.Equal(t, []string{"a", "b", "c"}, getEnvList("TEST_LIST_KEY", []string{"z"}))
	})

	t.Run("returns fallback when not set", func(t *testing.T) {
		os.Unsetenv("TEST_LIST_KEY_MISSING")
		assert.Equal(t, []string{"z"}, getEnvList("TEST_LIST_KEY_MISSING", []string{"z"}))
	})
}

// setEnvs sets multiple environment variables for the duration of the test.
func setEnvs(t *testing.T, vars map[string]string) {
	t.Helper()
	for k, v := range vars {
		t.Setenv(k, v)
	}
}
