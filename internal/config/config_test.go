package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8010, cfg.HTTPPort)
	assert.Equal(t, StorePostgres, cfg.StoreDriver)
	assert.Equal(t, 5, cfg.LockoutThreshold)
	assert.Equal(t, 30*time.Minute, cfg.LockoutDuration)
	assert.Equal(t, 15*time.Minute, cfg.JWTAccessExpiry)
	assert.Equal(t, 168*time.Hour, cfg.JWTRefreshExpiry)
	assert.Equal(t, cfg.JWTAccessSecret, cfg.RefreshSecret())
	assert.Positive(t, cfg.HashWorkers())
	assert.False(t, cfg.KafkaEnabled)
	assert.False(t, cfg.RedisEnabled)
}

func TestLoad_Production_RejectsDefaultSecret(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT": "production",
		"JWT_SECRET":  devJWTSecret,
	})

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET must be explicitly set")
}

func TestLoad_Production_RejectsShortSecrets(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT": "production",
		"JWT_SECRET":  "too-short",
	})
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")

	setEnvs(t, map[string]string{
		"JWT_SECRET":         "a-very-long-production-secret-value-0001",
		"JWT_REFRESH_SECRET": "short",
	})
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_REFRESH_SECRET")
}

func TestLoad_Production_AcceptsStrongSecrets(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT":        "production",
		"JWT_SECRET":         "a-very-long-production-secret-value-0001",
		"JWT_REFRESH_SECRET": "another-very-long-refresh-secret-value-02",
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "another-very-long-refresh-secret-value-02", cfg.RefreshSecret())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"port", map[string]string{"AUTH_HTTP_PORT": "70000"}, "invalid HTTP port"},
		{"driver", map[string]string{"AUTH_STORE_DRIVER": "mysql"}, "AUTH_STORE_DRIVER"},
		{"threshold", map[string]string{"LOCKOUT_THRESHOLD": "0"}, "LOCKOUT_THRESHOLD"},
		{"duration", map[string]string{"LOCKOUT_DURATION": "0s"}, "LOCKOUT_DURATION"},
		{"bcrypt", map[string]string{"BCRYPT_COST": "2"}, "BCRYPT_COST"},
		{"throttle", map[string]string{"REDIS_ENABLED": "true", "LOGIN_THROTTLE_MAX_ATTEMPTS": "0"}, "login throttle"},
		{"unparsable", map[string]string{"LOCKOUT_DURATION": "half an hour"}, "load auth config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnvs(t, tt.env)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("AUTH_STORE_DRIVER=sqlite\nAUTH_SQLITE_PATH=/tmp/auth-test.db\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("AUTH_STORE_DRIVER")
		_ = os.Unsetenv("AUTH_SQLITE_PATH")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StoreSQLite, cfg.StoreDriver)
	assert.Equal(t, "/tmp/auth-test.db", cfg.SQLitePath)
}

func TestConfig_Postgres(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	pg := cfg.Postgres()
	assert.Equal(t, "logistics_auth", pg.DBName)
	assert.Equal(t, time.Hour, pg.MaxConnLifetime)
	assert.Contains(t, pg.DSN(), "postgres://logistics:")
}
