package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("RELAY_CONSUMER", "worker-1")
	t.Setenv("RELAY_ENCRYPTION_KEY", "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "relay-workers", cfg.Worker.Group)
	assert.Equal(t, 10, cfg.Worker.ReadCount)
	assert.Equal(t, 5*time.Minute, cfg.Worker.DedupWindow)
	assert.Equal(t, 1000, cfg.Worker.DedupMaxMessages)
	assert.Equal(t, 500, cfg.Worker.DedupFallbackLimit)

	assert.Equal(t, 50, cfg.Recovery.MaxClaimCount)
	assert.Equal(t, 100, cfg.Recovery.RecoveryLimit)
	assert.Equal(t, time.Minute, cfg.Recovery.MinIdleTime)
	assert.Equal(t, 24*time.Hour, cfg.Recovery.OrphanMaxAge)

	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Retry.BaseDelay)
}

func TestLoad_BatchLimitOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RELAY_MAX_CLAIM_COUNT", "25")
	t.Setenv("RELAY_RECOVERY_LIMIT", "200")
	t.Setenv("RELAY_DEDUP_MAX_MESSAGES", "2000")
	t.Setenv("RELAY_DEDUP_FALLBACK_LIMIT", "250")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Recovery.MaxClaimCount)
	assert.Equal(t, 200, cfg.Recovery.RecoveryLimit)
	assert.Equal(t, 2000, cfg.Worker.DedupMaxMessages)
	assert.Equal(t, 250, cfg.Worker.DedupFallbackLimit)
}

func TestLoad_RequiredVariables(t *testing.T) {
	tests := []struct {
		name string
		omit string
	}{
		{name: "Missing password", omit: "DB_PASSWORD"},
		{name: "Missing consumer", omit: "RELAY_CONSUMER"},
		{name: "Missing encryption key", omit: "RELAY_ENCRYPTION_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.omit, "")

			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoad_SQLiteNeedsNoPassword(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DB_PASSWORD", "")
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DB_NAME", "/tmp/relay.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/relay.db", cfg.Database.GetDSN())
}

func TestGetDSN(t *testing.T) {
	tests := []struct {
		name     string
		driver   string
		expected string
	}{
		{
			name:     "MySQL",
			driver:   "mysql",
			expected: "relay:secret@tcp(db.internal:3306)/relay?parseTime=true",
		},
		{
			name:     "Postgres",
			driver:   "postgres",
			expected: "host=db.internal port=3306 user=relay password=secret dbname=relay sslmode=disable",
		},
		{
			name:     "Unknown driver",
			driver:   "oracle",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dbCfg := DatabaseConfig{
				Driver:   tt.driver,
				Host:     "db.internal",
				Port:     3306,
				User:     "relay",
				Password: "secret",
				Database: "relay",
			}
			assert.Equal(t, tt.expected, dbCfg.GetDSN())
		})
	}
}
