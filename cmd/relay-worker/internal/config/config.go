// Package config provides configuration management for the relay worker
// process. It loads settings from environment variables with sensible
// defaults, following 12-factor app principles.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the relay worker.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Worker   WorkerConfig
	Retry    RetryConfig
	Recovery RecoveryConfig
	NATS     NATSConfig
}

// ServerConfig holds the ops HTTP endpoint configuration.
type ServerConfig struct {
	Host string `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `envconfig:"SERVER_PORT" default:"8080"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver   string `envconfig:"DB_DRIVER" default:"mysql"` // mysql, postgres, sqlite3
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"3306"`
	User     string `envconfig:"DB_USER" default:"relay"`
	Password string `envconfig:"DB_PASSWORD"`
	Database string `envconfig:"DB_NAME" default:"relay"`
	Prefix   string `envconfig:"DB_PREFIX" default:"relay_"`
}

// WorkerConfig holds dispatch loop configuration.
type WorkerConfig struct {
	Group        string        `envconfig:"RELAY_GROUP" default:"relay-workers"`
	Consumer     string        `envconfig:"RELAY_CONSUMER"`
	ReadCount    int           `envconfig:"RELAY_READ_COUNT" default:"10"`
	BlockTimeout time.Duration `envconfig:"RELAY_BLOCK_TIMEOUT" default:"5s"`
	SendTimeout  time.Duration `envconfig:"RELAY_SEND_TIMEOUT" default:"30s"`
	// EncryptionKey is the hex-encoded 32-byte AES key sealing provider
	// credentials.
	EncryptionKey string `envconfig:"RELAY_ENCRYPTION_KEY"`
	// DedupWindow bounds the duplicate-suppression scan by wall clock;
	// DedupMaxMessages and DedupFallbackLimit bound it by entry count.
	DedupWindow        time.Duration `envconfig:"RELAY_DEDUP_WINDOW" default:"5m"`
	DedupMaxMessages   int           `envconfig:"RELAY_DEDUP_MAX_MESSAGES" default:"1000"`
	DedupFallbackLimit int           `envconfig:"RELAY_DEDUP_FALLBACK_LIMIT" default:"500"`
}

// RetryConfig holds the backoff policy knobs.
type RetryConfig struct {
	MaxAttempts int           `envconfig:"RELAY_MAX_ATTEMPTS" default:"5"`
	BaseDelay   time.Duration `envconfig:"RELAY_BASE_DELAY" default:"30s"`
	MaxDelay    time.Duration `envconfig:"RELAY_MAX_DELAY" default:"30m"`
}

// RecoveryConfig holds the recovery sweep schedule and thresholds.
type RecoveryConfig struct {
	ReclaimInterval   time.Duration `envconfig:"RELAY_RECLAIM_INTERVAL" default:"1m"`
	OrphanInterval    time.Duration `envconfig:"RELAY_ORPHAN_INTERVAL" default:"5m"`
	StuckInterval     time.Duration `envconfig:"RELAY_STUCK_INTERVAL" default:"5m"`
	MinIdleTime       time.Duration `envconfig:"RELAY_MIN_IDLE_TIME" default:"1m"`
	OrphanGracePeriod time.Duration `envconfig:"RELAY_ORPHAN_GRACE" default:"5m"`
	OrphanMaxAge      time.Duration `envconfig:"RELAY_ORPHAN_MAX_AGE" default:"24h"`
	ProcessingTimeout time.Duration `envconfig:"RELAY_PROCESSING_TIMEOUT" default:"10m"`
	// MaxClaimCount bounds one reclaim sweep; RecoveryLimit bounds one
	// orphan or stuck sweep.
	MaxClaimCount int `envconfig:"RELAY_MAX_CLAIM_COUNT" default:"50"`
	RecoveryLimit int `envconfig:"RELAY_RECOVERY_LIMIT" default:"100"`
}

// NATSConfig holds the optional status notification transport. Leave URL
// empty to disable NATS notifications.
type NATSConfig struct {
	URL           string `envconfig:"NATS_URL"`
	SubjectPrefix string `envconfig:"NATS_SUBJECT_PREFIX" default:"relay.status"`
	MaxReconnects int    `envconfig:"NATS_MAX_RECONNECTS" default:"10"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if cfg.Database.Driver != "sqlite3" && cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD environment variable is required")
	}
	if cfg.Worker.Consumer == "" {
		return nil, fmt.Errorf("RELAY_CONSUMER environment variable is required (unique per worker instance)")
	}
	if cfg.Worker.EncryptionKey == "" {
		return nil, fmt.Errorf("RELAY_ENCRYPTION_KEY environment variable is required")
	}

	return &cfg, nil
}

// GetDSN returns the database connection string based on driver.
func (c *DatabaseConfig) GetDSN() string {
	switch strings.ToLower(c.Driver) {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Database)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.User, c.Password, c.Database)
	case "sqlite3":
		return c.Database // SQLite uses file path as DSN
	default:
		return ""
	}
}
