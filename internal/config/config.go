// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkordes/tripbook/backend/internal/images"
)

// Config holds all configuration values for the API server and the CLI.
// Values are populated by Load from environment variables.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Defaults to "8080".
	Port string

	// LogLevel controls the minimum log level. Defaults to "info".
	// Valid values: debug, info, warn, error.
	LogLevel string

	// CORSOrigins is the list of allowed cross-origin request origins.
	// Defaults to ["http://localhost:5173"].
	CORSOrigins []string

	// LocalDBPath is the SQLite file backing the entity store. Required.
	LocalDBPath string

	// RemoteDatabaseURL is the Postgres connection string of the cloud
	// store. Replication is off when it is empty.
	RemoteDatabaseURL string

	// SyncAccountID names the account whose records are replicated.
	// Required when RemoteDatabaseURL is set.
	SyncAccountID string

	// SyncPullInterval is how often remote changes are pulled. Defaults to 30s.
	SyncPullInterval time.Duration

	// MaxBodyBytes caps request bodies. Defaults to 10 MiB so inline images fit.
	MaxBodyBytes int64

	// Images selects and configures the image side channel.
	Images images.Config
}

// ReplicationEnabled reports whether a remote store is configured.
func (c Config) ReplicationEnabled() bool {
	return c.RemoteDatabaseURL != ""
}

// Load reads configuration from environment variables and returns a Config.
// Returns an error listing any required variables that are not set, or the
// first variable that does not parse.
func Load() (Config, error) {
	cfg := Config{
		Port:              getEnv("PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		CORSOrigins:       splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		LocalDBPath:       os.Getenv("LOCAL_DB_PATH"),
		RemoteDatabaseURL: os.Getenv("REMOTE_DATABASE_URL"),
		SyncAccountID:     os.Getenv("SYNC_ACCOUNT_ID"),
		Images: images.Config{
			Driver: images.Driver(getEnv("IMAGE_DRIVER", string(images.DriverDisk))),
			Dir:    getEnv("IMAGE_DIR", "data/images"),
			S3: images.S3Config{
				Bucket:          os.Getenv("IMAGE_S3_BUCKET"),
				Region:          os.Getenv("IMAGE_S3_REGION"),
				Endpoint:        os.Getenv("IMAGE_S3_ENDPOINT"),
				Prefix:          os.Getenv("IMAGE_S3_PREFIX"),
				AccessKeyID:     os.Getenv("IMAGE_S3_ACCESS_KEY_ID"),
				SecretAccessKey: os.Getenv("IMAGE_S3_SECRET_ACCESS_KEY"),
			},
		},
	}

	var err error
	if cfg.SyncPullInterval, err = time.ParseDuration(getEnv("SYNC_PULL_INTERVAL", "30s")); err != nil {
		return Config{}, fmt.Errorf("SYNC_PULL_INTERVAL: %w", err)
	}
	if cfg.MaxBodyBytes, err = strconv.ParseInt(getEnv("MAX_BODY_BYTES", "10485760"), 10, 64); err != nil {
		return Config{}, fmt.Errorf("MAX_BODY_BYTES: %w", err)
	}
	if cfg.Images.CacheBytes, err = strconv.ParseUint(getEnv("IMAGE_CACHE_BYTES", "33554432"), 10, 64); err != nil {
		return Config{}, fmt.Errorf("IMAGE_CACHE_BYTES: %w", err)
	}
	if cfg.Images.S3.PathStyle, err = strconv.ParseBool(getEnv("IMAGE_S3_PATH_STYLE", "false")); err != nil {
		return Config{}, fmt.Errorf("IMAGE_S3_PATH_STYLE: %w", err)
	}

	var missing []string
	if cfg.LocalDBPath == "" {
		missing = append(missing, "LOCAL_DB_PATH")
	}
	if cfg.ReplicationEnabled() && cfg.SyncAccountID == "" {
		missing = append(missing, "SYNC_ACCOUNT_ID")
	}
	if cfg.Images.Driver == images.DriverS3 && cfg.Images.S3.Bucket == "" {
		missing = append(missing, "IMAGE_S3_BUCKET")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
