// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port   int    `env:"JAM_PORT, default=8080" json:"port"`
	APIKey string `env:"JAM_API_KEY" json:"-"` // Masked in JSON

	// Data layout. Relative paths resolve against DataDir.
	DataDir   string `env:"JAM_DATA_DIR, default=." json:"data_dir"`
	DBPath    string `env:"JAM_DB_PATH, default=jam_sessions.db" json:"db_path"`
	InputDir  string `env:"JAM_INPUT_DIR, default=recordings" json:"input_dir"`
	OutputDir string `env:"JAM_OUTPUT_DIR, default=tracks" json:"output_dir"`

	// Detection defaults
	ThresholdDB    float64 `env:"JAM_THRESHOLD_DB, default=-30" json:"threshold_db"`
	MinDurationSec int     `env:"JAM_MIN_DURATION_SEC, default=120" json:"min_duration_sec"`

	// Upload settings
	MaxUploadMB int `env:"JAM_MAX_UPLOAD_MB, default=500" json:"max_upload_mb"`

	// CORS settings
	CORSOrigins []string `env:"JAM_CORS_ORIGINS, default=http://localhost:5173" json:"cors_origins"`

	// Optional S3-compatible storage (AWS S3 or Cloudflare R2)
	S3Bucket           string `env:"JAM_S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"JAM_S3_REGION, default=auto" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"JAM_S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"JAM_LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"JAM_LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if remote storage configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	abs, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve data dir: %w", err)
	}
	cfg.DataDir = abs

	return cfg, nil
}

// ResolvePath resolves a stored path to absolute. Absolute paths are
// returned as-is; everything else is anchored at DataDir.
func (c *Config) ResolvePath(stored string) string {
	if filepath.IsAbs(stored) {
		return stored
	}
	return filepath.Join(c.DataDir, stored)
}

// MakeRelative converts an absolute path to a DataDir-relative string so
// stored references survive a data-dir move. Paths outside DataDir are
// returned unchanged.
func (c *Config) MakeRelative(absolute string) string {
	rel, err := filepath.Rel(c.DataDir, absolute)
	if err != nil || strings.HasPrefix(rel, "..") {
		return absolute
	}
	return rel
}

// OutputDirForSource returns the per-session output subdirectory for a
// source file stem.
func (c *Config) OutputDirForSource(stem string) string {
	return filepath.Join(c.ResolvePath(c.OutputDir), stem)
}

// EnsureDirectories creates the input and output directories if needed.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.ResolvePath(c.InputDir), c.ResolvePath(c.OutputDir)} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
