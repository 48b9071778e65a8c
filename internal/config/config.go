// Package config loads rockhound configuration via viper: a
// rockhound.yaml in the data directory plus ROCKHOUND_* environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/rockhoundapp/rockhound/internal/ids"
)

// Config is the resolved runtime configuration.
type Config struct {
	// DataDir is the root for the database, photos and config file.
	DataDir string

	// DeviceID is the stable per-device identity used to key remote rows.
	DeviceID string

	// LogFile, when set, receives rotated log output in addition to stderr.
	LogFile string

	Anthropic struct {
		APIKey string
		Model  string
	}

	S3 struct {
		Region  string
		Bucket  string
		URLBase string
	}

	// RemoteDSN is the Postgres DSN of the remote authoritative store.
	RemoteDSN string

	Queue struct {
		MaxAttempts  int
		RetryBackoff time.Duration
		PollInterval time.Duration
	}
}

// DBPath returns the SQLite database file path.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "rockhound.db")
}

// PhotosDir returns the photo store directory.
func (c *Config) PhotosDir() string {
	return filepath.Join(c.DataDir, "photos")
}

// DefaultDataDir returns ~/.rockhound, or a relative fallback when the
// home directory cannot be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".rockhound"
	}
	return filepath.Join(home, ".rockhound")
}

// Load reads configuration from dataDir/rockhound.yaml and the
// environment. A missing config file is fine; defaults apply.
func Load(dataDir string) (*Config, error) {
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	v := viper.New()
	v.SetConfigName("rockhound")
	v.SetConfigType("yaml")
	v.AddConfigPath(dataDir)
	v.SetEnvPrefix("ROCKHOUND")
	v.AutomaticEnv()

	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("queue.max_attempts", 5)
	v.SetDefault("queue.retry_backoff", "30s")
	v.SetDefault("queue.poll_interval", "5s")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{DataDir: dataDir}
	cfg.DeviceID = v.GetString("device_id")
	cfg.LogFile = v.GetString("log_file")
	cfg.Anthropic.APIKey = v.GetString("anthropic.api_key")
	cfg.Anthropic.Model = v.GetString("anthropic.model")
	cfg.S3.Region = v.GetString("s3.region")
	cfg.S3.Bucket = v.GetString("s3.bucket")
	cfg.S3.URLBase = v.GetString("s3.url_base")
	cfg.RemoteDSN = v.GetString("remote_dsn")
	cfg.Queue.MaxAttempts = v.GetInt("queue.max_attempts")
	cfg.Queue.RetryBackoff = v.GetDuration("queue.retry_backoff")
	cfg.Queue.PollInterval = v.GetDuration("queue.poll_interval")

	return cfg, nil
}

// Init writes a fresh config file into dataDir with a generated device
// id, creating the directory as needed. Fails if the file already exists.
func Init(dataDir string) (*Config, error) {
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	path := filepath.Join(dataDir, "rockhound.yaml")
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("config already exists at %s", path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.Set("device_id", ids.New("dev"))
	v.Set("anthropic.model", "claude-sonnet-4-20250514")
	v.Set("queue.max_attempts", 5)
	v.Set("queue.retry_backoff", "30s")
	v.Set("queue.poll_interval", "5s")

	if err := v.WriteConfigAs(path); err != nil {
		return nil, fmt.Errorf("failed to write config: %w", err)
	}

	return Load(dataDir)
}
