package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains local directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
}

// S3 contains object store connection and bucket configuration.
type S3 struct {
	Endpoint     string   `toml:"endpoint"`
	Region       string   `toml:"region"`
	AccessKey    string   `toml:"access_key"`
	SecretKey    string   `toml:"secret_key"`
	UploadBucket string   `toml:"upload_bucket"`
	HLSBucket    string   `toml:"hls_bucket"`
	UsePathStyle bool     `toml:"use_path_style"`
	CORSOrigins  []string `toml:"cors_origins"`
}

// Redis contains the shared ephemeral state store connection settings. The
// same instance backs heartbeats, worker locks, the in-flight counter, the
// dedup cache, and the task queue broker.
type Redis struct {
	URL string `toml:"url"`
}

// Database contains the durable catalog connection settings.
type Database struct {
	DSN          string `toml:"dsn"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// Worker contains per-worker-process settings. Name doubles as the task
// queue routing key and the heartbeat/lock key scope.
type Worker struct {
	Name                     string `toml:"name"`
	HeartbeatIntervalSeconds int    `toml:"heartbeat_interval_seconds"`
	HeartbeatTTLSeconds      int    `toml:"heartbeat_ttl_seconds"`
	LockTTLSeconds           int    `toml:"lock_ttl_seconds"`
}

// Dispatcher contains upload watcher timing and assignment settings.
type Dispatcher struct {
	PollIntervalSeconds  int    `toml:"poll_interval_seconds"`
	ErrorCooldownSeconds int    `toml:"error_cooldown_seconds"`
	AssignRetries        int    `toml:"assign_retries"`
	AssignBackoffSeconds int    `toml:"assign_backoff_seconds"`
	UploadPrefix         string `toml:"upload_prefix"`
}

// Queue contains task queue retry settings for lock contention.
type Queue struct {
	MaxRetries        int `toml:"max_retries"`
	RetryDelaySeconds int `toml:"retry_delay_seconds"`
}

// API contains the query API bind address.
type API struct {
	Bind     string `toml:"bind"`
	PageSize int    `toml:"page_size"`
}

// Logging contains log output configuration.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for hlsfarm.
type Config struct {
	Paths      Paths      `toml:"paths"`
	S3         S3         `toml:"s3"`
	Redis      Redis      `toml:"redis"`
	Database   Database   `toml:"database"`
	Worker     Worker     `toml:"worker"`
	Dispatcher Dispatcher `toml:"dispatcher"`
	Queue      Queue      `toml:"queue"`
	API        API        `toml:"api"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/hlsfarm/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and environment overrides applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("hlsfarm.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the local directories worker processes need.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// WriteSample writes the embedded sample configuration to the given path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			trimmed = home
		} else {
			trimmed = filepath.Join(home, trimmed[2:])
		}
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", path, err)
	}
	return abs, nil
}
