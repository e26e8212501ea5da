package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains state and log directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir" validate:"required"`
	LogDir   string `toml:"log_dir"`
}

// Exposure selects how exposures are split into ambient and flash frames.
type Exposure struct {
	Strategy     string `toml:"strategy" validate:"required"`
	CustomField  string `toml:"custom_field"`
	AmbientValue string `toml:"ambient_value"`
}

// Blend carries the luminosity mask and output parameters for blend recipes.
type Blend struct {
	LevelLow     float64 `toml:"level_low" validate:"gte=0,lte=100"`
	LevelHigh    float64 `toml:"level_high" validate:"gte=0,lte=100"`
	Gamma        float64 `toml:"gamma" validate:"gt=0,lte=10"`
	OutputPrefix string  `toml:"output_prefix" validate:"required,excludesall=/\\"`
	Quality      int     `toml:"quality" validate:"gte=1,lte=100"`
	Render       bool    `toml:"render"`
}

// Tools names the external binaries invoked by the pipeline.
type Tools struct {
	ExifTool string `toml:"exiftool" validate:"required"`
	Magick   string `toml:"magick" validate:"required"`
}

// Remote contains connection settings for the photo-editing API.
type Remote struct {
	BaseURL             string `toml:"base_url" validate:"required,url"`
	APIKey              string `toml:"api_key"`
	TimeoutSeconds      int    `toml:"timeout_seconds" validate:"gt=0"`
	RetryMaxAttempts    int    `toml:"retry_max_attempts" validate:"gte=1,lte=10"`
	RetryBackoffSeconds int    `toml:"retry_backoff_seconds" validate:"gt=0"`
}

// Edit holds the default editing profile and options for new jobs.
type Edit struct {
	ProfileKey            string `toml:"profile_key"`
	SkyReplacement        bool   `toml:"sky_replacement"`
	WindowPull            bool   `toml:"window_pull"`
	PerspectiveCorrection bool   `toml:"perspective_correction"`
}

// Workflow contains polling and transfer settings for remote jobs.
type Workflow struct {
	PollIntervalSeconds int `toml:"poll_interval_seconds" validate:"gt=0"`
	PollMaxAttempts     int `toml:"poll_max_attempts" validate:"gt=0"`
	TransferWorkers     int `toml:"transfer_workers" validate:"gte=1,lte=8"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format" validate:"oneof=console json"`
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
}

// Config encapsulates all configuration values for flambient.
//
// Configuration sections by subsystem:
//   - Paths: job database, lock files, and logs
//   - Exposure: classification strategy and ambient value
//   - Blend: luminosity mask levels and output naming
//   - Tools: exiftool and ImageMagick binaries
//   - Remote: photo-editing API connection
//   - Edit: default editing profile and options
//   - Workflow: polling cadence and transfer concurrency
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Exposure Exposure `toml:"exposure"`
	Blend    Blend    `toml:"blend"`
	Tools    Tools    `toml:"tools"`
	Remote   Remote   `toml:"remote"`
	Edit     Edit     `toml:"edit"`
	Workflow Workflow `toml:"workflow"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/flambient/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A .env file next to the config file or in the
// working directory is loaded first so secrets can stay out of the TOML file.
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
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadDotEnv(filepath.Dir(resolvedPath)); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv populates unset environment variables from .env files. Existing
// variables always win, missing files are ignored, and a malformed file is an
// error.
func loadDotEnv(configDir string) error {
	candidates := []string{".env"}
	if configDir != "" {
		candidates = append(candidates, filepath.Join(configDir, ".env"))
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err != nil || info.IsDir() {
			continue
		}
		if err := godotenv.Load(candidate); err != nil {
			return fmt.Errorf("load %s: %w", candidate, err)
		}
	}
	return nil
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

	projectPath, err := filepath.Abs("flambient.toml")
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

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// JobsDBPath returns the location of the SQLite job database.
func (c *Config) JobsDBPath() string {
	return filepath.Join(c.Paths.StateDir, "jobs.db")
}

// LockDir returns the directory holding per-job lock files.
func (c *Config) LockDir() string {
	return filepath.Join(c.Paths.StateDir, "locks")
}

// PollInterval returns the remote status polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.PollIntervalSeconds) * time.Second
}

// RemoteTimeout returns the per-request timeout for the editing API.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}

// RetryBackoff returns the initial retry delay for transient API failures.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Remote.RetryBackoffSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
// An existing file is left untouched.
func CreateSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
