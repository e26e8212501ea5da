package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeExposure()
	c.normalizeBlend()
	c.normalizeTools()
	c.normalizeRemote()
	c.Edit.ProfileKey = strings.TrimSpace(c.Edit.ProfileKey)
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeExposure() {
	c.Exposure.Strategy = strings.ToLower(strings.TrimSpace(c.Exposure.Strategy))
	if c.Exposure.Strategy == "" {
		c.Exposure.Strategy = defaultStrategy
	}
	c.Exposure.CustomField = strings.TrimSpace(c.Exposure.CustomField)
	// Ambient values are compared verbatim against extracted EXIF values, so
	// only surrounding whitespace is removed.
	c.Exposure.AmbientValue = strings.TrimSpace(c.Exposure.AmbientValue)
}

func (c *Config) normalizeBlend() {
	c.Blend.OutputPrefix = strings.TrimSpace(c.Blend.OutputPrefix)
	if c.Blend.OutputPrefix == "" {
		c.Blend.OutputPrefix = defaultOutputPrefix
	}
	if c.Blend.Gamma == 0 {
		c.Blend.Gamma = defaultGamma
	}
	if c.Blend.Quality == 0 {
		c.Blend.Quality = defaultQuality
	}
}

func (c *Config) normalizeTools() {
	c.Tools.ExifTool = strings.TrimSpace(c.Tools.ExifTool)
	if c.Tools.ExifTool == "" {
		c.Tools.ExifTool = defaultExifTool
	}
	c.Tools.Magick = strings.TrimSpace(c.Tools.Magick)
	if c.Tools.Magick == "" {
		c.Tools.Magick = defaultMagick
	}
}

func (c *Config) normalizeRemote() {
	c.Remote.BaseURL = strings.TrimRight(strings.TrimSpace(c.Remote.BaseURL), "/")
	if c.Remote.BaseURL == "" {
		c.Remote.BaseURL = defaultRemoteBaseURL
	}
	c.Remote.APIKey = strings.TrimSpace(c.Remote.APIKey)
	if c.Remote.APIKey == "" {
		if value, ok := os.LookupEnv(APIKeyEnv); ok {
			c.Remote.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Remote.TimeoutSeconds <= 0 {
		c.Remote.TimeoutSeconds = defaultRemoteTimeout
	}
	if c.Remote.RetryMaxAttempts <= 0 {
		c.Remote.RetryMaxAttempts = defaultRetryMaxAttempts
	}
	if c.Remote.RetryBackoffSeconds <= 0 {
		c.Remote.RetryBackoffSeconds = defaultRetryBackoffSeconds
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.PollIntervalSeconds <= 0 {
		c.Workflow.PollIntervalSeconds = defaultPollIntervalSeconds
	}
	if c.Workflow.PollMaxAttempts <= 0 {
		c.Workflow.PollMaxAttempts = defaultPollMaxAttempts
	}
	if c.Workflow.TransferWorkers <= 0 {
		c.Workflow.TransferWorkers = defaultTransferWorkers
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	switch c.Logging.Level {
	case "":
		c.Logging.Level = defaultLogLevel
	case "warning":
		c.Logging.Level = "warn"
	}
}
