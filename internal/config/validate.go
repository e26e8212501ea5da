package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"flambient/internal/exposure"
)

var (
	validateOnce sync.Once
	structValid  *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		structValid = validator.New(validator.WithRequiredStructEnabled())
		structValid.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("toml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return structValid
}

// Validate ensures the configuration is usable. Field-level rules come from the
// validate struct tags; relationships between fields are checked afterwards.
func (c *Config) Validate() error {
	if err := structValidator().Struct(c); err != nil {
		return formatValidationErrors(err)
	}
	if err := c.validateExposure(); err != nil {
		return err
	}
	if err := c.validateBlend(); err != nil {
		return err
	}
	return nil
}

// RequireRemote reports whether the remote API can be used with this config.
func (c *Config) RequireRemote() error {
	if strings.TrimSpace(c.Remote.APIKey) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/flambient/config.toml"
		}
		return fmt.Errorf("remote.api_key is required. Set %s (or add it to .env) or edit %s (create with 'flambient config init')", APIKeyEnv, defaultPath)
	}
	return nil
}

func (c *Config) validateExposure() error {
	if _, err := exposure.ParseStrategy(c.Exposure.Strategy, c.Exposure.CustomField); err != nil {
		return fmt.Errorf("exposure.strategy: %w", err)
	}
	return nil
}

func (c *Config) validateBlend() error {
	if c.Blend.LevelLow >= c.Blend.LevelHigh {
		return errors.New("blend.level_low must be less than blend.level_high")
	}
	return nil
}

func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("validate config: %w", err)
	}
	messages := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		key := strings.TrimPrefix(fieldErr.Namespace(), "Config.")
		if fieldErr.Param() != "" {
			messages = append(messages, fmt.Sprintf("%s fails %s=%s (got %v)", key, fieldErr.Tag(), fieldErr.Param(), fieldErr.Value()))
		} else {
			messages = append(messages, fmt.Sprintf("%s fails %s", key, fieldErr.Tag()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(messages, "; "))
}
