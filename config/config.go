// Package config loads the runtime configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the process configuration, read once at cold start.
type Config struct {
	LogLevel          string        `mapstructure:"log_level"`
	DetectContentType bool          `mapstructure:"detect_content_type"`
	ResponseTimeout   time.Duration `mapstructure:"response_timeout"`
	S3                S3Config      `mapstructure:",squash"`
}

// S3Config selects the S3 endpoint. Everything is optional on AWS.
type S3Config struct {
	Endpoint        string `mapstructure:"s3_endpoint"`
	Region          string `mapstructure:"s3_region"`
	ForcePathStyle  bool   `mapstructure:"s3_force_path_style"`
	AccessKeyID     string `mapstructure:"s3_access_key_id"`
	SecretAccessKey string `mapstructure:"s3_secret_access_key"`
	MaxAttempts     int    `mapstructure:"s3_max_attempts"`
}

var defaults = map[string]any{
	"log_level":            "INFO",
	"detect_content_type":  true,
	"response_timeout":     10 * time.Second,
	"s3_endpoint":          "",
	"s3_region":            "",
	"s3_force_path_style":  false,
	"s3_access_key_id":     "",
	"s3_secret_access_key": "",
	"s3_max_attempts":      0,
}

// Load reads the configuration from the environment. Variable names are the
// upper-case keys, e.g. LOG_LEVEL or S3_ENDPOINT.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
		// AutomaticEnv alone does not make keys visible to Unmarshal.
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}
	v.AutomaticEnv()
	// S3_REGION falls back to the region Lambda runs in.
	if err := v.BindEnv("s3_region", "S3_REGION", "AWS_REGION"); err != nil {
		return nil, fmt.Errorf("binding s3_region: %w", err)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects settings that would only fail later, mid-invocation.
func (c *Config) Validate() error {
	if c.ResponseTimeout < 0 {
		return fmt.Errorf("RESPONSE_TIMEOUT must not be negative, got %s", c.ResponseTimeout)
	}
	if (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
		return fmt.Errorf("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set together")
	}
	if c.S3.MaxAttempts < 0 {
		return fmt.Errorf("S3_MAX_ATTEMPTS must not be negative, got %d", c.S3.MaxAttempts)
	}
	return nil
}
