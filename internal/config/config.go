// Package config loads agora settings from an optional YAML file and AGORA_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. AGORA_STORE_DRIVER.
const EnvPrefix = "AGORA"

// Config is the resolved application configuration.
type Config struct {
	Env       string          `mapstructure:"env"`
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Blob      BlobConfig      `mapstructure:"blob"`
	Manifests ManifestsConfig `mapstructure:"manifests"`
	Exports   ExportsConfig   `mapstructure:"exports"`

	// Organizations lists the organization IDs seeds are created for.
	Organizations []string `mapstructure:"organizations"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig selects the participatory space store.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// BlobConfig selects where export artifacts are written.
type BlobConfig struct {
	Driver string   `mapstructure:"driver"`
	Root   string   `mapstructure:"root"`
	S3     S3Config `mapstructure:"s3"`
}

// S3Config configures the S3 blob driver. Empty credentials fall back to the
// default AWS chain.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	PathStyle       bool   `mapstructure:"path_style"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// ManifestsConfig points at declarative space manifests.
type ManifestsConfig struct {
	Dir string `mapstructure:"dir"`
}

// ExportsConfig tunes the export worker.
type ExportsConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

var defaults = map[string]any{
	"env":                       "development",
	"log.level":                 "info",
	"log.format":                "text",
	"store.driver":              "memory",
	"store.dsn":                 "",
	"blob.driver":               "fs",
	"blob.root":                 "./blobdata",
	"blob.s3.bucket":            "",
	"blob.s3.region":            "us-east-1",
	"blob.s3.endpoint":          "",
	"blob.s3.path_style":        false,
	"blob.s3.access_key_id":     "",
	"blob.s3.secret_access_key": "",
	"manifests.dir":             "",
	"exports.queue_size":        16,
	"organizations":             []string{"default"},
}

// Load reads path (when non-empty) and applies environment overrides.
func Load(path string) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks driver names and driver-specific requirements.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Store.Driver == "postgres" && c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	switch c.Blob.Driver {
	case "fs", "memory":
	case "s3":
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket required for s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	if len(c.Organizations) == 0 {
		errs = append(errs, errors.New("organizations must list at least one id"))
	}
	if c.Exports.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("exports.queue_size must be positive, got %d", c.Exports.QueueSize))
	}
	return errors.Join(errs...)
}

// TestMode reports whether the process runs under the test environment.
func (c Config) TestMode() bool {
	return strings.EqualFold(c.Env, "test")
}
