package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/contesthub/resultengine/infrastructure/scoring"
	"github.com/contesthub/resultengine/infrastructure/store"
	"github.com/contesthub/resultengine/internal/logging"
	"github.com/contesthub/resultengine/internal/ports"
)

// Ensure FileConfigLoader implements the ConfigLoader interface.
var _ ports.ConfigLoader = (*FileConfigLoader)(nil)

var validate = validator.New()

// Config is the complete configuration of the result engine and its
// command-line tool.
type Config struct {
	// Engine controls how results are computed.
	Engine EngineConfig `yaml:"engine" validate:"required"`
	// Database configures the contest store connection.
	Database store.Config `yaml:"database" validate:"required"`
	// Log configures structured logging.
	Log logging.Config `yaml:"log"`
	// Metrics configures Prometheus metrics and tracing.
	Metrics MetricsConfig `yaml:"metrics"`
}

// EngineConfig controls result computation.
type EngineConfig struct {
	// AllowEqualWeightFallback splits the composite into equal thirds when a
	// contest's judge, vote and bonus weights are all zero. When false such
	// a contest is rejected as misconfigured.
	AllowEqualWeightFallback bool `yaml:"allow_equal_weight_fallback"`
	// DryRun computes outcomes without writing results.
	DryRun bool `yaml:"dry_run"`
	// Timeout bounds one contest computation, store round-trips included.
	// Zero disables the timeout.
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`
	// Parallelism caps how many contests a batch computes at once.
	Parallelism int `yaml:"parallelism" validate:"min=1,max=64"`
	// Retry controls reruns of computations refused with a conflict.
	Retry RetryPolicy `yaml:"retry"`
}

// RankerConfig converts the engine settings into the scoring configuration.
func (c EngineConfig) RankerConfig() scoring.RankerConfig {
	return scoring.RankerConfig{AllowEqualWeightFallback: c.AllowEqualWeightFallback}
}

// MetricsConfig configures observability.
type MetricsConfig struct {
	// Enabled registers Prometheus collectors for engine runs.
	Enabled bool `yaml:"enabled"`
	// Namespace prefixes every metric name.
	Namespace string `yaml:"namespace" validate:"omitempty,max=64"`
	// Tracing wraps every run in an OpenTelemetry span.
	Tracing bool `yaml:"tracing"`
	// TracerName is the instrumentation name of the span tracer.
	TracerName string `yaml:"tracer_name" validate:"omitempty,max=255"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Engine: EngineConfig{
			AllowEqualWeightFallback: scoring.DefaultRankerConfig().AllowEqualWeightFallback,
			Timeout:                  30 * time.Second,
			Parallelism:              4,
			Retry: RetryPolicy{
				MaxRetries: 2,
				BaseDelay:  100 * time.Millisecond,
				MaxDelay:   2 * time.Second,
			},
		},
		Database: store.DefaultConfig(),
		Log:      logging.DefaultConfig(),
		Metrics: MetricsConfig{
			Namespace:  "contest_results",
			TracerName: "github.com/contesthub/resultengine",
		},
	}
}

// Validate checks struct constraints on the whole configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyEnv overrides file settings with environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("DATABASE_DRIVER"); ok && v != "" {
		c.Database.Driver = v
	}
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		c.Database.DSN = v
		if strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://") {
			c.Database.Driver = store.DriverPostgres
		}
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok && v != "" {
		c.Log.Format = v
	}
	if v, ok := lookup("METRICS_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return ports.NewConfigError("METRICS_ENABLED", err)
		}
		c.Metrics.Enabled = enabled
	}
	return nil
}

// FileConfigLoader reads a YAML configuration file, then applies
// environment overrides. Variables from the given .env files fill in
// anything the process environment does not set.
type FileConfigLoader struct {
	path     string
	envFiles []string
	getenv   func(string) (string, bool)
}

// NewFileConfigLoader creates a loader for path. An empty path loads only
// defaults and environment overrides. Missing .env files are ignored.
func NewFileConfigLoader(path string, envFiles ...string) *FileConfigLoader {
	return &FileConfigLoader{
		path:     path,
		envFiles: envFiles,
		getenv:   os.LookupEnv,
	}
}

// Load decodes the file into config, which must be a pointer. When config
// is a *Config the environment overrides are applied and the result is
// validated.
func (l *FileConfigLoader) Load(ctx context.Context, config any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if l.path != "" {
		data, err := os.ReadFile(filepath.Clean(l.path))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return ports.NewConfigError(l.path, ports.ErrConfigNotFound)
			}
			return ports.NewConfigError(l.path, err)
		}
		if err := decodeYAML(bytes.NewReader(data), config); err != nil {
			return ports.NewConfigError(l.path, err)
		}
	}

	cfg, ok := config.(*Config)
	if !ok {
		return nil
	}

	lookup, err := l.lookup()
	if err != nil {
		return err
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return err
	}
	return cfg.Validate()
}

// lookup layers the process environment over the .env files.
func (l *FileConfigLoader) lookup() (func(string) (string, bool), error) {
	dotenv := map[string]string{}
	for _, file := range l.envFiles {
		if file == "" {
			continue
		}
		values, err := godotenv.Read(file)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, ports.NewConfigError(file, err)
		}
		for k, v := range values {
			if _, seen := dotenv[k]; !seen {
				dotenv[k] = v
			}
		}
	}

	return func(key string) (string, bool) {
		if v, ok := l.getenv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}, nil
}

// decodeYAML uses strict decoding so configuration typos are reported
// instead of silently ignored.
func decodeYAML(r io.Reader, out any) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	if err := decoder.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("YAML decode failed: %w", err)
	}
	return nil
}

// LoadConfig loads the engine configuration through loader, starting from
// DefaultConfig.
func LoadConfig(ctx context.Context, loader ports.ConfigLoader) (*Config, error) {
	cfg := DefaultConfig()
	if err := loader.Load(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return &cfg, nil
}
