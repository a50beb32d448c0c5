package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. DUPSWEEP_DATABASE_PATH
const EnvPrefix = "DUPSWEEP"

// Hash policies for files that cannot be digested
const (
	HashPolicyLenient = "lenient" // group under the empty digest
	HashPolicyStrict  = "strict"  // drop the file from the duplicate set
)

type LoggingCfg struct {
	File         string `yaml:"file" json:"file" split_words:"true"`                   // Optional log file in addition to stderr
	RotationDays int    `yaml:"rotation_days" json:"rotation_days" split_words:"true"` // Days to keep logs before rotation
	Verbose      bool   `yaml:"verbose" json:"verbose" split_words:"true"`             // Emit debug lines
}

type ResourceLimits struct {
	MaxCPUPercent float64 `yaml:"max_cpu_percent" json:"max_cpu_percent" split_words:"true"` // 0 disables throttling
}

type SafetyCfg struct {
	ProtectedPaths []string `yaml:"protected_paths" json:"protected_paths" split_words:"true"` // Added to the built-in protected list
}

type Config struct {
	ScanPaths       []string       `yaml:"scan_paths" json:"scan_paths" split_words:"true"`
	ExcludePatterns []string       `yaml:"exclude_patterns" json:"exclude_patterns" split_words:"true"`
	HashPolicy      string         `yaml:"hash_policy" json:"hash_policy" split_words:"true"`
	DryRun          bool           `yaml:"dry_run" json:"dry_run" split_words:"true"`
	DatabasePath    string         `yaml:"database_path" json:"database_path" split_words:"true"` // SQLite action history, empty disables
	MetricsFile     string         `yaml:"metrics_file" json:"metrics_file" split_words:"true"`   // Prometheus textfile output, empty disables
	NFSTimeout      int            `yaml:"nfs_timeout_seconds" json:"nfs_timeout_seconds" split_words:"true"`
	Logging         LoggingCfg     `yaml:"logging" json:"logging" split_words:"true"`
	ResourceLimits  ResourceLimits `yaml:"resource_limits" json:"resource_limits" split_words:"true"`
	Safety          SafetyCfg      `yaml:"safety" json:"safety" split_words:"true"`
}

var (
	errInvalidPolicy  = errors.New("hash_policy must be lenient or strict")
	errInvalidPattern = errors.New("invalid exclude pattern")
	errNegativeLimit  = errors.New("max_cpu_percent must be between 0 and 100")
	errEmptyPath      = errors.New("path must not be empty")
)

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	// defaults cannot fail validation
	_ = cfg.validateAndDefault()
	return cfg
}

// Load reads the YAML file at path (if any), applies DUPSWEEP_* environment
// overrides and validates the result. An empty path means "defaults + env".
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()

		cfg, err = decode(f)
		if err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := cfg.validateAndDefault(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// empty file
			return cfg, nil
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

func (c *Config) validateAndDefault() error {
	c.HashPolicy = strings.ToLower(strings.TrimSpace(c.HashPolicy))
	switch c.HashPolicy {
	case "":
		c.HashPolicy = HashPolicyLenient
	case HashPolicyLenient, HashPolicyStrict:
	default:
		return fmt.Errorf("%w: %q", errInvalidPolicy, c.HashPolicy)
	}

	for _, pattern := range c.ExcludePatterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("%w %q: %v", errInvalidPattern, pattern, err)
		}
	}

	if c.ResourceLimits.MaxCPUPercent < 0 || c.ResourceLimits.MaxCPUPercent > 100 {
		return errNegativeLimit
	}

	// Set defaults for logging
	if c.Logging.RotationDays <= 0 {
		c.Logging.RotationDays = 30 // Default: keep logs for 30 days
	}

	// Set defaults for NFS timeout
	if c.NFSTimeout <= 0 {
		c.NFSTimeout = 5 // Default: 5 seconds timeout for NFS operations
	}

	cleaned := make([]string, 0, len(c.ScanPaths))
	for _, p := range c.ScanPaths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("scan_paths: %w", errEmptyPath)
		}
		cleaned = append(cleaned, filepath.Clean(p))
	}
	c.ScanPaths = cleaned

	if c.DatabasePath != "" {
		c.DatabasePath = filepath.Clean(c.DatabasePath)
	}
	if c.MetricsFile != "" {
		c.MetricsFile = filepath.Clean(c.MetricsFile)
	}

	return nil
}

// Strict reports whether undigestable files are dropped instead of grouped
func (c *Config) Strict() bool {
	return c.HashPolicy == HashPolicyStrict
}

func (c *Config) NFSTimeoutDuration() time.Duration {
	return time.Duration(c.NFSTimeout) * time.Second
}
