// Package config handles Muninn configuration via YAML files and environment variables.
//
// Configuration Precedence (highest to lowest):
//  1. Command-line flags (--memory-path, --log-level, etc.)
//  2. Environment variables (MUNINN_*)
//  3. Config file (config.yaml)
//  4. Built-in defaults
//
// Example Usage:
//
//	cfg, err := config.LoadFromFile(config.FindConfigFile())
//	if err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//
//	fmt.Printf("Graph file: %s\n", cfg.Storage.MemoryPath)
//
// Environment Variables (all use MUNINN_ prefix):
//
// Storage:
//   - MUNINN_MEMORY_PATH="./memory.jsonl"
//
// Cache:
//   - MUNINN_CACHE_MAX_BYTES=104857600
//   - MUNINN_CACHE_TTL=30m
//
// Batching:
//   - MUNINN_BATCH_WINDOW=100ms
//
// Features:
//   - MUNINN_LAZY_LOADING=false
//   - MUNINN_FULL_TEXT_SEARCH=false
//   - MUNINN_WRITE_BATCHING=false
//   - MUNINN_MEMORY_BOUNDED=false
//
// Logging:
//   - MUNINN_LOG_LEVEL="info"
//   - MUNINN_LOG_FORMAT="json"
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all Muninn configuration.
//
// Configuration is organized into logical sections:
//   - Storage: backing graph file
//   - Cache: bounded result cache sizing
//   - Batch: write batcher timing
//   - Features: optional capability flags
//   - Logging: logging configuration
type Config struct {
	// Storage settings
	Storage StorageConfig

	// Cache settings for the bounded result cache
	Cache CacheConfig

	// Batch settings for the debounced write batcher
	Batch BatchConfig

	// Feature flags for optional capabilities
	Features FeatureFlagsConfig

	// Logging
	Logging LoggingConfig
}

// StorageConfig holds backing file settings.
type StorageConfig struct {
	// MemoryPath is the line-delimited JSON graph file
	MemoryPath string
}

// CacheConfig holds bounded result cache settings.
type CacheConfig struct {
	// MaxBytes caps the cache's approximate total payload size
	MaxBytes int64
	// TTL is the absolute entry lifetime
	TTL time.Duration
}

// BatchConfig holds write batcher settings.
type BatchConfig struct {
	// DebounceWindow is the quiet period before a batched flush fires
	DebounceWindow time.Duration
}

// FeatureFlagsConfig holds optional capability flags, all off by default.
type FeatureFlagsConfig struct {
	// LazyLoading serves skeletal entities with on-demand observations
	LazyLoading bool
	// FullTextSearch builds an inverted term index per cache entry
	FullTextSearch bool
	// WriteBatching coalesces bursts of writes into one file cycle
	WriteBatching bool
	// MemoryBounded caches derived query results in the bounded cache
	MemoryBounded bool
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string
	// Format is json or console
	Format string
	// Output is stdout, stderr, or a file path
	Output string
}

// LoadDefaults returns the built-in default configuration.
func LoadDefaults() *Config {
	return &Config{
		Storage: StorageConfig{
			MemoryPath: "./memory.jsonl",
		},
		Cache: CacheConfig{
			MaxBytes: 100 * 1024 * 1024,
			TTL:      30 * time.Minute,
		},
		Batch: BatchConfig{
			DebounceWindow: 100 * time.Millisecond,
		},
		Features: FeatureFlagsConfig{},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// LoadFromEnv returns defaults overridden by MUNINN_* environment variables.
func LoadFromEnv() *Config {
	config := LoadDefaults()
	applyEnvVars(config)
	return config
}

func applyEnvVars(config *Config) {
	config.Storage.MemoryPath = getEnv("MUNINN_MEMORY_PATH", config.Storage.MemoryPath)

	config.Cache.MaxBytes = getEnvInt64("MUNINN_CACHE_MAX_BYTES", config.Cache.MaxBytes)
	config.Cache.TTL = getEnvDuration("MUNINN_CACHE_TTL", config.Cache.TTL)

	config.Batch.DebounceWindow = getEnvDuration("MUNINN_BATCH_WINDOW", config.Batch.DebounceWindow)

	config.Features.LazyLoading = getEnvBool("MUNINN_LAZY_LOADING", config.Features.LazyLoading)
	config.Features.FullTextSearch = getEnvBool("MUNINN_FULL_TEXT_SEARCH", config.Features.FullTextSearch)
	config.Features.WriteBatching = getEnvBool("MUNINN_WRITE_BATCHING", config.Features.WriteBatching)
	config.Features.MemoryBounded = getEnvBool("MUNINN_MEMORY_BOUNDED", config.Features.MemoryBounded)

	config.Logging.Level = getEnv("MUNINN_LOG_LEVEL", config.Logging.Level)
	config.Logging.Format = getEnv("MUNINN_LOG_FORMAT", config.Logging.Format)
	config.Logging.Output = getEnv("MUNINN_LOG_OUTPUT", config.Logging.Output)
}

// YAMLConfig represents the YAML configuration file structure.
// All fields mirror the environment variable configuration options.
type YAMLConfig struct {
	Storage struct {
		MemoryPath string `yaml:"memory_path"`
		Path       string `yaml:"path"` // Alias for memory_path
	} `yaml:"storage"`

	Cache struct {
		MaxBytes int64  `yaml:"max_bytes"`
		TTL      string `yaml:"ttl"`
	} `yaml:"cache"`

	Batch struct {
		DebounceWindow string `yaml:"debounce_window"`
	} `yaml:"batch"`

	Features struct {
		LazyLoading    bool `yaml:"lazy_loading"`
		FullTextSearch bool `yaml:"full_text_search"`
		WriteBatching  bool `yaml:"write_batching"`
		MemoryBounded  bool `yaml:"memory_bounded"`
	} `yaml:"features"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
}

// LoadFromFile loads configuration with full precedence: built-in defaults,
// then the YAML file at configPath (a missing file is not an error), then
// MUNINN_* environment variables on top.
func LoadFromFile(configPath string) (*Config, error) {
	config := LoadDefaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if configPath == "" || os.IsNotExist(err) {
			applyEnvVars(config)
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var yamlCfg YAMLConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if yamlCfg.Storage.MemoryPath != "" {
		config.Storage.MemoryPath = yamlCfg.Storage.MemoryPath
	}
	if yamlCfg.Storage.Path != "" {
		config.Storage.MemoryPath = yamlCfg.Storage.Path
	}

	if yamlCfg.Cache.MaxBytes > 0 {
		config.Cache.MaxBytes = yamlCfg.Cache.MaxBytes
	}
	if yamlCfg.Cache.TTL != "" {
		if d, err := time.ParseDuration(yamlCfg.Cache.TTL); err == nil {
			config.Cache.TTL = d
		}
	}

	if yamlCfg.Batch.DebounceWindow != "" {
		if d, err := time.ParseDuration(yamlCfg.Batch.DebounceWindow); err == nil {
			config.Batch.DebounceWindow = d
		}
	}

	if yamlCfg.Features.LazyLoading {
		config.Features.LazyLoading = true
	}
	if yamlCfg.Features.FullTextSearch {
		config.Features.FullTextSearch = true
	}
	if yamlCfg.Features.WriteBatching {
		config.Features.WriteBatching = true
	}
	if yamlCfg.Features.MemoryBounded {
		config.Features.MemoryBounded = true
	}

	if yamlCfg.Logging.Level != "" {
		config.Logging.Level = yamlCfg.Logging.Level
	}
	if yamlCfg.Logging.Format != "" {
		config.Logging.Format = yamlCfg.Logging.Format
	}
	if yamlCfg.Logging.Output != "" {
		config.Logging.Output = yamlCfg.Logging.Output
	}

	// Environment variables override the file
	applyEnvVars(config)

	return config, nil
}

// FindConfigFile searches standard locations for a config file and returns
// the first one that exists, or "" when none is found.
func FindConfigFile() string {
	var candidates []string

	// Priority 1: User home directory ~/.muninn/config.yaml
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".muninn", "config.yaml"))
	}

	// Priority 2: Same directory as the binary
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(exeDir, "config.yaml"),
			filepath.Join(exeDir, "muninn.yaml"),
		)
	}

	// Priority 3: Current working directory
	candidates = append(candidates,
		"config.yaml",
		"muninn.yaml",
	)

	// Priority 4: XDG user config path
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "muninn", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// Validate checks the configuration for logical errors and invalid values.
func (c *Config) Validate() error {
	if c.Storage.MemoryPath == "" {
		return fmt.Errorf("memory path must not be empty")
	}
	if c.Cache.MaxBytes <= 0 {
		return fmt.Errorf("invalid cache max bytes: %d", c.Cache.MaxBytes)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("invalid cache ttl: %s", c.Cache.TTL)
	}
	if c.Batch.DebounceWindow <= 0 {
		return fmt.Errorf("invalid batch debounce window: %s", c.Batch.DebounceWindow)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	return nil
}

// String returns a representation of the Config safe for logging.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Memory: %s, CacheMaxBytes: %d, CacheTTL: %s, BatchWindow: %s, Features: lazy=%v fulltext=%v batching=%v bounded=%v}",
		c.Storage.MemoryPath,
		c.Cache.MaxBytes, c.Cache.TTL,
		c.Batch.DebounceWindow,
		c.Features.LazyLoading, c.Features.FullTextSearch,
		c.Features.WriteBatching, c.Features.MemoryBounded,
	)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		// Try parsing as seconds
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}
