package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// ConfigFileName is the name of the config file.
	ConfigFileName = "config.json"
	// ConfigDirName is the directory under the user config home where the file lives.
	ConfigDirName = "coldvault"
	// EnvPrefix is the prefix for environment variable overrides.
	EnvPrefix = "COLDVAULT_"
)

// Config holds defaults for flags not given explicitly on the command line.
// Precedence when resolving an effective value is: CLI flag > environment
// variable > config file > these defaults.
type Config struct {
	// Cores is the concurrency override. 0 means "compute from CPU count".
	Cores int `json:"cores"`

	// ChunkSizeMiB is the resumable-upload chunk size in MiB.
	ChunkSizeMiB int `json:"chunkSizeMiB"`

	// Schedule is the default cron expression for daemon mode.
	Schedule string `json:"schedule"`

	// Resume enables the resumable-upload path for large files by default.
	Resume bool `json:"resume"`

	// ScanConcurrency bounds the FileScanner's hashing worker pool. 0 means serial.
	ScanConcurrency int `json:"scanConcurrency"`

	// IncludeHidden overrides the scanner's default dot-prefix exclusion rule.
	IncludeHidden bool `json:"includeHidden"`

	// CacheDir overrides where the hash cache and resume state live. Empty
	// means the OS temp directory, matching the original engine's behavior.
	CacheDir string `json:"cacheDir"`

	// OutputFormat is "json" or "table".
	OutputFormat string `json:"outputFormat"`

	// LogLevel is "quiet", "normal", "verbose", or "debug".
	LogLevel string `json:"logLevel"`

	// ColorOutput enables ANSI color in console logging. The progress bar is
	// drawn without color either way.
	ColorOutput bool `json:"colorOutput"`

	// MaxRetries is a validated retry ceiling. It is not passed to the
	// ResumableUploader, which always uses utils.DefaultMaxRetries.
	MaxRetries int `json:"maxRetries"`

	// RetryBaseDelayMs is a validated backoff base. It is not passed to the
	// ResumableUploader, which always uses utils.DefaultRetryDelayMs.
	RetryBaseDelayMs int `json:"retryBaseDelayMs"`
}

// DefaultConfig returns the built-in defaults, matching §4.3's policy constants.
func DefaultConfig() *Config {
	return &Config{
		Cores:            0,
		ChunkSizeMiB:     50,
		Schedule:         "",
		Resume:           false,
		ScanConcurrency:  0,
		IncludeHidden:    false,
		CacheDir:         "",
		OutputFormat:     "table",
		LogLevel:         "normal",
		ColorOutput:      true,
		MaxRetries:       3,
		RetryBaseDelayMs: 1000,
	}
}

// Load loads configuration with precedence: config file, then environment
// variables, over the built-in defaults. CLI flags are applied by the caller
// on top of the returned Config.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return c.loadFromPath(configPath)
}

func (c *Config) loadFromPath(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, c)
}

// LoadFrom loads configuration from an explicit config file path (e.g. the
// --config flag), falling through to environment variables and defaults the
// same way Load does. Unlike Load, a missing file at an explicitly-requested
// path is an error rather than silently falling back to defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromPath(path); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv(EnvPrefix + "CORES"); v != "" {
		if cores, err := strconv.Atoi(v); err == nil {
			c.Cores = cores
		}
	}
	if v := os.Getenv(EnvPrefix + "CHUNK_SIZE_MIB"); v != "" {
		if size, err := strconv.Atoi(v); err == nil {
			c.ChunkSizeMiB = size
		}
	}
	if v := os.Getenv(EnvPrefix + "SCHEDULE"); v != "" {
		c.Schedule = v
	}
	if v := os.Getenv(EnvPrefix + "RESUME"); v != "" {
		c.Resume = parseBool(v)
	}
	if v := os.Getenv(EnvPrefix + "SCAN_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ScanConcurrency = n
		}
	}
	if v := os.Getenv(EnvPrefix + "INCLUDE_HIDDEN"); v != "" {
		c.IncludeHidden = parseBool(v)
	}
	if v := os.Getenv(EnvPrefix + "CACHE_DIR"); v != "" {
		c.CacheDir = v
	}
	if v := os.Getenv(EnvPrefix + "OUTPUT_FORMAT"); v != "" {
		c.OutputFormat = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "COLOR_OUTPUT"); v != "" {
		c.ColorOutput = parseBool(v)
	}
	if v := os.Getenv(EnvPrefix + "MAX_RETRIES"); v != "" {
		if retries, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = retries
		}
	}
	if v := os.Getenv(EnvPrefix + "RETRY_BASE_DELAY_MS"); v != "" {
		if delay, err := strconv.Atoi(v); err == nil {
			c.RetryBaseDelayMs = delay
		}
	}
}

// Save persists the configuration to the config file, creating its directory
// if necessary.
func (c *Config) Save() error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects out-of-range values per §6's flag constraints.
func (c *Config) Validate() error {
	if c.Cores < 0 || c.Cores > 64 {
		return fmt.Errorf("cores must be between 0 and 64, got: %d", c.Cores)
	}
	if c.ChunkSizeMiB < 1 || c.ChunkSizeMiB > 1024 {
		return fmt.Errorf("chunk size must be between 1 and 1024 MiB, got: %d", c.ChunkSizeMiB)
	}
	if c.ScanConcurrency < 0 || c.ScanConcurrency > 64 {
		return fmt.Errorf("scan concurrency must be between 0 and 64, got: %d", c.ScanConcurrency)
	}
	if c.OutputFormat != "json" && c.OutputFormat != "table" {
		return fmt.Errorf("invalid output format: %s (must be 'json' or 'table')", c.OutputFormat)
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("max retries must be between 0 and 10, got: %d", c.MaxRetries)
	}
	if c.RetryBaseDelayMs < 100 || c.RetryBaseDelayMs > 60000 {
		return fmt.Errorf("retry base delay must be between 100ms and 60000ms, got: %d", c.RetryBaseDelayMs)
	}

	validLogLevels := []string{"quiet", "normal", "verbose", "debug"}
	isValid := false
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			isValid = true
			break
		}
	}
	if !isValid {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	return nil
}

// ChunkSizeBytes returns the configured chunk size in bytes.
func (c *Config) ChunkSizeBytes() int64 {
	return int64(c.ChunkSizeMiB) * 1024 * 1024
}

// GetRetryBaseDelay returns the retry base delay as a duration.
func (c *Config) GetRetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

// GetConfigPath returns the path to the config file.
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, ConfigFileName), nil
}

// GetConfigDir returns the path to the config directory, honoring
// COLDVAULT_CONFIG_DIR before falling back to ~/.config/coldvault.
func GetConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", ConfigDirName), nil
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
