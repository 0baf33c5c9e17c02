package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Cores != 0 {
		t.Errorf("Expected default cores 0 (auto), got %d", cfg.Cores)
	}
	if cfg.ChunkSizeMiB != 50 {
		t.Errorf("Expected default chunk size 50 MiB, got %d", cfg.ChunkSizeMiB)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("Expected default max retries 3, got %d", cfg.MaxRetries)
	}
	if cfg.RetryBaseDelayMs != 1000 {
		t.Errorf("Expected default retry base delay 1000ms, got %d", cfg.RetryBaseDelayMs)
	}
	if cfg.LogLevel != "normal" {
		t.Errorf("Expected default log level 'normal', got '%s'", cfg.LogLevel)
	}
	if cfg.OutputFormat != "table" {
		t.Errorf("Expected default output format 'table', got '%s'", cfg.OutputFormat)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError bool
		errorMsg  string
	}{
		{
			name:      "valid default config",
			mutate:    func(c *Config) {},
			wantError: false,
		},
		{
			name:      "cores out of range",
			mutate:    func(c *Config) { c.Cores = 65 },
			wantError: true,
			errorMsg:  "cores must be between",
		},
		{
			name:      "chunk size too small",
			mutate:    func(c *Config) { c.ChunkSizeMiB = 0 },
			wantError: true,
			errorMsg:  "chunk size must be between",
		},
		{
			name:      "chunk size too large",
			mutate:    func(c *Config) { c.ChunkSizeMiB = 2048 },
			wantError: true,
			errorMsg:  "chunk size must be between",
		},
		{
			name:      "invalid output format",
			mutate:    func(c *Config) { c.OutputFormat = "xml" },
			wantError: true,
			errorMsg:  "invalid output format",
		},
		{
			name:      "max retries too high",
			mutate:    func(c *Config) { c.MaxRetries = 11 },
			wantError: true,
			errorMsg:  "max retries must be between 0 and 10",
		},
		{
			name:      "retry base delay too low",
			mutate:    func(c *Config) { c.RetryBaseDelayMs = 50 },
			wantError: true,
			errorMsg:  "retry base delay must be between",
		},
		{
			name:      "invalid log level",
			mutate:    func(c *Config) { c.LogLevel = "chatty" },
			wantError: true,
			errorMsg:  "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantError {
				if err == nil {
					t.Fatalf("Expected error containing %q, got nil", tt.errorMsg)
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestConfigDurationAndByteGetters(t *testing.T) {
	cfg := &Config{
		ChunkSizeMiB:     50,
		RetryBaseDelayMs: 1000,
	}

	if got := cfg.ChunkSizeBytes(); got != 50*1024*1024 {
		t.Errorf("Expected chunk size 50 MiB in bytes, got %d", got)
	}
	if got := cfg.GetRetryBaseDelay(); got != 1000*time.Millisecond {
		t.Errorf("Expected retry base delay 1000ms, got %v", got)
	}
}

func TestConfigSaveAndLoad(t *testing.T) {
	tempDir := t.TempDir()

	originalHome := os.Getenv("HOME")
	os.Setenv("HOME", tempDir)
	defer os.Setenv("HOME", originalHome)

	if runtime.GOOS == "windows" {
		originalUserProfile := os.Getenv("USERPROFILE")
		os.Setenv("USERPROFILE", tempDir)
		defer os.Setenv("USERPROFILE", originalUserProfile)
	}

	cfg := &Config{
		Cores:            4,
		ChunkSizeMiB:     100,
		Schedule:         "*/5 * * * *",
		Resume:           true,
		ScanConcurrency:  2,
		IncludeHidden:    true,
		CacheDir:         filepath.Join(tempDir, "cache"),
		OutputFormat:     "json",
		LogLevel:         "verbose",
		ColorOutput:      false,
		MaxRetries:       5,
		RetryBaseDelayMs: 2000,
	}

	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("Failed to get config dir: %v", err)
	}
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	fullConfigPath := filepath.Join(configDir, ConfigFileName)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal config: %v", err)
	}
	if err := os.WriteFile(fullConfigPath, data, 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	loadedCfg := DefaultConfig()
	if err := loadedCfg.loadFromFile(); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loadedCfg.Cores != cfg.Cores {
		t.Errorf("Expected cores %d, got %d", cfg.Cores, loadedCfg.Cores)
	}
	if loadedCfg.Schedule != cfg.Schedule {
		t.Errorf("Expected schedule %q, got %q", cfg.Schedule, loadedCfg.Schedule)
	}
	if loadedCfg.Resume != cfg.Resume {
		t.Errorf("Expected resume %v, got %v", cfg.Resume, loadedCfg.Resume)
	}
	if loadedCfg.ScanConcurrency != cfg.ScanConcurrency {
		t.Errorf("Expected scan concurrency %d, got %d", cfg.ScanConcurrency, loadedCfg.ScanConcurrency)
	}
}

func TestLoadFromEnv(t *testing.T) {
	keys := []string{
		"COLDVAULT_CORES",
		"COLDVAULT_CHUNK_SIZE_MIB",
		"COLDVAULT_SCHEDULE",
		"COLDVAULT_RESUME",
		"COLDVAULT_SCAN_CONCURRENCY",
		"COLDVAULT_INCLUDE_HIDDEN",
		"COLDVAULT_LOG_LEVEL",
	}
	originalEnv := map[string]string{}
	for _, k := range keys {
		originalEnv[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	os.Setenv("COLDVAULT_CORES", "8")
	os.Setenv("COLDVAULT_CHUNK_SIZE_MIB", "200")
	os.Setenv("COLDVAULT_SCHEDULE", "0 * * * *")
	os.Setenv("COLDVAULT_RESUME", "true")
	os.Setenv("COLDVAULT_SCAN_CONCURRENCY", "4")
	os.Setenv("COLDVAULT_INCLUDE_HIDDEN", "yes")
	os.Setenv("COLDVAULT_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	cfg.loadFromEnv()

	if cfg.Cores != 8 {
		t.Errorf("Expected cores 8, got %d", cfg.Cores)
	}
	if cfg.ChunkSizeMiB != 200 {
		t.Errorf("Expected chunk size 200, got %d", cfg.ChunkSizeMiB)
	}
	if cfg.Schedule != "0 * * * *" {
		t.Errorf("Expected schedule '0 * * * *', got %q", cfg.Schedule)
	}
	if !cfg.Resume {
		t.Error("Expected resume to be true")
	}
	if cfg.ScanConcurrency != 4 {
		t.Errorf("Expected scan concurrency 4, got %d", cfg.ScanConcurrency)
	}
	if !cfg.IncludeHidden {
		t.Error("Expected include hidden to be true")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level 'debug', got %q", cfg.LogLevel)
	}
}

func TestLoadFromExplicitPath(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "custom-config.json")

	cfg := &Config{
		Cores:            2,
		ChunkSizeMiB:     75,
		OutputFormat:     "json",
		LogLevel:         "verbose",
		ColorOutput:      true,
		MaxRetries:       3,
		RetryBaseDelayMs: 1000,
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		t.Fatalf("failed to marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom returned error: %v", err)
	}
	if loaded.Cores != 2 {
		t.Errorf("expected cores 2, got %d", loaded.Cores)
	}
	if loaded.ChunkSizeMiB != 75 {
		t.Errorf("expected chunk size 75, got %d", loaded.ChunkSizeMiB)
	}
}

func TestLoadFromMissingPathFails(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err == nil {
		t.Fatal("expected error for missing explicit config path")
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"true", true},
		{"True", true},
		{"1", true},
		{"yes", true},
		{"on", true},
		{"false", false},
		{"0", false},
		{"no", false},
		{"", false},
		{"invalid", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseBool(tt.input)
			if got != tt.want {
				t.Errorf("parseBool(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
