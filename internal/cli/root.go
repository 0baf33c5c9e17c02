package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coldvault/agent/internal/config"
	"github.com/coldvault/agent/internal/logging"
	"github.com/coldvault/agent/internal/types"
	"github.com/coldvault/agent/internal/utils"
	"github.com/coldvault/agent/pkg/version"
)

var (
	globalFlags types.GlobalFlags
	logger      logging.Logger
	appConfig   *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "coldvault",
	Short: "Incremental, resumable backup agent",
	Long: `coldvault mirrors a local directory tree to a remote object store
accessed through the internxt command-line tool. It discovers files,
detects changes via content hashing, uploads changed files with bounded
concurrency, retries and resumes large transfers, optionally runs on a
cron schedule as a long-lived daemon, and supports a symmetric restore
path.`,
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateGlobalFlags(); err != nil {
			return err
		}

		var cfg *config.Config
		var err error
		if globalFlags.Config != "" {
			cfg, err = config.LoadFrom(globalFlags.Config)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return err
		}
		applyFlagOverrides(cfg)
		appConfig = cfg

		logConfig := logging.LogConfig{
			Level:           logging.INFO,
			EnableConsole:   !globalFlags.Quiet,
			RedactSensitive: true,
			EnableColor:     cfg.ColorOutput,
			EnableTimestamp: true,
		}
		if globalFlags.Verbose {
			logConfig.Level = logging.DEBUG
		}
		if globalFlags.Quiet {
			logConfig.Level = logging.WARN
		}

		logger, err = logging.NewLogger(logConfig)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "Print the version number of coldvault",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Get().String())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalFlags.Target, "target", "", "Remote folder for backup; local folder for restore")
	rootCmd.PersistentFlags().IntVar(&globalFlags.Cores, "cores", 0, "Concurrency override (1..64)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.Schedule, "schedule", "", "Cron expression for daemon mode")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Daemon, "daemon", false, "Enable long-running cron loop")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Force, "force", "f", false, "Ignore change detection")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Resume, "resume", false, "Enable the resumable uploader for large files")
	rootCmd.PersistentFlags().IntVar(&globalFlags.ChunkSizeMiB, "chunk-size", 0, "Chunk size override in MiB (1..1024)")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "Minimal output")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Per-file output")
	rootCmd.PersistentFlags().StringVar(&globalFlags.Config, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar((*string)(&globalFlags.OutputFormat), "output", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.CacheDir, "cache-dir", "", "Override where the hash cache and resume state live")
	rootCmd.PersistentFlags().IntVar(&globalFlags.ScanConcurrency, "scan-concurrency", 0, "Bound the scanner's hashing worker pool")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.IncludeHidden, "include-hidden", false, "Include dot-prefixed files and directories")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(historyCmd)
}

func validateGlobalFlags() error {
	if globalFlags.OutputFormat == "" {
		globalFlags.OutputFormat = types.OutputFormatTable
	}
	if globalFlags.OutputFormat != types.OutputFormatJSON && globalFlags.OutputFormat != types.OutputFormatTable {
		return utils.NewValidationError(fmt.Sprintf("invalid output format: %s", globalFlags.OutputFormat))
	}
	if globalFlags.Cores < 0 || globalFlags.Cores > 64 {
		return utils.NewValidationError(fmt.Sprintf("cores must be between 0 and 64, got: %d", globalFlags.Cores))
	}
	if globalFlags.ChunkSizeMiB < 0 || globalFlags.ChunkSizeMiB > 1024 {
		return utils.NewValidationError(fmt.Sprintf("chunk size must be between 0 and 1024 MiB, got: %d", globalFlags.ChunkSizeMiB))
	}
	return nil
}

// applyFlagOverrides layers explicitly-set CLI flags over the loaded config,
// matching the documented precedence: CLI flag > environment > config file >
// built-in defaults.
func applyFlagOverrides(cfg *config.Config) {
	if globalFlags.Cores > 0 {
		cfg.Cores = globalFlags.Cores
	}
	if globalFlags.ChunkSizeMiB > 0 {
		cfg.ChunkSizeMiB = globalFlags.ChunkSizeMiB
	}
	if globalFlags.Schedule != "" {
		cfg.Schedule = globalFlags.Schedule
	}
	if globalFlags.Resume {
		cfg.Resume = true
	}
	if globalFlags.ScanConcurrency > 0 {
		cfg.ScanConcurrency = globalFlags.ScanConcurrency
	}
	if globalFlags.IncludeHidden {
		cfg.IncludeHidden = true
	}
	if globalFlags.CacheDir != "" {
		cfg.CacheDir = globalFlags.CacheDir
	}
	if globalFlags.OutputFormat != "" {
		cfg.OutputFormat = string(globalFlags.OutputFormat)
	}
}

// Execute runs the root command and maps the outcome to a process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		if appErr, ok := err.(*utils.AppError); ok {
			return utils.GetExitCode(appErr.CLIError.Code)
		}
		return utils.ExitUnknown
	}
	return utils.ExitSuccess
}

// GetGlobalFlags returns the global flags.
func GetGlobalFlags() types.GlobalFlags {
	return globalFlags
}

// GetLogger returns the process-wide logger, initialized in
// PersistentPreRunE.
func GetLogger() logging.Logger {
	if logger == nil {
		return logging.NewNoOpLogger()
	}
	return logger
}

// GetConfig returns the effective configuration for this invocation.
func GetConfig() *config.Config {
	if appConfig == nil {
		return config.DefaultConfig()
	}
	return appConfig
}
