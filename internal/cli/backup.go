package cli

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/coldvault/agent/internal/config"
	"github.com/coldvault/agent/internal/history"
	"github.com/coldvault/agent/internal/logging"
	"github.com/coldvault/agent/internal/remote"
	"github.com/coldvault/agent/internal/sync"
	"github.com/coldvault/agent/internal/utils"
)

var backupCmd = &cobra.Command{
	Use:   "backup [source-dir]",
	Short: "Scan a local directory and upload changed files to the remote target",
	Long: `backup walks the given local directory (or the current directory if
omitted), skips files whose content hash matches the last recorded run,
and uploads the rest to --target through the internxt CLI. With --daemon
it runs immediately, then again on every --schedule cron tick until
interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBackup,
}

func runBackup(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	cfg := GetConfig()
	logger := GetLogger()

	sourceDir := "."
	if len(args) == 1 {
		sourceDir = args[0]
	}
	absSource, err := filepath.Abs(sourceDir)
	if err != nil {
		return utils.NewValidationError(fmt.Sprintf("cannot resolve source directory: %v", err))
	}

	if flags.Target == "" {
		return utils.NewValidationError("--target is required (the remote folder to back up into)")
	}

	chunkSizeMiB := cfg.ChunkSizeMiB
	if flags.ChunkSizeMiB > 0 {
		chunkSizeMiB = flags.ChunkSizeMiB
	}

	opts := sync.Options{
		SourceDir:       absSource,
		RemoteTarget:    flags.Target,
		Cores:           cfg.Cores,
		ChunkSizeBytes:  int64(chunkSizeMiB) * 1024 * 1024,
		UseResume:       cfg.Resume || flags.Resume,
		ForceUpload:     flags.Force,
		Quiet:           flags.Quiet,
		Verbose:         flags.Verbose,
		IncludeHidden:   cfg.IncludeHidden || flags.IncludeHidden,
		ScanConcurrency: cfg.ScanConcurrency,
		CacheDir:        cfg.CacheDir,
	}

	client := remote.New(logger)

	historyPath := history.DefaultPath(historyDir(cfg))
	historyStore, err := history.Open(historyPath)
	if err != nil {
		logger.Warn("failed to open run history database", logging.F("error", err.Error()))
		historyStore = nil
	}
	if historyStore != nil {
		defer historyStore.Close()
	}

	orch := sync.New(client, logger, historyStore)

	schedule := cfg.Schedule
	if flags.Schedule != "" {
		schedule = flags.Schedule
	}

	var summary sync.Summary
	if flags.Daemon {
		if schedule == "" {
			return utils.NewValidationError("--daemon requires --schedule")
		}
		if err := orch.RunDaemon(cmd.Context(), schedule, opts); err != nil {
			return err
		}
		return nil
	}

	summary = orch.SyncOnce(cmd.Context(), opts)
	if summary.Err != nil {
		return summary.Err
	}

	writer := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	return writer.WriteSuccess("backup", summaryTable{summary})
}

// historyDir chooses where the run-history database lives: the configured
// cache directory when set, otherwise alongside the config file.
func historyDir(cfg *config.Config) string {
	if cfg.CacheDir != "" {
		return cfg.CacheDir
	}
	if dir, err := config.GetConfigDir(); err == nil {
		return dir
	}
	return "."
}

// summaryTable renders a sync.Summary as a one-row table for --output table.
type summaryTable struct {
	summary sync.Summary
}

func (s summaryTable) Headers() []string {
	return []string{"Files Total", "Uploaded", "Failed", "Bytes"}
}

func (s summaryTable) Rows() [][]string {
	return [][]string{{
		strconv.Itoa(s.summary.FilesTotal),
		strconv.Itoa(s.summary.FilesUploaded),
		strconv.Itoa(s.summary.FilesFailed),
		formatSize(s.summary.TotalBytes),
	}}
}

func (s summaryTable) EmptyMessage() string {
	return "no files processed"
}
