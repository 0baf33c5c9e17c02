package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/coldvault/agent/internal/history"
	"github.com/coldvault/agent/internal/logging"
	"github.com/coldvault/agent/internal/remote"
	"github.com/coldvault/agent/internal/sync"
	"github.com/coldvault/agent/internal/utils"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <remote-path> [destination]",
	Short: "Download a remote tree to a local directory",
	Long: `restore lists the remote tree rooted at the given path, skips files
whose local copy already matches the remote size, and downloads the
rest into destination (or --target, or the current directory).`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRestore,
}

func runRestore(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	cfg := GetConfig()
	logger := GetLogger()

	remotePath := args[0]

	destDir := "."
	switch {
	case len(args) == 2:
		destDir = args[1]
	case flags.Target != "":
		destDir = flags.Target
	}
	absDest, err := filepath.Abs(destDir)
	if err != nil {
		return utils.NewValidationError(fmt.Sprintf("cannot resolve destination directory: %v", err))
	}

	opts := sync.Options{
		SourceDir:    absDest,
		RemoteTarget: remotePath,
		Cores:        cfg.Cores,
		ForceUpload:  flags.Force,
		Quiet:        flags.Quiet,
		Verbose:      flags.Verbose,
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

	summary := orch.RestoreOnce(cmd.Context(), opts)
	if summary.Err != nil {
		return summary.Err
	}

	writer := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	return writer.WriteSuccess("restore", summaryTable{summary})
}
