package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coldvault/agent/internal/history"
	"github.com/coldvault/agent/internal/utils"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent backup and restore runs",
	Long:  "history lists the most recent recorded backup and restore runs, most recent first.",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	cfg := GetConfig()

	store, err := history.Open(history.DefaultPath(historyDir(cfg)))
	if err != nil {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeIOError, fmt.Sprintf("failed to open run history: %v", err)).Build())
	}
	defer store.Close()

	runs, err := store.Recent(cmd.Context(), historyLimit)
	if err != nil {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeIOError, fmt.Sprintf("failed to read run history: %v", err)).Build())
	}

	writer := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	return writer.WriteSuccess("history", historyTable(runs))
}

// historyTable renders a slice of history.Run for --output table.
type historyTable []history.Run

func (t historyTable) Headers() []string {
	return []string{"ID", "Operation", "Started", "Files", "Uploaded", "Failed", "Bytes", "Daemon", "Error"}
}

func (t historyTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, run := range t {
		daemon := ""
		if run.Daemon {
			daemon = "yes"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", run.ID),
			run.Operation,
			run.StartedAt.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d", run.FilesTotal),
			fmt.Sprintf("%d", run.FilesUploaded),
			fmt.Sprintf("%d", run.FilesFailed),
			formatSize(run.TotalBytes),
			daemon,
			truncate(run.Error, 40),
		})
	}
	return rows
}

func (t historyTable) EmptyMessage() string {
	return "no recorded runs"
}
