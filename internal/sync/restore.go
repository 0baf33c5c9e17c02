package sync

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/coldvault/agent/internal/logging"
	"github.com/coldvault/agent/internal/progress"
	"github.com/coldvault/agent/internal/remote"
	"github.com/coldvault/agent/internal/transfer"
	"github.com/coldvault/agent/internal/utils"
)

// RestoreOnce mirrors SyncOnce's orchestration for the symmetric restore
// path: list the remote tree recursively, filter by IsFileUpToDate unless
// force, download through the transfer queue.
func (o *Orchestrator) RestoreOnce(ctx context.Context, opts Options) Summary {
	started := time.Now()
	summary := o.runRestore(ctx, opts)
	o.recordRun("restore", opts, summary, started)
	return summary
}

func (o *Orchestrator) runRestore(ctx context.Context, opts Options) Summary {
	availability := o.client.CheckAvailability(ctx)
	if !availability.Installed || !availability.Authenticated {
		return Summary{Err: utils.NewPreconditionFailure(fmt.Sprintf("remote CLI unavailable: installed=%v authenticated=%v", availability.Installed, availability.Authenticated))}
	}

	entries, err := listRemoteTreeRecursive(ctx, o.client, opts.RemoteTarget)
	if err != nil {
		return Summary{Err: utils.NewAppError(utils.NewCLIError(utils.ErrCodeRemoteError, fmt.Sprintf("failed to list remote tree: %v", err)).Build())}
	}

	var toDownload []remote.RemoteFileEntry
	var totalBytes int64
	for _, entry := range entries {
		if entry.IsFolder {
			continue
		}
		totalBytes += entry.SizeBytes
		localPath := filepath.Join(opts.SourceDir, relativeTo(opts.RemoteTarget, entry.Path))
		if !opts.ForceUpload && IsFileUpToDate(localPath, entry.SizeBytes) {
			continue
		}
		toDownload = append(toDownload, entry)
	}

	if len(toDownload) == 0 {
		o.logger.Info("all files up to date")
		return Summary{FilesTotal: len(entries), TotalBytes: totalBytes}
	}

	for _, entry := range toDownload {
		localPath := filepath.Join(opts.SourceDir, relativeTo(opts.RemoteTarget, entry.Path))
		if err := os.MkdirAll(filepath.Dir(localPath), 0700); err != nil {
			o.logger.Warn("failed to create local directory", logging.F("path", filepath.Dir(localPath)), logging.F("error", err.Error()))
		}
	}

	reporter := progress.New(nil)
	reporter.Initialize(len(toDownload))
	reporter.StartUpdates(utils.ProgressUpdateIntervalMs)

	var mu sync.Mutex
	succeeded := 0
	failed := 0

	queue := transfer.New(o.logger)
	queue.Initialize(ComputeConcurrency(opts.Cores), func(taskCtx context.Context, task transfer.Task) transfer.TaskResult {
		entry := task.Payload.(remote.RemoteFileEntry)
		localPath := filepath.Join(opts.SourceDir, relativeTo(opts.RemoteTarget, entry.Path))

		result := o.client.DownloadFileStreamed(taskCtx, entry.Path, localPath, nil)

		mu.Lock()
		if result.Success {
			succeeded++
		} else {
			failed++
		}
		mu.Unlock()

		if result.Success {
			reporter.RecordSuccess()
		} else {
			reporter.RecordFailure()
		}
		return transfer.TaskResult{Success: result.Success, Identifier: entry.Path}
	}, opts.Verbose)

	tasks := make([]transfer.Task, len(toDownload))
	for i, entry := range toDownload {
		tasks[i] = transfer.Task{Identifier: entry.Path, Payload: entry}
	}
	queue.SetQueue(tasks)

	done := make(chan struct{})
	queue.Start(ctx, func() { close(done) })
	<-done

	reporter.StopUpdates()
	reporter.RenderSummary()

	mu.Lock()
	defer mu.Unlock()

	var runErr error
	if failed > 0 {
		runErr = utils.NewAppError(utils.NewCLIError(utils.ErrCodeRemoteError, fmt.Sprintf("%d file(s) failed to restore", failed)).Build())
	}
	return Summary{
		FilesTotal:    len(entries),
		FilesUploaded: succeeded,
		FilesFailed:   failed,
		TotalBytes:    totalBytes,
		Err:           runErr,
	}
}

// IsFileUpToDate reports whether localPath already exists with the same
// size as remoteSize.
func IsFileUpToDate(localPath string, remoteSize int64) bool {
	info, err := os.Stat(localPath)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() == remoteSize
}

func listRemoteTreeRecursive(ctx context.Context, client remote.RemoteClient, remotePath string) ([]remote.RemoteFileEntry, error) {
	entries, err := client.ListFiles(ctx, remotePath)
	if err != nil {
		return nil, err
	}

	var all []remote.RemoteFileEntry
	for _, entry := range entries {
		all = append(all, entry)
		if entry.IsFolder {
			children, err := listRemoteTreeRecursive(ctx, client, entry.Path)
			if err != nil {
				return nil, err
			}
			all = append(all, children...)
		}
	}
	return all, nil
}

func relativeTo(root, full string) string {
	rel := path.Clean(full)
	rootClean := path.Clean(root)
	if rootClean == "." || rootClean == "/" {
		return rel
	}
	if trimmed := trimPrefixSlash(rel, rootClean); trimmed != rel {
		return trimmed
	}
	return rel
}

func trimPrefixSlash(s, prefix string) string {
	if len(s) > len(prefix) && s[:len(prefix)] == prefix && s[len(prefix)] == '/' {
		return s[len(prefix)+1:]
	}
	return s
}
