// Package sync drives one backup or restore run end to end: it wires the
// scanner, hash cache, transfer queue, progress reporter, and (optionally)
// the resumable uploader together, and owns the ordering guarantees between
// them.
package sync

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/coldvault/agent/internal/hashcache"
	"github.com/coldvault/agent/internal/history"
	"github.com/coldvault/agent/internal/logging"
	"github.com/coldvault/agent/internal/progress"
	"github.com/coldvault/agent/internal/remote"
	"github.com/coldvault/agent/internal/resume"
	"github.com/coldvault/agent/internal/scanner"
	"github.com/coldvault/agent/internal/transfer"
	"github.com/coldvault/agent/internal/utils"
)

// Options configures one SyncOnce or RestoreOnce call.
type Options struct {
	SourceDir       string
	RemoteTarget    string
	Cores           int
	ChunkSizeBytes  int64
	UseResume       bool
	ForceUpload     bool
	Quiet           bool
	Verbose         bool
	IncludeHidden   bool
	ScanConcurrency int
	CacheDir        string
	Daemon          bool
}

// Summary is the outcome of a single run, also what's recorded to history.
type Summary struct {
	FilesTotal    int
	FilesUploaded int
	FilesFailed   int
	TotalBytes    int64
	Err           error
}

// Orchestrator owns one run's component lifecycle. It holds no state
// between runs beyond its collaborators.
type Orchestrator struct {
	client  remote.RemoteClient
	logger  logging.Logger
	history *history.Store
}

// New constructs an Orchestrator. historyStore may be nil to disable run
// recording.
func New(client remote.RemoteClient, logger logging.Logger, historyStore *history.Store) *Orchestrator {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Orchestrator{client: client, logger: logger, history: historyStore}
}

// ComputeConcurrency resolves the configured cores override, or
// max(1, floor(cpuCount*2/3)) when unset.
func ComputeConcurrency(cores int) int {
	if cores > 0 {
		return cores
	}
	n := runtime.NumCPU() * 2 / 3
	if n < 1 {
		n = 1
	}
	return n
}

// SyncOnce performs one backup run.
func (o *Orchestrator) SyncOnce(ctx context.Context, opts Options) Summary {
	started := time.Now()
	summary := o.runBackup(ctx, opts)
	o.recordRun("backup", opts, summary, started)
	return summary
}

func (o *Orchestrator) runBackup(ctx context.Context, opts Options) Summary {
	availability := o.client.CheckAvailability(ctx)
	if !availability.Installed || !availability.Authenticated {
		return Summary{Err: utils.NewPreconditionFailure(fmt.Sprintf("remote CLI unavailable: installed=%v authenticated=%v", availability.Installed, availability.Authenticated))}
	}

	hc := hashcache.New(o.logger)
	fileScanner := scanner.New(hc, o.logger)
	cachePath := hashcache.DefaultCachePath(opts.CacheDir)
	statePath := scanner.DefaultStatePath(opts.CacheDir)
	if err := fileScanner.Initialize(opts.SourceDir, statePath, cachePath, scanner.ScanOptions{
		Verbose:         opts.Verbose,
		ForceUpload:     opts.ForceUpload,
		IncludeHidden:   opts.IncludeHidden,
		ScanConcurrency: opts.ScanConcurrency,
	}); err != nil {
		return Summary{Err: utils.NewInvariantViolation(fmt.Sprintf("failed to initialize scanner: %v", err))}
	}

	scanResult, err := fileScanner.Scan()
	if err != nil {
		return Summary{Err: utils.NewInvariantViolation(fmt.Sprintf("scan failed: %v", err))}
	}

	defer func() {
		fileScanner.RecordCompletion()
		fileScanner.SaveState()
	}()

	if len(scanResult.FilesToUpload) == 0 {
		o.logger.Info("all files up to date")
		return Summary{FilesTotal: len(scanResult.AllFiles), TotalBytes: scanResult.TotalBytes}
	}

	var uploader *resume.ResumableUploader
	if opts.UseResume {
		uploader = resume.New(o.client, o.logger)
		stateDir := filepath.Join(cacheRootFor(opts.CacheDir), "internxt-uploads")
		chunkSize := opts.ChunkSizeBytes
		if chunkSize <= 0 {
			chunkSize = resume.DefaultChunkSizeBytes
		}
		if err := uploader.Initialize(stateDir, chunkSize); err != nil {
			return Summary{Err: utils.NewInvariantViolation(fmt.Sprintf("failed to initialize resumable uploader: %v", err))}
		}
	}

	created := newDirTracker()
	for _, rec := range scanResult.FilesToUpload {
		remoteDir := remoteDirFor(opts.RemoteTarget, rec.RelativePath)
		if err := created.ensure(ctx, o.client, remoteDir); err != nil {
			o.logger.Warn("failed to pre-create remote directory", logging.F("path", remoteDir), logging.F("error", err.Error()))
		}
	}

	reporter := progress.New(nil)
	reporter.Initialize(len(scanResult.FilesToUpload))
	reporter.StartUpdates(utils.ProgressUpdateIntervalMs)

	var mu sync.Mutex
	uploaded := 0
	failed := 0

	queue := transfer.New(o.logger)
	queue.Initialize(ComputeConcurrency(opts.Cores), func(taskCtx context.Context, task transfer.Task) transfer.TaskResult {
		rec := task.Payload.(scanner.FileRecord)
		remotePath := path.Join(opts.RemoteTarget, rec.RelativePath)

		var success bool
		if opts.UseResume && uploader.ShouldUseResumable(rec.SizeBytes) {
			result := uploader.UploadLargeFile(taskCtx, rec.AbsolutePath, remotePath, nil)
			success = result.Success
		} else {
			result := o.client.UploadFileStreamed(taskCtx, rec.AbsolutePath, remotePath, nil)
			success = result.Success
		}

		mu.Lock()
		if success {
			uploaded++
			fileScanner.UpdateFileState(rec.RelativePath, rec.Digest)
		} else {
			failed++
		}
		mu.Unlock()

		if success {
			reporter.RecordSuccess()
		} else {
			reporter.RecordFailure()
		}
		return transfer.TaskResult{Success: success, Identifier: rec.RelativePath}
	}, opts.Verbose)

	tasks := make([]transfer.Task, len(scanResult.FilesToUpload))
	for i, rec := range scanResult.FilesToUpload {
		tasks[i] = transfer.Task{Identifier: rec.RelativePath, Payload: rec}
	}
	queue.SetQueue(tasks)

	done := make(chan struct{})
	queue.Start(ctx, func() { close(done) })
	<-done

	reporter.StopUpdates()
	reporter.RenderSummary()

	mu.Lock()
	defer mu.Unlock()
	return Summary{
		FilesTotal:    len(scanResult.AllFiles),
		FilesUploaded: uploaded,
		FilesFailed:   failed,
		TotalBytes:    scanResult.TotalBytes,
	}
}

func (o *Orchestrator) recordRun(operation string, opts Options, summary Summary, started time.Time) {
	if o.history == nil {
		return
	}
	errText := ""
	if summary.Err != nil {
		errText = summary.Err.Error()
	}
	_, err := o.history.Record(context.Background(), history.Run{
		Operation:     operation,
		Source:        opts.SourceDir,
		Target:        opts.RemoteTarget,
		StartedAt:     started,
		FinishedAt:    time.Now(),
		FilesTotal:    summary.FilesTotal,
		FilesUploaded: summary.FilesUploaded,
		FilesFailed:   summary.FilesFailed,
		TotalBytes:    summary.TotalBytes,
		Daemon:        opts.Daemon,
		Error:         errText,
	})
	if err != nil {
		o.logger.Warn("failed to record run history", logging.F("error", err.Error()))
	}
}

func cacheRootFor(overrideDir string) string {
	if overrideDir != "" {
		return overrideDir
	}
	return filepath.Dir(hashcache.DefaultCachePath(""))
}

func remoteDirFor(remoteTarget, relativePath string) string {
	dir := path.Dir(filepath.ToSlash(relativePath))
	if dir == "." {
		return remoteTarget
	}
	return path.Join(remoteTarget, dir)
}

// dirTracker deduplicates CreateFolder calls within one run.
type dirTracker struct {
	mu      sync.Mutex
	created map[string]bool
}

func newDirTracker() *dirTracker {
	return &dirTracker{created: make(map[string]bool)}
}

func (d *dirTracker) ensure(ctx context.Context, client remote.RemoteClient, remoteDir string) error {
	d.mu.Lock()
	if d.created[remoteDir] {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	result := client.CreateFolder(ctx, remoteDir)

	d.mu.Lock()
	d.created[remoteDir] = true
	d.mu.Unlock()

	if !result.Success {
		return fmt.Errorf("create folder %s: %s", remoteDir, result.Output)
	}
	return nil
}
