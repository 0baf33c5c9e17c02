// Package remote invokes the external "internxt" command-line tool and
// interprets its stdout/stderr. The remote service is treated as an opaque
// process: no SDK, no direct network calls, just subprocess invocations.
package remote

import "context"

// RemoteFileEntry is one row returned by ListFiles.
type RemoteFileEntry struct {
	Name      string
	Path      string
	SizeBytes int64
	IsFolder  bool
}

// Result is the outcome of a single remote-CLI invocation. Failures are data,
// never panics: the component never aborts on a bad outcome.
type Result struct {
	Success bool
	Output  string
	Err     error
}

// Availability reports whether the remote CLI is installed and authenticated.
type Availability struct {
	Installed     bool
	Authenticated bool
	Version       string
	Err           error
}

// PercentFunc receives each percent-complete value the remote CLI reports,
// at most once per occurrence, monotonic only by the CLI's own output.
type PercentFunc func(percent int)

// RemoteClient is the capability set every upload/download path depends on.
// Implementations never escape embedded quotes in paths they pass to the
// CLI (see the design note on argument arrays in §9); callers that need that
// guarantee should avoid shell metacharacters in source paths.
type RemoteClient interface {
	CheckAvailability(ctx context.Context) Availability
	UploadFile(ctx context.Context, local, remotePath string) Result
	UploadFileStreamed(ctx context.Context, local, remotePath string, onPercent PercentFunc) Result
	DownloadFile(ctx context.Context, remotePath, local string) Result
	DownloadFileStreamed(ctx context.Context, remotePath, local string, onPercent PercentFunc) Result
	CreateFolder(ctx context.Context, remotePath string) Result
	ListFiles(ctx context.Context, remotePath string) ([]RemoteFileEntry, error)
	FileExists(ctx context.Context, remotePath string) bool
	DeleteFile(ctx context.Context, remotePath string) bool
}
