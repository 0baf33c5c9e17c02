package utils

// Upload sizing thresholds (binary units), per §4.3.
const (
	DefaultChunkSizeBytes   = 50 * 1024 * 1024  // 50 MiB
	ResumableThresholdBytes = 100 * 1024 * 1024 // strictly greater than this
)

// Retry configuration, per §4.3.
const (
	DefaultMaxRetries   = 3
	DefaultRetryDelayMs = 1000
	MaxRetryDelayMs     = 10000
)

// ProgressBarWidth is the fixed width of the rendered progress bar, per §4.5.
const ProgressBarWidth = 40

// ProgressUpdateIntervalMs is the default redraw cadence, per §4.5.
const ProgressUpdateIntervalMs = 250

// SchemaVersion tags the structured CLIOutput envelope.
const SchemaVersion = "1.0"

// RemoteCLIName is the external program the engine shells out to, per §6.
const RemoteCLIName = "internxt"
