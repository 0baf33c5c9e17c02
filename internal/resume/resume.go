// Package resume implements the large-file upload path: retry with backoff,
// checksum-verified resume, and one JSON state file per in-flight transfer.
package resume

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coldvault/agent/internal/logging"
	"github.com/coldvault/agent/internal/remote"
	"github.com/coldvault/agent/internal/utils"
)

// ResumableThresholdBytes is the size above which UploadLargeFile takes the
// resumable path instead of delegating straight to a streamed upload.
const ResumableThresholdBytes = utils.ResumableThresholdBytes

// DefaultChunkSizeBytes is the chunk size recorded in state files when the
// caller does not override it.
const DefaultChunkSizeBytes = utils.DefaultChunkSizeBytes

const maxRetryAttempts = utils.DefaultMaxRetries

// UploadState is the on-disk, per-file resume record.
type UploadState struct {
	LocalPath      string `json:"filePath"`
	RemotePath     string `json:"remotePath"`
	ChunkSize      int64  `json:"chunkSize"`
	TotalChunks    int    `json:"totalChunks"`
	UploadedChunks []int  `json:"uploadedChunks"`
	FileChecksum   string `json:"checksum"`
	Timestamp      string `json:"timestamp"`
}

// UploadResult is the outcome of UploadLargeFile.
type UploadResult struct {
	Success       bool
	BytesUploaded int64
	Err           error
}

// PercentFunc receives a composed 0..100 progress value.
type PercentFunc func(percent int)

// ResumableUploader owns the resume-state directory and drives the retry
// ladder on top of a RemoteClient.
type ResumableUploader struct {
	mu           sync.Mutex
	client       remote.RemoteClient
	logger       logging.Logger
	stateDir     string
	chunkSize    int64
	baseDelayMs  int
	maxDelayMs   int
	maxAttempts  int
	nowTimestamp func() string
}

// New constructs a ResumableUploader. Call Initialize before use.
func New(client remote.RemoteClient, logger logging.Logger) *ResumableUploader {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &ResumableUploader{
		client:      client,
		logger:      logger,
		chunkSize:   DefaultChunkSizeBytes,
		baseDelayMs: utils.DefaultRetryDelayMs,
		maxDelayMs:  utils.MaxRetryDelayMs,
		maxAttempts: maxRetryAttempts,
		nowTimestamp: func() string {
			return time.Now().UTC().Format(time.RFC3339)
		},
	}
}

// Initialize sets the state directory (created if absent) and chunk size.
func (u *ResumableUploader) Initialize(stateDir string, chunkSize int64) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if chunkSize <= 0 {
		chunkSize = DefaultChunkSizeBytes
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return fmt.Errorf("creating resume state directory: %w", err)
	}
	u.stateDir = stateDir
	u.chunkSize = chunkSize
	return nil
}

// ShouldUseResumable reports whether a file of the given size should take
// the resumable path rather than a plain streamed upload.
func (u *ResumableUploader) ShouldUseResumable(size int64) bool {
	return size > ResumableThresholdBytes
}

// UploadLargeFile uploads localPath to remotePath, using and maintaining
// resume state for files above the resumable threshold.
func (u *ResumableUploader) UploadLargeFile(ctx context.Context, localPath, remotePath string, onPercent PercentFunc) UploadResult {
	info, err := os.Stat(localPath)
	if err != nil {
		return UploadResult{Success: false, Err: fmt.Errorf("stat %s: %w", localPath, err)}
	}
	size := info.Size()

	if !u.ShouldUseResumable(size) {
		result := u.client.UploadFileStreamed(ctx, localPath, remotePath, func(p int) {
			if onPercent != nil {
				onPercent(p)
			}
		})
		if result.Success {
			return UploadResult{Success: true, BytesUploaded: size}
		}
		return UploadResult{Success: false, BytesUploaded: 0, Err: result.Err}
	}

	checksum, err := sha256File(localPath)
	if err != nil {
		return UploadResult{Success: false, Err: fmt.Errorf("hashing %s: %w", localPath, err)}
	}

	state := u.loadState(localPath)
	if state != nil && state.FileChecksum != checksum {
		u.logger.Info("resume state checksum mismatch, starting fresh", logging.F("path", localPath))
		u.ClearState(localPath)
		state = nil
	}
	if state == nil {
		totalChunks := int(math.Ceil(float64(size) / float64(u.currentChunkSize())))
		if totalChunks < 1 {
			totalChunks = 1
		}
		state = &UploadState{
			LocalPath:      localPath,
			RemotePath:     remotePath,
			ChunkSize:      u.currentChunkSize(),
			TotalChunks:    totalChunks,
			UploadedChunks: []int{},
			FileChecksum:   checksum,
			Timestamp:      u.nowTimestamp(),
		}
	}

	var lastErr error
	for attempt := 1; attempt <= u.maxAttempts; attempt++ {
		result := u.client.UploadFileStreamed(ctx, localPath, remotePath, func(p int) {
			if onPercent != nil {
				onPercent(composeProgress(state, p))
			}
		})
		if result.Success {
			u.ClearState(localPath)
			return UploadResult{Success: true, BytesUploaded: size}
		}

		lastErr = result.Err
		state.UploadedChunks = []int{}
		state.Timestamp = u.nowTimestamp()

		if attempt >= u.maxAttempts {
			u.saveState(state)
			return UploadResult{
				Success:       false,
				BytesUploaded: progressBytes(state, size),
				Err:           fmt.Errorf("upload of %s failed after %d attempts: %w", localPath, attempt, lastErr),
			}
		}

		delay := u.backoffDelay(attempt)
		u.logger.Warn("upload attempt failed, retrying",
			logging.F("path", localPath),
			logging.F("attempt", attempt),
			logging.F("delayMs", delay.Milliseconds()))

		select {
		case <-ctx.Done():
			u.saveState(state)
			return UploadResult{Success: false, BytesUploaded: progressBytes(state, size), Err: ctx.Err()}
		case <-time.After(delay):
		}
	}

	u.saveState(state)
	return UploadResult{Success: false, BytesUploaded: progressBytes(state, size), Err: lastErr}
}

// GetProgress reads persisted state, if any, and returns a 0..100 value.
func (u *ResumableUploader) GetProgress(localPath string) int {
	state := u.loadState(localPath)
	if state == nil {
		return 0
	}
	return composeProgress(state, 0)
}

// CanResume reports whether a resumable state file exists with chunks
// remaining.
func (u *ResumableUploader) CanResume(localPath string) bool {
	state := u.loadState(localPath)
	if state == nil {
		return false
	}
	return len(state.UploadedChunks) < state.TotalChunks
}

// ClearState idempotently removes localPath's resume state file.
func (u *ResumableUploader) ClearState(localPath string) {
	path := u.stateFilePath(localPath)
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

func (u *ResumableUploader) currentChunkSize() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.chunkSize
}

func (u *ResumableUploader) backoffDelay(attempt int) time.Duration {
	ms := u.baseDelayMs * (1 << uint(attempt))
	if ms > u.maxDelayMs {
		ms = u.maxDelayMs
	}
	return time.Duration(ms) * time.Millisecond
}

func (u *ResumableUploader) stateFilePath(localPath string) string {
	u.mu.Lock()
	dir := u.stateDir
	u.mu.Unlock()
	if dir == "" {
		return ""
	}
	sum := md5.Sum([]byte(localPath))
	name := fmt.Sprintf("%s.%s.upload-state.json", filepath.Base(localPath), hex.EncodeToString(sum[:]))
	return filepath.Join(dir, name)
}

func (u *ResumableUploader) loadState(localPath string) *UploadState {
	path := u.stateFilePath(localPath)
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var state UploadState
	if err := json.Unmarshal(data, &state); err != nil {
		u.logger.Warn("resume state file is not valid JSON, discarding", logging.F("path", path))
		return nil
	}
	return &state
}

func (u *ResumableUploader) saveState(state *UploadState) {
	path := u.stateFilePath(state.LocalPath)
	if path == "" {
		return
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		u.logger.Error("failed to marshal resume state", logging.F("error", err.Error()))
		return
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		u.logger.Error("failed to write resume state", logging.F("error", err.Error()))
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		u.logger.Error("failed to finalize resume state", logging.F("error", err.Error()))
	}
}

// composeProgress blends the fraction of chunks already persisted with the
// in-flight chunk's own percent, per the documented composition formula.
func composeProgress(state *UploadState, chunkProgress int) int {
	if state.TotalChunks <= 0 {
		return 0
	}
	base := float64(len(state.UploadedChunks)) / float64(state.TotalChunks) * 100
	current := float64(chunkProgress) / float64(state.TotalChunks)
	pct := base + current
	if pct > 100 {
		pct = 100
	}
	return int(math.Round(pct))
}

func progressBytes(state *UploadState, size int64) int64 {
	if state.TotalChunks <= 0 {
		return 0
	}
	fraction := float64(len(state.UploadedChunks)) / float64(state.TotalChunks)
	return int64(fraction * float64(size))
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
