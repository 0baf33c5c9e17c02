// Package scanner walks a local directory tree and produces the set of
// files that need to be uploaded, consulting a hash cache for change
// detection.
package scanner

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coldvault/agent/internal/hashcache"
	"github.com/coldvault/agent/internal/logging"
)

// StateFileName is the basename of the persisted scanner state, skipped by
// the walker so it never uploads itself.
const StateFileName = "internxt-backup-state.json"

// FileRecord describes one file observed by the scanner.
type FileRecord struct {
	RelativePath string
	AbsolutePath string
	SizeBytes    int64
	Digest       string
	Changed      bool
}

// Result is the outcome of a full tree walk.
type Result struct {
	AllFiles      []FileRecord
	FilesToUpload []FileRecord
	TotalBytes    int64
	TotalMB       float64
}

// State is the on-disk, persisted scan state.
type State struct {
	Files   map[string]string `json:"files"`
	LastRun string            `json:"lastRun"`
}

// FileScanner owns the scanner-state file for one source directory.
type FileScanner struct {
	mu              sync.Mutex
	logger          logging.Logger
	hashCache       *hashcache.HashCache
	sourceDir       string
	statePath       string
	verbose         bool
	forceUpload     bool
	includeHidden   bool
	scanConcurrency int
	state           State
}

// New constructs a FileScanner backed by the given hash cache.
func New(hashCache *hashcache.HashCache, logger logging.Logger) *FileScanner {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &FileScanner{
		hashCache: hashCache,
		logger:    logger,
		state:     State{Files: make(map[string]string)},
	}
}

// ScanOptions configures one Initialize call.
type ScanOptions struct {
	Verbose         bool
	ForceUpload     bool
	IncludeHidden   bool
	ScanConcurrency int
}

// Initialize resolves sourceDir to an absolute path, clears in-memory scan
// state, and wires the hash cache's persisted location.
func (s *FileScanner) Initialize(sourceDir, statePath, cachePath string, opts ScanOptions) error {
	abs, err := filepath.Abs(sourceDir)
	if err != nil {
		return err
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		canonical = abs
	}

	s.mu.Lock()
	s.sourceDir = canonical
	s.statePath = statePath
	s.verbose = opts.Verbose
	s.forceUpload = opts.ForceUpload
	s.includeHidden = opts.IncludeHidden
	s.scanConcurrency = opts.ScanConcurrency
	s.state = State{Files: make(map[string]string)}
	s.mu.Unlock()

	s.hashCache.Initialize(cachePath)
	s.hashCache.Load()

	if data, readErr := os.ReadFile(statePath); readErr == nil {
		var loaded State
		if json.Unmarshal(data, &loaded) == nil {
			if loaded.Files == nil {
				loaded.Files = make(map[string]string)
			}
			s.mu.Lock()
			s.state = loaded
			s.mu.Unlock()
		}
	}

	return nil
}

type candidate struct {
	path string
	info os.FileInfo
}

// Scan walks the source tree and classifies every regular file. Hashing
// runs serially unless a scanConcurrency above one was configured, in which
// case a bounded worker pool hashes candidates while preserving the walk's
// emission order in the returned Result.
func (s *FileScanner) Scan() (Result, error) {
	s.mu.Lock()
	root := s.sourceDir
	statePath := s.statePath
	includeHidden := s.includeHidden
	concurrency := s.scanConcurrency
	s.mu.Unlock()

	var candidates []candidate

	err := filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			s.logger.Warn("failed to read directory entry, skipping", logging.F("path", path), logging.F("error", walkErr.Error()))
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := info.Name()
		if !includeHidden && name != filepath.Base(root) && len(name) > 0 && name[0] == '.' {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			return nil
		}
		if path == statePath {
			return nil
		}

		candidates = append(candidates, candidate{path: path, info: info})
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	records := make([]*FileRecord, len(candidates))
	if concurrency > 1 {
		s.hashConcurrently(root, candidates, records, concurrency)
	} else {
		s.hashSerially(root, candidates, records)
	}

	var result Result
	for _, rec := range records {
		if rec == nil {
			continue
		}
		result.AllFiles = append(result.AllFiles, *rec)
		result.TotalBytes += rec.SizeBytes
		if rec.Changed {
			result.FilesToUpload = append(result.FilesToUpload, *rec)
		}
	}
	result.TotalMB = float64(result.TotalBytes) / (1024 * 1024)
	return result, nil
}

func (s *FileScanner) buildRecord(root string, c candidate, forceUpload bool) *FileRecord {
	digest, err := hashFile(c.path)
	if err != nil {
		s.logger.Warn("failed to hash file, skipping", logging.F("path", c.path), logging.F("error", err.Error()))
		return nil
	}

	rel, relErr := filepath.Rel(root, c.path)
	if relErr != nil {
		rel = c.path
	}
	rel = filepath.ToSlash(rel)

	record := &FileRecord{
		RelativePath: rel,
		AbsolutePath: c.path,
		SizeBytes:    c.info.Size(),
		Digest:       digest,
	}
	if forceUpload {
		record.Changed = true
	} else {
		record.Changed = s.hashCache.HasChanged(c.path)
	}
	return record
}

func (s *FileScanner) hashSerially(root string, candidates []candidate, records []*FileRecord) {
	s.mu.Lock()
	forceUpload := s.forceUpload
	s.mu.Unlock()
	for i, c := range candidates {
		records[i] = s.buildRecord(root, c, forceUpload)
	}
}

func (s *FileScanner) hashConcurrently(root string, candidates []candidate, records []*FileRecord, concurrency int) {
	s.mu.Lock()
	forceUpload := s.forceUpload
	s.mu.Unlock()

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				records[idx] = s.buildRecord(root, candidates[idx], forceUpload)
			}
		}()
	}
	for i := range candidates {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

// UpdateFileState records a successfully uploaded file's digest.
func (s *FileScanner) UpdateFileState(relativePath, digest string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Files == nil {
		s.state.Files = make(map[string]string)
	}
	s.state.Files[relativePath] = digest
}

// RecordCompletion stamps the state with the current ISO-8601 timestamp.
func (s *FileScanner) RecordCompletion() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastRun = time.Now().UTC().Format(time.RFC3339)
}

// SaveState persists the scanner state via write-then-rename.
func (s *FileScanner) SaveState() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.statePath); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}

	tmp := s.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.statePath)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DefaultStatePath returns the scanner state's default location.
func DefaultStatePath(overrideDir string) string {
	if overrideDir != "" {
		return filepath.Join(overrideDir, StateFileName)
	}
	return filepath.Join(os.TempDir(), StateFileName)
}
