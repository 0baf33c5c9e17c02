package remote

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/coldvault/agent/internal/logging"
)

var percentPattern = regexp.MustCompile(`\d+%`)

// InternxtClient shells out to the "internxt" binary on PATH and interprets
// its stdout/stderr. It never aborts on a bad outcome: every failure is
// returned as data.
type InternxtClient struct {
	binary string
	logger logging.Logger
}

// New constructs a RemoteClient backed by the internxt CLI.
func New(logger logging.Logger) *InternxtClient {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &InternxtClient{binary: "internxt", logger: logger}
}

func (c *InternxtClient) CheckAvailability(ctx context.Context) Availability {
	versionOut, err := c.run(ctx, "--version")
	if err != nil || strings.TrimSpace(versionOut) == "" {
		return Availability{Installed: false}
	}

	if _, err := c.run(ctx, "list-files", "/", "--format=json"); err != nil {
		return Availability{Installed: true, Authenticated: false, Version: strings.TrimSpace(versionOut), Err: err}
	}

	return Availability{Installed: true, Authenticated: true, Version: strings.TrimSpace(versionOut)}
}

func (c *InternxtClient) UploadFile(ctx context.Context, local, remotePath string) Result {
	return c.UploadFileStreamed(ctx, local, remotePath, nil)
}

func (c *InternxtClient) UploadFileStreamed(ctx context.Context, local, remotePath string, onPercent PercentFunc) Result {
	return c.runStreamed(ctx, onPercent, "upload-file", quote(local), quote(remotePath))
}

func (c *InternxtClient) DownloadFile(ctx context.Context, remotePath, local string) Result {
	return c.DownloadFileStreamed(ctx, remotePath, local, nil)
}

func (c *InternxtClient) DownloadFileStreamed(ctx context.Context, remotePath, local string, onPercent PercentFunc) Result {
	return c.runStreamed(ctx, onPercent, "download-file", quote(remotePath), quote(local))
}

func (c *InternxtClient) CreateFolder(ctx context.Context, remotePath string) Result {
	out, err := c.run(ctx, "create-folder", quote(remotePath))
	if err != nil && !strings.Contains(strings.ToLower(out), "already exists") {
		return Result{Success: false, Output: out, Err: err}
	}
	if isFailureOutput(out) && !strings.Contains(strings.ToLower(out), "already exists") {
		return Result{Success: false, Output: out}
	}
	return Result{Success: true, Output: out}
}

func (c *InternxtClient) ListFiles(ctx context.Context, remotePath string) ([]RemoteFileEntry, error) {
	out, err := c.run(ctx, "list-files", quote(remotePath), "--format=json")
	if err != nil {
		return nil, err
	}

	if entries, ok := parseJSONListing(out); ok {
		return entries, nil
	}
	return parseLineListing(out), nil
}

func (c *InternxtClient) FileExists(ctx context.Context, remotePath string) bool {
	out, err := c.run(ctx, "list-files", quote(remotePath), "--format=json")
	if err != nil {
		return false
	}
	return !isFailureOutput(out)
}

func (c *InternxtClient) DeleteFile(ctx context.Context, remotePath string) bool {
	out, err := c.run(ctx, "delete", quote(remotePath), "--permanent")
	if err != nil {
		return false
	}
	return !isFailureOutput(out)
}

func (c *InternxtClient) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, c.binary, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	out := buf.String()
	if err == nil && isFailureOutput(out) {
		err = fmt.Errorf("remote CLI reported failure: %s", strings.TrimSpace(out))
	}
	return out, err
}

// runStreamed invokes the CLI and scans its combined output line by line,
// forwarding the first "N%" match on each line to onPercent and classifying the final result
// by the case-insensitive presence of "error" or "failed" anywhere in the
// output, per §4.1.
func (c *InternxtClient) runStreamed(ctx context.Context, onPercent PercentFunc, args ...string) Result {
	cmd := exec.CommandContext(ctx, c.binary, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{Success: false, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{Success: false, Err: err}
	}

	var mu sync.Mutex
	var all strings.Builder

	if err := cmd.Start(); err != nil {
		return Result{Success: false, Err: err}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanStream(stdout, onPercent, &mu, &all)
	}()
	go func() {
		defer wg.Done()
		scanStream(stderr, onPercent, &mu, &all)
	}()
	wg.Wait()

	waitErr := cmd.Wait()
	output := all.String()

	if waitErr != nil {
		c.logger.Warn("remote CLI exited with error", logging.F("error", waitErr.Error()))
		return Result{Success: false, Output: output, Err: waitErr}
	}
	if isFailureOutput(output) {
		return Result{Success: false, Output: output}
	}
	return Result{Success: true, Output: output}
}

func scanStream(r io.Reader, onPercent PercentFunc, mu *sync.Mutex, all *strings.Builder) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		mu.Lock()
		all.WriteString(line)
		all.WriteString("\n")
		mu.Unlock()

		if onPercent != nil {
			if m := percentPattern.FindString(line); m != "" {
				n, err := strconv.Atoi(strings.TrimSuffix(m, "%"))
				if err == nil {
					onPercent(n)
				}
			}
		}
	}
}

func isFailureOutput(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "error") || strings.Contains(lower, "failed")
}

// quote wraps a path in double quotes without escaping embedded quotes,
// matching the documented limitation in §4.1/§9.
func quote(path string) string {
	return `"` + path + `"`
}

func parseJSONListing(out string) ([]RemoteFileEntry, bool) {
	trimmed := strings.TrimSpace(out)
	if trimmed == "" {
		return nil, false
	}

	var arr []struct {
		Name     string `json:"name"`
		Path     string `json:"path"`
		Size     int64  `json:"size"`
		IsFolder bool   `json:"isFolder"`
	}
	if err := json.Unmarshal([]byte(trimmed), &arr); err == nil {
		entries := make([]RemoteFileEntry, 0, len(arr))
		for _, e := range arr {
			entries = append(entries, RemoteFileEntry{Name: e.Name, Path: e.Path, SizeBytes: e.Size, IsFolder: e.IsFolder})
		}
		return entries, true
	}

	var single struct {
		Name     string `json:"name"`
		Path     string `json:"path"`
		Size     int64  `json:"size"`
		IsFolder bool   `json:"isFolder"`
	}
	if err := json.Unmarshal([]byte(trimmed), &single); err == nil {
		return []RemoteFileEntry{{Name: single.Name, Path: single.Path, SizeBytes: single.Size, IsFolder: single.IsFolder}}, true
	}

	return nil, false
}

var lineEntryPattern = regexp.MustCompile(`^(.+?)\s+(\d+)\s+bytes$`)

func parseLineListing(out string) []RemoteFileEntry {
	var entries []RemoteFileEntry
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, "/") {
			name := strings.TrimSuffix(line, "/")
			entries = append(entries, RemoteFileEntry{Name: name, Path: line, IsFolder: true})
			continue
		}
		if m := lineEntryPattern.FindStringSubmatch(line); m != nil {
			size, err := strconv.ParseInt(m[2], 10, 64)
			if err != nil {
				continue
			}
			entries = append(entries, RemoteFileEntry{Name: m[1], Path: m[1], SizeBytes: size})
		}
	}
	return entries
}
