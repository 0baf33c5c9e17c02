// Package progress renders a single-line progress bar that coexists with
// incidental log output without corrupting the terminal.
package progress

import (
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/coldvault/agent/internal/utils"
)

const (
	barWidth  = utils.ProgressBarWidth
	fillCell  = "█"
	emptyCell = "░"
	defaultMs = utils.ProgressUpdateIntervalMs
)

// Reporter owns the terminal's single progress line.
type Reporter struct {
	mu            sync.Mutex
	out           io.Writer
	total         int
	succeeded     int
	failed        int
	ticker        *time.Ticker
	stopCh        chan struct{}
	visible       bool
	interceptedMu sync.Mutex
	inIntercept   bool
	isTTY         bool
}

// New constructs a Reporter writing to out. Pass nil to default to stderr.
func New(out io.Writer) *Reporter {
	if out == nil {
		out = os.Stderr
	}
	tty := false
	if f, ok := out.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Reporter{out: out, isTTY: tty}
}

// Initialize zeroes counters for a run of `total` items.
func (r *Reporter) Initialize(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total = total
	r.succeeded = 0
	r.failed = 0
	r.visible = false
}

// RecordSuccess increments the success counter and redraws.
func (r *Reporter) RecordSuccess() {
	r.mu.Lock()
	r.succeeded++
	r.mu.Unlock()
	r.render()
}

// RecordFailure increments the failure counter and redraws.
func (r *Reporter) RecordFailure() {
	r.mu.Lock()
	r.failed++
	r.mu.Unlock()
	r.render()
}

// StartUpdates begins a periodic redraw on a timer. intervalMs <= 0 defaults
// to 250ms.
func (r *Reporter) StartUpdates(intervalMs int) {
	if intervalMs <= 0 {
		intervalMs = defaultMs
	}
	r.mu.Lock()
	if r.ticker != nil {
		r.mu.Unlock()
		return
	}
	r.ticker = time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	r.stopCh = make(chan struct{})
	ticker := r.ticker
	stop := r.stopCh
	r.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				r.render()
			case <-stop:
				return
			}
		}
	}()
}

// StopUpdates cancels the timer.
func (r *Reporter) StopUpdates() {
	r.mu.Lock()
	if r.ticker != nil {
		r.ticker.Stop()
		close(r.stopCh)
		r.ticker = nil
		r.stopCh = nil
	}
	r.mu.Unlock()
}

// Log writes a log line, erasing the bar first if visible and scheduling a
// redraw afterward. Re-entrant calls (a log emitted from inside this method)
// pass through unchanged.
func (r *Reporter) Log(line string) {
	r.interceptedMu.Lock()
	if r.inIntercept {
		r.interceptedMu.Unlock()
		fmt.Fprintln(r.out, line)
		return
	}
	r.inIntercept = true
	r.interceptedMu.Unlock()

	defer func() {
		r.interceptedMu.Lock()
		r.inIntercept = false
		r.interceptedMu.Unlock()
	}()

	r.mu.Lock()
	wasVisible := r.visible
	if wasVisible {
		fmt.Fprint(r.out, "\r\033[K")
	}
	r.mu.Unlock()

	if len(line) == 0 || line[len(line)-1] != '\n' {
		fmt.Fprintln(r.out, line)
	} else {
		fmt.Fprint(r.out, line)
	}

	r.render()
}

func (r *Reporter) render() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderLocked()
}

func (r *Reporter) renderLocked() {
	if r.total == 0 {
		return
	}
	processed := r.succeeded + r.failed
	percent := int(math.Floor(float64(processed) / float64(r.total) * 100))
	filled := int(math.Floor(float64(barWidth) * float64(processed) / float64(r.total)))
	if filled > barWidth {
		filled = barWidth
	}

	bar := ""
	for i := 0; i < barWidth; i++ {
		if i < filled {
			bar += fillCell
		} else {
			bar += emptyCell
		}
	}

	fmt.Fprintf(r.out, "\r[%s] %3d%% (%d/%d, %d failed)", bar, percent, processed, r.total, r.failed)
	r.visible = true

	if processed >= r.total {
		fmt.Fprintln(r.out)
		r.visible = false
		go r.StopUpdates()
	}
}

// RenderSummary prints a final one-line outcome.
func (r *Reporter) RenderSummary() {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "done: %d succeeded, %d failed, %d total\n", r.succeeded, r.failed, r.total)
}
