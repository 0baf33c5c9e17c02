package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestRecordSuccessAndFailureUpdateCounters(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)
	r.Initialize(4)

	r.RecordSuccess()
	r.RecordSuccess()
	r.RecordFailure()

	if r.succeeded != 2 || r.failed != 1 {
		t.Fatalf("unexpected counters: succeeded=%d failed=%d", r.succeeded, r.failed)
	}
}

func TestRenderReachesTotalAndAutoStops(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)
	r.Initialize(2)
	r.StartUpdates(1000)

	r.RecordSuccess()
	r.RecordSuccess()

	time.Sleep(10 * time.Millisecond)

	out := buf.String()
	if !strings.Contains(out, "100%") {
		t.Fatalf("expected final render to reach 100%%, got %q", out)
	}
	r.mu.Lock()
	stopped := r.ticker == nil
	r.mu.Unlock()
	if !stopped {
		t.Fatal("expected periodic updates to stop once all items were processed")
	}
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)
	r.Initialize(3)
	r.RecordSuccess()
	r.RecordFailure()

	r.RenderSummary()

	out := buf.String()
	if !strings.Contains(out, "1 succeeded") || !strings.Contains(out, "1 failed") {
		t.Fatalf("unexpected summary: %q", out)
	}
}

func TestLogErasesVisibleBarAndWritesLine(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)
	r.Initialize(10)
	r.RecordSuccess()

	r.Log("incidental message")

	out := buf.String()
	if !strings.Contains(out, "\r\033[K") {
		t.Fatalf("expected the visible bar to be erased before the log line, got %q", out)
	}
	if !strings.Contains(out, "incidental message") {
		t.Fatalf("expected log line to appear, got %q", out)
	}
}

func TestStartAndStopUpdates(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)
	r.Initialize(100)
	r.StartUpdates(5)
	time.Sleep(20 * time.Millisecond)
	r.StopUpdates()

	if buf.Len() == 0 {
		t.Fatal("expected at least one periodic render to have occurred")
	}
}
