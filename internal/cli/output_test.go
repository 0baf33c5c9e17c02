package cli

import (
	"testing"
	"time"

	"github.com/coldvault/agent/internal/sync"
)

func TestSummaryTableRendersOneRow(t *testing.T) {
	tbl := summaryTable{sync.Summary{FilesTotal: 10, FilesUploaded: 8, FilesFailed: 2, TotalBytes: 2048}}
	rows := tbl.Rows()
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0][0] != "10" || rows[0][1] != "8" || rows[0][2] != "2" {
		t.Errorf("unexpected row: %v", rows[0])
	}
}

func TestHistoryTableRendersRuns(t *testing.T) {
	runs := historyTable{
		{ID: 1, Operation: "backup", StartedAt: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), FilesTotal: 5, FilesUploaded: 5, Daemon: true},
		{ID: 2, Operation: "restore", StartedAt: time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC), FilesFailed: 1, Error: "remote unavailable"},
	}
	rows := runs.Rows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][1] != "backup" || rows[0][7] != "yes" {
		t.Errorf("unexpected first row: %v", rows[0])
	}
	if rows[1][1] != "restore" || rows[1][7] != "" {
		t.Errorf("unexpected second row: %v", rows[1])
	}
}

func TestHistoryTableEmptyMessage(t *testing.T) {
	var runs historyTable
	if len(runs.Rows()) != 0 {
		t.Fatal("expected no rows for empty history")
	}
	if runs.EmptyMessage() == "" {
		t.Fatal("expected a non-empty empty-message")
	}
}
