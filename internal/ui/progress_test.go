package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/berth-dev/nftbatch/internal/execute"
	"github.com/berth-dev/nftbatch/internal/items"
	"github.com/berth-dev/nftbatch/internal/log"
)

func newTestDisplay() (*ProgressDisplay, *bytes.Buffer) {
	var buf bytes.Buffer
	return &ProgressDisplay{out: &buf, title: "nfts.json"}, &buf
}

func TestProgressDisplayItems(t *testing.T) {
	p, buf := newTestDisplay()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	p.Observe(execute.Event{Kind: log.EventRunStarted, Total: 3, Next: 1})
	p.Observe(execute.Event{Kind: log.EventItemStarted, Index: 1, Total: 3, Item: "Cat #2", Time: start})
	p.Observe(execute.Event{Kind: log.EventStageSucceeded, Index: 1, Stage: items.StageUpload})
	p.Observe(execute.Event{Kind: log.EventStageSucceeded, Index: 1, Stage: items.StageSale})
	p.Observe(execute.Event{Kind: log.EventCheckpointAdvanced, Index: 1, Next: 2, Total: 3, Reason: execute.OutcomeSucceeded, Time: start.Add(75 * time.Second)})
	p.Observe(execute.Event{Kind: log.EventItemStarted, Index: 2, Total: 3, Item: "Cat #3", Time: start})
	p.Observe(execute.Event{Kind: log.EventStageFailed, Index: 2, Stage: items.StageUpload, Err: errors.New("form rejected")})
	p.Observe(execute.Event{Kind: log.EventCheckpointAdvanced, Index: 2, Next: 3, Total: 3, Reason: execute.OutcomeFailed})

	out := buf.String()
	for _, want := range []string{
		"nftbatch - nfts.json",
		"Resuming at item 2 of 3",
		"[2/3]",
		"Cat #2",
		"upload+sale, 1m15s",
		"Cat #3",
		"upload failed: form rejected",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\r") {
		t.Errorf("plain output contains carriage returns:\n%q", out)
	}
}

func TestProgressDisplaySessionEvents(t *testing.T) {
	p, buf := newTestDisplay()

	p.Observe(execute.Event{Kind: log.EventLoginAttempt, Attempt: 2})
	p.Observe(execute.Event{Kind: log.EventSessionRotated, Reason: "window_expired"})
	p.Observe(execute.Event{Kind: log.EventItemSkipped, Index: 0, Total: 4, Item: "bad", Reason: "name is required"})

	out := buf.String()
	for _, want := range []string{"attempt 2", "Restarting the browser session.", "window_expired", "skipped: name is required"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestProgressDisplayTTYRedrawsInPlace(t *testing.T) {
	p, buf := newTestDisplay()
	p.isTTY = true

	p.Observe(execute.Event{Kind: log.EventItemStarted, Index: 0, Total: 1, Item: "one"})
	if !p.lineOpen {
		t.Fatal("item line not left open on a terminal")
	}
	p.Observe(execute.Event{Kind: log.EventCheckpointAdvanced, Index: 0, Next: 1, Total: 1, Reason: execute.OutcomeSucceeded})
	if p.lineOpen {
		t.Error("item line still open after the item finished")
	}
	if !strings.Contains(buf.String(), "\r\033[2K") {
		t.Errorf("missing line reset:\n%q", buf.String())
	}
}

func TestProgressDisplayFinish(t *testing.T) {
	p, buf := newTestDisplay()
	p.Finish(execute.ProgressSnapshot{Total: 25, Next: 25, Succeeded: 22, Failed: 2, Skipped: 1, Sessions: 2})

	want := "Done: 25/25 items, 22 succeeded, 2 failed, 1 skipped (2 browser sessions)"
	if !strings.Contains(buf.String(), want) {
		t.Errorf("Finish() = %q, want %q", buf.String(), want)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{5 * time.Second, "5s"},
		{75 * time.Second, "1m15s"},
		{13*time.Hour + 2*time.Minute + 3*time.Second, "13h2m3s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("a very long item name indeed", 10); got != "a very ..." {
		t.Errorf("truncate = %q, want %q", got, "a very ...")
	}
}
