// Package ui provides terminal output for nftbatch.
// This file implements the progress display shown while items are processed.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/berth-dev/nftbatch/internal/execute"
	"github.com/berth-dev/nftbatch/internal/log"
)

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// ProgressDisplay prints one line per item and session event. On a
// terminal the item in flight is shown on a line that is redrawn in place.
type ProgressDisplay struct {
	mu       sync.Mutex
	out      io.Writer
	title    string
	isTTY    bool
	lineOpen bool

	label   string
	stages  []string
	failure string
	started time.Time
}

// NewProgressDisplay creates a ProgressDisplay writing to stdout.
func NewProgressDisplay(title string) *ProgressDisplay {
	return &ProgressDisplay{
		out:   os.Stdout,
		title: title,
		isTTY: term.IsTerminal(int(os.Stdout.Fd())),
	}
}

// Observe renders a loop event.
func (p *ProgressDisplay) Observe(e execute.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e.Kind {
	case log.EventRunStarted:
		p.println(titleStyle.Render(fmt.Sprintf("nftbatch - %s", p.title)))
		if e.Next > 0 {
			p.println(dimStyle.Render(fmt.Sprintf("Resuming at item %d of %d", e.Next+1, e.Total)))
		}
	case log.EventLoginAttempt:
		p.println(dimStyle.Render(fmt.Sprintf("Logging in (attempt %d)...", e.Attempt)))
	case log.EventLoginFailed:
		p.println(warningStyle.Render(fmt.Sprintf("Login failed at %s: %v", e.Reason, e.Err)))
	case log.EventSessionAcquired:
		p.println(successStyle.Render("Session ready."))
	case log.EventSessionRotated:
		p.println(warningStyle.Render("Restarting the browser session.") + dimStyle.Render(" ("+e.Reason+")"))
	case log.EventHousekeeping:
		p.println(dimStyle.Render(fmt.Sprintf("Housekeeping, pausing %s", e.Duration.Round(time.Second))))
	case log.EventItemStarted:
		p.label = e.Item
		p.stages = p.stages[:0]
		p.failure = ""
		p.started = e.Time
		if p.isTTY {
			fmt.Fprintf(p.out, "\r\033[2K  %s %s %s", warningStyle.Render("⏳"), counter(e.Index, e.Total), truncate(e.Item, 50))
			p.lineOpen = true
		}
	case log.EventStageSucceeded:
		p.stages = append(p.stages, e.Stage.String())
	case log.EventStageFailed:
		p.failure = fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
	case log.EventItemSkipped:
		p.println(fmt.Sprintf("  %s %s %s  %s", dimStyle.Render("⏭"), counter(e.Index, e.Total), truncate(e.Item, 50),
			dimStyle.Render("[skipped: "+e.Reason+"]")))
	case log.EventCheckpointAdvanced:
		p.itemDone(e)
	}
}

func (p *ProgressDisplay) itemDone(e execute.Event) {
	switch e.Reason {
	case execute.OutcomeSucceeded:
		detail := strings.Join(p.stages, "+")
		if !p.started.IsZero() && !e.Time.IsZero() {
			detail += ", " + formatDuration(e.Time.Sub(p.started))
		}
		p.println(fmt.Sprintf("  %s %s %s  %s", successStyle.Render("✓"), counter(e.Index, e.Total), p.currentLabel(e),
			dimStyle.Render("["+detail+"]")))
	case execute.OutcomeFailed:
		p.println(fmt.Sprintf("  %s %s %s  %s", errorStyle.Render("✗"), counter(e.Index, e.Total), p.currentLabel(e),
			errorStyle.Render("["+p.failure+"]")))
	}
}

func (p *ProgressDisplay) currentLabel(e execute.Event) string {
	if p.label != "" {
		return truncate(p.label, 50)
	}
	return fmt.Sprintf("item %d", e.Index+1)
}

// println ends any in-place line before printing.
func (p *ProgressDisplay) println(s string) {
	if p.lineOpen {
		fmt.Fprint(p.out, "\r\033[2K")
		p.lineOpen = false
	}
	fmt.Fprintln(p.out, s)
}

// Finish prints the summary line.
func (p *ProgressDisplay) Finish(s execute.ProgressSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lineOpen {
		fmt.Fprint(p.out, "\n")
		p.lineOpen = false
	}

	fmt.Fprintf(p.out, "\nDone: %d/%d items, %d succeeded", s.Next, s.Total, s.Succeeded)
	if s.Failed > 0 {
		fmt.Fprintf(p.out, ", %d failed", s.Failed)
	}
	if s.Skipped > 0 {
		fmt.Fprintf(p.out, ", %d skipped", s.Skipped)
	}
	if s.Sessions > 1 {
		fmt.Fprintf(p.out, " (%d browser sessions)", s.Sessions)
	}
	fmt.Fprintln(p.out)
}

func counter(index, total int) string {
	return dimStyle.Render(fmt.Sprintf("[%d/%d]", index+1, total))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh%dm%ds", h, m, s)
}
