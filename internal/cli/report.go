// report.go implements the "nftbatch report" command showing item outcomes.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/berth-dev/nftbatch/internal/history"
)

var reportCmd = &cobra.Command{
	Use:   "report [run-id]",
	Short: "Show item results of a run",
	Long: `Display every item stage of a run: its outcome, the marketplace URL
and the error of failed stages. Without an argument the latest run is
shown; a run ID prefix from 'nftbatch status' is enough.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

var failedOnlyFlag bool

func init() {
	reportCmd.Flags().BoolVar(&failedOnlyFlag, "failed", false, "Show only failed and skipped items")
}

func runReport(cmd *cobra.Command, args []string) error {
	root, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	store, err := openHistoryReadOnly(root)
	if err != nil {
		return err
	}
	defer store.Close()

	var prefix string
	if len(args) > 0 {
		prefix = args[0]
	}
	run, err := findRun(store, prefix)
	if err != nil {
		return err
	}

	results, err := store.GetResults(run.ID)
	if err != nil {
		return err
	}
	sessions, err := store.GetSessions(run.ID)
	if err != nil {
		return err
	}

	fmt.Print(formatReport(run, sessions, results, failedOnlyFlag))
	return nil
}

// findRun resolves an ID prefix, or the latest run when prefix is empty.
func findRun(store *history.Store, prefix string) (*history.Run, error) {
	if prefix == "" {
		run, err := store.LatestRun()
		if err != nil {
			return nil, err
		}
		if run == nil {
			return nil, fmt.Errorf("no runs found; start one with: nftbatch run")
		}
		return run, nil
	}

	runs, err := store.ListRuns(1000)
	if err != nil {
		return nil, err
	}
	var match string
	for _, r := range runs {
		if strings.HasPrefix(r.ID, prefix) {
			if match != "" {
				return nil, fmt.Errorf("run ID %q is ambiguous", prefix)
			}
			match = r.ID
		}
	}
	if match == "" {
		return nil, fmt.Errorf("no run with ID %q", prefix)
	}
	return store.GetRun(match)
}

// formatReport renders a run's results as plain text.
func formatReport(run *history.Run, sessions []history.Session, results []history.ItemResult, failedOnly bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (%s)\n", run.ID, normalizeStatus(run.Status))
	fmt.Fprintf(&b, "  File:     %s\n", run.DataFile)
	fmt.Fprintf(&b, "  Actions:  %s\n", run.Actions)
	fmt.Fprintf(&b, "  Progress: %d/%d\n", run.Next, run.Total)
	fmt.Fprintf(&b, "  Sessions: %d\n", len(sessions))
	for i, s := range sessions {
		reason := s.Reason
		if reason == "" && s.EndedAt == nil {
			reason = "open"
		}
		fmt.Fprintf(&b, "    %d. items %d-%d  %s\n", i+1, s.StartIndex+1, s.EndIndex, reason)
	}
	b.WriteString("\n")

	for _, r := range results {
		if failedOnly && r.Outcome == "succeeded" {
			continue
		}
		stage := r.Stage
		if stage == "" {
			stage = "-"
		}
		fmt.Fprintf(&b, "  [%d] %-9s %-7s %s", r.ItemIndex+1, r.Outcome, stage, r.Item)
		if r.URL != "" {
			fmt.Fprintf(&b, "  %s", r.URL)
		}
		if r.Error != "" {
			fmt.Fprintf(&b, "  (%s)", r.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}
