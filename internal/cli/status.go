// status.go implements the "nftbatch status" command listing recent runs.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/berth-dev/nftbatch/internal/config"
	"github.com/berth-dev/nftbatch/internal/history"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent runs",
	Long: `List the most recent runs with their progress, item outcomes and the
number of browser sessions they used.`,
	RunE: runStatus,
}

var limitFlag int

func init() {
	statusCmd.Flags().IntVar(&limitFlag, "limit", 10, "Number of runs to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	root, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}
	store, err := openHistoryReadOnly(root)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(limitFlag)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return fmt.Errorf("no runs found; start one with: nftbatch run")
	}

	fmt.Println("nftbatch status")
	fmt.Println()
	for _, r := range runs {
		fmt.Printf("  %s  %-11s  %-11s  %s\n", shortID(r.ID), normalizeStatus(r.Status), r.Actions, filepath.Base(r.DataFile))
		fmt.Printf("            %d/%d items, %d succeeded, %d failed, %d skipped, %d session(s), updated %s\n",
			r.Next, r.Total, r.Succeeded, r.Failed, r.Skipped, r.Sessions, r.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

// openHistoryReadOnly opens the history of an initialized project.
func openHistoryReadOnly(root string) (*history.Store, error) {
	path := filepath.Join(config.Dir(root), history.FileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("no runs found; start one with: nftbatch run")
	}
	return history.NewStore(path)
}

// normalizeStatus maps stored run statuses to display labels.
func normalizeStatus(status string) string {
	switch status {
	case history.StatusActive:
		return "running"
	case history.StatusInterrupted:
		return "interrupted"
	case history.StatusFailed:
		return "failed"
	case history.StatusCompleted:
		return "done"
	default:
		return status
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
