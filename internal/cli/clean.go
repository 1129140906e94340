// clean.go implements the "nftbatch clean" command for manual run directory cleanup.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/berth-dev/nftbatch/internal/cleanup"
	"github.com/berth-dev/nftbatch/internal/config"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove old run directories",
	Long: `Remove old run directories from .nftbatch/runs/.

By default, removes runs older than the configured max_age_days (default 30)
and keeps only the configured keep_recent runs. Runs that can still be
resumed are kept unless --all is given.
Use --dry-run to preview what would be removed.`,
	RunE: runClean,
}

var (
	keepFlag   int
	dryRunFlag bool
	allFlag    bool
)

func init() {
	cleanCmd.Flags().IntVar(&keepFlag, "keep", 0, "Keep only the last N runs (0 = use config)")
	cleanCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Preview what would be removed without deleting")
	cleanCmd.Flags().BoolVar(&allFlag, "all", false, "Also remove runs that could be resumed")
}

func runClean(cmd *cobra.Command, args []string) error {
	root, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}
	cfg, err := projectConfig(root)
	if err != nil {
		return err
	}

	opts := cleanup.Options{
		MaxAgeDays:    cfg.Cleanup.MaxAgeDays,
		Keep:          cfg.Cleanup.KeepRecent,
		KeepResumable: !allFlag,
		DryRun:        dryRunFlag,
	}
	if keepFlag > 0 {
		opts.MaxAgeDays = 0
		opts.Keep = keepFlag
	}

	pruned, err := cleanup.Prune(cleanup.RunsDir(config.Dir(root)), opts)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	if len(pruned) == 0 {
		fmt.Println("No runs to clean up.")
		return nil
	}

	verb := "Removed"
	if dryRunFlag {
		verb = "Would remove"
	}
	for _, name := range pruned {
		fmt.Printf("  %s %s\n", verb, name)
	}
	fmt.Printf("%s %d run(s).\n", verb, len(pruned))
	return nil
}
