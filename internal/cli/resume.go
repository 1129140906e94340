// resume.go implements the "nftbatch resume" command for resuming interrupted runs.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/berth-dev/nftbatch/internal/cleanup"
	"github.com/berth-dev/nftbatch/internal/config"
	"github.com/berth-dev/nftbatch/internal/execute"
	"github.com/berth-dev/nftbatch/internal/items"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume an interrupted run",
	Long: `Resume the most recent run that did not finish. The item file is read
again and must still hold the same records; processing continues at the
first item that was not committed.`,
	RunE: runResume,
}

var forceFlag bool

func init() {
	resumeCmd.Flags().BoolVar(&forceFlag, "force", false, "Resume even if the item file changed since the run started")
	addSessionFlags(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	root, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}
	cfg, err := projectConfig(root)
	if err != nil {
		return err
	}
	if err := applySessionFlags(cmd, cfg); err != nil {
		return err
	}

	runDir, cp, err := cleanup.LatestResumable(cleanup.RunsDir(config.Dir(root)))
	if err != nil {
		return fmt.Errorf("finding latest run: %w", err)
	}
	if cp == nil {
		return fmt.Errorf("no interrupted run to resume; start one with: nftbatch run")
	}

	src, err := reopenSource(cp, forceFlag)
	if err != nil {
		return err
	}

	fmt.Printf("Resuming run from: %s\n", runDir)
	fmt.Printf("  File:    %s\n", cp.DataFile)
	fmt.Printf("  Actions: %s\n", cp.Actions)
	fmt.Printf("  Next:    item %d of %d\n", cp.Next+1, cp.Total)

	return runBatch(cmd.Context(), batch{
		root:   root,
		cfg:    cfg,
		source: src,
		start:  cp.Next,
		runDir: runDir,
		runID:  cp.RunID,
	})
}

// reopenSource reads the checkpoint's item file again and checks it still
// holds the records the checkpoint counts.
func reopenSource(cp *execute.CheckpointFile, force bool) (*items.Source, error) {
	actions, err := items.ParseActionSet(cp.Actions)
	if err != nil {
		return nil, fmt.Errorf("checkpoint actions: %w", err)
	}
	src, err := items.Open(cp.DataFile, actions)
	if err != nil {
		return nil, err
	}
	if src.Len() != cp.Total {
		return nil, fmt.Errorf("%s now has %d items, the run was started with %d", cp.DataFile, src.Len(), cp.Total)
	}
	if src.Digest() != cp.SourceDigest {
		if !force {
			return nil, fmt.Errorf("%s changed since the run started; use --force to resume anyway", cp.DataFile)
		}
		fmt.Fprintf(os.Stderr, "Warning: %s changed since the run started\n", cp.DataFile)
	}
	return src, nil
}
