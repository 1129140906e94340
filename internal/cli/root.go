// Package cli defines Cobra command definitions for the nftbatch CLI.
// This file contains the root command, version flag, and help output.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/berth-dev/nftbatch/internal/config"
)

var version = "dev" // set via ldflags at build time

var rootCmd = &cobra.Command{
	Use:   "nftbatch",
	Short: "Batch upload, list and delete NFTs on OpenSea",
	Long: `nftbatch drives a browser session with a wallet extension through a
data file of NFTs, uploading, listing or deleting one item at a time.
Progress is checkpointed after every item so an interrupted batch can be
resumed, and the browser session is rotated before it goes stale.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command with ctx. Called from main.
func Execute(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(cleanCmd)
}

// projectConfig reads the config of the project in root and checks it.
func projectConfig(root string) (*config.Config, error) {
	if _, err := os.Stat(config.Dir(root)); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s not found. Run 'nftbatch init' first", config.Dir(root))
	}
	cfg, err := config.ReadConfig(root)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
