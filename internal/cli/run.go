// run.go implements the "nftbatch run" command which starts a new batch.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/berth-dev/nftbatch/internal/cleanup"
	"github.com/berth-dev/nftbatch/internal/config"
	"github.com/berth-dev/nftbatch/internal/items"
	"github.com/berth-dev/nftbatch/internal/tui"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Start a batch over an item file",
	Long: `Process the items of a .json, .csv or .xlsx file in order. Each item
goes through the selected actions (upload, sale, upload+sale or delete).
Without a file argument the files in data/ are offered; without --action
the action is asked for.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

var (
	actionFlag           string
	startFlag            int
	walletFlag           string
	browserFlag          string
	solverFlag           string
	windowFlag           time.Duration
	maxLoginAttemptsFlag int
	statusPortFlag       int
	headlessFlag         bool
)

func init() {
	runCmd.Flags().StringVar(&actionFlag, "action", "", "Actions to run: upload, sale, upload+sale or delete")
	runCmd.Flags().IntVar(&startFlag, "start", 0, "Index of the first item to process (0-based)")
	addSessionFlags(runCmd)
}

// addSessionFlags registers the flags shared by run and resume.
func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&walletFlag, "wallet", "", "Wallet extension: metamask or coinbase")
	cmd.Flags().StringVar(&browserFlag, "browser", "", "Browser: chrome")
	cmd.Flags().StringVar(&solverFlag, "solver", "", "CAPTCHA solver: manual, 2captcha or none")
	cmd.Flags().DurationVar(&windowFlag, "window", 0, "Session window before the browser is restarted (e.g. 12h)")
	cmd.Flags().IntVar(&maxLoginAttemptsFlag, "max-login-attempts", 0, "Give up after N failed logins (0 = keep trying)")
	cmd.Flags().IntVar(&statusPortFlag, "status-port", 0, "Serve /health and /progress on 127.0.0.1:PORT")
	cmd.Flags().BoolVar(&headlessFlag, "headless", false, "Run the browser without a window")
}

// applySessionFlags copies the flags the user set over cfg.
func applySessionFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("wallet") {
		cfg.Wallet.Name = strings.ToLower(walletFlag)
	}
	if flags.Changed("browser") {
		cfg.Browser.Name = strings.ToLower(browserFlag)
	}
	if flags.Changed("solver") {
		cfg.Captcha.Solver = strings.ToLower(solverFlag)
	}
	if flags.Changed("window") {
		if windowFlag < time.Hour {
			return fmt.Errorf("--window must be at least 1h")
		}
		cfg.Execution.SessionWindowHours = int(windowFlag.Round(time.Hour) / time.Hour)
	}
	if flags.Changed("max-login-attempts") {
		cfg.Execution.MaxLoginAttempts = maxLoginAttemptsFlag
	}
	if flags.Changed("status-port") {
		cfg.Status.Port = statusPortFlag
	}
	if flags.Changed("headless") {
		cfg.Browser.Headless = headlessFlag
	}
	return cfg.Validate()
}

func runRun(cmd *cobra.Command, args []string) error {
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

	chooser := tui.NewChooser()
	actions, err := pickActions(chooser, actionFlag)
	if err != nil {
		return err
	}

	var path string
	if len(args) > 0 {
		path = args[0]
	} else if path, err = pickDataFile(chooser, filepath.Join(root, dataDirName)); err != nil {
		return err
	}

	src, err := items.Open(path, actions)
	if err != nil {
		return err
	}
	if src.Len() == 0 {
		return fmt.Errorf("%s has no items", path)
	}
	if startFlag < 0 || startFlag >= src.Len() {
		return fmt.Errorf("--start %d is outside the %d items of %s", startFlag, src.Len(), path)
	}
	reportInvalid(src)

	runsDir := cleanup.RunsDir(config.Dir(root))
	autoPrune(runsDir, cfg)
	runDir, err := cleanup.NewRunDir(runsDir, time.Now())
	if err != nil {
		return err
	}

	return runBatch(cmd.Context(), batch{
		root:   root,
		cfg:    cfg,
		source: src,
		start:  startFlag,
		runDir: runDir,
	})
}

// pickActions parses flag or, when it is empty, asks for a preset.
func pickActions(chooser *tui.Chooser, flag string) (items.ActionSet, error) {
	if flag != "" {
		return items.ParseActionSet(flag)
	}
	if !chooser.Interactive {
		return items.ActionSet{}, fmt.Errorf("--action is required when not running in a terminal")
	}
	options := make([]tui.Option, len(items.Presets))
	for i, p := range items.Presets {
		options[i] = tui.Option{Label: p.Label, Detail: p.Actions.String()}
	}
	i, err := chooser.Choose("What do you want to do?", options)
	if err != nil {
		return items.ActionSet{}, err
	}
	return items.Presets[i].Actions, nil
}

// pickDataFile asks for one of the item files in dir.
func pickDataFile(chooser *tui.Chooser, dir string) (string, error) {
	files, err := dataFiles(dir)
	if err != nil {
		return "", err
	}
	switch {
	case len(files) == 0:
		return "", fmt.Errorf("no item files in %s; pass the file as an argument", dir)
	case len(files) == 1:
		return files[0], nil
	case !chooser.Interactive:
		return "", fmt.Errorf("%d item files in %s; pass the file as an argument", len(files), dir)
	}
	options := make([]tui.Option, len(files))
	for i, f := range files {
		options[i] = tui.Option{Label: filepath.Base(f)}
	}
	i, err := chooser.Choose("Which item file?", options)
	if err != nil {
		return "", err
	}
	return files[i], nil
}

// reportInvalid warns about records that will be skipped.
func reportInvalid(src *items.Source) {
	invalid := src.Invalid()
	if len(invalid) == 0 {
		return
	}
	fmt.Fprintf(os.Stderr, "Warning: %d of %d items are invalid and will be skipped:\n", len(invalid), src.Len())
	for i, it := range invalid {
		if i == 5 {
			fmt.Fprintf(os.Stderr, "  ... and %d more\n", len(invalid)-i)
			break
		}
		fmt.Fprintf(os.Stderr, "  [%d] %s\n", it.Index+1, it.Problem)
	}
}

// autoPrune removes old run directories, never ones that can be resumed.
func autoPrune(runsDir string, cfg *config.Config) {
	if cfg.Cleanup.MaxAgeDays <= 0 {
		return
	}
	pruned, err := cleanup.Prune(runsDir, cleanup.Options{MaxAgeDays: cfg.Cleanup.MaxAgeDays, KeepResumable: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cleanup failed: %v\n", err)
	} else if len(pruned) > 0 {
		fmt.Fprintf(os.Stderr, "Cleaned up %d old run(s)\n", len(pruned))
	}
}
