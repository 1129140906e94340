// init.go implements the "nftbatch init" command.
package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/berth-dev/nftbatch/internal/cleanup"
	"github.com/berth-dev/nftbatch/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize nftbatch in the current directory",
	Long: `Create .nftbatch/config.yaml with default settings, a data/ directory
for item files and the credentials directory (assets/ by default). Secrets
kept in the credentials directory are added to .gitignore.`,
	RunE: runInit,
}

var (
	initWalletFlag string
	initSolverFlag string
)

func init() {
	initCmd.Flags().StringVar(&initWalletFlag, "wallet", "", "Wallet extension: metamask or coinbase")
	initCmd.Flags().StringVar(&initSolverFlag, "solver", "", "CAPTCHA solver: manual, 2captcha or none")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	stateDir := config.Dir(dir)
	if info, statErr := os.Stat(stateDir); statErr == nil && info.IsDir() {
		fmt.Printf("Warning: %s already exists.\n", stateDir)
		fmt.Print("Overwrite config.yaml? [y/N]: ")
		reader := bufio.NewReader(cmd.InOrStdin())
		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(strings.ToLower(answer))
		if answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	cfg := config.DefaultConfig()
	if initWalletFlag != "" {
		cfg.Wallet.Name = strings.ToLower(initWalletFlag)
	}
	if initSolverFlag != "" {
		cfg.Captcha.Solver = strings.ToLower(initSolverFlag)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := scaffold(dir, cfg); err != nil {
		return err
	}
	if err := config.WriteConfig(dir, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := ensureGitignore(dir, cfg.Credentials.Dir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to set up .gitignore: %v\n", err)
	}

	fmt.Println()
	fmt.Println("nftbatch initialized")
	fmt.Printf("  Wallet:  %s\n", cfg.Wallet.Name)
	fmt.Printf("  Solver:  %s\n", cfg.Captcha.Solver)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Set wallet.extension_dir in .nftbatch/config.yaml to the unpacked extension")
	fmt.Printf("  2. Put your password and recovery phrase in %s/ (or enter them when asked)\n", cfg.Credentials.Dir)
	fmt.Println("  3. Put your item file in data/ and run: nftbatch run")
	return nil
}

// scaffold creates the directories a project needs.
func scaffold(dir string, cfg *config.Config) error {
	for _, sub := range []string{
		config.Dir(dir),
		cleanup.RunsDir(config.Dir(dir)),
		filepath.Join(dir, dataDirName),
	} {
		if err := os.MkdirAll(sub, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", sub, err)
		}
	}
	creds := cfg.Credentials.Dir
	if !filepath.IsAbs(creds) {
		creds = filepath.Join(dir, creds)
	}
	if err := os.MkdirAll(creds, 0700); err != nil {
		return fmt.Errorf("creating directory %s: %w", creds, err)
	}
	return nil
}

// ensureGitignore adds the runtime state and the credential files to the
// project's .gitignore, keeping whatever is already there.
func ensureGitignore(dir, credentialsDir string) error {
	gitignorePath := filepath.Join(dir, ".gitignore")

	requiredEntries := []string{
		// Secrets
		filepath.ToSlash(credentialsDir) + "/*.txt",
		// OS files
		".DS_Store",
		"Thumbs.db",
		// nftbatch runtime (config.yaml IS committed)
		".nftbatch/log.jsonl",
		".nftbatch/history.db*",
		".nftbatch/runs/",
	}

	existing := ""
	if data, err := os.ReadFile(gitignorePath); err == nil {
		existing = string(data)
	}

	var missing []string
	for _, entry := range requiredEntries {
		if !strings.Contains(existing, entry) {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString(existing)
	if existing != "" && !strings.HasSuffix(existing, "\n") {
		b.WriteString("\n")
	}
	if existing != "" {
		b.WriteString("\n")
	}
	b.WriteString("# nftbatch\n")
	for _, entry := range missing {
		b.WriteString(entry + "\n")
	}
	return os.WriteFile(gitignorePath, []byte(b.String()), 0644)
}
