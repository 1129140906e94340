package cli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/berth-dev/nftbatch/internal/browser"
	"github.com/berth-dev/nftbatch/internal/config"
	"github.com/berth-dev/nftbatch/internal/execute"
	"github.com/berth-dev/nftbatch/internal/fault"
	"github.com/berth-dev/nftbatch/internal/history"
	"github.com/berth-dev/nftbatch/internal/items"
	"github.com/berth-dev/nftbatch/internal/log"
	"github.com/berth-dev/nftbatch/internal/testutil"
	"github.com/berth-dev/nftbatch/internal/tui"
)

func openItems(t *testing.T, dir string, actions items.ActionSet) *items.Source {
	t.Helper()
	src, err := items.Open(filepath.Join(dir, "data", "nfts.json"), actions)
	if err != nil {
		t.Fatalf("items.Open() error = %v", err)
	}
	return src
}

func TestDataFiles(t *testing.T) {
	dir := testutil.TempProject(t, map[string]string{
		"data/b.csv":      testutil.SaleCSV("https://opensea.io/assets/ethereum/0x1/1"),
		"data/a.json":     "[]",
		"data/c.xlsx":     "",
		"data/notes.txt":  "ignored",
		"data/art/1.png":  "\x89PNG",
		"data/sub/d.json": "[]",
	})

	files, err := dataFiles(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatalf("dataFiles() error = %v", err)
	}
	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	if got := strings.Join(names, ","); got != "a.json,b.csv,c.xlsx" {
		t.Errorf("dataFiles() = %s, want a.json,b.csv,c.xlsx", got)
	}

	missing, err := dataFiles(filepath.Join(dir, "nope"))
	if err != nil || missing != nil {
		t.Errorf("dataFiles(missing) = %v, %v; want nil, nil", missing, err)
	}
}

func TestPickDataFileSingleAndNone(t *testing.T) {
	chooser := tui.NewPromptChooser(strings.NewReader(""), &strings.Builder{})

	dir := testutil.TempProject(t, testutil.ItemsProject(1))
	got, err := pickDataFile(chooser, filepath.Join(dir, "data"))
	if err != nil || filepath.Base(got) != "nfts.json" {
		t.Errorf("pickDataFile() = %q, %v; want nfts.json", got, err)
	}

	if _, err := pickDataFile(chooser, t.TempDir()); err == nil {
		t.Error("pickDataFile(empty dir) succeeded, want error")
	}
}

func TestPickActions(t *testing.T) {
	chooser := tui.NewPromptChooser(strings.NewReader(""), &strings.Builder{})

	got, err := pickActions(chooser, "upload+sale")
	if err != nil || got.String() != "upload+sale" {
		t.Errorf("pickActions(flag) = %v, %v", got, err)
	}
	if _, err := pickActions(chooser, "upload,delete"); err == nil {
		t.Error("pickActions(upload,delete) succeeded, want error")
	}
	if _, err := pickActions(chooser, ""); err == nil {
		t.Error("pickActions without a terminal succeeded, want error")
	}
}

func TestApplySessionFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	addSessionFlags(cmd)
	for name, value := range map[string]string{
		"wallet":             "Coinbase",
		"window":             "6h",
		"max-login-attempts": "3",
		"status-port":        "8089",
		"headless":           "true",
	} {
		if err := cmd.Flags().Set(name, value); err != nil {
			t.Fatalf("Set(%s) error = %v", name, err)
		}
	}

	cfg := config.DefaultConfig()
	if err := applySessionFlags(cmd, cfg); err != nil {
		t.Fatalf("applySessionFlags() error = %v", err)
	}
	if cfg.Wallet.Name != "coinbase" {
		t.Errorf("Wallet.Name = %q, want coinbase", cfg.Wallet.Name)
	}
	if cfg.Execution.SessionWindowHours != 6 {
		t.Errorf("SessionWindowHours = %d, want 6", cfg.Execution.SessionWindowHours)
	}
	if cfg.Execution.MaxLoginAttempts != 3 || cfg.Status.Port != 8089 || !cfg.Browser.Headless {
		t.Errorf("config = %+v", cfg)
	}
	// Unset flags keep the config values.
	if cfg.Captcha.Solver != "manual" || cfg.Browser.Name != "chrome" {
		t.Errorf("unset flags changed config: solver %q browser %q", cfg.Captcha.Solver, cfg.Browser.Name)
	}
}

func TestApplySessionFlagsRejectsFirefox(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	addSessionFlags(cmd)
	if err := cmd.Flags().Set("browser", "firefox"); err != nil {
		t.Fatal(err)
	}
	if err := applySessionFlags(cmd, config.DefaultConfig()); err == nil {
		t.Error("applySessionFlags(firefox) succeeded, want error")
	}
}

func TestReopenSource(t *testing.T) {
	dir := testutil.TempProject(t, testutil.ItemsProject(3))
	actions := items.MustActionSet(items.StageUpload, items.StageSale)
	src := openItems(t, dir, actions)

	cp := &execute.CheckpointFile{
		DataFile:     src.Path(),
		SourceDigest: src.Digest(),
		Actions:      actions.String(),
		Next:         1,
		Total:        3,
	}
	got, err := reopenSource(cp, false)
	if err != nil {
		t.Fatalf("reopenSource() error = %v", err)
	}
	if got.Len() != 3 || got.Digest() != src.Digest() {
		t.Errorf("reopenSource() = %d items digest %s", got.Len(), got.Digest())
	}

	// Same count, different content.
	changed := testutil.ItemsProject(3, 1)
	if err := os.WriteFile(src.Path(), []byte(changed["data/nfts.json"]), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := reopenSource(cp, false); err == nil || !strings.Contains(err.Error(), "changed") {
		t.Errorf("reopenSource(changed) error = %v, want changed", err)
	}
	if _, err := reopenSource(cp, true); err != nil {
		t.Errorf("reopenSource(changed, force) error = %v", err)
	}

	cp.Total = 5
	if _, err := reopenSource(cp, true); err == nil {
		t.Error("reopenSource(count mismatch) succeeded, want error")
	}
}

func TestEventLogWritesEntries(t *testing.T) {
	dir := t.TempDir()
	logger, err := log.NewLogger(dir)
	if err != nil {
		t.Fatal(err)
	}
	pool := execute.NewExecutionPool(2, 0)
	pool.Observe(execute.Event{Kind: log.EventCheckpointAdvanced, Index: 0, Next: 1, Total: 2, Reason: execute.OutcomeSucceeded})
	l := newEventLog(logger, "run-1", pool)

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l.Observe(execute.Event{Kind: log.EventStageFailed, Time: now, Index: 0, Item: "Cat #1", Stage: items.StageSale,
		Err: fault.Contained(errors.New("form rejected"), execute.CodePriceRejected)})
	l.Observe(execute.Event{Kind: log.EventSessionAcquired, Time: now, Index: -1, Next: 0, Total: 2})
	l.Observe(execute.Event{Kind: log.EventRunComplete, Time: now, Index: -1, Next: 2, Total: 2, Reason: "completed"})

	events, err := logger.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}

	failed := events[0]
	if failed.RunID != "run-1" || failed.Stage != "sale" || failed.Code != execute.CodePriceRejected {
		t.Errorf("stage_failed entry = %+v", failed)
	}
	if failed.Index == nil || *failed.Index != 0 {
		t.Errorf("stage_failed index = %v, want 0", failed.Index)
	}
	if !strings.Contains(failed.Error, "form rejected") {
		t.Errorf("stage_failed error = %q", failed.Error)
	}
	if events[1].Index != nil || events[1].Stage != "" {
		t.Errorf("session_acquired entry = %+v, want no index or stage", events[1])
	}
	if events[2].Succeeded != 1 {
		t.Errorf("run_complete succeeded = %d, want 1", events[2].Succeeded)
	}
}

func TestCheckpointWriter(t *testing.T) {
	dir := testutil.TempProject(t, testutil.ItemsProject(4))
	src := openItems(t, dir, items.MustActionSet(items.StageUpload))
	runDir := t.TempDir()

	w := newCheckpointWriter(runDir, "run-9", src)
	if err := w.Save(0); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	w.Observe(execute.Event{Kind: log.EventItemStarted, Index: 0})
	w.Observe(execute.Event{Kind: log.EventCheckpointAdvanced, Index: 0, Next: 1, Total: 4})
	w.Observe(execute.Event{Kind: log.EventCheckpointAdvanced, Index: 1, Next: 2, Total: 4})

	cp, err := execute.LoadCheckpoint(runDir)
	if err != nil {
		t.Fatalf("LoadCheckpoint() error = %v", err)
	}
	if cp.RunID != "run-9" || cp.Next != 2 || cp.Total != 4 || cp.Actions != "upload" {
		t.Errorf("checkpoint = %+v", cp)
	}
	if cp.SourceDigest != src.Digest() || cp.DataFile != src.Path() {
		t.Errorf("checkpoint source = %s %s", cp.DataFile, cp.SourceDigest)
	}
}

func TestEnsureGitignore(t *testing.T) {
	dir := testutil.TempProject(t, map[string]string{".gitignore": "node_modules/"})

	if err := ensureGitignore(dir, "assets"); err != nil {
		t.Fatalf("ensureGitignore() error = %v", err)
	}
	if err := ensureGitignore(dir, "assets"); err != nil {
		t.Fatalf("ensureGitignore() second call error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	if !strings.HasPrefix(got, "node_modules/\n") {
		t.Errorf(".gitignore lost existing entries:\n%s", got)
	}
	for _, want := range []string{"assets/*.txt", ".nftbatch/runs/", ".nftbatch/history.db*"} {
		if strings.Count(got, want) != 1 {
			t.Errorf(".gitignore has %q %d times, want once:\n%s", want, strings.Count(got, want), got)
		}
	}
}

func TestScaffold(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	if err := scaffold(dir, cfg); err != nil {
		t.Fatalf("scaffold() error = %v", err)
	}
	for _, sub := range []string{".nftbatch/runs", "data", "assets"} {
		if info, err := os.Stat(filepath.Join(dir, sub)); err != nil || !info.IsDir() {
			t.Errorf("%s not created: %v", sub, err)
		}
	}
}

func TestFormatReport(t *testing.T) {
	ended := time.Now()
	run := &history.Run{ID: "abc", DataFile: "data/nfts.json", Actions: "upload+sale", Total: 3, Next: 3, Status: history.StatusCompleted}
	sessions := []history.Session{{StartIndex: 0, EndIndex: 3, Reason: "completed", EndedAt: &ended}}
	results := []history.ItemResult{
		{ItemIndex: 0, Item: "one", Stage: "upload", Outcome: "succeeded", URL: "https://x/0"},
		{ItemIndex: 1, Item: "two", Outcome: "skipped", Error: "name is required"},
		{ItemIndex: 2, Item: "three", Stage: "upload", Outcome: "failed", Error: "form rejected"},
	}

	out := formatReport(run, sessions, results, false)
	for _, want := range []string{"Run abc (done)", "Progress: 3/3", "items 1-3  completed", "https://x/0", "(name is required)", "[3] failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}

	failedOnly := formatReport(run, sessions, results, true)
	if strings.Contains(failedOnly, "https://x/0") {
		t.Errorf("--failed report lists succeeded items:\n%s", failedOnly)
	}
}

func TestProjectConfigRequiresInit(t *testing.T) {
	if _, err := projectConfig(t.TempDir()); err == nil || !strings.Contains(err.Error(), "nftbatch init") {
		t.Errorf("projectConfig(uninitialized) error = %v", err)
	}

	dir := testutil.TempProject(t, map[string]string{
		".nftbatch/config.yaml": testutil.ConfigYAML(map[string]int{"session_window_hours": 6}),
	})
	cfg, err := projectConfig(dir)
	if err != nil {
		t.Fatalf("projectConfig() error = %v", err)
	}
	if cfg.Execution.SessionWindowHours != 6 || cfg.Execution.HousekeepingEvery != 10 {
		t.Errorf("execution = %+v, want window 6 with default housekeeping", cfg.Execution)
	}
}

func TestCredentialNeedsFollowProfile(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Browser.UserDataDir = ""
	if !credentialNeeds(cfg).RecoveryPhrase {
		t.Error("fresh profile: RecoveryPhrase = false, want true")
	}
	cfg.Browser.UserDataDir = t.TempDir()
	if credentialNeeds(cfg).RecoveryPhrase {
		t.Error("existing profile: RecoveryPhrase = true, want false")
	}
	cfg.Captcha.Solver = "2captcha"
	if !credentialNeeds(cfg).CaptchaKey {
		t.Error("2captcha: CaptchaKey = false, want true")
	}
}

func TestWalletKeyOnlyForImportingWallets(t *testing.T) {
	mm, _ := browser.NewWallet("metamask", "")
	if got := walletKey(mm, "0xabc"); got != "0xabc" {
		t.Errorf("walletKey(metamask) = %q, want 0xabc", got)
	}
	if got := walletKey(mm, ""); got != "" {
		t.Errorf("walletKey(metamask, empty) = %q, want empty", got)
	}
	cb, _ := browser.NewWallet("coinbase", "")
	if got := walletKey(cb, "0xabc"); got != "" {
		t.Errorf("walletKey(coinbase) = %q, want empty", got)
	}
}
