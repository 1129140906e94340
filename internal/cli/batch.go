package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/berth-dev/nftbatch/internal/browser"
	"github.com/berth-dev/nftbatch/internal/captcha"
	"github.com/berth-dev/nftbatch/internal/config"
	"github.com/berth-dev/nftbatch/internal/credentials"
	"github.com/berth-dev/nftbatch/internal/execute"
	"github.com/berth-dev/nftbatch/internal/fault"
	"github.com/berth-dev/nftbatch/internal/history"
	"github.com/berth-dev/nftbatch/internal/items"
	"github.com/berth-dev/nftbatch/internal/log"
	"github.com/berth-dev/nftbatch/internal/statusapi"
	"github.com/berth-dev/nftbatch/internal/ui"
)

// batch is everything runBatch needs to process a source from start.
type batch struct {
	root   string
	cfg    *config.Config
	source *items.Source
	start  int
	runDir string
	// runID continues an earlier run's history; empty starts a new one.
	runID string
}

// runBatch wires the browser, the observers and the execution driver, and
// runs the batch until it completes, is interrupted or fails.
func runBatch(ctx context.Context, b batch) error {
	cfg := b.cfg
	src := b.source

	credsDir := cfg.Credentials.Dir
	if !filepath.IsAbs(credsDir) {
		credsDir = filepath.Join(b.root, credsDir)
	}
	creds, err := credentials.NewStore(credsDir).Load(credentialNeeds(cfg))
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}
	if creds.PrivateKey != "" {
		if addr, addrErr := creds.Address(); addrErr == nil {
			fmt.Printf("Wallet: %s\n", addr.Hex())
		}
	}

	solver, err := captcha.New(cfg.Captcha.Solver, captcha.Options{
		APIKey:       creds.CaptchaKey,
		APIURL:       cfg.Captcha.APIURL,
		PollInterval: time.Duration(cfg.Captcha.PollSeconds) * time.Second,
		Timeout:      time.Duration(cfg.Captcha.TimeoutSeconds) * time.Second,
		In:           os.Stdin,
		Out:          os.Stdout,
	})
	if err != nil {
		return err
	}
	wallet, err := browser.NewWallet(cfg.Wallet.Name, cfg.Wallet.ExtensionID)
	if err != nil {
		return err
	}
	market := &browser.Marketplace{BaseURL: cfg.Marketplace.URL, Wallet: wallet, Solver: solver}
	steps := &browser.Steps{
		Options: browser.Options{
			Browser:      cfg.Browser.Name,
			ExecPath:     cfg.Browser.ExecPath,
			Headless:     cfg.Browser.Headless,
			UserDataDir:  cfg.Browser.UserDataDir,
			Profile:      cfg.Browser.Profile,
			ExtensionDir: cfg.Wallet.ExtensionDir,
		},
		Marketplace:    market,
		Password:       creds.Password,
		RecoveryPhrase: creds.RecoveryPhrase,
		PrivateKey:     walletKey(wallet, creds.PrivateKey),
	}

	store, runID := openHistory(b, src)
	if store != nil {
		defer store.Close()
	}

	logger, err := log.NewLogger(b.root)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	pool := execute.NewExecutionPool(src.Len(), b.start)
	checkpoints := newCheckpointWriter(b.runDir, runID, src)
	if err := checkpoints.Save(b.start); err != nil {
		return err
	}
	display := ui.NewProgressDisplay(filepath.Base(src.Path()))

	observer := execute.Fanout{newEventLog(logger, runID, pool), pool, checkpoints, display}
	var recorder *history.Recorder
	if store != nil {
		recorder = history.NewRecorder(store, runID)
		observer = append(observer, recorder)
	}

	provider := &execute.LoginProvider{
		Steps:       steps,
		MaxAttempts: cfg.Execution.MaxLoginAttempts,
		RetryDelay:  cfg.Execution.LoginRetryDelay(),
		Observer:    observer,
	}
	orch, err := execute.NewOrchestrator(src.Actions(), src, provider, market.Stages(), execute.Options{
		Window:           cfg.Execution.Window(),
		HousekeepEvery:   cfg.Execution.HousekeepingEvery,
		PauseMin:         time.Duration(cfg.Execution.PauseMinSeconds) * time.Second,
		PauseMax:         time.Duration(cfg.Execution.PauseMaxSeconds) * time.Second,
		StageTimeout:     cfg.Execution.StageTimeout(),
		BreakerThreshold: cfg.Execution.CircuitBreakerThreshold,
		Observer:         observer,
	})
	if err != nil {
		return err
	}

	if cfg.Status.Port > 0 {
		srv, srvErr := statusapi.Start(cfg.Status.Port, statusapi.NewRouter(runID, pool))
		if srvErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: status endpoint not started: %v\n", srvErr)
		} else {
			fmt.Printf("Status: http://%s/progress\n", srv.Addr())
			defer func() { _ = srv.Stop() }()
		}
	}

	fmt.Printf("Run directory: %s\n\n", b.runDir)

	driver := &execute.Driver{
		Orchestrator:  orch,
		Observer:      observer,
		MaxRecoveries: cfg.Execution.MaxSessionRecoveries,
	}
	cp, runErr := driver.Run(ctx, execute.NewCheckpoint(b.start, src.Len()))

	display.Finish(pool.Snapshot())
	interrupted := runErr != nil && ctx.Err() != nil
	if recorder != nil {
		if err := recorder.Finish(cp.Next(), runErr, interrupted); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: run history not updated: %v\n", err)
		}
	}

	switch {
	case interrupted:
		fmt.Printf("Interrupted before item %d of %d. Continue with: nftbatch resume\n", cp.Next()+1, cp.Total())
		return nil
	case runErr != nil:
		msg := fmt.Errorf("stopped before item %d of %d: %w", cp.Next()+1, cp.Total(), runErr)
		if hint := fault.HintOf(runErr); hint != "" {
			return fmt.Errorf("%w\n%s", msg, hint)
		}
		if errors.Is(runErr, context.DeadlineExceeded) || fault.IsFatal(runErr) {
			return fmt.Errorf("%w\nFix the problem and continue with: nftbatch resume", msg)
		}
		return msg
	}
	return nil
}

// openHistory opens the run history and registers the run. History is
// optional: on failure the run continues without it under a fresh ID.
func openHistory(b batch, src *items.Source) (*history.Store, string) {
	store, err := history.NewStore(filepath.Join(config.Dir(b.root), history.FileName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: run history unavailable: %v\n", err)
		return nil, fallbackRunID(b.runID)
	}

	if b.runID != "" {
		if run, getErr := store.GetRun(b.runID); getErr == nil && run != nil {
			if updErr := store.UpdateRun(run.ID, b.start, history.StatusActive); updErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: run history not updated: %v\n", updErr)
			}
			return store, run.ID
		}
	}

	run, err := store.CreateRun(src.Path(), src.Actions().String(), src.Len(), b.start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: run not recorded in history: %v\n", err)
		_ = store.Close()
		return nil, fallbackRunID(b.runID)
	}
	return store, run.ID
}

// credentialNeeds lists the secrets the session provider cannot work
// without. An existing browser profile already holds the wallet.
func credentialNeeds(cfg *config.Config) credentials.Need {
	return credentials.Need{
		RecoveryPhrase: cfg.Browser.UserDataDir == "",
		CaptchaKey:     cfg.Captcha.Solver == "2captcha",
	}
}

// walletKey returns the private key to import into w, or "" when w cannot
// import one.
func walletKey(w *browser.Wallet, key string) string {
	if key == "" {
		return ""
	}
	if !w.CanImportKey() {
		fmt.Fprintf(os.Stderr, "Warning: %s cannot import a private key; using the wallet's own account\n", w.Name)
		return ""
	}
	return key
}

func fallbackRunID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
