package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// Wallet is a browser wallet extension and the selectors of its pages.
type Wallet struct {
	Name        string
	ExtensionID string

	home        string
	onboarding  string
	unlockInput string
	unlockText  []string
	ready       string
	importSteps func(phrase, password string) chromedp.Tasks
	// importKey opens the wallet's import-account form and submits key.
	// Nil when the wallet has no such form.
	importKey func(key string) chromedp.Tasks
	keyInput  string
}

// Store IDs of the supported extensions. A locally packed extension gets a
// different ID; config can override it.
const (
	MetaMaskID = "nkbihfbeogaeaoehlefnkodbefgpgknn"
	CoinbaseID = "hnfanknocfeofbddgcijnmhnfnkdnaad"
)

// buttons is the selector approval clicks are matched against.
const buttons = `button, [role="button"]`

// approveTexts are the labels walked through in a connect or signature
// popup, in any order.
var approveTexts = []string{"Next", "Connect", "Confirm", "Sign", "Approve", "Got it"}

// NewWallet returns the wallet named name. An empty extensionID selects
// the store ID.
func NewWallet(name, extensionID string) (*Wallet, error) {
	var w *Wallet
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "metamask", "":
		w = metaMask()
	case "coinbase":
		w = coinbase()
	default:
		return nil, fmt.Errorf("unknown wallet %q (want metamask or coinbase)", name)
	}
	if extensionID != "" {
		w.ExtensionID = extensionID
	}
	return w, nil
}

func metaMask() *Wallet {
	return &Wallet{
		Name:        "metamask",
		ExtensionID: MetaMaskID,
		home:        "home.html",
		onboarding:  `[data-testid="onboarding-import-wallet"]`,
		unlockInput: `[data-testid="unlock-password"]`,
		unlockText:  []string{"Unlock"},
		ready:       `[data-testid="account-menu-icon"]`,
		importSteps: func(phrase, password string) chromedp.Tasks {
			tasks := chromedp.Tasks{
				chromedp.Click(`[data-testid="onboarding-terms-checkbox"]`, chromedp.ByQuery),
				chromedp.Click(`[data-testid="onboarding-import-wallet"]`, chromedp.ByQuery),
				clickText(buttons, shortWait, "No thanks", "I agree"),
			}
			for i, word := range strings.Fields(phrase) {
				tasks = append(tasks, fill(fmt.Sprintf(`[data-testid="import-srp__srp-word-%d"]`, i), word))
			}
			return append(tasks,
				chromedp.Click(`[data-testid="import-srp-confirm"]`, chromedp.ByQuery),
				fill(`[data-testid="create-password-new"]`, password),
				fill(`[data-testid="create-password-confirm"]`, password),
				chromedp.Click(`[data-testid="create-password-terms"]`, chromedp.ByQuery),
				chromedp.Click(`[data-testid="create-password-import"]`, chromedp.ByQuery),
				clickText(buttons, longWait, "Got it", "Done"),
				clickText(buttons, shortWait, "Next"),
				clickText(buttons, shortWait, "Done"),
			)
		},
		keyInput: `#private-key-box`,
		importKey: func(key string) chromedp.Tasks {
			return chromedp.Tasks{
				chromedp.Click(`[data-testid="account-menu-icon"]`, chromedp.ByQuery),
				clickText(buttons, shortWait, "Add account or hardware wallet"),
				clickText(buttons, shortWait, "Import account"),
				fill(`#private-key-box`, key),
				clickText(buttons, shortWait, "Import"),
			}
		},
	}
}

func coinbase() *Wallet {
	return &Wallet{
		Name:        "coinbase",
		ExtensionID: CoinbaseID,
		home:        "index.html",
		onboarding:  `[data-testid="btn-import-existing-wallet"]`,
		unlockInput: `[data-testid="unlock-with-password"]`,
		unlockText:  []string{"Unlock"},
		ready:       `[data-testid="portfolio-selector-nav-tabLabel--crypto"]`,
		importSteps: func(phrase, password string) chromedp.Tasks {
			return chromedp.Tasks{
				chromedp.Click(`[data-testid="btn-import-existing-wallet"]`, chromedp.ByQuery),
				chromedp.Click(`[data-testid="btn-import-recovery-phrase"]`, chromedp.ByQuery),
				clickText(buttons, shortWait, "Acknowledge"),
				fill(`[data-testid="secret-input"]`, phrase),
				chromedp.Click(`[data-testid="btn-import-wallet"]`, chromedp.ByQuery),
				fill(`[data-testid="setPassword"]`, password),
				fill(`[data-testid="setPasswordVerify"]`, password),
				chromedp.Click(`[data-testid="terms-and-privacy-policy"]`, chromedp.ByQuery),
				chromedp.Click(`[data-testid="btn-password-continue"]`, chromedp.ByQuery),
			}
		},
	}
}

// HomeURL is the extension page used for unlocking.
func (w *Wallet) HomeURL() string {
	return "chrome-extension://" + w.ExtensionID + "/" + w.home
}

// isPopup reports whether info is a page of this wallet other than the
// home page.
func (w *Wallet) isPopup(info *target.Info) bool {
	prefix := "chrome-extension://" + w.ExtensionID + "/"
	return info.Type == "page" && strings.HasPrefix(info.URL, prefix) && !strings.HasPrefix(info.URL, w.HomeURL())
}

// Unlock brings the wallet to its ready state. A fresh profile imports the
// recovery phrase, an existing one is unlocked with the password.
func (w *Wallet) Unlock(ctx context.Context, s *Session, password, phrase string) error {
	var state string
	err := s.RunActions(ctx,
		chromedp.Navigate(w.HomeURL()),
		waitAny(longWait, &state, w.onboarding, w.unlockInput, w.ready),
	)
	if err != nil {
		return fmt.Errorf("opening %s: %w", w.Name, err)
	}

	switch state {
	case w.onboarding:
		if phrase == "" {
			return fmt.Errorf("%s has no wallet yet and no recovery phrase was given", w.Name)
		}
		if err := s.RunActions(ctx, w.importSteps(phrase, password)); err != nil {
			return fmt.Errorf("importing wallet into %s: %w", w.Name, err)
		}
	case w.unlockInput:
		err := s.RunActions(ctx,
			fill(w.unlockInput, password),
			clickText(buttons, shortWait, w.unlockText...),
		)
		if err != nil {
			return fmt.Errorf("unlocking %s: %w", w.Name, err)
		}
	}

	if err := s.RunActions(ctx, chromedp.Navigate(w.HomeURL()), chromedp.WaitVisible(w.ready, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("%s did not reach its home screen: %w", w.Name, err)
	}
	return nil
}

// CanImportKey reports whether the wallet can add an account from a
// private key.
func (w *Wallet) CanImportKey() bool { return w.importKey != nil }

// Outcomes of an account import.
const (
	keyImported  = "imported"
	keyDuplicate = "duplicate"
)

// importOutcomeScript evaluates to keyImported once the import form is gone
// and the wallet is back on its home screen, to keyDuplicate when the
// wallet refuses an account it already holds, and to "" meanwhile.
func (w *Wallet) importOutcomeScript() string {
	return fmt.Sprintf(`(() => {
	const text = ((document.body && document.body.innerText) || "").toLowerCase();
	if (text.includes("duplicate") || text.includes("already exists")) return %s;
	if (!document.querySelector(%s) && document.querySelector(%s)) return %s;
	return "";
})()`, jsString(keyDuplicate), jsString(w.keyInput), jsString(w.ready), jsString(keyImported))
}

// ImportKey adds the account of privateKey to the unlocked wallet. An
// account the wallet already holds is left as it is.
func (w *Wallet) ImportKey(ctx context.Context, s *Session, privateKey string) error {
	if !w.CanImportKey() {
		return fmt.Errorf("%s does not support importing a private key", w.Name)
	}
	key := strings.TrimPrefix(strings.TrimSpace(privateKey), "0x")

	var outcome string
	err := s.RunActions(ctx,
		w.importKey(key),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return until(ctx, w.importOutcomeScript(), longWait, &outcome)
		}),
	)
	if err != nil {
		return fmt.Errorf("importing account into %s: %w", w.Name, err)
	}
	if outcome == keyDuplicate {
		// The form stays open on a duplicate; closing it is best effort.
		_ = s.RunActions(ctx, clickText(buttons, shortWait, "Cancel", "Close"))
	}
	return nil
}

// Approve waits for the wallet's popup and clicks through it until it
// closes.
func (w *Wallet) Approve(ctx context.Context, s *Session, timeout time.Duration) error {
	tab, err := s.WaitTab(ctx, w.isPopup, timeout)
	if err != nil {
		return fmt.Errorf("waiting for %s popup: %w", w.Name, err)
	}
	defer tab.Detach()

	for i := 0; i < len(approveTexts); i++ {
		err := tab.RunActions(ctx, clickText(buttons, shortWait, approveTexts...))
		open, lookErr := s.hasTarget(ctx, tab.Info.TargetID)
		if lookErr != nil {
			return lookErr
		}
		if !open {
			return nil
		}
		if err != nil {
			return fmt.Errorf("approving in %s: %w", w.Name, err)
		}
	}
	return fmt.Errorf("%s popup did not close", w.Name)
}

func (s *Session) hasTarget(ctx context.Context, id target.ID) (bool, error) {
	infos, err := s.targets(ctx)
	if err != nil {
		return false, err
	}
	for _, info := range infos {
		if info.TargetID == id {
			return true, nil
		}
	}
	return false, nil
}
