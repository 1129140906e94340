package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/berth-dev/nftbatch/internal/captcha"
	"github.com/berth-dev/nftbatch/internal/execute"
)

// Selectors of the marketplace pages.
const (
	selLoggedIn     = `a[href="/account"]`
	selFileInput    = `input[type="file"]`
	selName         = `#name`
	selExternalLink = `#external_link`
	selDescription  = `#description`
	selSupply       = `#supply`
	selUnlockable   = `#unlockable-content-toggle`
	selUnlockText   = `textarea[placeholder*="nlockable"]`
	selSensitive    = `#explicit-content-toggle`
	selChain        = `#chain`
	selCollection   = `#collection`
	selPrice        = `input[name="price"]`
	selQuantity     = `input[name="quantity"]`
	selDuration     = `#duration`
	selBuyerToggle  = `#reserve-buyer-toggle`
	selBuyer        = `input[name="reservedBuyerAddressOrEnsName"]`
	selOption       = `[role="option"], li, button`
)

// walletLabels are the names the marketplace's connect dialog uses.
var walletLabels = map[string][]string{
	"metamask": {"MetaMask"},
	"coinbase": {"Coinbase Wallet", "Coinbase"},
}

// Marketplace drives the marketplace site in a session.
type Marketplace struct {
	BaseURL string
	Wallet  *Wallet
	Solver  captcha.Solver
	// PopupTimeout bounds the wait for a wallet popup.
	PopupTimeout time.Duration
}

func (m *Marketplace) url(path string) string {
	return strings.TrimRight(m.BaseURL, "/") + path
}

func (m *Marketplace) popupTimeout() time.Duration {
	if m.PopupTimeout > 0 {
		return m.PopupTimeout
	}
	return 60 * time.Second
}

// Login connects the wallet to the marketplace and signs the login message.
// A session that is already logged in is left as is.
func (m *Marketplace) Login(ctx context.Context, s *Session) error {
	var state string
	err := s.RunActions(ctx,
		chromedp.Navigate(m.BaseURL),
		waitAny(longWait, &state, selLoggedIn, buttons),
	)
	if err != nil {
		return fmt.Errorf("opening marketplace: %w", err)
	}
	if state == selLoggedIn {
		return nil
	}

	labels := walletLabels[m.Wallet.Name]
	err = s.RunActions(ctx,
		clickText(buttons, shortWait, "Login", "Log in", "Connect wallet"),
		clickText(buttons, shortWait, labels...),
	)
	if err != nil {
		return fmt.Errorf("choosing wallet: %w", err)
	}
	if err := m.Wallet.Approve(ctx, s, m.popupTimeout()); err != nil {
		return fmt.Errorf("connecting wallet: %w", err)
	}

	// The signature request only shows up for accounts without a recent
	// login.
	var loggedIn bool
	if err := s.RunActions(ctx, chromedp.Sleep(2*time.Second), present(selLoggedIn, &loggedIn)); err != nil {
		return err
	}
	if !loggedIn {
		if err := m.Wallet.Approve(ctx, s, m.popupTimeout()); err != nil {
			return fmt.Errorf("signing login message: %w", err)
		}
	}
	if err := s.RunActions(ctx, chromedp.WaitVisible(selLoggedIn, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("marketplace did not accept the login: %w", err)
	}
	return nil
}

// captchaScanScript finds a CAPTCHA widget on the page.
const captchaScanScript = `(() => {
	const frame = document.querySelector('iframe[src*="hcaptcha"], iframe[src*="recaptcha"]');
	if (frame) {
		const u = new URL(frame.src);
		const h = u.hostname.includes("hcaptcha");
		return {kind: h ? "hcaptcha" : "recaptcha_v2", sitekey: u.searchParams.get(h ? "sitekey" : "k") || "", url: location.href};
	}
	const el = document.querySelector("[data-sitekey]");
	if (el) return {kind: el.classList.contains("h-captcha") ? "hcaptcha" : "recaptcha_v2", sitekey: el.dataset.sitekey, url: location.href};
	return null;
})()`

type captchaScan struct {
	Kind    string `json:"kind"`
	SiteKey string `json:"sitekey"`
	URL     string `json:"url"`
}

// parseCaptchaScan decodes the scan result. A nil task means no CAPTCHA.
func parseCaptchaScan(raw []byte) (*captcha.Task, error) {
	if !truthy(raw) {
		return nil, nil
	}
	var p captchaScan
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decoding captcha scan: %w", err)
	}
	if p.SiteKey == "" {
		return nil, fmt.Errorf("captcha widget without a site key")
	}
	return &captcha.Task{Kind: captcha.Kind(p.Kind), SiteKey: p.SiteKey, PageURL: p.URL}, nil
}

// injectScript hands a solver token to the widget and fires its callback.
func injectScript(kind captcha.Kind, token string) string {
	field := "g-recaptcha-response"
	if kind == captcha.KindHCaptcha {
		field = "h-captcha-response"
	}
	return fmt.Sprintf(`(() => {
	const token = %s;
	for (const ta of document.querySelectorAll('textarea[name=%s]')) { ta.style.display = "block"; ta.value = token; }
	const el = document.querySelector("[data-callback]");
	if (el && typeof window[el.dataset.callback] === "function") window[el.dataset.callback](token);
	return true;
})()`, jsString(token), jsString(field))
}

// solveCaptcha answers a CAPTCHA if the page shows one.
func (m *Marketplace) solveCaptcha(ctx context.Context, s *Session) error {
	var raw []byte
	if err := s.RunActions(ctx, chromedp.Sleep(time.Second), chromedp.Evaluate(captchaScanScript, &raw)); err != nil {
		return err
	}
	task, err := parseCaptchaScan(raw)
	if err != nil || task == nil {
		return err
	}
	if m.Solver == nil {
		return fmt.Errorf("page asks for a captcha and no solver is configured")
	}
	token, err := m.Solver.Solve(ctx, *task)
	if err != nil {
		return fmt.Errorf("solving captcha with %s: %w", m.Solver.Name(), err)
	}
	if token == "" {
		return nil
	}
	return s.RunActions(ctx, chromedp.Evaluate(injectScript(task.Kind, token), nil))
}

// asSession unwraps the browser session behind an execute.Session.
func asSession(sess execute.Session) (*Session, error) {
	s, ok := sess.(*Session)
	if !ok || s == nil {
		return nil, fmt.Errorf("session %T is not a browser session", sess)
	}
	return s, nil
}
