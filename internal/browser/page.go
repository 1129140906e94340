package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// Timeouts for elements that appear after a page reaction.
const (
	shortWait = 15 * time.Second
	longWait  = 90 * time.Second

	pollInterval = 250 * time.Millisecond
)

var errWaitTimeout = errors.New("timed out")

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func jsStrings(ss []string) string {
	if ss == nil {
		ss = []string{}
	}
	b, _ := json.Marshal(ss)
	return string(b)
}

// truthy mirrors JavaScript truthiness for a JSON encoded value.
func truthy(raw []byte) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", "false", "0", `""`:
		return false
	}
	return true
}

// until evaluates expr until it yields a truthy value and decodes that value
// into res, if res is non-nil. Evaluation errors are retried: the page may
// be navigating.
func until(ctx context.Context, expr string, timeout time.Duration, res any) error {
	deadline := time.Now().Add(timeout)
	for {
		var raw []byte
		err := chromedp.Evaluate(expr, &raw).Do(ctx)
		if err == nil && truthy(raw) {
			if res == nil {
				return nil
			}
			return json.Unmarshal(raw, res)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			if err != nil {
				return err
			}
			return errWaitTimeout
		}
		if err := sleepCtx(ctx, pollInterval); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// findTextScript evaluates to the first visible element matching sel whose
// text equals one of texts, case-insensitively, or null.
func findTextScript(sel string, texts []string) string {
	return fmt.Sprintf(`(() => {
	const wanted = %s.map(t => t.trim().toLowerCase());
	for (const el of document.querySelectorAll(%s)) {
		if (el.offsetParent === null || el.disabled) continue;
		const text = (el.innerText || el.value || el.getAttribute("aria-label") || "").trim().toLowerCase();
		if (wanted.includes(text)) return el;
	}
	return null;
})()`, jsStrings(texts), jsString(sel))
}

// clickText clicks the first element matching sel labelled with one of
// texts, waiting up to timeout for it to show up.
func clickText(sel string, timeout time.Duration, texts ...string) chromedp.Action {
	script := fmt.Sprintf(`(() => { const el = %s; if (!el) return false; el.click(); return true; })()`, findTextScript(sel, texts))
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := until(ctx, script, timeout, nil); err != nil {
			return fmt.Errorf("clicking %s %q: %w", sel, strings.Join(texts, "|"), err)
		}
		return nil
	})
}

// present reports whether sel currently matches anything.
func present(sel string, found *bool) chromedp.Action {
	return chromedp.Evaluate(fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(sel)), found)
}

// waitAny waits until one of the selectors matches and reports which.
func waitAny(timeout time.Duration, which *string, sels ...string) chromedp.Action {
	expr := fmt.Sprintf(`%s.find(s => document.querySelector(s) !== null) || ""`, jsStrings(sels))
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := until(ctx, expr, timeout, which); err != nil {
			return fmt.Errorf("waiting for any of %v: %w", sels, err)
		}
		return nil
	})
}

// fill replaces the value of an input. Key events are sent so the page's
// framework sees the change.
func fill(sel, value string) chromedp.Action {
	return chromedp.Tasks{
		chromedp.WaitVisible(sel, chromedp.ByQuery),
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, value, chromedp.ByQuery),
	}
}

// waitURL waits until the page URL contains fragment and stores it.
func waitURL(fragment string, timeout time.Duration, url *string) chromedp.Action {
	expr := fmt.Sprintf(`location.href.includes(%s) ? location.href : ""`, jsString(fragment))
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := until(ctx, expr, timeout, url); err != nil {
			return fmt.Errorf("waiting for a %q page: %w", fragment, err)
		}
		return nil
	})
}
