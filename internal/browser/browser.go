// Package browser drives a Chromium browser with a wallet extension through
// chromedp: launching, wallet unlock, marketplace login and the item stages.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/berth-dev/nftbatch/internal/fault"
)

// CodeSessionLost is the fault code for a browser that went away.
const CodeSessionLost = "session_lost"

// Options configures a browser launch.
type Options struct {
	// Browser is the browser family. Only "chrome" is supported.
	Browser  string
	ExecPath string
	Headless bool
	// UserDataDir is an existing profile root. Empty launches a throwaway
	// profile.
	UserDataDir string
	Profile     string
	// ExtensionDir is the unpacked wallet extension to load.
	ExtensionDir string
}

// CheckBrowser rejects browser families chromedp cannot drive.
func CheckBrowser(name string) error {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "chrome", "chromium":
		return nil
	case "firefox":
		return fmt.Errorf("browser firefox is not supported: only Chromium-based browsers can be driven")
	}
	return fmt.Errorf("unknown browser %q", name)
}

// flags returns the command line switches layered on top of chromedp's
// defaults.
func (o Options) flags() map[string]any {
	f := map[string]any{
		"disable-extensions": false,
		"headless":           false,
		"hide-scrollbars":    false,
		"mute-audio":         false,
	}
	if o.Headless {
		// Extensions only load in the new headless mode.
		f["headless"] = "new"
	}
	if o.ExtensionDir != "" {
		f["load-extension"] = o.ExtensionDir
		f["disable-extensions-except"] = o.ExtensionDir
	}
	if o.Profile != "" {
		f["profile-directory"] = o.Profile
	}
	return f
}

func (o Options) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	flags := o.flags()
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}

	opts = append(opts, chromedp.WindowSize(1366, 900))
	if o.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(o.UserDataDir))
	}
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	return opts
}

// Session is one running browser. It satisfies execute.Session and
// execute.Housekeeper.
type Session struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	main        target.ID

	closeOnce sync.Once
	closeErr  error
}

// Launch starts the browser and opens its first tab. The browser lives
// until Close, independent of ctx; ctx only bounds the launch itself.
func Launch(ctx context.Context, opts Options) (*Session, error) {
	if err := CheckBrowser(opts.Browser); err != nil {
		return nil, err
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts.allocatorOptions()...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	s := &Session{ctx: tabCtx, cancelTab: cancelTab, cancelAlloc: cancelAlloc}

	// The first Run allocates the browser; it must use the session's own
	// context or the browser dies with the caller's.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tabCtx) }()
	select {
	case err := <-started:
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("launching browser: %w", err)
		}
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}

	if c := chromedp.FromContext(tabCtx); c != nil && c.Target != nil {
		s.main = c.Target.TargetID
	}
	return s, nil
}

// Alive reports whether the browser is still running.
func (s *Session) Alive() bool {
	return s.ctx.Err() == nil
}

// RunActions runs actions in the main tab. Cancellation and the deadline
// of ctx apply; a browser that died is reported as a fatal fault.
func (s *Session) RunActions(ctx context.Context, actions ...chromedp.Action) error {
	return s.run(ctx, s.ctx, actions...)
}

func (s *Session) run(ctx, tab context.Context, actions ...chromedp.Action) error {
	if !s.Alive() {
		return fault.Fatal(errors.New("browser session ended"), CodeSessionLost)
	}

	runCtx, cancel := context.WithCancel(tab)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if !s.Alive() {
		return fault.Fatal(fmt.Errorf("browser session ended: %w", err), CodeSessionLost)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Housekeep drops accumulated page state: stray tabs are closed and the
// main tab is parked on a blank page.
func (s *Session) Housekeep(ctx context.Context) error {
	infos, err := s.targets(ctx)
	if err != nil {
		return err
	}
	closeErr := closeStrayTabs(infos, s.main, func(info *target.Info) error {
		// Cancelling an attached tab context closes the target.
		tab, cancel := chromedp.NewContext(s.ctx, chromedp.WithTargetID(info.TargetID))
		defer cancel()
		return s.run(ctx, tab)
	})
	return errors.Join(closeErr, s.RunActions(ctx, chromedp.Navigate("about:blank")))
}

// closeStrayTabs calls closeTab for every page target other than main. A
// tab that cannot be closed does not stop the rest.
func closeStrayTabs(infos []*target.Info, main target.ID, closeTab func(*target.Info) error) error {
	var errs []error
	for _, info := range infos {
		if info.Type != "page" || info.TargetID == main {
			continue
		}
		if err := closeTab(info); err != nil {
			errs = append(errs, fmt.Errorf("closing tab %s: %w", info.URL, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Session) targets(ctx context.Context) ([]*target.Info, error) {
	var infos []*target.Info
	err := s.RunActions(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		infos, err = chromedp.Targets(ctx)
		return err
	}))
	return infos, err
}

// Tab is a secondary target, typically a wallet popup.
type Tab struct {
	session *Session
	ctx     context.Context
	cancel  context.CancelFunc
	Info    *target.Info
}

// RunActions runs actions in the tab.
func (t *Tab) RunActions(ctx context.Context, actions ...chromedp.Action) error {
	return t.session.run(ctx, t.ctx, actions...)
}

// Detach releases the tab. The target is closed if it is still open.
func (t *Tab) Detach() {
	t.cancel()
}

// WaitTab polls the open targets until match accepts one and attaches to
// it, giving up after timeout.
func (s *Session) WaitTab(ctx context.Context, match func(*target.Info) bool, timeout time.Duration) (*Tab, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		infos, err := s.targets(ctx)
		if err != nil {
			if fault.IsFatal(err) {
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, fmt.Errorf("no matching tab within %s", timeout)
			}
		}
		for _, info := range infos {
			if info.TargetID != s.main && match(info) {
				tabCtx, cancelTab := chromedp.NewContext(s.ctx, chromedp.WithTargetID(info.TargetID))
				return &Tab{session: s, ctx: tabCtx, cancel: cancelTab, Info: info}, nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("no matching tab within %s", timeout)
		case <-ticker.C:
		}
	}
}

// Close quits the browser. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
		defer cancel()
		err := chromedp.Cancel(ctx)
		s.cancelTab()
		s.cancelAlloc()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.closeErr = fmt.Errorf("closing browser: %w", err)
		}
	})
	return s.closeErr
}
