// Package captcha solves the CAPTCHA the marketplace shows on item creation.
package captcha

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// Kind is the CAPTCHA family on the page.
type Kind string

const (
	KindReCaptchaV2 Kind = "recaptcha_v2"
	KindHCaptcha    Kind = "hcaptcha"
)

// Task describes one CAPTCHA to solve.
type Task struct {
	Kind    Kind
	SiteKey string
	PageURL string
}

// Solver returns a response token for a task. An empty token with a nil
// error means the CAPTCHA was solved in the page itself.
type Solver interface {
	Name() string
	Solve(ctx context.Context, task Task) (string, error)
}

// Options configures New.
type Options struct {
	APIKey       string
	APIURL       string
	PollInterval time.Duration
	Timeout      time.Duration
	In           io.Reader
	Out          io.Writer
}

// New returns the solver registered under name.
func New(name string, opts Options) (Solver, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "manual":
		return &Manual{In: opts.In, Out: opts.Out}, nil
	case "2captcha":
		return NewTwoCaptcha(opts)
	case "none", "":
		return None{}, nil
	case "yolov5":
		return nil, fmt.Errorf("captcha solver yolov5 is not supported")
	}
	return nil, fmt.Errorf("unknown captcha solver %q", name)
}

// Manual waits for the user to solve the CAPTCHA in the browser window.
type Manual struct {
	In  io.Reader
	Out io.Writer
}

func (m *Manual) Name() string { return "manual" }

func (m *Manual) Solve(ctx context.Context, task Task) (string, error) {
	if m.In == nil {
		return "", fmt.Errorf("manual solver needs an input to wait on")
	}
	if m.Out != nil {
		fmt.Fprintf(m.Out, "Solve the CAPTCHA in the browser, then press Enter to continue.\n")
	}
	done := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(m.In).ReadString('\n')
		if err == io.EOF {
			err = nil
		}
		done <- err
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-done:
		return "", err
	}
}

// None is used when no CAPTCHA is expected. Finding one is a failure.
type None struct{}

func (None) Name() string { return "none" }

func (None) Solve(ctx context.Context, task Task) (string, error) {
	return "", fmt.Errorf("a %s CAPTCHA appeared but no solver is configured", task.Kind)
}
