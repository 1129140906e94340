package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TwoCaptcha solves tasks through the 2Captcha HTTP API: submit with
// in.php, then poll res.php until the token is ready.
type TwoCaptcha struct {
	apiKey   string
	baseURL  string
	client   *http.Client
	poll     time.Duration
	timeout  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	maxPolls int
}

// NewTwoCaptcha validates opts and builds the client.
func NewTwoCaptcha(opts Options) (*TwoCaptcha, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, errors.New("2captcha API key is required")
	}
	base := strings.TrimSpace(opts.APIURL)
	if base == "" {
		base = "https://2captcha.com"
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid 2captcha URL: %w", err)
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &TwoCaptcha{
		apiKey:  key,
		baseURL: strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		poll:    poll,
		timeout: timeout,
		sleep:   wait,
	}, nil
}

func (c *TwoCaptcha) Name() string { return "2captcha" }

type apiResponse struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

// Solve submits the task and waits for its token.
func (c *TwoCaptcha) Solve(ctx context.Context, task Task) (string, error) {
	if task.SiteKey == "" || task.PageURL == "" {
		return "", errors.New("captcha task needs a site key and page URL")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("pageurl", task.PageURL)
	q.Set("json", "1")
	switch task.Kind {
	case KindHCaptcha:
		q.Set("method", "hcaptcha")
		q.Set("sitekey", task.SiteKey)
	default:
		q.Set("method", "userrecaptcha")
		q.Set("googlekey", task.SiteKey)
	}
	submitted, err := c.call(ctx, "/in.php", q)
	if err != nil {
		return "", fmt.Errorf("submitting captcha: %w", err)
	}
	if submitted.Status != 1 {
		return "", fmt.Errorf("submitting captcha: %s", submitted.Request)
	}
	id := submitted.Request

	poll := url.Values{}
	poll.Set("key", c.apiKey)
	poll.Set("action", "get")
	poll.Set("id", id)
	poll.Set("json", "1")
	for n := 1; c.maxPolls == 0 || n <= c.maxPolls; n++ {
		if err := c.sleep(ctx, c.poll); err != nil {
			return "", fmt.Errorf("waiting for captcha %s: %w", id, err)
		}
		res, err := c.call(ctx, "/res.php", poll)
		if err != nil {
			return "", fmt.Errorf("polling captcha %s: %w", id, err)
		}
		if res.Status == 1 {
			return res.Request, nil
		}
		if res.Request != "CAPCHA_NOT_READY" {
			return "", fmt.Errorf("captcha %s failed: %s", id, res.Request)
		}
	}
	return "", fmt.Errorf("captcha %s not ready after %d polls", id, c.maxPolls)
}

func (c *TwoCaptcha) call(ctx context.Context, path string, q url.Values) (apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return apiResponse{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return apiResponse{}, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiResponse{}, fmt.Errorf("http status %d", resp.StatusCode)
	}
	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return apiResponse{}, fmt.Errorf("parse response: %w", err)
	}
	return out, nil
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
