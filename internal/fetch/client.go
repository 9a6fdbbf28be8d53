// Package fetch implements the garden API client: bounded timeout, a few
// retries with backoff, and mapping of the upstream JSON into the domain
// snapshot model.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"gardenbot/pkg/logx"
)

const (
	defaultBaseURL = "https://growagardenapi.vercel.app"

	stockPath   = "/api/stock/GetStock"
	weatherPath = "/api/GetWeather"
	restockPath = "/api/stock/Restock-Time"
)

// Error wraps a failed fetch with the endpoint that failed.
type Error struct {
	Endpoint string
	Err      error
}

func (e *Error) Error() string { return fmt.Sprintf("fetch %s: %v", e.Endpoint, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

type Config struct {
	BaseURL    string
	Timeout    time.Duration // per-request; default 10s
	RetryMax   int           // total attempts; default 3
	RetryDelay time.Duration // base backoff; default 1s
}

type Client struct {
	http    *http.Client
	baseURL string
	cfg     Config
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		baseURL: base,
		cfg:     cfg,
		log:     log,
	}
}

// getJSON fetches one endpoint with retry/backoff and decodes into out.
// A non-2xx status counts as a failure and is retried like a network error.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.RetryMax; attempt++ {
		lastErr = c.getOnce(ctx, path, out)
		if lastErr == nil {
			return nil
		}
		if attempt >= c.cfg.RetryMax || ctx.Err() != nil {
			break
		}
		delay := retryDelay(c.cfg.RetryDelay, attempt)
		c.log.Debug("fetch retry scheduled",
			logx.String("path", path), logx.Int("attempt", attempt+1), logx.Duration("delay", delay), logx.Err(lastErr))
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return &Error{Endpoint: path, Err: ctx.Err()}
		case <-t.C:
		}
	}
	return &Error{Endpoint: path, Err: lastErr}
}

func (c *Client) getOnce(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// retryDelay doubles the base per attempt with +/-20% jitter.
func retryDelay(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	j := 0.8 + rand.Float64()*0.4
	return time.Duration(float64(d) * j)
}

// IsTemporary reports whether err came out of the fetch layer (as opposed
// to a programming error); all fetch errors are treated as transient.
func IsTemporary(err error) bool {
	var fe *Error
	return errors.As(err, &fe)
}
