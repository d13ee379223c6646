// Package health probes the backend's HTTP endpoint until it answers.
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Default probe timings.
const (
	DefaultInterval       = 250 * time.Millisecond
	DefaultRequestTimeout = 2 * time.Second
)

// ErrNotReady is returned when the backend did not answer before the deadline.
var ErrNotReady = errors.New("backend not ready")

// Prober polls a health endpoint.
type Prober struct {
	// URL is the full health endpoint, e.g. http://localhost:8000/health.
	URL string
	// Interval between attempts (DefaultInterval if zero).
	Interval time.Duration
	// Client defaults to one with DefaultRequestTimeout.
	Client *http.Client
}

// New returns a Prober for path under baseURL.
func New(baseURL, path string) *Prober {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return &Prober{URL: base + path}
}

// Check performs one request. Any 2xx status counts as healthy.
func (p *Prober) Check(ctx context.Context) error {
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultRequestTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// WaitReady polls until Check succeeds, timeout elapses, or ctx is done.
// It returns the number of attempts made.
func (p *Prober) WaitReady(ctx context.Context, timeout time.Duration) (int, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	attempts := 0
	var lastErr error
	for {
		attempts++
		if lastErr = p.Check(waitCtx); lastErr == nil {
			return attempts, nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return attempts, ctx.Err()
			}
			return attempts, fmt.Errorf("%w after %s: %v", ErrNotReady, timeout, lastErr)
		case <-ticker.C:
		}
	}
}
