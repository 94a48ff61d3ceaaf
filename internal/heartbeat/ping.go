package heartbeat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ///////////////////////////////////////////////
// Self Ping
// ///////////////////////////////////////////////

// Pinger periodically requests a URL so the hosting platform sees traffic.
type Pinger struct {
	url      string
	interval time.Duration
	client   *retryablehttp.Client
	log      *slog.Logger
}

// NewPinger returns a Pinger for url. A nil logger uses slog.Default.
func NewPinger(url string, interval time.Duration, logger *slog.Logger) *Pinger {
	if logger == nil {
		logger = slog.Default()
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 1
	client.RetryWaitMin = time.Second
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = 15 * time.Second
	client.Logger = nil
	return &Pinger{
		url:      url,
		interval: interval,
		client:   client,
		log:      logger.With("component", "self_ping"),
	}
}

// Run pings every interval until ctx is done. Failures are logged.
func (p *Pinger) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.log.Info("self ping enabled", "url", p.url, "interval", p.interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Ping(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				p.log.Warn("self ping failed", "error", err)
			}
		}
	}
}

// Ping performs one request and fails on a non-2xx status.
func (p *Pinger) Ping(ctx context.Context) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build ping request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("ping %s: %w", p.url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("ping %s: status %d", p.url, resp.StatusCode)
	}
	p.log.Debug("self ping ok", "status", resp.StatusCode)
	return nil
}
