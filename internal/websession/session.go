// Package websession is the cookie-based HTTP session that runs catalog and
// store requests under an account's web authority. Its cookies are replaced
// each time the account client re-asserts its web login.
package websession

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// MaxResponseBytes caps a single response body. The full application list
// is tens of megabytes.
const MaxResponseBytes = 64 << 20

// cookieHosts are the origins the account's web cookies are valid for.
var cookieHosts = []string{
	"https://steamcommunity.com/",
	"https://store.steampowered.com/",
	"https://api.steampowered.com/",
}

// Session is safe for concurrent use.
type Session struct {
	client *retryablehttp.Client

	mu      sync.Mutex
	jar     http.CookieJar
	updated time.Time
}

// New creates a session with an empty cookie jar.
func New() *Session {
	base := cleanhttp.DefaultPooledClient()
	base.Timeout = 60 * time.Second
	jar, _ := cookiejar.New(nil)
	base.Jar = jar

	client := retryablehttp.NewClient()
	client.HTTPClient = base
	client.RetryMax = 2
	client.Logger = nil

	return &Session{client: client, jar: jar}
}

// SetCookies installs cookies for every web origin of the account service,
// replacing any cookie with the same name.
func (s *Session) SetCookies(cookies []*http.Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, host := range cookieHosts {
		u, err := url.Parse(host)
		if err != nil {
			continue
		}
		s.jar.SetCookies(u, cookies)
	}
	s.updated = time.Now()
}

// Cookies returns the cookies that would be sent to rawURL.
func (s *Session) Cookies(rawURL string) []*http.Cookie {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jar.Cookies(u)
}

// Updated reports when cookies were last installed. Zero means never.
func (s *Session) Updated() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updated
}

// Get fetches rawURL and returns the body. Non-200 responses are errors.
func (s *Session) Get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", rawURL, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", rawURL, err)
	}
	if int64(len(body)) > MaxResponseBytes {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", rawURL, MaxResponseBytes)
	}
	return body, nil
}
