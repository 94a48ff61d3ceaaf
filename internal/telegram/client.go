// Package telegram is a minimal Telegram Bot API client: long-polled
// updates and text replies with a reply keyboard.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// DefaultAPIURL is the public Bot API endpoint.
const DefaultAPIURL = "https://api.telegram.org"

// ParseModeHTML selects Telegram's HTML formatting subset.
const ParseModeHTML = "HTML"

// maxMessageLen is kept below the 4096-character API limit.
const maxMessageLen = 4000

// ErrUnauthorized is returned when the bot token is rejected.
var ErrUnauthorized = errors.New("telegram: bot token rejected")

// APIError is a non-OK Bot API reply.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// Options configures a [Client].
type Options struct {
	// APIURL overrides DefaultAPIURL.
	APIURL string
	// PollTimeout is the getUpdates long-poll window. Default 30s.
	PollTimeout time.Duration
	Logger      *slog.Logger
}

// Client talks to one bot.
type Client struct {
	token       string
	apiURL      string
	pollTimeout time.Duration
	http        *retryablehttp.Client
	log         *slog.Logger
}

// New returns a client for the bot with the given token.
func New(token string, opts Options) *Client {
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	hc := retryablehttp.NewClient()
	hc.RetryMax = 3
	hc.RetryWaitMin = time.Second
	hc.RetryWaitMax = 10 * time.Second
	hc.HTTPClient.Timeout = opts.PollTimeout + 15*time.Second
	hc.Logger = nil

	return &Client{
		token:       token,
		apiURL:      strings.TrimRight(opts.APIURL, "/"),
		pollTimeout: opts.PollTimeout,
		http:        hc,
		log:         opts.Logger.With("component", "telegram"),
	}
}

// call POSTs params as JSON to method and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", method, err)
	}
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.apiURL, c.token, method)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", method, c.redact(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, c.redact(err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("reading %s response: %w", method, err)
	}

	var r response
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("decoding %s response (status %d): %w", method, resp.StatusCode, err)
	}
	if !r.OK {
		if r.ErrorCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		apiErr := &APIError{Method: method, Code: r.ErrorCode, Description: r.Description}
		if r.Parameters != nil {
			apiErr.RetryAfter = time.Duration(r.Parameters.RetryAfter) * time.Second
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(r.Result, out); err != nil {
		return fmt.Errorf("decoding %s result: %w", method, err)
	}
	return nil
}

// redact strips the bot token from transport errors, which embed the URL.
func (c *Client) redact(err error) error {
	if c.token == "" || !strings.Contains(err.Error(), c.token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), c.token, "<token>"), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// ///////////////////////////////////////////////
// Methods
// ///////////////////////////////////////////////

// GetMe returns the bot's own user, validating the token.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var u User
	if err := c.call(ctx, "getMe", struct{}{}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUpdates long-polls for updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	params := map[string]any{
		"offset":          offset,
		"timeout":         int(c.pollTimeout / time.Second),
		"allowed_updates": []string{"message"},
	}
	var updates []Update
	if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage sends msg, splitting text longer than the API limit into
// several messages. The keyboard is attached to the last one.
func (c *Client) SendMessage(ctx context.Context, msg OutgoingMessage) error {
	parts := splitMessage(msg.Text, maxMessageLen)
	for i, part := range parts {
		m := msg
		m.Text = part
		if i < len(parts)-1 {
			m.ReplyMarkup = nil
		}
		if err := c.call(ctx, "sendMessage", m, nil); err != nil {
			return err
		}
	}
	return nil
}

// splitMessage cuts text into chunks of at most limit runes, preferring
// line breaks.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

// ///////////////////////////////////////////////
// Polling
// ///////////////////////////////////////////////

// pollBackoff is the pause after a failed getUpdates call.
const pollBackoff = 5 * time.Second

// Poll delivers updates to handle until ctx is canceled. Errors other than
// an invalid token are logged and retried.
func (c *Client) Poll(ctx context.Context, handle func(Update)) error {
	var offset int64
	for {
		updates, err := c.GetUpdates(ctx, offset)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrUnauthorized) {
			return err
		}
		if err != nil {
			wait := pollBackoff
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				wait = apiErr.RetryAfter
			}
			c.log.Warn("getUpdates failed, retrying", "error", err, "wait", wait)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			handle(u)
		}
	}
}
