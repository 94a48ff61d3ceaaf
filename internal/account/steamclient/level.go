package steamclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"tools.zach/dev/steamidle/internal/account"
)

// DefaultLevelURL is the Web API endpoint for account levels.
const DefaultLevelURL = "https://api.steampowered.com/IPlayerService/GetSteamLevel/v1/"

func newHTTPClient() *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = 15 * time.Second
	client.Logger = nil
	return client
}

type levelResponse struct {
	Response struct {
		PlayerLevel *int `json:"player_level"`
	} `json:"response"`
}

// Level implements [account.Client] through the Web API.
func (c *Client) Level(ctx context.Context, id account.SteamID) (int, error) {
	return fetchLevel(ctx, c.opts.HTTP, c.opts.LevelURL, c.opts.APIKey, id)
}

func fetchLevel(ctx context.Context, client *retryablehttp.Client, endpoint, key string, id account.SteamID) (int, error) {
	if key == "" {
		return 0, account.ErrNoAPIKey
	}

	q := url.Values{}
	q.Set("key", key)
	q.Set("steamid", id.String())
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("creating level request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		// The request URL carries the API key; report the endpoint only.
		return 0, fmt.Errorf("fetching level from %s: request failed", endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetching level: unexpected status %d", resp.StatusCode)
	}

	var lr levelResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&lr); err != nil {
		return 0, fmt.Errorf("decoding level response: %w", err)
	}
	if lr.Response.PlayerLevel == nil {
		return 0, fmt.Errorf("level not reported for %s", id)
	}
	return *lr.Response.PlayerLevel, nil
}
