// Package appcatalog resolves numeric application IDs to display names.
//
// Lookups go through three layers: a built-in table of popular titles, a
// persisted cache, and the remote catalog. On a cache miss the full
// application list is downloaded once and every entry is cached; when that
// download fails a single-item store lookup is tried instead. [Resolver.Resolve]
// always returns a displayable string and never an error.
package appcatalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
)

// Default remote endpoints.
const (
	DefaultAppListURL    = "https://api.steampowered.com/ISteamApps/GetAppList/v2/"
	DefaultAppDetailsURL = "https://store.steampowered.com/api/appdetails?appids=%d"
)

// ErrNotFound is returned by the store lookup when the app has no name.
var ErrNotFound = errors.New("app not found")

// Getter performs authenticated GETs, typically the chat's web session.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// NotFoundName is shown when the catalog has no entry for id.
func NotFoundName(id uint32) string {
	return fmt.Sprintf("AppID %d (name not found)", id)
}

// FailedName is shown when every lookup path failed.
func FailedName(id uint32) string {
	return fmt.Sprintf("AppID %d (name lookup failed)", id)
}

// ///////////////////////////////////////////////
// Resolver
// ///////////////////////////////////////////////

// Options configures the remote endpoints. Empty fields use the defaults.
type Options struct {
	AppListURL string
	// AppDetailsURL must contain one %d verb for the app id.
	AppDetailsURL string
	Logger        *slog.Logger
}

// Resolver is safe for concurrent use. Reads share a lock; catalog
// downloads are serialized so a burst of misses triggers one fetch.
type Resolver struct {
	store      Store
	appListURL string
	detailsURL string
	log        *slog.Logger

	mu    sync.RWMutex
	names map[uint32]string

	fetchMu sync.Mutex
}

// New creates a Resolver and loads the persisted cache from store. A missing
// or unreadable cache is logged and the resolver starts empty.
func New(store Store, opts Options) *Resolver {
	r := &Resolver{
		store:      store,
		appListURL: opts.AppListURL,
		detailsURL: opts.AppDetailsURL,
		log:        opts.Logger,
		names:      make(map[uint32]string),
	}
	if r.appListURL == "" {
		r.appListURL = DefaultAppListURL
	}
	if r.detailsURL == "" {
		r.detailsURL = DefaultAppDetailsURL
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	r.log = r.log.With("component", "appcatalog")

	if store != nil {
		loaded, err := store.Load()
		if err != nil {
			r.log.Warn("app cache unreadable, starting empty", "error", err)
		}
		for id, name := range loaded {
			r.names[id] = name
		}
		if len(loaded) > 0 {
			r.log.Info("loaded app cache", "entries", len(loaded))
		}
	}
	return r
}

// Len returns the number of dynamically cached names.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

// Cached returns the name for id from the static table or the cache
// without touching the network.
func (r *Resolver) Cached(id uint32) (string, bool) {
	if name, ok := popularApps[id]; ok {
		return name, true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[id]
	return name, ok
}

// Resolve returns the display name for id. g is used for any remote lookup.
func (r *Resolver) Resolve(ctx context.Context, g Getter, id uint32) string {
	if name, ok := r.Cached(id); ok {
		return name
	}

	r.fetchMu.Lock()
	defer r.fetchMu.Unlock()

	// Another caller may have filled the cache while we waited.
	if name, ok := r.Cached(id); ok {
		return name
	}

	apps, err := r.fetchAppList(ctx, g)
	if err == nil {
		r.remember(apps)
		if name, ok := r.Cached(id); ok {
			return name
		}
		return NotFoundName(id)
	}
	r.log.Warn("app list fetch failed, trying store lookup", "app_id", id, "error", err)

	name, err := r.fetchAppDetails(ctx, g, id)
	switch {
	case err == nil:
		r.remember(map[uint32]string{id: name})
		return name
	case errors.Is(err, ErrNotFound):
		return NotFoundName(id)
	default:
		r.log.Error("store lookup failed", "app_id", id, "error", err)
		return FailedName(id)
	}
}

// remember adds entries to the cache and writes them through to the store.
// Static titles are never overwritten.
func (r *Resolver) remember(apps map[uint32]string) {
	added := make(map[uint32]string, len(apps))
	r.mu.Lock()
	for id, name := range apps {
		if name == "" {
			continue
		}
		if _, static := popularApps[id]; static {
			continue
		}
		if r.names[id] == name {
			continue
		}
		r.names[id] = name
		added[id] = name
	}
	r.mu.Unlock()

	if len(added) == 0 || r.store == nil {
		return
	}
	if err := r.store.Put(added); err != nil {
		r.log.Error("failed to persist app cache", "error", err)
		return
	}
	r.log.Info("saved app cache", "added", len(added))
}

// ///////////////////////////////////////////////
// Remote Formats
// ///////////////////////////////////////////////

// appListResponse is the GetAppList/v2 payload.
type appListResponse struct {
	AppList struct {
		Apps []struct {
			AppID uint32 `json:"appid"`
			Name  string `json:"name"`
		} `json:"apps"`
	} `json:"applist"`
}

// appDetailsEntry is one value of the appdetails payload, keyed by app id.
type appDetailsEntry struct {
	Success bool `json:"success"`
	Data    *struct {
		Name string `json:"name"`
	} `json:"data"`
}

func (r *Resolver) fetchAppList(ctx context.Context, g Getter) (map[uint32]string, error) {
	body, err := g.Get(ctx, r.appListURL)
	if err != nil {
		return nil, err
	}
	return parseAppList(body)
}

func parseAppList(body []byte) (map[uint32]string, error) {
	var resp appListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing app list: %w", err)
	}
	apps := make(map[uint32]string, len(resp.AppList.Apps))
	for _, a := range resp.AppList.Apps {
		apps[a.AppID] = a.Name
	}
	return apps, nil
}

func (r *Resolver) fetchAppDetails(ctx context.Context, g Getter, id uint32) (string, error) {
	body, err := g.Get(ctx, fmt.Sprintf(r.detailsURL, id))
	if err != nil {
		return "", err
	}
	return parseAppDetails(body, id)
}

func parseAppDetails(body []byte, id uint32) (string, error) {
	var resp map[string]appDetailsEntry
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parsing app details: %w", err)
	}
	entry, ok := resp[strconv.FormatUint(uint64(id), 10)]
	if !ok || entry.Data == nil || entry.Data.Name == "" {
		return "", ErrNotFound
	}
	return entry.Data.Name, nil
}
