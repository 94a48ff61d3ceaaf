// Tests for the resolver cover the static table, the bulk catalog path, the
// single-item store fallback, placeholders, and write-through persistence.
package appcatalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// ///////////////////////////////////////////////
// Test Helpers
// ///////////////////////////////////////////////

// fakeGetter serves canned bodies keyed by URL substring and counts calls.
type fakeGetter struct {
	mu        sync.Mutex
	responses map[string]string
	failures  map[string]error
	calls     []string
}

func (g *fakeGetter) Get(_ context.Context, url string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, url)
	for key, err := range g.failures {
		if strings.Contains(url, key) {
			return nil, err
		}
	}
	for key, body := range g.responses {
		if strings.Contains(url, key) {
			return []byte(body), nil
		}
	}
	return nil, errors.New("unexpected url " + url)
}

func (g *fakeGetter) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// panicGetter fails the test on any network call.
type panicGetter struct{ t *testing.T }

func (g panicGetter) Get(_ context.Context, url string) ([]byte, error) {
	g.t.Fatalf("unexpected network call to %s", url)
	return nil, nil
}

const testAppList = `{"applist":{"apps":[{"appid":999,"name":"Test Game"},{"appid":1000,"name":"Other Game"},{"appid":730,"name":"Wrong Name"}]}}`

func newTestResolver(t *testing.T) (*Resolver, *JSONStore) {
	t.Helper()
	store := NewJSONStore(filepath.Join(t.TempDir(), "app_cache.json"))
	return New(store, Options{}), store
}

// ///////////////////////////////////////////////
// Static Table
// ///////////////////////////////////////////////

func TestResolveStaticWithoutNetwork(t *testing.T) {
	r, _ := newTestResolver(t)
	if got := r.Resolve(context.Background(), panicGetter{t}, 730); got != "Counter-Strike 2" {
		t.Errorf("Resolve(730) = %q, want %q", got, "Counter-Strike 2")
	}
}

// ///////////////////////////////////////////////
// Bulk Catalog
// ///////////////////////////////////////////////

func TestResolveFromAppList(t *testing.T) {
	r, _ := newTestResolver(t)
	g := &fakeGetter{responses: map[string]string{"GetAppList": testAppList}}

	if got := r.Resolve(context.Background(), g, 999); got != "Test Game" {
		t.Fatalf("Resolve(999) = %q, want %q", got, "Test Game")
	}
	if name, ok := r.Cached(999); !ok || name != "Test Game" {
		t.Errorf("Cached(999) = %q, %v", name, ok)
	}

	// Second lookup and a lookup of another listed app come from cache.
	if got := r.Resolve(context.Background(), g, 999); got != "Test Game" {
		t.Errorf("second Resolve(999) = %q", got)
	}
	if got := r.Resolve(context.Background(), g, 1000); got != "Other Game" {
		t.Errorf("Resolve(1000) = %q", got)
	}
	if g.count() != 1 {
		t.Errorf("network calls = %d, want 1", g.count())
	}
}

func TestResolveStaticNeverOverwritten(t *testing.T) {
	r, _ := newTestResolver(t)
	g := &fakeGetter{responses: map[string]string{"GetAppList": testAppList}}
	r.Resolve(context.Background(), g, 999)

	if got, _ := r.Cached(730); got != "Counter-Strike 2" {
		t.Errorf("static name replaced: %q", got)
	}
}

func TestResolveMissingFromAppList(t *testing.T) {
	r, _ := newTestResolver(t)
	g := &fakeGetter{responses: map[string]string{"GetAppList": testAppList}}

	if got := r.Resolve(context.Background(), g, 4242); got != NotFoundName(4242) {
		t.Errorf("Resolve(4242) = %q, want %q", got, NotFoundName(4242))
	}
}

// ///////////////////////////////////////////////
// Store Fallback
// ///////////////////////////////////////////////

func TestResolveFallsBackToStore(t *testing.T) {
	r, _ := newTestResolver(t)
	g := &fakeGetter{
		failures:  map[string]error{"GetAppList": errors.New("503")},
		responses: map[string]string{"appdetails": `{"1234":{"success":true,"data":{"name":"Store Game"}}}`},
	}

	if got := r.Resolve(context.Background(), g, 1234); got != "Store Game" {
		t.Fatalf("Resolve(1234) = %q, want Store Game", got)
	}
	if name, ok := r.Cached(1234); !ok || name != "Store Game" {
		t.Errorf("store result not cached: %q, %v", name, ok)
	}
}

func TestResolveStoreNotFound(t *testing.T) {
	r, _ := newTestResolver(t)
	g := &fakeGetter{
		failures:  map[string]error{"GetAppList": errors.New("503")},
		responses: map[string]string{"appdetails": `{"1234":{"success":false}}`},
	}
	if got := r.Resolve(context.Background(), g, 1234); got != NotFoundName(1234) {
		t.Errorf("Resolve = %q, want %q", got, NotFoundName(1234))
	}
}

func TestResolveTotalFailure(t *testing.T) {
	r, _ := newTestResolver(t)
	g := &fakeGetter{failures: map[string]error{
		"GetAppList": errors.New("503"),
		"appdetails": errors.New("timeout"),
	}}
	if got := r.Resolve(context.Background(), g, 1234); got != FailedName(1234) {
		t.Errorf("Resolve = %q, want %q", got, FailedName(1234))
	}
}

// ///////////////////////////////////////////////
// Persistence
// ///////////////////////////////////////////////

func TestResolvePersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app_cache.json")
	r := New(NewJSONStore(path), Options{})
	g := &fakeGetter{responses: map[string]string{"GetAppList": testAppList}}
	r.Resolve(context.Background(), g, 999)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("cache file not written: %v", err)
	}
	if !strings.Contains(string(data), `"999": "Test Game"`) {
		t.Errorf("cache file missing entry: %s", data)
	}

	reloaded := New(NewJSONStore(path), Options{})
	if got := reloaded.Resolve(context.Background(), panicGetter{t}, 999); got != "Test Game" {
		t.Errorf("reloaded Resolve(999) = %q", got)
	}
}

func TestNewToleratesMalformedCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app_cache.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := New(NewJSONStore(path), Options{})
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

// failingStore rejects every write.
type failingStore struct{}

func (failingStore) Load() (map[uint32]string, error) { return nil, nil }
func (failingStore) Put(map[uint32]string) error      { return errors.New("disk full") }
func (failingStore) Close() error                     { return nil }

func TestPersistFailureIsNotPropagated(t *testing.T) {
	r := New(failingStore{}, Options{})
	g := &fakeGetter{responses: map[string]string{"GetAppList": testAppList}}
	if got := r.Resolve(context.Background(), g, 999); got != "Test Game" {
		t.Errorf("Resolve = %q, want Test Game despite write failure", got)
	}
}

// ///////////////////////////////////////////////
// Parsers
// ///////////////////////////////////////////////

func TestParseAppListMalformed(t *testing.T) {
	if _, err := parseAppList([]byte("<html>")); err == nil {
		t.Error("expected parse error")
	}
}

func TestParseAppDetails(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr error
	}{
		{"found", `{"10":{"success":true,"data":{"name":"Counter-Strike"}}}`, "Counter-Strike", nil},
		{"no data", `{"10":{"success":false}}`, "", ErrNotFound},
		{"other id", `{"20":{"success":true,"data":{"name":"x"}}}`, "", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAppDetails([]byte(tt.body), 10)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("name = %q, want %q", got, tt.want)
			}
		})
	}
}
