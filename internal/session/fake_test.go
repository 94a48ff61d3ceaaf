package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"tools.zach/dev/steamidle/internal/account"
	"tools.zach/dev/steamidle/internal/appcatalog"
	"tools.zach/dev/steamidle/internal/clock"
)

// ///////////////////////////////////////////////
// Fake Account Client
// ///////////////////////////////////////////////

type fakeAccount struct {
	handler account.Handler

	mu         sync.Mutex
	logOnErr   error
	logOns     []account.Credentials
	logOffs    int
	online     int
	playing    [][]uint32
	webLogOns  int
	webErr     error
	id         account.SteamID
	hasID      bool
	friends    []account.Friend
	friendsErr error
	personas   map[account.SteamID]account.Persona
	level      int
	levelErr   error
	levelCalls int
	// levelGate, when set, holds Level until it is closed.
	levelGate chan struct{}
}

func (f *fakeAccount) LogOn(_ context.Context, creds account.Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logOns = append(f.logOns, creds)
	return f.logOnErr
}

func (f *fakeAccount) LogOff() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logOffs++
	f.hasID = false
}

func (f *fakeAccount) SetOnline() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online++
	return nil
}

func (f *fakeAccount) SetPlaying(ids []uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = append(f.playing, append([]uint32(nil), ids...))
	return nil
}

func (f *fakeAccount) Friends() ([]account.Friend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.friends, f.friendsErr
}

func (f *fakeAccount) Personas(ids []account.SteamID) (map[account.SteamID]account.Persona, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.personas == nil {
		return nil, errors.New("no personas")
	}
	out := make(map[account.SteamID]account.Persona, len(ids))
	for _, id := range ids {
		if p, ok := f.personas[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeAccount) Level(context.Context, account.SteamID) (int, error) {
	f.mu.Lock()
	f.levelCalls++
	gate, lvl, err := f.levelGate, f.level, f.levelErr
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return lvl, err
}

func (f *fakeAccount) levelCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levelCalls
}

func (f *fakeAccount) WebLogOn(context.Context) ([]*http.Cookie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webLogOns++
	if f.webErr != nil {
		return nil, f.webErr
	}
	return []*http.Cookie{{Name: "steamLoginSecure", Value: "token"}}, nil
}

func (f *fakeAccount) Identity() (account.SteamID, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id, f.hasID
}

// authenticate sets the identity and delivers Authenticated, the way the
// real client reports a completed log on.
func (f *fakeAccount) authenticate(id account.SteamID) {
	f.mu.Lock()
	f.id, f.hasID = id, true
	f.mu.Unlock()
	f.handler(account.Authenticated{ID: id})
}

func (f *fakeAccount) emit(ev account.Event) { f.handler(ev) }

func (f *fakeAccount) counts() (logOffs, webLogOns int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logOffs, f.webLogOns
}

func (f *fakeAccount) playingCalls() [][]uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]uint32(nil), f.playing...)
}

type fakeDialer struct {
	mu        sync.Mutex
	clients   []*fakeAccount
	configure func(*fakeAccount)
}

func (d *fakeDialer) Dial(h account.Handler) account.Client {
	f := &fakeAccount{handler: h}
	if d.configure != nil {
		d.configure(f)
	}
	d.mu.Lock()
	d.clients = append(d.clients, f)
	d.mu.Unlock()
	return f
}

func (d *fakeDialer) last(t *testing.T) *fakeAccount {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.clients) == 0 {
		t.Fatal("no client dialed")
	}
	return d.clients[len(d.clients)-1]
}

// ///////////////////////////////////////////////
// Reply Recorder
// ///////////////////////////////////////////////

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) Send(_ context.Context, _ int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, text)
	return nil
}

func (r *recorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return ""
	}
	return r.msgs[len(r.msgs)-1]
}

func (r *recorder) contains(sub string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.msgs {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

// ///////////////////////////////////////////////
// Harness
// ///////////////////////////////////////////////

const testChat int64 = 42

type harness struct {
	m      *Manager
	c      *Machine
	dialer *fakeDialer
	rec    *recorder
	clock  *clock.FakeClock
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		dialer: &fakeDialer{},
		rec:    &recorder{},
		clock:  clock.Fake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	h.m = NewManager(Options{
		Dialer:           h.dialer,
		Replier:          h.rec,
		Resolver:         appcatalog.New(nil, appcatalog.Options{Logger: discardLogger()}),
		Clock:            h.clock,
		Logger:           discardLogger(),
		LoginTimeout:     60 * time.Second,
		GuardTimeout:     30 * time.Second,
		ReassertInterval: 30 * time.Minute,
	})
	h.c = h.m.Machine(testChat)
	t.Cleanup(h.m.Close)
	return h
}

// submitPassword walks Login, login name and password, and returns the
// freshly dialed client.
func (h *harness) submitPassword(t *testing.T) *fakeAccount {
	t.Helper()
	ctx := context.Background()
	h.c.Login(ctx)
	h.c.HandleText(ctx, "gaben")
	h.c.HandleText(ctx, "hunter2")
	return h.dialer.last(t)
}

// loggedIn completes a handshake without a second factor.
func (h *harness) loggedIn(t *testing.T) *fakeAccount {
	t.Helper()
	f := h.submitPassword(t)
	f.authenticate(76561197960287930)
	if !h.c.Session().LoggedIn {
		t.Fatal("not logged in after authentication")
	}
	return f
}
