// Package steamclient implements [account.Client] on top of go-steam.
//
// Each Client owns one go-steam connection and one goroutine draining its
// event channel. go-steam events are translated into account events and
// delivered to the handler from that goroutine, never from inside a method
// call.
package steamclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	steam "github.com/Philipp15b/go-steam/v3"
	"github.com/Philipp15b/go-steam/v3/protocol"
	"github.com/Philipp15b/go-steam/v3/protocol/protobuf"
	"github.com/Philipp15b/go-steam/v3/protocol/steamlang"
	"github.com/Philipp15b/go-steam/v3/socialcache"
	"github.com/Philipp15b/go-steam/v3/steamid"
	"github.com/hashicorp/go-retryablehttp"

	"tools.zach/dev/steamidle/internal/account"
)

// drainTimeout bounds how long a logged-off client keeps reading events.
const drainTimeout = 10 * time.Second

var directoryOnce sync.Once

// ///////////////////////////////////////////////
// Dialer
// ///////////////////////////////////////////////

// Options configures the clients created by a [Dialer].
type Options struct {
	// APIKey is the Web API key used for level lookups. Optional.
	APIKey string
	// LevelURL overrides DefaultLevelURL.
	LevelURL string
	// HTTP is shared by every client for Web API calls.
	HTTP   *retryablehttp.Client
	Logger *slog.Logger
}

// Dialer creates go-steam clients.
type Dialer struct {
	opts Options
}

// NewDialer returns a Dialer. A nil HTTP client gets a default one.
func NewDialer(opts Options) *Dialer {
	if opts.HTTP == nil {
		opts.HTTP = newHTTPClient()
	}
	if opts.LevelURL == "" {
		opts.LevelURL = DefaultLevelURL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dialer{opts: opts}
}

// Dial implements [account.Dialer]. The connection is opened by LogOn.
func (d *Dialer) Dial(h account.Handler) account.Client {
	c := &Client{
		steam:        steam.NewClient(),
		handler:      h,
		opts:         d.opts,
		log:          d.opts.Logger.With("component", "steamclient"),
		webDone:      make(chan error, 1),
		sessionReady: make(chan struct{}),
		done:         make(chan struct{}),
	}
	c.steam.RegisterPacketHandler(guardWatcher{c.steam})
	go c.run()
	return c
}

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// Client is one go-steam connection.
type Client struct {
	steam   *steam.Client
	handler account.Handler
	opts    Options
	log     *slog.Logger

	mu       sync.Mutex
	details  *steam.LogOnDetails
	id       account.SteamID
	loggedOn bool
	// awaitingCode suppresses the disconnect Steam sends after asking for a
	// second factor, until the next connection is up.
	awaitingCode bool
	webPending   bool
	lastErr      error

	// sessionID and loginSecure are copied from go-steam's Web when it
	// reports them, so WebLogOn never reads fields the read loop writes.
	sessionID   string
	loginSecure string

	webDone      chan error
	sessionReady chan struct{}
	sessionOnce  sync.Once

	closeOnce sync.Once
	done      chan struct{}
}

// LogOn connects and authenticates with creds once connected.
func (c *Client) LogOn(_ context.Context, creds account.Credentials) error {
	if creds.Login == "" || creds.Password == "" {
		return errors.New("login and password are required")
	}
	c.mu.Lock()
	c.details = &steam.LogOnDetails{Username: creds.Login, Password: creds.Password}
	c.mu.Unlock()

	go func() {
		directoryOnce.Do(func() {
			if err := steam.InitializeSteamDirectory(); err != nil {
				c.log.Warn("steam directory unavailable, using built-in servers", "error", err)
			}
		})
		c.steam.Connect()
	}()
	return nil
}

// LogOff disconnects. Events after this call are dropped.
func (c *Client) LogOff() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		c.loggedOn = false
		c.mu.Unlock()
		// Disconnect emits into the event channel; never block the caller on it.
		go c.steam.Disconnect()
	})
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) requireLogOn() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loggedOn {
		return account.ErrNotLoggedOn
	}
	return nil
}

// SetOnline implements [account.Client].
func (c *Client) SetOnline() error {
	if err := c.requireLogOn(); err != nil {
		return err
	}
	c.steam.Social.SetPersonaState(steamlang.EPersonaState_Online)
	return nil
}

// SetPlaying implements [account.Client].
func (c *Client) SetPlaying(appIDs []uint32) error {
	if err := c.requireLogOn(); err != nil {
		return err
	}
	ids := make([]uint64, len(appIDs))
	for i, id := range appIDs {
		ids[i] = uint64(id)
	}
	c.steam.GC.SetGamesPlayed(ids...)
	return nil
}

// Friends implements [account.Client].
func (c *Client) Friends() ([]account.Friend, error) {
	if err := c.requireLogOn(); err != nil {
		return nil, err
	}
	cache := c.steam.Social.Friends.GetCopy()
	out := make([]account.Friend, 0, len(cache))
	for id, f := range cache {
		out = append(out, account.Friend{ID: account.SteamID(id), Relationship: relationship(f.Relationship)})
	}
	return out, nil
}

// Personas implements [account.Client] from the friends cache, which
// go-steam keeps current from persona state broadcasts.
func (c *Client) Personas(ids []account.SteamID) (map[account.SteamID]account.Persona, error) {
	if err := c.requireLogOn(); err != nil {
		return nil, err
	}
	cache := c.steam.Social.Friends.GetCopy()
	out := make(map[account.SteamID]account.Persona, len(ids))
	for _, id := range ids {
		if f, ok := cache[steamid.SteamId(id)]; ok {
			out[id] = persona(f)
		}
	}
	return out, nil
}

// Identity implements [account.Client].
func (c *Client) Identity() (account.SteamID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id, c.loggedOn && c.id != 0
}

// WebLogOn implements [account.Client]. It waits for Steam to hand out the
// web session id, then for go-steam to report the web login, and returns the
// session cookies.
func (c *Client) WebLogOn(ctx context.Context) ([]*http.Cookie, error) {
	if err := c.requireLogOn(); err != nil {
		return nil, err
	}

	select {
	case <-c.sessionReady:
	case <-ctx.Done():
		return nil, fmt.Errorf("web session id: %w", ctx.Err())
	case <-c.done:
		return nil, account.ErrNotLoggedOn
	}

	c.mu.Lock()
	c.webPending = true
	c.mu.Unlock()
	// Drop a result left over from a call that timed out.
	select {
	case <-c.webDone:
	default:
	}

	c.steam.Web.LogOn()

	select {
	case err := <-c.webDone:
		if err != nil {
			return nil, fmt.Errorf("web log on: %w", err)
		}
	case <-ctx.Done():
		c.mu.Lock()
		c.webPending = false
		c.mu.Unlock()
		return nil, fmt.Errorf("web log on: %w", ctx.Err())
	case <-c.done:
		return nil, account.ErrNotLoggedOn
	}
	return c.cookies(), nil
}

// cookies returns the web session cookies known so far. Empty values are
// left out.
func (c *Client) cookies() []*http.Cookie {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*http.Cookie
	if c.sessionID != "" {
		out = append(out, &http.Cookie{Name: "sessionid", Value: c.sessionID})
	}
	if c.loginSecure != "" {
		out = append(out, &http.Cookie{Name: "steamLoginSecure", Value: c.loginSecure})
	}
	return out
}

// ///////////////////////////////////////////////
// Event Loop
// ///////////////////////////////////////////////

func (c *Client) run() {
	for {
		select {
		case ev := <-c.steam.Events():
			c.dispatch(ev)
		case <-c.done:
			c.drain()
			return
		}
	}
}

// drain keeps go-steam's emitters from blocking until the disconnect
// triggered by LogOff has been observed.
// A client that never connected emits nothing, hence the deadline.
func (c *Client) drain() {
	deadline := time.NewTimer(drainTimeout)
	defer deadline.Stop()
	for {
		select {
		case ev := <-c.steam.Events():
			if _, ok := ev.(*steam.DisconnectedEvent); ok {
				return
			}
		case <-deadline.C:
			return
		}
	}
}

func (c *Client) emit(ev account.Event) {
	if c.closed() {
		return
	}
	c.handler(ev)
}

func (c *Client) dispatch(ev interface{}) {
	switch e := ev.(type) {
	case *steam.ConnectedEvent:
		c.mu.Lock()
		c.awaitingCode = false
		details := c.details
		c.mu.Unlock()
		if details == nil {
			return
		}
		c.log.Debug("connected, logging on", "user", details.Username)
		c.steam.Auth.LogOn(details)

	case *steam.LoggedOnEvent:
		id := account.SteamID(c.steam.SteamId())
		if id == 0 {
			id = account.SteamID(e.ClientSteamId)
		}
		c.mu.Lock()
		c.id = id
		c.loggedOn = true
		c.mu.Unlock()
		c.emit(account.Authenticated{ID: id})

	case *guardRequest:
		c.onSecondFactor(e.channel, e.domain)

	case *steam.LogOnFailedEvent:
		// Second-factor results arrive separately as a guardRequest, which
		// also carries the email domain.
		if _, needsCode := codeChannel(e.Result); needsCode {
			return
		}
		c.emit(account.Failed{Reason: fmt.Errorf("log on failed: %s", e.Result)})

	case *steam.WebSessionIdEvent:
		c.mu.Lock()
		c.sessionID = c.steam.Web.SessionId
		c.mu.Unlock()
		c.sessionOnce.Do(func() { close(c.sessionReady) })

	case *steam.WebLoggedOnEvent:
		c.mu.Lock()
		c.loginSecure = c.steam.Web.SteamLoginSecure
		c.mu.Unlock()
		c.finishWeb(nil)

	case *steam.LoggedOffEvent:
		c.mu.Lock()
		c.loggedOn = false
		c.mu.Unlock()
		c.emit(account.Disconnected{Code: int(e.Result), Reason: e.Result.String()})

	case *steam.DisconnectedEvent:
		c.mu.Lock()
		suppress := c.awaitingCode
		c.loggedOn = false
		reason := "connection closed"
		if c.lastErr != nil {
			reason = c.lastErr.Error()
		}
		c.mu.Unlock()
		if suppress {
			c.log.Debug("disconnected while waiting for second factor")
			return
		}
		c.emit(account.Disconnected{Reason: reason})

	case error:
		// go-steam reports both fatal and web login errors as plain errors.
		if c.finishWeb(e) {
			return
		}
		c.mu.Lock()
		c.lastErr = e
		c.mu.Unlock()
		c.log.Warn("steam client error", "error", e)
	}
}

// finishWeb completes a pending WebLogOn. It reports whether one was waiting.
func (c *Client) finishWeb(err error) bool {
	c.mu.Lock()
	pending := c.webPending
	c.webPending = false
	c.mu.Unlock()
	if !pending {
		return false
	}
	select {
	case c.webDone <- err:
	default:
	}
	return true
}

func (c *Client) onSecondFactor(channel account.CodeChannel, domain string) {
	c.mu.Lock()
	c.awaitingCode = true
	c.mu.Unlock()
	c.emit(account.SecondFactorRequired{
		Channel: channel,
		Domain:  domain,
		Code:    account.NewSecondFactor(func(code string) { c.submitCode(channel, code) }),
	})
}

// submitCode reconnects with the code attached to the log on details.
func (c *Client) submitCode(channel account.CodeChannel, code string) {
	c.mu.Lock()
	if c.details != nil {
		if channel == account.ChannelEmail {
			c.details.AuthCode = code
		} else {
			c.details.TwoFactorCode = code
		}
	}
	c.awaitingCode = true
	c.mu.Unlock()

	go func() {
		if c.closed() {
			return
		}
		c.steam.Disconnect()
		c.steam.Connect()
	}()
}

// ///////////////////////////////////////////////
// Log On Response
// ///////////////////////////////////////////////

// guardRequest is emitted into go-steam's event channel when a log on
// response asks for a second factor. go-steam's own LogOnFailedEvent drops
// the email domain the code was sent to.
type guardRequest struct {
	channel account.CodeChannel
	domain  string
}

// guardWatcher reads log on responses on go-steam's read loop. Emitting
// through the client keeps the request ordered with go-steam's own events.
type guardWatcher struct {
	steam *steam.Client
}

func (g guardWatcher) HandlePacket(packet *protocol.Packet) {
	if packet.EMsg != steamlang.EMsg_ClientLogOnResponse || !packet.IsProto {
		return
	}
	body := new(protobuf.CMsgClientLogonResponse)
	packet.ReadProtoMsg(body)
	if req, ok := parseGuardRequest(body); ok {
		g.steam.Emit(req)
	}
}

func parseGuardRequest(body *protobuf.CMsgClientLogonResponse) (*guardRequest, bool) {
	channel, needsCode := codeChannel(steamlang.EResult(body.GetEresult()))
	if !needsCode {
		return nil, false
	}
	return &guardRequest{channel: channel, domain: body.GetEmailDomain()}, true
}

// ///////////////////////////////////////////////
// Mapping
// ///////////////////////////////////////////////

// codeChannel reports whether result asks for a second factor and where the
// code was sent.
func codeChannel(result steamlang.EResult) (account.CodeChannel, bool) {
	switch result {
	case steamlang.EResult_AccountLogonDenied:
		return account.ChannelEmail, true
	case steamlang.EResult_AccountLoginDeniedNeedTwoFactor:
		return account.ChannelAuthenticator, true
	default:
		return 0, false
	}
}

func relationship(r steamlang.EFriendRelationship) account.Relationship {
	switch r {
	case steamlang.EFriendRelationship_Friend:
		return account.RelationshipFriend
	case steamlang.EFriendRelationship_RequestRecipient, steamlang.EFriendRelationship_RequestInitiator:
		return account.RelationshipRequestPending
	case steamlang.EFriendRelationship_Blocked, steamlang.EFriendRelationship_Ignored, steamlang.EFriendRelationship_IgnoredFriend:
		return account.RelationshipBlocked
	default:
		return account.RelationshipNone
	}
}

func persona(f socialcache.Friend) account.Persona {
	var state account.PersonaState
	switch f.PersonaState {
	case steamlang.EPersonaState_Online, steamlang.EPersonaState_LookingToPlay, steamlang.EPersonaState_LookingToTrade:
		state = account.PersonaOnline
	case steamlang.EPersonaState_Busy:
		state = account.PersonaBusy
	case steamlang.EPersonaState_Away:
		state = account.PersonaAway
	case steamlang.EPersonaState_Snooze:
		state = account.PersonaSnooze
	default:
		state = account.PersonaOffline
	}
	return account.Persona{State: state, DisplayName: f.Name}
}
