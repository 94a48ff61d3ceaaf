// Package account defines the contract between the session core and the
// external account service client.
//
// A [Client] owns one connection. Commands are plain method calls; the
// outcome of [Client.LogOn] and any later loss of the connection arrive as
// [Event] values on the [Handler] the client was dialed with. Implementations
// must never invoke the handler from inside one of their own method calls:
// the session core calls those methods while holding the chat's lock.
package account

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
)

// ///////////////////////////////////////////////
// Sentinel Errors
// ///////////////////////////////////////////////

// ErrNotLoggedOn is returned by commands that need an authenticated connection.
var ErrNotLoggedOn = errors.New("not logged on")

// ErrNoAPIKey is returned by [Client.Level] when no Web API key is configured.
var ErrNoAPIKey = errors.New("web api key not configured")

// ///////////////////////////////////////////////
// Identity and Queries
// ///////////////////////////////////////////////

// SteamID is a 64-bit account identifier.
type SteamID uint64

// String formats the id in decimal, the form the Web API expects.
func (id SteamID) String() string { return strconv.FormatUint(uint64(id), 10) }

// Credentials are the first-factor login details.
type Credentials struct {
	Login    string
	Password string
}

// Relationship is the relationship of a friends-list entry to the account.
type Relationship int

const (
	RelationshipNone Relationship = iota
	RelationshipFriend
	RelationshipRequestPending
	RelationshipBlocked
)

// Friend is one entry of the friends list.
type Friend struct {
	ID           SteamID
	Relationship Relationship
}

// PersonaState mirrors the service's online-state enum.
type PersonaState int

const (
	PersonaOffline PersonaState = iota
	PersonaOnline
	PersonaBusy
	PersonaAway
	PersonaSnooze
)

// Persona is the public state of another account.
type Persona struct {
	State       PersonaState
	DisplayName string
}

// Client is one connection to the account service.
type Client interface {
	// LogOn starts authentication. A nil error only means the attempt was
	// started; the result arrives as an event.
	LogOn(ctx context.Context, creds Credentials) error
	// LogOff closes the connection. Safe to call more than once.
	LogOff()
	// SetOnline asserts the online persona state.
	SetOnline() error
	// SetPlaying asserts the given applications as running. An empty list
	// clears presence.
	SetPlaying(appIDs []uint32) error
	// Friends returns the cached friends list.
	Friends() ([]Friend, error)
	// Personas returns the known persona of each id.
	Personas(ids []SteamID) (map[SteamID]Persona, error)
	// Level returns the account level for id.
	Level(ctx context.Context, id SteamID) (int, error)
	// WebLogOn re-asserts web authentication and returns fresh cookies for
	// the companion session.
	WebLogOn(ctx context.Context) ([]*http.Cookie, error)
	// Identity returns the authenticated account id, if any.
	Identity() (SteamID, bool)
}

// Dialer creates unconnected clients that report to h.
type Dialer interface {
	Dial(h Handler) Client
}

// DialerFunc adapts a function to [Dialer].
type DialerFunc func(h Handler) Client

// Dial calls f(h).
func (f DialerFunc) Dial(h Handler) Client { return f(h) }

// ///////////////////////////////////////////////
// Events
// ///////////////////////////////////////////////

// Handler receives lifecycle events.
type Handler func(Event)

// Event is one of [Authenticated], [SecondFactorRequired], [Failed] or
// [Disconnected].
type Event interface {
	isEvent()
}

// Authenticated reports a completed login.
type Authenticated struct {
	ID SteamID
}

// CodeChannel says where the second-factor code was delivered.
type CodeChannel int

const (
	ChannelAuthenticator CodeChannel = iota
	ChannelEmail
)

// SecondFactorRequired asks for a guard code. Domain is the email domain
// hint and may be empty.
type SecondFactorRequired struct {
	Domain  string
	Channel CodeChannel
	Code    *SecondFactor
}

// Failed reports a rejected login or a fatal connection error.
type Failed struct {
	Reason error
}

// Disconnected reports that the connection closed.
type Disconnected struct {
	Code   int
	Reason string
}

func (Authenticated) isEvent()        {}
func (SecondFactorRequired) isEvent() {}
func (Failed) isEvent()               {}
func (Disconnected) isEvent()         {}

// ///////////////////////////////////////////////
// SecondFactor
// ///////////////////////////////////////////////

// SecondFactor wraps the client's code callback so it runs at most once.
type SecondFactor struct {
	mu     sync.Mutex
	submit func(code string)
	used   bool
}

// NewSecondFactor wraps submit.
func NewSecondFactor(submit func(code string)) *SecondFactor {
	return &SecondFactor{submit: submit}
}

// Submit passes code to the client. It reports false, and does nothing, if
// the code was already submitted or the handle was discarded.
func (s *SecondFactor) Submit(code string) bool {
	s.mu.Lock()
	if s.used || s.submit == nil {
		s.mu.Unlock()
		return false
	}
	s.used = true
	submit := s.submit
	s.submit = nil
	s.mu.Unlock()

	submit(code)
	return true
}

// Discard drops the callback without calling it.
func (s *SecondFactor) Discard() {
	s.mu.Lock()
	s.used = true
	s.submit = nil
	s.mu.Unlock()
}
