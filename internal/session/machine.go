package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"tools.zach/dev/steamidle/internal/account"
	"tools.zach/dev/steamidle/internal/appcatalog"
	"tools.zach/dev/steamidle/internal/clock"
)

// Default handshake windows.
const (
	DefaultLoginTimeout = 60 * time.Second
	DefaultGuardTimeout = 30 * time.Second
)

// Replier delivers a reply to a chat.
type Replier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// ///////////////////////////////////////////////
// Manager
// ///////////////////////////////////////////////

// Options wires a [Manager]. Zero durations use the defaults.
type Options struct {
	Dialer   account.Dialer
	Replier  Replier
	Resolver *appcatalog.Resolver
	Clock    clock.Clock
	Logger   *slog.Logger

	LoginTimeout     time.Duration
	GuardTimeout     time.Duration
	ReassertInterval time.Duration
}

// Manager owns the registry, the scheduler and one [Machine] per chat.
type Manager struct {
	dialer   account.Dialer
	reply    Replier
	resolver *appcatalog.Resolver
	clock    clock.Clock
	log      *slog.Logger

	loginTimeout time.Duration
	guardTimeout time.Duration

	registry  *Registry
	scheduler *Scheduler

	mu       sync.Mutex
	machines map[int64]*Machine

	levelMu sync.Mutex
	levels  map[account.SteamID]int
}

// NewManager builds a Manager from opts.
func NewManager(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.LoginTimeout <= 0 {
		opts.LoginTimeout = DefaultLoginTimeout
	}
	if opts.GuardTimeout <= 0 {
		opts.GuardTimeout = DefaultGuardTimeout
	}
	if opts.Resolver == nil {
		opts.Resolver = appcatalog.New(nil, appcatalog.Options{Logger: opts.Logger})
	}

	registry := NewRegistry()
	return &Manager{
		dialer:       opts.Dialer,
		reply:        opts.Replier,
		resolver:     opts.Resolver,
		clock:        opts.Clock,
		log:          opts.Logger.With("component", "session"),
		loginTimeout: opts.LoginTimeout,
		guardTimeout: opts.GuardTimeout,
		registry:     registry,
		scheduler:    NewScheduler(registry, opts.Clock, opts.ReassertInterval, opts.Logger),
		machines:     make(map[int64]*Machine),
		levels:       make(map[account.SteamID]int),
	}
}

// Registry returns the live connection registry.
func (m *Manager) Registry() *Registry { return m.registry }

// Machine returns the chat's state machine, creating it on first use.
func (m *Manager) Machine(chatID int64) *Machine {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.machines[chatID]
	if !ok {
		c = &Machine{
			m:      m,
			chatID: chatID,
			log:    m.log.With("chat_id", chatID),
		}
		m.machines[chatID] = c
	}
	return c
}

// Forget drops the chat's machine when it holds no state and no connection,
// and reports whether it did. The next [Manager.Machine] call starts afresh.
func (m *Manager) Forget(chatID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.machines[chatID]
	if !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.s.Step != StepIdle || c.s.LoggedIn || c.s.secondFactor != nil || c.handle() != nil {
		return false
	}
	delete(m.machines, chatID)
	return true
}

// Close tears down every live connection.
func (m *Manager) Close() {
	n := m.registry.Len()
	m.registry.Close()
	m.log.Info("all sessions closed", "count", n)
}

// ///////////////////////////////////////////////
// Machine
// ///////////////////////////////////////////////

// Machine is the login state machine for one chat. Commands, account events
// and timeouts are serialized by its lock.
type Machine struct {
	m      *Manager
	chatID int64
	log    *slog.Logger

	mu sync.Mutex
	s  ChatSession
}

// Session returns a copy of the chat's state.
func (c *Machine) Session() ChatSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}

func (c *Machine) send(ctx context.Context, text string) {
	if c.m.reply == nil {
		return
	}
	if err := c.m.reply.Send(ctx, c.chatID, text); err != nil {
		c.log.Error("failed to send reply", "error", err)
	}
}

// handle returns the chat's current registry entry.
func (c *Machine) handle() *Handle {
	return c.m.registry.Get(c.chatID)
}

// inFlight reports whether a handshake has started and not yet completed.
func (c *Machine) inFlight() bool {
	return c.handle() != nil && !c.s.LoggedIn
}

// reset returns the chat to Idle with nothing asserted.
func (c *Machine) reset() {
	if c.s.secondFactor != nil {
		c.s.secondFactor.Discard()
	}
	c.s = ChatSession{}
}

// ///////////////////////////////////////////////
// Commands
// ///////////////////////////////////////////////

// Welcome answers the chat's first contact.
func (c *Machine) Welcome(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.send(ctx, MsgWelcome)
}

// Login starts a new handshake, discarding any previous attempt.
func (c *Machine) Login(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.handle()
	if c.s.LoggedIn && h != nil {
		if _, ok := h.Account.Identity(); ok {
			c.send(ctx, MsgAlreadyIn)
			return
		}
	}
	if h != nil {
		c.log.Info("discarding previous connection", "attempt", h.ID)
		c.m.registry.RemoveIf(c.chatID, h)
	}

	c.reset()
	c.s.Step = StepAwaitingLogin
	c.log.Debug("login started")
	c.send(ctx, MsgAskLogin)
}

// Start asks for the AppID to idle.
func (c *Machine) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight() {
		c.send(ctx, MsgInProgress)
		return
	}
	if !c.s.LoggedIn || c.handle() == nil {
		c.send(ctx, MsgLoginFirst)
		return
	}
	c.s.Step = StepAwaitingAppID
	c.send(ctx, MsgAskAppID)
}

// Stop clears the running game. The step is left as is.
func (c *Machine) Stop(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight() {
		c.send(ctx, MsgInProgress)
		return
	}
	h := c.handle()
	if !c.s.LoggedIn || h == nil {
		c.send(ctx, MsgNotLoggedIn)
		return
	}
	if err := h.Account.SetPlaying(nil); err != nil {
		c.log.Warn("failed to clear running game", "error", err)
	}
	c.s.CurrentAppID = 0
	c.log.Info("idling stopped")
	c.send(ctx, MsgFarmStopped)
}

// Logout logs the account off and forgets the chat's state.
func (c *Machine) Logout(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.handle()
	c.reset()
	if h == nil {
		c.send(ctx, MsgNotLoggedIn)
		return
	}
	c.m.registry.RemoveIf(c.chatID, h)
	c.log.Info("logged out", "attempt", h.ID)
	c.send(ctx, MsgLoggedOut)
}

// HandleText consumes free text according to the current step.
func (c *Machine) HandleText(ctx context.Context, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.s.Step {
	case StepAwaitingLogin:
		login := strings.TrimSpace(text)
		if login == "" {
			c.send(ctx, MsgAskLogin)
			return
		}
		c.s.PendingLogin = login
		c.s.Step = StepAwaitingPassword
		c.send(ctx, MsgAskPassword)
	case StepAwaitingPassword:
		c.beginLogOn(ctx, text)
	case StepAwaitingGuardCode:
		c.submitSecondFactor(ctx, text)
	case StepAwaitingAppID:
		c.setAppID(ctx, text)
	default:
		if c.inFlight() {
			c.send(ctx, MsgInProgress)
			return
		}
		c.send(ctx, MsgHelp)
	}
}

// ///////////////////////////////////////////////
// Handshake
// ///////////////////////////////////////////////

func (c *Machine) beginLogOn(ctx context.Context, password string) {
	creds := account.Credentials{Login: c.s.PendingLogin, Password: password}
	c.s.PendingLogin = ""
	c.s.Step = StepIdle
	c.s.LoggedIn = false

	h := NewHandle(c.chatID, c.log)
	h.Account = c.m.dialer.Dial(func(ev account.Event) { c.onEvent(h, ev) })
	c.m.registry.Upsert(c.chatID, h)
	c.armTimeout(h, c.m.loginTimeout, MsgLoginTimeout)

	c.log.Info("logging on", "attempt", h.ID, "login", creds.Login)
	c.send(ctx, MsgLoggingIn)

	if err := h.Account.LogOn(ctx, creds); err != nil {
		c.log.Error("log on failed to start", "attempt", h.ID, "error", err)
		c.fail(ctx, h, loginFailed(err))
	}
}

func (c *Machine) submitSecondFactor(ctx context.Context, text string) {
	h := c.handle()
	sf := c.s.secondFactor
	c.s.secondFactor = nil
	c.s.Step = StepIdle
	if h != nil {
		h.cancelTimeout()
	}

	if h == nil || sf == nil || !sf.Submit(strings.TrimSpace(text)) {
		c.log.Error("guard code received but no second-factor request is pending")
		c.reset()
		if h != nil {
			c.m.registry.RemoveIf(c.chatID, h)
		}
		c.send(ctx, MsgGuardMissing)
		return
	}

	// The account client answers the code with another event; bound the wait
	// the same way as the initial log on.
	c.armTimeout(h, c.m.loginTimeout, MsgLoginTimeout)
	c.log.Info("guard code submitted", "attempt", h.ID)
	c.send(ctx, MsgGuardSent)
}

func (c *Machine) armTimeout(h *Handle, d time.Duration, msg string) {
	h.armTimeout(c.m.clock, d, func(seq uint64) { c.onTimeout(h, seq, msg) })
}

func (c *Machine) onTimeout(h *Handle, seq uint64, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle() != h || !h.timeoutCurrent(seq) {
		c.log.Debug("ignoring stale timeout", "attempt", h.ID)
		return
	}
	c.log.Warn("handshake timed out", "attempt", h.ID, "step", c.s.Step)
	c.reset()
	c.m.registry.RemoveIf(c.chatID, h)
	c.send(context.Background(), msg)
}

// fail collapses the chat back to Idle and releases h.
func (c *Machine) fail(ctx context.Context, h *Handle, msg string) {
	c.reset()
	c.m.registry.RemoveIf(c.chatID, h)
	c.send(ctx, msg)
}

// ///////////////////////////////////////////////
// Account Events
// ///////////////////////////////////////////////

func (c *Machine) onEvent(h *Handle, ev account.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle() != h {
		c.log.Debug("ignoring event from replaced connection", "attempt", h.ID, "event", fmt.Sprintf("%T", ev))
		return
	}
	ctx := context.Background()

	switch ev := ev.(type) {
	case account.Authenticated:
		if c.s.LoggedIn {
			c.log.Debug("duplicate authenticated event", "attempt", h.ID)
			return
		}
		h.cancelTimeout()
		if c.s.secondFactor != nil {
			c.s.secondFactor.Discard()
			c.s.secondFactor = nil
		}
		c.s.LoggedIn = true
		c.s.Step = StepIdle
		if err := h.Account.SetOnline(); err != nil {
			c.log.Warn("failed to set online state", "error", err)
		}
		c.m.scheduler.Start(h)
		c.log.Info("logged on", "attempt", h.ID, "steam_id", ev.ID)
		c.send(ctx, MsgLoggedIn)

	case account.SecondFactorRequired:
		h.cancelTimeout()
		if c.s.secondFactor != nil {
			c.s.secondFactor.Discard()
		}
		c.s.secondFactor = ev.Code
		c.s.Step = StepAwaitingGuardCode
		c.armTimeout(h, c.m.guardTimeout, MsgGuardTimeout)
		c.log.Info("second factor required", "attempt", h.ID, "domain", ev.Domain)
		c.send(ctx, guardPrompt(ev.Domain, ev.Channel))

	case account.Failed:
		c.log.Error("log on failed", "attempt", h.ID, "error", ev.Reason)
		c.fail(ctx, h, loginFailed(ev.Reason))

	case account.Disconnected:
		c.log.Warn("disconnected", "attempt", h.ID, "code", ev.Code, "reason", ev.Reason)
		c.fail(ctx, h, connectionLost(ev.Reason))
	}
}

// ///////////////////////////////////////////////
// Farming
// ///////////////////////////////////////////////

// parseAppID accepts a decimal positive integer that fits in 32 bits.
func parseAppID(text string) (uint32, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(text), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse app id: %w", err)
	}
	if n == 0 {
		return 0, errors.New("app id must be positive")
	}
	return uint32(n), nil
}

func (c *Machine) setAppID(ctx context.Context, text string) {
	id, err := parseAppID(text)
	if err != nil {
		c.send(ctx, MsgInvalidAppID)
		return
	}

	c.s.Step = StepIdle
	h := c.handle()
	if !c.s.LoggedIn || h == nil {
		c.send(ctx, MsgClientMissing)
		return
	}
	if err := h.Account.SetPlaying([]uint32{id}); err != nil {
		c.log.Error("failed to set running game", "app_id", id, "error", err)
		c.send(ctx, farmFailed(err))
		return
	}
	c.s.CurrentAppID = id
	c.log.Info("idling started", "app_id", id)
	c.send(ctx, farmStarted(id))
}
