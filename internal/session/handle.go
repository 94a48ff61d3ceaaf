package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tools.zach/dev/steamidle/internal/account"
	"tools.zach/dev/steamidle/internal/clock"
	"tools.zach/dev/steamidle/internal/websession"
)

// Handle is one live connection attempt for a chat. It owns the account
// client, the companion web session, the re-assertion timer and the pending
// login or second-factor timeout.
type Handle struct {
	// ID identifies the attempt in logs.
	ID      string
	ChatID  int64
	Account account.Client
	Web     *websession.Session

	log *slog.Logger

	mu         sync.Mutex
	reassert   *clock.Timer
	timeout    *clock.Timer
	timeoutSeq uint64
	closed     bool

	teardown sync.Once
}

// NewHandle returns a Handle for chatID with a fresh web session. Account is
// set by the caller once the client has been dialed.
func NewHandle(chatID int64, logger *slog.Logger) *Handle {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Handle{
		ID:     id,
		ChatID: chatID,
		Web:    websession.New(),
		log:    logger.With("attempt", id),
	}
}

// Closed reports whether Teardown has run.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Teardown cancels both timers and logs the account off. Only the first call
// has any effect.
func (h *Handle) Teardown() {
	h.teardown.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.reassert.Stop()
		h.timeout.Stop()
		h.reassert = nil
		h.timeout = nil
		h.timeoutSeq++
		h.mu.Unlock()

		if h.Account != nil {
			h.Account.LogOff()
		}
		h.log.Debug("connection torn down")
	})
}

// ///////////////////////////////////////////////
// Timers
// ///////////////////////////////////////////////

// armTimeout replaces the pending timeout with one that calls fire after d.
// fire receives the sequence number it was armed with; compare it with
// timeoutCurrent to discard a callback that raced with cancellation.
func (h *Handle) armTimeout(clk clock.Clock, d time.Duration, fire func(seq uint64)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.timeout.Stop()
	h.timeoutSeq++
	seq := h.timeoutSeq
	h.timeout = clk.AfterFunc(d, func() { fire(seq) })
}

// cancelTimeout stops the pending timeout, if any.
func (h *Handle) cancelTimeout() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timeout.Stop()
	h.timeout = nil
	h.timeoutSeq++
}

func (h *Handle) timeoutCurrent(seq uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.closed && h.timeoutSeq == seq
}

// scheduleReassert arms the next re-assertion tick. It reports false when
// the handle is already torn down.
func (h *Handle) scheduleReassert(clk clock.Clock, d time.Duration, tick func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.reassert.Stop()
	h.reassert = clk.AfterFunc(d, tick)
	return true
}
