package session

import (
	"context"
	"log/slog"
	"time"

	"tools.zach/dev/steamidle/internal/clock"
)

// DefaultReassertInterval is the spacing between web re-assertions.
const DefaultReassertInterval = 30 * time.Minute

// webLogOnTimeout bounds a single re-assertion call.
const webLogOnTimeout = 30 * time.Second

// Scheduler re-asserts a handle's web login right away and then every
// Interval until the handle is torn down or replaced. It never takes a
// chat's lock.
type Scheduler struct {
	registry *Registry
	clock    clock.Clock
	interval time.Duration
	log      *slog.Logger
}

// NewScheduler returns a Scheduler for handles held in registry.
func NewScheduler(registry *Registry, clk clock.Clock, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultReassertInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		registry: registry,
		clock:    clk,
		interval: interval,
		log:      logger.With("component", "reassert"),
	}
}

// Start runs the first tick for h immediately.
func (s *Scheduler) Start(h *Handle) {
	s.clock.AfterFunc(0, func() { s.tick(h) })
}

func (s *Scheduler) tick(h *Handle) {
	log := s.log.With("chat_id", h.ChatID, "attempt", h.ID)

	if s.registry.Get(h.ChatID) != h || h.Closed() {
		log.Debug("handle gone, stopping re-assertion")
		return
	}
	if _, ok := h.Account.Identity(); !ok {
		log.Warn("account has no identity, stopping re-assertion")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), webLogOnTimeout)
	cookies, err := h.Account.WebLogOn(ctx)
	cancel()
	if err != nil {
		log.Warn("web re-assertion failed, retrying next tick", "error", err, "next_in", s.interval)
	} else {
		h.Web.SetCookies(cookies)
		log.Debug("web session re-asserted", "cookies", len(cookies))
	}

	if !h.scheduleReassert(s.clock, s.interval, func() { s.tick(h) }) {
		log.Debug("handle torn down during re-assertion")
	}
}
