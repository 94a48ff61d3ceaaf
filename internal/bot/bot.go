// Package bot is the chat front end: it turns Telegram updates into
// commands on each chat's session machine.
//
// Updates for one chat are handled in arrival order by a worker goroutine
// dedicated to that chat; different chats proceed independently.
package bot

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tools.zach/dev/steamidle/internal/config"
	"tools.zach/dev/steamidle/internal/session"
	"tools.zach/dev/steamidle/internal/telegram"
)

// chatQueueSize bounds the updates buffered per chat.
const chatQueueSize = 32

// DefaultIdleTimeout is how long a chat worker waits for another message
// before exiting.
const DefaultIdleTimeout = 10 * time.Minute

// MsgDenied is sent to chats outside the access policy.
const MsgDenied = "⛔ This bot is private."

// Poller delivers updates until its context ends.
type Poller interface {
	Poll(ctx context.Context, handle func(telegram.Update)) error
}

// Options wires a [Bot].
type Options struct {
	Poller   Poller
	Sessions *session.Manager
	// Replier answers denied chats. Usually the same one the sessions use.
	Replier session.Replier
	Access  config.AccessConfig
	Logger  *slog.Logger
	// IdleTimeout overrides DefaultIdleTimeout.
	IdleTimeout time.Duration
}

// Bot routes chat updates to session machines.
type Bot struct {
	poller   Poller
	sessions *session.Manager
	reply    session.Replier
	access   atomic.Pointer[config.AccessConfig]
	log      *slog.Logger
	idle     time.Duration

	mu      sync.Mutex
	workers map[int64]*chatWorker
	wg      sync.WaitGroup
}

// chatWorker is the queue of one chat. pending counts messages handed to it
// and not yet handled; it is guarded by Bot.mu.
type chatWorker struct {
	queue   chan telegram.Message
	pending int
}

// New returns a Bot.
func New(opts Options) *Bot {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	b := &Bot{
		poller:   opts.Poller,
		sessions: opts.Sessions,
		reply:    opts.Replier,
		log:      opts.Logger.With("component", "bot"),
		idle:     opts.IdleTimeout,
		workers:  make(map[int64]*chatWorker),
	}
	b.SetAccess(opts.Access)
	return b
}

// SetAccess replaces the access policy. Safe to call while running.
func (b *Bot) SetAccess(a config.AccessConfig) {
	b.access.Store(&a)
	b.log.Info("access policy loaded", "chats", len(a.AllowedChats), "usernames", len(a.AllowedUsernames))
}

// Run polls for updates until ctx is canceled or the poller gives up, then
// waits for the chat workers to finish their current message.
func (b *Bot) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := b.poller.Poll(ctx, func(u telegram.Update) {
		if u.Message != nil {
			b.Dispatch(ctx, *u.Message)
		}
	})
	cancel()
	b.wg.Wait()
	return err
}

// Dispatch queues msg on its chat's worker, starting the worker if needed.
func (b *Bot) Dispatch(ctx context.Context, msg telegram.Message) {
	chatID := msg.Chat.ID
	b.mu.Lock()
	w, ok := b.workers[chatID]
	if !ok {
		w = &chatWorker{queue: make(chan telegram.Message, chatQueueSize)}
		b.workers[chatID] = w
		b.wg.Add(1)
		go b.work(ctx, chatID, w)
	}
	w.pending++
	b.mu.Unlock()

	select {
	case w.queue <- msg:
	case <-ctx.Done():
		b.mu.Lock()
		w.pending--
		b.mu.Unlock()
	}
}

// Workers returns the number of running chat workers.
func (b *Bot) Workers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.workers)
}

// work handles the chat's messages in order. It exits when ctx ends or when
// the chat has been quiet for the idle timeout with nothing pending, and then
// lets the session manager forget an idle chat.
func (b *Bot) work(ctx context.Context, chatID int64, w *chatWorker) {
	defer b.wg.Done()
	log := b.log.With("chat_id", chatID)
	idle := time.NewTimer(b.idle)
	defer idle.Stop()
	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			b.removeWorker(chatID, w)
			b.mu.Unlock()
			return
		case msg := <-w.queue:
			b.handleSafely(ctx, log, msg)
			b.mu.Lock()
			w.pending--
			b.mu.Unlock()
			idle.Reset(b.idle)
		case <-idle.C:
			b.mu.Lock()
			if w.pending > 0 {
				b.mu.Unlock()
				idle.Reset(b.idle)
				continue
			}
			forgotten := b.sessions != nil && b.sessions.Forget(chatID)
			b.removeWorker(chatID, w)
			b.mu.Unlock()
			log.Debug("chat worker exited after idle timeout", "forgotten", forgotten)
			return
		}
	}
}

// removeWorker drops w from the worker map unless it was already replaced.
// Callers hold b.mu.
func (b *Bot) removeWorker(chatID int64, w *chatWorker) {
	if b.workers[chatID] == w {
		delete(b.workers, chatID)
	}
}

func (b *Bot) handleSafely(ctx context.Context, log *slog.Logger, msg telegram.Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic handling message", "panic", r)
		}
	}()
	b.Handle(ctx, msg)
}

// Handle applies one message synchronously.
func (b *Bot) Handle(ctx context.Context, msg telegram.Message) {
	chatID := msg.Chat.ID
	username := ""
	if msg.From != nil {
		username = msg.From.Username
	}

	if !b.access.Load().Allows(chatID, username) {
		b.log.Warn("message from chat outside access policy", "chat_id", chatID, "username", username)
		if b.reply != nil {
			if err := b.reply.Send(ctx, chatID, MsgDenied); err != nil {
				b.log.Error("failed to send reply", "chat_id", chatID, "error", err)
			}
		}
		return
	}

	intent := ParseIntent(msg.Text)
	b.log.Debug("message", "chat_id", chatID, "intent", intent)

	m := b.sessions.Machine(chatID)
	switch intent {
	case IntentWelcome:
		m.Welcome(ctx)
	case IntentLogin:
		m.Login(ctx)
	case IntentStatus:
		m.Status(ctx)
	case IntentStart:
		m.Start(ctx)
	case IntentStop:
		m.Stop(ctx)
	case IntentLogout:
		m.Logout(ctx)
	default:
		m.HandleText(ctx, msg.Text)
	}
}
