package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"tools.zach/dev/steamidle/internal/config"
	"tools.zach/dev/steamidle/internal/session"
	"tools.zach/dev/steamidle/internal/telegram"
)

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

type sent struct {
	chatID int64
	text   string
}

// recorder collects replies in order.
type recorder struct {
	mu   sync.Mutex
	msgs []sent
}

func (r *recorder) Send(_ context.Context, chatID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sent{chatID, text})
	return nil
}

func (r *recorder) texts(chatID int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.msgs {
		if m.chatID == chatID {
			out = append(out, m.text)
		}
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBot(t *testing.T, access config.AccessConfig, poller Poller) (*Bot, *recorder) {
	t.Helper()
	rec := &recorder{}
	mgr := session.NewManager(session.Options{Replier: rec, Logger: discardLogger()})
	t.Cleanup(mgr.Close)
	return New(Options{
		Poller:   poller,
		Sessions: mgr,
		Replier:  rec,
		Access:   access,
		Logger:   discardLogger(),
	}), rec
}

func message(chatID int64, username, text string) telegram.Message {
	return telegram.Message{
		Chat: telegram.Chat{ID: chatID, Type: "private"},
		From: &telegram.User{ID: chatID, Username: username},
		Text: text,
	}
}

// ///////////////////////////////////////////////
// ParseIntent
// ///////////////////////////////////////////////

func TestParseIntent(t *testing.T) {
	tests := []struct {
		text string
		want Intent
	}{
		{session.LabelLogin, IntentLogin},
		{session.LabelStatus, IntentStatus},
		{session.LabelStart, IntentStart},
		{session.LabelStop, IntentStop},
		{session.LabelLogout, IntentLogout},
		{"  " + session.LabelLogin + " ", IntentLogin},
		{"/start", IntentWelcome},
		{"/login", IntentLogin},
		{"/status@steamidle_bot", IntentStatus},
		{"/farm", IntentStart},
		{"/STOP", IntentStop},
		{"/logout now", IntentLogout},
		{"/unknown", IntentText},
		{"gaben", IntentText},
		{"730", IntentText},
		{"Log in", IntentText},
		{"", IntentText},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := ParseIntent(tt.text); got != tt.want {
				t.Errorf("ParseIntent(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestIntentString(t *testing.T) {
	if IntentStart.String() != "start" || IntentText.String() != "text" {
		t.Errorf("unexpected names %q %q", IntentStart, IntentText)
	}
}

// ///////////////////////////////////////////////
// Handle
// ///////////////////////////////////////////////

func TestHandleRoutesIntents(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"welcome", "/start", session.MsgWelcome},
		{"login prompt", session.LabelLogin, session.MsgAskLogin},
		{"status before login", session.LabelStatus, session.MsgInactive},
		{"start before login", session.LabelStart, session.MsgLoginFirst},
		{"stop before login", session.LabelStop, session.MsgNotLoggedIn},
		{"logout before login", session.LabelLogout, session.MsgNotLoggedIn},
		{"free text while idle", "hello", session.MsgHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, rec := newTestBot(t, config.AccessConfig{}, nil)
			b.Handle(t.Context(), message(7, "alice", tt.text))

			got := rec.texts(7)
			if len(got) != 1 || got[0] != tt.want {
				t.Errorf("replies = %q, want [%q]", got, tt.want)
			}
		})
	}
}

func TestHandleLoginThenText(t *testing.T) {
	b, rec := newTestBot(t, config.AccessConfig{}, nil)
	ctx := t.Context()

	b.Handle(ctx, message(7, "", session.LabelLogin))
	b.Handle(ctx, message(7, "", "gaben"))

	got := rec.texts(7)
	want := []string{session.MsgAskLogin, session.MsgAskPassword}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("replies = %q, want %q", got, want)
	}
	if step := b.sessions.Machine(7).Session().Step; step != session.StepAwaitingPassword {
		t.Errorf("step = %v, want %v", step, session.StepAwaitingPassword)
	}
}

func TestHandleAccessDenied(t *testing.T) {
	b, rec := newTestBot(t, config.AccessConfig{AllowedChats: []int64{1}}, nil)
	b.Handle(t.Context(), message(7, "mallory", session.LabelLogin))

	got := rec.texts(7)
	if len(got) != 1 || got[0] != MsgDenied {
		t.Errorf("replies = %q, want [%q]", got, MsgDenied)
	}
	if step := b.sessions.Machine(7).Session().Step; step != session.StepIdle {
		t.Errorf("denied chat changed step to %v", step)
	}
}

func TestSetAccessAppliesLive(t *testing.T) {
	b, rec := newTestBot(t, config.AccessConfig{AllowedChats: []int64{1}}, nil)
	ctx := t.Context()

	b.Handle(ctx, message(7, "alice", "/start"))
	b.SetAccess(config.AccessConfig{AllowedUsernames: []string{"ali*"}})
	b.Handle(ctx, message(7, "alice", "/start"))

	got := rec.texts(7)
	if len(got) != 2 || got[0] != MsgDenied || got[1] != session.MsgWelcome {
		t.Errorf("replies = %q", got)
	}
}

// ///////////////////////////////////////////////
// Dispatch / Run
// ///////////////////////////////////////////////

// scriptedPoller delivers its updates and then waits for cancellation,
// unless giveUp is set, in which case it returns err straight away.
type scriptedPoller struct {
	updates []telegram.Update
	err     error
	giveUp  bool
}

func (p *scriptedPoller) Poll(ctx context.Context, handle func(telegram.Update)) error {
	for _, u := range p.updates {
		handle(u)
	}
	if !p.giveUp {
		<-ctx.Done()
	}
	return p.err
}

func TestRunKeepsPerChatOrder(t *testing.T) {
	var updates []telegram.Update
	for i, text := range []string{session.LabelLogin, "gaben", session.LabelLogin} {
		for _, chat := range []int64{1, 2} {
			msg := message(chat, "", text)
			updates = append(updates, telegram.Update{UpdateID: int64(i), Message: &msg})
		}
	}
	updates = append(updates, telegram.Update{UpdateID: 99})

	poller := &scriptedPoller{updates: updates, err: errors.New("stopped")}
	b, rec := newTestBot(t, config.AccessConfig{}, poller)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for rec.count() < 6 {
		select {
		case <-deadline:
			t.Fatalf("got %d replies, want 6", rec.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err == nil || err.Error() != "stopped" {
			t.Errorf("Run = %v, want poller error", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	want := []string{session.MsgAskLogin, session.MsgAskPassword, session.MsgAskLogin}
	for _, chat := range []int64{1, 2} {
		got := rec.texts(chat)
		if len(got) != len(want) {
			t.Fatalf("chat %d replies = %q, want %q", chat, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("chat %d reply %d = %q, want %q", chat, i, got[i], want[i])
			}
		}
	}
}

func TestRunReturnsWhenPollerGivesUp(t *testing.T) {
	msg := message(1, "", "/start")
	poller := &scriptedPoller{
		updates: []telegram.Update{{UpdateID: 1, Message: &msg}},
		err:     telegram.ErrUnauthorized,
		giveUp:  true,
	}
	b, _ := newTestBot(t, config.AccessConfig{}, poller)

	done := make(chan error, 1)
	go func() { done <- b.Run(t.Context()) }()

	select {
	case err := <-done:
		if !errors.Is(err, telegram.ErrUnauthorized) {
			t.Errorf("Run = %v, want ErrUnauthorized", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the poller stopped")
	}
}

func TestIdleWorkerExits(t *testing.T) {
	b, rec := newTestBot(t, config.AccessConfig{}, nil)
	b.idle = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	b.Dispatch(ctx, message(7, "", "/start"))

	deadline := time.After(5 * time.Second)
	for b.Workers() != 0 {
		select {
		case <-deadline:
			t.Fatalf("workers = %d after idle timeout", b.Workers())
		case <-time.After(5 * time.Millisecond):
		}
	}
	if rec.count() != 1 {
		t.Errorf("replies = %d, want 1", rec.count())
	}
	if b.sessions.Forget(7) {
		t.Error("idle chat machine was kept")
	}

	// A later message starts a fresh worker.
	b.Dispatch(ctx, message(7, "", "/start"))
	for rec.count() < 2 {
		select {
		case <-deadline:
			t.Fatal("no reply from restarted worker")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	b.wg.Wait()
}

// ///////////////////////////////////////////////
// Sender
// ///////////////////////////////////////////////

type fakeTelegram struct {
	got []telegram.OutgoingMessage
	err error
}

func (f *fakeTelegram) SendMessage(_ context.Context, msg telegram.OutgoingMessage) error {
	f.got = append(f.got, msg)
	return f.err
}

func TestSender(t *testing.T) {
	tg := &fakeTelegram{}
	if err := NewSender(tg).Send(t.Context(), 5, "<b>hi</b>"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(tg.got) != 1 {
		t.Fatalf("sent %d messages, want 1", len(tg.got))
	}
	msg := tg.got[0]
	if msg.ChatID != 5 || msg.Text != "<b>hi</b>" || msg.ParseMode != telegram.ParseModeHTML {
		t.Errorf("message = %+v", msg)
	}
	if msg.ReplyMarkup == nil || len(msg.ReplyMarkup.Keyboard) != 3 {
		t.Fatalf("keyboard = %+v, want 3 rows", msg.ReplyMarkup)
	}
	if msg.ReplyMarkup.Keyboard[0][0].Text != session.LabelLogin {
		t.Errorf("first button = %q", msg.ReplyMarkup.Keyboard[0][0].Text)
	}
}

func TestSenderError(t *testing.T) {
	tg := &fakeTelegram{err: errors.New("down")}
	if err := NewSender(tg).Send(t.Context(), 5, "x"); err == nil {
		t.Error("expected error")
	}
}
