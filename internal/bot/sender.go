package bot

import (
	"context"

	"tools.zach/dev/steamidle/internal/telegram"
)

// MessageSender is the subset of the Telegram client used for replies.
type MessageSender interface {
	SendMessage(ctx context.Context, msg telegram.OutgoingMessage) error
}

// Sender implements session.Replier over Telegram, formatting replies as
// HTML and attaching the main keyboard.
type Sender struct {
	tg       MessageSender
	keyboard *telegram.ReplyKeyboardMarkup
}

// NewSender returns a Sender backed by tg.
func NewSender(tg MessageSender) *Sender {
	return &Sender{tg: tg, keyboard: telegram.Keyboard(mainKeyboardRows()...)}
}

// Send delivers text to chatID.
func (s *Sender) Send(ctx context.Context, chatID int64, text string) error {
	return s.tg.SendMessage(ctx, telegram.OutgoingMessage{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   telegram.ParseModeHTML,
		ReplyMarkup: s.keyboard,
	})
}
