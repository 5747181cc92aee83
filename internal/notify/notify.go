// Package notify alerts the operator when calendar syncs fail.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/stayledger/backend/internal/storage/models"
)

// maxMessageLen is Telegram's limit for a text message.
const maxMessageLen = 4096

// Notifier reports sync failures to an operator.
type Notifier interface {
	NotifySyncFailures(ctx context.Context, summary models.SyncSummary) error
}

// Nop discards every notification.
type Nop struct{}

// NotifySyncFailures implements Notifier.
func (Nop) NotifySyncFailures(context.Context, models.SyncSummary) error { return nil }

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends failure reports to a single chat.
type Telegram struct {
	bot    sender
	chatID int64
	logger *slog.Logger
}

// NewTelegram connects to the Bot API with token.
func NewTelegram(token string, chatID int64, logger *slog.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connecting telegram bot: %w", err)
	}
	logger.Info("telegram notifier ready", "bot", bot.Self.UserName, "chat_id", chatID)
	return &Telegram{bot: bot, chatID: chatID, logger: logger}, nil
}

// NotifySyncFailures sends one message listing aborted properties and feed
// errors. Summaries without failures send nothing.
func (t *Telegram) NotifySyncFailures(ctx context.Context, summary models.SyncSummary) error {
	if !summary.HasFailures() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.chatID, FormatFailures(summary))
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	t.logger.Debug("sync failure report sent", "chat_id", t.chatID)
	return nil
}

// FormatFailures renders the failures of a sync run as plain text.
func FormatFailures(summary models.SyncSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Calendar sync at %s: %d failed, %d feed errors\n",
		summary.FinishedAt.UTC().Format("2006-01-02 15:04 MST"), len(summary.Failed), summary.FeedErrors)

	for _, f := range summary.Failed {
		fmt.Fprintf(&b, "\n✖ %s: %s", f.PropertyName, f.Message)
	}
	for _, r := range summary.Results {
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "\n⚠ %s / %s: %s", r.PropertyName, e.Source, e.Message)
		}
	}

	text := b.String()
	if len(text) > maxMessageLen {
		text = text[:maxMessageLen-3] + "..."
	}
	return text
}
