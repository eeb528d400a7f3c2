package notifier

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog/log"
)

// CommandHandler is called when a user command is received. An empty reply
// sends nothing.
type CommandHandler func(ctx context.Context, command string) string

// StartPolling long-polls for commands and answers them with handler. Only
// messages from the configured chat are served. Blocks until ctx is cancelled.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) {
	t.handler = handler
	log.Info().Str("component", "telegram").Msg("command polling started")
	t.bot.Start(ctx)
	log.Info().Str("component", "telegram").Msg("command polling stopped")
}

func (t *TelegramNotifier) onUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.Message == nil || t.handler == nil {
		return
	}
	text := strings.TrimSpace(update.Message.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	if chat := strconv.FormatInt(update.Message.Chat.ID, 10); chat != t.chatID {
		log.Warn().Str("chat", chat).Str("command", text).Msg("command from unknown chat ignored")
		return
	}
	log.Info().Str("command", text).Msg("received command")
	if reply := t.handler(ctx, text); reply != "" {
		if err := t.Send(ctx, reply); err != nil {
			log.Error().Err(err).Msg("send reply")
		}
	}
}
