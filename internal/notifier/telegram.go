package notifier

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog/log"

	"SignalSentinel/internal/model"
)

const defaultRetries = 3

// TelegramNotifier delivers formatted messages to one operator chat and
// answers commands sent from it.
type TelegramNotifier struct {
	bot       *bot.Bot
	chatID    string
	retries   int
	retryBase time.Duration
	handler   CommandHandler
}

// TelegramOptions configures the bot client.
type TelegramOptions struct {
	Token    string
	ChatID   string
	ProxyURL string
	// ServerURL overrides https://api.telegram.org.
	ServerURL string
	Retries   int
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(opts TelegramOptions) (*TelegramNotifier, error) {
	transport := &http.Transport{}
	if opts.ProxyURL != "" {
		if u, err := url.Parse(opts.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	client := &http.Client{Timeout: 60 * time.Second, Transport: transport}

	t := &TelegramNotifier{chatID: opts.ChatID, retries: opts.Retries, retryBase: time.Second}
	if t.retries <= 0 {
		t.retries = defaultRetries
	}

	botOpts := []bot.Option{
		bot.WithSkipGetMe(),
		bot.WithHTTPClient(30*time.Second, client),
		bot.WithDefaultHandler(t.onUpdate),
	}
	if opts.ServerURL != "" {
		botOpts = append(botOpts, bot.WithServerURL(opts.ServerURL))
	}
	b, err := bot.New(opts.Token, botOpts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	t.bot = b
	return t, nil
}

// Send sends an HTML message to the configured chat.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    t.chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// SendWithRetry sends a message with exponential backoff retry.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		err := t.Send(ctx, text)
		if err == nil {
			return nil
		}
		lastErr = err
		if i == maxRetries {
			break
		}
		backoff := t.retryBase * time.Duration(1<<uint(i))
		log.Warn().Err(err).Int("attempt", i+1).Int("max", maxRetries+1).Dur("backoff", backoff).
			Msg("telegram send failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("all %d attempts exhausted: %w", maxRetries+1, lastErr)
}

func (t *TelegramNotifier) PublishSignal(ctx context.Context, sig *model.Signal) error {
	return t.SendWithRetry(ctx, FormatSignal(sig), t.retries)
}

func (t *TelegramNotifier) PublishLifecycle(ctx context.Context, evt model.LifecycleEvent) error {
	return t.SendWithRetry(ctx, FormatLifecycle(evt), t.retries)
}

func (t *TelegramNotifier) PublishRegimeShift(ctx context.Context, shift model.RegimeShift) error {
	return t.SendWithRetry(ctx, FormatRegimeShift(shift), t.retries)
}
