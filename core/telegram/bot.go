package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	coreconfig "github.com/nyamedia/nyabot/core/config"
	"github.com/nyamedia/nyabot/core/logger"

	tele "gopkg.in/telebot.v4"
)

const defaultLongPollTimeout = 10 * time.Second

// allowedUpdates limits delivery to what the routers handle.
var allowedUpdates = []string{"message", "callback_query"}

// NewBot builds a telebot instance for cfg. Synchronous bots run handlers on
// the poller goroutine, so handlers must hand work off quickly.
func NewBot(cfg *coreconfig.Config, synchronous bool) (*tele.Bot, error) {
	if cfg == nil {
		return nil, errors.New("telegram: nil config provided")
	}
	start := time.Now()
	poller := newPoller(cfg)
	bot, err := tele.NewBot(tele.Settings{
		Token:       cfg.Telegram.Token,
		Poller:      poller,
		Client:      newHTTPClient(),
		Synchronous: synchronous,
		OnError: func(err error, _ tele.Context) {
			logger.Error(context.Background(), "tg", "bot.error", logger.Err(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	attrs := append(pollerAttrs(poller), slog.Duration("duration", logger.RoundMS(time.Since(start))))
	logger.Info(context.Background(), "tg", "mode", attrs...)
	return bot, nil
}

// newPoller picks webhook or long polling from the normalized config.
func newPoller(cfg *coreconfig.Config) tele.Poller {
	if cfg.Telegram.RunMode == coreconfig.RunModeWebhook {
		return &tele.Webhook{
			Listen:         net.JoinHostPort(cfg.Webhook.Listen, strconv.Itoa(cfg.Webhook.Port)),
			SecretToken:    cfg.Webhook.SecretToken,
			AllowedUpdates: allowedUpdates,
			Endpoint:       &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL},
		}
	}
	timeout := time.Duration(cfg.Telegram.LongPollTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultLongPollTimeout
	}
	return &tele.LongPoller{Timeout: timeout, AllowedUpdates: allowedUpdates}
}

func pollerAttrs(p tele.Poller) []slog.Attr {
	switch p := p.(type) {
	case *tele.Webhook:
		return []slog.Attr{
			slog.String("mode", "webhook"),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
		}
	case *tele.LongPoller:
		return []slog.Attr{slog.String("mode", "polling"), slog.Duration("timeout", p.Timeout)}
	default:
		return []slog.Attr{slog.String("mode", fmt.Sprintf("%T", p))}
	}
}
