package middleware

import (
	"log/slog"

	"github.com/nyamedia/nyabot/core/logger"
	"github.com/nyamedia/nyabot/core/telegram/callbacks"
	tghelpers "github.com/nyamedia/nyabot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// LoggerMiddleware attaches the correlated update context for downstream
// handlers and writes a sampled receipt line.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		upd := c.Update()
		ctx := tghelpers.Attach(c)

		if logger.ShouldSampleDebug() {
			attrs := []slog.Attr{slog.String("kind", UpdateKind(upd))}
			if chat := c.Chat(); chat != nil {
				attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
			}
			if user := c.Sender(); user != nil && user.Username != "" {
				attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
			}
			if upd.Callback != nil {
				key, payload := callbacks.Parse(upd.Callback)
				attrs = append(attrs,
					slog.String("cb_key", logger.SanitizeLimit(key, 64)),
					slog.String("payload", logger.SanitizeLimit(payload, 128)),
				)
			} else if t := c.Text(); t != "" {
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 128)))
			}
			logger.Debug(ctx, "tg", "update.received", attrs...)
		}
		return next(c)
	}
}

// UpdateKind classifies an update for logging, metrics and rate limit exclusions.
func UpdateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	default:
		return "other"
	}
}
