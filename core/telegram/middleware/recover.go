package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/nyamedia/nyabot/core/logger"
	"github.com/nyamedia/nyabot/core/metrics"
	tghelpers "github.com/nyamedia/nyabot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const maxStack = 4096

// RecoverMiddleware turns a handler panic into a logged, counted no-op so a
// single bad update cannot stop the poller.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			handler, _ := c.Get(HandlerKey).(string)
			if handler == "" {
				handler = "unrouted"
			}
			metrics.TelegramPanics.WithLabelValues(handler).Inc()
			stack := debug.Stack()
			if len(stack) > maxStack {
				stack = stack[:maxStack]
			}
			logger.Error(tghelpers.BuildContext(c), "tg", "panic",
				slog.String("handler", handler),
				slog.String("err", logger.SanitizeLimit(fmt.Sprint(r), 512)),
				slog.String("stack", string(stack)),
			)
			err = nil
		}()
		return next(c)
	}
}
