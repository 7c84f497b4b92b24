package middleware

import (
	"time"

	"github.com/nyamedia/nyabot/core/metrics"

	tele "gopkg.in/telebot.v4"
)

// MetricsMiddleware counts updates by kind and observes handler latency.
// The handler label is read from the context key set by the routers.
func MetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := time.Now()
		metrics.TelegramUpdates.WithLabelValues(UpdateKind(c.Update())).Inc()
		err := next(c)
		handler, _ := c.Get(HandlerKey).(string)
		if handler == "" {
			handler = "unrouted"
		}
		metrics.TelegramHandlerDuration.WithLabelValues(handler).Observe(time.Since(start).Seconds())
		return err
	}
}

// HandlerKey is the tele.Context key under which routers record the handler name.
const HandlerKey = "handler_name"
