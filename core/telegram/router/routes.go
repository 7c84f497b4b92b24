// Package router binds registry entries to telebot endpoints. Every route is
// wrapped with panic recovery and receipt logging, and writes one summary
// line per handled update.
package router

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nyamedia/nyabot/core/logger"
	tg "github.com/nyamedia/nyabot/core/telegram"
	"github.com/nyamedia/nyabot/core/telegram/callbacks"
	"github.com/nyamedia/nyabot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

func route(endpoint string, h tele.HandlerFunc) tg.Route {
	return tg.Route{
		Endpoint: endpoint,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(h)),
	}
}

// CommandRoutes binds each registered command and its aliases. Access rules
// such as admin-only commands are left to the handlers.
func CommandRoutes(reg *tg.Registry) []tg.Route {
	if reg == nil {
		return nil
	}
	cmds := reg.Commands()
	var routes []tg.Route
	for name, cmd := range cmds {
		label := "command." + handlerName(name)
		run := cmd.Handler
		h := route(name, func(c tele.Context) error {
			return summarize(c, label, time.Now(), func() error { return run(c) })
		})
		routes = append(routes, h)
		for _, alias := range cmd.Aliases {
			routes = append(routes, tg.Route{Endpoint: "/" + alias, Handler: h.Handler})
		}
	}
	logger.Info(context.Background(), "tg.wire", "complete",
		slog.Int("count", len(cmds)),
		slog.Int("callbacks", len(reg.CallbackKeys())),
	)
	return routes
}

// CallbackRoute answers every button press and hands it to the callback
// registered under its unique key, or to the not-found handler.
func CallbackRoute(reg *tg.Registry) tg.Route {
	return route(tele.OnCallback, func(c tele.Context) error {
		start := time.Now()
		if c.Callback() == nil {
			return nil
		}
		key, _ := callbacks.Parse(c.Callback())
		_ = c.Respond()

		extras := []slog.Attr{slog.String("cb_key", key)}
		h, ok := reg.Callback(key)
		if !ok || h == nil {
			h = reg.CallbackNotFound()
			extras = append(extras, slog.String("reason", "not_found"))
		}
		return summarize(c, "callback."+handlerName(key), start, func() error {
			if h == nil {
				return nil
			}
			return h(c)
		}, extras...)
	})
}

// TextRoutes routes free text. telebot only matches exact endpoints, so text
// such as "/help@bot extra" is matched against the registry here before the
// rest goes to the text fallback.
func TextRoutes(reg *tg.Registry) []tg.Route {
	return []tg.Route{route(tele.OnText, func(c tele.Context) error {
		start := time.Now()
		text := strings.TrimSpace(c.Text())

		if fields := strings.Fields(text); len(fields) > 0 && strings.HasPrefix(fields[0], "/") {
			if name, cmd, ok := reg.LookupCommand(fields[0]); ok && cmd.Handler != nil {
				return summarize(c, "command."+handlerName(name), start, func() error { return cmd.Handler(c) })
			}
		}
		if fb := reg.TextFallback(); fb != nil {
			return summarize(c, "text", start, func() error { return fb(c) })
		}
		logSummary(c, "text.unhandled", start, nil)
		return nil
	})}
}
