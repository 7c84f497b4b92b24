package router

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nyamedia/nyabot/core/logger"
	tghelpers "github.com/nyamedia/nyabot/core/telegram/helpers"
	"github.com/nyamedia/nyabot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// summarize runs fn as the named handler and logs its outcome.
func summarize(c tele.Context, name string, start time.Time, fn func() error, extras ...slog.Attr) error {
	c.Set(middleware.HandlerKey, name)
	tghelpers.WithHandler(c, name)
	err := fn()
	logSummary(c, name, start, err, extras...)
	return err
}

func logSummary(c tele.Context, name string, start time.Time, err error, extras ...slog.Attr) {
	ctx := tghelpers.WithHandler(c, name)
	level, attrs := slog.LevelDebug, []slog.Attr{slog.String("status", "ok")}
	if err != nil {
		level = slog.LevelWarn
		attrs = []slog.Attr{slog.String("status", "fail"), logger.Err(err), slog.String("err_tag", errorTag(err))}
	}
	attrs = append(attrs, slog.Duration("duration", logger.RoundMS(time.Since(start))))
	logger.Event(ctx, "tg", level, "handler.handled", append(attrs, extras...)...)
}

// handlerName turns a command or callback key into a metric-safe label.
func handlerName(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	if name == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

func errorTag(err error) string {
	var tagged interface{ Tag() string }
	if errors.As(err, &tagged) {
		if tag := strings.TrimSpace(tagged.Tag()); tag != "" {
			return tag
		}
	}
	return "UNTAGGED"
}
