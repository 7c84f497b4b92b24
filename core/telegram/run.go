package telegram

import (
	"context"
	"errors"
	"log/slog"

	coreconfig "github.com/nyamedia/nyabot/core/config"
	"github.com/nyamedia/nyabot/core/logger"
	tgsender "github.com/nyamedia/nyabot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Middleware is a named global middleware installed with bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route binds a handler to a telebot endpoint such as "/help" or tele.OnText.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry
	// Bot is used as is when set; otherwise NewBot builds one.
	Bot *tele.Bot

	DispatcherOptions tgsender.Options
	Dispatcher        *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	// AdminChats get a command menu that includes admin-only commands.
	AdminChats []int64
	// SkipMenu leaves the published command menu untouched.
	SkipMenu bool
	// KeepWebhook skips removing a stale webhook before long polling.
	KeepWebhook bool

	OnStart func(ctx context.Context, rt Runtime) error
	// OnStop runs after the poller has stopped and before the dispatcher
	// is closed, so it may still queue outbound messages.
	OnStop func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// RunTelegram wires opts into a bot and polls until ctx is done.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	rt, err := prepare(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Dispatcher.Close()

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	runErr := poll(ctx, rt.Bot)
	if opts.OnStop != nil {
		if err := opts.OnStop(context.WithoutCancel(ctx), rt); err != nil {
			return err
		}
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func prepare(ctx context.Context, opts RunOptions) (Runtime, error) {
	cfg := opts.Config
	if cfg == nil {
		return Runtime{}, errors.New("telegram: nil config provided")
	}
	rt := Runtime{Bot: opts.Bot, Dispatcher: opts.Dispatcher, Registry: opts.Registry}
	if rt.Registry == nil {
		rt.Registry = NewRegistry()
	}
	if rt.Bot == nil {
		bot, err := NewBot(cfg, false)
		if err != nil {
			return Runtime{}, err
		}
		rt.Bot = bot
	}
	if rt.Dispatcher == nil {
		rt.Dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
	}

	if !opts.KeepWebhook && cfg.Telegram.RunMode == coreconfig.RunModeLongpoll {
		// A webhook left over from an earlier deployment makes getUpdates fail.
		if err := rt.Bot.RemoveWebhook(); err != nil {
			logger.Warn(ctx, "tg", "delete_webhook", slog.String("status", "fail"), logger.Err(err))
		} else {
			logger.Info(ctx, "tg", "delete_webhook", slog.String("status", "ok"))
		}
	}

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			rt.Bot.Use(mw.Use)
		}
	}
	for _, r := range opts.Routes {
		if r.Endpoint != nil && r.Handler != nil {
			rt.Bot.Handle(r.Endpoint, r.Handler)
		}
	}
	if !opts.SkipMenu {
		_ = PublishMenu(ctx, rt.Bot, rt.Registry, opts.AdminChats)
	}
	return rt, nil
}

// poll runs the bot until ctx is done or the poller exits by itself.
func poll(ctx context.Context, bot *tele.Bot) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		bot.Start()
	}()
	select {
	case <-ctx.Done():
		bot.Stop()
		<-done
		return ctx.Err()
	case <-done:
		return nil
	}
}
