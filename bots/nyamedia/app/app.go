// Package app wires the media bot: storage, external clients, the request
// ledger, notifications, the dialogue engine and both transports.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"

	"github.com/nyamedia/nyabot/bots/nyamedia/bot"
	"github.com/nyamedia/nyabot/bots/nyamedia/catalog"
	"github.com/nyamedia/nyabot/bots/nyamedia/config"
	"github.com/nyamedia/nyabot/bots/nyamedia/dialogue"
	"github.com/nyamedia/nyabot/bots/nyamedia/emby"
	"github.com/nyamedia/nyabot/bots/nyamedia/httpapi"
	"github.com/nyamedia/nyabot/bots/nyamedia/ledger"
	"github.com/nyamedia/nyabot/bots/nyamedia/notify"
	"github.com/nyamedia/nyabot/bots/nyamedia/store"
	"github.com/nyamedia/nyabot/core/bootstrap"
	corecmd "github.com/nyamedia/nyabot/core/cmd"
	"github.com/nyamedia/nyabot/core/database"
	"github.com/nyamedia/nyabot/core/logger"
	tg "github.com/nyamedia/nyabot/core/telegram"
	"github.com/nyamedia/nyabot/core/telegram/router"
	tgsender "github.com/nyamedia/nyabot/core/telegram/sender"
	"github.com/nyamedia/nyabot/migrations"
)

const msgRateLimited = "操作过于频繁，请稍后再试。"

// App holds the running components.
type App struct {
	cfg        *config.Config
	db         *sqlx.DB
	bot        *tele.Bot
	registry   *tg.Registry
	dispatcher *tgsender.Dispatcher
	engine     *dialogue.Engine
	http       *httpapi.Server
}

// Load adapts config.Load to the runner.
func Load(path string) (corecmd.ConfigCarrier, error) {
	return config.Load(path)
}

// Bootstrap prepares the database and builds every component. Nothing talks
// to Telegram until the runner starts the bot.
func Bootstrap(ctx context.Context, carrier corecmd.ConfigCarrier) (corecmd.App, error) {
	cfg, ok := carrier.(*config.Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}

	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:     &cfg.Config,
		Database:   cfg.Database,
		Migrations: database.Migrations{FS: migrations.FS},
		Modules: bootstrap.Modules{
			Seeders: []bootstrap.Seeder{AdminSeeder(cfg.Access.Admins)},
		},
	})
	if err != nil {
		return nil, err
	}

	teleBot, err := tg.NewBot(&cfg.Config, true)
	if err != nil {
		_ = res.DB.Close()
		return nil, err
	}
	return build(cfg, res.DB, teleBot), nil
}

func build(cfg *config.Config, db *sqlx.DB, teleBot *tele.Bot) *App {
	st := store.New(db)
	dispatcher := tgsender.NewDispatcher(tgsender.Options{
		QueueSize:    cfg.Sender.QueueSize,
		Workers:      cfg.Sender.Workers,
		MaxRetries:   cfg.Sender.MaxRetries,
		RetryBackoff: time.Duration(cfg.Sender.RetryBackoffMS) * time.Millisecond,
		MaxDuration:  time.Duration(cfg.Sender.MaxDurationMS) * time.Millisecond,
		PerSecond:    cfg.Sender.PerSecond,
	})
	messenger := bot.NewMessenger(teleBot)

	accounts := emby.New(emby.Options{
		BaseURL:        cfg.Emby.URL,
		Token:          cfg.Emby.Token,
		TemplateUserID: cfg.Emby.TemplateUserID,
		Timeout:        cfg.Emby.Timeout,
	})
	cat := catalog.New(catalog.Options{
		TMDBBaseURL: cfg.Metadata.TMDBBaseURL,
		TMDBToken:   cfg.Metadata.TMDBToken,
		BGMBaseURL:  cfg.Metadata.BGMBaseURL,
		BGMToken:    cfg.Metadata.BGMToken,
		Language:    cfg.Metadata.Language,
		UserAgent:   cfg.Metadata.UserAgent,
		Timeout:     cfg.Metadata.Timeout,
	})
	notifier := notify.New(notify.Options{
		Sender:   messenger,
		Queue:    dispatcher,
		Audience: cfg.Notify.Chats,
	})
	svc := ledger.New(ledger.Options{
		Requests:      st.Requests,
		Media:         st.Media,
		Fetcher:       cat,
		Notifier:      notifier,
		BatchInterval: cfg.Metadata.BatchInterval,
	})
	engine := dialogue.New(dialogue.Options{
		Messenger:     messenger,
		Accounts:      accounts,
		Directory:     st.Registrations,
		Catalog:       cat,
		Ledger:        svc,
		Admins:        cfg.Access.Admins,
		DisabledUsers: cfg.Access.DisabledUsers,
		CleanupDelay:  cfg.Dialogue.CleanupDelay,
		CallTimeout:   cfg.Dialogue.CallTimeout,
	})
	server := httpapi.New(httpapi.Options{
		Listen:     cfg.HTTP.Listen,
		AdminToken: cfg.HTTP.AdminToken,
		Ledger:     svc,
		Directory:  st.Registrations,
		Arrivals:   notifier,
	})

	return &App{
		cfg:        cfg,
		db:         db,
		bot:        teleBot,
		registry:   tg.NewRegistry(),
		dispatcher: dispatcher,
		engine:     engine,
		http:       server,
	}
}

// TelegramRunOptions registers the bot's handlers and hands the runtime the
// prebuilt bot and dispatcher.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	if err := bot.Register(a.registry, a.engine); err != nil {
		return tg.RunOptions{}, fmt.Errorf("app: register handlers: %w", err)
	}
	routes := router.CommandRoutes(a.registry)
	routes = append(routes, router.CallbackRoute(a.registry))
	routes = append(routes, router.TextRoutes(a.registry)...)

	return tg.RunOptions{
		Config:      &a.cfg.Config,
		Registry:    a.registry,
		Bot:         a.bot,
		Dispatcher:  a.dispatcher,
		Middlewares: tg.DefaultMiddlewares(&a.cfg.Config, onLimited),
		Routes:      routes,
		AdminChats:  a.cfg.Access.Admins,
		OnStop: func(ctx context.Context, _ tg.Runtime) error {
			// queued updates may still enqueue notices
			a.engine.Wait()
			return nil
		},
	}, nil
}

// Services returns the HTTP surface.
func (a *App) Services() []corecmd.Service {
	return []corecmd.Service{{Name: "http", Run: a.http.Run}}
}

// Close releases the database.
func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("app: close db: %w", err)
	}
	return nil
}

func onLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: msgRateLimited})
	}
	return nil
}

// AdminSeeder marks the configured admin chats that are already registered.
// Chats that register later get the flag at registration time.
func AdminSeeder(admins []int64) bootstrap.SeederFunc {
	return func(ctx context.Context, db *sqlx.DB) error {
		if len(admins) == 0 {
			return nil
		}
		n, err := store.New(db).Registrations.SetAdmin(ctx, admins)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info(ctx, "db.seed", "admins", slog.Int64("promoted", n))
		}
		return nil
	}
}
