package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	coreconfig "github.com/nyamedia/nyabot/core/config"
	"github.com/nyamedia/nyabot/core/logger"
	coretelegram "github.com/nyamedia/nyabot/core/telegram"
)

// ConfigCarrier exposes access to the embedded core configuration.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Config
}

// Service is a long-running component started next to the Telegram runtime.
// Run must return once ctx is cancelled.
type Service struct {
	Name string
	Run  func(ctx context.Context) error
}

// App is what a bot hands to the runner after bootstrapping.
type App interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
	Services() []Service
	Close() error
}

// Options describe how to load configuration, bootstrap the app, and run it.
type Options struct {
	// ConfigPath wins over ConfigEnvVar and DefaultConfigPath when set.
	ConfigPath        string
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (ConfigCarrier, error)
	Bootstrap  func(ctx context.Context, cfg ConfigCarrier) (App, error)

	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
}

// ResolveConfigPath picks the configuration file from the explicit path,
// the environment or the default, in that order.
func (o Options) ResolveConfigPath() (string, error) {
	if o.ConfigPath != "" {
		return o.ConfigPath, nil
	}
	env := o.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	if p := os.Getenv(env); p != "" {
		return p, nil
	}
	if o.DefaultConfigPath != "" {
		return o.DefaultConfigPath, nil
	}
	return "", fmt.Errorf("cmd: config path not provided via flag, %s or DefaultConfigPath", env)
}

// Run loads configuration, bootstraps the app and runs the Telegram runtime
// together with the app's services until a signal arrives or one of them fails.
func Run(opts Options) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	startedAt := time.Now()
	application, err := opts.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}
	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn(context.Background(), "app", "close", logger.Err(err))
		}
	}()

	runOpts, err := application.TelegramRunOptions()
	if err != nil {
		return fmt.Errorf("cmd: telegram options build failed: %w", err)
	}
	withLifecycleLogs(&runOpts, startedAt)
	run := opts.RunTelegram
	if run == nil {
		run = coretelegram.RunTelegram
	}
	return supervise(ctx, run, runOpts, application.Services())
}

func (o Options) load() (ConfigCarrier, error) {
	switch {
	case o.LoadConfig == nil:
		return nil, errors.New("cmd: LoadConfig is required")
	case o.Bootstrap == nil:
		return nil, errors.New("cmd: Bootstrap is required")
	}
	path, err := o.ResolveConfigPath()
	if err != nil {
		return nil, err
	}
	log.Printf("loading config: %s", path)
	cfg, err := o.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("cmd: failed to load config: %w", err)
	}
	if cfg == nil || cfg.CoreConfig() == nil {
		return nil, errors.New("cmd: loaded config is missing core configuration")
	}
	return cfg, nil
}

// withLifecycleLogs logs readiness after OnStart and the start of shutdown
// before OnStop.
func withLifecycleLogs(opts *coretelegram.RunOptions, startedAt time.Time) {
	onStart, onStop := opts.OnStart, opts.OnStop
	opts.OnStart = func(ctx context.Context, rt coretelegram.Runtime) error {
		if onStart != nil {
			if err := onStart(ctx, rt); err != nil {
				return err
			}
		}
		logger.Info(ctx, "app", "ready", slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))))
		return nil
	}
	opts.OnStop = func(ctx context.Context, rt coretelegram.Runtime) error {
		logger.Info(ctx, "app", "shutdown")
		if onStop != nil {
			return onStop(ctx, rt)
		}
		return nil
	}
}

// supervise runs the bot and every service; the first failure cancels the rest.
func supervise(ctx context.Context, run func(context.Context, coretelegram.RunOptions) error, opts coretelegram.RunOptions, services []Service) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return run(gctx, opts) })
	for _, svc := range services {
		g.Go(func() error {
			logger.Info(gctx, "app", "service.start", slog.String("handler", svc.Name))
			if err := svc.Run(gctx); err != nil {
				return fmt.Errorf("cmd: service %s: %w", svc.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
