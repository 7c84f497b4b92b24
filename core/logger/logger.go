package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/nyamedia/nyabot/core/buildinfo"
	coreconfig "github.com/nyamedia/nyabot/core/config"
)

const writerQueue = 64 * 1024

var (
	initOnce sync.Once
	active   sinks

	levelVar     slog.LevelVar
	debugSampler = newRatioSampler(1, 50)
	traceAll     bool

	// L is the base logger. It points at slog.Default until InitLogger runs,
	// so packages can log from tests without any setup.
	L = slog.Default()
)

// settings is the logging section of the config after defaults are applied.
type settings struct {
	level     slog.Level
	format    logFormat
	keyOrder  []string
	sampleNum int
	sampleDen int
	profile   string
	file      string
}

func resolveSettings(cfg *coreconfig.Config) settings {
	s := settings{
		level:     slog.LevelInfo,
		format:    formatJSON,
		keyOrder:  defaultKeyOrder,
		sampleNum: 1,
		sampleDen: 50,
	}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging
	s.profile = strings.ToLower(strings.TrimSpace(lc.Profile))
	if s.profile == "" {
		s.profile = "prod"
	}

	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		s.level = slog.LevelDebug
	case "warn", "warning":
		s.level = slog.LevelWarn
	case "error":
		s.level = slog.LevelError
	}

	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}

	if raw := strings.TrimSpace(lc.KeysOrder); raw != "" && raw != "default" {
		var order []string
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				order = append(order, k)
			}
		}
		if len(order) > 0 {
			s.keyOrder = order
		}
	}

	if strings.TrimSpace(lc.DebugSample) != "" {
		switch num, den := parseRatioSpec(lc.DebugSample); {
		case num == 0 && den == 0:
			s.sampleNum, s.sampleDen = 0, 0
		case num > 0 && den > 0:
			s.sampleNum, s.sampleDen = num, den
		}
	}

	if dir, file := strings.TrimSpace(lc.Dir), strings.TrimSpace(lc.BotFile); dir != "" && file != "" {
		s.file = filepath.Join(dir, file)
	}
	return s
}

// InitLogger installs the structured logger as the slog default. Only the
// first call has any effect.
func InitLogger(cfg *coreconfig.Config) error {
	var err error
	initOnce.Do(func() {
		err = install(resolveSettings(cfg))
	})
	return err
}

func install(s settings) error {
	outputs := []io.Writer{os.Stdout}
	if s.file != "" {
		if err := os.MkdirAll(filepath.Dir(s.file), 0o755); err != nil {
			return fmt.Errorf("logger: create log dir: %w", err)
		}
		f, err := os.OpenFile(s.file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("logger: open log file: %w", err)
		}
		outputs = append(outputs, f)
		active.files = append(active.files, f)
	}
	active.writer = newAsyncWriter(outputs, writerQueue)

	levelVar.Set(s.level)
	debugSampler.Set(s.sampleNum, s.sampleDen)
	traceAll = envFlag("TRACE") || envFlag("LOG_TRACE")

	L = slog.New(newLineHandler(handlerConfig{
		level:    &levelVar,
		writer:   active.writer,
		format:   s.format,
		keyOrder: s.keyOrder,
	}))
	slog.SetDefault(L)

	Info(context.Background(), "app", "startup",
		slog.String("go_version", runtime.Version()),
		slog.String("build_version", buildinfo.Version),
		slog.String("build_commit", buildinfo.Commit),
		slog.String("cfg_profile", s.profile),
	)
	return nil
}

type sinks struct {
	mu     sync.Mutex
	writer *asyncWriter
	files  []io.Closer
	closed bool
}

func (s *sinks) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	if s.writer != nil {
		errs = append(errs, s.writer.Flush(), s.writer.Close())
	}
	for _, f := range s.files {
		errs = append(errs, f.Close())
	}
	return errors.Join(errs...)
}

// Shutdown flushes pending lines and closes the log file. Later calls are no-ops.
func Shutdown() error {
	return active.close()
}

func envFlag(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// ShouldSampleDebug reports whether a high-volume debug line should be
// written. TRACE=1 lets every line through.
func ShouldSampleDebug() bool {
	return traceAll || debugSampler.Allow()
}

// Component returns L scoped to a component name.
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name != "" {
		return L.With("component", name)
	}
	return L
}

// LogEvent writes a record whose event attribute comes first. A nil logg
// falls back to the logger stored in ctx.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), level, event, attrs...)
}

func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}
