package logger

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	coreconfig "github.com/nyamedia/nyabot/core/config"
)

func newTestLogger(t *testing.T, format logFormat) (*slog.Logger, *bytes.Buffer, func()) {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newLineHandler(handlerConfig{
		level:    slog.LevelInfo,
		writer:   aw,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	flush := func() {
		require.NoError(t, aw.Flush())
		require.NoError(t, aw.Close())
	}
	return slog.New(handler), buf, flush
}

func TestLineHandlerKVOrder(t *testing.T) {
	log, buf, flush := newTestLogger(t, formatKV)
	ctx := WithRID(context.Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)

	LogEvent(ctx, log.With("component", "app"), slog.LevelInfo, "test.event",
		slog.String("status", "ok"),
		slog.Int64("request_id", 5),
	)
	flush()

	tokens := strings.Split(strings.TrimSpace(buf.String()), " ")
	expected := []string{"ts=", "level=INFO", "component=app", "event=test.event", "status=ok", "rid=rid-123", "update_id=42", "user_id=7", "chat_id=9"}
	require.GreaterOrEqual(t, len(tokens), len(expected))
	for i, prefix := range expected {
		require.Truef(t, strings.HasPrefix(tokens[i], prefix), "token %d = %s, expected prefix %s", i, tokens[i], prefix)
	}
	require.Contains(t, buf.String(), "request_id=5")
}

func TestLineHandlerJSONOrder(t *testing.T) {
	log, buf, flush := newTestLogger(t, formatJSON)
	ctx := WithRID(context.Background(), "rid-json")

	LogEvent(ctx, log.With("component", "ledger"), slog.LevelError, "adjudicate",
		slog.String("status", "fail"),
		slog.String("err", "boom"),
	)
	flush()

	line := strings.TrimSpace(buf.String())
	require.True(t, strings.HasPrefix(line, "{"), line)
	pos := -1
	for _, pref := range []string{`{"ts":`, `"level":"ERROR"`, `"component":"ledger"`, `"event":"adjudicate"`, `"status":"fail"`, `"rid":"rid-json"`} {
		idx := strings.Index(line, pref)
		require.Truef(t, idx > pos, "prefix %s not found in order within %s", pref, line)
		pos = idx
	}
}

func TestLineHandlerCompactRID(t *testing.T) {
	log, buf, flush := newTestLogger(t, formatKV)
	rawRID := "123:456:789"
	LogEvent(WithRID(context.Background(), rawRID), log, slog.LevelInfo, "rid.test")
	flush()

	line := buf.String()
	require.Contains(t, line, "rid="+CompactRID(rawRID))
	require.NotContains(t, line, "rid_full=")
	require.Contains(t, line, "component=app")
}

func TestLineHandlerCompactRIDJSON(t *testing.T) {
	log, buf, flush := newTestLogger(t, formatJSON)
	rawRID := "12:34:56"
	LogEvent(WithRID(context.Background(), rawRID), log, slog.LevelInfo, "rid.test")
	flush()

	line := buf.String()
	require.Contains(t, line, `"rid":"`+CompactRID(rawRID)+`"`)
	require.Contains(t, line, `"rid_full":"`+rawRID+`"`)
	require.Contains(t, line, `"ts_unix_nano"`)
}

func TestLineHandlerDurationKeys(t *testing.T) {
	log, buf, flush := newTestLogger(t, formatKV)
	LogEvent(context.Background(), log, slog.LevelInfo, "timing",
		slog.Duration("duration", 1500*time.Millisecond),
		slog.Duration("backoff", 200*time.Millisecond),
		slog.String("outcome", "Duplicate"),
	)
	flush()

	line := buf.String()
	require.Contains(t, line, "duration_ms=1500")
	require.Contains(t, line, "backoff_ms=200")
	require.Contains(t, line, "outcome=duplicate")
}

func TestComponentDefaultsBeforeInit(t *testing.T) {
	require.NotNil(t, Component("dialogue"))
	require.NotPanics(t, func() {
		Info(context.Background(), "dialogue", "noop")
	})
}

func TestSanitizeLimit(t *testing.T) {
	require.Equal(t, "ab", SanitizeLimit("a\x00b", 10))
	require.Equal(t, "用户", SanitizeLimit("用户名", 2))
	require.Equal(t, "", SanitizeLimit("abc", 0))
}

type secret string

func (secret) LogValue() slog.Value { return slog.StringValue("***") }

func TestLineHandlerGroupsAndBoundAttrs(t *testing.T) {
	log, buf, flush := newTestLogger(t, formatKV)
	scoped := log.With("component", "emby").WithGroup("http").With(slog.Int("code", 502))
	scoped.LogAttrs(context.Background(), slog.LevelWarn, "call",
		slog.Group("req", slog.String("path", "/Users/New")),
		slog.Any("token", secret("abc")),
		slog.Any("cause", errors.New("bad gateway")),
	)
	flush()

	line := buf.String()
	require.Contains(t, line, "component=emby")
	require.Contains(t, line, "event=call")
	require.Contains(t, line, "http.code=502")
	require.Contains(t, line, "http.req.path=/Users/New")
	require.Contains(t, line, "http.token=***")
	require.Contains(t, line, `http.cause="bad gateway"`)
	require.NotContains(t, line, "abc")
}

func TestLineHandlerExplicitAttrsWinOverContext(t *testing.T) {
	log, buf, flush := newTestLogger(t, formatJSON)
	ctx := WithUpdateMeta(context.Background(), 1, 2, 3)
	LogEvent(ctx, log, slog.LevelInfo, "override", slog.Int64("chat_id", 99), slog.String("empty", ""))
	flush()

	line := buf.String()
	require.Contains(t, line, `"chat_id":99`)
	require.Contains(t, line, `"user_id":2`)
	require.NotContains(t, line, `"empty"`)
}

func TestResolveSettings(t *testing.T) {
	s := resolveSettings(nil)
	require.Equal(t, slog.LevelInfo, s.level)
	require.Equal(t, formatJSON, s.format)

	cfg := &coreconfig.Config{}
	cfg.Logging.Level = "Warning"
	cfg.Logging.Profile = "dev"
	cfg.Logging.KeysOrder = "event, ts ,,level"
	cfg.Logging.DebugSample = "0"
	cfg.Logging.Dir = "/var/log/nyabot"
	cfg.Logging.BotFile = "bot.log"
	s = resolveSettings(cfg)
	require.Equal(t, slog.LevelWarn, s.level)
	require.Equal(t, formatKV, s.format)
	require.Equal(t, []string{"event", "ts", "level"}, s.keyOrder)
	require.Equal(t, 0, s.sampleDen)
	require.Equal(t, "/var/log/nyabot/bot.log", s.file)

	cfg.Logging.Format = "json"
	require.Equal(t, formatJSON, resolveSettings(cfg).format)
}

func TestCompactRID(t *testing.T) {
	require.Equal(t, "a.-1.z", CompactRID(BuildRID(10, -1, 35)))
	require.Equal(t, "not-a-rid", CompactRID(" not-a-rid "))
	require.Equal(t, "1:x:3", CompactRID("1:x:3"))
}
