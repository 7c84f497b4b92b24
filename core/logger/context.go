package logger

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"unicode"
)

type ctxKey int

const (
	keyLogger ctxKey = iota
	keyRID
	keyUpdate
	keyHandler
)

type updateMeta struct {
	updateID int
	userID   int64
	chatID   int64
}

// WithLogger stores log in ctx. FromContext returns it to downstream layers.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, keyLogger, log)
}

// FromContext returns the logger stored in ctx, or L.
func FromContext(ctx context.Context) *slog.Logger {
	if l := valueOf[*slog.Logger](ctx, keyLogger); l != nil {
		return l
	}
	return L
}

// WithRID attaches a correlation id to ctx.
func WithRID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, keyRID, rid)
}

func RIDFrom(ctx context.Context) string {
	return valueOf[string](ctx, keyRID)
}

// WithUpdateMeta attaches the identifiers of the update being handled.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return context.WithValue(ctx, keyUpdate, updateMeta{updateID: updateID, userID: userID, chatID: chatID})
}

func UpdateIDFrom(ctx context.Context) int { return updateMetaFrom(ctx).updateID }

func UserIDFrom(ctx context.Context) int64 { return updateMetaFrom(ctx).userID }

func ChatIDFrom(ctx context.Context) int64 { return updateMetaFrom(ctx).chatID }

// WithHandler names the handler serving ctx. Empty names are ignored.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		return ctx
	}
	return context.WithValue(ctx, keyHandler, handler)
}

func HandlerFrom(ctx context.Context) string {
	return valueOf[string](ctx, keyHandler)
}

func updateMetaFrom(ctx context.Context) updateMeta {
	return valueOf[updateMeta](ctx, keyUpdate)
}

func valueOf[T any](ctx context.Context, key ctxKey) T {
	var zero T
	if ctx == nil {
		return zero
	}
	v, ok := ctx.Value(key).(T)
	if !ok {
		return zero
	}
	return v
}

// BuildRID formats the correlation id of an update as update:chat:user.
func BuildRID(updateID int, chatID, userID int64) string {
	return strconv.Itoa(updateID) + ":" + strconv.FormatInt(chatID, 10) + ":" + strconv.FormatInt(userID, 10)
}

// CompactRID rewrites each segment of a BuildRID value in base 36 and joins
// them with dots. Other values are returned trimmed but otherwise unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	for i, part := range parts {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return rid
		}
		parts[i] = strconv.FormatInt(n, 36)
	}
	return strings.Join(parts, ".")
}

// Sanitize drops control and format runes, keeping tabs and newlines.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, s)
}

// SanitizeLimit applies Sanitize and keeps at most max runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(Sanitize(s))
	if len(r) > max {
		r = r[:max]
	}
	return string(r)
}
