package logger

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

// lineHandler renders every record as one flat line. Attributes bound with
// WithAttrs are resolved once and copied into each record.
type lineHandler struct {
	cfg    handlerConfig
	enc    encoder
	base   record
	prefix string
}

func newLineHandler(cfg handlerConfig) *lineHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if len(cfg.keyOrder) == 0 {
		cfg.keyOrder = slices.Clone(defaultKeyOrder)
	}
	var enc encoder = kvEncoder{}
	if cfg.format == formatJSON {
		enc = jsonEncoder{}
	}
	return &lineHandler{cfg: cfg, enc: enc}
}

func (h *lineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *lineHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errors.New("logger: writer not initialized")
	}
	rec := make(record, len(h.base)+r.NumAttrs()+8)
	maps.Copy(rec, h.base)
	r.Attrs(func(a slog.Attr) bool {
		rec.add(h.prefix, a)
		return true
	})
	rec.fillFromContext(ctx)
	rec.finish(r, h.cfg.format == formatJSON)

	line, err := h.enc.encode(rec, h.cfg.keyOrder)
	if err != nil {
		return err
	}
	return h.cfg.writer.Write(append(line, '\n'))
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.base = maps.Clone(h.base)
	if clone.base == nil {
		clone.base = make(record, len(attrs))
	}
	for _, a := range attrs {
		clone.base.add(h.prefix, a)
	}
	return &clone
}

func (h *lineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

// record is one log line under construction.
type record map[string]any

func (rec record) add(prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	key := joinKey(prefix, a.Key)
	if a.Value.Kind() == slog.KindGroup {
		for _, child := range a.Value.Group() {
			rec.add(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if k, v, ok := plainValue(key, a.Value); ok {
		rec[k] = v
	}
}

// fillFromContext adds update metadata without overriding explicit attrs.
func (rec record) fillFromContext(ctx context.Context) {
	if ctx == nil {
		return
	}
	meta := updateMetaFrom(ctx)
	fillNonZero(rec, "rid", RIDFrom(ctx))
	fillNonZero(rec, "update_id", meta.updateID)
	fillNonZero(rec, "user_id", meta.userID)
	fillNonZero(rec, "chat_id", meta.chatID)
	fillNonZero(rec, "handler", HandlerFrom(ctx))
}

func (rec record) finish(r slog.Record, verbose bool) {
	ts := r.Time.UTC()
	rec["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	rec["level"] = normalizeLevel(r.Level.String())
	if verbose {
		rec["ts_unix_nano"] = ts.UnixNano()
	}
	if rid := rec.str("rid"); rid != "" {
		if short := CompactRID(rid); short != rid {
			if verbose {
				fillNonZero(rec, "rid_full", rid)
			}
			rec["rid"] = short
		}
	}
	if rec.str("event") == "" {
		rec["event"] = cmp.Or(r.Message, "unknown")
	}
	if rec.str("component") == "" {
		rec["component"] = "app"
	}
	for _, key := range []string{"status", "outcome"} {
		if v := rec.str(key); v != "" {
			rec[key], _ = normalizeStatus(v)
		}
	}
	for k, v := range rec {
		if v == nil || v == "" {
			delete(rec, k)
		}
	}
}

func (rec record) str(key string) string {
	switch v := rec[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// keys lists the configured keys first, then the rest alphabetically.
func (rec record) keys(order []string) []string {
	out := make([]string, 0, len(rec))
	listed := make(map[string]bool, len(order))
	for _, k := range order {
		if listed[k] {
			continue
		}
		listed[k] = true
		if _, ok := rec[k]; ok {
			out = append(out, k)
		}
	}
	head := len(out)
	for k := range rec {
		if !listed[k] {
			out = append(out, k)
		}
	}
	slices.Sort(out[head:])
	return out
}

func fillNonZero[T comparable](rec record, key string, v T) {
	var zero T
	if v == zero {
		return
	}
	if _, ok := rec[key]; !ok {
		rec[key] = v
	}
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	default:
		return prefix + "." + key
	}
}

func plainValue(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String()), true
	case slog.KindDuration:
		return msKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, v.Uint64(), true
	case slog.KindAny:
		switch x := v.Any().(type) {
		case nil:
			return key, nil, false
		case error:
			return key, x.Error(), true
		case fmt.Stringer:
			return key, x.String(), true
		default:
			return key, fmt.Sprint(x), true
		}
	default:
		return key, v.Any(), true
	}
}

// msKey puts the unit into the name of duration attributes.
func msKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_ms"):
		return key
	default:
		return key + "_ms"
	}
}

type encoder interface {
	encode(rec record, order []string) ([]byte, error)
}

type jsonEncoder struct{}

func (jsonEncoder) encode(rec record, order []string) ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range rec.keys(order) {
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(rec[k])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", k, err)
		}
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, name...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	return append(buf, '}'), nil
}

type kvEncoder struct{}

func (kvEncoder) encode(rec record, order []string) ([]byte, error) {
	var buf []byte
	for i, k := range rec.keys(order) {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = append(buf, k...)
		buf = append(buf, '=')
		s := fmt.Sprint(rec[k])
		if strings.IndexFunc(s, needsQuote) >= 0 {
			buf = strconv.AppendQuote(buf, s)
		} else {
			buf = append(buf, s...)
		}
	}
	return buf, nil
}

func needsQuote(r rune) bool {
	return r <= ' ' || r == '=' || r == '"'
}
