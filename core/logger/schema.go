package logger

import "strings"

var levelNames = map[string]string{
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
}

// status and outcome share one vocabulary; anything else is kept verbatim.
var knownStatus = map[string]struct{}{
	"ok":           {},
	"fail":         {},
	"skip":         {},
	"retry":        {},
	"rate_limited": {},
	"cancelled":    {},
	"duplicate":    {},
	"rejected":     {},
}

func normalizeLevel(level string) string {
	if level == "" {
		return "INFO"
	}
	if mapped, ok := levelNames[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

func normalizeStatus(status string) (string, bool) {
	status = strings.ToLower(strings.TrimSpace(status))
	_, ok := knownStatus[status]
	return status, ok
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"chat_type",
	"handler",
	"intent",
	"state",
	"next_state",
	"cb_key",
	"outcome",
	"duration_ms",
	"request_id",
	"source",
	"media_id",
	"status_from",
	"status_to",
	"series_id",
	"audience",
	"method",
	"route",
	"http_code",
	"mode",
	"listen",
	"driver",
	"db",
	"host",
	"port",
	"err",
	"err_tag",
	"ref",
	"retryable",
	"attempts",
	"backoff_ms",
	"count",
}
