package sender

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/nyamedia/nyabot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// Retryable reports whether a failed send is worth another attempt:
// transient network failures, flood control and 5xx responses.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if netutil.ShouldRetry(err) {
		return true
	}
	code := statusOf(err)
	return code == http.StatusTooManyRequests || code >= 500
}

// backoffFor honours flood control's retry_after, else grows linearly.
func backoffFor(err error, base time.Duration, attempt int) time.Duration {
	var flood tele.FloodError
	if errors.As(err, &flood) && flood.RetryAfter > 0 {
		return time.Duration(flood.RetryAfter) * time.Second
	}
	return base * time.Duration(attempt)
}

// redact hides bot tokens that transport errors embed in request URLs.
func redact(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}

func statusOf(err error) int {
	var apiErr *tele.Error
	var flood tele.FloodError
	var group tele.GroupError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Code
	case errors.As(err, &flood):
		return http.StatusTooManyRequests
	case errors.As(err, &group):
		return http.StatusBadRequest
	default:
		return 0
	}
}
