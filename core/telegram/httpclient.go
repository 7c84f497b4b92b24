package telegram

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/nyamedia/nyabot/core/logger"
	"github.com/nyamedia/nyabot/core/metrics"
	"github.com/nyamedia/nyabot/core/telegram/netutil"
)

// clientOptions tunes the Bot API HTTP client. The client timeout must stay
// above the long poll timeout.
type clientOptions struct {
	DialTimeout    time.Duration
	HeaderTimeout  time.Duration
	RequestTimeout time.Duration
	Retries        int
	Backoff        time.Duration
}

var defaultClientOptions = clientOptions{
	DialTimeout:    5 * time.Second,
	HeaderTimeout:  defaultLongPollTimeout + 5*time.Second,
	RequestTimeout: 30 * time.Second,
	Retries:        3,
	Backoff:        2 * time.Second,
}

func newHTTPClient() *http.Client {
	return buildHTTPClient(defaultClientOptions)
}

func buildHTTPClient(opts clientOptions) *http.Client {
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: opts.DialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   opts.DialTimeout,
		ResponseHeaderTimeout: opts.HeaderTimeout,
	}
	return &http.Client{
		Timeout:   opts.RequestTimeout,
		Transport: &apiTransport{base: base, retries: opts.Retries, backoff: opts.Backoff},
	}
}

// apiTransport retries transient transport failures of replayable requests
// and counts every Bot API call by method.
type apiTransport struct {
	base    http.RoundTripper
	retries int
	backoff time.Duration
}

func (t *apiTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	method := apiMethod(req.URL.Path)
	resp, err := t.roundTrip(req, method)
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "transport_error"
	case resp.StatusCode >= 400:
		outcome = "http_" + strconv.Itoa(resp.StatusCode)
	}
	metrics.TelegramAPICalls.WithLabelValues(method, outcome).Inc()
	return resp, err
}

func (t *apiTransport) roundTrip(req *http.Request, method string) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		cur := req
		if attempt > 0 {
			cur = req.Clone(req.Context())
			if req.Body != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				cur.Body = body
			}
		}

		resp, err := t.base.RoundTrip(cur)
		if err == nil {
			return resp, nil
		}
		replayable := req.Body == nil || req.GetBody != nil
		if attempt >= t.retries || !replayable || !netutil.ShouldRetry(err) {
			return nil, err
		}

		delay := t.backoff * time.Duration(attempt+1)
		logger.Debug(req.Context(), "tg", "api.retry",
			slog.String("op", method),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", delay),
			logger.Err(err),
		)
		if err := sleepCtx(req.Context(), delay); err != nil {
			return nil, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// apiMethod extracts the Bot API method from /bot<token>/<method>; file
// downloads are reported as "file" so the token never becomes a label.
func apiMethod(p string) string {
	if strings.HasPrefix(p, "/file/") {
		return "file"
	}
	if m := path.Base(p); m != "" && m != "/" && m != "." && !strings.HasPrefix(m, "bot") {
		return m
	}
	return "unknown"
}
