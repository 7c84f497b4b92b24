package telegram

import (
	"strings"
	"time"

	coreconfig "github.com/nyamedia/nyabot/core/config"
	"github.com/nyamedia/nyabot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// DefaultMiddlewares builds the shared global middleware chain. Receipt
// logging is attached per route by the routers.
func DefaultMiddlewares(cfg *coreconfig.Config, onLimited func(tele.Context) error) []Middleware {
	mws := []Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
		{Name: "metrics", Use: middleware.MetricsMiddleware},
	}
	if cfg == nil {
		return mws
	}
	interval := time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond
	if interval <= 0 {
		return mws
	}
	ex := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
	for _, t := range cfg.RateLimit.ExcludeUpdates {
		ex[strings.ToLower(t)] = struct{}{}
	}
	return append(mws, Middleware{
		Name: "rate_limit",
		Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
			Interval:  interval,
			Burst:     3,
			Exclude:   ex,
			OnLimited: onLimited,
		}),
	})
}
