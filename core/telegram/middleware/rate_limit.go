package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nyamedia/nyabot/core/logger"
	tghelpers "github.com/nyamedia/nyabot/core/telegram/helpers"
	"golang.org/x/time/rate"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	// Interval is the minimum spacing between updates of one user.
	Interval time.Duration
	// Burst allows short bursts above the steady rate; values <= 0 mean 1.
	Burst     int
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware returns a middleware that keeps one token bucket per
// user. Idle buckets are evicted opportunistically.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	const idleTTL = 10 * time.Minute
	var (
		mu       sync.Mutex
		visitors = make(map[int64]*visitor)
		lookups  int
	)
	limiterFor := func(userID int64, now time.Time) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		lookups++
		if lookups >= 1000 {
			for id, v := range visitors {
				if now.Sub(v.lastSeen) >= idleTTL {
					delete(visitors, id)
				}
			}
			lookups = 0
		}
		v, ok := visitors[userID]
		if !ok {
			v = &visitor{limiter: rate.NewLimiter(rate.Every(opts.Interval), burst)}
			visitors[userID] = v
		}
		v.lastSeen = now
		return v.limiter
	}

	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			if _, skip := opts.Exclude[UpdateKind(c.Update())]; skip {
				return next(c)
			}
			if limiterFor(user.ID, time.Now()).Allow() {
				return next(c)
			}
			logger.Warn(tghelpers.BuildContext(c), "tg", "rate_limit",
				slog.String("status", "rate_limited"),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
