package telegram

import (
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/evabot/core/config"
	"github.com/m3rciful/evabot/core/telegram/middleware"
)

// NewRateLimiter builds the per-user limiter described by cfg.RateLimit, or
// nil when limiting is off.
func NewRateLimiter(cfg *coreconfig.Config, onLimited tele.HandlerFunc) *middleware.RateLimiter {
	if cfg == nil {
		return nil
	}
	exclude := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
	for _, kind := range cfg.RateLimit.ExcludeUpdates {
		exclude[kind] = struct{}{}
	}
	return middleware.NewRateLimiter(middleware.RateLimitOptions{
		Interval:  time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond,
		Exclude:   exclude,
		OnLimited: onLimited,
	})
}

// DefaultMiddlewares builds the shared chain: panics are recovered first,
// every update gets its rid before the limiter can drop it, and outgoing
// messages are counted for handler summaries.
func DefaultMiddlewares(limiter *middleware.RateLimiter) []Middleware {
	mws := []Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
		{Name: "logger", Use: middleware.LoggerMiddleware},
	}
	if limiter != nil {
		mws = append(mws, Middleware{Name: "rate_limit", Use: limiter.Middleware})
	}
	return append(mws, Middleware{Name: "metrics", Use: middleware.MessageMetricsMiddleware})
}
