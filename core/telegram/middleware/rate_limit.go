package middleware

import (
	"context"
	"log/slog"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/evabot/core/config"
	"github.com/m3rciful/evabot/core/logger"
	tghelpers "github.com/m3rciful/evabot/core/telegram/helpers"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	Interval  time.Duration
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
	// Now defaults to time.Now.
	Now func() time.Time
}

// UpdateKind classifies an update the way rate_limit.exclude_updates names it.
func UpdateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return coreconfig.UpdateCallback
	case upd.Message != nil && upd.Message.Document != nil:
		return coreconfig.UpdateDocument
	case upd.Message != nil:
		return coreconfig.UpdateMessage
	}
	return "other"
}

// RateLimiter enforces a minimum interval between updates from the same
// user. Its per-user timestamps are pruned by Sweep.
type RateLimiter struct {
	opts RateLimitOptions

	mu       sync.Mutex
	lastSeen map[int64]time.Time
}

// NewRateLimiter returns nil when the interval is not positive.
func NewRateLimiter(opts RateLimitOptions) *RateLimiter {
	if opts.Interval <= 0 {
		return nil
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &RateLimiter{opts: opts, lastSeen: make(map[int64]time.Time)}
}

// allow records ts for userID unless the previous update is too recent.
func (l *RateLimiter) allow(userID int64, ts time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if last, ok := l.lastSeen[userID]; ok && ts.Sub(last) < l.opts.Interval {
		return false
	}
	l.lastSeen[userID] = ts
	return true
}

// Middleware returns the telebot middleware backed by l.
func (l *RateLimiter) Middleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		userID, ok := tghelpers.SenderID(c)
		if !ok {
			return next(c)
		}
		kind := UpdateKind(c.Update())
		if _, skip := l.opts.Exclude[kind]; skip {
			return next(c)
		}
		if l.allow(userID, l.opts.Now()) {
			return next(c)
		}
		logger.Warn(tghelpers.BuildContext(c), logger.CompTG, "rate_limit",
			slog.String("status", "limited"),
			slog.Int64("user_id", userID),
			slog.String("input_kind", kind),
		)
		if l.opts.OnLimited != nil {
			_ = l.opts.OnLimited(c)
		}
		return nil
	}
}

// Sweep forgets users whose last update is older than the interval.
func (l *RateLimiter) Sweep(_ context.Context, now time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for id, ts := range l.lastSeen {
		if now.Sub(ts) >= l.opts.Interval {
			delete(l.lastSeen, id)
			n++
		}
	}
	return n, nil
}

// RateLimitMiddleware is NewRateLimiter(opts).Middleware, passing updates
// through when limiting is disabled.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	l := NewRateLimiter(opts)
	if l == nil {
		return func(next tele.HandlerFunc) tele.HandlerFunc { return next }
	}
	return l.Middleware
}
