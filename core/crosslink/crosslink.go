// Package crosslink lets one feature's output prefill another feature's input
// for the same user within a freshness window.
package crosslink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/bytedance/sonic"

	"github.com/m3rciful/evabot/core/logger"
)

// DefaultTTL is how long an entry stays fresh unless configured otherwise.
const DefaultTTL = time.Hour

// Key names the semantic kind of a payload, e.g. "company_requisites".
type Key string

// Entry is one stored payload. Payload holds the encoded value.
type Entry struct {
	UserID    int64
	Key       Key
	Payload   []byte
	WrittenAt time.Time
}

// Backend stores entries keyed by (UserID, Key). Put overwrites.
// Get returns found=false for a missing entry.
type Backend interface {
	Put(ctx context.Context, e Entry) error
	Get(ctx context.Context, userID int64, key Key) (Entry, bool, error)
	// DeleteIfWrittenAt removes the entry only while it is still the one
	// written at writtenAt, so a concurrent Put survives.
	DeleteIfWrittenAt(ctx context.Context, userID int64, key Key, writtenAt time.Time) (bool, error)
	List(ctx context.Context, userID int64) ([]Entry, error)
	// Sweep removes entries written at or before cutoff.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

// ErrStoreUnavailable wraps backend failures.
var ErrStoreUnavailable = errors.New("crosslink: store unavailable")

// Options configures a Cache.
type Options struct {
	TTL time.Duration
	Now func() time.Time
}

// Cache applies the freshness window on top of a Backend.
type Cache struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
}

// New builds a Cache over b. A nil b means an in-memory backend.
func New(b Backend, opts Options) *Cache {
	if b == nil {
		b = NewMemoryBackend()
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{backend: b, ttl: opts.TTL, now: opts.Now}
}

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Put encodes payload and overwrites the (userID, key) entry.
func (c *Cache) Put(ctx context.Context, userID int64, key Key, payload any) error {
	raw, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("crosslink: encode %s: %w", key, err)
	}
	e := Entry{UserID: userID, Key: key, Payload: raw, WrittenAt: c.now()}
	if err := c.backend.Put(ctx, e); err != nil {
		logger.Error(ctx, logger.CompCrossLink, "put",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("feature_key", string(key)),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	logger.Debug(ctx, logger.CompCrossLink, "put",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
		slog.String("feature_key", string(key)),
		slog.Int("bytes", len(raw)),
	)
	return nil
}

// Get decodes the entry into dest and reports whether a fresh one existed.
// Stale entries read as absent and are deleted on the spot unless they were
// overwritten in the meantime.
func (c *Cache) Get(ctx context.Context, userID int64, key Key, dest any) (bool, error) {
	e, ok, err := c.backend.Get(ctx, userID, key)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if !ok {
		c.logLookup(ctx, userID, key, "miss")
		return false, nil
	}
	if c.stale(e, c.now()) {
		if _, err := c.backend.DeleteIfWrittenAt(ctx, userID, key, e.WrittenAt); err != nil {
			logger.Warn(ctx, logger.CompCrossLink, "evict",
				slog.String("status", "fail"),
				slog.String("feature_key", string(key)),
				slog.String("err", err.Error()),
			)
		}
		c.logLookup(ctx, userID, key, "stale")
		return false, nil
	}
	if dest != nil {
		if err := sonic.Unmarshal(e.Payload, dest); err != nil {
			return false, fmt.Errorf("crosslink: decode %s: %w", key, err)
		}
	}
	c.logLookup(ctx, userID, key, "hit")
	return true, nil
}

// Fresh lists the user's keys that are still within the window, sorted.
func (c *Cache) Fresh(ctx context.Context, userID int64) ([]Key, error) {
	entries, err := c.backend.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	now := c.now()
	var keys []Key
	for _, e := range entries {
		if !c.stale(e, now) {
			keys = append(keys, e.Key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

// Sweep drops every entry that is no longer fresh at now.
func (c *Cache) Sweep(ctx context.Context, now time.Time) (int, error) {
	n, err := c.backend.Sweep(ctx, now.Add(-c.ttl))
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return n, nil
}

// stale treats an entry as expired once its age reaches the TTL.
func (c *Cache) stale(e Entry, now time.Time) bool {
	return now.Sub(e.WrittenAt) >= c.ttl
}

func (c *Cache) logLookup(ctx context.Context, userID int64, key Key, result string) {
	if !logger.ShouldSampleDebug() {
		return
	}
	logger.Debug(ctx, logger.CompCrossLink, "get",
		slog.Int64("user_id", userID),
		slog.String("feature_key", string(key)),
		slog.String("cache", result),
	)
}
