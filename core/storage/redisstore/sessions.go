package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/evabot/core/logger"
	"github.com/m3rciful/evabot/core/telegram/state"
)

// Sessions implements state.Store. Each session is one JSON string key; when
// ttl is set Redis also expires idle sessions on its own.
type Sessions struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ state.Store = (*Sessions)(nil)

// NewSessions stores sessions under prefix+"session:<user_id>".
func NewSessions(client *redis.Client, prefix string, ttl time.Duration) *Sessions {
	return &Sessions{client: client, prefix: normalizePrefix(prefix) + "session:", ttl: ttl}
}

func (s *Sessions) key(userID int64) string {
	return s.prefix + strconv.FormatInt(userID, 10)
}

func (s *Sessions) Load(ctx context.Context, userID int64) (*state.Session, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, state.ErrSessionNotFound
		}
		return nil, fail(ctx, "session.load", err)
	}
	var sess state.Session
	if err := sonic.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("redisstore: decode session %d: %w", userID, err)
	}
	return &sess, nil
}

func (s *Sessions) Save(ctx context.Context, sess *state.Session) error {
	if sess == nil {
		return errors.New("redisstore: nil session")
	}
	raw, err := sonic.Marshal(sess)
	if err != nil {
		return fmt.Errorf("redisstore: encode session %d: %w", sess.UserID, err)
	}
	if err := s.client.Set(ctx, s.key(sess.UserID), raw, s.ttl).Err(); err != nil {
		return fail(ctx, "session.save", err)
	}
	return nil
}

func (s *Sessions) Delete(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fail(ctx, "session.delete", err)
	}
	return nil
}

// Sweep deletes sessions idle since before cutoff. Keys already expired by
// Redis are simply not seen.
func (s *Sessions) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	err := s.scan(ctx, func(key string, sess *state.Session) bool {
		if !sess.LastActivity.Before(cutoff) {
			return true
		}
		if err := s.client.Del(ctx, key).Err(); err != nil {
			logger.Warn(ctx, logger.CompRedis, "session.sweep",
				slog.String("status", "fail"),
				slog.Int64("user_id", sess.UserID),
				slog.String("err", err.Error()),
			)
			return true
		}
		removed++
		return true
	})
	if err != nil {
		return removed, fail(ctx, "session.sweep", err)
	}
	return removed, nil
}

// Range visits sessions in ascending user id order.
func (s *Sessions) Range(ctx context.Context, fn func(*state.Session) bool) error {
	var all []*state.Session
	if err := s.scan(ctx, func(_ string, sess *state.Session) bool {
		all = append(all, sess)
		return true
	}); err != nil {
		return fail(ctx, "session.range", err)
	}
	slices.SortFunc(all, func(a, b *state.Session) int {
		switch {
		case a.UserID < b.UserID:
			return -1
		case a.UserID > b.UserID:
			return 1
		}
		return 0
	})
	for _, sess := range all {
		if !fn(sess) {
			return nil
		}
	}
	return nil
}

func (s *Sessions) scan(ctx context.Context, fn func(key string, sess *state.Session) bool) error {
	return scanKeys(ctx, s.client, s.prefix+"*", func(keys []string) (bool, error) {
		vals, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return false, err
		}
		for i, v := range vals {
			str, ok := v.(string)
			if !ok {
				continue
			}
			var sess state.Session
			if err := sonic.UnmarshalString(str, &sess); err != nil {
				logger.Warn(ctx, logger.CompRedis, "session.decode",
					slog.String("status", "skip"),
					slog.String("key", keys[i]),
					slog.String("err", err.Error()),
				)
				continue
			}
			if !fn(keys[i], &sess) {
				return false, nil
			}
		}
		return true, nil
	})
}
