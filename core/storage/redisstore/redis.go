// Package redisstore keeps conversation sessions and cross-link entries in Redis.
// Keys live under a shared prefix so several bots can use one database.
package redisstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/evabot/core/logger"
)

const scanBatch = 200

// Open parses url, connects and pings the server.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redisstore: parse url: %w", err)
	}
	client := redis.NewClient(opts)

	start := time.Now()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		logger.Error(ctx, logger.CompRedis, "connect",
			slog.String("status", "fail"),
			slog.String("addr", opts.Addr),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("redisstore: ping: %w", err)
	}
	logger.Info(ctx, logger.CompRedis, "connect",
		slog.String("status", "ok"),
		slog.String("addr", opts.Addr),
		slog.Int("db", opts.DB),
		slog.Duration("duration", logger.Took(start)),
	)
	return client, nil
}

// scanKeys walks every key matching pattern and hands them to fn in batches.
func scanKeys(ctx context.Context, client *redis.Client, pattern string, fn func(keys []string) (bool, error)) error {
	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			more, err := fn(keys)
			if err != nil || !more {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func normalizePrefix(p string) string {
	p = strings.TrimSpace(p)
	if p != "" && !strings.HasSuffix(p, ":") {
		p += ":"
	}
	return p
}

func fail(ctx context.Context, event string, err error) error {
	logger.Error(ctx, logger.CompRedis, event,
		slog.String("status", "fail"),
		slog.String("err", err.Error()),
	)
	return fmt.Errorf("redisstore: %s: %w", event, err)
}
