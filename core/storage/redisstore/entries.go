package redisstore

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/evabot/core/crosslink"
)

// Namespaces for cross-link style data.
const (
	NamespaceCrossLinks     = "crosslink"
	NamespaceCompanyLookups = "lookup"
)

const (
	fieldPayload   = "payload"
	fieldWrittenAt = "written_at"
)

// deleteWrittenAt deletes KEYS[1] when its written_at equals ARGV[1].
var deleteWrittenAt = redis.NewScript(`
if redis.call("HGET", KEYS[1], "written_at") == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// deleteWrittenBefore deletes KEYS[1] when its written_at is at or before
// ARGV[1] or cannot be parsed.
var deleteWrittenBefore = redis.NewScript(`
local at = redis.call("HGET", KEYS[1], "written_at")
if not at then
	return 0
end
local n = tonumber(at)
if n == nil or n <= tonumber(ARGV[1]) then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Entries implements crosslink.Backend with one hash per (user, key).
// The hash expires on its own after ttl; Sweep handles the rest.
type Entries struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ crosslink.Backend = (*Entries)(nil)

// NewEntries stores entries under prefix+namespace+":<user_id>:<key>".
func NewEntries(client *redis.Client, prefix, namespace string, ttl time.Duration) *Entries {
	return &Entries{client: client, prefix: normalizePrefix(prefix) + namespace + ":", ttl: ttl}
}

func (s *Entries) userPrefix(userID int64) string {
	return s.prefix + strconv.FormatInt(userID, 10) + ":"
}

func (s *Entries) key(userID int64, k crosslink.Key) string {
	return s.userPrefix(userID) + string(k)
}

func (s *Entries) Put(ctx context.Context, e crosslink.Entry) error {
	key := s.key(e.UserID, e.Key)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			fieldPayload, string(e.Payload),
			fieldWrittenAt, strconv.FormatInt(e.WrittenAt.UnixNano(), 10),
		)
		if s.ttl > 0 {
			p.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fail(ctx, "entry.put", err)
	}
	return nil
}

func (s *Entries) Get(ctx context.Context, userID int64, k crosslink.Key) (crosslink.Entry, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.key(userID, k)).Result()
	if err != nil {
		return crosslink.Entry{}, false, fail(ctx, "entry.get", err)
	}
	if len(fields) == 0 {
		return crosslink.Entry{}, false, nil
	}
	e, err := decodeEntry(userID, k, fields)
	if err != nil {
		return crosslink.Entry{}, false, err
	}
	return e, true, nil
}

func (s *Entries) DeleteIfWrittenAt(ctx context.Context, userID int64, k crosslink.Key, writtenAt time.Time) (bool, error) {
	n, err := deleteWrittenAt.Run(ctx, s.client,
		[]string{s.key(userID, k)}, strconv.FormatInt(writtenAt.UnixNano(), 10),
	).Int()
	if err != nil {
		return false, fail(ctx, "entry.delete", err)
	}
	return n > 0, nil
}

func (s *Entries) List(ctx context.Context, userID int64) ([]crosslink.Entry, error) {
	prefix := s.userPrefix(userID)
	var out []crosslink.Entry
	err := scanKeys(ctx, s.client, prefix+"*", func(keys []string) (bool, error) {
		for _, key := range keys {
			e, ok, err := s.Get(ctx, userID, crosslink.Key(strings.TrimPrefix(key, prefix)))
			if err != nil {
				return false, err
			}
			if ok {
				out = append(out, e)
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, fail(ctx, "entry.list", err)
	}
	slices.SortFunc(out, func(a, b crosslink.Entry) int { return strings.Compare(string(a.Key), string(b.Key)) })
	return out, nil
}

// Sweep deletes entries written at or before cutoff.
func (s *Entries) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	limit := strconv.FormatInt(cutoff.UnixNano(), 10)
	err := scanKeys(ctx, s.client, s.prefix+"*", func(keys []string) (bool, error) {
		for _, key := range keys {
			n, err := deleteWrittenBefore.Run(ctx, s.client, []string{key}, limit).Int()
			if err != nil {
				return false, err
			}
			removed += n
		}
		return true, nil
	})
	if err != nil {
		return removed, fail(ctx, "entry.sweep", err)
	}
	return removed, nil
}

func decodeEntry(userID int64, k crosslink.Key, fields map[string]string) (crosslink.Entry, error) {
	at, err := strconv.ParseInt(fields[fieldWrittenAt], 10, 64)
	if err != nil {
		return crosslink.Entry{}, fmt.Errorf("redisstore: entry %s: bad written_at: %w", k, err)
	}
	return crosslink.Entry{
		UserID:    userID,
		Key:       k,
		Payload:   []byte(fields[fieldPayload]),
		WrittenAt: time.Unix(0, at),
	}, nil
}
