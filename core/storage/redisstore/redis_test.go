package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/evabot/core/crosslink"
	"github.com/m3rciful/evabot/core/telegram/state"
)

// newTestClient connects to EVABOT_TEST_REDIS_URL and returns a unique prefix
// whose keys are removed after the test.
func newTestClient(t *testing.T) (*redis.Client, string) {
	t.Helper()
	url := os.Getenv("EVABOT_TEST_REDIS_URL")
	if url == "" {
		t.Skip("EVABOT_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := Open(ctx, url)
	require.NoError(t, err)
	prefix := "evabot-test:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		_ = scanKeys(ctx, client, prefix+"*", func(keys []string) (bool, error) {
			return true, client.Del(ctx, keys...).Err()
		})
		client.Close()
	})
	return client, prefix
}

func TestOpenRejectsBadURL(t *testing.T) {
	_, err := Open(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestNormalizePrefix(t *testing.T) {
	assert.Equal(t, "evabot:", normalizePrefix("evabot"))
	assert.Equal(t, "evabot:", normalizePrefix(" evabot: "))
	assert.Equal(t, "", normalizePrefix(""))
}

func TestSessions(t *testing.T) {
	client, prefix := newTestClient(t)
	ctx := context.Background()
	store := NewSessions(client, prefix, time.Hour)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := store.Load(ctx, 1)
	require.ErrorIs(t, err, state.ErrSessionNotFound)

	require.NoError(t, store.Save(ctx, &state.Session{
		UserID: 1, State: "inn_input", Data: state.Data{"inn": "7707083893"}, Token: 2, LastActivity: now,
	}))
	require.NoError(t, store.Save(ctx, &state.Session{
		UserID: 2, State: "main_menu", LastActivity: now.Add(-48 * time.Hour),
	}))

	got, err := store.Load(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, state.State("inn_input"), got.State)
	assert.Equal(t, "7707083893", got.Data["inn"])
	assert.True(t, got.LastActivity.Equal(now))

	var ids []int64
	require.NoError(t, store.Range(ctx, func(s *state.Session) bool {
		ids = append(ids, s.UserID)
		return true
	}))
	assert.Equal(t, []int64{1, 2}, ids)

	n, err := store.Sweep(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, store.Delete(ctx, 1))
	_, err = store.Load(ctx, 1)
	assert.ErrorIs(t, err, state.ErrSessionNotFound)
}

func TestEntries(t *testing.T) {
	client, prefix := newTestClient(t)
	ctx := context.Background()
	links := NewEntries(client, prefix, NamespaceCrossLinks, time.Hour)
	lookups := NewEntries(client, prefix, NamespaceCompanyLookups, time.Hour)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, links.Put(ctx, crosslink.Entry{UserID: 3, Key: "risk_table", Payload: []byte(`[]`), WrittenAt: at}))
	require.NoError(t, links.Put(ctx, crosslink.Entry{UserID: 3, Key: "company_requisites", Payload: []byte(`{}`), WrittenAt: at.Add(time.Minute)}))

	e, ok, err := links.Get(ctx, 3, "risk_table")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "[]", string(e.Payload))
	assert.True(t, e.WrittenAt.Equal(at))

	_, ok, err = lookups.Get(ctx, 3, "risk_table")
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := links.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, crosslink.Key("company_requisites"), list[0].Key)

	n, err := links.Sweep(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	deleted, err := links.DeleteIfWrittenAt(ctx, 3, "company_requisites", at)
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = links.DeleteIfWrittenAt(ctx, 3, "company_requisites", at.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, deleted)
	list, err = links.List(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, list)
}
