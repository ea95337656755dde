package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type updateContext struct {
	tele.Context
	upd   tele.Update
	store map[string]any
}

func (c *updateContext) Update() tele.Update { return c.upd }
func (c *updateContext) Chat() *tele.Chat    { return &tele.Chat{ID: c.Sender().ID} }
func (c *updateContext) Get(key string) any  { return c.store[key] }
func (c *updateContext) Set(key string, v any) {
	c.store[key] = v
}

func (c *updateContext) Sender() *tele.User {
	switch {
	case c.upd.Callback != nil:
		return c.upd.Callback.Sender
	case c.upd.Message != nil:
		return c.upd.Message.Sender
	}
	return nil
}

func textUpdate(userID int64) *updateContext {
	return &updateContext{
		upd:   tele.Update{ID: 1, Message: &tele.Message{Sender: &tele.User{ID: userID}, Text: "hi"}},
		store: map[string]any{},
	}
}

func TestRateLimiterDropsBurstsPerUser(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limited := 0
	l := NewRateLimiter(RateLimitOptions{
		Interval:  time.Second,
		Exclude:   map[string]struct{}{"callback": {}},
		OnLimited: func(tele.Context) error { limited++; return nil },
		Now:       func() time.Time { return now },
	})
	require.NotNil(t, l)

	handled := 0
	h := l.Middleware(func(tele.Context) error { handled++; return nil })

	require.NoError(t, h(textUpdate(1)))
	require.NoError(t, h(textUpdate(1)))
	require.NoError(t, h(textUpdate(2)))
	assert.Equal(t, 2, handled)
	assert.Equal(t, 1, limited)

	cb := &updateContext{
		upd:   tele.Update{Callback: &tele.Callback{Sender: &tele.User{ID: 1}}},
		store: map[string]any{},
	}
	require.NoError(t, h(cb))
	assert.Equal(t, 3, handled, "callbacks are excluded")

	now = now.Add(time.Second)
	require.NoError(t, h(textUpdate(1)))
	assert.Equal(t, 4, handled)
}

func TestRateLimiterSweep(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	now := start
	l := NewRateLimiter(RateLimitOptions{Interval: time.Minute, Now: func() time.Time { return now }})
	assert.True(t, l.allow(1, start))
	assert.True(t, l.allow(2, start.Add(50*time.Second)))

	n, err := l.Sweep(context.Background(), start.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, l.allow(2, start.Add(55*time.Second)))
	assert.True(t, l.allow(1, start.Add(61*time.Second)))
}

func TestRateLimiterDisabled(t *testing.T) {
	assert.Nil(t, NewRateLimiter(RateLimitOptions{}))
	called := false
	h := RateLimitMiddleware(RateLimitOptions{})(func(tele.Context) error { called = true; return nil })
	require.NoError(t, h(textUpdate(1)))
	assert.True(t, called)
}
