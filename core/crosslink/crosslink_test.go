package crosslink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type company struct {
	INN  string `json:"inn"`
	Name string `json:"name"`
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newCache() (*Cache, *MemoryBackend, *clock) {
	clk := &clock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	b := NewMemoryBackend()
	return New(b, Options{TTL: time.Hour, Now: clk.Now}), b, clk
}

func TestPutGetRoundTripUntilTTL(t *testing.T) {
	c, b, clk := newCache()
	ctx := context.Background()
	want := company{INN: "7700000000", Name: "ООО Ромашка"}
	require.NoError(t, c.Put(ctx, 1, "company_requisites", want))

	var got company
	ok, err := c.Get(ctx, 1, "company_requisites", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	clk.Advance(time.Hour + time.Second)
	ok, err = c.Get(ctx, 1, "company_requisites", &got)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, b.Len(), "stale entry is evicted on read")

	ok, err = c.Get(ctx, 1, "company_requisites", &got)
	require.NoError(t, err)
	assert.False(t, ok, "no resurrection")
}

func TestTTLBoundaryIsExclusive(t *testing.T) {
	c, _, clk := newCache()
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, 1, "risk_table", []string{"a"}))

	clk.Advance(time.Hour - time.Nanosecond)
	ok, err := c.Get(ctx, 1, "risk_table", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	clk.Advance(time.Nanosecond)
	ok, err = c.Get(ctx, 1, "risk_table", nil)
	require.NoError(t, err)
	assert.False(t, ok, "age equal to TTL is stale")
}

func TestKeysAndUsersAreIsolated(t *testing.T) {
	c, _, _ := newCache()
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, 1, "a", "X"))

	ok, err := c.Get(ctx, 1, "b", nil)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.Get(ctx, 2, "a", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutOverwritesAndRestampsTime(t *testing.T) {
	c, _, clk := newCache()
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, 1, "a", "old"))
	clk.Advance(50 * time.Minute)
	require.NoError(t, c.Put(ctx, 1, "a", "new"))
	clk.Advance(50 * time.Minute)

	var got string
	ok, err := c.Get(ctx, 1, "a", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", got)
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	c, b, clk := newCache()
	ctx := context.Background()
	start := clk.Now()
	for i, key := range []Key{"k0", "k1", "k2", "k3"} {
		clk.t = start.Add(time.Duration(i) * 20 * time.Minute)
		require.NoError(t, c.Put(ctx, int64(i), key, i))
	}
	// entries are 90, 70, 50 and 30 minutes old
	n, err := c.Sweep(ctx, start.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, b.Len())

	clk.t = start.Add(90 * time.Minute)
	for i, key := range []Key{"k0", "k1", "k2", "k3"} {
		ok, err := c.Get(ctx, int64(i), key, nil)
		require.NoError(t, err)
		assert.Equal(t, i >= 2, ok, "key %s", key)
	}
}

func TestFreshListsLiveKeys(t *testing.T) {
	c, _, clk := newCache()
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, 1, "risk_table", 1))
	clk.Advance(30 * time.Minute)
	require.NoError(t, c.Put(ctx, 1, "company_requisites", 2))
	require.NoError(t, c.Put(ctx, 2, "other", 3))
	clk.Advance(40 * time.Minute)

	keys, err := c.Fresh(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []Key{"company_requisites"}, keys)
}

type brokenBackend struct{ *MemoryBackend }

func (brokenBackend) Get(context.Context, int64, Key) (Entry, bool, error) {
	return Entry{}, false, errors.New("dial tcp: refused")
}

func (brokenBackend) Put(context.Context, Entry) error { return errors.New("dial tcp: refused") }

func TestBackendFailuresAreWrapped(t *testing.T) {
	c := New(brokenBackend{NewMemoryBackend()}, Options{})
	ctx := context.Background()
	require.ErrorIs(t, c.Put(ctx, 1, "a", 1), ErrStoreUnavailable)
	_, err := c.Get(ctx, 1, "a", nil)
	require.ErrorIs(t, err, ErrStoreUnavailable)
}

// racingBackend runs afterGet once, between a read and whatever the cache
// does with it.
type racingBackend struct {
	*MemoryBackend
	afterGet func()
}

func (r *racingBackend) Get(ctx context.Context, userID int64, key Key) (Entry, bool, error) {
	e, ok, err := r.MemoryBackend.Get(ctx, userID, key)
	if f := r.afterGet; f != nil {
		r.afterGet = nil
		f()
	}
	return e, ok, err
}

func TestStaleEvictionKeepsConcurrentPut(t *testing.T) {
	clk := &clock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	b := &racingBackend{MemoryBackend: NewMemoryBackend()}
	c := New(b, Options{TTL: time.Hour, Now: clk.Now})
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, 0, "company_lookup", company{INN: "7700000000", Name: "old"}))
	clk.Advance(2 * time.Hour)
	b.afterGet = func() {
		require.NoError(t, c.Put(ctx, 0, "company_lookup", company{INN: "7700000000", Name: "ООО Ромашка"}))
	}

	ok, err := c.Get(ctx, 0, "company_lookup", nil)
	require.NoError(t, err)
	assert.False(t, ok, "the read itself saw the stale entry")

	var got company
	ok, err = c.Get(ctx, 0, "company_lookup", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ООО Ромашка", got.Name)
}

func TestMemoryDeleteIfWrittenAt(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, b.Put(ctx, Entry{UserID: 1, Key: "a", WrittenAt: at}))

	deleted, err := b.DeleteIfWrittenAt(ctx, 1, "a", at.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, 1, b.Len())

	deleted, err = b.DeleteIfWrittenAt(ctx, 1, "a", at)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Zero(t, b.Len())
}

func TestConcurrentFeaturesDoNotCollide(t *testing.T) {
	c, _, _ := newCache()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = c.Put(ctx, 1, "company_requisites", company{INN: "7700000000"})
		}(i)
		go func(i int) {
			defer wg.Done()
			_ = c.Put(ctx, 1, "risk_table", []string{"clause"})
		}(i)
	}
	wg.Wait()

	var co company
	ok, err := c.Get(ctx, 1, "company_requisites", &co)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "7700000000", co.INN)

	var risks []string
	ok, err = c.Get(ctx, 1, "risk_table", &risks)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"clause"}, risks)
}
