package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedLocksDoNotShareAcrossUsers(t *testing.T) {
	var l KeyedLocks
	unlock := l.Lock(1)

	done := make(chan struct{})
	go func() {
		// 65 lands on the same stripe as 1 in UserLocks.
		l.Lock(1 + lockStripes)()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("user 65 waited on user 1")
	}
	unlock()
	assert.Zero(t, l.Len())
}

func TestKeyedLocksSerializeOneUser(t *testing.T) {
	var l KeyedLocks
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock(7)
			defer unlock()
			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxSeen)
	assert.Zero(t, l.Len(), "entries are dropped after the last unlock")
}
