package crosslink

import (
	"context"
	"sync"
	"time"
)

type entryKey struct {
	userID int64
	key    Key
}

// MemoryBackend keeps entries in a process-local map.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[entryKey]Entry
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[entryKey]Entry)}
}

// Put stores a copy of e.
func (m *MemoryBackend) Put(_ context.Context, e Entry) error {
	e.Payload = append([]byte(nil), e.Payload...)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entryKey{e.UserID, e.Key}] = e
	return nil
}

// Get returns the stored entry if present.
func (m *MemoryBackend) Get(_ context.Context, userID int64, key Key) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[entryKey{userID, key}]
	return e, ok, nil
}

// DeleteIfWrittenAt removes the entry if it was written at writtenAt.
func (m *MemoryBackend) DeleteIfWrittenAt(_ context.Context, userID int64, key Key, writtenAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := entryKey{userID, key}
	e, ok := m.entries[k]
	if !ok || !e.WrittenAt.Equal(writtenAt) {
		return false, nil
	}
	delete(m.entries, k)
	return true, nil
}

// List returns the user's entries in no particular order.
func (m *MemoryBackend) List(_ context.Context, userID int64) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Entry
	for k, e := range m.entries {
		if k.userID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Sweep removes entries written at or before cutoff.
func (m *MemoryBackend) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.entries {
		if !e.WrittenAt.After(cutoff) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored entries, fresh or not.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
