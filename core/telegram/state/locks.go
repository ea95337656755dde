package state

import "sync"

const lockStripes = 64

// UserLocks serialises work per user id over a fixed set of mutexes, so its
// size does not grow with the number of users. Two users may share a stripe.
type UserLocks struct {
	stripes [lockStripes]sync.Mutex
}

// Lock acquires the stripe of userID and returns its unlock function.
func (l *UserLocks) Lock(userID int64) func() {
	mu := &l.stripes[uint64(userID)%lockStripes]
	mu.Lock()
	return mu.Unlock
}

// KeyedLocks holds one mutex per user id while anyone uses it. Unlike
// UserLocks, two users never wait on each other, so it suits sections that
// call slow external services.
type KeyedLocks struct {
	mu    sync.Mutex
	users map[int64]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// Lock acquires the mutex of userID and returns its unlock function.
func (l *KeyedLocks) Lock(userID int64) func() {
	l.mu.Lock()
	if l.users == nil {
		l.users = make(map[int64]*keyedLock)
	}
	e, ok := l.users[userID]
	if !ok {
		e = &keyedLock{}
		l.users[userID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.users, userID)
		}
		l.mu.Unlock()
	}
}

// Len reports how many users currently hold or wait for a lock.
func (l *KeyedLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}
