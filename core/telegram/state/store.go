package state

import (
	"context"
	"time"
)

// Store persists sessions. Implementations must be safe for concurrent use;
// Load returns ErrSessionNotFound for unknown users and must hand out copies
// the caller may mutate freely.
type Store interface {
	Load(ctx context.Context, userID int64) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, userID int64) error
	// Sweep removes sessions whose LastActivity is before cutoff.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
	// Range calls fn for every stored session until fn returns false.
	Range(ctx context.Context, fn func(*Session) bool) error
}
