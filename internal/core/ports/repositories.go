package ports

import (
	"context"

	"voicecast/internal/core/domain"
)

type SessionEventType string

const (
	SessionCreated   SessionEventType = "session.created"
	SessionDestroyed SessionEventType = "session.destroyed"
)

// SessionEvent notifies observers of a registry change.
type SessionEvent struct {
	Type    SessionEventType
	Session domain.BroadcastSession
}

// SessionObserver receives registry change notifications. Observers
// must not block; long work belongs on their own goroutines.
type SessionObserver func(SessionEvent)

// SessionRegistry holds the live broadcast sessions keyed by room.
// Create enforces the one-session-per-room invariant and returns
// domain.ErrSessionExists on violation.
type SessionRegistry interface {
	Create(ctx context.Context, session *domain.BroadcastSession) error
	Get(ctx context.Context, room domain.RoomID) (*domain.BroadcastSession, error)
	Delete(ctx context.Context, room domain.RoomID) error
	List(ctx context.Context) ([]*domain.BroadcastSession, error)
	// Subscribe registers an observer and returns its cancel func.
	Subscribe(observer SessionObserver) func()
}
