package memory

import (
	"context"
	"sync"
	"time"

	"voicecast/internal/core/domain"
	"voicecast/internal/core/ports"
)

// SessionRegistry is the in-process session store. Create enforces the
// one-session-per-room invariant under the write lock, so two racing
// starts for the same room cannot both succeed.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[domain.RoomID]*domain.BroadcastSession

	obsMu     sync.Mutex
	observers map[int]ports.SessionObserver
	nextObsID int
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions:  make(map[domain.RoomID]*domain.BroadcastSession),
		observers: make(map[int]ports.SessionObserver),
	}
}

func (r *SessionRegistry) Create(ctx context.Context, session *domain.BroadcastSession) error {
	r.mu.Lock()
	if _, exists := r.sessions[session.Room]; exists {
		r.mu.Unlock()
		return domain.ErrSessionExists
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}
	stored := *session
	r.sessions[session.Room] = &stored
	r.mu.Unlock()

	r.notify(ports.SessionEvent{Type: ports.SessionCreated, Session: stored})
	return nil
}

func (r *SessionRegistry) Get(ctx context.Context, room domain.RoomID) (*domain.BroadcastSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[room]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *SessionRegistry) Delete(ctx context.Context, room domain.RoomID) error {
	r.mu.Lock()
	session, exists := r.sessions[room]
	if !exists {
		r.mu.Unlock()
		return domain.ErrSessionNotFound
	}
	destroyed := *session
	delete(r.sessions, room)
	r.mu.Unlock()

	r.notify(ports.SessionEvent{Type: ports.SessionDestroyed, Session: destroyed})
	return nil
}

func (r *SessionRegistry) List(ctx context.Context) ([]*domain.BroadcastSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*domain.BroadcastSession, 0, len(r.sessions))
	for _, session := range r.sessions {
		copied := *session
		sessions = append(sessions, &copied)
	}
	return sessions, nil
}

func (r *SessionRegistry) Subscribe(observer ports.SessionObserver) func() {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()

	id := r.nextObsID
	r.nextObsID++
	r.observers[id] = observer

	return func() {
		r.obsMu.Lock()
		defer r.obsMu.Unlock()
		delete(r.observers, id)
	}
}

// notify runs observers outside the registry lock so an observer can
// read back through the registry without deadlocking.
func (r *SessionRegistry) notify(ev ports.SessionEvent) {
	r.obsMu.Lock()
	observers := make([]ports.SessionObserver, 0, len(r.observers))
	for _, obs := range r.observers {
		observers = append(observers, obs)
	}
	r.obsMu.Unlock()

	for _, obs := range observers {
		obs(ev)
	}
}
