package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"voicecast/internal/core/domain"
	"voicecast/internal/core/ports"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	sessionKeyPrefix = "voicecast:session:"
	sessionIndexKey  = "voicecast:sessions"
	eventsChannel    = "voicecast:session-events"

	// safety net against sessions orphaned by a crashed fanout node
	sessionTTL = 12 * time.Hour
)

type sessionRecord struct {
	Room            domain.RoomID `json:"room"`
	Broadcaster     domain.UserID `json:"broadcaster"`
	BroadcasterName string        `json:"broadcaster_name"`
	StartedAt       time.Time     `json:"started_at"`
}

type sessionEventMessage struct {
	Type    ports.SessionEventType `json:"type"`
	Session sessionRecord          `json:"session"`
}

// SessionRegistry is the Redis-backed session store, for fanout
// deployments of more than one node. SET NX makes session creation the
// cluster-wide arbiter of the one-session-per-room invariant, and
// change notifications ride Redis pub/sub.
type SessionRegistry struct {
	client *redis.Client
	logger *zap.SugaredLogger

	obsMu     sync.Mutex
	observers map[int]ports.SessionObserver
	nextObsID int
	pubsub    *redis.PubSub
}

func NewSessionRegistry(client *redis.Client, logger *zap.SugaredLogger) *SessionRegistry {
	return &SessionRegistry{
		client:    client,
		logger:    logger,
		observers: make(map[int]ports.SessionObserver),
	}
}

func (r *SessionRegistry) Create(ctx context.Context, session *domain.BroadcastSession) error {
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}
	record := sessionRecord{
		Room:            session.Room,
		Broadcaster:     session.Broadcaster,
		BroadcasterName: session.BroadcasterName,
		StartedAt:       session.StartedAt,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ok, err := r.client.SetNX(ctx, sessionKeyPrefix+string(session.Room), data, sessionTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	if !ok {
		return domain.ErrSessionExists
	}

	if err := r.client.SAdd(ctx, sessionIndexKey, string(session.Room)).Err(); err != nil {
		r.logger.Warnw("failed to index session", "room", session.Room, "error", err)
	}

	r.publish(ctx, sessionEventMessage{Type: ports.SessionCreated, Session: record})
	return nil
}

func (r *SessionRegistry) Get(ctx context.Context, room domain.RoomID) (*domain.BroadcastSession, error) {
	data, err := r.client.Get(ctx, sessionKeyPrefix+string(room)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var record sessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return record.toDomain(), nil
}

func (r *SessionRegistry) Delete(ctx context.Context, room domain.RoomID) error {
	data, err := r.client.GetDel(ctx, sessionKeyPrefix+string(room)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if err := r.client.SRem(ctx, sessionIndexKey, string(room)).Err(); err != nil {
		r.logger.Warnw("failed to unindex session", "room", room, "error", err)
	}

	var record sessionRecord
	if err := json.Unmarshal(data, &record); err == nil {
		r.publish(ctx, sessionEventMessage{Type: ports.SessionDestroyed, Session: record})
	}
	return nil
}

func (r *SessionRegistry) List(ctx context.Context) ([]*domain.BroadcastSession, error) {
	rooms, err := r.client.SMembers(ctx, sessionIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var sessions []*domain.BroadcastSession
	for _, room := range rooms {
		session, err := r.Get(ctx, domain.RoomID(room))
		if errors.Is(err, domain.ErrSessionNotFound) {
			// expired entry, drop it from the index
			r.client.SRem(ctx, sessionIndexKey, room)
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// Subscribe starts the pub/sub consumer on first use and fans change
// notifications out to local observers.
func (r *SessionRegistry) Subscribe(observer ports.SessionObserver) func() {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()

	if r.pubsub == nil {
		r.pubsub = r.client.Subscribe(context.Background(), eventsChannel)
		go r.consume(r.pubsub.Channel())
	}

	id := r.nextObsID
	r.nextObsID++
	r.observers[id] = observer

	return func() {
		r.obsMu.Lock()
		defer r.obsMu.Unlock()
		delete(r.observers, id)
	}
}

// Close stops the pub/sub consumer.
func (r *SessionRegistry) Close() error {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	if r.pubsub != nil {
		return r.pubsub.Close()
	}
	return nil
}

func (r *SessionRegistry) publish(ctx context.Context, msg sessionEventMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := r.client.Publish(ctx, eventsChannel, data).Err(); err != nil {
		r.logger.Warnw("failed to publish session event", "type", msg.Type, "error", err)
	}
}

func (r *SessionRegistry) consume(ch <-chan *redis.Message) {
	for msg := range ch {
		var event sessionEventMessage
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			r.logger.Warnw("failed to unmarshal session event", "error", err)
			continue
		}

		r.obsMu.Lock()
		observers := make([]ports.SessionObserver, 0, len(r.observers))
		for _, obs := range r.observers {
			observers = append(observers, obs)
		}
		r.obsMu.Unlock()

		for _, obs := range observers {
			obs(ports.SessionEvent{Type: event.Type, Session: *event.Session.toDomain()})
		}
	}
}

func (s sessionRecord) toDomain() *domain.BroadcastSession {
	return &domain.BroadcastSession{
		Room:            s.Room,
		Broadcaster:     s.Broadcaster,
		BroadcasterName: s.BroadcasterName,
		StartedAt:       s.StartedAt,
	}
}
