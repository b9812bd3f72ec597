package services

import (
	"context"
	"errors"
	"sync"

	"voicecast/internal/core/domain"
	"voicecast/internal/core/ports"

	"go.uber.org/zap"
)

// BroadcastCoordinator owns the local broadcast/listen state machine.
// Broadcasting and Listening are independent axes: a client can be
// broadcasting in its own room while not listening anywhere, since a
// broadcaster never plays back its own audio.
//
// All control-plane operations are serialized by one mutex; no two
// operations for the same client execute concurrently. Inbound control
// events arrive through the ControlEventSink methods, which are the
// only places remote state transitions happen.
type BroadcastCoordinator struct {
	capture   ports.CaptureProcessor
	playback  ports.PlaybackEngine
	transport ports.BroadcastTransport
	registry  ports.SessionRegistry
	identity  domain.Identity
	logger    *zap.SugaredLogger

	mu            sync.Mutex
	broadcasting  bool
	broadcastRoom domain.RoomID
	listeners     map[domain.RoomID]*domain.ListenerState
}

func NewBroadcastCoordinator(
	capture ports.CaptureProcessor,
	playback ports.PlaybackEngine,
	transport ports.BroadcastTransport,
	registry ports.SessionRegistry,
	identity domain.Identity,
	logger *zap.SugaredLogger,
) *BroadcastCoordinator {
	return &BroadcastCoordinator{
		capture:   capture,
		playback:  playback,
		transport: transport,
		registry:  registry,
		identity:  identity,
		logger:    logger,
		listeners: make(map[domain.RoomID]*domain.ListenerState),
	}
}

// StartBroadcast validates the client-side exclusivity guard and hands
// off to the capture processor. The fanout service stays the final
// arbiter; a later broadcast_error still tears this state down.
func (c *BroadcastCoordinator) StartBroadcast(ctx context.Context, room domain.RoomID, level domain.NoiseCancellationLevel) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broadcasting {
		if c.broadcastRoom == room {
			return nil
		}
		return domain.ErrBroadcastActive
	}

	// refuse before touching the device when the room is known busy
	if existing, err := c.registry.Get(ctx, room); err == nil && existing != nil && existing.Broadcaster != c.identity.UserID {
		return domain.ErrSessionExists
	}

	if err := c.capture.Start(ctx, room, level, c.identity.Role); err != nil {
		return err
	}

	session := &domain.BroadcastSession{
		Room:            room,
		Broadcaster:     c.identity.UserID,
		BroadcasterName: c.identity.Username,
	}
	if err := c.registry.Create(ctx, session); err != nil && !errors.Is(err, domain.ErrSessionExists) {
		c.logger.Warnw("local session registration failed", "room", room, "error", err)
	}

	c.broadcasting = true
	c.broadcastRoom = room
	c.logger.Infow("broadcasting", "room", room, "user", c.identity.UserID)
	return nil
}

// StopBroadcast is idempotent: stopping while idle is a no-op with no
// error, no state change and no event emitted.
func (c *BroadcastCoordinator) StopBroadcast(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.broadcasting {
		return nil
	}

	room := c.broadcastRoom
	if err := c.capture.Stop(ctx); err != nil {
		c.logger.Warnw("capture stop failed", "room", room, "error", err)
	}
	if err := c.registry.Delete(ctx, room); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		c.logger.Warnw("local session removal failed", "room", room, "error", err)
	}

	c.broadcasting = false
	c.broadcastRoom = ""
	return nil
}

// ToggleListen flips the listening state for a room. Only the
// transition into Listening creates the playback output and joins the
// room's frame delivery; the transition out releases both.
func (c *BroadcastCoordinator) ToggleListen(ctx context.Context, room domain.RoomID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.listenerState(room)
	if !state.Listening {
		if err := c.playback.EnsureOutput(); err != nil {
			return false, err
		}
		if err := c.transport.JoinRoom(ctx, room); err != nil {
			c.releaseOutputIfUnusedLocked()
			return false, err
		}
		state.Listening = true
		c.logger.Infow("listening", "room", room)
		return true, nil
	}

	c.stopListeningLocked(ctx, room, state)
	return false, nil
}

// ToggleMute flips local playback muting only. It never touches the
// capture or playback resources and affects nobody else's state.
func (c *BroadcastCoordinator) ToggleMute(room domain.RoomID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.listenerState(room)
	state.Muted = !state.Muted
	return state.Muted
}

func (c *BroadcastCoordinator) ListenerState(room domain.RoomID) domain.ListenerState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state, ok := c.listeners[room]; ok {
		return *state
	}
	return domain.ListenerState{}
}

func (c *BroadcastCoordinator) Broadcasting() (domain.RoomID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broadcastRoom, c.broadcasting
}

// HandleBroadcastStarted records the remote session. Listening is
// strictly opt-in: receiving a start notification never enables it.
func (c *BroadcastCoordinator) HandleBroadcastStarted(session domain.BroadcastSession) {
	if session.Broadcaster == c.identity.UserID {
		return
	}
	if err := c.registry.Create(context.Background(), &session); err != nil && !errors.Is(err, domain.ErrSessionExists) {
		c.logger.Warnw("remote session registration failed", "room", session.Room, "error", err)
	}
	c.logger.Infow("broadcast started in room",
		"room", session.Room,
		"broadcaster", session.BroadcasterName,
	)
}

// HandleBroadcastStopped destroys the session and force-exits
// Listening for that room, releasing playback resources.
func (c *BroadcastCoordinator) HandleBroadcastStopped(room domain.RoomID, user domain.UserID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.registry.Delete(context.Background(), room); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		c.logger.Warnw("session removal failed", "room", room, "error", err)
	}

	// our own broadcast torn down server-side (e.g. after disconnect)
	if c.broadcasting && c.broadcastRoom == room && user == c.identity.UserID {
		c.capture.Teardown()
		c.broadcasting = false
		c.broadcastRoom = ""
	}

	if state, ok := c.listeners[room]; ok && state.Listening {
		c.stopListeningLocked(context.Background(), room, state)
	}
}

// HandleBroadcastError is the authoritative rejection path. It always
// wins over local optimistic state and forces a full teardown without
// emitting a stop event.
func (c *BroadcastCoordinator) HandleBroadcastError(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Errorw("broadcast rejected by server",
		"error", domain.ErrServerRejected,
		"server_message", message,
	)

	if !c.broadcasting {
		return
	}

	room := c.broadcastRoom
	c.capture.Teardown()
	if err := c.registry.Delete(context.Background(), room); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		c.logger.Warnw("session removal failed", "room", room, "error", err)
	}
	c.broadcasting = false
	c.broadcastRoom = ""
}

func (c *BroadcastCoordinator) listenerState(room domain.RoomID) *domain.ListenerState {
	state, ok := c.listeners[room]
	if !ok {
		state = &domain.ListenerState{}
		c.listeners[room] = state
	}
	return state
}

func (c *BroadcastCoordinator) stopListeningLocked(ctx context.Context, room domain.RoomID, state *domain.ListenerState) {
	state.Listening = false
	if err := c.transport.LeaveRoom(ctx, room); err != nil {
		c.logger.Warnw("leave room failed", "room", room, "error", err)
	}
	c.releaseOutputIfUnusedLocked()
	c.logger.Infow("stopped listening", "room", room)
}

func (c *BroadcastCoordinator) releaseOutputIfUnusedLocked() {
	for _, state := range c.listeners {
		if state.Listening {
			return
		}
	}
	c.playback.ReleaseOutput()
}
