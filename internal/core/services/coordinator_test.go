package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"voicecast/internal/core/domain"
	"voicecast/internal/core/ports"
)

type fakeCapture struct {
	mu        sync.Mutex
	active    bool
	room      domain.RoomID
	startErr  error
	stops     int
	teardowns int
}

func (c *fakeCapture) Start(_ context.Context, room domain.RoomID, _ domain.NoiseCancellationLevel, role domain.UserRole) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	if role != domain.RoleAdmin {
		return domain.ErrPermissionDenied
	}
	c.active = true
	c.room = room
	return nil
}

func (c *fakeCapture) Pause()  {}
func (c *fakeCapture) Resume() {}

func (c *fakeCapture) Stop(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	c.room = ""
	c.stops++
	return nil
}

func (c *fakeCapture) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	c.room = ""
	c.teardowns++
}

func (c *fakeCapture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *fakeCapture) Room() (domain.RoomID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room, c.active
}

type fakePlayback struct {
	mu       sync.Mutex
	outputs  int
	releases int
	frames   int
	openErr  error
}

func (p *fakePlayback) HandleFrame(domain.AudioFrame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames++
}

func (p *fakePlayback) EnsureOutput() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.openErr != nil {
		return p.openErr
	}
	p.outputs++
	return nil
}

func (p *fakePlayback) ReleaseOutput() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releases++
}

type fakeChannel struct {
	mu      sync.Mutex
	joins   []domain.RoomID
	leaves  []domain.RoomID
	joinErr error
}

func (t *fakeChannel) SendFrame(context.Context, domain.AudioFrame) error           { return nil }
func (t *fakeChannel) AnnounceStart(context.Context, domain.BroadcastSession) error { return nil }
func (t *fakeChannel) AnnounceStop(context.Context, domain.RoomID, domain.UserID) error {
	return nil
}

func (t *fakeChannel) JoinRoom(_ context.Context, room domain.RoomID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.joinErr != nil {
		return t.joinErr
	}
	t.joins = append(t.joins, room)
	return nil
}

func (t *fakeChannel) LeaveRoom(_ context.Context, room domain.RoomID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.leaves = append(t.leaves, room)
	return nil
}

type memRegistry struct {
	mu       sync.Mutex
	sessions map[domain.RoomID]*domain.BroadcastSession
}

func newMemRegistry() *memRegistry {
	return &memRegistry{sessions: make(map[domain.RoomID]*domain.BroadcastSession)}
}

func (r *memRegistry) Create(_ context.Context, s *domain.BroadcastSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.Room]; ok {
		return domain.ErrSessionExists
	}
	r.sessions[s.Room] = s
	return nil
}

func (r *memRegistry) Get(_ context.Context, room domain.RoomID) (*domain.BroadcastSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[room], nil
}

func (r *memRegistry) Delete(_ context.Context, room domain.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[room]; !ok {
		return domain.ErrSessionNotFound
	}
	delete(r.sessions, room)
	return nil
}

func (r *memRegistry) List(_ context.Context) ([]*domain.BroadcastSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.BroadcastSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (r *memRegistry) Subscribe(ports.SessionObserver) func() { return func() {} }

type coordFixture struct {
	coord    *BroadcastCoordinator
	capture  *fakeCapture
	playback *fakePlayback
	channel  *fakeChannel
	registry *memRegistry
}

func newCoordFixture(role domain.UserRole) *coordFixture {
	f := &coordFixture{
		capture:  &fakeCapture{},
		playback: &fakePlayback{},
		channel:  &fakeChannel{},
		registry: newMemRegistry(),
	}
	f.coord = NewBroadcastCoordinator(
		f.capture,
		f.playback,
		f.channel,
		f.registry,
		domain.Identity{UserID: "u1", Username: "alice", Role: role},
		zap.NewNop().Sugar(),
	)
	return f
}

func TestStartBroadcastRegistersSession(t *testing.T) {
	f := newCoordFixture(domain.RoleAdmin)
	ctx := context.Background()

	require.NoError(t, f.coord.StartBroadcast(ctx, "room-1", domain.NoiseMedium))

	room, ok := f.coord.Broadcasting()
	assert.True(t, ok)
	assert.Equal(t, domain.RoomID("room-1"), room)
	assert.True(t, f.capture.Active())

	session, err := f.registry.Get(ctx, "room-1")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, domain.UserID("u1"), session.Broadcaster)
}

func TestStartBroadcastExclusivityGuard(t *testing.T) {
	f := newCoordFixture(domain.RoleAdmin)
	ctx := context.Background()

	require.NoError(t, f.coord.StartBroadcast(ctx, "room-1", domain.NoiseOff))

	// same room again is a no-op
	require.NoError(t, f.coord.StartBroadcast(ctx, "room-1", domain.NoiseOff))

	err := f.coord.StartBroadcast(ctx, "room-2", domain.NoiseOff)
	assert.ErrorIs(t, err, domain.ErrBroadcastActive)
}

func TestStartBroadcastRefusesBusyRoom(t *testing.T) {
	f := newCoordFixture(domain.RoleAdmin)
	ctx := context.Background()

	require.NoError(t, f.registry.Create(ctx, &domain.BroadcastSession{
		Room: "room-1", Broadcaster: "someone-else",
	}))

	err := f.coord.StartBroadcast(ctx, "room-1", domain.NoiseOff)
	assert.ErrorIs(t, err, domain.ErrSessionExists)
	assert.False(t, f.capture.Active())
}

func TestStopBroadcastIsIdempotent(t *testing.T) {
	f := newCoordFixture(domain.RoleAdmin)
	ctx := context.Background()

	require.NoError(t, f.coord.StopBroadcast(ctx))
	assert.Zero(t, f.capture.stops)

	require.NoError(t, f.coord.StartBroadcast(ctx, "room-1", domain.NoiseOff))
	require.NoError(t, f.coord.StopBroadcast(ctx))

	_, ok := f.coord.Broadcasting()
	assert.False(t, ok)
	session, _ := f.registry.Get(ctx, "room-1")
	assert.Nil(t, session)

	require.NoError(t, f.coord.StopBroadcast(ctx))
	assert.Equal(t, 1, f.capture.stops)
}

func TestToggleListenJoinsAndLeaves(t *testing.T) {
	f := newCoordFixture(domain.RoleMember)
	ctx := context.Background()

	listening, err := f.coord.ToggleListen(ctx, "room-1")
	require.NoError(t, err)
	assert.True(t, listening)
	assert.Equal(t, 1, f.playback.outputs)
	assert.Equal(t, []domain.RoomID{"room-1"}, f.channel.joins)
	assert.True(t, f.coord.ListenerState("room-1").Listening)

	listening, err = f.coord.ToggleListen(ctx, "room-1")
	require.NoError(t, err)
	assert.False(t, listening)
	assert.Equal(t, []domain.RoomID{"room-1"}, f.channel.leaves)
	assert.Equal(t, 1, f.playback.releases)
	assert.False(t, f.coord.ListenerState("room-1").Listening)
}

func TestListeningIsOptIn(t *testing.T) {
	f := newCoordFixture(domain.RoleMember)

	f.coord.HandleBroadcastStarted(domain.BroadcastSession{
		Room: "room-1", Broadcaster: "remote", BroadcasterName: "bob",
	})

	// a start notification records the session but never auto-listens
	session, _ := f.registry.Get(context.Background(), "room-1")
	require.NotNil(t, session)
	assert.False(t, f.coord.ListenerState("room-1").Listening)
	assert.Zero(t, f.playback.outputs)
	assert.Empty(t, f.channel.joins)
}

func TestOwnStartNotificationIgnored(t *testing.T) {
	f := newCoordFixture(domain.RoleAdmin)

	f.coord.HandleBroadcastStarted(domain.BroadcastSession{
		Room: "room-1", Broadcaster: "u1", BroadcasterName: "alice",
	})

	session, _ := f.registry.Get(context.Background(), "room-1")
	assert.Nil(t, session)
}

func TestToggleMuteIsIndependent(t *testing.T) {
	f := newCoordFixture(domain.RoleMember)
	ctx := context.Background()

	_, err := f.coord.ToggleListen(ctx, "room-1")
	require.NoError(t, err)

	assert.True(t, f.coord.ToggleMute("room-1"))
	state := f.coord.ListenerState("room-1")
	assert.True(t, state.Listening)
	assert.True(t, state.Muted)

	// muting holds no resources and sends nothing
	assert.Equal(t, 1, f.playback.outputs)
	assert.Len(t, f.channel.joins, 1)
	assert.Empty(t, f.channel.leaves)

	assert.False(t, f.coord.ToggleMute("room-1"))
	assert.False(t, f.coord.ListenerState("room-1").Muted)
}

func TestJoinFailureReleasesFreshOutput(t *testing.T) {
	f := newCoordFixture(domain.RoleMember)
	f.channel.joinErr = errors.New("channel down")

	listening, err := f.coord.ToggleListen(context.Background(), "room-1")
	require.Error(t, err)
	assert.False(t, listening)
	assert.Equal(t, 1, f.playback.releases)
	assert.False(t, f.coord.ListenerState("room-1").Listening)
}

func TestBroadcastStoppedForcesListenerExit(t *testing.T) {
	f := newCoordFixture(domain.RoleMember)
	ctx := context.Background()

	f.coord.HandleBroadcastStarted(domain.BroadcastSession{
		Room: "room-1", Broadcaster: "remote", BroadcasterName: "bob",
	})
	_, err := f.coord.ToggleListen(ctx, "room-1")
	require.NoError(t, err)

	f.coord.HandleBroadcastStopped("room-1", "remote")

	assert.False(t, f.coord.ListenerState("room-1").Listening)
	assert.Equal(t, []domain.RoomID{"room-1"}, f.channel.leaves)
	assert.Equal(t, 1, f.playback.releases)
	session, _ := f.registry.Get(ctx, "room-1")
	assert.Nil(t, session)
}

func TestServerTeardownOfOwnBroadcast(t *testing.T) {
	f := newCoordFixture(domain.RoleAdmin)
	ctx := context.Background()

	require.NoError(t, f.coord.StartBroadcast(ctx, "room-1", domain.NoiseOff))

	f.coord.HandleBroadcastStopped("room-1", "u1")

	_, ok := f.coord.Broadcasting()
	assert.False(t, ok)
	assert.Equal(t, 1, f.capture.teardowns)
	assert.Zero(t, f.capture.stops)
}

func TestBroadcastErrorTearsDownWithoutStopEvent(t *testing.T) {
	f := newCoordFixture(domain.RoleAdmin)
	ctx := context.Background()

	require.NoError(t, f.coord.StartBroadcast(ctx, "room-1", domain.NoiseOff))

	f.coord.HandleBroadcastError("Room already has an active broadcast")

	_, ok := f.coord.Broadcasting()
	assert.False(t, ok)
	assert.Equal(t, 1, f.capture.teardowns)
	assert.Zero(t, f.capture.stops)
	session, _ := f.registry.Get(ctx, "room-1")
	assert.Nil(t, session)
}

func TestBroadcastErrorWhileIdleOnlyLogs(t *testing.T) {
	f := newCoordFixture(domain.RoleAdmin)

	f.coord.HandleBroadcastError("no active broadcast")

	assert.Zero(t, f.capture.teardowns)
}

// Full contention scenario: a second client tries the busy room, gets
// refused locally, listens instead, then takes the room over once the
// first broadcaster stops.
func TestRoomContentionLifecycle(t *testing.T) {
	f := newCoordFixture(domain.RoleAdmin)
	ctx := context.Background()

	f.coord.HandleBroadcastStarted(domain.BroadcastSession{
		Room: "room-1", Broadcaster: "remote", BroadcasterName: "bob",
	})

	err := f.coord.StartBroadcast(ctx, "room-1", domain.NoiseHigh)
	assert.ErrorIs(t, err, domain.ErrSessionExists)

	listening, err := f.coord.ToggleListen(ctx, "room-1")
	require.NoError(t, err)
	assert.True(t, listening)

	f.coord.HandleBroadcastStopped("room-1", "remote")
	assert.False(t, f.coord.ListenerState("room-1").Listening)

	require.NoError(t, f.coord.StartBroadcast(ctx, "room-1", domain.NoiseHigh))
	room, ok := f.coord.Broadcasting()
	assert.True(t, ok)
	assert.Equal(t, domain.RoomID("room-1"), room)
}
