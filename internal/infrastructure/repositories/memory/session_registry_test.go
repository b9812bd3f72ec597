package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicecast/internal/core/domain"
	"voicecast/internal/core/ports"
)

func TestCreateEnforcesOneSessionPerRoom(t *testing.T) {
	registry := NewSessionRegistry()
	ctx := context.Background()

	require.NoError(t, registry.Create(ctx, &domain.BroadcastSession{
		Room: "room-1", Broadcaster: "u1",
	}))

	err := registry.Create(ctx, &domain.BroadcastSession{
		Room: "room-1", Broadcaster: "u2",
	})
	assert.ErrorIs(t, err, domain.ErrSessionExists)

	session, err := registry.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u1"), session.Broadcaster)
}

func TestRacingCreatesAdmitExactlyOne(t *testing.T) {
	registry := NewSessionRegistry()
	ctx := context.Background()

	const contenders = 16
	var wg sync.WaitGroup
	errs := make(chan error, contenders)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			errs <- registry.Create(ctx, &domain.BroadcastSession{
				Room:        "room-1",
				Broadcaster: domain.UserID(rune('a' + id)),
			})
		}(i)
	}
	wg.Wait()
	close(errs)

	winners := 0
	for err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, domain.ErrSessionExists)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestGetReturnsCopy(t *testing.T) {
	registry := NewSessionRegistry()
	ctx := context.Background()

	require.NoError(t, registry.Create(ctx, &domain.BroadcastSession{
		Room: "room-1", Broadcaster: "u1", BroadcasterName: "alice",
	}))

	first, err := registry.Get(ctx, "room-1")
	require.NoError(t, err)
	first.BroadcasterName = "mutated"

	second, err := registry.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", second.BroadcasterName)
}

func TestDeleteFreesTheRoom(t *testing.T) {
	registry := NewSessionRegistry()
	ctx := context.Background()

	require.NoError(t, registry.Create(ctx, &domain.BroadcastSession{Room: "room-1", Broadcaster: "u1"}))
	require.NoError(t, registry.Delete(ctx, "room-1"))

	_, err := registry.Get(ctx, "room-1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	assert.ErrorIs(t, registry.Delete(ctx, "room-1"), domain.ErrSessionNotFound)

	// room is takeable again
	require.NoError(t, registry.Create(ctx, &domain.BroadcastSession{Room: "room-1", Broadcaster: "u2"}))
}

func TestListSnapshotsSessions(t *testing.T) {
	registry := NewSessionRegistry()
	ctx := context.Background()

	require.NoError(t, registry.Create(ctx, &domain.BroadcastSession{Room: "room-1", Broadcaster: "u1"}))
	require.NoError(t, registry.Create(ctx, &domain.BroadcastSession{Room: "room-2", Broadcaster: "u2"}))

	sessions, err := registry.List(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
	for _, s := range sessions {
		assert.False(t, s.StartedAt.IsZero())
	}
}

func TestObserversSeeLifecycleEvents(t *testing.T) {
	registry := NewSessionRegistry()
	ctx := context.Background()

	var events []ports.SessionEvent
	cancel := registry.Subscribe(func(ev ports.SessionEvent) {
		events = append(events, ev)
	})

	require.NoError(t, registry.Create(ctx, &domain.BroadcastSession{Room: "room-1", Broadcaster: "u1"}))
	require.NoError(t, registry.Delete(ctx, "room-1"))

	require.Len(t, events, 2)
	assert.Equal(t, ports.SessionCreated, events[0].Type)
	assert.Equal(t, domain.RoomID("room-1"), events[0].Session.Room)
	assert.Equal(t, ports.SessionDestroyed, events[1].Type)

	cancel()
	require.NoError(t, registry.Create(ctx, &domain.BroadcastSession{Room: "room-2", Broadcaster: "u2"}))
	assert.Len(t, events, 2)
}

func TestObserverMayReadBackThroughRegistry(t *testing.T) {
	registry := NewSessionRegistry()
	ctx := context.Background()

	var seen *domain.BroadcastSession
	registry.Subscribe(func(ev ports.SessionEvent) {
		if ev.Type == ports.SessionCreated {
			seen, _ = registry.Get(ctx, ev.Session.Room)
		}
	})

	require.NoError(t, registry.Create(ctx, &domain.BroadcastSession{Room: "room-1", Broadcaster: "u1"}))
	require.NotNil(t, seen)
	assert.Equal(t, domain.UserID("u1"), seen.Broadcaster)
}
