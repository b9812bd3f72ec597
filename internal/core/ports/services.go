package ports

import (
	"context"

	"voicecast/internal/core/domain"
)

// CaptureProcessor owns the microphone and the DSP chain for one
// client process. At most one capture session is active at a time.
type CaptureProcessor interface {
	Start(ctx context.Context, room domain.RoomID, level domain.NoiseCancellationLevel, role domain.UserRole) error
	// Pause keeps the device and processing graph alive but stops
	// frame emission. Resume restarts it.
	Pause()
	Resume()
	// Stop is idempotent. After it returns no further frames are
	// produced by the session.
	Stop(ctx context.Context) error
	// Teardown releases resources without emitting a stop event, for
	// authoritative server rejections.
	Teardown()
	Active() bool
	Room() (domain.RoomID, bool)
}

// PlaybackEngine decodes and schedules playback of inbound frames.
// The output context is created lazily on first listen and released
// entirely on teardown.
type PlaybackEngine interface {
	FrameSink
	EnsureOutput() error
	ReleaseOutput()
}

// ListenerStateProvider exposes the coordinator's per-room listener
// state to the playback engine without sharing mutable structures.
type ListenerStateProvider interface {
	ListenerState(room domain.RoomID) domain.ListenerState
}

// ListenerStateFunc adapts a function to ListenerStateProvider, which
// breaks the construction cycle between engine and coordinator.
type ListenerStateFunc func(room domain.RoomID) domain.ListenerState

func (f ListenerStateFunc) ListenerState(room domain.RoomID) domain.ListenerState {
	return f(room)
}

// BroadcastCoordinator serializes all control-plane operations for the
// local client and enforces the client-side exclusivity guard.
type BroadcastCoordinator interface {
	ControlEventSink
	ListenerStateProvider

	StartBroadcast(ctx context.Context, room domain.RoomID, level domain.NoiseCancellationLevel) error
	StopBroadcast(ctx context.Context) error
	ToggleListen(ctx context.Context, room domain.RoomID) (bool, error)
	ToggleMute(room domain.RoomID) bool
	Broadcasting() (domain.RoomID, bool)
}
