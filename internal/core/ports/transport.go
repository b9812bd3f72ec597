package ports

import (
	"context"

	"voicecast/internal/core/domain"
)

// FrameSender is the slice of the transport the capture pipeline needs.
type FrameSender interface {
	SendFrame(ctx context.Context, frame domain.AudioFrame) error
}

// BroadcastTransport is the outbound event contract over the real-time
// channel. It carries no buffering, retry, or ordering logic; the
// channel is assumed to preserve send order per sender.
type BroadcastTransport interface {
	FrameSender
	AnnounceStart(ctx context.Context, session domain.BroadcastSession) error
	AnnounceStop(ctx context.Context, room domain.RoomID, user domain.UserID) error
	JoinRoom(ctx context.Context, room domain.RoomID) error
	LeaveRoom(ctx context.Context, room domain.RoomID) error
}

// ControlEventSink receives inbound control events from the channel
// dispatcher. Implemented by the session coordinator.
type ControlEventSink interface {
	HandleBroadcastStarted(session domain.BroadcastSession)
	HandleBroadcastStopped(room domain.RoomID, user domain.UserID)
	HandleBroadcastError(message string)
}

// FrameSink receives inbound audio frames. Implemented by the remote
// playback engine.
type FrameSink interface {
	HandleFrame(frame domain.AudioFrame)
}
