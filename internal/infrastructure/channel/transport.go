package channel

import (
	"context"
	"encoding/json"
	"fmt"

	"voicecast/internal/core/domain"
	"voicecast/internal/core/ports"

	"go.uber.org/zap"
)

// sender is the outbound half of the channel this transport needs.
type sender interface {
	Send(ctx context.Context, ev Event) error
}

// Transport maps the named channel events onto the coordinator's and
// engines' methods. It carries no buffering, retry or ordering logic
// of its own; the underlying channel is assumed to preserve send
// order per sender.
type Transport struct {
	channel sender
	logger  *zap.SugaredLogger

	control ports.ControlEventSink
	frames  ports.FrameSink
}

func NewTransport(channel sender, logger *zap.SugaredLogger) *Transport {
	return &Transport{
		channel: channel,
		logger:  logger,
	}
}

// Bind registers the inbound sinks. Must be called before Dispatch
// sees any traffic.
func (t *Transport) Bind(control ports.ControlEventSink, frames ports.FrameSink) {
	t.control = control
	t.frames = frames
}

func (t *Transport) AnnounceStart(ctx context.Context, session domain.BroadcastSession) error {
	ev, err := NewEvent(EventBroadcastStart, BroadcastStartPayload{
		RoomID:   session.Room,
		UserID:   session.Broadcaster,
		Username: session.BroadcasterName,
	})
	if err != nil {
		return err
	}
	return t.channel.Send(ctx, ev)
}

func (t *Transport) AnnounceStop(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	ev, err := NewEvent(EventBroadcastStop, BroadcastStopPayload{RoomID: room, UserID: user})
	if err != nil {
		return err
	}
	return t.channel.Send(ctx, ev)
}

func (t *Transport) SendFrame(ctx context.Context, frame domain.AudioFrame) error {
	payload, err := NewAudioStreamPayload(frame)
	if err != nil {
		return err
	}
	ev, err := NewEvent(EventAudioStream, payload)
	if err != nil {
		return err
	}
	return t.channel.Send(ctx, ev)
}

func (t *Transport) JoinRoom(ctx context.Context, room domain.RoomID) error {
	ev, err := NewEvent(EventJoinRoom, RoomPayload{RoomID: room})
	if err != nil {
		return err
	}
	return t.channel.Send(ctx, ev)
}

func (t *Transport) LeaveRoom(ctx context.Context, room domain.RoomID) error {
	ev, err := NewEvent(EventLeaveRoom, RoomPayload{RoomID: room})
	if err != nil {
		return err
	}
	return t.channel.Send(ctx, ev)
}

// Dispatch is the single inbound event dispatcher: every remote event
// becomes exactly one sink call, keeping the coordinator's transition
// table the sole place state changes.
func (t *Transport) Dispatch(ev Event) {
	if err := t.dispatch(ev); err != nil {
		t.logger.Warnw("event dispatch failed", "type", ev.Type, "error", err)
	}
}

func (t *Transport) dispatch(ev Event) error {
	switch ev.Type {
	case EventBroadcastStarted:
		var p BroadcastStartPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return fmt.Errorf("invalid %s payload: %w", ev.Type, err)
		}
		t.control.HandleBroadcastStarted(domain.BroadcastSession{
			Room:            p.RoomID,
			Broadcaster:     p.UserID,
			BroadcasterName: p.Username,
		})

	case EventBroadcastStopped:
		var p BroadcastStopPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return fmt.Errorf("invalid %s payload: %w", ev.Type, err)
		}
		t.control.HandleBroadcastStopped(p.RoomID, p.UserID)

	case EventBroadcastError:
		var p BroadcastErrorPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return fmt.Errorf("invalid %s payload: %w", ev.Type, err)
		}
		t.control.HandleBroadcastError(p.Error)

	case EventAudioStream:
		var p AudioStreamPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return fmt.Errorf("invalid %s payload: %w", ev.Type, err)
		}
		frame, err := p.Decode()
		if err != nil {
			return fmt.Errorf("undecodable audio frame for room %s: %w", p.RoomID, err)
		}
		t.frames.HandleFrame(frame)

	default:
		return fmt.Errorf("unknown event type: %s", ev.Type)
	}
	return nil
}
