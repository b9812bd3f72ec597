package channel

import (
	"encoding/json"

	"voicecast/internal/core/domain"
)

// Event names exchanged over the real-time channel.
const (
	EventBroadcastStart   = "voice_broadcast_start"
	EventBroadcastStarted = "voice_broadcast_started"
	EventAudioStream      = "audio_stream"
	EventBroadcastStop    = "voice_broadcast_stop"
	EventBroadcastStopped = "voice_broadcast_stopped"
	EventBroadcastError   = "broadcast_error"
	EventJoinRoom         = "join_room"
	EventLeaveRoom        = "leave_room"
)

// Event is the envelope for every channel message.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent marshals a payload into an envelope.
func NewEvent(eventType string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Payload: data}, nil
}

type BroadcastStartPayload struct {
	RoomID   domain.RoomID `json:"roomId"`
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
}

type BroadcastStopPayload struct {
	RoomID domain.RoomID `json:"roomId"`
	UserID domain.UserID `json:"userId"`
}

// AudioStreamPayload carries one frame. AudioData is quantized int16
// samples when Format is "int16"; any other format tag is the legacy
// path where the array holds raw floats. Decoding is deferred until
// the format tag has been inspected.
type AudioStreamPayload struct {
	RoomID    domain.RoomID   `json:"roomId"`
	AudioData json.RawMessage `json:"audioData"`
	Format    string          `json:"format"`
}

// Decode turns the payload into a domain frame per its format tag.
func (p *AudioStreamPayload) Decode() (domain.AudioFrame, error) {
	frame := domain.AudioFrame{Room: p.RoomID, Format: p.Format}
	if p.Format == domain.FormatInt16 {
		if err := json.Unmarshal(p.AudioData, &frame.Samples); err != nil {
			return domain.AudioFrame{}, err
		}
		return frame, nil
	}
	if err := json.Unmarshal(p.AudioData, &frame.Floats); err != nil {
		return domain.AudioFrame{}, err
	}
	return frame, nil
}

// NewAudioStreamPayload builds the outbound payload for a frame.
func NewAudioStreamPayload(frame domain.AudioFrame) (AudioStreamPayload, error) {
	data, err := json.Marshal(frame.Samples)
	if err != nil {
		return AudioStreamPayload{}, err
	}
	return AudioStreamPayload{RoomID: frame.Room, AudioData: data, Format: frame.Format}, nil
}

type BroadcastErrorPayload struct {
	Error string `json:"error"`
}

type RoomPayload struct {
	RoomID domain.RoomID `json:"roomId"`
}
