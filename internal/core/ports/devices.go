package ports

import (
	"context"

	"voicecast/internal/core/domain"
)

// CaptureDevice is the microphone boundary. Open maps device failures
// onto domain errors (ErrPermissionDenied, ErrDeviceNotFound).
type CaptureDevice interface {
	// Trusted reports whether the execution context may touch audio
	// hardware at all. Checked before any acquisition attempt.
	Trusted() bool
	Open(ctx context.Context, constraints domain.CaptureConstraints) (CaptureStream, error)
}

// CaptureStream delivers raw float blocks from the device. Read blocks
// until the block is filled or the stream is closed.
type CaptureStream interface {
	Read(block []float32) error
	// Close stops and releases the device track. After Close returns,
	// no pending or future Read will deliver samples.
	Close() error
}

// PlaybackDevice opens the client's single audio output context.
type PlaybackDevice interface {
	Open(sampleRate, channels int) (OutputContext, error)
}

// OutputContext schedules blocks for immediate playback.
type OutputContext interface {
	Play(samples []float32) error
	Suspended() bool
	Resume() error
	Close() error
}
