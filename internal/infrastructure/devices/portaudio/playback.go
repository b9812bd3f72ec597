package portaudio

import (
	"fmt"
	"sync"

	"voicecast/internal/core/domain"
	"voicecast/internal/core/ports"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"
)

// PlaybackDevice opens the default speaker output through PortAudio.
type PlaybackDevice struct {
	logger *zap.SugaredLogger

	mu          sync.Mutex
	initialized bool
}

func NewPlaybackDevice(logger *zap.SugaredLogger) *PlaybackDevice {
	return &PlaybackDevice{logger: logger}
}

func (d *PlaybackDevice) Open(sampleRate, channels int) (ports.OutputContext, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		if err := portaudio.Initialize(); err != nil {
			return nil, fmt.Errorf("failed to initialize audio output: %w", err)
		}
		d.initialized = true
	}

	if _, err := portaudio.DefaultOutputDevice(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDeviceNotFound, err)
	}

	buffer := make([]float32, domain.FrameSize)
	stream, err := portaudio.OpenDefaultStream(
		0,
		channels,
		float64(sampleRate),
		domain.FrameSize,
		buffer,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start output stream: %w", err)
	}

	d.logger.Infow("playback output acquired", "sample_rate", sampleRate, "channels", channels)
	return &outputContext{stream: stream, buffer: buffer, started: true}, nil
}

type outputContext struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	buffer  []float32
	started bool
}

// Play writes samples to the output in fixed blocks, zero-padding the
// tail. Each inbound frame is scheduled immediately, with no queueing
// or reordering.
func (o *outputContext) Play(samples []float32) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for offset := 0; offset < len(samples); offset += len(o.buffer) {
		n := copy(o.buffer, samples[offset:])
		for i := n; i < len(o.buffer); i++ {
			o.buffer[i] = 0
		}
		if err := o.stream.Write(); err != nil {
			return err
		}
	}
	return nil
}

func (o *outputContext) Suspended() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.started
}

func (o *outputContext) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return nil
	}
	if err := o.stream.Start(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPlaybackResumeFailed, err)
	}
	o.started = true
	return nil
}

func (o *outputContext) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.started = false
	o.stream.Abort()
	return o.stream.Close()
}
