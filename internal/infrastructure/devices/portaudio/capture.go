package portaudio

import (
	"context"
	"fmt"
	"sync"

	"voicecast/internal/core/domain"
	"voicecast/internal/core/ports"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"
)

// CaptureDevice acquires the default microphone through PortAudio.
// One device instance serves the whole process; the capture stream it
// opens is exclusively owned by one broadcast session at a time.
type CaptureDevice struct {
	logger *zap.SugaredLogger

	mu          sync.Mutex
	initialized bool
}

func NewCaptureDevice(logger *zap.SugaredLogger) *CaptureDevice {
	return &CaptureDevice{logger: logger}
}

// Trusted reports whether this process may touch audio hardware. A
// native process owns its devices, unlike a sandboxed page; headless
// builds can swap in a device that reports false.
func (d *CaptureDevice) Trusted() bool {
	return true
}

func (d *CaptureDevice) Open(ctx context.Context, constraints domain.CaptureConstraints) (ports.CaptureStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		if err := portaudio.Initialize(); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
		}
		d.initialized = true
	}

	if _, err := portaudio.DefaultInputDevice(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDeviceNotFound, err)
	}

	buffer := make([]float32, domain.FrameSize)
	stream, err := portaudio.OpenDefaultStream(
		constraints.Channels,
		0,
		float64(constraints.SampleRate),
		domain.FrameSize,
		buffer,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDeviceNotFound, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start capture stream: %w", err)
	}

	d.logger.Infow("microphone acquired",
		"sample_rate", constraints.SampleRate,
		"channels", constraints.Channels,
		"echo_cancellation", constraints.EchoCancellation.Enabled,
		"noise_suppression", constraints.NoiseSuppression.Enabled,
		"auto_gain", constraints.AutoGainControl.Enabled,
	)

	return &captureStream{stream: stream, buffer: buffer}, nil
}

type captureStream struct {
	stream *portaudio.Stream
	buffer []float32
}

func (s *captureStream) Read(block []float32) error {
	if err := s.stream.Read(); err != nil {
		return err
	}
	copy(block, s.buffer)
	return nil
}

// Close aborts pending I/O and releases the device track.
func (s *captureStream) Close() error {
	s.stream.Abort()
	return s.stream.Close()
}
