package audio

import (
	"context"
	"sync"

	"voicecast/internal/core/domain"
	"voicecast/internal/core/ports"
	"voicecast/pkg/audiopool"

	"go.uber.org/zap"
)

// PlaybackEngine dequantizes inbound frames and schedules them for
// immediate playback. Frames carry no sequence numbers or timestamps,
// so out-of-order delivery or variable network delay produces audible
// glitches; that limitation is part of the wire contract and is not
// corrected here with a jitter buffer.
//
// The output context is created lazily when the client first listens
// and released entirely on teardown. A client that never listens never
// holds output resources.
type PlaybackEngine struct {
	device   ports.PlaybackDevice
	registry ports.SessionRegistry
	states   ports.ListenerStateProvider
	local    domain.UserID
	logger   *zap.SugaredLogger

	pool *audiopool.FloatPool

	mu  sync.Mutex
	out ports.OutputContext
}

func NewPlaybackEngine(
	device ports.PlaybackDevice,
	registry ports.SessionRegistry,
	states ports.ListenerStateProvider,
	local domain.UserID,
	logger *zap.SugaredLogger,
) *PlaybackEngine {
	return &PlaybackEngine{
		device:   device,
		registry: registry,
		states:   states,
		local:    local,
		logger:   logger,
		pool:     audiopool.NewFloatPool(domain.FrameSize),
	}
}

// EnsureOutput creates the single output context if it does not exist.
func (e *PlaybackEngine) EnsureOutput() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.out != nil {
		return nil
	}
	out, err := e.device.Open(domain.SampleRate, domain.Channels)
	if err != nil {
		return err
	}
	e.out = out
	e.logger.Infow("playback output created")
	return nil
}

// ReleaseOutput tears the output context down entirely, matching the
// capture side's resource discipline.
func (e *PlaybackEngine) ReleaseOutput() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.out == nil {
		return
	}
	if err := e.out.Close(); err != nil {
		e.logger.Warnw("playback output close failed", "error", err)
	}
	e.out = nil
	e.logger.Infow("playback output released")
}

// HandleFrame plays one inbound frame, or drops it. Playback errors
// are recovered per frame; they never tear down the engine.
func (e *PlaybackEngine) HandleFrame(frame domain.AudioFrame) {
	state := e.states.ListenerState(frame.Room)
	if !state.Listening || state.Muted {
		return
	}

	session, err := e.registry.Get(context.Background(), frame.Room)
	if err != nil || session == nil {
		return
	}
	// self-echo suppression: never play back our own broadcast
	if session.Broadcaster == e.local {
		return
	}

	e.mu.Lock()
	out := e.out
	e.mu.Unlock()
	if out == nil {
		return
	}

	if out.Suspended() {
		if err := out.Resume(); err != nil {
			e.logger.Warnw("playback resume failed, dropping frame",
				"room", frame.Room,
				"error", domain.ErrPlaybackResumeFailed,
			)
			return
		}
	}

	samples, scratch := e.decode(frame)
	if err := out.Play(samples); err != nil {
		e.logger.Warnw("playback failed, dropping frame", "room", frame.Room, "error", err)
	}
	if scratch {
		e.pool.Put(samples)
	}
}

// decode dequantizes int16 payloads; any other format tag is the
// legacy already-float path and passes through unscaled. The returned
// flag marks engine-owned scratch that may be recycled; legacy frames
// alias the decoder's buffer and are never pooled.
func (e *PlaybackEngine) decode(frame domain.AudioFrame) ([]float32, bool) {
	if frame.Format != domain.FormatInt16 {
		return frame.Floats, false
	}
	samples := e.pool.Get()
	if len(frame.Samples) > cap(samples) {
		samples = make([]float32, len(frame.Samples))
	}
	return domain.DequantizeBlock(samples, frame.Samples), true
}
