package audio

import (
	"context"
	"sync"
	"sync/atomic"

	"voicecast/internal/core/domain"
	"voicecast/internal/core/ports"
	"voicecast/pkg/audiopool"

	"go.uber.org/zap"
)

type captureState int

const (
	captureIdle captureState = iota
	captureRunning
)

// CaptureProcessor acquires the microphone, runs the voice-band DSP
// chain over fixed 2048-sample blocks and hands quantized frames to
// the transport. The capture loop never blocks on network I/O: frames
// go through a bounded queue drained by a separate sender goroutine,
// and a full queue drops the oldest pending frame.
type CaptureProcessor struct {
	device     ports.CaptureDevice
	transport  ports.BroadcastTransport
	identity   domain.Identity
	queueDepth int
	logger     *zap.SugaredLogger

	floatPool *audiopool.FloatPool
	intPool   *audiopool.Int16Pool

	mu          sync.Mutex
	state       captureState
	room        domain.RoomID
	stream      ports.CaptureStream
	graph       *chain
	paused      atomic.Bool
	stopCh      chan struct{}
	captureDone chan struct{}
	senderDone  chan struct{}
}

func NewCaptureProcessor(
	device ports.CaptureDevice,
	transport ports.BroadcastTransport,
	identity domain.Identity,
	queueDepth int,
	logger *zap.SugaredLogger,
) *CaptureProcessor {
	if queueDepth <= 0 {
		queueDepth = 8
	}
	return &CaptureProcessor{
		device:     device,
		transport:  transport,
		identity:   identity,
		queueDepth: queueDepth,
		logger:     logger,
		floatPool:  audiopool.NewFloatPool(domain.FrameSize),
		intPool:    audiopool.NewInt16Pool(domain.FrameSize),
	}
}

// Start acquires the device and begins the capture loop. Preconditions
// fail before any device acquisition; every failure path leaves the
// processor as if Start was never called.
func (p *CaptureProcessor) Start(ctx context.Context, room domain.RoomID, level domain.NoiseCancellationLevel, role domain.UserRole) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == captureRunning {
		if p.room == room {
			return nil
		}
		return domain.ErrBroadcastActive
	}

	if !p.device.Trusted() {
		return domain.ErrInsecureContext
	}
	if role != domain.RoleAdmin {
		return domain.ErrPermissionDenied
	}

	stream, err := p.device.Open(ctx, level.Constraints())
	if err != nil {
		return err
	}

	session := domain.BroadcastSession{
		Room:            room,
		Broadcaster:     p.identity.UserID,
		BroadcasterName: p.identity.Username,
	}
	if err := p.transport.AnnounceStart(ctx, session); err != nil {
		stream.Close()
		return err
	}

	p.stream = stream
	p.graph = newChain(level, float64(domain.SampleRate))
	p.room = room
	p.state = captureRunning
	p.paused.Store(false)
	p.stopCh = make(chan struct{})
	p.captureDone = make(chan struct{})
	p.senderDone = make(chan struct{})

	queue := make(chan domain.AudioFrame, p.queueDepth)
	go p.captureLoop(stream, queue)
	go p.sendLoop(queue)

	p.logger.Infow("broadcast capture started",
		"room", room,
		"level", level,
	)
	return nil
}

func (p *CaptureProcessor) captureLoop(stream ports.CaptureStream, queue chan domain.AudioFrame) {
	defer close(queue)
	defer close(p.captureDone)

	block := p.floatPool.Get()
	defer p.floatPool.Put(block)

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		if err := stream.Read(block); err != nil {
			select {
			case <-p.stopCh:
				// device released by Stop, expected
			default:
				p.logger.Warnw("capture read failed", "room", p.room, "error", err)
			}
			return
		}

		if p.paused.Load() {
			continue
		}

		p.graph.Process(block)

		samples := domain.QuantizeBlock(p.intPool.Get(), block)
		frame := domain.AudioFrame{Room: p.room, Samples: samples, Format: domain.FormatInt16}

		select {
		case queue <- frame:
		default:
			// queue full: make room by dropping the oldest frame
			select {
			case stale := <-queue:
				p.intPool.Put(stale.Samples)
			default:
			}
			select {
			case queue <- frame:
			default:
				p.intPool.Put(frame.Samples)
			}
		}
	}
}

func (p *CaptureProcessor) sendLoop(queue <-chan domain.AudioFrame) {
	defer close(p.senderDone)

	for frame := range queue {
		if err := p.transport.SendFrame(context.Background(), frame); err != nil {
			p.logger.Warnw("frame send failed", "room", frame.Room, "error", err)
		}
		p.intPool.Put(frame.Samples)
	}
}

// Pause suppresses frame emission while keeping the device and the
// processing graph alive.
func (p *CaptureProcessor) Pause() {
	p.paused.Store(true)
}

func (p *CaptureProcessor) Resume() {
	p.paused.Store(false)
}

// Stop is idempotent and safe to call from error handlers. The device
// track is released before any other teardown, so after Stop returns
// no further frames can be produced by this session.
func (p *CaptureProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != captureRunning {
		return nil
	}

	close(p.stopCh)
	if err := p.stream.Close(); err != nil {
		p.logger.Warnw("device release failed", "room", p.room, "error", err)
	}
	<-p.captureDone
	<-p.senderDone

	room := p.room
	p.stream = nil
	p.graph = nil
	p.room = ""
	p.state = captureIdle

	if err := p.transport.AnnounceStop(ctx, room, p.identity.UserID); err != nil {
		p.logger.Warnw("stop announcement failed", "room", room, "error", err)
	}

	p.logger.Infow("broadcast capture stopped", "room", room)
	return nil
}

// Teardown releases resources without emitting a stop event. Used when
// the server has already rejected the broadcast.
func (p *CaptureProcessor) Teardown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != captureRunning {
		return
	}

	close(p.stopCh)
	p.stream.Close()
	<-p.captureDone
	<-p.senderDone

	p.stream = nil
	p.graph = nil
	p.room = ""
	p.state = captureIdle
}

func (p *CaptureProcessor) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == captureRunning
}

func (p *CaptureProcessor) Room() (domain.RoomID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.room, p.state == captureRunning
}
