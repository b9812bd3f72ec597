package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"voicecast/internal/core/domain"
	"voicecast/internal/core/ports"
	"voicecast/internal/core/services"
	"voicecast/internal/infrastructure/audio"
	"voicecast/internal/infrastructure/channel"
	padevices "voicecast/internal/infrastructure/devices/portaudio"
	"voicecast/internal/infrastructure/repositories/memory"
	"voicecast/pkg/config"
	"voicecast/pkg/logger"
	"voicecast/pkg/retry"

	"github.com/google/uuid"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to config file")
		serverURL  = flag.String("server", "", "fanout websocket URL (overrides config)")
		token      = flag.String("token", "", "channel auth token")
		room       = flag.String("room", "", "room to broadcast or listen in")
		mode       = flag.String("mode", "listen", "broadcast or listen")
		level      = flag.String("level", "", "noise cancellation level: off|low|medium|high")
		userID     = flag.String("user", "", "user id (defaults to a random id)")
		username   = flag.String("name", "voicecast", "display name")
		role       = flag.String("role", "member", "room role: admin|member")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}
	if *serverURL != "" {
		cfg.Client.ServerURL = *serverURL
	}
	if *level != "" {
		cfg.Audio.NoiseLevel = *level
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	if *room == "" {
		log.Fatalw("missing required flag", "flag", "room")
	}

	uid := domain.UserID(*userID)
	if uid == "" {
		uid = domain.UserID("user_" + uuid.NewString())
	}
	identity := domain.Identity{
		UserID:   uid,
		Username: *username,
		Role:     domain.UserRole(*role),
	}

	noiseLevel, err := domain.ParseNoiseCancellationLevel(cfg.Audio.NoiseLevel)
	if err != nil {
		log.Fatalw("invalid noise level", "error", err)
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.InitialDelay = cfg.Client.ReconnectBackoff
	retryCfg.MaxAttempts = cfg.Client.MaxReconnects

	client := channel.NewClient(cfg.Client.ServerURL, *token, retryCfg, log)
	transport := channel.NewTransport(client, log)

	captureDev := padevices.NewCaptureDevice(log)
	playbackDev := padevices.NewPlaybackDevice(log)
	registry := memory.NewSessionRegistry()

	capture := audio.NewCaptureProcessor(captureDev, transport, identity, cfg.Audio.FrameQueueDepth, log)

	var coordinator *services.BroadcastCoordinator
	states := ports.ListenerStateFunc(func(r domain.RoomID) domain.ListenerState {
		return coordinator.ListenerState(r)
	})
	playback := audio.NewPlaybackEngine(playbackDev, registry, states, identity.UserID, log)
	coordinator = services.NewBroadcastCoordinator(capture, playback, transport, registry, identity, log)

	transport.Bind(coordinator, playback)
	client.OnEvent(transport.Dispatch)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := client.Connect(ctx); err != nil {
		log.Fatalw("channel connection failed", "error", err)
	}
	defer client.Close()

	switch *mode {
	case "broadcast":
		if err := coordinator.StartBroadcast(ctx, domain.RoomID(*room), noiseLevel); err != nil {
			log.Fatalw("broadcast start failed", "room", *room, "error", err)
		}
		log.Infow("broadcasting, press Ctrl-C to stop", "room", *room, "level", noiseLevel)
	case "listen":
		listening, err := coordinator.ToggleListen(ctx, domain.RoomID(*room))
		if err != nil {
			log.Fatalw("listen failed", "room", *room, "error", err)
		}
		log.Infow("listening, press Ctrl-C to stop", "room", *room, "listening", listening)
	default:
		log.Fatalw("unknown mode", "mode", *mode)
	}

	<-ctx.Done()

	shutdownCtx := context.Background()
	if err := coordinator.StopBroadcast(shutdownCtx); err != nil {
		log.Warnw("broadcast stop failed", "error", err)
	}
	if state := coordinator.ListenerState(domain.RoomID(*room)); state.Listening {
		if _, err := coordinator.ToggleListen(shutdownCtx, domain.RoomID(*room)); err != nil {
			log.Warnw("listen stop failed", "error", err)
		}
	}
}
