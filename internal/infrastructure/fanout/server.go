package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"voicecast/internal/core/domain"
	"voicecast/internal/core/ports"
	"voicecast/internal/core/services"
	"voicecast/internal/infrastructure/channel"
	"voicecast/internal/infrastructure/monitoring"
	apperrors "voicecast/pkg/errors"
	"voicecast/pkg/tracing"
	"voicecast/pkg/validation"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Server is the relay and authorization end of the broadcast channel.
// It is the final arbiter of the one-broadcaster-per-room invariant:
// clients guard cooperatively, this server rejects authoritatively.
type Server struct {
	registry ports.SessionRegistry
	auth     services.AuthService
	metrics  *monitoring.PrometheusCollector
	logger   *zap.SugaredLogger

	mu          sync.RWMutex
	connections map[domain.UserID]*client
	rooms       map[domain.RoomID]map[domain.UserID]*client

	pingInterval time.Duration
	pongTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	frameRate  rate.Limit
	frameBurst int
}

type client struct {
	user     domain.UserID
	username string
	claims   *services.Claims
	conn     *websocket.Conn

	writeMu sync.Mutex
	limiter *rate.Limiter
}

// Options tune connection keepalive and frame rate limiting. A zero
// FrameRate disables rate limiting.
type Options struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration
	FrameRate    float64
	FrameBurst   int
}

func NewServer(
	registry ports.SessionRegistry,
	auth services.AuthService,
	metrics *monitoring.PrometheusCollector,
	opts Options,
	logger *zap.SugaredLogger,
) *Server {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = 60 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}

	return &Server{
		registry:     registry,
		auth:         auth,
		metrics:      metrics,
		logger:       logger,
		connections:  make(map[domain.UserID]*client),
		rooms:        make(map[domain.RoomID]map[domain.UserID]*client),
		pingInterval: opts.PingInterval,
		pongTimeout:  opts.PongTimeout,
		readTimeout:  opts.PongTimeout,
		writeTimeout: opts.WriteTimeout,
		frameRate:    rate.Limit(opts.FrameRate),
		frameBurst:   opts.FrameBurst,
	}
}

// HandleWebSocket upgrades one channel client connection and serves
// its event loop until disconnect.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := s.authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	cl := &client{
		user:     claims.UserID,
		username: claims.Username,
		claims:   claims,
		conn:     conn,
	}
	if s.frameRate > 0 {
		cl.limiter = rate.NewLimiter(s.frameRate, s.frameBurst)
	}

	s.mu.Lock()
	if existing, reconnect := s.connections[cl.user]; reconnect && existing != nil {
		existing.conn.Close()
		s.logger.Infow("closing old connection for reconnecting client", "user", cl.user)
	}
	s.connections[cl.user] = cl
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordClientConnected()
	}
	s.logger.Infow("client connected", "user", cl.user, "username", cl.username)

	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	eventChan := make(chan channel.Event, 16)
	errorChan := make(chan error, 1)

	go func() {
		for {
			var ev channel.Event
			if err := conn.ReadJSON(&ev); err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.readTimeout))
			eventChan <- ev
		}
	}()

	for {
		select {
		case ev := <-eventChan:
			if err := s.handleEvent(r.Context(), cl, ev); err != nil {
				s.logger.Infow("error handling event", "user", cl.user, "type", ev.Type, "error", err)
				if isBroadcastRejection(ev.Type, err) {
					s.sendError(cl, err)
				}
			}

		case <-pingTicker.C:
			cl.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			cl.writeMu.Unlock()
			if err != nil {
				s.logger.Infow("ping failed", "user", cl.user, "error", err)
				s.cleanup(cl)
				return
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Infow("read failed", "user", cl.user, "error", err)
			}
			s.cleanup(cl)
			return
		}
	}
}

func (s *Server) authenticate(r *http.Request) (*services.Claims, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if token == "" {
		return nil, services.ErrInvalidToken
	}
	return s.auth.ValidateToken(token)
}

func (s *Server) handleEvent(ctx context.Context, cl *client, ev channel.Event) error {
	switch ev.Type {
	case channel.EventBroadcastStart:
		return s.handleBroadcastStart(ctx, cl, ev)
	case channel.EventAudioStream:
		return s.handleAudioStream(ctx, cl, ev)
	case channel.EventBroadcastStop:
		return s.handleBroadcastStop(ctx, cl, ev)
	case channel.EventJoinRoom:
		return s.handleJoinRoom(ctx, cl, ev)
	case channel.EventLeaveRoom:
		return s.handleLeaveRoom(cl, ev)
	default:
		return fmt.Errorf("unknown event type: %s", ev.Type)
	}
}

func (s *Server) handleBroadcastStart(ctx context.Context, cl *client, ev channel.Event) error {
	ctx, span := tracing.StartSpan(ctx, "fanout.broadcast_start",
		attribute.String("user", string(cl.user)),
	)
	defer span.End()

	var p channel.BroadcastStartPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return fmt.Errorf("invalid %s payload: %w", ev.Type, err)
	}
	if err := validation.ValidateRoomID(string(p.RoomID)); err != nil {
		return apperrors.NewInvalidInput(err.Error())
	}
	if p.UserID != "" && p.UserID != cl.user {
		return apperrors.NewInvalidInput("userId does not match connection identity")
	}

	if err := s.auth.CheckBroadcastPermission(cl.claims); err != nil {
		if s.metrics != nil {
			s.metrics.RecordRejection("permission")
		}
		return apperrors.NewPermissionDenied("not authorized to broadcast")
	}

	session := &domain.BroadcastSession{
		Room:            p.RoomID,
		Broadcaster:     cl.user,
		BroadcasterName: cl.username,
	}
	if err := s.registry.Create(ctx, session); err != nil {
		if errors.Is(err, domain.ErrSessionExists) {
			if s.metrics != nil {
				s.metrics.RecordRejection("room_busy")
			}
			return apperrors.NewRoomBusy(string(p.RoomID))
		}
		return fmt.Errorf("failed to register session: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordSessionStarted()
	}
	s.logger.Infow("broadcast started",
		"room", p.RoomID,
		"broadcaster", cl.user,
	)

	started, err := channel.NewEvent(channel.EventBroadcastStarted, channel.BroadcastStartPayload{
		RoomID:   p.RoomID,
		UserID:   cl.user,
		Username: cl.username,
	})
	if err != nil {
		return err
	}
	s.relayToRoom(p.RoomID, started, cl.user)
	return nil
}

func (s *Server) handleAudioStream(ctx context.Context, cl *client, ev channel.Event) error {
	if cl.limiter != nil && !cl.limiter.Allow() {
		if s.metrics != nil {
			s.metrics.RecordFrameDropped("rate_limited")
		}
		return nil
	}

	var p channel.AudioStreamPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return fmt.Errorf("invalid %s payload: %w", ev.Type, err)
	}

	session, err := s.registry.Get(ctx, p.RoomID)
	if err != nil || session == nil {
		if s.metrics != nil {
			s.metrics.RecordFrameDropped("no_session")
		}
		return nil
	}
	if session.Broadcaster != cl.user {
		if s.metrics != nil {
			s.metrics.RecordFrameDropped("not_broadcaster")
		}
		return domain.ErrNotBroadcaster
	}

	recipients := s.relayToRoom(p.RoomID, ev, cl.user)
	if s.metrics != nil {
		s.metrics.RecordFrameRelayed(recipients)
	}
	return nil
}

func (s *Server) handleBroadcastStop(ctx context.Context, cl *client, ev channel.Event) error {
	ctx, span := tracing.StartSpan(ctx, "fanout.broadcast_stop",
		attribute.String("user", string(cl.user)),
	)
	defer span.End()

	var p channel.BroadcastStopPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return fmt.Errorf("invalid %s payload: %w", ev.Type, err)
	}

	session, err := s.registry.Get(ctx, p.RoomID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil
		}
		return err
	}
	if session.Broadcaster != cl.user {
		return domain.ErrNotBroadcaster
	}

	return s.endSession(ctx, p.RoomID, cl.user)
}

func (s *Server) handleJoinRoom(ctx context.Context, cl *client, ev channel.Event) error {
	var p channel.RoomPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return fmt.Errorf("invalid %s payload: %w", ev.Type, err)
	}
	if err := validation.ValidateRoomID(string(p.RoomID)); err != nil {
		return apperrors.NewInvalidInput(err.Error())
	}

	s.mu.Lock()
	members, ok := s.rooms[p.RoomID]
	if !ok {
		members = make(map[domain.UserID]*client)
		s.rooms[p.RoomID] = members
	}
	members[cl.user] = cl
	count := len(members)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetRoomMembers(p.RoomID, count)
	}
	s.logger.Infow("client joined room", "user", cl.user, "room", p.RoomID)

	// A client joining mid-broadcast missed the started notification,
	// so replay it from the registry. The client decides whether to
	// listen; joining never implies listening.
	session, err := s.registry.Get(ctx, p.RoomID)
	if err != nil || session == nil || session.Broadcaster == cl.user {
		return nil
	}
	started, err := channel.NewEvent(channel.EventBroadcastStarted, channel.BroadcastStartPayload{
		RoomID:   session.Room,
		UserID:   session.Broadcaster,
		Username: session.BroadcasterName,
	})
	if err != nil {
		return err
	}
	if err := s.sendEvent(cl, started); err != nil {
		s.logger.Warnw("failed to replay session snapshot", "user", cl.user, "room", p.RoomID, "error", err)
	}
	return nil
}

func (s *Server) handleLeaveRoom(cl *client, ev channel.Event) error {
	var p channel.RoomPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return fmt.Errorf("invalid %s payload: %w", ev.Type, err)
	}

	s.mu.Lock()
	count := s.removeFromRoomLocked(p.RoomID, cl.user)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetRoomMembers(p.RoomID, count)
	}
	s.logger.Infow("client left room", "user", cl.user, "room", p.RoomID)
	return nil
}

// endSession destroys a session and notifies the room.
func (s *Server) endSession(ctx context.Context, room domain.RoomID, broadcaster domain.UserID) error {
	if err := s.registry.Delete(ctx, room); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil
		}
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordSessionEnded()
	}
	s.logger.Infow("broadcast stopped", "room", room, "broadcaster", broadcaster)

	stopped, err := channel.NewEvent(channel.EventBroadcastStopped, channel.BroadcastStopPayload{
		RoomID: room,
		UserID: broadcaster,
	})
	if err != nil {
		return err
	}
	s.relayToRoom(room, stopped, broadcaster)
	return nil
}

// cleanup runs when a connection dies: membership removal and, when
// the client was broadcasting, session teardown with a stop
// notification to listeners. A connection superseded by a reconnect
// owns nothing anymore; its rooms and sessions belong to the live
// connection, so only the connection count is adjusted.
func (s *Server) cleanup(cl *client) {
	if s.metrics != nil {
		s.metrics.RecordClientDisconnected()
	}

	s.mu.Lock()
	if current, ok := s.connections[cl.user]; !ok || current != cl {
		s.mu.Unlock()
		s.logger.Infow("stale connection cleaned up", "user", cl.user)
		return
	}
	delete(s.connections, cl.user)
	var affected []domain.RoomID
	for room, members := range s.rooms {
		if _, ok := members[cl.user]; ok {
			affected = append(affected, room)
			s.removeFromRoomLocked(room, cl.user)
		}
	}
	s.mu.Unlock()

	if s.metrics != nil {
		for _, room := range affected {
			s.mu.RLock()
			count := len(s.rooms[room])
			s.mu.RUnlock()
			s.metrics.SetRoomMembers(room, count)
		}
	}

	ctx := context.Background()
	sessions, err := s.registry.List(ctx)
	if err != nil {
		s.logger.Warnw("failed to list sessions during cleanup", "user", cl.user, "error", err)
	} else {
		for _, session := range sessions {
			if session.Broadcaster == cl.user {
				if err := s.endSession(ctx, session.Room, cl.user); err != nil {
					s.logger.Warnw("failed to end session during cleanup",
						"room", session.Room, "error", err)
				}
			}
		}
	}

	s.logger.Infow("client disconnected", "user", cl.user)
}

func (s *Server) removeFromRoomLocked(room domain.RoomID, user domain.UserID) int {
	members, ok := s.rooms[room]
	if !ok {
		return 0
	}
	delete(members, user)
	if len(members) == 0 {
		delete(s.rooms, room)
		return 0
	}
	return len(members)
}

// relayToRoom sends an event to every member of a room except the
// sender and returns the recipient count.
func (s *Server) relayToRoom(room domain.RoomID, ev channel.Event, except domain.UserID) int {
	s.mu.RLock()
	members := make([]*client, 0, len(s.rooms[room]))
	for user, member := range s.rooms[room] {
		if user == except {
			continue
		}
		members = append(members, member)
	}
	s.mu.RUnlock()

	sent := 0
	for _, member := range members {
		if err := s.sendEvent(member, ev); err != nil {
			s.logger.Warnw("relay failed", "room", room, "user", member.user, "error", err)
			continue
		}
		sent++
	}
	return sent
}

func (s *Server) sendEvent(cl *client, ev channel.Event) error {
	cl.writeMu.Lock()
	defer cl.writeMu.Unlock()

	cl.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return cl.conn.WriteJSON(ev)
}

// isBroadcastRejection decides whether a handler failure warrants a
// broadcast_error event. Clients treat broadcast_error as an
// authoritative rejection of their own broadcast and tear the whole
// thing down, so it is sent only for start/stream rejections; every
// other failure is logged and dropped.
func isBroadcastRejection(eventType string, err error) bool {
	if eventType != channel.EventBroadcastStart && eventType != channel.EventAudioStream {
		return false
	}
	if errors.Is(err, domain.ErrNotBroadcaster) {
		return true
	}
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr.Code == apperrors.ErrCodePermissionDenied || appErr.Code == apperrors.ErrCodeRoomBusy
	}
	return false
}

// sendError maps a handler error onto a broadcast_error event for the
// offending client.
func (s *Server) sendError(cl *client, err error) {
	message := err.Error()
	if appErr := apperrors.GetAppError(err); appErr != nil {
		message = appErr.Message
	}

	ev, marshalErr := channel.NewEvent(channel.EventBroadcastError, channel.BroadcastErrorPayload{Error: message})
	if marshalErr != nil {
		return
	}
	if sendErr := s.sendEvent(cl, ev); sendErr != nil {
		s.logger.Warnw("failed to send error event", "user", cl.user, "error", sendErr)
	}
}

// HealthCheck reports liveness and connection counts.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	connectionCount := len(s.connections)
	roomCount := len(s.rooms)
	s.mu.RUnlock()

	response := map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"connections": connectionCount,
		"rooms":       roomCount,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
