package channel

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"voicecast/pkg/retry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client is the subsystem's hold on the external real-time channel:
// one websocket connection with a reader goroutine, a write mutex and
// a ping ticker. Reconnects reuse the retry helper with exponential
// backoff.
type Client struct {
	url    string
	token  string
	logger *zap.SugaredLogger

	pingInterval time.Duration
	writeTimeout time.Duration
	readTimeout  time.Duration
	retryCfg     retry.Config

	onEvent func(Event)

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func NewClient(url, token string, retryCfg retry.Config, logger *zap.SugaredLogger) *Client {
	return &Client{
		url:          url,
		token:        token,
		logger:       logger,
		pingInterval: 30 * time.Second,
		writeTimeout: 10 * time.Second,
		readTimeout:  60 * time.Second,
		retryCfg:     retryCfg,
	}
}

// OnEvent registers the inbound event callback. Must be set before
// Connect; events are delivered from the reader goroutine.
func (c *Client) OnEvent(handler func(Event)) {
	c.onEvent = handler
}

// Connect dials the channel and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	err := retry.Do(ctx, c.retryCfg, func() error {
		conn, _, dialErr := websocket.DefaultDialer.DialContext(ctx, c.url, header)
		if dialErr != nil {
			c.logger.Warnw("channel dial failed", "url", c.url, "error", dialErr)
			return dialErr
		}
		c.mu.Lock()
		c.conn = conn
		c.closed = false
		c.mu.Unlock()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to connect to channel: %w", err)
	}

	go c.readLoop()
	go c.pingLoop()

	c.logger.Infow("channel connected", "url", c.url)
	return nil
}

// Send writes one event. Writes are serialized; the channel preserves
// send order per sender.
func (c *Client) Send(ctx context.Context, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.closed {
		return fmt.Errorf("channel not connected")
	}

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteJSON(ev)
}

func (c *Client) readLoop() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		return nil
	})

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warnw("channel read failed", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(c.readTimeout))

		if c.onEvent != nil {
			c.onEvent(ev)
		}
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		if c.closed || c.conn == nil {
			c.mu.Unlock()
			return
		}
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		err := c.conn.WriteMessage(websocket.PingMessage, nil)
		c.mu.Unlock()
		if err != nil {
			c.logger.Warnw("channel ping failed", "error", err)
			return
		}
	}
}

// Close shuts the connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.closed {
		return nil
	}
	c.closed = true
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}
