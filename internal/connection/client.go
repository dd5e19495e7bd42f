package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents a single WebSocket session with the sync backend.
type Client interface {
	// Connect establishes the WebSocket connection.
	Connect(ctx context.Context) error

	// Close closes the connection with the given close code.
	Close(code int) error

	// Send writes raw bytes to the connection.
	Send(data []byte) error

	// Frames returns a channel of raw inbound frames.
	Frames() <-chan []byte

	// Errors returns a channel of transient transport errors.
	Errors() <-chan error

	// Closed returns a channel that yields exactly one CloseInfo when the
	// session ends, however it ends.
	Closed() <-chan CloseInfo

	// IsConnected returns current connection state.
	IsConnected() bool
}

// client implements the Client interface on gorilla/websocket.
type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	// Output channels
	frames chan []byte
	errs   chan error
	closed chan CloseInfo

	// Write serialization
	writeMu sync.Mutex

	// State
	mu        sync.RWMutex
	connected bool
	closing   bool

	closeOnce sync.Once
}

// NewClient creates a new WebSocket client.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.FrameBuffer == 0 {
		cfg.FrameBuffer = 256
	}

	return &client{
		cfg:    cfg,
		logger: logger,
		frames: make(chan []byte, cfg.FrameBuffer),
		errs:   make(chan error, 1),
		closed: make(chan CloseInfo, 1),
	}
}

// Connect establishes the WebSocket connection.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readLoop()

	c.logger.Debug("websocket connected")

	return nil
}

// Close closes the connection with the given close code. Idempotent.
func (c *client) Close(code int) error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	var err error
	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""),
			time.Now().Add(time.Second),
		)
		err = conn.Close()
	}

	c.deliverClosed(CloseInfo{Code: code})
	return err
}

// Send writes raw bytes to the connection.
func (c *client) Send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Frames returns the inbound frame channel.
func (c *client) Frames() <-chan []byte {
	return c.frames
}

// Errors returns the transport error channel.
func (c *client) Errors() <-chan error {
	return c.errs
}

// Closed returns the close notification channel.
func (c *client) Closed() <-chan CloseInfo {
	return c.closed
}

// IsConnected returns the current connection state.
func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// readLoop reads frames until the connection dies, then classifies how it
// ended. A close frame carries the server's code; anything else is a
// codeless transport failure surfaced on Errors() first.
func (c *client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.connected = false
			closing := c.closing
			c.mu.Unlock()

			if closing {
				// We initiated the close; Close() already delivered
				// the CloseInfo.
				return
			}

			info := CloseInfo{Err: err}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				info.Code = ce.Code
			} else {
				select {
				case c.errs <- err:
				default:
				}
			}
			c.deliverClosed(info)
			return
		}

		select {
		case c.frames <- data:
		default:
			c.logger.Warn("frame buffer full, dropping frame")
		}
	}
}

// deliverClosed emits the CloseInfo exactly once. The frames channel is left
// open; consumers stop on the close notification, and any frames still
// buffered at that point are dropped (no delivery guarantee across a close).
func (c *client) deliverClosed(info CloseInfo) {
	c.closeOnce.Do(func() {
		c.closed <- info
	})
}
