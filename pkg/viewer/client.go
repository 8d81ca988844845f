package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"spectra-monitor/pkg/logger"
	"spectra-monitor/pkg/models"
	"spectra-monitor/pkg/protocol"
)

// ConnState tracks where the client is in its connection lifecycle.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const (
	backoffBase          = time.Second
	backoffCap           = 10 * time.Second
	maxReconnectAttempts = 5
)

// backoffDelay returns the wait before reconnect attempt n (1-based):
// 2s, 4s, 8s, then capped at 10s.
func backoffDelay(attempt int) time.Duration {
	d := backoffBase << uint(attempt)
	if d > backoffCap || d <= 0 {
		d = backoffCap
	}
	return d
}

// Conn is the subset of a websocket connection the client needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a connection to the monitoring server.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type wsDialer struct{}

func (wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return conn, nil
}

// Client is a reconnecting viewer connection. On an unexpected drop it
// retries with exponential backoff up to maxReconnectAttempts, and on
// success re-subscribes to the active device session before anything else.
// Close is final: an intentionally closed client never reconnects.
type Client struct {
	// Callbacks fire from the read goroutine. Set them before Connect.
	OnLog          func(models.LogEntry)
	OnScreenFrame  func(imageBase64 string)
	OnDeviceUpdate func(models.Device)
	OnFlagUpdated  func(models.FeatureFlag)
	OnStateChange  func(ConnState)

	url    string
	dialer Dialer
	sleep  func(time.Duration) // swapped out in tests

	mu     sync.Mutex
	state  ConnState
	conn   Conn
	room   string // active device session, rejoined after reconnect
	closed bool

	wg sync.WaitGroup
}

func NewClient(url string, dialer Dialer) *Client {
	if dialer == nil {
		dialer = wsDialer{}
	}
	return &Client{
		url:    url,
		dialer: dialer,
		sleep:  time.Sleep,
		state:  StateDisconnected,
	}
}

// Connect dials the server and starts the read loop. The initial dial is
// not retried; reconnection only applies to an established session that
// drops.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting)

	conn, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateConnected)

	c.wg.Add(1)
	go c.readLoop(ctx, conn)
	return nil
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// JoinSession subscribes to a device's session room. The subscription is
// remembered and re-sent automatically after every reconnect.
func (c *Client) JoinSession(deviceID string) error {
	c.mu.Lock()
	c.room = deviceID
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected {
		return fmt.Errorf("not connected")
	}
	return c.sendJoin(conn, deviceID)
}

// Close tears the connection down for good.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	c.wg.Wait()
	c.setState(StateDisconnected)
	return err
}

func (c *Client) sendJoin(conn Conn, deviceID string) error {
	msg, err := protocol.Encode(protocol.EventJoinSession, protocol.JoinPayload{DeviceID: deviceID})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, msg)
}

func (c *Client) readLoop(ctx context.Context, conn Conn) {
	defer c.wg.Done()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}

			conn = c.reconnect(ctx)
			if conn == nil {
				return
			}
			continue
		}
		c.dispatch(msg)
	}
}

// reconnect retries the dial with exponential backoff. On success it
// re-sends the session subscription before returning the connection to
// the read loop, so no server event can arrive unsubscribed.
func (c *Client) reconnect(ctx context.Context) Conn {
	c.setState(StateConnecting)

	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		c.sleep(backoffDelay(attempt))

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()

		conn, err := c.dialer.Dial(ctx, c.url)
		if err != nil {
			logger.Warn("Reconnect attempt failed",
				logger.Int("attempt", attempt), logger.Err(err))
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return nil
		}
		c.conn = conn
		room := c.room
		c.mu.Unlock()

		if room != "" {
			if err := c.sendJoin(conn, room); err != nil {
				logger.Warn("Failed to rejoin session after reconnect", logger.Err(err))
				conn.Close()
				continue
			}
		}

		c.setState(StateConnected)
		return conn
	}

	logger.Error("Gave up reconnecting",
		logger.Int("attempts", maxReconnectAttempts))
	c.setState(StateDisconnected)
	return nil
}

func (c *Client) dispatch(msg []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		logger.Warn("Dropping malformed server message", logger.Err(err))
		return
	}

	switch env.Event {
	case protocol.EventLogNew:
		var entry models.LogEntry
		if err := json.Unmarshal(env.Data, &entry); err != nil {
			return
		}
		if c.OnLog != nil {
			c.OnLog(entry)
		}
	case protocol.EventScreenOut:
		// The server sends the frame as a bare base64 string, not a struct.
		var image string
		if err := json.Unmarshal(env.Data, &image); err != nil {
			return
		}
		if c.OnScreenFrame != nil {
			c.OnScreenFrame(image)
		}
	case protocol.EventDeviceUpdate:
		var dev models.Device
		if err := json.Unmarshal(env.Data, &dev); err != nil {
			return
		}
		if c.OnDeviceUpdate != nil {
			c.OnDeviceUpdate(dev)
		}
	case protocol.EventFlagUpdated:
		var flag models.FeatureFlag
		if err := json.Unmarshal(env.Data, &flag); err != nil {
			return
		}
		if c.OnFlagUpdated != nil {
			c.OnFlagUpdated(flag)
		}
	}
}

func (c *Client) setState(s ConnState) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	cb := c.OnStateChange
	c.mu.Unlock()

	if changed && cb != nil {
		cb(s)
	}
}
