package realtime

import (
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"teamcollab/models"
)

const writeWait = 10 * time.Second

// Conn is the subset of a websocket connection the relay uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is one authenticated websocket connection.
type Client struct {
	ID   string
	User *models.User

	conn      Conn
	send      chan []byte
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// guarded by Hub.mu
	rooms map[uint]struct{}
}

func NewClient(conn Conn, user *models.User, buffer int) *Client {
	return &Client{
		ID:      uuid.NewString(),
		User:    user,
		conn:    conn,
		send:    make(chan []byte, buffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		rooms:   make(map[uint]struct{}),
	}
}

// Send queues frame without blocking. It returns false when the queue is
// full or the client is closed.
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close stops the write loop, which then closes the connection. Safe to call
// more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// writePump drains the send queue and keeps the connection alive with pings.
// It is the last user of conn; stopped is closed once conn is closed.
func (c *Client) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.conn.Close()
		close(c.stopped)
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump delivers incoming text frames to handle until the connection
// fails or misses its pong deadline.
func (c *Client) readPump(pongWait time.Duration, handle func(frame []byte)) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, frame, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		handle(frame)
	}
}
