package stream

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"riskfeed/internal/platform/deadline"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var ErrClosed = errors.New("client connection closed")

// Conn is the part of *websocket.Conn a Client needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client wraps one websocket connection. Writes from the session and from
// the broadcast fan-out are serialised; a writer that cannot get the
// connection within its timeout gives up instead of queueing forever.
type Client struct {
	id   string
	conn Conn

	writeSlot chan struct{}
	closeOnce sync.Once
	closed    chan struct{}
}

func NewClient(conn Conn) *Client {
	return &Client{
		id:        uuid.NewString(),
		conn:      conn,
		writeSlot: make(chan struct{}, 1),
		closed:    make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

// Send writes one text frame within timeout.
func (c *Client) Send(payload []byte, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	start := time.Now()
	select {
	case c.writeSlot <- struct{}{}:
	case <-c.closed:
		return ErrClosed
	case <-timer.C:
		return fmt.Errorf("%w: waiting for writer after %s", deadline.ErrTimeout, timeout)
	}
	defer func() { <-c.writeSlot }()

	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	if err := c.conn.SetWriteDeadline(start.Add(timeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("%w: %v", deadline.ErrTimeout, err)
		}
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Close shuts the connection down. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}
