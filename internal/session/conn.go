package session

import (
	"sync"

	"github.com/google/uuid"
)

// Conn is one realtime channel connection as the hub sees it. The transport
// layer drains Outbound into the socket; the hub only ever enqueues. Each
// connection's queue is independent so a slow consumer never delays delivery
// to other members of the same room.
type Conn struct {
	id   string
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(queueSize int) *Conn {
	return &Conn{
		id:   uuid.NewString(),
		send: make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
}

func (c *Conn) ID() string {
	return c.id
}

// Outbound is the queue of encoded events awaiting delivery on this
// connection.
func (c *Conn) Outbound() <-chan []byte {
	return c.send
}

// Done is closed when the connection is unregistered from the hub.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// enqueue offers a message to the connection without blocking. When the
// queue is full the message is dropped for this connection only; the most
// recent events win once the consumer catches up.
func (c *Conn) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
