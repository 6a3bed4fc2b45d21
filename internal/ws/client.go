package ws

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"messaging-service/internal/models"
)

const sendBufferSize = 128

// ConnInfo describes one authenticated connection.
type ConnInfo struct {
	ConnID      string
	UserID      int
	Username    string
	UserType    string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Client wraps a websocket connection and coordinates outbound writes through
// a buffered channel so broadcasts never block on a slow socket.
type Client struct {
	Info ConnInfo

	conn         *websocket.Conn
	send         chan models.Event
	closed       chan struct{}
	closeOnce    sync.Once
	lastActivity atomic.Int64
}

// NewClient constructs a Client. The write loop starts immediately when a
// real socket is attached.
func NewClient(info ConnInfo, conn *websocket.Conn) *Client {
	c := &Client{
		Info:   info,
		conn:   conn,
		send:   make(chan models.Event, sendBufferSize),
		closed: make(chan struct{}),
	}
	c.Touch()
	if conn != nil {
		go c.writeLoop()
	}
	return c
}

// Deliver enqueues an event for the client. A full buffer or a closed client
// counts as a failed write: the connection is torn down and the failure is
// never surfaced to the caller.
func (c *Client) Deliver(ev models.Event) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		log.Printf("slow websocket client user=%d conn=%s, closing", c.Info.UserID, c.Info.ConnID)
		c.Close()
		return false
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case ev := <-c.send:
			if err := c.conn.WriteJSON(ev); err != nil {
				log.Printf("websocket write error user=%d conn=%s: %v", c.Info.UserID, c.Info.ConnID, err)
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// Close shuts the connection down exactly once. The read loop observes the
// closed socket and unregisters the client.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// Touch stamps last-activity; called for every inbound frame.
func (c *Client) Touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the time of the most recent inbound frame.
func (c *Client) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}
