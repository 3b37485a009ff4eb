package connection

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/scenesync/server/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	MaxMessageSize = 64 << 10
	sendBufferSize = 256
)

// Conn is one live websocket. Reads happen on the goroutine serving the connection,
// writes only on WritePump, fed through a bounded queue.
type Conn struct {
	Id       string
	Identity domain.Identity

	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeMsg  atomic.Pointer[[]byte]
}

func NewConn(id string, ws *websocket.Conn, identity domain.Identity) *Conn {
	return &Conn{
		Id:       id,
		Identity: identity,
		ws:       ws,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
	}
}

func (c *Conn) WS() *websocket.Conn {
	return c.ws
}

// Queue exposes pending outbound messages. Only WritePump and tests should receive from it.
func (c *Conn) Queue() <-chan []byte {
	return c.send
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Send enqueues data without blocking. A connection that cannot keep up is closed.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		c.CloseWithReason(websocket.ClosePolicyViolation, "too slow")
		return ErrSendBufferFull
	}
}

func (c *Conn) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return c.Send(data)
}

func (c *Conn) Close() {
	c.CloseWithReason(websocket.CloseNormalClosure, "")
}

// CloseWithReason stops the connection. WritePump flushes queued messages and then sends
// the close frame.
func (c *Conn) CloseWithReason(code int, text string) {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, text)
		c.closeMsg.Store(&msg)
		close(c.done)
	})
}

// PrepareRead applies the read limit and keepalive deadlines. Call before reading.
func (c *Conn) PrepareRead() {
	c.ws.SetReadLimit(MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// WritePump drains the queue to the socket and pings it until the connection is closed.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			if msg := c.closeMsg.Load(); msg != nil {
				c.write(websocket.CloseMessage, *msg)
			}
			return
		}
	}
}

func (c *Conn) flush() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(messageType int, data []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(messageType, data)
}
