// Package channel provides the message-oriented, full-duplex connection used
// by both the conversation and matchmaking endpoints. A single implementation
// is parameterized by an endpoint kind; behavior differences live in the
// owning service's dispatch table.
package channel

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio fragments

	// Buffered outbound messages before sends are dropped.
	sendQueueSize = 256
)

// ErrClosed is returned when operating on a closed channel
var ErrClosed = errors.New("channel closed")

// Kind identifies which backend endpoint a channel is connected to
type Kind string

const (
	KindConversation Kind = "conversation"
	KindMatchmaking  Kind = "matchmaking"
)

// Handler receives inbound traffic and lifecycle notifications. HandleMessage
// is invoked from a single goroutine in strict arrival order. HandleClosed is
// invoked exactly once, after the last HandleMessage call.
type Handler interface {
	HandleMessage(data []byte)
	HandleClosed(err error)
}

// Channel is one persistent full-duplex connection to a backend endpoint.
// There is no automatic reconnect: a transport drop is terminal and surfaced
// through Handler.HandleClosed.
type Channel struct {
	kind    Kind
	conn    *websocket.Conn
	send    chan []byte
	handler Handler
	logger  *zap.Logger

	closed atomic.Bool
	done   chan struct{}
}

// Dial connects to the endpoint and starts the read and write pumps.
func Dial(ctx context.Context, urlStr string, kind Kind, handler Handler, logger *zap.Logger) (*Channel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, urlStr, nil)
	if err != nil {
		return nil, err
	}

	c := &Channel{
		kind:    kind,
		conn:    conn,
		send:    make(chan []byte, sendQueueSize),
		handler: handler,
		logger:  logger,
		done:    make(chan struct{}),
	}

	go c.writePump()
	go c.readPump()

	return c, nil
}

// Kind reports which endpoint this channel is connected to
func (c *Channel) Kind() Kind {
	return c.kind
}

// Send queues a message for delivery. Sends are fire-and-forget: a full queue
// or a closed channel drops the message with a log entry instead of blocking
// the caller.
func (c *Channel) Send(payload []byte) {
	select {
	case <-c.done:
		c.logger.Debug("Dropping send on closed channel", zap.String("kind", string(c.kind)))
	default:
		select {
		case c.send <- payload:
		default:
			c.logger.Warn("Send queue full, dropping message",
				zap.String("kind", string(c.kind)),
				zap.Int("size", len(payload)))
		}
	}
}

// Close tears the connection down. Safe to call from any goroutine and any
// number of times.
func (c *Channel) Close() {
	c.close(nil)
}

// close runs teardown exactly once. The closed flag is flipped before the
// handler is notified so a nested Close from inside HandleClosed returns
// immediately instead of blocking on its own teardown.
func (c *Channel) close(err error) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.done)
	c.conn.Close()
	c.handler.HandleClosed(err)
}

// readPump pumps messages from the websocket connection to the handler.
// Inbound messages are dispatched in strict arrival order.
func (c *Channel) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("Channel read failed",
					zap.String("kind", string(c.kind)),
					zap.Error(err))
			}
			c.close(err)
			return
		}
		c.handler.HandleMessage(message)
	}
}

// writePump pumps queued messages to the websocket connection and keeps the
// connection alive with periodic pings.
func (c *Channel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("Channel write failed",
					zap.String("kind", string(c.kind)),
					zap.Error(err))
				c.close(err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close(err)
				return
			}
		}
	}
}
