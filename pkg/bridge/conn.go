// Package bridge relays audio between a Twilio media stream and an OpenAI
// realtime session: one Session per phone call, barge-in truncation, tool
// dispatch, and best-effort conversation logging.
package bridge

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/starshield/voicebridge/internal/log"
)

// Conn is the minimal WebSocket surface the bridge needs from either leg.
// Both the server-side stream conn and the gorilla client conn satisfy it.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// safeConn serializes writes and tracks the open state, since a session's
// two read loops both write to each leg.
type safeConn struct {
	mu     sync.Mutex
	conn   Conn
	closed bool
}

func newSafeConn(conn Conn) *safeConn {
	return &safeConn{conn: conn}
}

// sendJSON marshals v and writes it as one text message. Serialization
// failures are logged and swallowed; a closed conn is a silent no-op so
// late handlers don't error after teardown.
func (c *safeConn) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		log.Warn("failed to serialize WebSocket payload", "error", err)
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// read blocks for the next message, outside the write lock.
func (c *safeConn) read() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *safeConn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if err := c.conn.Close(); err != nil {
		log.Debug("WebSocket close failed", "error", err)
	}
}

func (c *safeConn) open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}
