// Package wsmonitor serves a read-only websocket feed of dispatched
// messages for operational visibility, mirroring the teacher's
// broadcastTagUpdate pattern over gorilla/websocket.
package wsmonitor

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/bifrost-automation/opcua-edge-adapter/internal/queue"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Broadcaster implements queue.Mirror, fanning dispatched messages out to
// every connected websocket client. Offer never blocks: a client whose
// outbound buffer is full is disconnected rather than stalling dispatch.
type Broadcaster struct {
	logger *zap.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates an empty Broadcaster. ServeHTTP accepts new subscribers.
func New(logger *zap.Logger) *Broadcaster {
	return &Broadcaster{logger: logger, clients: make(map[*client]struct{})}
}

// ServeHTTP upgrades the request to a websocket and registers the
// connection as a subscriber until it disconnects.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 64)}
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()

	go b.writePump(c)
	go b.readPump(c)
}

func (b *Broadcaster) readPump(c *client) {
	defer b.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (b *Broadcaster) writePump(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (b *Broadcaster) remove(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
}

// Offer implements queue.Mirror. A slow client is dropped, not blocked on.
func (b *Broadcaster) Offer(msg queue.Message) {
	data, err := json.Marshal(wireMessage{
		Type:     int(msg.Type),
		Endpoint: msg.Endpoint,
		Payload:  msg.Payload,
	})
	if err != nil {
		b.logger.Warn("wsmonitor marshal failed", zap.Error(err))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			delete(b.clients, c)
			close(c.send)
		}
	}
}

type wireMessage struct {
	Type     int    `json:"type"`
	Endpoint string `json:"endpoint"`
	Payload  any    `json:"payload,omitempty"`
}
