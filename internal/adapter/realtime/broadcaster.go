// Package realtime broadcasts dispatcher events to connected WebSocket
// clients and implements telemetry.Sink so the core pipeline never
// imports a transport package directly.
package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/asgard/telemetry-core/internal/obslog"
	"github.com/asgard/telemetry-core/internal/observability"
	"github.com/asgard/telemetry-core/internal/telemetry"
)

// Event is the envelope written to every connected client.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Broadcaster fans dispatcher events out to every connected WebSocket
// client. It satisfies telemetry.Sink. It also keeps the last
// position:update per device, replaying that snapshot to a client the
// moment it connects; otherwise a client joining between two packets
// from a slow-moving device would see nothing for it until the next
// update.
type Broadcaster struct {
	clients      map[*websocket.Conn]bool
	register     chan *websocket.Conn
	unregister   chan *websocket.Conn
	broadcast    chan Event
	mu           sync.RWMutex
	lastByDevice map[string]Event
	done         chan struct{}
	log          *obslog.Logger
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewBroadcaster creates a broadcaster with no connected clients.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients:      make(map[*websocket.Conn]bool),
		register:     make(chan *websocket.Conn),
		unregister:   make(chan *websocket.Conn),
		broadcast:    make(chan Event, 256),
		lastByDevice: make(map[string]Event),
		done:         make(chan struct{}),
		log:          obslog.New("realtime"),
	}
}

// Start runs the broadcaster's event loop until Stop is called. Call it
// on its own goroutine.
func (b *Broadcaster) Start() {
	for {
		select {
		case conn := <-b.register:
			b.mu.Lock()
			b.clients[conn] = true
			n := len(b.clients)
			replay := make([]Event, 0, len(b.lastByDevice))
			for _, ev := range b.lastByDevice {
				replay = append(replay, ev)
			}
			b.mu.Unlock()
			observability.UpdateWebSocketConnections(n)
			b.log.Info("client connected, total=%d", n)

			for _, ev := range replay {
				if err := conn.WriteJSON(ev); err != nil {
					b.log.Warn("replay write failed: %v", err)
					break
				}
			}

		case conn := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[conn]; ok {
				delete(b.clients, conn)
				conn.Close()
			}
			n := len(b.clients)
			b.mu.Unlock()
			observability.UpdateWebSocketConnections(n)
			b.log.Info("client disconnected, total=%d", n)

		case event := <-b.broadcast:
			b.mu.RLock()
			for conn := range b.clients {
				if err := conn.WriteJSON(event); err != nil {
					b.log.Warn("broadcast write failed: %v", err)
					go func(c *websocket.Conn) { b.unregister <- c }(conn)
				}
			}
			b.mu.RUnlock()

		case <-b.done:
			return
		}
	}
}

// Emit implements telemetry.Sink. A full broadcast buffer drops the
// event rather than blocking the caller. position:update events are
// cached per device for replay to newly connected clients; device:left
// evicts the corresponding cache entry so a departed device doesn't
// linger in every future replay.
func (b *Broadcaster) Emit(topic string, payload any) {
	event := Event{Type: topic, Timestamp: time.Now().UTC(), Payload: payload}

	switch topic {
	case telemetry.TopicPositionUpdate:
		if state, ok := payload.(telemetry.DeviceState); ok {
			b.mu.Lock()
			b.lastByDevice[state.DeviceID] = event
			b.mu.Unlock()
		}
	case telemetry.TopicDeviceLeft:
		if ids, ok := payload.(map[string]string); ok {
			b.mu.Lock()
			delete(b.lastByDevice, ids["deviceId"])
			b.mu.Unlock()
		}
	}

	select {
	case b.broadcast <- event:
	default:
		b.log.Warn("broadcast channel full, dropping event: %s", topic)
	}
}

// Stop closes every connection and halts the event loop.
func (b *Broadcaster) Stop() {
	close(b.done)
	b.mu.Lock()
	for conn := range b.clients {
		conn.Close()
		delete(b.clients, conn)
	}
	b.mu.Unlock()
}

// HandleWebSocket upgrades r and registers the connection with b,
// relaying pings until the client disconnects.
func HandleWebSocket(w http.ResponseWriter, r *http.Request, b *Broadcaster) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("upgrade failed: %v", err)
		return
	}

	b.register <- conn

	go func() {
		defer func() { b.unregister <- conn }()

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					b.log.Warn("read error: %v", err)
				}
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(54 * time.Second)
		defer ticker.Stop()
		defer conn.Close()

		for {
			select {
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-b.done:
				return
			}
		}
	}()
}
