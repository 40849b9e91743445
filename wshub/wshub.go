// Package wshub implements the OSCQuery WebSocket notification hub: client
// registration, LISTEN/IGNORE subscription commands, and PATH_CHANGED /
// PATH_RENAMED / binary-OSC broadcast with prefix-based subscription
// matching.
package wshub

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/defektu/node-oscquery/oscwire"
)

// Command is the JSON shape of inbound LISTEN/IGNORE commands and outbound
// PATH_CHANGED/PATH_RENAMED notifications.
type Command struct {
	Command string `json:"COMMAND"`
	Data    any    `json:"DATA,omitempty"`
}

// PathRenamedData is the DATA payload of a PATH_RENAMED notification.
type PathRenamedData struct {
	Old string `json:"OLD"`
	New string `json:"NEW"`
}

type client struct {
	id   string
	conn *websocket.Conn

	mu   sync.Mutex
	subs map[string]struct{}
}

// subscribed reports whether path matches the client's subscription set: an
// empty set subscribes to everything (spec's documented default).
func (c *client) subscribed(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.subs) == 0 {
		return true
	}
	for sub := range c.subs {
		if path == sub || strings.HasPrefix(path, sub+"/") {
			return true
		}
	}
	return false
}

func (c *client) listen(path string) {
	c.mu.Lock()
	c.subs[path] = struct{}{}
	c.mu.Unlock()
}

func (c *client) ignore(path string) {
	c.mu.Lock()
	delete(c.subs, path)
	c.mu.Unlock()
}

// writeJSON and writeBinary serialize under the same lock used for
// subscription bookkeeping — gorilla/websocket allows only one concurrent
// writer per connection, and sends here are infrequent enough that sharing
// the lock costs nothing observable.
func (c *client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *client) writeBinary(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, b)
}

// Hub tracks connected WebSocket clients and their path-prefix
// subscriptions, and fans out notifications to them.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client

	// OnMessage is invoked for each decoded binary OSC frame received from
	// a client (the server orchestrator's receiveOSCMessage hook). Set
	// before serving traffic; nil is a valid no-op.
	OnMessage func(path string, args []any)
}

// New returns an empty Hub that accepts connections from any origin — the
// OSCQuery protocol has no origin-restriction requirement of its own, and
// the HTTP side already enforces CORS.
func New() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection and runs its read loop until the client
// disconnects or a read fails.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{id: uuid.NewString(), conn: conn, subs: make(map[string]struct{})}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	defer h.deregister(c.id)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.handleFrame(c, data)
	}
}

// handleFrame classifies an inbound frame per spec: a leading '/' or '#'
// means a binary OSC message, anything else is a JSON {COMMAND, DATA}.
func (h *Hub) handleFrame(c *client, data []byte) {
	if len(data) > 0 && (data[0] == '/' || data[0] == '#') {
		msg, err := oscwire.Decode(data)
		if err != nil {
			return
		}
		if h.OnMessage != nil {
			h.OnMessage(msg.Path, msg.Args)
		}
		return
	}

	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return
	}
	switch cmd.Command {
	case "LISTEN":
		if path, ok := cmd.Data.(string); ok {
			c.listen(path)
		}
	case "IGNORE":
		if path, ok := cmd.Data.(string); ok {
			c.ignore(path)
		}
	}
}

func (h *Hub) deregister(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	h.mu.Unlock()
	if ok {
		c.conn.Close()
	}
}

// snapshot returns the clients currently matching filter (nil filter
// matches everyone), taken under a read lock so the broadcast itself never
// blocks registration.
func (h *Hub) snapshot(filter func(*client) bool) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		if filter == nil || filter(c) {
			out = append(out, c)
		}
	}
	return out
}

// BroadcastPathChanged notifies every client subscribed to path. A client
// whose send fails is deregistered immediately and the broadcast continues
// to the rest.
func (h *Hub) BroadcastPathChanged(path string) {
	cmd := Command{Command: "PATH_CHANGED", Data: path}
	for _, c := range h.snapshot(func(c *client) bool { return c.subscribed(path) }) {
		if err := c.writeJSON(cmd); err != nil {
			h.deregister(c.id)
		}
	}
}

// BroadcastPathRenamed reaches every connected client with no prefix
// filter, per spec.
func (h *Hub) BroadcastPathRenamed(oldPath, newPath string) {
	cmd := Command{Command: "PATH_RENAMED", Data: PathRenamedData{Old: oldPath, New: newPath}}
	for _, c := range h.snapshot(nil) {
		if err := c.writeJSON(cmd); err != nil {
			h.deregister(c.id)
		}
	}
}

// BroadcastOSC serializes msg once and sends it to every client subscribed
// to msg.Path.
func (h *Hub) BroadcastOSC(msg oscwire.Message) {
	frame := oscwire.Encode(msg)
	for _, c := range h.snapshot(func(c *client) bool { return c.subscribed(msg.Path) }) {
		if err := c.writeBinary(frame); err != nil {
			h.deregister(c.id)
		}
	}
}

// CloseAll disconnects every client, for use during server shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	ids := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		ids = append(ids, c)
	}
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range ids {
		c.conn.Close()
	}
}
