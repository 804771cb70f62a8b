package api

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ReevaluationEvent describes websocket payloads emitted during re-evaluation runs.
type ReevaluationEvent struct {
	Type      string      `json:"type"`
	JobID     string      `json:"job_id"`
	Total     int64       `json:"total,omitempty"`
	Processed int         `json:"processed,omitempty"`
	Approved  int         `json:"approved,omitempty"`
	Product   *ProductDTO `json:"product,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// wsClient wraps a websocket connection with write locking.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// ReevaluationNotifier keeps track of active websocket clients and broadcasts job events.
type ReevaluationNotifier struct {
	mu         sync.Mutex
	clients    map[*wsClient]struct{}
	lastStatus *ReevaluationEvent
}

// NewReevaluationNotifier constructs a notifier instance.
func NewReevaluationNotifier() *ReevaluationNotifier {
	return &ReevaluationNotifier{clients: make(map[*wsClient]struct{})}
}

// Register attaches a websocket connection and replays the last known status to it.
func (n *ReevaluationNotifier) Register(conn *websocket.Conn) *wsClient {
	client := &wsClient{conn: conn}
	n.mu.Lock()
	n.clients[client] = struct{}{}
	status := n.lastStatus
	n.mu.Unlock()

	if status != nil {
		_ = client.writeJSON(*status)
	}
	return client
}

// Unregister removes the websocket client from the notifier and closes the socket.
func (n *ReevaluationNotifier) Unregister(client *wsClient) {
	if client == nil {
		return
	}
	n.mu.Lock()
	delete(n.clients, client)
	n.mu.Unlock()
	_ = client.conn.Close()
}

// Broadcast sends the supplied event to all registered websocket clients.
func (n *ReevaluationNotifier) Broadcast(event ReevaluationEvent) {
	event.Timestamp = time.Now().UTC()

	n.mu.Lock()
	snapshot := event
	snapshot.Product = nil
	n.lastStatus = &snapshot

	for client := range n.clients {
		if err := client.writeJSON(event); err != nil {
			delete(n.clients, client)
			_ = client.conn.Close()
		}
	}
	n.mu.Unlock()
}

// LastStatus returns a copy of the most recent event without its product payload.
func (n *ReevaluationNotifier) LastStatus() *ReevaluationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.lastStatus == nil {
		return nil
	}
	status := *n.lastStatus
	return &status
}

func (c *wsClient) writeJSON(payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(payload)
}
