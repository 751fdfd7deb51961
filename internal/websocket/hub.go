package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/ikkim/storefront-cart/pkg/logger"
)

const (
	// maximum client messages per second
	maxMessagesPerSecond = 10

	sendBufferSize = 32
)

// ClientMessage is a command sent by a cart UI over the socket.
type ClientMessage struct {
	Type string `json:"type"` // refresh, clear_error
}

// ServerMessage is pushed to every client of a session.
type ServerMessage struct {
	Type string      `json:"type"` // cart
	Data interface{} `json:"data"`
}

// Client is one socket of a browser session. A session may hold several
// (multiple tabs).
type Client struct {
	Hub       *Hub
	Conn      *Conn
	SessionID string
	Send      chan []byte
	// OnMessage handles commands that passed rate limiting and parsing.
	OnMessage func(ClientMessage)

	messageCount  int
	lastResetTime time.Time
	rateMu        sync.Mutex
}

func NewClient(hub *Hub, conn *Conn, sessionID string, onMessage func(ClientMessage)) *Client {
	return &Client{
		Hub:       hub,
		Conn:      conn,
		SessionID: sessionID,
		Send:      make(chan []byte, sendBufferSize),
		OnMessage: onMessage,
	}
}

// Hub tracks the open sockets of every session.
type Hub struct {
	clients    map[string][]*Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	done       chan struct{}

	mu sync.RWMutex
}

type BroadcastMessage struct {
	SessionID string
	Message   []byte
	Client    *Client
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string][]*Client),
		unregister: make(chan *Client, 256),
		broadcast:  make(chan *BroadcastMessage, 1024),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.clients[message.SessionID] {
				if message.Client != client {
					continue
				}
				select {
				case client.Send <- message.Message:
				default:
					go h.Unregister(client)
					logger.Warn("Cart socket send buffer full, disconnecting", map[string]interface{}{
						"session_id": message.SessionID,
					})
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	list, ok := h.clients[client.SessionID]
	if !ok {
		return
	}
	kept := make([]*Client, 0, len(list))
	found := false
	for _, c := range list {
		if c == client {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	if !found {
		return
	}
	if len(kept) == 0 {
		delete(h.clients, client.SessionID)
	} else {
		h.clients[client.SessionID] = kept
	}
	close(client.Send)

	logger.Debug("Cart socket unregistered", map[string]interface{}{
		"session_id":   client.SessionID,
		"session_tabs": len(kept),
	})
}

// SendToClient queues message for one socket of a session. It never blocks;
// a full broadcast queue drops the message, and messages for a socket that
// was already unregistered are discarded.
func (h *Hub) SendToClient(client *Client, message interface{}) error {
	return h.send(&BroadcastMessage{SessionID: client.SessionID, Client: client}, message)
}

func (h *Hub) send(envelope *BroadcastMessage, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		logger.Error("Failed to marshal socket message", err, nil)
		return err
	}
	envelope.Message = data

	select {
	case h.broadcast <- envelope:
	default:
		logger.Warn("Broadcast channel full, message dropped", map[string]interface{}{
			"session_id": envelope.SessionID,
		})
	}
	return nil
}

// Register adds client synchronously so messages sent right after it are
// not lost.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client.SessionID] = append(h.clients[client.SessionID], client)
	total := len(h.clients[client.SessionID])
	h.mu.Unlock()

	logger.Debug("Cart socket registered", map[string]interface{}{
		"session_id":   client.SessionID,
		"session_tabs": total,
	})
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Connected reports whether sessionID has at least one open socket.
func (h *Hub) Connected(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[sessionID]
	return ok
}

// HandleClientMessage rate limits and parses one inbound message.
func (h *Hub) HandleClientMessage(client *Client, message []byte) {
	client.rateMu.Lock()
	now := time.Now()
	if now.Sub(client.lastResetTime) >= time.Second {
		client.messageCount = 0
		client.lastResetTime = now
	}
	client.messageCount++
	count := client.messageCount
	client.rateMu.Unlock()

	if count > maxMessagesPerSecond {
		logger.Warn("Rate limit exceeded", map[string]interface{}{
			"session_id": client.SessionID,
			"count":      count,
		})
		return
	}

	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		logger.Warn("Failed to parse client message", map[string]interface{}{
			"session_id": client.SessionID,
			"error":      err.Error(),
		})
		return
	}

	switch msg.Type {
	case "refresh", "clear_error":
		if client.OnMessage != nil {
			client.OnMessage(msg)
		}
	default:
		logger.Debug("Unknown client message ignored", map[string]interface{}{
			"session_id": client.SessionID,
			"type":       msg.Type,
		})
	}
}
