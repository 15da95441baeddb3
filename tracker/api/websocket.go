package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WSMessageType represents the kind of a WebSocket message
type WSMessageType string

const (
	WSMessageTypeConnection    WSMessageType = "connection"
	WSMessageTypePing          WSMessageType = "ping"
	WSMessageTypePong          WSMessageType = "pong"
	WSMessageTypeEntryAppended WSMessageType = "entry_appended"
	WSMessageTypeAlert         WSMessageType = "alert"
)

// WSMessage is the envelope of every WebSocket message
type WSMessage struct {
	Type      WSMessageType `json:"type"`
	Data      interface{}   `json:"data,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	ClientID  string        `json:"client_id,omitempty"`
}

// WSHubConfig holds limits of the WebSocket hub
type WSHubConfig struct {
	MaxClients       int
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64
	ClientBufferSize int
}

// WSClient is one connected WebSocket peer
type WSClient struct {
	ID         string
	RemoteAddr string
	conn       *websocket.Conn
	send       chan []byte
	hub        *WSHub
}

// WSHub fans history updates out to WebSocket clients
type WSHub struct {
	clients    map[*WSClient]bool
	register   chan *WSClient
	unregister chan *WSClient
	broadcast  chan []byte

	config   WSHubConfig
	upgrader websocket.Upgrader
	log      logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.RWMutex
}

// NewWSHub creates a hub with default limits; call Run to start it
func NewWSHub(log logrus.FieldLogger) *WSHub {
	ctx, cancel := context.WithCancel(context.Background())
	config := WSHubConfig{
		MaxClients:       100,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     54 * time.Second,
		MaxMessageSize:   64 * 1024,
		ClientBufferSize: 64,
	}

	return &WSHub{
		clients:    make(map[*WSClient]bool),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		broadcast:  make(chan []byte, 256),
		config:     config,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:    log.WithField("component", "websocket-hub"),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until Stop is called
func (h *WSHub) Run() {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= h.config.MaxClients {
				h.mu.Unlock()
				h.log.Warn("Maximum client limit reached, rejecting connection")
				close(client.send)
				continue
			}
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()

			client.enqueue(WSMessage{
				Type:      WSMessageTypeConnection,
				Data:      map[string]string{"status": "connected"},
				Timestamp: time.Now(),
				ClientID:  client.ID,
			})
			h.log.WithFields(logrus.Fields{
				"client_id":     client.ID,
				"remote_addr":   client.RemoteAddr,
				"total_clients": total,
			}).Info("WebSocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if h.clients[client] {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.log.WithField("client_id", client.ID).Debug("WebSocket client disconnected")

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// slow consumer
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop disconnects every client and waits for Run to return
func (h *WSHub) Stop() {
	h.cancel()
	<-h.done
	h.log.Info("WebSocket hub stopped")
}

// ClientCount returns the number of connected clients
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a message to every connected client
func (h *WSHub) Broadcast(messageType WSMessageType, data interface{}) {
	msg, err := json.Marshal(WSMessage{Type: messageType, Data: data, Timestamp: time.Now()})
	if err != nil {
		h.log.WithError(err).Error("Failed to marshal broadcast message")
		return
	}

	select {
	case h.broadcast <- msg:
	case <-h.ctx.Done():
	default:
		h.log.Warn("Broadcast channel full, dropping message")
	}
}

// ServeWS upgrades the request and registers the connection
func (h *WSHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := &WSClient{
		ID:         uuid.New().String(),
		RemoteAddr: r.RemoteAddr,
		conn:       conn,
		send:       make(chan []byte, h.config.ClientBufferSize),
		hub:        h,
	}

	select {
	case h.register <- client:
	case <-h.ctx.Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *WSClient) enqueue(msg WSMessage) {
	b, err := json.Marshal(msg)
	if err != nil {
		c.hub.log.WithError(err).Error("Failed to marshal client message")
		return
	}
	select {
	case c.send <- b:
	default:
		c.hub.log.WithField("client_id", c.ID).Warn("Client send channel full")
	}
}

func (c *WSClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.WithError(err).WithField("client_id", c.ID).Warn("WebSocket read error")
			}
			return
		}
		if msg.Type == WSMessageTypePing {
			c.hub.mu.RLock()
			if c.hub.clients[c] {
				c.enqueue(WSMessage{Type: WSMessageTypePong, Timestamp: time.Now(), ClientID: c.ID})
			}
			c.hub.mu.RUnlock()
		}
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.log.WithError(err).WithField("client_id", c.ID).Warn("WebSocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
