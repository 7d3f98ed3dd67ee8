// Package server exposes the engine over HTTP: a REST API for the messenger
// UI and a WebSocket feed that mirrors the event bus so every connected
// client sees conversation and status changes live.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aimessenger/aimessenger/internal/catalog"
	"github.com/aimessenger/aimessenger/internal/conversation"
	"github.com/aimessenger/aimessenger/internal/dispatch"
	"github.com/aimessenger/aimessenger/internal/event"
	"github.com/aimessenger/aimessenger/internal/health"
	"github.com/aimessenger/aimessenger/internal/settings"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// WSClient represents a connected WebSocket client
type WSClient struct {
	ID     string
	Conn   *websocket.Conn
	Send   chan []byte
	Server *Server
}

// WSMessage is a message sent over WebSocket
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// IncomingChatMessage from the messenger UI
type IncomingChatMessage struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

// Server handles the UI's HTTP and WebSocket connections
type Server struct {
	mu            sync.RWMutex
	clients       map[string]*WSClient
	bus           *event.Bus
	conversations *conversation.Store
	pipeline      *dispatch.Pipeline
	catalog       *catalog.Catalog
	settings      *settings.Store
	monitor       *health.Monitor
	addr          string
	server        *http.Server
}

// New creates the gateway server
func New(addr string, bus *event.Bus, conversations *conversation.Store, pipeline *dispatch.Pipeline, cat *catalog.Catalog, st *settings.Store, monitor *health.Monitor) *Server {
	s := &Server{
		clients:       make(map[string]*WSClient),
		bus:           bus,
		conversations: conversations,
		pipeline:      pipeline,
		catalog:       cat,
		settings:      st,
		monitor:       monitor,
		addr:          addr,
	}

	// Mirror every engine event to connected UI clients
	bus.Subscribe([]string{"*"}, func(evt event.Event) {
		s.Broadcast(evt.Type, evt.Payload)
	})

	return s
}

// Start starts the gateway server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.routes(),
	}

	log.Printf("[Server] Listening on %s", s.addr)
	return s.server.ListenAndServe()
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API endpoints
	mux.HandleFunc("/api/conversations", s.handleConversations)
	mux.HandleFunc("/api/conversations/", s.handleConversationByID)
	mux.HandleFunc("/api/models", s.handleModels)
	mux.HandleFunc("/api/models/", s.handleModelByID)
	mux.HandleFunc("/api/settings", s.handleSettings)
	mux.HandleFunc("/api/status", s.handleStatus)

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Stop stops the gateway server
func (s *Server) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WebSocket] Upgrade error: %v", err)
		return
	}

	client := &WSClient{
		ID:     uuid.New().String(),
		Conn:   conn,
		Send:   make(chan []byte, 256),
		Server: s,
	}

	s.mu.Lock()
	s.clients[client.ID] = client
	s.mu.Unlock()

	log.Printf("[WebSocket] Client connected: %s", client.ID)

	go client.writePump()
	go client.readPump()
}

func (c *WSClient) readPump() {
	defer func() {
		c.Server.mu.Lock()
		delete(c.Server.clients, c.ID)
		c.Server.mu.Unlock()
		c.Conn.Close()
		log.Printf("[WebSocket] Client disconnected: %s", c.ID)
	}()

	c.Conn.SetReadLimit(512 * 1024) // 512KB
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WebSocket] Read error: %v", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("[WebSocket] Invalid message: %v", err)
		return
	}

	switch msg.Type {
	case "chat.message":
		var chatMsg IncomingChatMessage
		if err := json.Unmarshal(msg.Payload, &chatMsg); err != nil {
			log.Printf("[WebSocket] Invalid chat message: %v", err)
			return
		}
		if err := c.Server.pipeline.Send(chatMsg.ConversationID, chatMsg.Content); err != nil {
			c.send("chat.error", map[string]string{
				"conversation_id": chatMsg.ConversationID,
				"error":           err.Error(),
			})
		}

	case "ping":
		c.send("pong", nil)

	default:
		log.Printf("[WebSocket] Unknown message type: %s", msg.Type)
	}
}

func (c *WSClient) send(msgType string, payload any) {
	var payloadBytes json.RawMessage
	if payload != nil {
		payloadBytes, _ = json.Marshal(payload)
	}

	msg := WSMessage{
		Type:    msgType,
		Payload: payloadBytes,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	select {
	case c.Send <- data:
	default:
		log.Printf("[WebSocket] Client %s send buffer full", c.ID)
	}
}

// Broadcast sends a message to all connected clients
func (s *Server) Broadcast(msgType string, payload any) {
	var payloadBytes json.RawMessage
	if payload != nil {
		payloadBytes, _ = json.Marshal(payload)
	}

	msg := WSMessage{
		Type:    msgType,
		Payload: payloadBytes,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, client := range s.clients {
		select {
		case client.Send <- data:
		default:
		}
	}
}
