package ws

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wardenlabs/hostwarden/internal/event"
)

// Handler provides the WebSocket endpoint for real-time scan updates.
type Handler struct {
	hub    *Hub
	bus    *event.Bus
	logger *zap.Logger
}

// NewHandler creates a WebSocket handler and subscribes it to scan and
// registry events.
func NewHandler(bus *event.Bus, logger *zap.Logger) *Handler {
	h := &Handler{
		hub:    NewHub(logger),
		bus:    bus,
		logger: logger,
	}
	h.subscribeToEvents()
	return h
}

// RegisterRoutes registers WebSocket routes on the server mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/ws", h.handleStream)
}

// Hub exposes the hub for tests and stats.
func (h *Handler) Hub() *Hub {
	return h.hub
}

// handleStream upgrades the connection and streams events until the client
// disconnects.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:   conn,
		id:     uuid.NewString(),
		send:   make(chan Message, 256),
		logger: h.logger,
	}

	h.hub.Register(client)

	ctx := r.Context()
	done := make(chan struct{})
	go func() {
		client.writePump(ctx)
		close(done)
	}()

	// readPump blocks until client disconnects.
	client.readPump(ctx)

	h.hub.Unregister(client)
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}

// subscribeToEvents forwards bus events to all connected clients.
func (h *Handler) subscribeToEvents() {
	if h.bus == nil {
		return
	}

	forward := func(msgType MessageType) event.Handler {
		return func(_ context.Context, e event.Event) {
			h.hub.Broadcast(Message{
				Type:      msgType,
				Timestamp: e.Timestamp,
				Data:      e.Payload,
			})
		}
	}

	h.bus.Subscribe(event.TopicScanStarted, forward(MessageScanStarted))
	h.bus.Subscribe(event.TopicScanProgress, forward(MessageScanProgress))
	h.bus.Subscribe(event.TopicScanCompleted, forward(MessageScanCompleted))
	h.bus.Subscribe(event.TopicRegistryReloaded, forward(MessageRegistry))
}
