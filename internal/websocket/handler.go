package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"classrelay/internal/hub"
	"classrelay/pkg/interfaces"
	"classrelay/pkg/types"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultReadTimeout  = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	// Origin checking is left to a fronting proxy; classroom clients connect
	// from many hosts.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Dispatcher is the hub surface the handler needs: connection lifecycle plus
// event submission.
type Dispatcher interface {
	Submit(event *hub.EventContext) error
	RegisterConnection(conn interfaces.Connection) error
	UnregisterConnection(connID string)
}

// Handler upgrades HTTP requests to websocket connections and pumps their
// inbound envelopes into the dispatcher.
type Handler struct {
	dispatcher   Dispatcher
	pingInterval time.Duration
	readTimeout  time.Duration
}

// NewHandler creates a handler over the given dispatcher. Zero intervals
// select the defaults.
func NewHandler(dispatcher Dispatcher, pingInterval, readTimeout time.Duration) *Handler {
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	return &Handler{
		dispatcher:   dispatcher,
		pingInterval: pingInterval,
		readTimeout:  readTimeout,
	}
}

// HandleWebSocket upgrades the request and runs the connection's read pump.
// Identity and room membership arrive in-band via join-room, so the upgrade
// itself is unauthenticated.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn)
	if err := h.dispatcher.RegisterConnection(wsConn); err != nil {
		log.Printf("failed to register connection %s: %v", wsConn.ID(), err)
		_ = wsConn.Close()
		return
	}

	go h.readPump(wsConn)
}

func (h *Handler) readPump(conn *Connection) {
	defer func() {
		h.dispatcher.UnregisterConnection(conn.ID())
		_ = conn.Close()
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
		log.Printf("failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket read error on %s: %v", conn.ID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			errEnv, encErr := types.NewEvent(types.EventError, types.ErrorEvent{Message: "malformed message"})
			if encErr == nil {
				_ = conn.WriteJSON(errEnv)
			}
			continue
		}

		event := &hub.EventContext{
			Conn:       conn,
			Envelope:   &env,
			ReceivedAt: time.Now(),
		}
		if err := h.dispatcher.Submit(event); err != nil {
			log.Printf("dropping %s from %s: %v", env.Event, conn.ID(), err)
		}
	}
}
