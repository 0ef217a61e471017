package hub

import (
	"context"
	"log"
	"sync"
	"time"

	"classrelay/internal/registry"
	"classrelay/internal/relay"
	"classrelay/pkg/interfaces"
	"classrelay/pkg/types"
)

const (
	eventQueueSize      = 1000
	registerQueueSize   = 100
	unregisterQueueSize = 100
)

// EventContext carries one inbound envelope through the hub together with
// the connection it arrived on.
type EventContext struct {
	Conn       interfaces.Connection
	Envelope   *types.Envelope
	ReceivedAt time.Time
}

// Hub serializes all registry mutations onto a single goroutine. Connection
// read pumps submit work through buffered channels and never touch the
// registry directly.
type Hub struct {
	registry *registry.Registry
	router   *relay.Router

	eventChannel      chan *EventContext
	registerChannel   chan interfaces.Connection
	unregisterChannel chan string
	shutdownChannel   chan struct{}
	doneChannel       chan struct{}

	mu      sync.Mutex
	running bool
}

// NewHub creates a hub over the given registry and router.
func NewHub(reg *registry.Registry, router *relay.Router) *Hub {
	return &Hub{
		registry:          reg,
		router:            router,
		eventChannel:      make(chan *EventContext, eventQueueSize),
		registerChannel:   make(chan interfaces.Connection, registerQueueSize),
		unregisterChannel: make(chan string, unregisterQueueSize),
		shutdownChannel:   make(chan struct{}),
		doneChannel:       make(chan struct{}),
	}
}

// Start launches the processing loop.
func (h *Hub) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true

	go h.run()
	return nil
}

// Stop shuts the loop down and waits for it to exit.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	h.mu.Unlock()

	close(h.shutdownChannel)
	<-h.doneChannel
	return nil
}

// Submit queues an inbound event. Returns ErrEventQueueFull when the hub
// cannot keep up; callers drop the event and log.
func (h *Hub) Submit(event *EventContext) error {
	if event == nil || event.Envelope == nil {
		return ErrNilEvent
	}
	select {
	case h.eventChannel <- event:
		return nil
	default:
		return ErrEventQueueFull
	}
}

// RegisterConnection queues a new connection for registration.
func (h *Hub) RegisterConnection(conn interfaces.Connection) error {
	if conn == nil {
		return registry.ErrNilConnection
	}
	select {
	case h.registerChannel <- conn:
		return nil
	default:
		return ErrRegisterQueueFull
	}
}

// UnregisterConnection queues a disconnect. Blocks if the queue is full so
// teardown is never lost.
func (h *Hub) UnregisterConnection(connID string) {
	h.unregisterChannel <- connID
}

func (h *Hub) run() {
	defer close(h.doneChannel)

	for {
		select {
		case conn := <-h.registerChannel:
			if err := h.registry.Register(conn); err != nil {
				log.Printf("failed to register connection %s: %v", conn.ID(), err)
			}

		case connID := <-h.unregisterChannel:
			h.registry.Disconnect(connID)
			h.router.Forget(connID)

		case event := <-h.eventChannel:
			if err := h.router.Route(context.Background(), event.Conn, event.Envelope); err != nil {
				log.Printf("event %s from %s not processed: %v",
					event.Envelope.Event, event.Conn.ID(), err)
			}

		case <-h.shutdownChannel:
			return
		}
	}
}
