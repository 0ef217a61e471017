package interfaces

// Connection is the send side of one connected client. The concrete
// implementation serializes writes behind a single writer goroutine; callers
// may invoke WriteJSON from any goroutine.
type Connection interface {
	// ID returns the transport-scoped connection identifier. It is ephemeral:
	// a reconnecting client gets a fresh one.
	ID() string

	// WriteJSON queues v for delivery. Best-effort: an error means the
	// message was dropped, never that the relay should stop.
	WriteJSON(v interface{}) error

	// Close tears down the transport. Safe to call more than once.
	Close() error
}
