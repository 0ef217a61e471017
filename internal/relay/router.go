package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"

	"classrelay/internal/auth"
	"classrelay/internal/registry"
	"classrelay/pkg/interfaces"
	"classrelay/pkg/types"
)

// Router turns inbound envelopes into registry operations. It does envelope
// decoding, payload validation, rate limiting and the join authorization
// hand-off; the registry does everything stateful.
type Router struct {
	registry   *registry.Registry
	authorizer *auth.Authorizer
	limiter    *RateLimiter
	validate   *validator.Validate
}

// NewRouter creates a router over the given registry and authorizer.
// eventsPerMinute bounds signal and chat traffic per connection; zero or
// negative selects the default.
func NewRouter(reg *registry.Registry, authorizer *auth.Authorizer, eventsPerMinute int) *Router {
	return &Router{
		registry:   reg,
		authorizer: authorizer,
		limiter:    NewRateLimiter(eventsPerMinute),
		validate:   validator.New(),
	}
}

// Route dispatches one inbound envelope. Errors are reported to the caller
// for logging; client-visible failures have already been sent as error
// events by the time Route returns.
func (r *Router) Route(ctx context.Context, conn interfaces.Connection, env *types.Envelope) error {
	if env == nil {
		return ErrInvalidPayload
	}

	switch env.Event {
	case types.EventJoinRoom:
		return r.handleJoin(ctx, conn, env.Data)
	case types.EventSignal:
		return r.handleSignal(conn, env.Data)
	case types.EventChatMessage:
		return r.handleChat(conn, env.Data)
	case types.EventCheckLiveStatus:
		return r.handleLiveStatus(conn, env.Data)
	case types.EventStartSession:
		return r.handleStartSession(conn, env.Data)
	case types.EventEndSession:
		return r.handleEndSession(conn, env.Data)
	default:
		r.sendError(conn, fmt.Sprintf("unknown event %q", env.Event))
		return fmt.Errorf("%w: %s", types.ErrUnknownEvent, env.Event)
	}
}

// Forget drops per-connection router state. Called on disconnect.
func (r *Router) Forget(connID string) {
	r.limiter.Forget(connID)
}

func (r *Router) handleJoin(ctx context.Context, conn interfaces.Connection, data json.RawMessage) error {
	var payload types.JoinRoomPayload
	if err := r.decode(data, &payload); err != nil {
		r.sendError(conn, "invalid join-room payload")
		return err
	}
	if !types.IsValidRoomID(payload.RoomID) {
		r.sendError(conn, "invalid room id")
		return types.ErrInvalidRoomID
	}

	session, _ := r.registry.LiveSession(payload.RoomID)
	if err := r.authorizer.Authorize(ctx, session, payload.Meta()); err != nil {
		// Denial is unicast to the caller; the room never learns of the attempt.
		r.sendError(conn, "not authorized to join this room")
		return fmt.Errorf("join to %s denied for connection %s: %w", payload.RoomID, conn.ID(), err)
	}

	if err := r.registry.Join(payload.RoomID, conn.ID(), payload.Meta()); err != nil {
		r.sendError(conn, "unable to join room")
		return err
	}
	return nil
}

func (r *Router) handleSignal(conn interfaces.Connection, data json.RawMessage) error {
	if !r.limiter.Allow(conn.ID()) {
		r.sendError(conn, "rate limit exceeded")
		return ErrRateLimitExceeded
	}

	var payload types.SignalPayload
	if err := r.decode(data, &payload); err != nil {
		r.sendError(conn, "invalid signal payload")
		return err
	}

	r.registry.Signal(conn.ID(), payload.Target, payload.Message)
	return nil
}

func (r *Router) handleChat(conn interfaces.Connection, data json.RawMessage) error {
	if !r.limiter.Allow(conn.ID()) {
		r.sendError(conn, "rate limit exceeded")
		return ErrRateLimitExceeded
	}

	var payload types.ChatPayload
	if err := r.decode(data, &payload); err != nil {
		r.sendError(conn, "invalid chat payload")
		return err
	}

	r.registry.Chat(conn.ID(), payload.Payload, payload.SenderName)
	return nil
}

func (r *Router) handleLiveStatus(conn interfaces.Connection, data json.RawMessage) error {
	var payload types.LiveStatusPayload
	if err := r.decode(data, &payload); err != nil {
		r.sendError(conn, "invalid check-live-status payload")
		return err
	}

	isLive := r.registry.WatchStatus(payload.RoomID, conn.ID())
	r.sendEvent(conn, types.EventLiveStatus, types.LiveStatusEvent{
		RoomID: payload.RoomID,
		IsLive: isLive,
	})
	return nil
}

func (r *Router) handleStartSession(conn interfaces.Connection, data json.RawMessage) error {
	var payload types.StartSessionPayload
	if err := r.decode(data, &payload); err != nil {
		r.sendError(conn, "invalid start-live-session payload")
		return err
	}
	if !types.IsValidRoomID(payload.RoomID) || !types.IsValidUserID(payload.InstructorID) {
		r.sendError(conn, "invalid room or instructor id")
		return ErrInvalidPayload
	}

	r.registry.StartSession(payload.RoomID, payload.InstructorID, payload.CourseID)
	r.sendEvent(conn, types.EventSessionAck, types.SessionAckEvent{
		RoomID:  payload.RoomID,
		Success: true,
	})
	return nil
}

func (r *Router) handleEndSession(conn interfaces.Connection, data json.RawMessage) error {
	var payload types.EndSessionPayload
	if err := r.decode(data, &payload); err != nil {
		r.sendError(conn, "invalid end-live-session payload")
		return err
	}

	// Ending a room that was never live acks success=false rather than
	// surfacing an error; callers treat it as already-ended.
	err := r.registry.EndSession(payload.RoomID)
	r.sendEvent(conn, types.EventSessionAck, types.SessionAckEvent{
		RoomID:  payload.RoomID,
		Success: err == nil,
	})
	return nil
}

func (r *Router) decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return ErrInvalidPayload
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := r.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func (r *Router) sendEvent(conn interfaces.Connection, event string, data interface{}) {
	env, err := types.NewEvent(event, data)
	if err != nil {
		log.Printf("failed to encode %s event: %v", event, err)
		return
	}
	if err := conn.WriteJSON(env); err != nil {
		log.Printf("failed to deliver %s to %s: %v", event, conn.ID(), err)
	}
}

func (r *Router) sendError(conn interfaces.Connection, message string) {
	r.sendEvent(conn, types.EventError, types.ErrorEvent{Message: message})
}
