package types

import (
	"encoding/json"
	"fmt"
)

// Inbound event names, consumed from connected clients.
const (
	EventJoinRoom        = "join-room"
	EventSignal          = "signal"
	EventChatMessage     = "chat-message"
	EventCheckLiveStatus = "check-live-status"
	EventStartSession    = "start-live-session"
	EventEndSession      = "end-live-session"
)

// Outbound event names, produced by the relay.
const (
	EventUserJoined     = "user-joined"
	EventUserLeft       = "user-left"
	EventLiveStatus     = "live-status"
	EventSessionStarted = "live-session-started"
	EventSessionEnded   = "live-session-ended"
	EventSessionAck     = "session-ack"
	EventError          = "error"
)

// Envelope frames every message on the realtime channel, in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an outbound envelope, encoding data as JSON.
func NewEvent(event string, data interface{}) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", event, err)
	}
	return &Envelope{Event: event, Data: raw}, nil
}

// JoinRoomPayload carries the room token and the joiner's metadata.
type JoinRoomPayload struct {
	RoomID string `json:"room_id" validate:"required,max=100"`
	UserID string `json:"user_id,omitempty" validate:"omitempty,max=50"`
	Name   string `json:"name,omitempty" validate:"omitempty,max=100"`
	Role   string `json:"role,omitempty" validate:"omitempty,oneof=student teacher admin"`
}

// Meta extracts the connection metadata portion of the payload.
func (p *JoinRoomPayload) Meta() ConnectionMeta {
	return ConnectionMeta{UserID: p.UserID, Name: p.Name, Role: p.Role}
}

// SignalPayload is an opaque peer-negotiation message for a single target
// connection. The relay never inspects Message.
type SignalPayload struct {
	Target  string          `json:"target" validate:"required,max=100"`
	Message json.RawMessage `json:"message" validate:"required"`
}

// ChatPayload is an opaque chat message from the sender's current room.
type ChatPayload struct {
	Payload    json.RawMessage `json:"payload" validate:"required"`
	SenderName string          `json:"sender_name" validate:"required,max=100"`
}

// LiveStatusPayload asks whether a room has a live session.
type LiveStatusPayload struct {
	RoomID string `json:"room_id" validate:"required,max=100"`
}

// StartSessionPayload starts (or restarts) a live session for a room.
type StartSessionPayload struct {
	RoomID       string `json:"room_id" validate:"required,max=100"`
	InstructorID string `json:"instructor_id" validate:"required,max=50"`
	CourseID     string `json:"course_id,omitempty" validate:"omitempty,max=50"`
}

// EndSessionPayload ends a room's live session.
type EndSessionPayload struct {
	RoomID string `json:"room_id" validate:"required,max=100"`
}

// UserJoinedEvent announces a new participant, carrying the full current
// presence list so clients never need to reconcile incremental state.
type UserJoinedEvent struct {
	ConnectionID string        `json:"connection_id"`
	Participants []Participant `json:"participants"`
}

// UserLeftEvent announces a departed participant to the remaining room.
type UserLeftEvent struct {
	ConnectionID string `json:"connection_id"`
}

// ChatEvent delivers one chat message, live or replayed.
type ChatEvent struct {
	ID                 string          `json:"id"`
	Payload            json.RawMessage `json:"payload"`
	SenderName         string          `json:"sender_name"`
	SenderConnectionID string          `json:"sender_connection_id"`
}

// ChatEventOf converts a stored chat log entry to its wire form.
func ChatEventOf(entry ChatEntry) ChatEvent {
	return ChatEvent{
		ID:                 entry.ID,
		Payload:            entry.Payload,
		SenderName:         entry.SenderName,
		SenderConnectionID: entry.SenderConnID,
	}
}

// SignalEvent delivers a forwarded peer-negotiation message.
type SignalEvent struct {
	SenderConnectionID string          `json:"sender_connection_id"`
	Message            json.RawMessage `json:"message"`
}

// LiveStatusEvent answers a check-live-status request.
type LiveStatusEvent struct {
	RoomID string `json:"room_id"`
	IsLive bool   `json:"is_live"`
}

// SessionStartedEvent notifies room members and status watchers that a live
// session began.
type SessionStartedEvent struct {
	RoomID       string `json:"room_id"`
	InstructorID string `json:"instructor_id"`
}

// SessionEndedEvent notifies room members and status watchers that a live
// session ended.
type SessionEndedEvent struct {
	RoomID string `json:"room_id"`
}

// SessionAckEvent acknowledges a start or end session request.
type SessionAckEvent struct {
	RoomID  string `json:"room_id"`
	Success bool   `json:"success"`
}

// ErrorEvent is a unicast failure report, e.g. an authorization denial.
type ErrorEvent struct {
	Message string `json:"message"`
}
