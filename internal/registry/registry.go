package registry

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"classrelay/pkg/interfaces"
	"classrelay/pkg/types"
)

// room is the in-memory state for one live-class room. Participant order is
// join order and is user-visible in presence lists.
type room struct {
	participants []string
	chatLog      []types.ChatEntry
}

// Registry owns all room lifecycle state: membership, chat logs, live
// session records, connection metadata and presence clocks. It is an
// explicitly constructed instance so tests get a fresh registry each time.
//
// All mutations are funneled through the hub's run loop in production; the
// mutex additionally protects direct reads from the HTTP API.
type Registry struct {
	mu           sync.RWMutex
	conns        map[string]interfaces.Connection // connection ID -> send side
	rooms        map[string]*room                 // room ID -> room state
	memberRoom   map[string]string                // connection ID -> room ID
	liveSessions map[string]*types.LiveSession    // room ID -> session record
	metadata     map[string]types.ConnectionMeta  // connection ID -> join metadata
	joinedAt     map[string]time.Time             // connection ID -> presence clock
	watchers     map[string]map[string]bool       // room ID -> status watchers
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:        make(map[string]interfaces.Connection),
		rooms:        make(map[string]*room),
		memberRoom:   make(map[string]string),
		liveSessions: make(map[string]*types.LiveSession),
		metadata:     make(map[string]types.ConnectionMeta),
		joinedAt:     make(map[string]time.Time),
		watchers:     make(map[string]map[string]bool),
	}
}

// Register tracks a new transport connection. A connection must be
// registered before it can join a room or be a signal target. Registering a
// second connection under the same ID replaces the first and closes it
// asynchronously.
func (r *Registry) Register(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.conns[conn.ID()]; ok && existing != conn {
		// Close asynchronously to avoid holding the lock over transport I/O.
		go func() {
			if err := existing.Close(); err != nil {
				log.Printf("failed to close replaced connection %s: %v", conn.ID(), err)
			}
		}()
	}
	r.conns[conn.ID()] = conn
	return nil
}

// Join adds a registered connection to a room, creating the room if needed.
// Authorization has already happened by the time Join runs. Side effects:
// the full presence list is broadcast to the room (including the joiner),
// then the room's entire chat log is replayed to the joiner only, in
// original append order.
func (r *Registry) Join(roomID, connID string, meta types.ConnectionMeta) error {
	r.mu.Lock()

	conn, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return ErrConnectionNotRegistered
	}

	// One room per connection keeps the reverse index coherent. Rejoining
	// requires a fresh transport connection.
	if current, joined := r.memberRoom[connID]; joined {
		r.mu.Unlock()
		return fmt.Errorf("%w: connection %s is in room %s", ErrAlreadyJoined, connID, current)
	}

	rm, exists := r.rooms[roomID]
	if !exists {
		rm = &room{}
		r.rooms[roomID] = rm
	}

	// The chat log snapshot is taken under the same lock as the membership
	// write, so the replay holds exactly the entries appended before this join.
	replay := make([]types.ChatEntry, len(rm.chatLog))
	copy(replay, rm.chatLog)

	rm.participants = append(rm.participants, connID)
	r.memberRoom[connID] = roomID
	r.metadata[connID] = meta
	r.joinedAt[connID] = time.Now()

	joined := types.UserJoinedEvent{
		ConnectionID: connID,
		Participants: r.participantsLocked(rm),
	}
	recipients := r.roomConnsLocked(rm)
	r.mu.Unlock()

	log.Printf("participant joined: room=%s connection=%s user=%s role=%s",
		roomID, connID, meta.UserID, meta.Role)

	r.send(recipients, types.EventUserJoined, joined)
	for _, entry := range replay {
		r.sendOne(conn, types.EventChatMessage, types.ChatEventOf(entry))
	}
	return nil
}

// Chat appends a message to the sender's room chat log and broadcasts it to
// every participant, the sender included (clients de-duplicate their own
// echo). A chat from a connection that is in no room is silently dropped.
func (r *Registry) Chat(senderID string, payload json.RawMessage, senderName string) {
	r.mu.Lock()

	roomID, ok := r.memberRoom[senderID]
	if !ok {
		r.mu.Unlock()
		log.Printf("dropping chat from connection %s: not in any room", senderID)
		return
	}

	rm := r.rooms[roomID]
	entry := types.ChatEntry{
		ID:           ulid.Make().String(),
		SenderName:   senderName,
		Payload:      payload,
		SenderConnID: senderID,
		SentAt:       time.Now(),
	}
	rm.chatLog = append(rm.chatLog, entry)
	recipients := r.roomConnsLocked(rm)
	r.mu.Unlock()

	r.send(recipients, types.EventChatMessage, types.ChatEventOf(entry))
}

// Signal forwards an opaque payload to a single target connection, tagged
// with the sender's connection ID. The relay trusts the transport-layer
// connection ID and does not require sender and target to share a room.
// A missing target is logged and dropped.
func (r *Registry) Signal(senderID, targetID string, message json.RawMessage) {
	r.mu.RLock()
	conn, ok := r.conns[targetID]
	r.mu.RUnlock()

	if !ok {
		log.Printf("dropping signal from %s: target %s not connected", senderID, targetID)
		return
	}

	r.sendOne(conn, types.EventSignal, types.SignalEvent{
		SenderConnectionID: senderID,
		Message:            message,
	})
}

// StartSession upserts the live session record for a room and notifies room
// members and status watchers. Restarting an already-live room overwrites
// the record. The instructor/course pairing is advisory and not validated
// here.
func (r *Registry) StartSession(roomID, instructorID, courseID string) *types.LiveSession {
	session := &types.LiveSession{
		ID:           uuid.New().String(),
		RoomID:       roomID,
		InstructorID: instructorID,
		CourseID:     courseID,
		StartedAt:    time.Now(),
	}

	r.mu.Lock()
	r.liveSessions[roomID] = session
	recipients := r.notifyConnsLocked(roomID)
	r.mu.Unlock()

	log.Printf("live session started: room=%s instructor=%s course=%s",
		roomID, instructorID, courseID)

	r.send(recipients, types.EventSessionStarted, types.SessionStartedEvent{
		RoomID:       roomID,
		InstructorID: instructorID,
	})
	return session
}

// EndSession removes a room's live session record and notifies room members
// and status watchers. The room itself, if any, is untouched.
func (r *Registry) EndSession(roomID string) error {
	r.mu.Lock()
	if _, ok := r.liveSessions[roomID]; !ok {
		r.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(r.liveSessions, roomID)
	recipients := r.notifyConnsLocked(roomID)
	r.mu.Unlock()

	log.Printf("live session ended: room=%s", roomID)

	r.send(recipients, types.EventSessionEnded, types.SessionEndedEvent{RoomID: roomID})
	return nil
}

// LiveSession returns the live session record for a room, if one exists.
func (r *Registry) LiveSession(roomID string) (*types.LiveSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.liveSessions[roomID]
	return session, ok
}

// IsLive reports whether a room has a live session. Sessions have no expiry;
// a session started hours ago and never ended still reports live.
func (r *Registry) IsLive(roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.liveSessions[roomID]
	return ok
}

// WatchStatus records the connection as a status watcher for the room, so
// session started/ended notifications reach it without a global fan-out,
// and returns the current live state.
func (r *Registry) WatchStatus(roomID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.watchers[roomID] == nil {
		r.watchers[roomID] = make(map[string]bool)
	}
	r.watchers[roomID][connID] = true

	_, live := r.liveSessions[roomID]
	return live
}

// Disconnect removes a connection from the registry: out of its room (with a
// user-left broadcast to the remaining members), out of the metadata,
// presence and watcher tables, and out of the connection table. A room whose
// last participant leaves is deleted, chat log included. Live session
// records are never touched by disconnect.
func (r *Registry) Disconnect(connID string) {
	r.mu.Lock()

	delete(r.conns, connID)

	var recipients []interfaces.Connection
	roomID, inRoom := r.memberRoom[connID]
	if inRoom {
		rm := r.rooms[roomID]
		rm.participants = removeID(rm.participants, connID)
		delete(r.memberRoom, connID)

		if len(rm.participants) == 0 {
			// Chat history does not survive an empty room.
			delete(r.rooms, roomID)
		} else {
			recipients = r.roomConnsLocked(rm)
		}
	}

	delete(r.metadata, connID)
	delete(r.joinedAt, connID)
	for watchedRoom, set := range r.watchers {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.watchers, watchedRoom)
		}
	}
	r.mu.Unlock()

	if inRoom {
		log.Printf("participant left: room=%s connection=%s", roomID, connID)
		r.send(recipients, types.EventUserLeft, types.UserLeftEvent{ConnectionID: connID})
	}
}

// Participants returns the room's presence list in join order, enriched
// from connection metadata. An unknown room yields an empty list.
func (r *Registry) Participants(roomID string) []types.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return []types.Participant{}
	}
	return r.participantsLocked(rm)
}

// Stats returns registry counters for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"connections":   len(r.conns),
		"rooms":         len(r.rooms),
		"live_sessions": len(r.liveSessions),
	}
}

func (r *Registry) participantsLocked(rm *room) []types.Participant {
	participants := make([]types.Participant, 0, len(rm.participants))
	for _, id := range rm.participants {
		meta := r.metadata[id] // zero value tolerated
		participants = append(participants, types.Participant{
			ConnectionID: id,
			Name:         meta.Name,
			Role:         meta.Role,
			JoinedAt:     r.joinedAt[id],
		})
	}
	return participants
}

func (r *Registry) roomConnsLocked(rm *room) []interfaces.Connection {
	conns := make([]interfaces.Connection, 0, len(rm.participants))
	for _, id := range rm.participants {
		if conn, ok := r.conns[id]; ok {
			conns = append(conns, conn)
		}
	}
	return conns
}

// notifyConnsLocked is the audience for session started/ended events: the
// room's current participants plus anyone who queried the room's status.
func (r *Registry) notifyConnsLocked(roomID string) []interfaces.Connection {
	seen := make(map[string]bool)
	var conns []interfaces.Connection

	if rm, ok := r.rooms[roomID]; ok {
		for _, id := range rm.participants {
			if conn, connected := r.conns[id]; connected && !seen[id] {
				seen[id] = true
				conns = append(conns, conn)
			}
		}
	}
	for id := range r.watchers[roomID] {
		if conn, connected := r.conns[id]; connected && !seen[id] {
			seen[id] = true
			conns = append(conns, conn)
		}
	}
	return conns
}

// send delivers an event to each connection, continuing past individual
// failures.
func (r *Registry) send(conns []interfaces.Connection, event string, data interface{}) {
	env, err := types.NewEvent(event, data)
	if err != nil {
		log.Printf("failed to encode %s event: %v", event, err)
		return
	}
	for _, conn := range conns {
		if err := conn.WriteJSON(env); err != nil {
			log.Printf("failed to deliver %s to %s: %v", event, conn.ID(), err)
		}
	}
}

func (r *Registry) sendOne(conn interfaces.Connection, event string, data interface{}) {
	r.send([]interfaces.Connection{conn}, event, data)
}

func removeID(ids []string, id string) []string {
	for i, candidate := range ids {
		if candidate == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
