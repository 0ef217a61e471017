package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"classrelay/internal/auth"
	"classrelay/internal/registry"
	"classrelay/pkg/types"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	events []*types.Envelope
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) WriteJSON(v interface{}) error {
	env, ok := v.(*types.Envelope)
	if !ok {
		return errors.New("unexpected message type")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, env)
	return nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) eventsNamed(name string) []*types.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*types.Envelope
	for _, env := range c.events {
		if env.Event == name {
			out = append(out, env)
		}
	}
	return out
}

type fakeDirectory struct {
	users map[string]*types.User
	err   error
}

func (d *fakeDirectory) GetUserByID(_ context.Context, id string) (*types.User, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.users[id], nil
}

func envelope(t *testing.T, event string, payload interface{}) *types.Envelope {
	t.Helper()
	env, err := types.NewEvent(event, payload)
	if err != nil {
		t.Fatalf("failed to build %s envelope: %v", event, err)
	}
	return env
}

func newTestRouter(t *testing.T, dir *fakeDirectory) (*Router, *registry.Registry) {
	t.Helper()

	reg := registry.NewRegistry()
	var authorizer *auth.Authorizer
	if dir != nil {
		authorizer = auth.NewAuthorizer(dir, auth.PolicyDeny, time.Second)
	} else {
		authorizer = auth.NewAuthorizer(nil, auth.PolicyDeny, time.Second)
	}
	return NewRouter(reg, authorizer, 0), reg
}

func TestRouter_JoinDeliversPresence(t *testing.T) {
	router, reg := newTestRouter(t, nil)
	conn := newFakeConn("c1")
	if err := reg.Register(conn); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	env := envelope(t, types.EventJoinRoom, types.JoinRoomPayload{
		RoomID: "go-101",
		UserID: "u1",
		Name:   "Ada",
		Role:   types.RoleStudent,
	})
	if err := router.Route(context.Background(), conn, env); err != nil {
		t.Fatalf("Route failed: %v", err)
	}

	if got := conn.eventsNamed(types.EventUserJoined); len(got) != 1 {
		t.Errorf("expected one user-joined event, got %d", len(got))
	}
	if names := reg.Participants("go-101"); len(names) != 1 {
		t.Errorf("expected one participant, got %v", names)
	}
}

func TestRouter_JoinDeniedByEnrollmentGate(t *testing.T) {
	dir := &fakeDirectory{users: map[string]*types.User{
		"u1": {ID: "u1", Role: types.RoleStudent, EnrolledCourseIDs: []string{"other"}},
	}}
	router, reg := newTestRouter(t, dir)

	instructor := newFakeConn("teacher")
	if err := reg.Register(instructor); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	reg.StartSession("go-101", "prof", "course-go")

	conn := newFakeConn("c1")
	if err := reg.Register(conn); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	env := envelope(t, types.EventJoinRoom, types.JoinRoomPayload{
		RoomID: "go-101",
		UserID: "u1",
		Role:   types.RoleStudent,
	})
	err := router.Route(context.Background(), conn, env)
	if !errors.Is(err, auth.ErrNotEnrolled) {
		t.Fatalf("expected ErrNotEnrolled, got %v", err)
	}

	if got := conn.eventsNamed(types.EventError); len(got) != 1 {
		t.Errorf("expected one error event, got %d", len(got))
	}
	if names := reg.Participants("go-101"); len(names) != 0 {
		t.Errorf("denied join must not add a participant, got %v", names)
	}
}

func TestRouter_JoinRejectsInvalidRoomID(t *testing.T) {
	router, reg := newTestRouter(t, nil)
	conn := newFakeConn("c1")
	if err := reg.Register(conn); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	env := envelope(t, types.EventJoinRoom, types.JoinRoomPayload{RoomID: "bad room!"})
	if err := router.Route(context.Background(), conn, env); !errors.Is(err, types.ErrInvalidRoomID) {
		t.Fatalf("expected ErrInvalidRoomID, got %v", err)
	}
	if got := conn.eventsNamed(types.EventError); len(got) != 1 {
		t.Errorf("expected one error event, got %d", len(got))
	}
}

func TestRouter_UnknownEvent(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	conn := newFakeConn("c1")

	err := router.Route(context.Background(), conn, &types.Envelope{Event: "teleport"})
	if !errors.Is(err, types.ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
	if got := conn.eventsNamed(types.EventError); len(got) != 1 {
		t.Errorf("expected one error event, got %d", len(got))
	}
}

func TestRouter_MalformedPayload(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	conn := newFakeConn("c1")

	env := &types.Envelope{Event: types.EventJoinRoom, Data: json.RawMessage(`{"roomId":`)}
	if err := router.Route(context.Background(), conn, env); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestRouter_ChatReachesRoom(t *testing.T) {
	router, reg := newTestRouter(t, nil)

	a := newFakeConn("a")
	b := newFakeConn("b")
	for _, conn := range []*fakeConn{a, b} {
		if err := reg.Register(conn); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		join := envelope(t, types.EventJoinRoom, types.JoinRoomPayload{RoomID: "go-101", Name: conn.ID()})
		if err := router.Route(context.Background(), conn, join); err != nil {
			t.Fatalf("join failed: %v", err)
		}
	}

	chat := envelope(t, types.EventChatMessage, types.ChatPayload{
		Payload:    json.RawMessage(`{"text":"hi"}`),
		SenderName: "a",
	})
	if err := router.Route(context.Background(), a, chat); err != nil {
		t.Fatalf("chat failed: %v", err)
	}

	for _, conn := range []*fakeConn{a, b} {
		if got := conn.eventsNamed(types.EventChatMessage); len(got) != 1 {
			t.Errorf("connection %s: expected one chat event, got %d", conn.ID(), len(got))
		}
	}
}

func TestRouter_SignalUnicast(t *testing.T) {
	router, reg := newTestRouter(t, nil)

	a := newFakeConn("a")
	b := newFakeConn("b")
	for _, conn := range []*fakeConn{a, b} {
		if err := reg.Register(conn); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		join := envelope(t, types.EventJoinRoom, types.JoinRoomPayload{RoomID: "go-101"})
		if err := router.Route(context.Background(), conn, join); err != nil {
			t.Fatalf("join failed: %v", err)
		}
	}

	signal := envelope(t, types.EventSignal, types.SignalPayload{
		Target:  "b",
		Message: json.RawMessage(`{"type":"offer"}`),
	})
	if err := router.Route(context.Background(), a, signal); err != nil {
		t.Fatalf("signal failed: %v", err)
	}

	if got := b.eventsNamed(types.EventSignal); len(got) != 1 {
		t.Fatalf("expected one signal at target, got %d", len(got))
	}
	var delivered types.SignalEvent
	if err := json.Unmarshal(b.eventsNamed(types.EventSignal)[0].Data, &delivered); err != nil {
		t.Fatalf("failed to decode signal: %v", err)
	}
	if delivered.SenderConnectionID != "a" {
		t.Errorf("expected sender a, got %s", delivered.SenderConnectionID)
	}
	if got := a.eventsNamed(types.EventSignal); len(got) != 0 {
		t.Errorf("sender should not receive its own signal, got %d", len(got))
	}
}

func TestRouter_LiveStatusQuery(t *testing.T) {
	router, reg := newTestRouter(t, nil)
	conn := newFakeConn("c1")
	if err := reg.Register(conn); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	query := envelope(t, types.EventCheckLiveStatus, types.LiveStatusPayload{RoomID: "go-101"})
	if err := router.Route(context.Background(), conn, query); err != nil {
		t.Fatalf("status query failed: %v", err)
	}

	statuses := conn.eventsNamed(types.EventLiveStatus)
	if len(statuses) != 1 {
		t.Fatalf("expected one live-status event, got %d", len(statuses))
	}
	var status types.LiveStatusEvent
	if err := json.Unmarshal(statuses[0].Data, &status); err != nil {
		t.Fatalf("failed to decode live-status: %v", err)
	}
	if status.IsLive {
		t.Error("room should not be live yet")
	}

	// Watchers registered by the query get the scoped start notification.
	reg.StartSession("go-101", "prof", "")
	if got := conn.eventsNamed(types.EventSessionStarted); len(got) != 1 {
		t.Errorf("watcher should be notified of session start, got %d events", len(got))
	}
}

func TestRouter_SessionLifecycleAcks(t *testing.T) {
	router, reg := newTestRouter(t, nil)
	conn := newFakeConn("c1")
	if err := reg.Register(conn); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	start := envelope(t, types.EventStartSession, types.StartSessionPayload{
		RoomID:       "go-101",
		InstructorID: "prof",
		CourseID:     "course-go",
	})
	if err := router.Route(context.Background(), conn, start); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !reg.IsLive("go-101") {
		t.Error("room should be live after start")
	}

	end := envelope(t, types.EventEndSession, types.EndSessionPayload{RoomID: "go-101"})
	if err := router.Route(context.Background(), conn, end); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if reg.IsLive("go-101") {
		t.Error("room should not be live after end")
	}

	acks := conn.eventsNamed(types.EventSessionAck)
	if len(acks) != 2 {
		t.Fatalf("expected two acks, got %d", len(acks))
	}

	// Ending again reports failure but is not an error.
	if err := router.Route(context.Background(), conn, end); err != nil {
		t.Fatalf("idempotent end failed: %v", err)
	}
	acks = conn.eventsNamed(types.EventSessionAck)
	var last types.SessionAckEvent
	if err := json.Unmarshal(acks[len(acks)-1].Data, &last); err != nil {
		t.Fatalf("failed to decode ack: %v", err)
	}
	if last.Success {
		t.Error("ending a non-live room should ack success=false")
	}
}

func TestRouter_RateLimitsChat(t *testing.T) {
	reg := registry.NewRegistry()
	authorizer := auth.NewAuthorizer(nil, auth.PolicyDeny, time.Second)
	router := NewRouter(reg, authorizer, 2)

	conn := newFakeConn("c1")
	if err := reg.Register(conn); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	join := envelope(t, types.EventJoinRoom, types.JoinRoomPayload{RoomID: "go-101"})
	if err := router.Route(context.Background(), conn, join); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	chat := envelope(t, types.EventChatMessage, types.ChatPayload{
		Payload:    json.RawMessage(`"hi"`),
		SenderName: "Ada",
	})
	for i := 0; i < 2; i++ {
		if err := router.Route(context.Background(), conn, chat); err != nil {
			t.Fatalf("chat %d failed: %v", i, err)
		}
	}
	if err := router.Route(context.Background(), conn, chat); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}
}
