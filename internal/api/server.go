package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"classrelay/internal/registry"
	"classrelay/pkg/types"
)

// SessionRegistry is the registry surface the HTTP layer needs.
type SessionRegistry interface {
	StartSession(roomID, instructorID, courseID string) *types.LiveSession
	EndSession(roomID string) error
	LiveSession(roomID string) (*types.LiveSession, bool)
	Participants(roomID string) []types.Participant
	Stats() map[string]int
}

// Server exposes live-session management over HTTP. No relay logic lives
// here, only JSON handling in front of the registry.
type Server struct {
	registry SessionRegistry
	router   *http.ServeMux
}

// NewServer creates the API server and wires its routes.
func NewServer(reg SessionRegistry) *Server {
	s := &Server{
		registry: reg,
		router:   http.NewServeMux(),
	}

	s.router.Handle("/api/sessions", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessions))))
	s.router.Handle("/api/sessions/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessionByRoom))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type StartSessionRequest struct {
	RoomID       string `json:"room_id"`
	InstructorID string `json:"instructor_id"`
	CourseID     string `json:"course_id,omitempty"`
}

type SessionResponse struct {
	Session          *types.LiveSession  `json:"session"`
	Participants     []types.Participant `json:"participants,omitempty"`
	ParticipantCount int                 `json:"participant_count"`
}

type HealthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Stats     map[string]int `json:"stats"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.startSession(w, r)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSessionByRoom(w http.ResponseWriter, r *http.Request) {
	roomID := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")[0]
	if roomID == "" {
		s.sendError(w, "Room ID required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getSession(w, roomID)
	case http.MethodDelete:
		s.endSession(w, roomID)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// startSession marks a room live. Repeating the call replaces the session
// record, mirroring the realtime start-live-session event.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if !types.IsValidRoomID(req.RoomID) {
		s.sendError(w, "Invalid room_id", http.StatusBadRequest)
		return
	}
	if !types.IsValidUserID(req.InstructorID) {
		s.sendError(w, "Invalid instructor_id", http.StatusBadRequest)
		return
	}

	session := s.registry.StartSession(req.RoomID, req.InstructorID, req.CourseID)

	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(SessionResponse{
		Session:          session,
		ParticipantCount: len(s.registry.Participants(req.RoomID)),
	})
}

func (s *Server) getSession(w http.ResponseWriter, roomID string) {
	session, ok := s.registry.LiveSession(roomID)
	if !ok {
		s.sendError(w, "No live session for room", http.StatusNotFound)
		return
	}

	participants := s.registry.Participants(roomID)
	_ = json.NewEncoder(w).Encode(SessionResponse{
		Session:          session,
		Participants:     participants,
		ParticipantCount: len(participants),
	})
}

func (s *Server) endSession(w http.ResponseWriter, roomID string) {
	if err := s.registry.EndSession(roomID); err != nil {
		if errors.Is(err, registry.ErrSessionNotFound) {
			s.sendError(w, "No live session for room", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to end session", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "Session ended"})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Stats:     s.registry.Stats(),
	})
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
