package types

import (
	"encoding/json"
	"time"
)

// Roles understood by the relay. The relay never issues credentials; roles
// arrive from the external token layer via connection metadata and the user
// directory.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// ConnectionMeta is the identity a client supplies when joining a room.
// Every field is optional: the relay tolerates anonymous connections and
// connections whose metadata never arrived.
type ConnectionMeta struct {
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role,omitempty"`
}

// User is a directory record resolved during join authorization.
type User struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Role              string   `json:"role"`
	EnrolledCourseIDs []string `json:"enrolled_course_ids"`
}

// IsStaff reports whether the user may enter any course-gated room.
func (u *User) IsStaff() bool {
	return u.Role == RoleTeacher || u.Role == RoleAdmin
}

// IsEnrolledIn reports whether the user's enrolled-course set contains courseID.
func (u *User) IsEnrolledIn(courseID string) bool {
	for _, id := range u.EnrolledCourseIDs {
		if id == courseID {
			return true
		}
	}
	return false
}

// LiveSession marks a room as having an instructor-started live class.
// Its lifecycle is independent of the room's: a session survives an empty
// room and is removed only by an explicit end-session operation.
type LiveSession struct {
	ID           string    `json:"id"`
	RoomID       string    `json:"room_id"`
	InstructorID string    `json:"instructor_id"`
	CourseID     string    `json:"course_id,omitempty"`
	StartedAt    time.Time `json:"started_at"`
}

// ChatEntry is one message in a room's append-only chat log. Entries are
// never mutated or removed; the log is discarded only when its room is
// deleted. IDs are ULIDs so replay order matches append order.
type ChatEntry struct {
	ID           string          `json:"id"`
	SenderName   string          `json:"sender_name"`
	Payload      json.RawMessage `json:"payload"`
	SenderConnID string          `json:"sender_connection_id"`
	SentAt       time.Time       `json:"sent_at"`
}

// Participant is one entry in a presence list, enriched from connection
// metadata. Name and Role may be empty for participants whose metadata
// never arrived.
type Participant struct {
	ConnectionID string    `json:"connection_id"`
	Name         string    `json:"name,omitempty"`
	Role         string    `json:"role,omitempty"`
	JoinedAt     time.Time `json:"joined_at"`
}
