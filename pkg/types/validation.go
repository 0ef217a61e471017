package types

import "regexp"

// Compiled once; identifiers are validated on every join and API call.
var (
	roomIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// IsValidRoomID checks a caller-supplied room token. Rooms are created
// implicitly on first join, so the token format is the only gate.
func IsValidRoomID(roomID string) bool {
	if len(roomID) < 1 || len(roomID) > 100 {
		return false
	}
	return roomIDRegex.MatchString(roomID)
}

// IsValidUserID checks a platform user identifier.
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 50 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// IsValidRole checks a client-supplied role string.
func IsValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsInboundEvent reports whether the event name is one the relay consumes.
func IsInboundEvent(event string) bool {
	switch event {
	case EventJoinRoom, EventSignal, EventChatMessage,
		EventCheckLiveStatus, EventStartSession, EventEndSession:
		return true
	default:
		return false
	}
}
