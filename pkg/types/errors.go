package types

import "errors"

// Validation errors shared across the wire and HTTP layers.
var (
	ErrInvalidRoomID = errors.New("invalid room id")
	ErrInvalidUserID = errors.New("invalid user id")
	ErrInvalidRole   = errors.New("invalid role")
	ErrUnknownEvent  = errors.New("unknown event")
)
