package registry

import "errors"

var (
	ErrNilConnection           = errors.New("connection is nil")
	ErrConnectionNotRegistered = errors.New("connection is not registered")
	ErrAlreadyJoined           = errors.New("connection already joined a room")
	ErrSessionNotFound         = errors.New("live session not found")
)
