package hub

import "errors"

var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrEventQueueFull    = errors.New("event queue is full")
	ErrRegisterQueueFull = errors.New("register queue is full")
	ErrNilEvent          = errors.New("event is nil")
)
