package directory

import "errors"

var (
	ErrStoreClosed  = errors.New("directory store is closed")
	ErrWriteTimeout = errors.New("roster write operation timed out")
)
