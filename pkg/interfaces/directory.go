package interfaces

import (
	"context"

	"classrelay/pkg/types"
)

// Directory resolves platform users for join authorization. Implementations
// back onto the course platform's user store (local SQLite roster or the
// platform's HTTP API).
type Directory interface {
	// GetUserByID returns the user, or (nil, nil) when no such user exists.
	// A non-nil error means the lookup itself failed; the caller decides
	// whether that fails open or closed.
	GetUserByID(ctx context.Context, id string) (*types.User, error)
}
