package auth

import (
	"context"
	"log"
	"time"

	"classrelay/pkg/interfaces"
	"classrelay/pkg/types"
)

// Policy decides what happens when the user lookup fails or finds nobody.
// The safe default is deny: a crashed directory must not silently open every
// course-gated room.
type Policy string

const (
	PolicyAllow Policy = "allow"
	PolicyDeny  Policy = "deny"
)

// IsValidPolicy checks a configured policy string.
func IsValidPolicy(p Policy) bool {
	return p == PolicyAllow || p == PolicyDeny
}

// Authorizer gates room joins by course enrollment. Rooms without a live
// session, and sessions without a course, are open to everyone.
type Authorizer struct {
	directory       interfaces.Directory
	onLookupFailure Policy
	lookupTimeout   time.Duration
}

// NewAuthorizer creates an authorizer backed by the given directory.
func NewAuthorizer(directory interfaces.Directory, onLookupFailure Policy, lookupTimeout time.Duration) *Authorizer {
	if !IsValidPolicy(onLookupFailure) {
		onLookupFailure = PolicyDeny
	}
	return &Authorizer{
		directory:       directory,
		onLookupFailure: onLookupFailure,
		lookupTimeout:   lookupTimeout,
	}
}

// Authorize decides whether the connection described by meta may join the
// room whose live session is session (nil when the room has none). A nil
// return allows the join; any error is a denial.
//
// The directory lookup is bounded by the configured timeout so a hung
// directory cannot wedge the relay's event loop.
func (a *Authorizer) Authorize(ctx context.Context, session *types.LiveSession, meta types.ConnectionMeta) error {
	if session == nil || session.CourseID == "" {
		return nil
	}

	// A gated room requires an identity to check against.
	if meta.UserID == "" {
		return ErrAnonymousJoin
	}

	if a.directory == nil {
		return a.applyPolicy(ErrLookupFailed)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, a.lookupTimeout)
	defer cancel()

	user, err := a.directory.GetUserByID(lookupCtx, meta.UserID)
	if err != nil {
		log.Printf("user lookup failed for %s: %v", meta.UserID, err)
		return a.applyPolicy(ErrLookupFailed)
	}
	if user == nil {
		return a.applyPolicy(ErrUnknownUser)
	}

	if user.IsStaff() || user.IsEnrolledIn(session.CourseID) {
		return nil
	}
	return ErrNotEnrolled
}

func (a *Authorizer) applyPolicy(cause error) error {
	if a.onLookupFailure == PolicyAllow {
		return nil
	}
	return cause
}
