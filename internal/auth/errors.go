package auth

import "errors"

// Denial reasons. Every non-nil Authorize result refuses the join; the
// distinction matters only for logs and tests.
var (
	ErrNotEnrolled   = errors.New("user is not enrolled in this course")
	ErrAnonymousJoin = errors.New("course-gated room requires a user id")
	ErrUnknownUser   = errors.New("user not found in directory")
	ErrLookupFailed  = errors.New("user lookup failed")
)
